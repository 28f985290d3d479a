package storage

import (
	"errors"
	"fmt"

	"github.com/amanthanvi/keystash/internal/keystore"
)

var (
	ErrInvalidKey     = errors.New("storage: key must not be empty")
	ErrEncodingFailed = errors.New("storage: encoding failed")
	ErrDecodingFailed = errors.New("storage: decoding failed")
	// ErrNotFound is reserved; Get reports absence through its found result.
	ErrNotFound      = errors.New("storage: not found")
	ErrKeychain      = errors.New("storage: keychain error")
	ErrRemovalFailed = errors.New("storage: removal failed")
	// ErrUnknown reports misuse of a backend, such as a Get target that is
	// not a pointer.
	ErrUnknown = errors.New("storage: unknown error")
)

// KeychainError carries the raw keystore status of a failed write.
type KeychainError struct {
	Status keystore.Status
}

func (e *KeychainError) Error() string {
	return fmt.Sprintf("storage: keychain error: %s (%d)", e.Status, int32(e.Status))
}

func (e *KeychainError) Is(target error) bool {
	return target == ErrKeychain
}

// RemovalError describes why Remove or RemoveAll failed. Status is set only
// when the failure came from a keystore.
type RemovalError struct {
	Detail string
	Status keystore.Status
}

func (e *RemovalError) Error() string {
	return "storage: removal failed: " + e.Detail
}

func (e *RemovalError) Is(target error) bool {
	return target == ErrRemovalFailed
}
