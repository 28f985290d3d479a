package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	keyCommitmentContext = "keystash-key-commitment"
	itemKeyVersion       = "v1"
)

var (
	ErrInvalidKEK         = errors.New("invalid kek")
	ErrInvalidWrappedKey  = errors.New("invalid wrapped key")
	ErrCommitmentMismatch = errors.New("key commitment mismatch")
	ErrMasterKeyDestroyed = errors.New("master key destroyed")
)

// MasterKey is the keystore's root secret. It lives in a memguard enclave
// for as long as the keystore is unlocked and never leaves it unwrapped.
type MasterKey struct {
	buf        *memguard.LockedBuffer
	keystoreID string
}

func GenerateMasterKey(keystoreID string) (*MasterKey, error) {
	raw, err := randomBytes(chacha20poly1305.KeySize)
	if err != nil {
		return nil, fmt.Errorf("generate master key: %w", err)
	}
	return &MasterKey{buf: memguard.NewBufferFromBytes(raw), keystoreID: keystoreID}, nil
}

// Wrap seals the master key under kek, binding it to the keystore ID.
func (k *MasterKey) Wrap(kek []byte) (EncryptedBlob, error) {
	if err := k.ensureAlive(); err != nil {
		return EncryptedBlob{}, err
	}
	if len(kek) != chacha20poly1305.KeySize {
		return EncryptedBlob{}, fmt.Errorf("%w: key must be %d bytes", ErrInvalidKEK, chacha20poly1305.KeySize)
	}
	blob, err := Seal(kek, k.buf.Bytes(), wrapAssociatedData(k.keystoreID))
	if err != nil {
		return EncryptedBlob{}, fmt.Errorf("wrap master key: %w", err)
	}
	return blob, nil
}

// UnwrapMasterKey reverses Wrap and checks the result against the stored
// commitment tag so a wrong KEK can never yield a usable key.
func UnwrapMasterKey(kek []byte, keystoreID string, wrapped EncryptedBlob, commitmentTag []byte) (*MasterKey, error) {
	if len(kek) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes", ErrInvalidKEK, chacha20poly1305.KeySize)
	}
	if len(wrapped.Ciphertext) == 0 {
		return nil, fmt.Errorf("%w: ciphertext must not be empty", ErrInvalidWrappedKey)
	}
	if len(commitmentTag) == 0 {
		return nil, fmt.Errorf("%w: commitment tag must not be empty", ErrInvalidWrappedKey)
	}

	plaintext, err := Open(kek, wrapped, wrapAssociatedData(keystoreID))
	if err != nil {
		if errors.Is(err, ErrAuthenticationFailed) {
			return nil, ErrInvalidKEK
		}
		return nil, fmt.Errorf("unwrap master key: %w", err)
	}
	if !hmac.Equal(commitment(plaintext), commitmentTag) {
		memguard.WipeBytes(plaintext)
		return nil, ErrCommitmentMismatch
	}
	return &MasterKey{buf: memguard.NewBufferFromBytes(plaintext), keystoreID: keystoreID}, nil
}

func (k *MasterKey) CommitmentTag() ([]byte, error) {
	if err := k.ensureAlive(); err != nil {
		return nil, err
	}
	return commitment(k.buf.Bytes()), nil
}

// SealItem encrypts an item payload with a key derived for that item alone.
func (k *MasterKey) SealItem(itemID string, plaintext []byte) (EncryptedBlob, error) {
	dek, err := k.itemKey(itemID)
	if err != nil {
		return EncryptedBlob{}, err
	}
	defer memguard.WipeBytes(dek)

	blob, err := Seal(dek, plaintext, itemAssociatedData(k.keystoreID, itemID))
	if err != nil {
		return EncryptedBlob{}, fmt.Errorf("seal item: %w", err)
	}
	return blob, nil
}

func (k *MasterKey) OpenItem(itemID string, blob EncryptedBlob) ([]byte, error) {
	dek, err := k.itemKey(itemID)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(dek)

	return Open(dek, blob, itemAssociatedData(k.keystoreID, itemID))
}

func (k *MasterKey) Alive() bool {
	return k != nil && k.buf != nil && k.buf.IsAlive()
}

func (k *MasterKey) Destroy() {
	if k == nil || k.buf == nil {
		return
	}
	if k.buf.IsAlive() {
		k.buf.Destroy()
	}
	k.buf = nil
}

func (k *MasterKey) itemKey(itemID string) ([]byte, error) {
	if err := k.ensureAlive(); err != nil {
		return nil, err
	}
	info := []byte(itemKeyVersion + ":item:" + itemID)
	dek, err := DeriveSubkey(k.buf.Bytes(), nil, info, chacha20poly1305.KeySize)
	if err != nil {
		return nil, fmt.Errorf("derive item key: %w", err)
	}
	return dek, nil
}

func (k *MasterKey) ensureAlive() error {
	if !k.Alive() {
		return ErrMasterKeyDestroyed
	}
	return nil
}

func commitment(key []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(keyCommitmentContext))
	return mac.Sum(nil)
}

func wrapAssociatedData(keystoreID string) []byte {
	return []byte("keystash-master:" + keystoreID)
}

func itemAssociatedData(keystoreID, itemID string) []byte {
	return []byte("keystash-item:" + keystoreID + ":" + itemKeyVersion + ":" + itemID)
}
