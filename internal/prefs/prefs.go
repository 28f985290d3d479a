// Package prefs provides preference suites: named, synchronous key→bytes
// maps. A suite never fails a read; writes can fail only when the suite is
// persisted and the underlying file cannot be written.
package prefs

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidSuite = errors.New("prefs: invalid suite name")

const DefaultSuite = "standard"

// Client is the preference surface the storage adapters depend on.
// Implementations must be safe for concurrent use.
type Client interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte) error
	// Remove deletes key; removing an absent key is a no-op.
	Remove(key string) error
	AllKeys() []string
	// Clear removes every key at once; on failure the suite is unchanged.
	Clear() error
}

// ValidateSuite rejects names that cannot be used as a file name.
func ValidateSuite(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: name must not be empty", ErrInvalidSuite)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidSuite, name)
	case strings.ContainsAny(name, `/\`+"\x00"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidSuite, name)
	default:
		return nil
	}
}
