package storage

import (
	"fmt"
	"log/slog"
	"reflect"

	"github.com/amanthanvi/keystash/internal/codec"
)

// Backend is the capability set every store implements. Get decodes into
// dst, which must be a non-nil pointer, and reports whether the key was
// present. Set fully replaces any existing entry under key.
type Backend interface {
	Set(key string, value any) error
	Get(key string, dst any) (bool, error)
	Remove(key string) error
	RemoveAll() error
}

// Set stores value under key.
func Set[T any](b Backend, key string, value T) error {
	return b.Set(key, value)
}

// Get reads the value stored under key as a T. A missing key yields the zero
// value, false and a nil error.
func Get[T any](b Backend, key string) (T, bool, error) {
	var value T
	found, err := b.Get(key, &value)
	if err != nil || !found {
		var zero T
		return zero, false, err
	}
	return value, true, nil
}

func validateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	return nil
}

// validateDestination rejects a Get target that no value could be written
// into. That is a caller bug, not a problem with stored data.
func validateDestination(dst any) error {
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return fmt.Errorf("%w: destination must be a non-nil pointer, got %T", ErrUnknown, dst)
	}
	return nil
}

func codecOrDefault(c codec.Codec) codec.Codec {
	if c == nil {
		return codec.JSON
	}
	return c
}

func loggerOrDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger
}
