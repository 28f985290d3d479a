// Package codec turns arbitrary Go values into byte buffers and back.
package codec

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownCodec = errors.New("codec: unknown codec")

// Codec marshals values to bytes and unmarshals bytes into a destination
// pointer.
type Codec interface {
	Name() string
	Marshal(value any) ([]byte, error)
	Unmarshal(data []byte, dst any) error
}

var (
	JSON Codec = jsonCodec{}
	CBOR Codec = cborCodec{}
)

// ByName resolves a codec from its configuration name. An empty name
// selects JSON.
func ByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return JSON, nil
	case "cbor":
		return CBOR, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}
