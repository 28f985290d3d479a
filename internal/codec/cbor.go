package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Core deterministic encoding keeps equal values byte-identical. Maps
// decoded into an interface come back keyed by string so they round-trip
// through JSON output.
var (
	cborEnc = mustEncMode(cbor.CoreDetEncOptions())
	cborDec = mustDecMode(cbor.DecOptions{DefaultMapType: reflect.TypeOf(map[string]any(nil))})
)

type cborCodec struct{}

func (cborCodec) Name() string { return "cbor" }

func (cborCodec) Marshal(value any) ([]byte, error) {
	return cborEnc.Marshal(value)
}

func (cborCodec) Unmarshal(data []byte, dst any) error {
	return cborDec.Unmarshal(data, dst)
}

func mustEncMode(opts cbor.EncOptions) cbor.EncMode {
	mode, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}

func mustDecMode(opts cbor.DecOptions) cbor.DecMode {
	mode, err := opts.DecMode()
	if err != nil {
		panic(err)
	}
	return mode
}
