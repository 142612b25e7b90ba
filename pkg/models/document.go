package models

import (
	"bytes"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/quilldb/quill.go/pkg/constants"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	// Core Deterministic Encoding so that equal field maps always produce
	// equal bytes. Document state comparison throughout the core is a byte
	// comparison on this encoding.
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}

	decOpts := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any{}),
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(err)
	}
}

// Document is the stored state of one key: its canonical CBOR-encoded field
// map plus the commit version the backend assigned to it. Version 0 means
// the document has only been applied locally and not yet acknowledged.
type Document struct {
	Key     DocumentKey
	Data    []byte
	Version int64
}

// DataAs unmarshals the document's fields into dst, which must be a pointer.
func (d Document) DataAs(dst any) error {
	return decMode.Unmarshal(d.Data, dst)
}

// Fields decodes the document's field map.
func (d Document) Fields() (map[string]any, error) {
	var fields map[string]any
	if err := decMode.Unmarshal(d.Data, &fields); err != nil {
		return nil, fmt.Errorf("decoding document %s: %w", d.Key, err)
	}
	return fields, nil
}

// ContentEqual reports whether two documents hold the same key and field
// data, ignoring versions and metadata.
func (d Document) ContentEqual(other Document) bool {
	return d.Key == other.Key && bytes.Equal(d.Data, other.Data)
}

// EncodeFields encodes v, which must encode to a CBOR map (a struct or a
// map), into the canonical document data representation.
func EncodeFields(v any) ([]byte, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", constants.ErrInvalidValue, err)
	}
	// Major type 5 is a CBOR map. Anything else is not a document shape.
	if len(data) == 0 || data[0]>>5 != 5 {
		return nil, fmt.Errorf("%w: %T does not encode to a map", constants.ErrInvalidValue, v)
	}
	return data, nil
}

// EncodeValue encodes one field value.
func EncodeValue(v any) ([]byte, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", constants.ErrInvalidValue, err)
	}
	return data, nil
}

// DecodeValue decodes one field value into its generic representation.
func DecodeValue(data []byte) (any, error) {
	var v any
	if err := decMode.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
