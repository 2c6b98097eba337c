// Package compress provides the optional operators applied to variable block payloads.
//
// An operator transforms the encoded payload of one block before it is copied into the data
// buffer. The block's characteristics record the operator type and the raw payload size, so a
// reader can reverse the transformation without any other knowledge of the writer:
//
//	op, err := compress.Get(format.CompressionZstd)
//	stored, err := op.Compress(nil, payload)
//	...
//	payload, err = op.Decompress(stored, rawSize)
//
// The serializer itself only handles raw bytes; operators are layered on top per variable.
package compress

import (
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/arloliu/bp4/errs"
	"github.com/arloliu/bp4/format"
)

// Operator compresses and restores block payloads.
type Operator interface {
	// Type returns the value recorded in the block characteristics.
	Type() format.CompressionType
	// Compress appends the compressed form of src to dst.
	Compress(dst, src []byte) ([]byte, error)
	// Decompress restores a payload whose original size was rawSize.
	Decompress(src []byte, rawSize int) ([]byte, error)
}

var builtinOperators = map[format.CompressionType]Operator{
	format.CompressionNone: NoOp{},
	format.CompressionZstd: Zstd{},
	format.CompressionS2:   S2{},
	format.CompressionLZ4:  LZ4{},
}

// Get returns the built-in operator for t. The zero type maps to NoOp.
func Get(t format.CompressionType) (Operator, error) {
	if t == 0 {
		t = format.CompressionNone
	}
	if op, ok := builtinOperators[t]; ok {
		return op, nil
	}

	return nil, errors.Wrapf(errs.ErrInvalidArgument, "unsupported operator %s (%d)", t, uint8(t))
}

// Parse returns the operator type named s ("none", "zstd", "s2", "lz4"), case-insensitive.
func Parse(s string) (format.CompressionType, error) {
	for t := range builtinOperators {
		if strings.EqualFold(t.String(), s) {
			return t, nil
		}
	}

	return 0, errors.Wrapf(errs.ErrInvalidArgument, "unknown operator %q", s)
}

func checkSize(got []byte, rawSize int, name string) ([]byte, error) {
	if len(got) != rawSize {
		return nil, errors.Wrapf(errs.ErrFormat, "%s payload restored to %d bytes, expected %d", name, len(got), rawSize)
	}

	return got, nil
}
