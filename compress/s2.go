package compress

import (
	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/s2"

	"github.com/arloliu/bp4/errs"
	"github.com/arloliu/bp4/format"
)

// S2 compresses payloads with the S2 extension of Snappy.
type S2 struct{}

var _ Operator = S2{}

func (S2) Type() format.CompressionType { return format.CompressionS2 }

func (S2) Compress(dst, src []byte) ([]byte, error) {
	return append(dst, s2.Encode(nil, src)...), nil
}

func (S2) Decompress(src []byte, rawSize int) ([]byte, error) {
	if rawSize == 0 {
		return []byte{}, nil
	}

	out, err := s2.Decode(make([]byte, rawSize), src)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "s2 decompression failed"), errs.ErrFormat)
	}

	return checkSize(out, rawSize, "s2")
}
