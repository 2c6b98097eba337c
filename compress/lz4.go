package compress

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/pierrec/lz4/v4"

	"github.com/arloliu/bp4/errs"
	"github.com/arloliu/bp4/format"
)

var lz4CompressorPool = sync.Pool{
	New: func() any {
		return &lz4.Compressor{}
	},
}

// LZ4 compresses payloads with LZ4 block compression.
type LZ4 struct{}

var _ Operator = LZ4{}

func (LZ4) Type() format.CompressionType { return format.CompressionLZ4 }

func (LZ4) Compress(dst, src []byte) ([]byte, error) {
	if len(src) == 0 {
		return dst, nil
	}

	block := make([]byte, lz4.CompressBlockBound(len(src)))

	lc, _ := lz4CompressorPool.Get().(*lz4.Compressor)
	defer lz4CompressorPool.Put(lc)

	n, err := lc.CompressBlock(src, block)
	if err != nil {
		return nil, errors.Wrap(err, "lz4 compression failed")
	}
	if n == 0 {
		return nil, errors.Wrap(errs.ErrInvalidArgument, "lz4 produced no output")
	}

	return append(dst, block[:n]...), nil
}

func (LZ4) Decompress(src []byte, rawSize int) ([]byte, error) {
	if rawSize == 0 {
		return []byte{}, nil
	}

	out := make([]byte, rawSize)
	n, err := lz4.UncompressBlock(src, out)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "lz4 decompression failed"), errs.ErrFormat)
	}

	return checkSize(out[:n], rawSize, "lz4")
}
