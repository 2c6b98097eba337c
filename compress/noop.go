package compress

import "github.com/arloliu/bp4/format"

// NoOp stores payloads unchanged.
type NoOp struct{}

var _ Operator = NoOp{}

func (NoOp) Type() format.CompressionType { return format.CompressionNone }

func (NoOp) Compress(dst, src []byte) ([]byte, error) {
	return append(dst, src...), nil
}

func (NoOp) Decompress(src []byte, rawSize int) ([]byte, error) {
	return checkSize(src, rawSize, "none")
}
