package compress

import (
	"bytes"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/bp4/errs"
	"github.com/arloliu/bp4/format"
)

func payload() []byte {
	// repetitive float-like payload, compressible by every operator
	return bytes.Repeat([]byte{0, 0, 0x80, 0x3f, 0, 0, 0, 0x40}, 512)
}

func TestOperators_RoundTrip(t *testing.T) {
	for _, typ := range []format.CompressionType{
		format.CompressionNone, format.CompressionZstd, format.CompressionS2, format.CompressionLZ4,
	} {
		t.Run(typ.String(), func(t *testing.T) {
			op, err := Get(typ)
			require.NoError(t, err)
			require.Equal(t, typ, op.Type())

			raw := payload()
			stored, err := op.Compress(nil, raw)
			require.NoError(t, err)
			if typ != format.CompressionNone {
				assert.Less(t, len(stored), len(raw))
			}

			restored, err := op.Decompress(stored, len(raw))
			require.NoError(t, err)
			assert.Equal(t, raw, restored)
		})
	}
}

func TestOperators_AppendToDst(t *testing.T) {
	op, err := Get(format.CompressionS2)
	require.NoError(t, err)

	prefix := []byte("head")
	out, err := op.Compress(append([]byte(nil), prefix...), payload())
	require.NoError(t, err)
	assert.Equal(t, prefix, out[:4])

	restored, err := op.Decompress(out[4:], len(payload()))
	require.NoError(t, err)
	assert.Equal(t, payload(), restored)
}

func TestOperators_EmptyPayload(t *testing.T) {
	for _, typ := range []format.CompressionType{format.CompressionZstd, format.CompressionS2, format.CompressionLZ4} {
		op, err := Get(typ)
		require.NoError(t, err)

		stored, err := op.Compress(nil, nil)
		require.NoError(t, err)
		restored, err := op.Decompress(stored, 0)
		require.NoError(t, err)
		assert.Empty(t, restored)
	}
}

func TestOperators_WrongRawSize(t *testing.T) {
	for _, typ := range []format.CompressionType{format.CompressionNone, format.CompressionZstd} {
		op, err := Get(typ)
		require.NoError(t, err)

		stored, err := op.Compress(nil, payload())
		require.NoError(t, err)
		_, err = op.Decompress(stored, len(payload())+1)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errs.ErrFormat))
	}
}

func TestOperators_CorruptInput(t *testing.T) {
	op, err := Get(format.CompressionZstd)
	require.NoError(t, err)

	_, err = op.Decompress([]byte("not zstd at all"), 64)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrFormat))
}

func TestGet(t *testing.T) {
	op, err := Get(0)
	require.NoError(t, err)
	assert.Equal(t, format.CompressionNone, op.Type())

	_, err = Get(format.CompressionType(99))
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))
}

func TestParse(t *testing.T) {
	typ, err := Parse("ZSTD")
	require.NoError(t, err)
	assert.Equal(t, format.CompressionZstd, typ)

	typ, err = Parse("lz4")
	require.NoError(t, err)
	assert.Equal(t, format.CompressionLZ4, typ)

	_, err = Parse("bzip2")
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))
}
