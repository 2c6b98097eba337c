package section

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/bp4/encoding"
	"github.com/arloliu/bp4/endian"
	"github.com/arloliu/bp4/errs"
	"github.com/arloliu/bp4/format"
	"github.com/arloliu/bp4/internal/pool"
)

func sampleStep() StepMetadata {
	engine := endian.GetLittleEndianEngine()

	return StepMetadata{
		TimeStep: 3,
		PGs: []PGIndexEntry{
			{IOName: "sim", Rank: 0, TimeStep: 3, Offset: 64, Length: 200, FileIndex: 0, Transports: []string{"File_vfs"}},
			{IOName: "sim", Rank: 1, TimeStep: 3, Offset: 264, Length: 200, FileIndex: 0, Transports: []string{"File_vfs"}},
		},
		Variables: []ElementIndex{
			{
				MemberID: 7, GroupName: "sim", Name: "temperature", Type: format.TypeInt32, Shape: format.ShapeGlobalArray,
				Sets: []Characteristics{
					{
						Min: encoding.BytesOf(engine, []int32{-1}), Max: encoding.BytesOf(engine, []int32{9}),
						Offset: 100, PayloadOffset: 140, PayloadSize: 40, TimeIndex: 3, FileIndex: 0,
						Dimensions: []Dimension{{Shape: 20, Start: 0, Count: 10}},
					},
					{
						Offset: 300, PayloadOffset: 340, PayloadSize: 12, TimeIndex: 3, FileIndex: 0,
						Dimensions: []Dimension{{Shape: 20, Start: 10, Count: 10}},
						Operator:   format.CompressionZstd, RawSize: 40,
					},
				},
			},
		},
		Attributes: []ElementIndex{
			{
				MemberID: 9, GroupName: "sim", Name: "units", Type: format.TypeString, Shape: format.ShapeGlobalValue,
				Sets: []Characteristics{{Value: []byte("kelvin"), Offset: 230, TimeIndex: 1}},
			},
		},
	}
}

func TestStepMetadata_RoundTrip(t *testing.T) {
	for _, engine := range []endian.EndianEngine{endian.GetLittleEndianEngine(), endian.GetBigEndianEngine()} {
		step := sampleStep()
		buf := pool.NewBuffer(0, 0)
		_, err := buf.Write(make([]byte, HeaderSize))
		require.NoError(t, err)

		enc := encoding.NewEncoder(buf, engine)
		off := step.WriteTo(enc)
		require.NoError(t, enc.Err())

		assert.Equal(t, HeaderSize, off.PGIndexStart)
		assert.Less(t, off.PGIndexStart, off.VarIndexStart)
		assert.Less(t, off.VarIndexStart, off.AttrIndexStart)
		assert.Less(t, off.AttrIndexStart, off.End)
		assert.Equal(t, buf.Position(), off.End)

		row := IndexRow{
			Step: 3, PGIndexStart: uint64(off.PGIndexStart), VarIndexStart: uint64(off.VarIndexStart),
			AttrIndexStart: uint64(off.AttrIndexStart), StepEndPos: uint64(off.End),
		}
		got, err := ParseStepMetadataAt(buf.Bytes(), 0, row, engine)
		require.NoError(t, err)
		assert.Equal(t, step, got)
	}
}

func TestStepMetadata_Empty(t *testing.T) {
	buf := pool.NewBuffer(0, 0)
	enc := encoding.NewEncoder(buf, endian.GetLittleEndianEngine())
	empty := StepMetadata{}
	off := empty.WriteTo(enc)
	require.NoError(t, enc.Err())
	assert.Equal(t, 16+12+12, off.End)

	got, err := ParseStepMetadata(encoding.NewDecoder(buf.Bytes(), endian.GetLittleEndianEngine()))
	require.NoError(t, err)
	assert.Empty(t, got.PGs)
	assert.Empty(t, got.Variables)
	assert.Empty(t, got.Attributes)
}

func TestParseStepMetadataAt_OutOfRange(t *testing.T) {
	row := IndexRow{Step: 1, PGIndexStart: 10, VarIndexStart: 20, AttrIndexStart: 30, StepEndPos: 500}
	_, err := ParseStepMetadataAt(make([]byte, 100), 0, row, endian.GetLittleEndianEngine())
	assert.True(t, errors.Is(err, errs.ErrFormat))
}

func TestParseStepMetadata_Corrupt(t *testing.T) {
	step := sampleStep()
	buf := pool.NewBuffer(0, 0)
	enc := encoding.NewEncoder(buf, endian.GetLittleEndianEngine())
	off := step.WriteTo(enc)
	require.NoError(t, enc.Err())

	data := append([]byte(nil), buf.Bytes()...)
	// corrupt the first characteristic id of the variable block
	data[off.VarIndexStart+12+4+4+2+3+2+11+1+1+8+1+4] = 0xee

	_, err := ParseStepMetadata(encoding.NewDecoder(data, endian.GetLittleEndianEngine()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrFormat))
}

func TestCharacteristics_Relocate(t *testing.T) {
	c := Characteristics{Offset: 10, PayloadOffset: 30, Dimensions: []Dimension{{Shape: 8, Start: 2, Count: 3}}}
	c.Relocate(1000)

	assert.Equal(t, uint64(1010), c.Offset)
	assert.Equal(t, uint64(1030), c.PayloadOffset)
	assert.Equal(t, []uint64{8}, c.Shape())
	assert.Equal(t, []uint64{2}, c.Start())
	assert.Equal(t, []uint64{3}, c.Count())
}

func TestPGIndexEntry_RoundTrip(t *testing.T) {
	entry := PGIndexEntry{IOName: "io", ColumnMajor: true, Rank: 4, TimeStep: 2, Offset: 1, Length: 2, FileIndex: 1, Transports: []string{"a", "b"}}

	buf := pool.NewBuffer(0, 0)
	enc := encoding.NewEncoder(buf, endian.GetBigEndianEngine())
	entry.WriteTo(enc)
	require.NoError(t, enc.Err())

	got, err := ParsePGIndexEntry(encoding.NewDecoder(buf.Bytes(), endian.GetBigEndianEngine()))
	require.NoError(t, err)
	assert.Equal(t, entry, got)
}

func TestCharacteristics_EncodedSize(t *testing.T) {
	engine := endian.GetLittleEndianEngine()
	for _, v := range sampleStep().Variables[0].Sets {
		c := v
		buf := pool.NewBuffer(0, 0)
		enc := encoding.NewEncoder(buf, engine)
		c.WriteTo(enc)
		require.NoError(t, enc.Err())
		assert.Equal(t, enc.Position(), c.EncodedSize())
	}

	c := Characteristics{Value: engine.AppendUint32(nil, 5), Offset: 1, PayloadSize: 4}
	buf := pool.NewBuffer(0, 0)
	enc := encoding.NewEncoder(buf, engine)
	c.WriteTo(enc)
	assert.Equal(t, len(buf.Bytes()), c.EncodedSize())
}
