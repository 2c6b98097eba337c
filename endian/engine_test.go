package endian

import (
	"encoding/binary"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestCheckEndianness(t *testing.T) {
	require := require.New(t)

	result := CheckEndianness()

	var testValue uint16 = 0x0102
	testBytes := (*[2]byte)(unsafe.Pointer(&testValue))

	switch testBytes[0] {
	case 0x01:
		require.Equal(binary.BigEndian, result)
	case 0x02:
		require.Equal(binary.LittleEndian, result)
	default:
		require.Failf("Unexpected byte value", "got: %v", testBytes[0])
	}
}

func TestIsNativeEndiannessInverse(t *testing.T) {
	require.NotEqual(t, IsNativeLittleEndian(), IsNativeBigEndian())
}

func TestCompareNativeEndian(t *testing.T) {
	if IsNativeLittleEndian() {
		require.True(t, CompareNativeEndian(GetLittleEndianEngine()))
		require.False(t, CompareNativeEndian(GetBigEndianEngine()))
	} else {
		require.False(t, CompareNativeEndian(GetLittleEndianEngine()))
		require.True(t, CompareNativeEndian(GetBigEndianEngine()))
	}
}

func TestEngineFor(t *testing.T) {
	require.Equal(t, binary.LittleEndian, EngineFor(true))
	require.Equal(t, binary.BigEndian, EngineFor(false))
	require.True(t, IsLittleEndian(EngineFor(true)))
	require.False(t, IsLittleEndian(EngineFor(false)))
	require.True(t, CompareNativeEndian(NativeEngine()))
}

func TestHeaderByte(t *testing.T) {
	require.Equal(t, byte(0), HeaderByte(GetLittleEndianEngine()))
	require.Equal(t, byte(1), HeaderByte(GetBigEndianEngine()))

	if IsNativeLittleEndian() {
		require.Equal(t, byte(0), NativeHeaderByte())
	} else {
		require.Equal(t, byte(1), NativeHeaderByte())
	}
}

func TestWriterEngine(t *testing.T) {
	engine := WriterEngine()
	if ReverseEndianBuild {
		require.False(t, CompareNativeEndian(engine))
	} else {
		require.True(t, CompareNativeEndian(engine))
	}
}

func TestEndianEngines(t *testing.T) {
	littleEngine := GetLittleEndianEngine()
	bigEngine := GetBigEndianEngine()

	var v uint64 = 0x0102030405060708
	le := littleEngine.AppendUint64(nil, v)
	be := bigEngine.AppendUint64(nil, v)

	require.NotEqual(t, le, be)
	require.Equal(t, byte(0x08), le[0])
	require.Equal(t, byte(0x01), be[0])
	require.Equal(t, v, littleEngine.Uint64(le))
	require.Equal(t, v, bigEngine.Uint64(be))
}
