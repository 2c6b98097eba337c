// Package endian provides byte order utilities for the BP4 binary layout.
//
// BP4 files carry the byte order of the process that wrote them in a header byte. Writers
// always emit their native order (or the reverse order when built with the
// bp4_reverse_endian tag), readers pick the engine matching the header and swap on read.
//
// # Basic Usage
//
//	engine := endian.WriterEngine()
//	buf = engine.AppendUint64(buf, value)
//
//	// reading a file whose header says big-endian
//	engine = endian.EngineFor(false)
//	v := engine.Uint64(buf)
//
// # Thread Safety
//
// All functions in this package are safe for concurrent use. The returned EndianEngine
// instances are immutable and stateless.
package endian

import (
	"encoding/binary"
	"unsafe"
)

// EndianEngine combines ByteOrder and AppendByteOrder interfaces from encoding/binary
// into a single interface for convenient byte order operations.
type EndianEngine interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// CheckEndianness uses a fixed integer value to determine the host's byte order.
func CheckEndianness() binary.ByteOrder {
	// 0x0100 is 256. For a little-endian system, the LSB (0x00) is first.
	var i uint16 = 0x0100
	b := (*[2]byte)(unsafe.Pointer(&i))
	if b[0] == 0x01 {
		return binary.BigEndian
	}

	return binary.LittleEndian
}

func IsNativeLittleEndian() bool {
	return CheckEndianness() == binary.LittleEndian
}

func IsNativeBigEndian() bool {
	return CheckEndianness() == binary.BigEndian
}

// CompareNativeEndian reports whether engine matches the host byte order.
func CompareNativeEndian(engine EndianEngine) bool {
	return engine == CheckEndianness()
}

// GetLittleEndianEngine returns the little-endian engine.
func GetLittleEndianEngine() EndianEngine {
	return binary.LittleEndian
}

// GetBigEndianEngine returns the big-endian engine.
func GetBigEndianEngine() EndianEngine {
	return binary.BigEndian
}

// NativeEngine returns the engine matching the host byte order.
func NativeEngine() EndianEngine {
	return EngineFor(IsNativeLittleEndian())
}

// EngineFor returns the little-endian engine when littleEndian is true, the big-endian one otherwise.
func EngineFor(littleEndian bool) EndianEngine {
	if littleEndian {
		return binary.LittleEndian
	}

	return binary.BigEndian
}

// IsLittleEndian reports whether engine encodes little-endian.
func IsLittleEndian(engine EndianEngine) bool {
	return engine == binary.LittleEndian
}

// WriterEngine returns the byte order writers emit.
//
// It is the native order unless the binary was built with the bp4_reverse_endian tag,
// in which case writers emit the opposite order and appends to foreign-endian files are allowed.
func WriterEngine() EndianEngine {
	if ReverseEndianBuild {
		return EngineFor(!IsNativeLittleEndian())
	}

	return NativeEngine()
}

// HeaderByte returns the header endianness flag for engine: 0 for little-endian, 1 for big-endian.
func HeaderByte(engine EndianEngine) byte {
	if IsLittleEndian(engine) {
		return 0
	}

	return 1
}

// NativeHeaderByte returns the header endianness flag of the host.
func NativeHeaderByte() byte {
	return HeaderByte(NativeEngine())
}
