// Package format defines the closed enumerations written into BP4 files and used by the engine API.
package format

import (
	"strings"
)

type (
	// DataType identifies the element type of a variable or attribute.
	DataType uint8
	// ShapeID classifies how a variable's blocks relate to a global shape.
	ShapeID uint8
	// CompressionType identifies the operator applied to a block payload.
	CompressionType uint8
	// OpenMode selects how an engine opens a dataset.
	OpenMode uint8
	// PutMode selects whether a Put copies its payload immediately.
	PutMode uint8
	// StepMode is the mode argument of BeginStep.
	StepMode uint8
	// StepStatus is the result of BeginStep.
	StepStatus uint8
	// FileKind names the three files of a dataset.
	FileKind uint8
)

const (
	TypeInt8    DataType = 0
	TypeInt16   DataType = 1
	TypeInt32   DataType = 2
	TypeInt64   DataType = 4
	TypeFloat32 DataType = 5
	TypeFloat64 DataType = 6
	TypeString  DataType = 9
	TypeUint8   DataType = 50
	TypeUint16  DataType = 51
	TypeUint32  DataType = 52
	TypeUint64  DataType = 54
	// TypeCompound is recognized so it can be rejected explicitly.
	TypeCompound DataType = 0x7e
	TypeUnknown  DataType = 0x7f
)

const (
	ShapeUnknown     ShapeID = 0x0
	ShapeGlobalValue ShapeID = 0x1 // ShapeGlobalValue is a single value shared by all ranks.
	ShapeGlobalArray ShapeID = 0x2 // ShapeGlobalArray is an N-d array with a global shape and per-rank blocks.
	ShapeLocalValue  ShapeID = 0x3 // ShapeLocalValue is one value per rank.
	ShapeLocalArray  ShapeID = 0x4 // ShapeLocalArray is an array per rank with no global shape.
)

const (
	CompressionNone CompressionType = 0x1 // CompressionNone represents no compression.
	CompressionZstd CompressionType = 0x2 // CompressionZstd represents Zstandard compression.
	CompressionS2   CompressionType = 0x3 // CompressionS2 represents S2 compression.
	CompressionLZ4  CompressionType = 0x4 // CompressionLZ4 represents LZ4 compression.
)

const (
	ModeWrite OpenMode = iota + 1
	ModeAppend
	ModeReadRandomAccess
)

const (
	PutSync PutMode = iota + 1
	PutDeferred
)

const (
	StepAppend StepMode = iota + 1
	StepUpdate
	StepRead
)

const (
	StepOK StepStatus = iota
	StepNotReady
	StepEndOfStream
	StepOtherError
)

const (
	FileData FileKind = iota + 1
	FileMetadata
	FileIndexTable
)

func (d DataType) String() string {
	switch d {
	case TypeInt8:
		return "int8"
	case TypeInt16:
		return "int16"
	case TypeInt32:
		return "int32"
	case TypeInt64:
		return "int64"
	case TypeUint8:
		return "uint8"
	case TypeUint16:
		return "uint16"
	case TypeUint32:
		return "uint32"
	case TypeUint64:
		return "uint64"
	case TypeFloat32:
		return "float32"
	case TypeFloat64:
		return "float64"
	case TypeString:
		return "string"
	case TypeCompound:
		return "compound"
	default:
		return "unknown"
	}
}

// Size returns the encoded size in bytes of one element, 0 for variable-length or unknown types.
func (d DataType) Size() int {
	switch d {
	case TypeInt8, TypeUint8:
		return 1
	case TypeInt16, TypeUint16:
		return 2
	case TypeInt32, TypeUint32, TypeFloat32:
		return 4
	case TypeInt64, TypeUint64, TypeFloat64:
		return 8
	default:
		return 0
	}
}

// IsNumeric reports whether d is a fixed-size numeric type.
func (d DataType) IsNumeric() bool {
	return d.Size() > 0
}

// IsSupported reports whether the serializer can encode d.
func (d DataType) IsSupported() bool {
	return d.IsNumeric() || d == TypeString
}

// ParseDataType returns the DataType named s, as printed by String.
func ParseDataType(s string) DataType {
	for _, d := range []DataType{
		TypeInt8, TypeInt16, TypeInt32, TypeInt64,
		TypeUint8, TypeUint16, TypeUint32, TypeUint64,
		TypeFloat32, TypeFloat64, TypeString, TypeCompound,
	} {
		if strings.EqualFold(d.String(), s) {
			return d
		}
	}

	return TypeUnknown
}

func (s ShapeID) String() string {
	switch s {
	case ShapeGlobalValue:
		return "GlobalValue"
	case ShapeGlobalArray:
		return "GlobalArray"
	case ShapeLocalValue:
		return "LocalValue"
	case ShapeLocalArray:
		return "LocalArray"
	default:
		return "Unknown"
	}
}

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionZstd:
		return "Zstd"
	case CompressionS2:
		return "S2"
	case CompressionLZ4:
		return "LZ4"
	default:
		return "Unknown"
	}
}

func (m OpenMode) String() string {
	switch m {
	case ModeWrite:
		return "Write"
	case ModeAppend:
		return "Append"
	case ModeReadRandomAccess:
		return "ReadRandomAccess"
	default:
		return "Unknown"
	}
}

func (m PutMode) String() string {
	switch m {
	case PutSync:
		return "Sync"
	case PutDeferred:
		return "Deferred"
	default:
		return "Unknown"
	}
}

func (m StepMode) String() string {
	switch m {
	case StepAppend:
		return "Append"
	case StepUpdate:
		return "Update"
	case StepRead:
		return "Read"
	default:
		return "Unknown"
	}
}

func (s StepStatus) String() string {
	switch s {
	case StepOK:
		return "OK"
	case StepNotReady:
		return "NotReady"
	case StepEndOfStream:
		return "EndOfStream"
	default:
		return "OtherError"
	}
}

func (k FileKind) String() string {
	switch k {
	case FileData:
		return "Data"
	case FileMetadata:
		return "Metadata"
	case FileIndexTable:
		return "Index Table"
	default:
		return "Unknown"
	}
}
