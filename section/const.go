package section

// File header layout. Every data, metadata and index file starts with HeaderSize bytes.
const (
	HeaderSize       = 64 // fixed header size in bytes
	VersionTagSize   = 24 // bytes [0, 24): printable version tag, zero padded
	MajorOffset      = 24 // ASCII major version digit
	MinorOffset      = 25 // ASCII minor version digit
	PatchOffset      = 26 // ASCII patch version digit
	EndiannessOffset = 28 // 0 = little-endian, 1 = big-endian
	BPVersionOffset  = 29 // format generation, always BPVersion
	ActiveFlagOffset = 30 // index file only: 1 while a writer has the dataset open

	BPVersion    = 4
	VersionMajor = 1
	VersionMinor = 0
	VersionPatch = 0
)

// IndexRowSize is the fixed size of one metadata index row: seven uint64 fields and 8 bytes of padding.
const IndexRowSize = 64

// Block markers framing process groups, variables and attributes in data files.
const (
	PGStartMarker   = "[PGI"
	PGEndMarker     = "PGI]"
	VarStartMarker  = "[VMD"
	VarEndMarker    = "VMD]"
	AttrStartMarker = "[AMD"
	AttrEndMarker   = "AMD]"
	MarkerSize      = 4
)

// Dataset file names, relative to the dataset directory.
const (
	DataFilePrefix    = "data."
	MetadataFileName  = "md.0"
	IndexFileName     = "md.idx"
	ProfilingFileName = "profiling.json"
)

// HostLanguageRowMajor is the PG host-language flag for row-major writers.
const HostLanguageRowMajor = 'n'
