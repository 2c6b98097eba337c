// Package serializer encodes BP4 steps into the data, metadata and index buffers.
//
// A Serializer belongs to one writer rank. Each step it opens a process group in the data
// buffer at the first Put, appends variable blocks (immediately for synchronous puts, in a
// batch at PerformPuts for deferred ones) and closes the group at SerializeData. It keeps
// the rank's metadata for the steps not yet consolidated; after a flush the offsets are
// relocated to file positions, and AggregateCollectiveMetadata merges every rank's
// metadata on rank 0 into the metadata buffer and the per-step index table.
package serializer

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/arloliu/bp4/encoding"
	"github.com/arloliu/bp4/endian"
	"github.com/arloliu/bp4/errs"
	"github.com/arloliu/bp4/format"
	"github.com/arloliu/bp4/internal/collision"
	"github.com/arloliu/bp4/internal/hash"
	"github.com/arloliu/bp4/internal/options"
	"github.com/arloliu/bp4/internal/pool"
	"github.com/arloliu/bp4/internal/profile"
	"github.com/arloliu/bp4/section"
)

// openPG tracks the process group being written in the data buffer.
type openPG struct {
	start      int
	lengthAt   int
	varCountAt int
	varsLenAt  int
	varsStart  int
	varCount   uint32
	stepIndex  *localStep
}

// Serializer owns the three buffers of one writer rank.
type Serializer struct {
	rank     int
	engine   endian.EndianEngine
	params   Parameters
	logger   *zap.Logger
	profiler *profile.Profiler

	// Data holds process groups not yet flushed to the data file.
	Data *pool.Buffer
	// Metadata holds consolidated metadata not yet written, rank 0 only.
	Metadata *pool.Buffer
	// MetadataIndex holds index rows not yet written, rank 0 only.
	MetadataIndex *pool.Buffer

	// MetadataSet is the step and file-length accounting.
	MetadataSet MetadataSet
	// MetadataIndexTable maps a step to the absolute metadata file positions of its
	// PG, variable and attribute blocks and its end, filled on rank 0.
	MetadataIndexTable map[uint32][4]uint64
	// IndexHeader is the layout of the index file header written by MakeHeader.
	IndexHeader section.HeaderLayout

	ioName     string
	transports []string
	fileIndex  uint32

	pg           *openPG
	deferred     []pendingPut
	deferredSize int

	steps []*localStep

	attributes     []*Attribute
	attrSerialized map[string]bool
	members        *collision.Tracker
}

// Option configures a Serializer.
type Option = options.Option[*Serializer]

// WithLogger sets the serializer's logger.
func WithLogger(logger *zap.Logger) Option {
	return options.NoError(func(s *Serializer) {
		if logger != nil {
			s.logger = logger
		}
	})
}

// WithProfiler records buffering, memcpy and minmax timers on p.
func WithProfiler(p *profile.Profiler) Option {
	return options.NoError(func(s *Serializer) {
		s.profiler = p
	})
}

// WithEngine sets the byte order of everything the serializer writes.
func WithEngine(engine endian.EndianEngine) Option {
	return options.New(func(s *Serializer) error {
		if engine == nil {
			return errors.Wrap(errs.ErrInvalidArgument, "nil endian engine")
		}
		s.engine = engine

		return nil
	})
}

// New creates the serializer of rank with params.
func New(rank int, params Parameters, opts ...Option) (*Serializer, error) {
	s := &Serializer{
		rank:               rank,
		engine:             endian.WriterEngine(),
		params:             params,
		logger:             zap.NewNop(),
		MetadataSet:        NewMetadataSet(),
		MetadataIndexTable: make(map[uint32][4]uint64),
		attrSerialized:     make(map[string]bool),
		members:            collision.NewTracker(),
	}
	if err := options.Apply(s, opts...); err != nil {
		return nil, err
	}

	s.Data = pool.NewBuffer(params.BufferGrowthFactor, int(params.MaxBufferSize)) //nolint:gosec
	s.Metadata = pool.NewBuffer(params.BufferGrowthFactor, 0)
	s.MetadataIndex = pool.NewBuffer(params.BufferGrowthFactor, 0)
	if err := s.Data.Resize(int(params.InitialBufferSize), "initializing data buffer"); err != nil { //nolint:gosec
		return nil, err
	}

	return s, nil
}

// Engine returns the byte order the serializer writes.
func (s *Serializer) Engine() endian.EndianEngine { return s.engine }

// Parameters returns the parameters the serializer was created with.
func (s *Serializer) Parameters() Parameters { return s.params }

// Rank returns the writer rank.
func (s *Serializer) Rank() int { return s.rank }

// SetIO records the IO name, transport types and data subfile written into process groups.
func (s *Serializer) SetIO(ioName string, transports []string, fileIndex int) {
	s.ioName = ioName
	s.transports = append([]string(nil), transports...)
	s.fileIndex = uint32(fileIndex) //nolint:gosec
}

// MakeHeader writes the header of a kind file into buf. For the index file the layout is
// kept in IndexHeader so the active flag can be rewritten later.
func (s *Serializer) MakeHeader(buf *pool.Buffer, kind format.FileKind, rewrite bool) (section.HeaderLayout, error) {
	layout, err := section.MakeHeader(buf, kind, s.engine, kind == format.FileIndexTable, rewrite)
	if err != nil {
		return section.HeaderLayout{}, errors.Wrapf(err, "%s header", kind)
	}
	if kind == format.FileIndexTable {
		s.IndexHeader = layout
	}

	return layout, nil
}

// PutProcessGroupIndex opens the process group of the current step in the data buffer and
// records its index entry. It is a no-op when the group is already open.
func (s *Serializer) PutProcessGroupIndex() error {
	if s.pg != nil {
		return nil
	}

	step := &localStep{timeStep: s.MetadataSet.TimeStep, varIdx: make(map[string]int)}
	enc := encoding.NewEncoder(s.Data, s.engine)

	pg := &openPG{start: enc.Position(), stepIndex: step}
	enc.PutBytes([]byte(section.PGStartMarker))
	pg.lengthAt = enc.Reserve(8)
	enc.PutString(s.ioName)
	enc.PutUint8(section.HostLanguageRowMajor)
	enc.PutUint32(s.MetadataSet.TimeStep)
	enc.PutUint8(uint8(len(s.transports))) //nolint:gosec
	for _, t := range s.transports {
		enc.PutString(t)
	}
	pg.varCountAt = enc.Reserve(4)
	pg.varsLenAt = enc.Reserve(8)
	pg.varsStart = enc.Position()
	if err := enc.Err(); err != nil {
		return errors.Wrap(err, "process group header")
	}

	step.pg = section.PGIndexEntry{
		IOName:     s.ioName,
		Rank:       uint32(s.rank), //nolint:gosec
		TimeStep:   s.MetadataSet.TimeStep,
		Offset:     uint64(pg.start), //nolint:gosec
		FileIndex:  s.fileIndex,
		Transports: append([]string(nil), s.transports...),
	}
	s.pg = pg

	return nil
}

// DefineAttribute registers an attribute; it is serialized with the next step.
func (s *Serializer) DefineAttribute(a *Attribute) error {
	for i, existing := range s.attributes {
		if existing.Name == a.Name {
			if s.attrSerialized[a.Name] {
				return errors.Wrapf(errs.ErrInvalidArgument, "attribute %q already written", a.Name)
			}
			s.attributes[i] = a

			return nil
		}
	}
	s.attributes = append(s.attributes, a)

	return nil
}

// SerializeData finishes the current step: pending deferred puts are performed, the
// process group is closed with the step's new attributes, and with advanceStep the step
// counters move on.
func (s *Serializer) SerializeData(advanceStep bool) error {
	s.profiler.Start("buffering")
	defer s.profiler.Stop("buffering")

	if err := s.PerformPuts(); err != nil {
		return err
	}
	if err := s.PutProcessGroupIndex(); err != nil {
		return err
	}

	pg := s.pg
	step := pg.stepIndex
	enc := encoding.NewEncoder(s.Data, s.engine)
	enc.PatchUint32(pg.varCountAt, pg.varCount)
	enc.PatchUint64(pg.varsLenAt, uint64(enc.Position()-pg.varsStart)) //nolint:gosec

	attrCountAt := enc.Reserve(4)
	attrsLenAt := enc.Reserve(8)
	attrsStart := enc.Position()
	attrCount := uint32(0)
	for _, a := range s.attributes {
		if s.attrSerialized[a.Name] {
			continue
		}
		entry, err := s.writeAttribute(enc, a)
		if err != nil {
			return err
		}
		step.attrs = append(step.attrs, entry)
		s.attrSerialized[a.Name] = true
		attrCount++
	}
	enc.PatchUint32(attrCountAt, attrCount)
	enc.PatchUint64(attrsLenAt, uint64(enc.Position()-attrsStart)) //nolint:gosec

	enc.PutBytes([]byte(section.PGEndMarker))
	enc.PatchUint64(pg.lengthAt, uint64(enc.Position()-pg.lengthAt-8)) //nolint:gosec
	if err := enc.Err(); err != nil {
		return errors.Wrap(err, "closing process group")
	}

	step.pg.Length = uint64(enc.Position() - pg.start) //nolint:gosec
	s.steps = append(s.steps, step)
	s.pg = nil
	s.MetadataSet.DataPGCount++

	if advanceStep {
		s.MetadataSet.Advance()
	}

	return nil
}

func (s *Serializer) writeAttribute(enc *encoding.Encoder, a *Attribute) (section.ElementIndex, error) {
	vals, err := resolveValues(a.Type, a.Value)
	if err != nil {
		return section.ElementIndex{}, errors.Wrapf(err, "attribute %q", a.Name)
	}

	start := enc.Position()
	chars := section.Characteristics{
		Value:     encodeValues(vals, s.engine),
		Offset:    uint64(start), //nolint:gosec
		TimeIndex: s.MetadataSet.TimeStep,
		FileIndex: s.fileIndex,
	}
	shape := format.ShapeGlobalValue
	if isArray(a.Value) {
		shape = format.ShapeGlobalArray
		n := uint64(vals.Len()) //nolint:gosec
		chars.Dimensions = []section.Dimension{{Shape: n, Start: 0, Count: n}}
	}

	entry := section.ElementIndex{
		MemberID: hash.MemberID(a.Name),
		Name:     a.Name,
		Type:     a.Type,
		Shape:    shape,
		Sets:     []section.Characteristics{chars},
	}

	enc.PutBytes([]byte(section.AttrStartMarker))
	lengthAt := enc.Reserve(4)
	enc.PutUint32(entry.MemberID)
	enc.PutString(a.Name)
	enc.PutUint8(uint8(a.Type))
	enc.PutUint8(uint8(shape))
	chars.WriteTo(enc)
	enc.PutBytes([]byte(section.AttrEndMarker))
	enc.PatchUint32(lengthAt, uint32(enc.Position()-lengthAt-4)) //nolint:gosec
	if err := enc.Err(); err != nil {
		return section.ElementIndex{}, errors.Wrapf(err, "attribute %q", a.Name)
	}

	return entry, nil
}

// ResetBuffer empties buf after its contents reached the file. With resetAbsolute false
// the buffer's absolute position keeps counting the discarded bytes.
func (s *Serializer) ResetBuffer(buf *pool.Buffer, resetAbsolute bool) {
	buf.Reset(resetAbsolute)
}

// DeferredCount returns the number of queued deferred puts.
func (s *Serializer) DeferredCount() int { return len(s.deferred) }

// DeferredSize returns the payload bytes of the queued deferred puts.
func (s *Serializer) DeferredSize() int { return s.deferredSize }

// ClearDeferred drops queued deferred puts without writing them.
func (s *Serializer) ClearDeferred() {
	s.deferred = s.deferred[:0]
	s.deferredSize = 0
}

// HasOpenProcessGroup reports whether the current step has data in the buffer.
func (s *Serializer) HasOpenProcessGroup() bool { return s.pg != nil }
