package serializer

import (
	"slices"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/arloliu/bp4/compress"
	"github.com/arloliu/bp4/encoding"
	"github.com/arloliu/bp4/errs"
	"github.com/arloliu/bp4/format"
	"github.com/arloliu/bp4/section"
)

// putState is the lifecycle of one pending put.
type putState uint8

const (
	putQueued putState = iota
	putCommitted
)

// pendingPut is a block waiting to be copied into the data buffer.
type pendingPut struct {
	state    putState
	variable *Variable
	values   values
	shape    []uint64
	start    []uint64
	count    []uint64

	// filled while committing
	minV, maxV []byte
	stored     []byte // payload after the operator, nil when copied raw
	chars      section.Characteristics
	blockSize  int
	offset     int // payload offset in the data buffer once committed
}

// Put writes one block of v. A synchronous put copies the payload before returning; a
// deferred put only records it until PerformPuts. Both produce the same bytes.
func (s *Serializer) Put(v *Variable, data any, mode format.PutMode) error {
	p, err := s.newPendingPut(v, data)
	if err != nil {
		return err
	}

	switch mode {
	case format.PutSync:
		return s.commit([]pendingPut{p})
	case format.PutDeferred:
		s.deferred = append(s.deferred, p)
		s.deferredSize += p.values.Size()

		return nil
	default:
		return errors.Wrapf(errs.ErrInvalidArgument, "unknown put mode %d", mode)
	}
}

func (s *Serializer) newPendingPut(v *Variable, data any) (pendingPut, error) {
	if v == nil {
		return pendingPut{}, errors.Wrap(errs.ErrInvalidArgument, "nil variable")
	}
	if err := s.members.Track(v.Name, v.memberID); err != nil {
		return pendingPut{}, err
	}

	vals, err := resolveValues(v.Type, data)
	if err != nil {
		return pendingPut{}, errors.Wrapf(err, "variable %q", v.Name)
	}
	if want := v.Elements(); uint64(vals.Len()) != want { //nolint:gosec
		return pendingPut{}, errors.Wrapf(errs.ErrInvalidArgument, "variable %q: got %d elements, selection needs %d",
			v.Name, vals.Len(), want)
	}
	if v.Type == format.TypeString && vals.Size() > encoding.MaxStringLength {
		return pendingPut{}, errors.Wrapf(errs.ErrInvalidArgument, "variable %q: string of %d bytes too long", v.Name, vals.Size())
	}

	return pendingPut{
		state:    putQueued,
		variable: v,
		values:   vals,
		shape:    slices.Clone(v.Shape),
		start:    slices.Clone(v.Start),
		count:    slices.Clone(v.Count),
	}, nil
}

// PerformPuts commits every queued deferred put with a single buffer reservation.
func (s *Serializer) PerformPuts() error {
	if len(s.deferred) == 0 {
		return nil
	}

	err := s.commit(s.deferred)
	s.ClearDeferred()

	return err
}

// commit writes puts into the data buffer in three passes: a parallel pass computing
// statistics and operator output, a serial pass writing block headers and reserving
// payload regions, and a parallel pass copying payloads.
func (s *Serializer) commit(puts []pendingPut) error {
	if err := s.PutProcessGroupIndex(); err != nil {
		return err
	}

	if err := s.prepare(puts); err != nil {
		return err
	}

	total := 0
	for i := range puts {
		total += puts[i].blockSize
	}
	if err := s.Data.Reserve(total, "performing puts"); err != nil {
		return err
	}

	if err := s.writeHeaders(puts); err != nil {
		return err
	}

	return s.copyPayloads(puts)
}

func (s *Serializer) group() *errgroup.Group {
	g := &errgroup.Group{}
	g.SetLimit(max(s.params.Threads, 1))

	return g
}

func (s *Serializer) prepare(puts []pendingPut) error {
	s.profiler.Start("minmax")
	defer s.profiler.Stop("minmax")

	g := s.group()
	for i := range puts {
		p := &puts[i]
		g.Go(func() error {
			if s.params.StatsLevel > 0 && p.variable.Type.IsNumeric() && p.variable.ShapeID != format.ShapeGlobalValue {
				p.minV, p.maxV = p.values.MinMax(s.engine)
			}
			if op := p.variable.Operator; op != format.CompressionNone && op != 0 {
				operator, err := compress.Get(op)
				if err != nil {
					return errors.Wrapf(err, "variable %q", p.variable.Name)
				}
				stored, err := operator.Compress(nil, encodeValues(p.values, s.engine))
				if err != nil {
					return errors.Wrapf(err, "variable %q", p.variable.Name)
				}
				p.stored = stored
			}

			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i := range puts {
		p := &puts[i]
		p.chars = s.blockCharacteristics(p)
		p.blockSize = section.MarkerSize + 8 + 4 + 2 + len(p.variable.Name) + 2 +
			p.chars.EncodedSize() + int(p.chars.PayloadSize) + section.MarkerSize //nolint:gosec
	}

	return nil
}

func (s *Serializer) blockCharacteristics(p *pendingPut) section.Characteristics {
	v := p.variable
	c := section.Characteristics{
		Min:         p.minV,
		Max:         p.maxV,
		PayloadSize: uint64(p.values.Size()), //nolint:gosec
		TimeIndex:   s.MetadataSet.TimeStep,
		FileIndex:   s.fileIndex,
		Operator:    format.CompressionNone,
	}
	if p.stored != nil {
		c.Operator = v.Operator
		c.RawSize = c.PayloadSize
		c.PayloadSize = uint64(len(p.stored))
	}

	switch v.ShapeID {
	case format.ShapeGlobalValue, format.ShapeLocalValue:
		c.Value = encodeValues(p.values, s.engine)
	case format.ShapeGlobalArray:
		c.Dimensions = make([]section.Dimension, len(p.count))
		for i := range p.count {
			c.Dimensions[i] = section.Dimension{Shape: p.shape[i], Start: p.start[i], Count: p.count[i]}
		}
	case format.ShapeLocalArray:
		c.Dimensions = make([]section.Dimension, len(p.count))
		for i := range p.count {
			c.Dimensions[i] = section.Dimension{Count: p.count[i]}
		}
	}

	return c
}

func (s *Serializer) writeHeaders(puts []pendingPut) error {
	enc := encoding.NewEncoder(s.Data, s.engine)
	step := s.pg.stepIndex

	for i := range puts {
		p := &puts[i]
		v := p.variable

		blockStart := enc.Position()
		enc.PutBytes([]byte(section.VarStartMarker))
		lengthAt := enc.Reserve(8)
		enc.PutUint32(v.memberID)
		enc.PutString(v.Name)
		enc.PutUint8(uint8(v.Type))
		enc.PutUint8(uint8(v.ShapeID))

		p.chars.Offset = uint64(blockStart) //nolint:gosec
		p.chars.PayloadOffset = uint64(enc.Position() + p.chars.EncodedSize()) //nolint:gosec
		p.chars.WriteTo(enc)

		p.offset = enc.Position()
		enc.Slot(int(p.chars.PayloadSize)) //nolint:gosec
		enc.PutBytes([]byte(section.VarEndMarker))
		enc.PatchUint64(lengthAt, uint64(enc.Position()-lengthAt-8)) //nolint:gosec
		if err := enc.Err(); err != nil {
			return errors.Wrapf(err, "variable %q block", v.Name)
		}
		if uint64(p.offset) != p.chars.PayloadOffset { //nolint:gosec
			return errors.AssertionFailedf("variable %q payload at %d, recorded %d", v.Name, p.offset, p.chars.PayloadOffset)
		}

		step.addBlock(v, p.chars)
		s.pg.varCount++
		p.state = putCommitted
	}

	return nil
}

func (s *Serializer) copyPayloads(puts []pendingPut) error {
	s.profiler.Start("memcpy")
	defer s.profiler.Stop("memcpy")

	g := s.group()
	for i := range puts {
		p := &puts[i]
		dst := s.Data.At(p.offset, int(p.chars.PayloadSize)) //nolint:gosec
		g.Go(func() error {
			if p.stored != nil {
				copy(dst, p.stored)
			} else {
				p.values.Encode(dst, s.engine)
			}

			return nil
		})
	}

	return g.Wait()
}
