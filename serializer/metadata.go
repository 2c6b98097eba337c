package serializer

import (
	"slices"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/arloliu/bp4/comm"
	"github.com/arloliu/bp4/encoding"
	"github.com/arloliu/bp4/errs"
	"github.com/arloliu/bp4/internal/pool"
	"github.com/arloliu/bp4/section"
)

// localStep is one rank's metadata for one step.
type localStep struct {
	timeStep  uint32
	pg        section.PGIndexEntry
	vars      []section.ElementIndex
	varIdx    map[string]int
	attrs     []section.ElementIndex
	relocated bool
}

func (l *localStep) addBlock(v *Variable, c section.Characteristics) {
	i, ok := l.varIdx[v.Name]
	if !ok {
		i = len(l.vars)
		l.varIdx[v.Name] = i
		l.vars = append(l.vars, section.ElementIndex{
			MemberID: v.memberID,
			Name:     v.Name,
			Type:     v.Type,
			Shape:    v.ShapeID,
		})
	}
	l.vars[i].Sets = append(l.vars[i].Sets, c)
}

func (l *localStep) relocate(base uint64) {
	l.pg.Offset += base
	for i := range l.vars {
		for j := range l.vars[i].Sets {
			l.vars[i].Sets[j].Relocate(base)
		}
	}
	for i := range l.attrs {
		for j := range l.attrs[i].Sets {
			l.attrs[i].Sets[j].Relocate(base)
		}
	}
	l.relocated = true
}

func (l *localStep) metadata() section.StepMetadata {
	return section.StepMetadata{
		TimeStep:   l.timeStep,
		PGs:        []section.PGIndexEntry{l.pg},
		Variables:  l.vars,
		Attributes: l.attrs,
	}
}

// PendingSteps returns the number of closed steps whose metadata has not been gathered.
func (s *Serializer) PendingSteps() int { return len(s.steps) }

// UpdateOffsetsInMetadata turns the buffer-relative offsets of every step flushed since the
// last call into data file positions, base being the file position of the data buffer's
// first byte.
func (s *Serializer) UpdateOffsetsInMetadata(base uint64) {
	for _, step := range s.steps {
		if !step.relocated {
			step.relocate(base)
		}
	}
}

// SerializeLocalMetadata encodes the relocated steps and removes them from the pending set.
//
// Layout: step count u32, then per step the time step u32 and its StepMetadata.
func (s *Serializer) SerializeLocalMetadata() ([]byte, error) {
	buf := pool.NewBuffer(s.params.BufferGrowthFactor, 0)
	enc := encoding.NewEncoder(buf, s.engine)

	countAt := enc.Reserve(4)
	count := uint32(0)
	kept := s.steps[:0]
	for _, step := range s.steps {
		if !step.relocated {
			kept = append(kept, step)
			continue
		}
		m := step.metadata()
		enc.PutUint32(step.timeStep)
		m.WriteTo(enc)
		count++
	}
	enc.PatchUint32(countAt, count)
	if err := enc.Err(); err != nil {
		return nil, errors.Wrap(err, "serializing local metadata")
	}

	clear(s.steps[len(kept):])
	s.steps = kept

	return buf.Bytes(), nil
}

// AggregateCollectiveMetadata gathers every rank's relocated metadata on root, merges it
// per step and appends the merged steps to the Metadata buffer, recording their positions
// in MetadataIndexTable. It is collective over c and returns the number of merged steps on
// root, 0 elsewhere.
func (s *Serializer) AggregateCollectiveMetadata(c comm.Comm, root int) (int, error) {
	s.profiler.Start("meta_sort_merge")
	defer s.profiler.Stop("meta_sort_merge")

	local, err := s.SerializeLocalMetadata()
	if err != nil {
		return 0, err
	}

	parts, err := c.Gatherv(local, root)
	if err != nil {
		return 0, errors.Wrap(err, "gathering metadata")
	}
	s.MetadataSet.DataPGCount = 0
	if c.Rank() != root {
		return 0, nil
	}

	merged, order, err := mergeRankMetadata(parts, s)
	if err != nil {
		return 0, err
	}

	enc := encoding.NewEncoder(s.Metadata, s.engine)
	base := s.MetadataSet.MetadataFileLength
	for _, step := range order {
		m := merged[step]
		off := m.WriteTo(enc)
		if err := enc.Err(); err != nil {
			return 0, errors.Wrapf(err, "writing metadata of step %d", step)
		}
		s.MetadataIndexTable[step] = [4]uint64{
			base + uint64(off.PGIndexStart),   //nolint:gosec
			base + uint64(off.VarIndexStart),  //nolint:gosec
			base + uint64(off.AttrIndexStart), //nolint:gosec
			base + uint64(off.End),            //nolint:gosec
		}
	}

	s.logger.Debug("merged collective metadata",
		zap.Int("ranks", len(parts)), zap.Int("steps", len(order)), zap.Int("bytes", s.Metadata.Position()))

	return len(order), nil
}

// mergeRankMetadata combines per-rank steps. Process groups and variable blocks are kept
// in rank order; an attribute defined by several ranks keeps the lowest rank's value.
func mergeRankMetadata(parts [][]byte, s *Serializer) (map[uint32]*section.StepMetadata, []uint32, error) {
	merged := make(map[uint32]*section.StepMetadata)
	varIdx := make(map[uint32]map[string]int)
	attrSeen := make(map[uint32]map[string]bool)
	var order []uint32

	for rank, part := range parts {
		dec := encoding.NewDecoder(part, s.engine)
		count := dec.Uint32()
		for range count {
			step := dec.Uint32()
			m, err := section.ParseStepMetadata(dec)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "metadata of rank %d", rank)
			}

			target, ok := merged[step]
			if !ok {
				target = &section.StepMetadata{TimeStep: step}
				merged[step] = target
				varIdx[step] = make(map[string]int)
				attrSeen[step] = make(map[string]bool)
				order = append(order, step)
			}

			target.PGs = append(target.PGs, m.PGs...)
			for _, v := range m.Variables {
				if i, ok := varIdx[step][v.Name]; ok {
					if target.Variables[i].Type != v.Type {
						return nil, nil, errors.Wrapf(errs.ErrInvalidArgument,
							"variable %q is %s on rank %d and %s elsewhere", v.Name, v.Type, rank, target.Variables[i].Type)
					}
					target.Variables[i].Sets = append(target.Variables[i].Sets, v.Sets...)

					continue
				}
				varIdx[step][v.Name] = len(target.Variables)
				target.Variables = append(target.Variables, v)
			}
			for _, a := range m.Attributes {
				if attrSeen[step][a.Name] {
					continue
				}
				attrSeen[step][a.Name] = true
				target.Attributes = append(target.Attributes, a)
			}
		}
		if err := dec.Err(); err != nil {
			return nil, nil, errors.Wrapf(err, "metadata of rank %d", rank)
		}
		if dec.Remaining() != 0 {
			return nil, nil, errors.Wrapf(errs.ErrFormat, "metadata of rank %d has %d trailing bytes", rank, dec.Remaining())
		}
	}
	slices.Sort(order)

	return merged, order, nil
}

// PopulateMetadataIndexFileContent appends one index row per step of MetadataIndexTable,
// in step order, to the MetadataIndex buffer and clears the table.
func (s *Serializer) PopulateMetadataIndexFileContent(timestamp uint64) error {
	steps := make([]uint32, 0, len(s.MetadataIndexTable))
	for step := range s.MetadataIndexTable {
		steps = append(steps, step)
	}
	slices.Sort(steps)

	for _, step := range steps {
		pos := s.MetadataIndexTable[step]
		row := section.IndexRow{
			Step:           uint64(step),
			Rank:           0,
			PGIndexStart:   pos[0],
			VarIndexStart:  pos[1],
			AttrIndexStart: pos[2],
			StepEndPos:     pos[3],
			Timestamp:      timestamp,
		}
		dst, err := s.MetadataIndex.Next(section.IndexRowSize)
		if err != nil {
			return err
		}
		row.WriteToSlice(dst, s.engine)
	}
	s.ResetMetadataIndexTable()

	return nil
}

// ResetMetadataIndexTable forgets the step positions of the last aggregation.
func (s *Serializer) ResetMetadataIndexTable() {
	clear(s.MetadataIndexTable)
}
