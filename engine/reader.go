package engine

import (
	"path/filepath"
	"slices"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble/v2/vfs"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/arloliu/bp4/endian"
	"github.com/arloliu/bp4/errs"
	"github.com/arloliu/bp4/format"
	"github.com/arloliu/bp4/section"
	"github.com/arloliu/bp4/serializer"
	"github.com/arloliu/bp4/transport"
)

// BlockInfo describes one block of a variable in one step.
type BlockInfo struct {
	// Step is the reader step index, starting at 0.
	Step      int
	Start     []uint64
	Count     []uint64
	FileIndex uint32
	// Min and Max are nil when the writer recorded no statistics.
	Min, Max any
	// Value holds the value of single-value blocks.
	Value any

	chars *section.Characteristics
}

// VariableInfo summarizes a variable across every step of a dataset.
type VariableInfo struct {
	Name    string
	Type    format.DataType
	ShapeID format.ShapeID
	// Shape is the global shape of the latest step, nil for local variables.
	Shape []uint64
	// Steps lists the reader step indexes the variable was written in.
	Steps  []int
	Blocks []BlockInfo
	// Min and Max span every block; nil when unknown.
	Min, Max any
}

// blocksAt returns the blocks written in step.
func (v *VariableInfo) blocksAt(step int) []BlockInfo {
	var out []BlockInfo
	for _, b := range v.Blocks {
		if b.Step == step {
			out = append(out, b)
		}
	}

	return out
}

// Reader reads a closed or still active BP4 dataset.
//
// Steps are numbered from 0 in index file order, whatever their on-disk step number. Every
// method takes an explicit step; BeginStep and EndStep additionally walk the steps in order
// and wait for those a running writer has yet to flush.
type Reader struct {
	path   string
	fs     vfs.FS
	logger *zap.Logger

	md     *serializer.Metadata
	engine endian.EndianEngine
	vars   map[string]*VariableInfo
	order  []string
	attrs  map[string]section.ElementIndex

	data    *transport.Manager
	dataIdx map[uint32]int
	closed  bool

	stream  streamParameters
	current int
	inStep  bool
}

// OpenReader opens the dataset directory path for reading. Datasets written in either byte
// order are accepted.
//
// Returns:
//   - *Reader: reader over every step listed in the index file
//   - error: ErrIO when the metadata files cannot be read, ErrFormat when they are malformed
func OpenReader(path string, opts ...Option) (*Reader, error) {
	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}

	stream, err := parseStreamParameters(s, path)
	if err != nil {
		return nil, err
	}

	md, err := loadMetadata(s.fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}

	data, err := transport.NewManager(s.fs, transport.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}

	r := &Reader{
		path:    path,
		fs:      s.fs,
		logger:  s.logger,
		md:      md,
		engine:  md.Engine(),
		vars:    make(map[string]*VariableInfo),
		attrs:   make(map[string]section.ElementIndex),
		data:    data,
		dataIdx: make(map[uint32]int),
		stream:  stream,
		current: -1,
	}
	if err := r.buildCatalog(); err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}

	if md.Index.Active {
		r.logger.Warn("dataset is still open by a writer or was not closed", zap.String("path", path))
	}
	r.logger.Debug("opened dataset for reading",
		zap.String("path", path),
		zap.Int("steps", len(md.Rows)),
		zap.Int("variables", len(r.vars)),
	)

	return r, nil
}

func loadMetadata(fs vfs.FS, path string) (*serializer.Metadata, error) {
	index, err := readWholeFile(fs, filepath.Join(path, section.IndexFileName))
	if err != nil {
		return nil, err
	}
	metadata, err := readWholeFile(fs, filepath.Join(path, section.MetadataFileName))
	if err != nil {
		return nil, err
	}

	return serializer.Deserialize(index, metadata)
}

func (r *Reader) buildCatalog() error {
	for step := range r.md.Steps {
		meta := &r.md.Steps[step]
		for _, e := range meta.Variables {
			info, ok := r.vars[e.Name]
			if !ok {
				info = &VariableInfo{Name: e.Name, Type: e.Type, ShapeID: e.Shape}
				r.vars[e.Name] = info
				r.order = append(r.order, e.Name)
			}
			if info.Type != e.Type {
				return errors.Wrapf(errs.ErrFormat, "variable %q changes type from %s to %s", e.Name, info.Type, e.Type)
			}
			if len(info.Steps) == 0 || info.Steps[len(info.Steps)-1] != step {
				info.Steps = append(info.Steps, step)
			}
			for i := range e.Sets {
				block, err := r.blockInfo(e.Type, step, &e.Sets[i])
				if err != nil {
					return errors.Wrapf(err, "variable %q", e.Name)
				}
				info.Blocks = append(info.Blocks, block)
				if e.Shape == format.ShapeGlobalArray {
					info.Shape = e.Sets[i].Shape()
				}
				info.Min = pick(info.Min, block.Min, true)
				info.Max = pick(info.Max, block.Max, false)
			}
		}
		for _, a := range meta.Attributes {
			if _, ok := r.attrs[a.Name]; !ok {
				r.attrs[a.Name] = a
			}
		}
	}

	return nil
}

func (r *Reader) blockInfo(dtype format.DataType, step int, c *section.Characteristics) (BlockInfo, error) {
	b := BlockInfo{
		Step:      step,
		Start:     c.Start(),
		Count:     c.Count(),
		FileIndex: c.FileIndex,
		chars:     c,
	}

	var err error
	if c.Min != nil {
		if b.Min, err = serializer.DecodeScalar(dtype, c.Min, r.engine); err != nil {
			return BlockInfo{}, err
		}
	}
	if c.Max != nil {
		if b.Max, err = serializer.DecodeScalar(dtype, c.Max, r.engine); err != nil {
			return BlockInfo{}, err
		}
	}
	if c.Value != nil {
		if b.Value, err = serializer.DecodeScalar(dtype, c.Value, r.engine); err != nil {
			return BlockInfo{}, err
		}
		if dtype.IsNumeric() && b.Min == nil {
			b.Min, b.Max = b.Value, b.Value
		}
	}

	return b, nil
}

// Path returns the dataset directory.
func (r *Reader) Path() string { return r.path }

// Steps returns the number of steps in the dataset.
func (r *Reader) Steps() int { return len(r.md.Rows) }

// ActiveFlag reports whether the index file is still marked as open by a writer.
func (r *Reader) ActiveFlag() bool { return r.md.Index.Active }

// Header returns the index file header.
func (r *Reader) Header() section.IndexFileHeader { return r.md.Index }

// IndexRows returns a copy of the index file rows.
func (r *Reader) IndexRows() []section.IndexRow { return slices.Clone(r.md.Rows) }

// StepMetadata returns the decoded metadata of step.
func (r *Reader) StepMetadata(step int) (section.StepMetadata, error) {
	if err := r.checkStep(step); err != nil {
		return section.StepMetadata{}, err
	}

	return r.md.Steps[step], nil
}

// Variables returns the variable names in first-written order.
func (r *Reader) Variables() []string { return slices.Clone(r.order) }

// Attributes returns the attribute names, sorted.
func (r *Reader) Attributes() []string {
	names := make([]string, 0, len(r.attrs))
	for name := range r.attrs {
		names = append(names, name)
	}
	slices.Sort(names)

	return names
}

// VariableInfo returns what the metadata records about name.
func (r *Reader) VariableInfo(name string) (*VariableInfo, error) {
	info, ok := r.vars[name]
	if !ok {
		return nil, errors.Wrapf(errs.ErrNotFound, "variable %q", name)
	}

	return info, nil
}

// Shape returns the global shape of name. Local values read as a one-dimensional array of
// one element per block; local arrays have no global shape.
func (r *Reader) Shape(name string, step int) ([]uint64, error) {
	info, err := r.VariableInfo(name)
	if err != nil {
		return nil, err
	}
	if err := r.checkStep(step); err != nil {
		return nil, err
	}

	blocks := info.blocksAt(step)
	switch info.ShapeID {
	case format.ShapeGlobalArray:
		if len(blocks) == 0 {
			return nil, errors.Wrapf(errs.ErrNotFound, "variable %q in step %d", name, step)
		}

		return blocks[0].chars.Shape(), nil
	case format.ShapeLocalValue:
		return []uint64{uint64(len(blocks))}, nil
	default:
		return nil, nil
	}
}

// Attribute returns the value of attribute name: a scalar or a string for single values,
// a typed slice for arrays.
func (r *Reader) Attribute(name string) (any, error) {
	a, ok := r.attrs[name]
	if !ok || len(a.Sets) == 0 {
		return nil, errors.Wrapf(errs.ErrNotFound, "attribute %q", name)
	}

	value := a.Sets[0].Value
	if a.Shape == format.ShapeGlobalArray {
		return serializer.DecodeValues(a.Type, value, r.engine)
	}

	return serializer.DecodeScalar(a.Type, value, r.engine)
}

// Get reads the selection start, count of name in step.
//
// Global arrays take an N-d row-major selection that may span the blocks of several ranks;
// nil start and count select the whole array. Local values read as a one-dimensional array
// with one element per block. A global single value ignores the selection. Local arrays
// are read whole with nil start and count, blocks concatenated in rank order.
//
// Returns:
//   - any: a typed slice such as []float64, or a string for string values
//   - error: ErrNotFound for unknown names or steps, ErrSelection for selections outside the shape
func (r *Reader) Get(name string, start, count []uint64, step int) (any, error) {
	if r.closed {
		return nil, errors.Wrapf(errs.ErrClosed, "reader %s", r.path)
	}
	info, err := r.VariableInfo(name)
	if err != nil {
		return nil, err
	}
	if err := r.checkStep(step); err != nil {
		return nil, err
	}

	blocks := info.blocksAt(step)
	if len(blocks) == 0 {
		return nil, errors.Wrapf(errs.ErrNotFound, "variable %q in step %d", name, step)
	}

	switch info.ShapeID {
	case format.ShapeGlobalValue:
		if info.Type == format.TypeString {
			return blocks[0].Value, nil
		}

		return serializer.DecodeValues(info.Type, blocks[0].chars.Value, r.engine)
	case format.ShapeLocalValue:
		return r.getLocalValues(info, blocks, start, count)
	case format.ShapeLocalArray:
		if start != nil || count != nil {
			return nil, errors.Wrapf(errs.ErrSelection, "local array %q only reads whole", name)
		}

		return r.concatBlocks(info, blocks)
	default:
		return r.getHyperslab(info, blocks, start, count)
	}
}

// GetAs reads a selection like Get and asserts its element type.
func GetAs[T format.Numeric](r *Reader, name string, start, count []uint64, step int) ([]T, error) {
	v, err := r.Get(name, start, count, step)
	if err != nil {
		return nil, err
	}

	out, ok := v.([]T)
	if !ok {
		return nil, errors.Wrapf(errs.ErrInvalidArgument, "variable %q holds %T, not []%T", name, v, *new(T))
	}

	return out, nil
}

// GetBlock reads block of name in step whole.
func (r *Reader) GetBlock(name string, step, block int) (any, error) {
	info, err := r.VariableInfo(name)
	if err != nil {
		return nil, err
	}
	if err := r.checkStep(step); err != nil {
		return nil, err
	}

	blocks := info.blocksAt(step)
	if block < 0 || block >= len(blocks) {
		return nil, errors.Wrapf(errs.ErrNotFound, "block %d of %q in step %d", block, name, step)
	}

	payload, err := r.payload(blocks[block].chars)
	if err != nil {
		return nil, err
	}

	return serializer.DecodeValues(info.Type, payload, r.engine)
}

func (r *Reader) checkStep(step int) error {
	if step < 0 || step >= len(r.md.Rows) {
		return errors.Wrapf(errs.ErrNotFound, "step %d of %d", step, len(r.md.Rows))
	}

	return nil
}

func (r *Reader) getLocalValues(info *VariableInfo, blocks []BlockInfo, start, count []uint64) (any, error) {
	n := uint64(len(blocks))
	lo, hi := uint64(0), n
	if start != nil || count != nil {
		if len(start) != 1 || len(count) != 1 || start[0]+count[0] > n || start[0]+count[0] < start[0] {
			return nil, errors.Wrapf(errs.ErrSelection, "local value %q has %d blocks, selection %v+%v", info.Name, n, start, count)
		}
		lo, hi = start[0], start[0]+count[0]
	}

	if info.Type == format.TypeString {
		out := make([]string, 0, hi-lo)
		for _, b := range blocks[lo:hi] {
			s, _ := b.Value.(string)
			out = append(out, s)
		}

		return out, nil
	}

	var raw []byte
	for _, b := range blocks[lo:hi] {
		raw = append(raw, b.chars.Value...)
	}

	return serializer.DecodeValues(info.Type, raw, r.engine)
}

func (r *Reader) concatBlocks(info *VariableInfo, blocks []BlockInfo) (any, error) {
	if !info.Type.IsNumeric() {
		return nil, errors.Wrapf(errs.ErrUnsupportedType, "local array %q of %s", info.Name, info.Type)
	}

	var raw []byte
	for _, b := range blocks {
		payload, err := r.payload(b.chars)
		if err != nil {
			return nil, err
		}
		raw = append(raw, payload...)
	}

	return serializer.DecodeValues(info.Type, raw, r.engine)
}

func (r *Reader) getHyperslab(info *VariableInfo, blocks []BlockInfo, start, count []uint64) (any, error) {
	shape := blocks[0].chars.Shape()
	if len(shape) == 0 {
		return nil, errors.Wrapf(errs.ErrFormat, "global array %q has no dimensions", info.Name)
	}
	if start == nil && count == nil {
		start = make([]uint64, len(shape))
		count = slices.Clone(shape)
	}
	if len(start) != len(shape) || len(count) != len(shape) {
		return nil, errors.Wrapf(errs.ErrSelection, "variable %q has %d dimensions, selection has %d and %d",
			info.Name, len(shape), len(start), len(count))
	}
	for d := range shape {
		end := start[d] + count[d]
		if end < start[d] || end > shape[d] {
			return nil, errors.Wrapf(errs.ErrSelection, "variable %q dimension %d: [%d, %d) outside shape %d",
				info.Name, d, start[d], end, shape[d])
		}
	}

	elemSize := info.Type.Size()
	if elemSize == 0 {
		return nil, errors.Wrapf(errs.ErrUnsupportedType, "global array %q of %s", info.Name, info.Type)
	}

	out := make([]byte, product(count)*uint64(elemSize)) //nolint:gosec
	sel := box{start: start, count: count}
	for _, b := range blocks {
		blk := box{start: b.Start, count: b.Count}
		if _, ok := sel.intersect(blk); !ok {
			continue
		}
		payload, err := r.payload(b.chars)
		if err != nil {
			return nil, err
		}
		if uint64(len(payload)) != product(blk.count)*uint64(elemSize) { //nolint:gosec
			return nil, errors.Wrapf(errs.ErrFormat, "variable %q block of %d bytes, expected %v elements",
				info.Name, len(payload), blk.count)
		}
		copyIntersection(out, sel, payload, blk, elemSize)
	}

	return serializer.DecodeValues(info.Type, out, r.engine)
}

// payload reads and unpacks the stored payload of one block from its data subfile.
func (r *Reader) payload(c *section.Characteristics) ([]byte, error) {
	idx, err := r.dataFile(c.FileIndex)
	if err != nil {
		return nil, err
	}

	stored, err := r.data.ReadFile(idx, int64(c.PayloadOffset), int(c.PayloadSize)) //nolint:gosec
	if err != nil {
		return nil, err
	}

	return serializer.UnpackPayload(stored, c)
}

func (r *Reader) dataFile(fileIndex uint32) (int, error) {
	if idx, ok := r.dataIdx[fileIndex]; ok {
		return idx, nil
	}

	name := filepath.Join(r.path, section.DataFilePrefix+strconv.FormatUint(uint64(fileIndex), 10))
	if err := r.data.OpenFiles([]string{name}, format.ModeReadRandomAccess, false); err != nil {
		return 0, err
	}
	idx := len(r.dataIdx)
	r.dataIdx[fileIndex] = idx

	return idx, nil
}

// Close closes the data subfiles opened by reads.
func (r *Reader) Close() error {
	if r.closed {
		return errors.Wrapf(errs.ErrClosed, "reader %s already closed", r.path)
	}
	r.closed = true

	var err error
	if len(r.dataIdx) > 0 {
		err = multierr.Append(err, r.data.CloseFiles(transport.All))
	}

	return err
}

// box is an N-d region of a row-major array.
type box struct {
	start []uint64
	count []uint64
}

func (b box) intersect(o box) (box, bool) {
	out := box{start: make([]uint64, len(b.start)), count: make([]uint64, len(b.start))}
	for d := range b.start {
		lo := max(b.start[d], o.start[d])
		hi := min(b.start[d]+b.count[d], o.start[d]+o.count[d])
		if lo >= hi {
			return box{}, false
		}
		out.start[d], out.count[d] = lo, hi-lo
	}

	return out, true
}

func product(dims []uint64) uint64 {
	n := uint64(1)
	for _, d := range dims {
		n *= d
	}

	return n
}

func strides(count []uint64) []uint64 {
	s := make([]uint64, len(count))
	acc := uint64(1)
	for d := len(count) - 1; d >= 0; d-- {
		s[d] = acc
		acc *= count[d]
	}

	return s
}

// copyIntersection copies the elements src (laid out as box from) shares with dst (laid
// out as box to), one contiguous run along the last dimension at a time.
func copyIntersection(dst []byte, to box, src []byte, from box, elemSize int) {
	common, ok := to.intersect(from)
	if !ok {
		return
	}

	nd := len(common.start)
	dstStrides := strides(to.count)
	srcStrides := strides(from.count)
	run := int(common.count[nd-1]) * elemSize //nolint:gosec

	idx := slices.Clone(common.start)
	for {
		var dOff, sOff uint64
		for d := range nd {
			dOff += (idx[d] - to.start[d]) * dstStrides[d]
			sOff += (idx[d] - from.start[d]) * srcStrides[d]
		}
		di := int(dOff) * elemSize //nolint:gosec
		si := int(sOff) * elemSize //nolint:gosec
		copy(dst[di:di+run], src[si:si+run])

		// advance every dimension but the last, odometer style
		d := nd - 2
		for ; d >= 0; d-- {
			idx[d]++
			if idx[d] < common.start[d]+common.count[d] {
				break
			}
			idx[d] = common.start[d]
		}
		if d < 0 {
			return
		}
	}
}
