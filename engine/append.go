package engine

import (
	"math"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble/v2/vfs"
	"go.uber.org/zap"

	"github.com/arloliu/bp4/comm"
	"github.com/arloliu/bp4/encoding"
	"github.com/arloliu/bp4/endian"
	"github.com/arloliu/bp4/errs"
	"github.com/arloliu/bp4/format"
	"github.com/arloliu/bp4/internal/pool"
	"github.com/arloliu/bp4/section"
	"github.com/arloliu/bp4/transport"
)

// appendState is what an append open learns from the existing index file.
type appendState struct {
	existing bool
	lastStep uint64
}

// keptSteps returns how many of last existing steps an append keeps: n >= 0 keeps the
// first n, n < 0 drops the last -n-1.
func keptSteps(n int, last uint64) uint64 {
	if n >= 0 {
		return min(uint64(n), last)
	}

	if last > math.MaxInt64 {
		return last
	}
	kept := int64(last) + int64(n) + 1 //nolint:gosec
	if kept < 0 {
		return 0
	}

	return uint64(kept)
}

// recoverAppend reads the existing index file on rank 0 and shares it with every rank.
// It refuses files of the other byte order, reports an unclean previous shutdown and
// drops the steps AppendAfterSteps discards.
func (w *Writer) recoverAppend() (appendState, error) {
	indexPath := w.filePath(section.IndexFileName)
	raw, found, err := comm.BroadcastFile(w.comm, w.fs, indexPath, 0)
	if err != nil {
		return appendState{}, err
	}
	if !found || len(raw) == 0 {
		return appendState{}, nil
	}

	h, err := section.ParseIndexFileHeader(raw)
	if err != nil {
		return appendState{}, errors.Wrapf(err, "index file %s", indexPath)
	}
	// rows of the other byte order cannot be trusted, so check before decoding them
	if err := h.CheckAppendable(); err != nil {
		return appendState{}, errors.Wrapf(err, "append to %s", w.path)
	}
	_, rows, err := section.ParseIndexRows(raw)
	if err != nil {
		return appendState{}, errors.Wrapf(err, "index file %s", indexPath)
	}
	if h.Active {
		if w.params.StrictActiveFlag {
			return appendState{}, errors.Wrapf(errs.ErrUncleanShutdown, "append to %s", w.path)
		}
		if w.isRoot() {
			w.logger.Warn("previous writer did not close the dataset", zap.String("path", w.path))
		}
	}

	var last uint64
	if len(rows) > 0 {
		last = rows[len(rows)-1].Step
	}

	kept := keptSteps(w.params.AppendAfterSteps, last)
	if kept < last {
		if err := w.truncateSteps(h, rows, kept); err != nil {
			return appendState{}, err
		}
	}

	return appendState{existing: true, lastStep: kept}, nil
}

// truncateSteps removes every step after kept. Rank 0 cuts the metadata and index files
// and finds where each data subfile's first discarded process group starts; consumers
// cut their subfile there.
func (w *Writer) truncateSteps(h section.IndexFileHeader, rows []section.IndexRow, kept uint64) error {
	var (
		cuts    map[uint32]uint64
		rootErr error
	)
	if w.isRoot() {
		cuts, rootErr = w.truncateMetadata(h, rows, kept)
	}

	table, err := w.comm.Bcast(encodeCuts(cuts, rootErr), 0)
	if err != nil {
		return errors.Wrap(err, "broadcast truncation offsets")
	}
	cuts, err = decodeCuts(table)
	if rootErr != nil {
		return rootErr
	}
	if err != nil {
		return err
	}

	var localErr error
	if w.agg.IsConsumer() {
		if off, ok := cuts[uint32(w.agg.SubStreamIndex())]; ok { //nolint:gosec
			localErr = w.data.RewritePrefix(w.dataPath(w.agg.SubStreamIndex()), int64(off)) //nolint:gosec
		}
	}

	failed := uint64(0)
	if localErr != nil {
		failed = 1
	}
	anyFailed, err := w.comm.Allreduce(failed, comm.OpMax)
	if err != nil {
		return err
	}
	if localErr != nil {
		return localErr
	}
	if anyFailed != 0 {
		return errors.Wrap(errs.ErrIO, "another rank failed to truncate its data file")
	}

	w.logger.Info("dropped steps", zap.Uint64("kept", kept), zap.Int("existing", len(rows)))

	return nil
}

func (w *Writer) truncateMetadata(h section.IndexFileHeader, rows []section.IndexRow, kept uint64) (map[uint32]uint64, error) {
	mdPath := w.filePath(section.MetadataFileName)
	metadata, err := readWholeFile(w.fs, mdPath)
	if err != nil {
		return nil, err
	}

	keepRows := 0
	mdCut := uint64(math.MaxUint64)
	cuts := make(map[uint32]uint64)
	for _, row := range rows {
		if row.Step <= kept {
			keepRows++
			continue
		}
		mdCut = min(mdCut, row.PGIndexStart)

		step, err := section.ParseStepMetadataAt(metadata, 0, row, h.Engine())
		if err != nil {
			return nil, err
		}
		for _, pg := range step.PGs {
			if off, ok := cuts[pg.FileIndex]; !ok || pg.Offset < off {
				cuts[pg.FileIndex] = pg.Offset
			}
		}
	}

	if err := w.metadata.RewritePrefix(mdPath, int64(mdCut)); err != nil { //nolint:gosec
		return nil, err
	}
	indexSize := int64(section.HeaderSize + keepRows*section.IndexRowSize)
	if err := w.metadata.RewritePrefix(w.filePath(section.IndexFileName), indexSize); err != nil {
		return nil, err
	}

	return cuts, nil
}

func readWholeFile(fs vfs.FS, path string) ([]byte, error) {
	m, err := transport.NewManager(fs)
	if err != nil {
		return nil, err
	}
	if err := m.OpenFiles([]string{path}, format.ModeReadRandomAccess, false); err != nil {
		return nil, err
	}
	defer m.CloseFiles(transport.All) //nolint:errcheck

	size, err := m.GetFileSize(0)
	if err != nil {
		return nil, err
	}

	return m.ReadFile(0, 0, int(size))
}

// Truncation table layout: status u8 (0 ok, 1 error), then on success a u32 count and
// (file index u32, offset u64) pairs, on error the message.
func encodeCuts(cuts map[uint32]uint64, rootErr error) []byte {
	buf := pool.NewBuffer(0, 0)
	enc := encoding.NewEncoder(buf, endian.WriterEngine())
	if rootErr != nil {
		enc.PutUint8(1)
		enc.PutBytes([]byte(rootErr.Error()))

		return buf.Bytes()
	}

	keys := make([]uint32, 0, len(cuts))
	for k := range cuts {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	enc.PutUint8(0)
	enc.PutUint32(uint32(len(keys))) //nolint:gosec
	for _, k := range keys {
		enc.PutUint32(k)
		enc.PutUint64(cuts[k])
	}

	return buf.Bytes()
}

func decodeCuts(table []byte) (map[uint32]uint64, error) {
	dec := encoding.NewDecoder(table, endian.WriterEngine())
	if dec.Uint8() != 0 {
		return nil, errors.Mark(errors.Newf("rank 0 failed to truncate metadata: %s", table[1:]), errs.ErrIO)
	}

	n := dec.Uint32()
	cuts := make(map[uint32]uint64, n)
	for range n {
		k := dec.Uint32()
		cuts[k] = dec.Uint64()
	}
	if err := dec.Err(); err != nil {
		return nil, errors.Wrap(err, "truncation table")
	}

	return cuts, nil
}
