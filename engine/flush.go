package engine

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

func (w *Writer) doFlush(isFinal bool, transportIndex int) error {
	if w.agg.IsActive() {
		return w.aggregateWriteData(isFinal, transportIndex)
	}

	return w.writeData(isFinal, transportIndex)
}

// writeData writes this rank's data buffer to its own subfile.
func (w *Writer) writeData(isFinal bool, transportIndex int) error {
	data := w.bp4.Data
	base := data.AbsoluteBase()
	size := data.Position()

	if size > 0 {
		if err := w.data.WriteFiles(data.Bytes(), transportIndex); err != nil {
			return err
		}
		if err := w.data.FlushFiles(transportIndex); err != nil {
			return err
		}
	}

	w.bp4.UpdateOffsetsInMetadata(base)
	w.bp4.ResetBuffer(data, false)
	w.recordFlush(size, isFinal)

	return nil
}

// aggregateWriteData moves every chain member's data buffer through the consumer, one
// member per round. The consumer writes round r-1's data while round r is in flight, and
// each member learns its absolute position in the subfile from its predecessor.
func (w *Writer) aggregateWriteData(isFinal bool, transportIndex int) error {
	w.profiler.Start("aggregation")
	defer w.profiler.Stop("aggregation")

	data := w.bp4.Data
	written := 0
	for r := range w.agg.Size() {
		reqs, err := w.agg.IExchange(data, r)
		if err != nil {
			return err
		}
		posReqs, err := w.agg.IExchangeAbsolutePosition(data, r)
		if err != nil {
			return err
		}

		if w.agg.IsConsumer() {
			buf := w.agg.GetConsumerBuffer(data, r)
			if len(buf) > 0 {
				if err := w.data.WriteFiles(buf, transportIndex); err != nil {
					return errors.Wrapf(err, "aggregation round %d", r)
				}
				if err := w.data.FlushFiles(transportIndex); err != nil {
					return err
				}
				written += len(buf)
			}
		}

		if err := w.agg.WaitAbsolutePosition(posReqs, data, r); err != nil {
			return err
		}
		if err := w.agg.Wait(reqs, r); err != nil {
			return err
		}
		w.agg.SwapBuffers(r)
	}

	w.bp4.UpdateOffsetsInMetadata(data.AbsoluteBase())
	w.bp4.ResetBuffer(data, false)
	if w.agg.IsConsumer() {
		data.SetAbsoluteBase(w.agg.ConsumerEnd())
	}
	w.agg.ResetBuffers()
	w.recordFlush(written, isFinal)

	return nil
}

func (w *Writer) recordFlush(bytes int, isFinal bool) {
	w.metrics.flushes.Inc()
	w.metrics.dataBytes.Add(float64(bytes))
	if bytes > 0 {
		w.logger.Debug("flushed data",
			zap.Int("bytes", bytes),
			zap.Int("subStream", w.agg.SubStreamIndex()),
			zap.Bool("final", isFinal),
		)
	}
}

// writeCollectiveMetadataFile merges every rank's metadata on rank 0, which appends it to
// the metadata file and one index row per merged step to the index file. The final call
// clears the active flag; when no process group was written since the last call only the
// flag is cleared.
func (w *Writer) writeCollectiveMetadataFile(isFinal bool) error {
	if isFinal && w.bp4.MetadataSet.DataPGCount == 0 {
		if w.isRoot() {
			return w.updateActiveFlag(false)
		}

		return nil
	}

	steps, err := w.bp4.AggregateCollectiveMetadata(w.comm, 0)
	if err != nil {
		return err
	}
	if !w.isRoot() {
		return nil
	}

	metadata := w.bp4.Metadata
	size := metadata.Position()
	if err := w.metadata.WriteFiles(metadata.Bytes(), metadataFile); err != nil {
		return err
	}
	if err := w.metadata.FlushFiles(metadataFile); err != nil {
		return err
	}

	if err := w.bp4.PopulateMetadataIndexFileContent(uint64(w.now().Unix())); err != nil { //nolint:gosec
		return err
	}
	if err := w.metadata.WriteFiles(w.bp4.MetadataIndex.Bytes(), indexFile); err != nil {
		return err
	}
	if err := w.metadata.FlushFiles(indexFile); err != nil {
		return err
	}

	w.bp4.MetadataSet.MetadataFileLength += uint64(size) //nolint:gosec
	w.bp4.ResetBuffer(metadata, true)
	w.bp4.ResetBuffer(w.bp4.MetadataIndex, true)
	w.metrics.metadataBytes.Add(float64(size))

	w.logger.Debug("wrote collective metadata",
		zap.Int("steps", steps),
		zap.Int("bytes", size),
		zap.Uint64("metadataLength", w.bp4.MetadataSet.MetadataFileLength),
	)

	if isFinal {
		return w.updateActiveFlag(false)
	}

	return nil
}

// updateActiveFlag rewrites the active byte of the index file header in place.
func (w *Writer) updateActiveFlag(active bool) error {
	flag := []byte{0}
	if active {
		flag[0] = 1
	}

	if err := w.metadata.WriteFileAt(flag, int64(w.bp4.IndexHeader.ActiveFlagOffset), indexFile); err != nil { //nolint:gosec
		return errors.Wrap(err, "update active flag")
	}
	if err := w.metadata.FlushFiles(indexFile); err != nil {
		return err
	}

	return w.metadata.SeekToFileEnd(indexFile)
}
