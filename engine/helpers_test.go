package engine

import (
	"testing"
	"time"

	"github.com/cockroachdb/pebble/v2/vfs"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/bp4/comm"
	"github.com/arloliu/bp4/format"
	"github.com/arloliu/bp4/serializer"
	"github.com/arloliu/bp4/transport"
)

const testDir = "/out/run.bp"

var testTime = time.Unix(1_700_000_000, 0)

func fixedClock() time.Time { return testTime }

// putFunc writes one rank's blocks for one step.
type putFunc func(w Engine, rank, step int) error

// writeDataset runs a writer on every rank of a new world for steps steps.
func writeDataset(t *testing.T, fs vfs.FS, ranks int, mode format.OpenMode, params map[string]string, steps int, put putFunc) {
	t.Helper()

	err := comm.Run(ranks, func(c comm.Comm) error {
		w, err := OpenWriter(testDir, mode,
			WithFS(fs),
			WithComm(c),
			WithParameters(params),
			WithClock(fixedClock),
		)
		if err != nil {
			return err
		}
		for step := range steps {
			if _, err := w.BeginStep(format.StepAppend, 0); err != nil {
				return err
			}
			if err := put(w, c.Rank(), step); err != nil {
				return err
			}
			if err := w.EndStep(); err != nil {
				return err
			}
		}

		return w.Close(transport.All)
	})
	require.NoError(t, err)
}

// int32Block returns n values whose concatenation over ranks is step*1000 + i.
func int32Block(rank, step, n int) []int32 {
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(step*1000 + rank*n + i) //nolint:gosec
	}

	return out
}

func int32Global(ranks, step, n int) []int32 {
	out := make([]int32, ranks*n)
	for i := range out {
		out[i] = int32(step*1000 + i) //nolint:gosec
	}

	return out
}

// putGlobalInt32 writes a 1-D int32 array "v" of ranks*n elements, n per rank.
func putGlobalInt32(ranks, n int, mode format.PutMode) putFunc {
	return func(w Engine, rank, step int) error {
		v, err := serializer.NewVariable("v", format.TypeInt32,
			[]uint64{uint64(ranks * n)}, []uint64{uint64(rank * n)}, []uint64{uint64(n)}) //nolint:gosec
		if err != nil {
			return err
		}

		return w.Put(v, int32Block(rank, step, n), mode)
	}
}

func openTestReader(t *testing.T, fs vfs.FS) *Reader {
	t.Helper()

	r, err := OpenReader(testDir, WithFS(fs))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	return r
}

func fileBytes(t *testing.T, fs vfs.FS, name string) []byte {
	t.Helper()

	data, err := readWholeFile(fs, fs.PathJoin(testDir, name))
	require.NoError(t, err)

	return data
}

func fileSize(t *testing.T, fs vfs.FS, name string) int64 {
	t.Helper()

	info, err := fs.Stat(fs.PathJoin(testDir, name))
	require.NoError(t, err)

	return info.Size()
}

func fileExists(fs vfs.FS, name string) bool {
	_, err := fs.Stat(fs.PathJoin(testDir, name))
	return err == nil
}
