package engine

import (
	"strconv"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble/v2/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/bp4/comm"
	"github.com/arloliu/bp4/errs"
	"github.com/arloliu/bp4/format"
	"github.com/arloliu/bp4/section"
	"github.com/arloliu/bp4/serializer"
	"github.com/arloliu/bp4/transport"
)

func TestWriter_ThreeRanksThreeSteps(t *testing.T) {
	const (
		ranks = 3
		n     = 10
		steps = 3
	)
	fs := vfs.NewMem()
	writeDataset(t, fs, ranks, format.ModeWrite, nil, steps, putGlobalInt32(ranks, n, format.PutSync))

	for r := range ranks {
		assert.True(t, fileExists(fs, section.DataFilePrefix+strconv.Itoa(r)), "data file of rank %d", r)
	}

	rd := openTestReader(t, fs)
	require.Equal(t, steps, rd.Steps())
	assert.False(t, rd.ActiveFlag())
	assert.Equal(t, []string{"v"}, rd.Variables())

	rows := rd.IndexRows()
	require.Len(t, rows, steps)
	for i, row := range rows {
		assert.EqualValues(t, i+1, row.Step)
		assert.EqualValues(t, 0, row.Rank)
		assert.EqualValues(t, testTime.Unix(), row.Timestamp)
		assert.Less(t, row.PGIndexStart, row.VarIndexStart)
		assert.Less(t, row.VarIndexStart, row.AttrIndexStart)
		assert.LessOrEqual(t, row.AttrIndexStart, row.StepEndPos)
	}

	info, err := rd.VariableInfo("v")
	require.NoError(t, err)
	assert.Equal(t, format.TypeInt32, info.Type)
	assert.Equal(t, format.ShapeGlobalArray, info.ShapeID)
	assert.Equal(t, []uint64{ranks * n}, info.Shape)
	assert.Equal(t, []int{0, 1, 2}, info.Steps)
	assert.Len(t, info.Blocks, ranks*steps)
	assert.EqualValues(t, 0, info.Min)
	assert.EqualValues(t, (steps-1)*1000+ranks*n-1, info.Max)

	for step := range steps {
		got, err := GetAs[int32](rd, "v", nil, nil, step)
		require.NoError(t, err)
		assert.Equal(t, int32Global(ranks, step, n), got, "step %d", step)

		md, err := rd.StepMetadata(step)
		require.NoError(t, err)
		require.Len(t, md.PGs, ranks)
		for r, pg := range md.PGs {
			assert.EqualValues(t, r, pg.Rank)
			assert.EqualValues(t, r, pg.FileIndex)
			assert.EqualValues(t, step+1, pg.TimeStep)
		}
	}
}

func TestWriter_AggregationTransparency(t *testing.T) {
	const (
		ranks = 4
		n     = 6
		steps = 3
	)

	type blockKey struct {
		step  int
		start uint64
		count uint64
	}
	read := func(t *testing.T, fs vfs.FS) (map[blockKey][]int32, map[blockKey]uint32) {
		rd := openTestReader(t, fs)
		require.Equal(t, steps, rd.Steps())
		info, err := rd.VariableInfo("v")
		require.NoError(t, err)

		values := make(map[blockKey][]int32)
		files := make(map[blockKey]uint32)
		for step := range steps {
			for i, b := range info.blocksAt(step) {
				key := blockKey{step: step, start: b.Start[0], count: b.Count[0]}
				v, err := rd.GetBlock("v", step, i)
				require.NoError(t, err)
				values[key] = v.([]int32)
				files[key] = b.FileIndex
			}
		}

		return values, files
	}

	want, wantFiles := func() (map[blockKey][]int32, map[blockKey]uint32) {
		fs := vfs.NewMem()
		writeDataset(t, fs, ranks, format.ModeWrite, nil, steps, putGlobalInt32(ranks, n, format.PutDeferred))
		return read(t, fs)
	}()
	for key, file := range wantFiles {
		assert.EqualValues(t, key.start/n, file)
	}

	tests := []struct {
		aggregators string
		files       []string
		fileOf      func(rank uint64) uint32
	}{
		{aggregators: "1", files: []string{"data.0"}, fileOf: func(uint64) uint32 { return 0 }},
		{aggregators: "2", files: []string{"data.0", "data.1"}, fileOf: func(r uint64) uint32 { return uint32(r / 2) }}, //nolint:gosec
	}
	for _, tt := range tests {
		t.Run("NumAggregators="+tt.aggregators, func(t *testing.T) {
			fs := vfs.NewMem()
			params := map[string]string{"NumAggregators": tt.aggregators}
			writeDataset(t, fs, ranks, format.ModeWrite, params, steps, putGlobalInt32(ranks, n, format.PutDeferred))

			for _, f := range tt.files {
				assert.True(t, fileExists(fs, f), f)
			}
			assert.False(t, fileExists(fs, "data."+tt.aggregators))

			got, files := read(t, fs)
			assert.Equal(t, want, got)
			for key, file := range files {
				assert.Equal(t, tt.fileOf(key.start/n), file, "block %+v", key)
			}
		})
	}
}

func TestWriter_DeferredMatchesSync(t *testing.T) {
	write := func(mode format.PutMode) vfs.FS {
		fs := vfs.NewMem()
		writeDataset(t, fs, 2, format.ModeWrite, nil, 2, func(w Engine, rank, step int) error {
			for _, name := range []string{"a", "b", "c"} {
				v, err := serializer.NewVariable(name, format.TypeFloat64, nil, nil, []uint64{4})
				if err != nil {
					return err
				}
				vals := []float64{float64(rank), float64(step), 0.5, -1}
				if err := w.Put(v, vals, mode); err != nil {
					return err
				}
			}
			if mode == format.PutDeferred {
				return w.PerformPuts()
			}

			return nil
		})

		return fs
	}

	syncFS := write(format.PutSync)
	deferredFS := write(format.PutDeferred)
	for _, name := range []string{"data.0", "data.1", section.MetadataFileName, section.IndexFileName} {
		assert.Equal(t, fileBytes(t, syncFS, name), fileBytes(t, deferredFS, name), name)
	}
}

func TestWriter_FlushStepsCount(t *testing.T) {
	fs := vfs.NewMem()
	w, err := OpenWriter(testDir, format.ModeWrite,
		WithFS(fs),
		WithParameters(map[string]string{"FlushStepsCount": "2"}),
	)
	require.NoError(t, err)

	assert.EqualValues(t, section.HeaderSize, fileSize(t, fs, section.IndexFileName))
	assert.EqualValues(t, 0, fileSize(t, fs, "data.0"))

	put := putGlobalInt32(1, 8, format.PutSync)
	var sizes []int64
	var rows []int64
	for step := range 5 {
		_, err := w.BeginStep(format.StepAppend, 0)
		require.NoError(t, err)
		require.NoError(t, put(w, 0, step))
		require.NoError(t, w.EndStep())
		sizes = append(sizes, fileSize(t, fs, "data.0"))
		rows = append(rows, (fileSize(t, fs, section.IndexFileName)-section.HeaderSize)/section.IndexRowSize)
	}

	assert.Zero(t, sizes[0])
	assert.Positive(t, sizes[1])
	assert.Equal(t, sizes[1], sizes[2])
	assert.Greater(t, sizes[3], sizes[2])
	assert.Equal(t, sizes[3], sizes[4])
	assert.Equal(t, []int64{0, 2, 2, 4, 4}, rows)
	assert.EqualValues(t, 5, w.CurrentStep())

	require.NoError(t, w.Close(transport.All))
	assert.Greater(t, fileSize(t, fs, "data.0"), sizes[4])

	rd := openTestReader(t, fs)
	require.Equal(t, 5, rd.Steps())
	got, err := GetAs[int32](rd, "v", nil, nil, 4)
	require.NoError(t, err)
	assert.Equal(t, int32Global(1, 4, 8), got)
}

func TestWriter_CollectiveMetadataOff(t *testing.T) {
	fs := vfs.NewMem()
	params := map[string]string{"CollectiveMetadata": "off"}
	w, err := OpenWriter(testDir, format.ModeWrite, WithFS(fs), WithParameters(params))
	require.NoError(t, err)

	put := putGlobalInt32(1, 4, format.PutSync)
	for step := range 3 {
		_, err := w.BeginStep(format.StepAppend, 0)
		require.NoError(t, err)
		require.NoError(t, put(w, 0, step))
		require.NoError(t, w.EndStep())
	}
	assert.Positive(t, fileSize(t, fs, "data.0"))
	assert.EqualValues(t, section.HeaderSize, fileSize(t, fs, section.IndexFileName))

	require.NoError(t, w.Close(transport.All))
	rd := openTestReader(t, fs)
	assert.Equal(t, 3, rd.Steps())
}

func TestWriter_ActiveFlag(t *testing.T) {
	fs := vfs.NewMem()
	w, err := OpenWriter(testDir, format.ModeWrite, WithFS(fs))
	require.NoError(t, err)
	assert.EqualValues(t, 1, fileBytes(t, fs, section.IndexFileName)[section.ActiveFlagOffset])

	_, err = w.BeginStep(format.StepAppend, 0)
	require.NoError(t, err)
	require.NoError(t, putGlobalInt32(1, 4, format.PutSync)(w, 0, 0))
	require.NoError(t, w.EndStep())

	// a reader sees the flushed step while the writer is still open
	rd, err := OpenReader(testDir, WithFS(fs))
	require.NoError(t, err)
	assert.True(t, rd.ActiveFlag())
	assert.Equal(t, 1, rd.Steps())
	require.NoError(t, rd.Close())

	require.NoError(t, w.Close(transport.All))
	index := fileBytes(t, fs, section.IndexFileName)
	assert.EqualValues(t, 0, index[section.ActiveFlagOffset])
	assert.EqualValues(t, section.BPVersion, index[section.BPVersionOffset])
}

func TestWriter_CloseCompletesOpenStep(t *testing.T) {
	fs := vfs.NewMem()
	w, err := OpenWriter(testDir, format.ModeWrite, WithFS(fs))
	require.NoError(t, err)

	_, err = w.BeginStep(format.StepAppend, 0)
	require.NoError(t, err)
	require.NoError(t, putGlobalInt32(1, 3, format.PutDeferred)(w, 0, 0))
	require.NoError(t, w.Close(transport.All))

	rd := openTestReader(t, fs)
	require.Equal(t, 1, rd.Steps())
	got, err := GetAs[int32](rd, "v", nil, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 1, 2}, got)
}

func TestWriter_StateErrors(t *testing.T) {
	fs := vfs.NewMem()
	w, err := OpenWriter(testDir, format.ModeWrite, WithFS(fs))
	require.NoError(t, err)

	v, err := serializer.NewVariable("x", format.TypeInt64, nil, nil, nil)
	require.NoError(t, err)

	require.True(t, errors.Is(w.Put(v, int64(1), format.PutSync), errs.ErrInvalidState))
	require.True(t, errors.Is(w.PerformPuts(), errs.ErrInvalidState))
	require.True(t, errors.Is(w.EndStep(), errs.ErrInvalidState))

	status, err := w.BeginStep(format.StepRead, 0)
	require.True(t, errors.Is(err, errs.ErrInvalidArgument))
	assert.Equal(t, format.StepOtherError, status)

	status, err = w.BeginStep(format.StepAppend, 0)
	require.NoError(t, err)
	assert.Equal(t, format.StepOK, status)

	_, err = w.BeginStep(format.StepAppend, 0)
	require.True(t, errors.Is(err, errs.ErrInvalidState))
	require.True(t, errors.Is(w.Flush(transport.All), errs.ErrInvalidState))
	require.True(t, errors.Is(w.Put(v, "text", format.PutSync), errs.ErrInvalidArgument))
	require.NoError(t, w.Put(v, int64(7), format.PutSync))
	require.NoError(t, w.EndStep())
	require.NoError(t, w.Flush(transport.All))

	require.NoError(t, w.Close(transport.All))
	require.True(t, errors.Is(w.Close(transport.All), errs.ErrClosed))
	_, err = w.BeginStep(format.StepAppend, 0)
	require.True(t, errors.Is(err, errs.ErrClosed))
	require.True(t, errors.Is(w.DefineAttribute("late", "x"), errs.ErrClosed))
}

func TestWriter_PutBeyondMaxBufferSize(t *testing.T) {
	fs := vfs.NewMem()
	w, err := OpenWriter(testDir, format.ModeWrite, WithFS(fs),
		WithParameters(map[string]string{"MaxBufferSize": "16KiB"}))
	require.NoError(t, err)

	big, err := serializer.NewVariable("big", format.TypeInt32, nil, nil, []uint64{8192})
	require.NoError(t, err)
	small, err := serializer.NewVariable("small", format.TypeInt32, nil, nil, []uint64{3})
	require.NoError(t, err)

	_, err = w.BeginStep(format.StepAppend, 0)
	require.NoError(t, err)
	require.True(t, errors.Is(w.Put(big, make([]int32, 8192), format.PutSync), errs.ErrBufferOverflow))

	// the rejected block leaves nothing behind and the step continues
	require.NoError(t, w.Put(small, []int32{1, 2, 3}, format.PutSync))
	require.NoError(t, w.EndStep())
	require.NoError(t, w.Close(transport.All))

	rd := openTestReader(t, fs)
	assert.Equal(t, []string{"small"}, rd.Variables())
	got, err := GetAs[int32](rd, "small", nil, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 3}, got)
}

func TestOpenWriter_InvalidArguments(t *testing.T) {
	fs := vfs.NewMem()

	_, err := OpenWriter(testDir, format.ModeReadRandomAccess, WithFS(fs))
	require.True(t, errors.Is(err, errs.ErrInvalidArgument))

	_, err = OpenWriter(testDir, format.ModeWrite, WithFS(fs), WithParameters(map[string]string{"Bogus": "1"}))
	require.True(t, errors.Is(err, errs.ErrInvalidArgument))

	_, err = OpenWriter(testDir, format.ModeWrite, WithFS(nil))
	require.True(t, errors.Is(err, errs.ErrInvalidArgument))

	assert.False(t, fileExists(fs, section.IndexFileName))
}

func TestWriter_FailingRankAbortsPeers(t *testing.T) {
	fs := vfs.NewMem()
	boom := errors.New("boom")

	err := comm.Run(2, func(c comm.Comm) error {
		w, err := OpenWriter(testDir, format.ModeWrite, WithFS(fs), WithComm(c))
		if err != nil {
			return err
		}
		if c.Rank() == 1 {
			return boom
		}
		if _, err := w.BeginStep(format.StepAppend, 0); err != nil {
			return err
		}
		if err := w.EndStep(); err != nil {
			return err
		}

		return w.Close(transport.All)
	})
	require.True(t, errors.Is(err, boom))
}
