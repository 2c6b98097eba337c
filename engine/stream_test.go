package engine

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble/v2/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/arloliu/bp4/errs"
	"github.com/arloliu/bp4/format"
	"github.com/arloliu/bp4/transport"
)

var fastPolling = map[string]string{"BeginStepPollingFrequencySecs": "0.005"}

func writeStep(w *Writer, step int) error {
	if _, err := w.BeginStep(format.StepAppend, 0); err != nil {
		return err
	}
	if err := putGlobalInt32(1, 3, format.PutSync)(w, 0, step); err != nil {
		return err
	}

	return w.EndStep()
}

func TestReader_StepsFromActiveWriter(t *testing.T) {
	fs := vfs.NewMem()
	w, err := OpenWriter(testDir, format.ModeWrite, WithFS(fs), WithClock(fixedClock))
	require.NoError(t, err)
	require.NoError(t, writeStep(w, 0))

	rd, err := OpenReader(testDir, WithFS(fs), WithParameters(fastPolling))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rd.Close() })
	require.True(t, rd.ActiveFlag())
	assert.Equal(t, -1, rd.CurrentStep())

	status, err := rd.BeginStep(format.StepRead, 0)
	require.NoError(t, err)
	require.Equal(t, format.StepOK, status)
	assert.Equal(t, 0, rd.CurrentStep())
	got, err := GetAs[int32](rd, "v", nil, nil, rd.CurrentStep())
	require.NoError(t, err)
	assert.Equal(t, int32Global(1, 0, 3), got)
	require.NoError(t, rd.EndStep())

	// nothing new while the writer is still open
	status, err = rd.BeginStep(format.StepRead, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, format.StepNotReady, status)
	assert.Equal(t, 0, rd.CurrentStep())

	require.NoError(t, writeStep(w, 1))
	status, err = rd.BeginStep(format.StepRead, 0)
	require.NoError(t, err)
	require.Equal(t, format.StepOK, status)
	assert.Equal(t, 1, rd.CurrentStep())
	assert.Equal(t, 2, rd.Steps())
	got, err = GetAs[int32](rd, "v", nil, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, int32Global(1, 1, 3), got)

	info, err := rd.VariableInfo("v")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, info.Steps)
	require.NoError(t, rd.EndStep())

	require.NoError(t, w.Close(transport.All))
	status, err = rd.BeginStep(format.StepRead, time.Second)
	require.NoError(t, err)
	assert.Equal(t, format.StepEndOfStream, status)
	assert.False(t, rd.ActiveFlag())
	assert.Equal(t, 1, rd.CurrentStep())
}

func TestReader_StepsFollowConcurrentWriter(t *testing.T) {
	const steps = 4
	fs := vfs.NewMem()
	w, err := OpenWriter(testDir, format.ModeWrite, WithFS(fs), WithClock(fixedClock))
	require.NoError(t, err)
	require.NoError(t, writeStep(w, 0))

	rd, err := OpenReader(testDir, WithFS(fs), WithParameters(fastPolling))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rd.Close() })

	var g errgroup.Group
	g.Go(func() error {
		for step := 1; step < steps; step++ {
			time.Sleep(10 * time.Millisecond)
			if err := writeStep(w, step); err != nil {
				return err
			}
		}

		return w.Close(transport.All)
	})

	var seen []int32
	for {
		status, err := rd.BeginStep(format.StepRead, 5*time.Second)
		require.NoError(t, err)
		if status == format.StepEndOfStream {
			break
		}
		require.Equal(t, format.StepOK, status)

		got, err := GetAs[int32](rd, "v", []uint64{0}, []uint64{1}, rd.CurrentStep())
		require.NoError(t, err)
		seen = append(seen, got[0])
		require.NoError(t, rd.EndStep())
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, []int32{0, 1000, 2000, 3000}, seen)
}

func TestReader_StepsOfClosedDataset(t *testing.T) {
	fs := vfs.NewMem()
	writeDataset(t, fs, 2, format.ModeWrite, nil, 2, putGlobalInt32(2, 2, format.PutSync))
	rd := openTestReader(t, fs)

	for want := range 2 {
		status, err := rd.BeginStep(format.StepRead, -1)
		require.NoError(t, err)
		require.Equal(t, format.StepOK, status)
		assert.Equal(t, want, rd.CurrentStep())
		require.NoError(t, rd.EndStep())
	}

	// a closed dataset ends the stream without waiting for the open timeout
	start := time.Now()
	status, err := rd.BeginStep(format.StepRead, -1)
	require.NoError(t, err)
	assert.Equal(t, format.StepEndOfStream, status)
	assert.Less(t, time.Since(start), time.Second)
}

func TestReader_StepMisuse(t *testing.T) {
	fs := vfs.NewMem()
	writeDataset(t, fs, 1, format.ModeWrite, nil, 1, putGlobalInt32(1, 3, format.PutSync))
	rd := openTestReader(t, fs)

	require.True(t, errors.Is(rd.EndStep(), errs.ErrInvalidState))

	status, err := rd.BeginStep(format.StepAppend, 0)
	require.True(t, errors.Is(err, errs.ErrInvalidArgument))
	assert.Equal(t, format.StepOtherError, status)

	_, err = rd.BeginStep(format.StepRead, 0)
	require.NoError(t, err)
	_, err = rd.BeginStep(format.StepRead, 0)
	require.True(t, errors.Is(err, errs.ErrInvalidState))
}

func TestParseStreamParameters(t *testing.T) {
	tests := []struct {
		name    string
		params  map[string]string
		timeout time.Duration
		poll    time.Duration
	}{
		{name: "defaults", params: nil, timeout: time.Hour, poll: time.Second},
		{
			name:    "seconds",
			params:  map[string]string{"OpenTimeoutSecs": "2.5", "BeginStepPollingFrequencySecs": "0.25"},
			timeout: 2500 * time.Millisecond, poll: 250 * time.Millisecond,
		},
		{name: "negative timeout waits", params: map[string]string{"opentimeoutsecs": "-1"}, timeout: time.Duration(1<<63 - 1), poll: time.Second},
		{name: "negative polling keeps default", params: map[string]string{"BeginStepPollingFrequencySecs": "-3"}, timeout: time.Hour, poll: time.Second},
		{name: "writer keys ignored", params: map[string]string{"FlushStepsCount": "4"}, timeout: time.Hour, poll: time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := newSettings([]Option{WithParameters(tt.params)})
			require.NoError(t, err)

			p, err := parseStreamParameters(s, testDir)
			require.NoError(t, err)
			assert.Equal(t, tt.timeout, p.openTimeout)
			assert.Equal(t, tt.poll, p.pollInterval)
		})
	}

	s, err := newSettings([]Option{WithParameters(map[string]string{"OpenTimeoutSecs": "soon"})})
	require.NoError(t, err)
	_, err = parseStreamParameters(s, testDir)
	require.True(t, errors.Is(err, errs.ErrInvalidArgument))
}
