package collision

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/bp4/errs"
)

func TestNewTracker(t *testing.T) {
	tracker := NewTracker()

	require.NotNil(t, tracker)
	require.Equal(t, 0, tracker.Count())
	require.Empty(t, tracker.Names())
}

func TestTracker_Track(t *testing.T) {
	tracker := NewTracker()

	require.NoError(t, tracker.Track("temperature", 0x1234))
	require.NoError(t, tracker.Track("pressure", 0x5678))
	require.NoError(t, tracker.Track("temperature", 0x1234), "same name twice is fine")

	require.Equal(t, 2, tracker.Count())
	require.Equal(t, []string{"temperature", "pressure"}, tracker.Names())

	name, ok := tracker.Lookup(0x5678)
	require.True(t, ok)
	require.Equal(t, "pressure", name)
}

func TestTracker_Collision(t *testing.T) {
	tracker := NewTracker()

	require.NoError(t, tracker.Track("a", 1))
	err := tracker.Track("b", 1)
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.ErrHashCollision))
	require.Contains(t, err.Error(), `"a" and "b"`)
}

func TestTracker_EmptyName(t *testing.T) {
	err := NewTracker().Track("", 1)
	require.True(t, errors.Is(err, errs.ErrInvalidArgument))
}

func TestTracker_Reset(t *testing.T) {
	tracker := NewTracker()
	require.NoError(t, tracker.Track("a", 1))

	tracker.Reset()
	require.Equal(t, 0, tracker.Count())
	require.NoError(t, tracker.Track("b", 1))
}
