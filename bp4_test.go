package bp4

import (
	"testing"

	"github.com/cockroachdb/pebble/v2/vfs"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/bp4/comm"
	"github.com/arloliu/bp4/engine"
	"github.com/arloliu/bp4/format"
	"github.com/arloliu/bp4/serializer"
	"github.com/arloliu/bp4/transport"
)

// TestWriteAppendRead verifies the wrappers cover a write, an append and a read
func TestWriteAppendRead(t *testing.T) {
	fs := vfs.NewMem()

	write := func(open func(string, ...engine.Option) (*engine.Writer, error), steps int) {
		err := comm.Run(2, func(c comm.Comm) error {
			w, err := open("/sim.bp", engine.WithFS(fs), engine.WithComm(c))
			if err != nil {
				return err
			}

			v, err := NewVariable("rank", format.TypeInt32, []uint64{serializer.LocalValueDim}, nil, nil)
			if err != nil {
				return err
			}
			for range steps {
				if _, err := w.BeginStep(format.StepAppend, 0); err != nil {
					return err
				}
				if err := w.Put(v, int32(c.Rank()), format.PutSync); err != nil { //nolint:gosec
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

	write(OpenWriter, 2)
	write(OpenAppender, 1)

	r, err := OpenReader("/sim.bp", engine.WithFS(fs))
	require.NoError(t, err)
	defer r.Close() //nolint:errcheck

	require.Equal(t, 3, r.Steps())
	got, err := engine.GetAs[int32](r, "rank", nil, nil, 2)
	require.NoError(t, err)
	require.Equal(t, []int32{0, 1}, got)
}

// TestOpen verifies engine selection by name
func TestOpen(t *testing.T) {
	e, err := Open("Null", "/unused.bp", format.ModeWrite)
	require.NoError(t, err)
	require.Equal(t, engine.TypeNull, e.Type())
}

// TestMemberID verifies ids are stable per name
func TestMemberID(t *testing.T) {
	require.Equal(t, MemberID("temperature"), MemberID("temperature"))
	require.NotEqual(t, MemberID("temperature"), MemberID("pressure"))
}
