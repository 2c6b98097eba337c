package aggregator

import (
	"bytes"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/bp4/comm"
	"github.com/arloliu/bp4/internal/pool"
)

// flush runs one aggregated flush the way the writer does and returns what the consumer wrote.
func flush(m *MPIChain, data *pool.Buffer) ([]byte, error) {
	var written []byte
	for r := range m.Size() {
		reqs, err := m.IExchange(data, r)
		if err != nil {
			return nil, err
		}
		posReqs, err := m.IExchangeAbsolutePosition(data, r)
		if err != nil {
			return nil, err
		}
		if m.IsConsumer() {
			written = append(written, m.GetConsumerBuffer(data, r)...)
		}
		if err := m.WaitAbsolutePosition(posReqs, data, r); err != nil {
			return nil, err
		}
		if err := m.Wait(reqs, r); err != nil {
			return nil, err
		}
		m.SwapBuffers(r)
	}

	return written, nil
}

func payload(rank, flushIdx int) []byte {
	return bytes.Repeat([]byte{byte('a' + rank)}, 3+rank+flushIdx*2)
}

func TestMPIChain_Pipeline(t *testing.T) {
	const size = 5

	var mu sync.Mutex
	files := map[int][]byte{}
	bases := map[int][]uint64{}

	err := comm.Run(size, func(c comm.Comm) error {
		m, err := NewMPIChain(c, 2)
		if err != nil {
			return err
		}
		defer m.Close()

		if !m.IsActive() {
			return errors.New("chain should be active")
		}

		data := pool.NewBuffer(2, 0)
		for f := range 2 {
			if _, err := data.Write(payload(c.Rank(), f)); err != nil {
				return err
			}
			written, err := flush(m, data)
			if err != nil {
				return err
			}

			mu.Lock()
			bases[c.Rank()] = append(bases[c.Rank()], data.AbsoluteBase())
			if m.IsConsumer() {
				files[m.SubStreamIndex()] = append(files[m.SubStreamIndex()], written...)
			}
			mu.Unlock()

			data.Reset(false)
			if m.IsConsumer() {
				data.SetAbsoluteBase(m.ConsumerEnd())
			}
		}

		return nil
	})
	require.NoError(t, err)

	// chains: {0,1,2} and {3,4}
	chains := [][]int{{0, 1, 2}, {3, 4}}
	for stream, members := range chains {
		var want []byte
		for f := range 2 {
			for _, r := range members {
				off := uint64(len(want))
				assert.Equal(t, off, bases[r][f], "rank %d flush %d", r, f)
				want = append(want, payload(r, f)...)
			}
		}
		assert.Equal(t, want, files[stream], "stream %d", stream)
	}
}

func TestMPIChain_Inactive(t *testing.T) {
	err := comm.Run(3, func(c comm.Comm) error {
		m, err := NewMPIChain(c, 0)
		if err != nil {
			return err
		}
		defer m.Close()

		if m.IsActive() || !m.IsConsumer() || m.Size() != 1 {
			return errors.Newf("rank %d: unexpected chain %+v", c.Rank(), m.Chain())
		}

		data := pool.NewBuffer(2, 0)
		data.SetAbsoluteBase(100)
		if _, err := data.Write(payload(c.Rank(), 0)); err != nil {
			return err
		}
		written, err := flush(m, data)
		if err != nil {
			return err
		}
		if !bytes.Equal(written, payload(c.Rank(), 0)) {
			return errors.Newf("rank %d wrote %q", c.Rank(), written)
		}
		if m.ConsumerEnd() != 100+uint64(len(written)) {
			return errors.Newf("rank %d end %d", c.Rank(), m.ConsumerEnd())
		}

		return nil
	})
	require.NoError(t, err)
}

func TestMPIChain_ClosedRejectsExchange(t *testing.T) {
	m, err := NewMPIChain(comm.Self(), 1)
	require.NoError(t, err)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err = m.IExchange(pool.NewBuffer(2, 0), 0)
	require.Error(t, err)
}
