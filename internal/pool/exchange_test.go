package pool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExchangeBuffer_StoreReusesCapacity(t *testing.T) {
	p := NewExchangePool(64, 0)
	eb := p.Get()
	require.NotNil(t, eb)
	assert.Equal(t, 0, eb.Len())

	eb.Store([]byte("first round"))
	assert.Equal(t, []byte("first round"), eb.Bytes())
	before := &eb.Bytes()[0]

	msg := []byte("second")
	eb.Store(msg)
	assert.Equal(t, []byte("second"), eb.Bytes())
	assert.Same(t, before, &eb.Bytes()[0])

	// the stored bytes are a copy
	msg[0] = 'X'
	assert.Equal(t, byte('s'), eb.Bytes()[0])

	assert.Empty(t, eb.Spare())
	assert.Equal(t, 64, cap(eb.Spare()))
}

func TestExchangePool_ResetsOnPut(t *testing.T) {
	p := NewExchangePool(16, 0)

	eb := p.Get()
	eb.Store([]byte("payload"))
	p.Put(eb)

	assert.Equal(t, 0, p.Get().Len())
}

func TestExchangePool_DropsOversized(t *testing.T) {
	p := NewExchangePool(16, 32)

	eb := p.Get()
	eb.Store(make([]byte, 64))
	p.Put(eb)

	for range 10 {
		assert.LessOrEqual(t, cap(p.Get().Spare()), 32)
	}
}

func TestExchangePool_Shared(t *testing.T) {
	eb := GetExchangeBuffer()
	require.NotNil(t, eb)
	assert.Equal(t, 0, eb.Len())
	PutExchangeBuffer(eb)

	require.NotPanics(t, func() { PutExchangeBuffer(nil) })
}

func TestExchangePool_ConcurrentAccess(t *testing.T) {
	p := NewExchangePool(16, 0)

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			eb := p.Get()
			eb.Store([]byte{byte(id)})
			assert.Equal(t, 1, eb.Len())
			p.Put(eb)
		}(i)
	}
	wg.Wait()
}
