package pool

import (
	"sync"
)

// Exchange buffer sizes for the aggregation double buffers.
const (
	ExchangeBufferDefaultSize  = 1024 * 1024       // 1MiB
	ExchangeBufferMaxThreshold = 1024 * 1024 * 256 // 256MiB
)

// ExchangeBuffer holds one producer's data received by an aggregation consumer.
type ExchangeBuffer struct {
	b []byte
}

// Store replaces the contents with msg, reusing the retained capacity when it fits.
func (eb *ExchangeBuffer) Store(msg []byte) {
	eb.b = append(eb.b[:0], msg...)
}

// Bytes returns the stored data. It is valid until the next Store.
func (eb *ExchangeBuffer) Bytes() []byte {
	return eb.b
}

// Spare returns the empty buffer with its capacity, for a receive to fill.
func (eb *ExchangeBuffer) Spare() []byte {
	return eb.b[:0]
}

// Reset empties the buffer and keeps its capacity.
func (eb *ExchangeBuffer) Reset() {
	eb.b = eb.b[:0]
}

// Len returns the stored length.
func (eb *ExchangeBuffer) Len() int { return len(eb.b) }

// ExchangePool recycles exchange buffers. Buffers that grew past maxThreshold are dropped
// instead of being retained.
type ExchangePool struct {
	pool         sync.Pool
	maxThreshold int
}

// NewExchangePool creates a pool whose fresh buffers have defaultSize capacity.
func NewExchangePool(defaultSize, maxThreshold int) *ExchangePool {
	return &ExchangePool{
		pool: sync.Pool{
			New: func() any {
				return &ExchangeBuffer{b: make([]byte, 0, defaultSize)}
			},
		},
		maxThreshold: maxThreshold,
	}
}

// Get returns an empty buffer.
func (p *ExchangePool) Get() *ExchangeBuffer {
	eb, _ := p.pool.Get().(*ExchangeBuffer)
	return eb
}

// Put recycles eb.
func (p *ExchangePool) Put(eb *ExchangeBuffer) {
	if eb == nil {
		return
	}
	if p.maxThreshold > 0 && cap(eb.b) > p.maxThreshold {
		return
	}

	eb.Reset()
	p.pool.Put(eb)
}

var exchangePool = NewExchangePool(ExchangeBufferDefaultSize, ExchangeBufferMaxThreshold)

// GetExchangeBuffer returns an empty buffer from the shared exchange pool.
func GetExchangeBuffer() *ExchangeBuffer {
	return exchangePool.Get()
}

// PutExchangeBuffer recycles eb into the shared exchange pool.
func PutExchangeBuffer(eb *ExchangeBuffer) {
	exchangePool.Put(eb)
}
