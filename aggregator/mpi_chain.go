package aggregator

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/arloliu/bp4/comm"
	"github.com/arloliu/bp4/errs"
	"github.com/arloliu/bp4/internal/options"
	"github.com/arloliu/bp4/internal/pool"
)

const (
	tagHandshake = iota
	tagData
	tagPosition
)

// ExchangeRequests holds the in-flight data transfer of one round.
type ExchangeRequests struct {
	send *comm.Request
	recv *comm.Request
}

// PositionRequests holds the in-flight absolute position transfer of one round.
type PositionRequests struct {
	send *comm.Request
	recv *comm.Request
	// local carries the position when the chain has a single member.
	local    uint64
	hasLocal bool
}

// MPIChain runs the chain exchange for one rank.
type MPIChain struct {
	chain  Chain
	comm   comm.Comm
	active bool
	logger *zap.Logger

	buffers [2]*pool.ExchangeBuffer
	current int

	consumerEnd uint64
	closed      bool
}

// Option configures an MPIChain.
type Option = options.Option[*MPIChain]

// WithLogger sets the chain's logger.
func WithLogger(logger *zap.Logger) Option {
	return options.NoError(func(m *MPIChain) {
		if logger != nil {
			m.logger = logger
		}
	})
}

// NewMPIChain builds the chain of parent's caller for aggregatorCount chains and
// verifies the chain with a neighbor handshake. It is collective over parent.
//
// The chain is inactive when every rank is its own consumer.
func NewMPIChain(parent comm.Comm, aggregatorCount int, opts ...Option) (*MPIChain, error) {
	chain, err := ChainFor(parent.Rank(), parent.Size(), aggregatorCount)
	if err != nil {
		return nil, err
	}

	m := &MPIChain{
		chain:  chain,
		active: chain.SubStreams < parent.Size(),
		logger: zap.NewNop(),
	}
	if err := options.Apply(m, opts...); err != nil {
		return nil, err
	}

	sub, err := parent.Split(chain.SubStream, parent.Rank())
	if err != nil {
		return nil, errors.Wrap(err, "split aggregation chain")
	}
	if sub.Rank() != chain.Rank || sub.Size() != chain.Size {
		return nil, errors.AssertionFailedf("chain communicator rank %d/%d, expected %d/%d",
			sub.Rank(), sub.Size(), chain.Rank, chain.Size)
	}
	m.comm = sub

	if err := m.handshake(parent.Rank()); err != nil {
		return nil, err
	}

	m.buffers[0] = pool.GetExchangeBuffer()
	m.buffers[1] = pool.GetExchangeBuffer()

	m.logger.Debug("aggregation chain ready",
		zap.Bool("active", m.active),
		zap.Int("subStream", chain.SubStream),
		zap.Int("consumer", chain.ConsumerRank),
		zap.Int("chainRank", chain.Rank),
		zap.Int("chainSize", chain.Size),
	)

	return m, nil
}

// handshake passes each member's world rank to its successor, which checks that the
// predecessor is the rank right before it.
func (m *MPIChain) handshake(worldRank int) error {
	if m.chain.Size == 1 {
		return nil
	}

	var send *comm.Request
	if m.chain.Rank < m.chain.Size-1 {
		send = m.comm.Isend(encodeUint64(uint64(worldRank)), m.chain.Rank+1, tagHandshake)
	}
	if m.chain.Rank > 0 {
		msg, err := m.comm.Recv(m.chain.Rank-1, tagHandshake)
		if err != nil {
			return errors.Wrap(err, "aggregation handshake")
		}
		prev, err := decodeUint64(msg)
		if err != nil {
			return err
		}
		if int(prev) != worldRank-1 {
			return errors.AssertionFailedf("chain predecessor of rank %d is rank %d", worldRank, prev)
		}
	}
	_, err := send.Wait()

	return err
}

// Chain returns the rank's topology.
func (m *MPIChain) Chain() Chain { return m.chain }

// IsActive reports whether ranks share data files.
func (m *MPIChain) IsActive() bool { return m.active }

// IsConsumer reports whether the rank writes a data file.
func (m *MPIChain) IsConsumer() bool { return m.chain.IsConsumer() }

// Size returns the number of chain members, which is also the number of rounds.
func (m *MPIChain) Size() int { return m.chain.Size }

// SubStreamIndex returns the index of the data file the chain writes.
func (m *MPIChain) SubStreamIndex() int { return m.chain.SubStream }

// Comm returns the chain communicator.
func (m *MPIChain) Comm() comm.Comm { return m.comm }

// IExchange starts round r's data transfer: member r+1 sends its data to the consumer.
func (m *MPIChain) IExchange(data *pool.Buffer, r int) (ExchangeRequests, error) {
	if err := m.checkRound(r); err != nil {
		return ExchangeRequests{}, err
	}

	var reqs ExchangeRequests
	producer := r + 1
	if producer >= m.chain.Size {
		return reqs, nil
	}

	if m.chain.Rank == producer {
		reqs.send = m.comm.Isend(data.Bytes(), 0, tagData)
	}
	if m.IsConsumer() {
		reqs.recv = m.comm.Irecv(producer, tagData, m.buffers[m.current].Spare())
	}

	return reqs, nil
}

// IExchangeAbsolutePosition starts round r's position transfer: member r sends the end of
// its data to member r+1, and the last member sends the end of the chain's data to the
// consumer. The data buffer's absolute base is member r's position.
func (m *MPIChain) IExchangeAbsolutePosition(data *pool.Buffer, r int) (PositionRequests, error) {
	if err := m.checkRound(r); err != nil {
		return PositionRequests{}, err
	}

	var reqs PositionRequests
	end := data.AbsoluteBase() + uint64(data.Position())
	if m.chain.Size == 1 {
		reqs.local, reqs.hasLocal = end, true
		return reqs, nil
	}

	next := (r + 1) % m.chain.Size
	if m.chain.Rank == r {
		reqs.send = m.comm.Isend(encodeUint64(end), next, tagPosition)
	}
	if m.chain.Rank == next {
		reqs.recv = m.comm.Irecv(r, tagPosition, nil)
	}

	return reqs, nil
}

// GetConsumerBuffer returns the bytes the consumer writes in round r: its own data in the
// first round, afterwards the data received in the previous round.
func (m *MPIChain) GetConsumerBuffer(data *pool.Buffer, r int) []byte {
	if r == 0 {
		return data.Bytes()
	}

	return m.buffers[1-m.current].Bytes()
}

// WaitAbsolutePosition completes round r's position transfer. A member learning its
// position stores it as the data buffer's absolute base; the consumer keeps the chain end
// for ConsumerEnd.
func (m *MPIChain) WaitAbsolutePosition(reqs PositionRequests, data *pool.Buffer, r int) error {
	if reqs.hasLocal {
		m.consumerEnd = reqs.local
		return nil
	}

	if _, err := reqs.send.Wait(); err != nil {
		return errors.Wrapf(err, "send absolute position in round %d", r)
	}
	if reqs.recv == nil {
		return nil
	}

	msg, err := reqs.recv.Wait()
	if err != nil {
		return errors.Wrapf(err, "receive absolute position in round %d", r)
	}
	pos, err := decodeUint64(msg)
	if err != nil {
		return err
	}
	if m.IsConsumer() {
		m.consumerEnd = pos
	} else {
		data.SetAbsoluteBase(pos)
	}

	return nil
}

// Wait completes round r's data transfer.
func (m *MPIChain) Wait(reqs ExchangeRequests, r int) error {
	if _, err := reqs.send.Wait(); err != nil {
		return errors.Wrapf(err, "send data in round %d", r)
	}
	if reqs.recv == nil {
		return nil
	}

	msg, err := reqs.recv.Wait()
	if err != nil {
		return errors.Wrapf(err, "receive data in round %d", r)
	}
	m.buffers[m.current].Store(msg)

	return nil
}

// SwapBuffers flips the double buffer after round r so the next receive does not
// overwrite the data being written.
func (m *MPIChain) SwapBuffers(r int) {
	if m.IsConsumer() && r+1 < m.chain.Size {
		m.current = 1 - m.current
	}
}

// ResetBuffers empties both halves of the double buffer.
func (m *MPIChain) ResetBuffers() {
	m.current = 0
	for _, b := range m.buffers {
		if b != nil {
			b.Reset()
		}
	}
}

// ConsumerEnd returns, on the consumer, the absolute end of the chain's data after the
// last completed flush.
func (m *MPIChain) ConsumerEnd() uint64 {
	return m.consumerEnd
}

// Close releases the double buffer. Later exchanges fail.
func (m *MPIChain) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true

	for i, b := range m.buffers {
		if b != nil {
			pool.PutExchangeBuffer(b)
			m.buffers[i] = nil
		}
	}

	return nil
}

func (m *MPIChain) checkRound(r int) error {
	if m.closed {
		return errors.Wrap(errs.ErrClosed, "aggregation chain")
	}
	if r < 0 || r >= m.chain.Size {
		return errors.Wrapf(errs.ErrInvalidArgument, "round %d outside chain of size %d", r, m.chain.Size)
	}

	return nil
}

func encodeUint64(v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)

	return buf[:]
}

func decodeUint64(msg []byte) (uint64, error) {
	if len(msg) != 8 {
		return 0, errors.Wrapf(errs.ErrFormat, "position message has %d bytes", len(msg))
	}

	return binary.LittleEndian.Uint64(msg), nil
}
