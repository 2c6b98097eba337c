package comm

import (
	"context"
	"encoding/binary"
	"math"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/arloliu/bp4/errs"
	"github.com/arloliu/bp4/internal/hash"
	"github.com/arloliu/bp4/internal/options"
)

// DefaultChunkLimit is the largest single message Gatherv sends before splitting.
const DefaultChunkLimit = math.MaxInt32

// Tags reserved for collectives. User tags must be non-negative.
const (
	tagBarrier = -1 - iota
	tagBcast
	tagGather
	tagGatherv
	tagReduce
	tagSplit
)

var errAborted = errors.Mark(errors.New("communicator aborted"), errs.ErrClosed)

type mailboxKey struct {
	ctx      uint64
	src, dst int
	tag      int
}

type mailbox struct {
	queue [][]byte
}

// World is an in-process group of ranks connected by unbounded mailboxes.
//
// Sends never block; receives block until a matching message arrives or the world is
// aborted. Messages between the same pair with the same tag are delivered in order.
type World struct {
	size       int
	chunkLimit int

	mu      sync.Mutex
	cond    *sync.Cond
	boxes   map[mailboxKey]*mailbox
	aborted error
}

// WorldOption configures a World.
type WorldOption = options.Option[*World]

// WithChunkLimit sets the message size above which Gatherv splits payloads.
func WithChunkLimit(n int) WorldOption {
	return options.New(func(w *World) error {
		if n <= 0 {
			return errors.Wrapf(errs.ErrInvalidArgument, "chunk limit must be positive, got %d", n)
		}
		w.chunkLimit = n

		return nil
	})
}

// NewWorld creates a world of size ranks.
func NewWorld(size int, opts ...WorldOption) (*World, error) {
	if size <= 0 {
		return nil, errors.Wrapf(errs.ErrInvalidArgument, "world size must be positive, got %d", size)
	}

	w := &World{
		size:       size,
		chunkLimit: DefaultChunkLimit,
		boxes:      make(map[mailboxKey]*mailbox),
	}
	w.cond = sync.NewCond(&w.mu)

	if err := options.Apply(w, opts...); err != nil {
		return nil, err
	}

	return w, nil
}

// Size returns the number of ranks.
func (w *World) Size() int {
	return w.size
}

// Comm returns the world communicator seen by rank.
func (w *World) Comm(rank int) Comm {
	members := make([]int, w.size)
	for i := range members {
		members[i] = i
	}

	return &localComm{world: w, rank: rank, members: members}
}

// Abort wakes every blocked receive with err. Later operations fail immediately.
func (w *World) Abort(err error) {
	if err == nil {
		err = errAborted
	}

	w.mu.Lock()
	if w.aborted == nil {
		w.aborted = errors.Mark(err, errAborted)
	}
	w.mu.Unlock()
	w.cond.Broadcast()
}

func (w *World) post(key mailboxKey, data []byte) error {
	msg := make([]byte, len(data))
	copy(msg, data)

	w.mu.Lock()
	if w.aborted != nil {
		w.mu.Unlock()
		return w.aborted
	}
	box, ok := w.boxes[key]
	if !ok {
		box = &mailbox{}
		w.boxes[key] = box
	}
	box.queue = append(box.queue, msg)
	w.mu.Unlock()
	w.cond.Broadcast()

	return nil
}

func (w *World) take(key mailboxKey) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for {
		if box, ok := w.boxes[key]; ok && len(box.queue) > 0 {
			msg := box.queue[0]
			box.queue[0] = nil
			box.queue = box.queue[1:]
			if len(box.queue) == 0 {
				delete(w.boxes, key)
			}

			return msg, nil
		}
		if w.aborted != nil {
			return nil, w.aborted
		}
		w.cond.Wait()
	}
}

// Run executes fn once per rank of a new world, each on its own goroutine, and returns
// the first error. A failing rank aborts the world so peers blocked in collectives return.
func Run(size int, fn func(c Comm) error, opts ...WorldOption) error {
	w, err := NewWorld(size, opts...)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(context.Background())
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			w.Abort(context.Cause(ctx))
		case <-stop:
		}
	}()

	for rank := range size {
		c := w.Comm(rank)
		g.Go(func() error {
			return fn(c)
		})
	}

	err = g.Wait()
	close(stop)

	return err
}

// Self returns a single-rank communicator.
func Self() Comm {
	w, _ := NewWorld(1)
	return w.Comm(0)
}

type localComm struct {
	world   *World
	ctx     uint64
	rank    int
	members []int // world rank by local rank
	seq     uint64
}

var _ Comm = (*localComm)(nil)

func (c *localComm) Rank() int { return c.rank }

func (c *localComm) Size() int { return len(c.members) }

func (c *localComm) key(src, dst, tag int) mailboxKey {
	return mailboxKey{ctx: c.ctx, src: c.members[src], dst: c.members[dst], tag: tag}
}

func (c *localComm) checkRank(r int) error {
	if r < 0 || r >= len(c.members) {
		return errors.Wrapf(errs.ErrInvalidArgument, "rank %d outside communicator of size %d", r, len(c.members))
	}

	return nil
}

func (c *localComm) send(data []byte, dst, tag int) error {
	if err := c.checkRank(dst); err != nil {
		return err
	}

	return c.world.post(c.key(c.rank, dst, tag), data)
}

func (c *localComm) recv(src, tag int) ([]byte, error) {
	if err := c.checkRank(src); err != nil {
		return nil, err
	}

	return c.world.take(c.key(src, c.rank, tag))
}

func (c *localComm) Send(data []byte, dst, tag int) error {
	if tag < 0 {
		return errors.Wrapf(errs.ErrInvalidArgument, "negative tag %d", tag)
	}

	return c.send(data, dst, tag)
}

func (c *localComm) Recv(src, tag int) ([]byte, error) {
	if tag < 0 {
		return nil, errors.Wrapf(errs.ErrInvalidArgument, "negative tag %d", tag)
	}

	return c.recv(src, tag)
}

func (c *localComm) Isend(data []byte, dst, tag int) *Request {
	return completedRequest(nil, c.Send(data, dst, tag))
}

func (c *localComm) Irecv(src, tag int, into []byte) *Request {
	req := newRequest()
	go func() {
		msg, err := c.Recv(src, tag)
		if err != nil {
			req.complete(nil, err)
			return
		}
		req.complete(append(into[:0], msg...), nil)
	}()

	return req
}

func (c *localComm) Barrier() error {
	if _, err := c.Gather(0, 0); err != nil {
		return err
	}
	_, err := c.BroadcastUint64(0, 0)

	return err
}

func (c *localComm) Bcast(data []byte, root int) ([]byte, error) {
	if err := c.checkRank(root); err != nil {
		return nil, err
	}
	if c.rank != root {
		return c.recv(root, tagBcast)
	}

	for r := range c.members {
		if r == root {
			continue
		}
		if err := c.send(data, r, tagBcast); err != nil {
			return nil, err
		}
	}

	return data, nil
}

func (c *localComm) BroadcastUint64(v uint64, root int) (uint64, error) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)

	out, err := c.Bcast(buf[:], root)
	if err != nil {
		return 0, err
	}
	if len(out) != 8 {
		return 0, errors.Wrapf(errs.ErrFormat, "broadcast value has %d bytes", len(out))
	}

	return binary.LittleEndian.Uint64(out), nil
}

func (c *localComm) Gather(v uint64, root int) ([]uint64, error) {
	if err := c.checkRank(root); err != nil {
		return nil, err
	}

	if c.rank != root {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], v)

		return nil, c.send(buf[:], root, tagGather)
	}

	out := make([]uint64, len(c.members))
	for r := range c.members {
		if r == root {
			out[r] = v
			continue
		}
		msg, err := c.recv(r, tagGather)
		if err != nil {
			return nil, err
		}
		if len(msg) != 8 {
			return nil, errors.Wrapf(errs.ErrFormat, "gathered value from rank %d has %d bytes", r, len(msg))
		}
		out[r] = binary.LittleEndian.Uint64(msg)
	}

	return out, nil
}

// Gatherv sends the payload length first, then the payload in chunkLimit pieces.
func (c *localComm) Gatherv(data []byte, root int) ([][]byte, error) {
	if err := c.checkRank(root); err != nil {
		return nil, err
	}

	limit := c.world.chunkLimit
	if c.rank != root {
		var hdr [8]byte
		binary.LittleEndian.PutUint64(hdr[:], uint64(len(data)))
		if err := c.send(hdr[:], root, tagGatherv); err != nil {
			return nil, err
		}
		for off := 0; off < len(data); off += limit {
			end := min(off+limit, len(data))
			if err := c.send(data[off:end], root, tagGatherv); err != nil {
				return nil, err
			}
		}

		return nil, nil
	}

	out := make([][]byte, len(c.members))
	for r := range c.members {
		if r == root {
			out[r] = append([]byte(nil), data...)
			continue
		}
		hdr, err := c.recv(r, tagGatherv)
		if err != nil {
			return nil, err
		}
		if len(hdr) != 8 {
			return nil, errors.Wrapf(errs.ErrFormat, "gatherv header from rank %d has %d bytes", r, len(hdr))
		}
		total := binary.LittleEndian.Uint64(hdr)
		buf := make([]byte, 0, total)
		for uint64(len(buf)) < total {
			chunk, err := c.recv(r, tagGatherv)
			if err != nil {
				return nil, err
			}
			buf = append(buf, chunk...)
		}
		if uint64(len(buf)) != total {
			return nil, errors.Wrapf(errs.ErrFormat, "gatherv from rank %d: got %d of %d bytes", r, len(buf), total)
		}
		out[r] = buf
	}

	return out, nil
}

func reduce(values []uint64, op ReduceOp) (uint64, error) {
	var acc uint64
	for i, v := range values {
		switch {
		case i == 0:
			acc = v
		case op == OpSum:
			acc += v
		case op == OpMax:
			acc = max(acc, v)
		case op == OpMin:
			acc = min(acc, v)
		default:
			return 0, errors.Wrapf(errs.ErrInvalidArgument, "unknown reduce op %d", op)
		}
	}

	return acc, nil
}

func (c *localComm) Reduce(v uint64, op ReduceOp, root int) (uint64, error) {
	if op < OpSum || op > OpMin {
		return 0, errors.Wrapf(errs.ErrInvalidArgument, "unknown reduce op %d", op)
	}
	values, err := c.Gather(v, root)
	if err != nil || c.rank != root {
		return 0, err
	}

	return reduce(values, op)
}

func (c *localComm) Allreduce(v uint64, op ReduceOp) (uint64, error) {
	result, err := c.Reduce(v, op, 0)
	if err != nil {
		return 0, err
	}

	return c.BroadcastUint64(result, 0)
}

type splitEntry struct {
	color, key, rank int
}

func (c *localComm) Split(color, key int) (Comm, error) {
	var mine [16]byte
	binary.LittleEndian.PutUint64(mine[0:], uint64(int64(color)))
	binary.LittleEndian.PutUint64(mine[8:], uint64(int64(key)))

	parts, err := c.Gatherv(mine[:], 0)
	if err != nil {
		return nil, err
	}

	var table []byte
	if c.rank == 0 {
		table = make([]byte, 0, 16*len(parts))
		for _, p := range parts {
			table = append(table, p...)
		}
	}
	table, err = c.Bcast(table, 0)
	if err != nil {
		return nil, err
	}
	if len(table) != 16*len(c.members) {
		return nil, errors.Wrapf(errs.ErrFormat, "split table has %d bytes", len(table))
	}

	seq := c.seq
	c.seq++
	if color < 0 {
		return nil, nil
	}

	var group []splitEntry
	for r := range c.members {
		e := splitEntry{
			color: int(int64(binary.LittleEndian.Uint64(table[16*r:]))),
			key:   int(int64(binary.LittleEndian.Uint64(table[16*r+8:]))),
			rank:  r,
		}
		if e.color == color {
			group = append(group, e)
		}
	}
	sort.SliceStable(group, func(i, j int) bool {
		if group[i].key != group[j].key {
			return group[i].key < group[j].key
		}
		return group[i].rank < group[j].rank
	})

	sub := &localComm{
		world:   c.world,
		ctx:     hash.ContextID(c.ctx, seq, color),
		members: make([]int, len(group)),
	}
	for i, e := range group {
		sub.members[i] = c.members[e.rank]
		if e.rank == c.rank {
			sub.rank = i
		}
	}

	return sub, nil
}

func (c *localComm) Duplicate() (Comm, error) {
	if err := c.Barrier(); err != nil {
		return nil, err
	}

	seq := c.seq
	c.seq++

	return &localComm{
		world:   c.world,
		ctx:     hash.ContextID(c.ctx, seq, math.MinInt32),
		rank:    c.rank,
		members: append([]int(nil), c.members...),
	}, nil
}
