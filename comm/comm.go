// Package comm provides the communicator capability the engine coordinates ranks with.
//
// Comm mirrors the subset of MPI the BP4 engine relies on: rank and size, barrier,
// broadcast, gather, reductions, blocking and non-blocking point-to-point messages, and
// communicator splitting. Collectives block every participant until all have arrived and
// cannot be cancelled.
//
// World is an in-process implementation where every rank is a goroutine. It backs
// single-process writers (Self) and the multi-rank tests:
//
//	err := comm.Run(4, func(c comm.Comm) error {
//	    data, err := c.Bcast(payload, 0)
//	    ...
//	})
package comm

// ReduceOp selects the reduction applied by Reduce and Allreduce.
type ReduceOp uint8

const (
	OpSum ReduceOp = iota + 1
	OpMax
	OpMin
)

// Comm is a group of ranks that exchange messages.
//
// All collective methods must be called by every rank of the group in the same order.
type Comm interface {
	// Rank returns the caller's rank within the group.
	Rank() int
	// Size returns the number of ranks in the group.
	Size() int
	// Barrier blocks until every rank has called it.
	Barrier() error
	// Bcast distributes root's data to every rank and returns it.
	Bcast(data []byte, root int) ([]byte, error)
	// BroadcastUint64 distributes root's value to every rank.
	BroadcastUint64(v uint64, root int) (uint64, error)
	// Gather collects one value per rank on root, indexed by rank. Other ranks get nil.
	Gather(v uint64, root int) ([]uint64, error)
	// Gatherv collects one byte slice per rank on root, indexed by rank. Other ranks get nil.
	// Messages larger than the group's chunk limit are transferred in pieces.
	Gatherv(data []byte, root int) ([][]byte, error)
	// Reduce combines one value per rank on root. Other ranks get zero.
	Reduce(v uint64, op ReduceOp, root int) (uint64, error)
	// Allreduce combines one value per rank and returns the result everywhere.
	Allreduce(v uint64, op ReduceOp) (uint64, error)
	// Send delivers data to dst. It returns once data may be reused.
	Send(data []byte, dst, tag int) error
	// Recv blocks until a message from src with tag arrives.
	Recv(src, tag int) ([]byte, error)
	// Isend starts a send; data may be reused once the request completes.
	Isend(data []byte, dst, tag int) *Request
	// Irecv starts a receive into the memory of into, which may be reallocated.
	Irecv(src, tag int, into []byte) *Request
	// Split partitions the group by color, ordering each part by key then rank.
	// A negative color returns a nil Comm for the caller.
	Split(color, key int) (Comm, error)
	// Duplicate returns a new group with the same members and a separate message space.
	Duplicate() (Comm, error)
}

// Request tracks a non-blocking operation.
type Request struct {
	done chan struct{}
	data []byte
	err  error
}

func newRequest() *Request {
	return &Request{done: make(chan struct{})}
}

func completedRequest(data []byte, err error) *Request {
	r := newRequest()
	r.complete(data, err)

	return r
}

func (r *Request) complete(data []byte, err error) {
	r.data = data
	r.err = err
	close(r.done)
}

// Wait blocks until the operation completes. For receives it returns the message.
// Waiting on a nil request returns immediately.
func (r *Request) Wait() ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	<-r.done

	return r.data, r.err
}

// WaitAll waits for every request and returns the first error.
func WaitAll(reqs ...*Request) error {
	var first error
	for _, r := range reqs {
		if _, err := r.Wait(); err != nil && first == nil {
			first = err
		}
	}

	return first
}
