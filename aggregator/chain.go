// Package aggregator routes data from many producing ranks through fewer file-writing ranks.
//
// Ranks are partitioned into contiguous chains. The first member of each chain is the
// consumer: it owns the chain's data file and writes every member's data in chain order.
// Within a flush the chain runs one round per member; in round r the consumer writes
// member r's data while member r+1's data is already being received into the other half
// of a double buffer.
package aggregator

import (
	"github.com/cockroachdb/errors"

	"github.com/arloliu/bp4/errs"
)

// Chain describes one rank's place in the aggregation topology.
type Chain struct {
	// SubStream is the index of the chain and of the data file it writes.
	SubStream int
	// ConsumerRank is the world rank of the chain's consumer.
	ConsumerRank int
	// Rank is the member's position within the chain.
	Rank int
	// Size is the number of members in the chain.
	Size int
	// SubStreams is the total number of chains.
	SubStreams int
}

// IsConsumer reports whether the member writes the chain's data file.
func (c Chain) IsConsumer() bool {
	return c.Rank == 0
}

// ChainFor computes the chain of rank among worldSize ranks split into aggregatorCount
// chains. Chains are contiguous; when worldSize is not a multiple of aggregatorCount the
// first chains take one extra member. An aggregatorCount of 0, or one not below worldSize,
// gives every rank its own chain.
func ChainFor(rank, worldSize, aggregatorCount int) (Chain, error) {
	if worldSize <= 0 {
		return Chain{}, errors.Wrapf(errs.ErrInvalidArgument, "world size must be positive, got %d", worldSize)
	}
	if rank < 0 || rank >= worldSize {
		return Chain{}, errors.Wrapf(errs.ErrInvalidArgument, "rank %d outside world of size %d", rank, worldSize)
	}
	if aggregatorCount < 0 {
		return Chain{}, errors.Wrapf(errs.ErrInvalidArgument, "negative aggregator count %d", aggregatorCount)
	}

	if aggregatorCount == 0 || aggregatorCount >= worldSize {
		return Chain{SubStream: rank, ConsumerRank: rank, Rank: 0, Size: 1, SubStreams: worldSize}, nil
	}

	stride := worldSize / aggregatorCount
	remainder := worldSize % aggregatorCount

	consumer := 0
	for s := range aggregatorCount {
		size := stride
		if s < remainder {
			size++
		}
		if rank < consumer+size {
			return Chain{
				SubStream:    s,
				ConsumerRank: consumer,
				Rank:         rank - consumer,
				Size:         size,
				SubStreams:   aggregatorCount,
			}, nil
		}
		consumer += size
	}

	// unreachable: the chains cover every rank
	return Chain{}, errors.AssertionFailedf("rank %d not covered by %d chains", rank, aggregatorCount)
}
