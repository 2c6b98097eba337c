package aggregator

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/bp4/errs"
)

func TestChainFor_OnePerRank(t *testing.T) {
	for _, count := range []int{0, 4, 9} {
		for rank := range 4 {
			c, err := ChainFor(rank, 4, count)
			require.NoError(t, err)
			assert.Equal(t, Chain{SubStream: rank, ConsumerRank: rank, Rank: 0, Size: 1, SubStreams: 4}, c)
			assert.True(t, c.IsConsumer())
		}
	}
}

func TestChainFor_EvenSplit(t *testing.T) {
	want := []Chain{
		{SubStream: 0, ConsumerRank: 0, Rank: 0, Size: 3, SubStreams: 2},
		{SubStream: 0, ConsumerRank: 0, Rank: 1, Size: 3, SubStreams: 2},
		{SubStream: 0, ConsumerRank: 0, Rank: 2, Size: 3, SubStreams: 2},
		{SubStream: 1, ConsumerRank: 3, Rank: 0, Size: 3, SubStreams: 2},
		{SubStream: 1, ConsumerRank: 3, Rank: 1, Size: 3, SubStreams: 2},
		{SubStream: 1, ConsumerRank: 3, Rank: 2, Size: 3, SubStreams: 2},
	}
	for rank, w := range want {
		c, err := ChainFor(rank, 6, 2)
		require.NoError(t, err)
		assert.Equal(t, w, c, "rank %d", rank)
	}
}

func TestChainFor_Remainder(t *testing.T) {
	// 7 ranks in 3 chains: sizes 3, 2, 2
	wantStream := []int{0, 0, 0, 1, 1, 2, 2}
	wantConsumer := []int{0, 0, 0, 3, 3, 5, 5}
	for rank := range 7 {
		c, err := ChainFor(rank, 7, 3)
		require.NoError(t, err)
		assert.Equal(t, wantStream[rank], c.SubStream, "rank %d", rank)
		assert.Equal(t, wantConsumer[rank], c.ConsumerRank, "rank %d", rank)
		assert.Equal(t, rank-wantConsumer[rank], c.Rank, "rank %d", rank)
	}
}

func TestChainFor_Deterministic(t *testing.T) {
	for size := 1; size <= 12; size++ {
		for count := 0; count <= size; count++ {
			consumers := map[int]bool{}
			for rank := range size {
				a, err := ChainFor(rank, size, count)
				require.NoError(t, err)
				b, err := ChainFor(rank, size, count)
				require.NoError(t, err)
				assert.Equal(t, a, b)
				assert.Equal(t, rank, a.ConsumerRank+a.Rank)
				consumers[a.ConsumerRank] = true
			}
			want := count
			if count == 0 {
				want = size
			}
			assert.Len(t, consumers, want, "size %d count %d", size, count)
		}
	}
}

func TestChainFor_Invalid(t *testing.T) {
	_, err := ChainFor(0, 0, 1)
	require.True(t, errors.Is(err, errs.ErrInvalidArgument))
	_, err = ChainFor(4, 4, 1)
	require.True(t, errors.Is(err, errs.ErrInvalidArgument))
	_, err = ChainFor(0, 4, -1)
	require.True(t, errors.Is(err, errs.ErrInvalidArgument))
}
