package queries

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"quiltqc/contexts/quilt-review/consensus-engine/adapters/memory"
	"quiltqc/contexts/quilt-review/consensus-engine/domain/entities"
	"quiltqc/contexts/quilt-review/consensus-engine/ports"

	"github.com/stretchr/testify/require"
)

type slowStats struct {
	ports.BlockQueryRepository
	calls atomic.Int32
	gate  chan struct{}
}

func (s *slowStats) Stats(ctx context.Context) (entities.Stats, error) {
	s.calls.Add(1)
	<-s.gate
	return s.BlockQueryRepository.Stats(ctx)
}

func TestStatsUseCaseCollapsesConcurrentCalls(t *testing.T) {
	repo := &slowStats{BlockQueryRepository: memory.NewStore(10), gate: make(chan struct{})}
	uc := NewStatsUseCase(repo)

	var wg sync.WaitGroup
	results := make(chan entities.Stats, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stats, err := uc.Stats(context.Background())
			if err == nil {
				results <- stats
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(repo.gate)
	wg.Wait()
	close(results)

	count := 0
	for stats := range results {
		require.Equal(t, 10, stats.TotalBlocks)
		count++
	}
	require.Equal(t, 5, count)
	require.Less(t, repo.calls.Load(), int32(5))
}

func TestStatsCountsVotesAndFlags(t *testing.T) {
	store := memory.NewStore(6)
	ctx := context.Background()
	for _, vote := range []entities.Vote{
		{BlockID: 1, OrientationData: "[1]"},
		{BlockID: 2, OrientationData: "[1]"},
		{BlockID: 2, OrientationData: "[2]", NeedsRecrop: true},
		{BlockID: 3, NonStandard: true},
		{BlockID: 3, NonStandard: true},
		{BlockID: 3, NonStandard: true},
	} {
		_, err := store.AppendVote(ctx, vote)
		require.NoError(t, err)
	}
	require.NoError(t, store.RaiseVoteFlags(ctx, 2, true, false, time.Now()))

	stats, err := NewStatsUseCase(store).Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 6, stats.TotalBlocks)
	require.Equal(t, 6, stats.TotalVotes)
	require.Equal(t, 1, stats.Breakdown.BlocksWithOneVote)
	require.Equal(t, 1, stats.Breakdown.BlocksWithTwoVotes)
	require.Equal(t, 1, stats.Breakdown.BlocksWithThreeOrMore)
	require.Equal(t, 3, stats.Breakdown.VotesFromThreeOrMore)
	require.Equal(t, 3, stats.NonStandardVotes)
	require.Equal(t, 1, stats.UniqueNonStandardBlocks)
	require.Equal(t, 1, stats.NonStandardPending)
	require.Equal(t, 1, stats.BlocksNeedingRecrop)
}
