package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiltqc/contexts/quilt-review/consensus-engine/adapters/memory"
	"quiltqc/contexts/quilt-review/consensus-engine/application/commands"
	"quiltqc/contexts/quilt-review/consensus-engine/domain/entities"
	domainerrors "quiltqc/contexts/quilt-review/consensus-engine/domain/errors"

	"github.com/stretchr/testify/require"
)

func seedVotes(t *testing.T, store *memory.Store, blockID int64, payloads ...string) {
	t.Helper()
	for _, payload := range payloads {
		_, err := store.AppendVote(context.Background(), entities.Vote{BlockID: blockID, OrientationData: payload})
		require.NoError(t, err)
	}
}

func newRecomputer(store *memory.Store) Recomputer {
	return Recomputer{
		Queries: store,
		Votes:   store,
		Engine: commands.CheckConsensusUseCase{
			Votes:  store,
			Blocks: store,
			Locker: store,
			Clock:  store,
			IDGen:  store,
		},
		Workers:     3,
		MaxAttempts: 3,
		Backoff:     time.Millisecond,
	}
}

func TestRecomputerResolvesEligibleBlocks(t *testing.T) {
	store := memory.NewStore(20)
	seedVotes(t, store, 1, "[1,2]", "[2,1]")
	seedVotes(t, store, 2, "[1]", "[2]")
	seedVotes(t, store, 3, "[5]")
	seedVotes(t, store, 4, "[7]", "[8]", "[7]")

	summary, err := newRecomputer(store).RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, summary.Candidates)
	require.Equal(t, 2, summary.Reached)
	require.Equal(t, 1, summary.NoAgreement)
	require.Zero(t, summary.Failed)

	block, err := store.GetBlock(context.Background(), 4)
	require.NoError(t, err)
	require.True(t, block.ConsensusReached)
	require.Equal(t, 2, block.VoteCount)

	candidates, err := store.ListRecomputeCandidates(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int64{2}, candidates)
}

func TestRecomputerDryRunWritesNothing(t *testing.T) {
	store := memory.NewStore(5)
	seedVotes(t, store, 1, "[1]", "[1]")

	recomputer := newRecomputer(store)
	recomputer.DryRun = true
	summary, err := recomputer.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, summary.DryRun)
	require.Equal(t, 1, summary.Reached)
	require.Zero(t, store.ConsensusWrites())
}

func TestRecomputerRetriesTransientWriteFailures(t *testing.T) {
	store := memory.NewStore(5)
	seedVotes(t, store, 2, "[3]", "[3]")
	store.FailTimes("apply_consensus", errors.New("serialization failure"), 2)

	summary, err := newRecomputer(store).RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Reached)
	require.Equal(t, 1, store.ConsensusWrites())
}

func TestRecomputerAggregatesPersistentFailuresAndContinues(t *testing.T) {
	store := memory.NewStore(5)
	seedVotes(t, store, 1, "[1]", "[1]")
	seedVotes(t, store, 2, "[2]", "[9]")
	store.FailOn("apply_consensus", errors.New("disk full"))

	summary, err := newRecomputer(store).RunOnce(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, domainerrors.ErrStorageWrite)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, 1, summary.NoAgreement)
}

func TestRecomputerCandidateListingFailure(t *testing.T) {
	store := memory.NewStore(5)
	store.FailOn("list_candidates", errors.New("timeout"))

	_, err := newRecomputer(store).RunOnce(context.Background())
	require.Error(t, err)
}
