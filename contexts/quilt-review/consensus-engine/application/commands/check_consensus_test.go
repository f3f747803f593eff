package commands

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"quiltqc/contexts/quilt-review/consensus-engine/adapters/memory"
	"quiltqc/contexts/quilt-review/consensus-engine/domain/entities"
	domainerrors "quiltqc/contexts/quilt-review/consensus-engine/domain/errors"
	"quiltqc/contexts/quilt-review/consensus-engine/domain/services"
	"quiltqc/contexts/quilt-review/consensus-engine/ports"
	contractsv1 "quiltqc/contracts/gen/events/v1"

	"github.com/stretchr/testify/require"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newEngine(t *testing.T) (CheckConsensusUseCase, *memory.Store) {
	t.Helper()
	store := memory.NewStore(100)
	clock := &fixedClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	store.SetClock(clock.Now)
	return CheckConsensusUseCase{
		Votes:  store,
		Blocks: store,
		Locker: store,
		Clock:  clock,
		IDGen:  store,
	}, store
}

func addVote(t *testing.T, store *memory.Store, blockID int64, points string, nonStandard bool, recrop bool) {
	t.Helper()
	_, err := store.AppendVote(context.Background(), entities.Vote{
		BlockID:         blockID,
		OrientationData: points,
		NonStandard:     nonStandard,
		NeedsRecrop:     recrop,
	})
	require.NoError(t, err)
}

func TestCheckConsensusBlock42ReachesConsensusOnReorderedPoints(t *testing.T) {
	engine, store := newEngine(t)
	addVote(t, store, 42, "[1,2,3,4,5,6,7,8]", false, false)
	addVote(t, store, 42, "[8,7,6,5,4,3,2,1]", false, false)

	check, err := engine.Execute(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, entities.OutcomeConsensusReached, check.Outcome)
	require.NotNil(t, check.Result)

	block, err := store.GetBlock(context.Background(), 42)
	require.NoError(t, err)
	require.True(t, block.ConsensusReached)
	require.True(t, block.Completed)
	require.Equal(t, 2, block.VoteCount)
	points, ok := services.DecodeFinalOrientation(block.FinalOrientationData)
	require.True(t, ok)
	require.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, points)
}

func TestCheckConsensusBlock7SingleVoteIsInsufficient(t *testing.T) {
	engine, store := newEngine(t)
	addVote(t, store, 7, "[1,2,3]", false, true)
	before, err := store.GetBlock(context.Background(), 7)
	require.NoError(t, err)

	check, err := engine.Execute(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, entities.OutcomeInsufficient, check.Outcome)
	require.Nil(t, check.Result)

	after, err := store.GetBlock(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.Zero(t, store.ConsensusWrites())
}

func TestCheckConsensusBlockWithoutVotesIsInsufficient(t *testing.T) {
	engine, store := newEngine(t)

	check, err := engine.Execute(context.Background(), 11)
	require.NoError(t, err)
	require.Equal(t, entities.OutcomeInsufficient, check.Outcome)
	require.Zero(t, check.TotalVotes)
	require.Zero(t, store.ConsensusWrites())
}

func TestCheckConsensusBlock9FourDisagreeingVotes(t *testing.T) {
	engine, store := newEngine(t)
	before, err := store.GetBlock(context.Background(), 9)
	require.NoError(t, err)

	payloads := []string{"[1,2,3]", "[1,2,4]", "[1,2,5]", "[1,2,6]"}
	for _, payload := range payloads {
		addVote(t, store, 9, payload, false, false)
		check, err := engine.Execute(context.Background(), 9)
		require.NoError(t, err)
		require.NotEqual(t, entities.OutcomeConsensusReached, check.Outcome)
	}

	check, err := engine.Execute(context.Background(), 9)
	require.NoError(t, err)
	require.Equal(t, entities.OutcomeNoAgreement, check.Outcome)
	require.Equal(t, 4, check.TotalVotes)

	after, err := store.GetBlock(context.Background(), 9)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestCheckConsensusTwoOfThreeAgreeStoresSupportingCount(t *testing.T) {
	engine, store := newEngine(t)
	addVote(t, store, 3, "[1,2]", false, false)
	addVote(t, store, 3, "[5,6]", false, false)
	addVote(t, store, 3, "[2,1]", false, false)

	check, err := engine.Execute(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, entities.OutcomeConsensusReached, check.Outcome)
	require.Equal(t, 3, check.TotalVotes)

	block, err := store.GetBlock(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, 2, block.VoteCount)
}

func TestCheckConsensusNonStandardIgnoresGarbageData(t *testing.T) {
	engine, store := newEngine(t)
	addVote(t, store, 5, "{{garbage", true, false)
	addVote(t, store, 5, "[4,4,4]", true, false)

	_, err := engine.Execute(context.Background(), 5)
	require.NoError(t, err)

	block, err := store.GetBlock(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, entities.NonStandardSentinel, block.FinalOrientationData)
	require.True(t, block.NonStandard)
	require.True(t, block.NonStandardConfirmed)
}

func TestCheckConsensusIsIdempotent(t *testing.T) {
	engine, store := newEngine(t)
	addVote(t, store, 12, "[3,1]", false, true)
	addVote(t, store, 12, "[1,3]", false, true)

	_, err := engine.Execute(context.Background(), 12)
	require.NoError(t, err)
	first, err := store.GetBlock(context.Background(), 12)
	require.NoError(t, err)

	check, err := engine.Execute(context.Background(), 12)
	require.NoError(t, err)
	require.Equal(t, entities.OutcomeConsensusReached, check.Outcome)
	second, err := store.GetBlock(context.Background(), 12)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.True(t, second.NeedsRecrop)
	require.Equal(t, 1, store.ConsensusWrites())

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestCheckConsensusEmitsConsensusEvent(t *testing.T) {
	engine, store := newEngine(t)
	addVote(t, store, 20, "[2]", false, false)
	addVote(t, store, 20, "[2]", false, false)

	_, err := engine.Execute(context.Background(), 20)
	require.NoError(t, err)

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, EventConsensusReached, pending[0].EventType)
	require.Equal(t, "20", pending[0].PartitionKey)

	var envelope ports.EventEnvelope
	require.NoError(t, json.Unmarshal(pending[0].Payload, &envelope))
	var payload contractsv1.BlockConsensusReached
	require.NoError(t, envelope.DecodeData(EventConsensusReached, &payload))
	require.Equal(t, contractsv1.BlockConsensusReached{
		BlockID:              20,
		FinalOrientationData: `{"points":[2],"consensus":true}`,
		VoteCount:            2,
		TotalVotes:           2,
	}, payload)
}

func TestCheckConsensusReadFailure(t *testing.T) {
	engine, store := newEngine(t)
	cause := errors.New("connection reset")
	store.FailOn("list_votes", cause)

	_, err := engine.Execute(context.Background(), 4)
	require.ErrorIs(t, err, domainerrors.ErrStorageRead)
	require.ErrorIs(t, err, cause)
}

func TestCheckConsensusWriteFailureLeavesBlockUntouched(t *testing.T) {
	engine, store := newEngine(t)
	addVote(t, store, 6, "[1]", false, false)
	addVote(t, store, 6, "[1]", false, false)
	store.FailOn("apply_consensus", errors.New("disk full"))

	_, err := engine.Execute(context.Background(), 6)
	require.ErrorIs(t, err, domainerrors.ErrStorageWrite)

	block, err := store.GetBlock(context.Background(), 6)
	require.NoError(t, err)
	require.False(t, block.ConsensusReached)

	store.FailOn("apply_consensus", nil)
	check, err := engine.Execute(context.Background(), 6)
	require.NoError(t, err)
	require.Equal(t, entities.OutcomeConsensusReached, check.Outcome)
}

func TestCheckConsensusRejectsInvalidBlockID(t *testing.T) {
	engine, _ := newEngine(t)

	_, err := engine.Execute(context.Background(), 0)
	require.ErrorIs(t, err, domainerrors.ErrInvalidBlockID)
}

func TestCheckConsensusConcurrentChecksWriteOnce(t *testing.T) {
	engine, store := newEngine(t)
	addVote(t, store, 30, "[1,2]", false, false)
	addVote(t, store, 30, "[2,1]", false, false)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Execute(context.Background(), 30)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, 1, store.ConsensusWrites())
}

// boundedPool stands in for a database pool with a fixed number of
// connections. Holding the block lock takes one; every repository call made
// outside the lock's own connection needs another.
type boundedPool struct {
	store *memory.Store
	conns chan struct{}
}

func (p boundedPool) acquire(ctx context.Context) (func(), error) {
	select {
	case p.conns <- struct{}{}:
		return func() { <-p.conns }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p boundedPool) WithBlockLock(
	ctx context.Context,
	blockID int64,
	fn func(votes ports.VoteRepository, blocks ports.BlockRepository) error,
) error {
	release, err := p.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return p.store.WithBlockLock(ctx, blockID, fn)
}

type pooledVotes struct {
	ports.VoteRepository
	pool boundedPool
}

func (v pooledVotes) ListVotesByBlock(ctx context.Context, blockID int64) ([]entities.Vote, error) {
	release, err := v.pool.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return v.VoteRepository.ListVotesByBlock(ctx, blockID)
}

type pooledBlocks struct {
	ports.BlockRepository
	pool boundedPool
}

func (b pooledBlocks) ApplyConsensus(ctx context.Context, result entities.ConsensusResult, event ports.EventEnvelope) error {
	release, err := b.pool.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return b.BlockRepository.ApplyConsensus(ctx, result, event)
}

func TestCheckConsensusLockedChecksOutnumberingPoolComplete(t *testing.T) {
	engine, store := newEngine(t)
	pool := boundedPool{store: store, conns: make(chan struct{}, 4)}
	engine.Locker = pool
	engine.Votes = pooledVotes{VoteRepository: store, pool: pool}
	engine.Blocks = pooledBlocks{BlockRepository: store, pool: pool}

	blocks := []int64{50, 51, 52, 53, 54, 55, 56, 57}
	for _, blockID := range blocks {
		addVote(t, store, blockID, "[1,2]", false, false)
		addVote(t, store, blockID, "[2,1]", false, false)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 4*len(blocks))
	for i := 0; i < 4; i++ {
		for _, blockID := range blocks {
			wg.Add(1)
			go func(blockID int64) {
				defer wg.Done()
				_, err := engine.Execute(ctx, blockID)
				errs <- err
			}(blockID)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, len(blocks), store.ConsensusWrites())
	for _, blockID := range blocks {
		block, err := store.GetBlock(context.Background(), blockID)
		require.NoError(t, err)
		require.True(t, block.ConsensusReached)
	}
}

type failingLocker struct {
	err error
}

func (l failingLocker) WithBlockLock(
	context.Context,
	int64,
	func(ports.VoteRepository, ports.BlockRepository) error,
) error {
	return l.err
}

func TestCheckConsensusLockFailureIsStorageRead(t *testing.T) {
	engine, store := newEngine(t)
	addVote(t, store, 60, "[1]", false, false)
	addVote(t, store, 60, "[1]", false, false)
	engine.Locker = failingLocker{err: errors.New("too many clients")}

	_, err := engine.Execute(context.Background(), 60)
	require.ErrorIs(t, err, domainerrors.ErrStorageRead)
	require.Zero(t, store.ConsensusWrites())
}
