package memory

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"quiltqc/contexts/quilt-review/consensus-engine/domain/entities"
	domainerrors "quiltqc/contexts/quilt-review/consensus-engine/domain/errors"
	"quiltqc/contexts/quilt-review/consensus-engine/ports"

	"github.com/google/uuid"
)

const lockStripes = 64

type injectedFailure struct {
	err       error
	remaining int
}

type outboxRecord struct {
	message   ports.OutboxMessage
	published bool
}

// Store is the in-memory adapter used by tests and local runs. Failures can be
// injected per operation to exercise storage error paths.
type Store struct {
	mu sync.RWMutex

	blocks     map[int64]entities.Block
	votes      map[int64][]entities.Vote
	nextVoteID int64
	outbox     map[string]outboxRecord
	outboxSeq  []string
	published  []ports.EventEnvelope

	failMu          sync.Mutex
	failures        map[string]*injectedFailure
	consensusWrites int

	stripes [lockStripes]sync.Mutex
	now     func() time.Time
}

// NewStore seeds blocks 1..blockCount.
func NewStore(blockCount int) *Store {
	store := &Store{
		blocks:   make(map[int64]entities.Block, blockCount),
		votes:    make(map[int64][]entities.Vote),
		outbox:   make(map[string]outboxRecord),
		failures: make(map[string]*injectedFailure),
		now:      func() time.Time { return time.Now().UTC() },
	}
	_, _ = store.SeedBlocks(context.Background(), blockCount)
	return store
}

// SetClock pins the time source; tests use it for deterministic ordering.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailOn makes every call of the named operation return err until cleared
// with a nil error.
func (s *Store) FailOn(operation string, err error) {
	s.FailTimes(operation, err, 0)
}

// FailTimes makes the next n calls of the named operation return err. n <= 0
// means until cleared.
func (s *Store) FailTimes(operation string, err error, n int) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	if err == nil {
		delete(s.failures, operation)
		return
	}
	s.failures[operation] = &injectedFailure{err: err, remaining: n}
}

func (s *Store) injected(operation string) error {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	failure, ok := s.failures[operation]
	if !ok {
		return nil
	}
	if failure.remaining > 0 {
		failure.remaining--
		if failure.remaining == 0 {
			delete(s.failures, operation)
		}
	}
	return failure.err
}

// ConsensusWrites counts ApplyConsensus calls that changed a block.
func (s *Store) ConsensusWrites() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.consensusWrites
}

// PublishedEvents returns events accepted by Publish, in order.
func (s *Store) PublishedEvents() []ports.EventEnvelope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ports.EventEnvelope(nil), s.published...)
}

func (s *Store) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

// WithBlockLock serializes fn per block on a striped mutex.
func (s *Store) WithBlockLock(
	ctx context.Context,
	blockID int64,
	fn func(votes ports.VoteRepository, blocks ports.BlockRepository) error,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stripe := &s.stripes[uint64(blockID)%lockStripes]
	stripe.Lock()
	defer stripe.Unlock()
	return fn(s, s)
}

func (s *Store) AppendVote(_ context.Context, vote entities.Vote) (entities.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("append_vote"); err != nil {
		return entities.Vote{}, err
	}
	if _, ok := s.blocks[vote.BlockID]; !ok {
		return entities.Vote{}, domainerrors.ErrBlockNotFound
	}
	s.nextVoteID++
	vote.VoteID = s.nextVoteID
	if vote.CreatedAt.IsZero() {
		vote.CreatedAt = s.now()
	}
	s.votes[vote.BlockID] = append(s.votes[vote.BlockID], vote)
	return vote, nil
}

func (s *Store) ListVotesByBlock(_ context.Context, blockID int64) ([]entities.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected("list_votes"); err != nil {
		return nil, err
	}
	votes := append([]entities.Vote(nil), s.votes[blockID]...)
	sort.SliceStable(votes, func(i, j int) bool {
		if votes[i].CreatedAt.Equal(votes[j].CreatedAt) {
			return votes[i].VoteID < votes[j].VoteID
		}
		return votes[i].CreatedAt.Before(votes[j].CreatedAt)
	})
	return votes, nil
}

func (s *Store) GetBlock(_ context.Context, blockID int64) (entities.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected("get_block"); err != nil {
		return entities.Block{}, err
	}
	block, ok := s.blocks[blockID]
	if !ok {
		return entities.Block{}, domainerrors.ErrBlockNotFound
	}
	return block, nil
}

func (s *Store) ApplyConsensus(_ context.Context, result entities.ConsensusResult, event ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("apply_consensus"); err != nil {
		return err
	}
	block, ok := s.blocks[result.BlockID]
	if !ok {
		return domainerrors.ErrBlockNotFound
	}
	if sameConsensus(block, result) {
		return nil
	}
	block.ConsensusReached = true
	block.Completed = true
	block.NonStandard = result.NonStandard
	block.NonStandardConfirmed = result.NonStandardConfirmed
	block.NeedsRecrop = result.NeedsRecrop
	block.VoteCount = result.SupportingVotes
	block.FinalOrientationData = result.FinalOrientationData
	block.UpdatedAt = result.ReachedAt
	s.blocks[result.BlockID] = block
	s.consensusWrites++
	return s.appendOutboxLocked(event)
}

func (s *Store) ResetConsensus(_ context.Context, blockID int64, updatedAt time.Time) error {
	return s.updateBlock(blockID, "reset_consensus", func(block *entities.Block) {
		block.ConsensusReached = false
		block.Completed = false
		block.NonStandardConfirmed = false
		block.VoteCount = 0
		block.FinalOrientationData = ""
		block.UpdatedAt = updatedAt.UTC()
	})
}

func (s *Store) RaiseVoteFlags(_ context.Context, blockID int64, needsRecrop bool, nonStandard bool, updatedAt time.Time) error {
	return s.updateBlock(blockID, "raise_flags", func(block *entities.Block) {
		block.NeedsRecrop = block.NeedsRecrop || needsRecrop
		block.NonStandard = block.NonStandard || (nonStandard && !block.ConsensusReached)
		block.UpdatedAt = updatedAt.UTC()
	})
}

func (s *Store) SetRecropFlag(_ context.Context, update ports.FlagUpdate) error {
	return s.updateBlock(update.BlockID, "set_flag", func(block *entities.Block) {
		block.NeedsRecrop = update.Value
		applyVerification(block, update)
	})
}

func (s *Store) SetNonStandardFlag(_ context.Context, update ports.FlagUpdate) error {
	return s.updateBlock(update.BlockID, "set_flag", func(block *entities.Block) {
		block.NonStandard = update.Value
		block.NonStandardConfirmed = update.Value
		applyVerification(block, update)
	})
}

func (s *Store) CompleteRecrop(
	_ context.Context,
	blockID int64,
	bounds entities.Bounds,
	completedAt time.Time,
	event ports.EventEnvelope,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("complete_recrop"); err != nil {
		return err
	}
	block, ok := s.blocks[blockID]
	if !ok {
		return domainerrors.ErrBlockNotFound
	}
	stored := bounds
	block.RecropBounds = &stored
	block.NeedsRecrop = false
	block.RecropCompleted = true
	block.UpdatedAt = completedAt.UTC()
	s.blocks[blockID] = block
	return s.appendOutboxLocked(event)
}

func (s *Store) SeedBlocks(_ context.Context, count int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	created := 0
	now := s.now()
	for id := int64(1); id <= int64(count); id++ {
		if _, ok := s.blocks[id]; ok {
			continue
		}
		s.blocks[id] = entities.Block{BlockID: id, CreatedAt: now, UpdatedAt: now}
		created++
	}
	return created, nil
}

func (s *Store) NextIncompleteBlock(_ context.Context) (entities.Block, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected("query"); err != nil {
		return entities.Block{}, false, err
	}
	open := make([]entities.Block, 0)
	for _, block := range s.blocks {
		if !block.ConsensusReached {
			open = append(open, block)
		}
	}
	if len(open) == 0 {
		return entities.Block{}, false, nil
	}
	return open[rand.IntN(len(open))], true, nil
}

func (s *Store) NextRecropBlock(_ context.Context) (entities.Block, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected("query"); err != nil {
		return entities.Block{}, false, err
	}
	for _, block := range s.sortedBlocksLocked() {
		if block.NeedsRecrop && !block.RecropCompleted {
			return block, true, nil
		}
	}
	return entities.Block{}, false, nil
}

func (s *Store) ListRecropBlocks(_ context.Context) ([]entities.BlockSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected("query"); err != nil {
		return nil, err
	}
	items := make([]entities.BlockSummary, 0)
	for _, block := range s.sortedBlocksLocked() {
		if !block.NeedsRecrop {
			continue
		}
		summary := summarize(block)
		summary.VoteCount = len(s.votes[block.BlockID])
		items = append(items, summary)
	}
	return items, nil
}

func (s *Store) ListNonStandardConfirmed(_ context.Context) ([]entities.BlockSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected("query"); err != nil {
		return nil, err
	}
	items := make([]entities.BlockSummary, 0)
	for _, block := range s.sortedBlocksLocked() {
		if block.NonStandard && block.NonStandardConfirmed {
			items = append(items, summarize(block))
		}
	}
	return items, nil
}

func (s *Store) ListNonStandardPending(_ context.Context) ([]entities.BlockSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected("query"); err != nil {
		return nil, err
	}
	items := make([]entities.BlockSummary, 0)
	for _, block := range s.sortedBlocksLocked() {
		if block.ConsensusReached {
			continue
		}
		summary := entities.BlockSummary{BlockID: block.BlockID, NonStandard: true}
		for _, vote := range s.votes[block.BlockID] {
			if !vote.NonStandard {
				continue
			}
			summary.VoteCount++
			if vote.CreatedAt.After(summary.UpdatedAt) {
				summary.UpdatedAt = vote.CreatedAt
			}
		}
		if summary.VoteCount > 0 {
			items = append(items, summary)
		}
	}
	return items, nil
}

func (s *Store) ListRecomputeCandidates(_ context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected("list_candidates"); err != nil {
		return nil, err
	}
	ids := make([]int64, 0)
	for _, block := range s.sortedBlocksLocked() {
		if !block.ConsensusReached && len(s.votes[block.BlockID]) >= entities.QuorumThreshold {
			ids = append(ids, block.BlockID)
		}
	}
	return ids, nil
}

func (s *Store) Stats(_ context.Context) (entities.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected("query"); err != nil {
		return entities.Stats{}, err
	}
	stats := entities.Stats{TotalBlocks: len(s.blocks)}
	pending := make(map[int64]struct{})
	for _, block := range s.blocks {
		if block.Completed {
			stats.CompletedBlocks++
		}
		if block.ConsensusReached {
			stats.ConsensusReached++
		}
		if block.NonStandard {
			if block.ConsensusReached {
				stats.NonStandardCompleted++
			}
		} else {
			stats.StandardBlocks++
			if block.ConsensusReached {
				stats.StandardCompleted++
			}
		}
		if block.NeedsRecrop {
			stats.BlocksNeedingRecrop++
		} else if block.RecropCompleted {
			stats.BlocksRecropped++
		}

		votes := s.votes[block.BlockID]
		switch n := len(votes); {
		case n == 1:
			stats.Breakdown.BlocksWithOneVote++
			stats.Breakdown.VotesFromOneVoteBlocks += n
		case n == 2:
			stats.Breakdown.BlocksWithTwoVotes++
			stats.Breakdown.VotesFromTwoVoteBlocks += n
		case n >= 3:
			stats.Breakdown.BlocksWithThreeOrMore++
			stats.Breakdown.VotesFromThreeOrMore += n
		}

		sawNonStandard, sawRecrop := false, false
		for _, vote := range votes {
			stats.TotalVotes++
			if vote.NonStandard {
				stats.NonStandardVotes++
				sawNonStandard = true
			}
			if vote.NeedsRecrop {
				stats.NeedsRecropVotes++
				sawRecrop = true
			}
		}
		if sawNonStandard {
			stats.UniqueNonStandardBlocks++
			if !block.ConsensusReached {
				pending[block.BlockID] = struct{}{}
			}
		}
		if sawRecrop {
			stats.UniqueNeedsRecropBlocks++
		}
	}
	stats.NonStandardPending = len(pending)
	return stats, nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	items := make([]ports.OutboxMessage, 0, limit)
	for _, outboxID := range s.outboxSeq {
		record := s.outbox[outboxID]
		if record.published {
			continue
		}
		items = append(items, record.message)
		if len(items) == limit {
			break
		}
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.outbox[strings.TrimSpace(outboxID)]
	if !ok {
		return domainerrors.ErrConflict
	}
	record.published = true
	s.outbox[strings.TrimSpace(outboxID)] = record
	return nil
}

func (s *Store) Publish(_ context.Context, _ string, event ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("publish"); err != nil {
		return err
	}
	s.published = append(s.published, event)
	return nil
}

func (s *Store) updateBlock(blockID int64, operation string, mutate func(block *entities.Block)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(operation); err != nil {
		return err
	}
	block, ok := s.blocks[blockID]
	if !ok {
		return domainerrors.ErrBlockNotFound
	}
	mutate(&block)
	s.blocks[blockID] = block
	return nil
}

func (s *Store) appendOutboxLocked(event ports.EventEnvelope) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	outboxID := strings.TrimSpace(event.EventID)
	if outboxID == "" {
		outboxID = uuid.NewString()
	}
	if _, exists := s.outbox[outboxID]; exists {
		return nil
	}
	s.outbox[outboxID] = outboxRecord{message: ports.OutboxMessage{
		OutboxID:     outboxID,
		EventType:    event.EventType,
		PartitionKey: event.PartitionKey,
		Payload:      payload,
		CreatedAt:    event.OccurredAt.UTC(),
	}}
	s.outboxSeq = append(s.outboxSeq, outboxID)
	return nil
}

func (s *Store) sortedBlocksLocked() []entities.Block {
	items := make([]entities.Block, 0, len(s.blocks))
	for _, block := range s.blocks {
		items = append(items, block)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].BlockID < items[j].BlockID
	})
	return items
}

func sameConsensus(block entities.Block, result entities.ConsensusResult) bool {
	return block.ConsensusReached &&
		block.Completed &&
		block.NonStandard == result.NonStandard &&
		block.NonStandardConfirmed == result.NonStandardConfirmed &&
		block.NeedsRecrop == result.NeedsRecrop &&
		block.VoteCount == result.SupportingVotes &&
		block.FinalOrientationData == result.FinalOrientationData
}

func applyVerification(block *entities.Block, update ports.FlagUpdate) {
	verifiedAt := update.VerifiedAt.UTC()
	block.VerifiedBy = update.VerifiedBy
	block.VerifiedAt = &verifiedAt
	if update.IPAddress != "" {
		block.IPAddress = update.IPAddress
	}
	block.UpdatedAt = verifiedAt
}

func summarize(block entities.Block) entities.BlockSummary {
	return entities.BlockSummary{
		BlockID:              block.BlockID,
		NeedsRecrop:          block.NeedsRecrop,
		NonStandard:          block.NonStandard,
		NonStandardConfirmed: block.NonStandardConfirmed,
		ConsensusReached:     block.ConsensusReached,
		VoteCount:            block.VoteCount,
		FinalOrientationData: block.FinalOrientationData,
		UpdatedAt:            block.UpdatedAt,
	}
}

var _ ports.VoteRepository = (*Store)(nil)
var _ ports.BlockRepository = (*Store)(nil)
var _ ports.BlockQueryRepository = (*Store)(nil)
var _ ports.BlockLocker = (*Store)(nil)
var _ ports.OutboxRepository = (*Store)(nil)
var _ ports.EventPublisher = (*Store)(nil)
var _ ports.Clock = (*Store)(nil)
var _ ports.IDGenerator = (*Store)(nil)
