package ports

import (
	"context"
	"time"

	"quiltqc/contexts/quilt-review/consensus-engine/domain/entities"
	contractsv1 "quiltqc/contracts/gen/events/v1"
)

type VoteRepository interface {
	AppendVote(ctx context.Context, vote entities.Vote) (entities.Vote, error)
	// ListVotesByBlock returns every vote for the block ordered by
	// (created_at, vote_id). An empty list is not an error.
	ListVotesByBlock(ctx context.Context, blockID int64) ([]entities.Vote, error)
}

// FlagUpdate is an operator override of one block flag.
type FlagUpdate struct {
	BlockID    int64
	Value      bool
	VerifiedBy string
	VerifiedAt time.Time
	IPAddress  string
}

type BlockRepository interface {
	GetBlock(ctx context.Context, blockID int64) (entities.Block, error)
	// ApplyConsensus overwrites the derived consensus fields and appends the
	// event to the outbox in one transaction.
	ApplyConsensus(ctx context.Context, result entities.ConsensusResult, event EventEnvelope) error
	ResetConsensus(ctx context.Context, blockID int64, updatedAt time.Time) error
	// RaiseVoteFlags only ever sets raw flags to true; it never lowers them.
	// not_8_panel is left alone once the block has reached consensus.
	RaiseVoteFlags(ctx context.Context, blockID int64, needsRecrop bool, nonStandard bool, updatedAt time.Time) error
	SetRecropFlag(ctx context.Context, update FlagUpdate) error
	SetNonStandardFlag(ctx context.Context, update FlagUpdate) error
	CompleteRecrop(ctx context.Context, blockID int64, bounds entities.Bounds, completedAt time.Time, event EventEnvelope) error
	SeedBlocks(ctx context.Context, count int) (int, error)
}

type BlockQueryRepository interface {
	NextIncompleteBlock(ctx context.Context) (entities.Block, bool, error)
	NextRecropBlock(ctx context.Context) (entities.Block, bool, error)
	ListRecropBlocks(ctx context.Context) ([]entities.BlockSummary, error)
	ListNonStandardConfirmed(ctx context.Context) ([]entities.BlockSummary, error)
	ListNonStandardPending(ctx context.Context) ([]entities.BlockSummary, error)
	// ListRecomputeCandidates returns ids of blocks with at least two votes
	// and no consensus, ascending.
	ListRecomputeCandidates(ctx context.Context) ([]int64, error)
	Stats(ctx context.Context) (entities.Stats, error)
}

// BlockLocker serializes consensus evaluation per block. fn runs while the
// lock is held and must do its storage work through the repositories it is
// handed; they share the lock's connection.
type BlockLocker interface {
	WithBlockLock(ctx context.Context, blockID int64, fn func(votes VoteRepository, blocks BlockRepository) error) error
}

type EventEnvelope = contractsv1.Envelope

type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

// ConsensusMetrics receives engine outcomes. Implementations must be safe for
// concurrent use.
type ConsensusMetrics interface {
	ObserveCheck(outcome entities.Outcome, duration time.Duration)
	ObserveCheckError(kind string)
	ObserveVote(nonStandard bool, needsRecrop bool)
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
