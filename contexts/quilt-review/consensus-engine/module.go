package consensusengine

import (
	"log/slog"
	"time"

	httpadapter "quiltqc/contexts/quilt-review/consensus-engine/adapters/http"
	"quiltqc/contexts/quilt-review/consensus-engine/adapters/memory"
	"quiltqc/contexts/quilt-review/consensus-engine/application/commands"
	"quiltqc/contexts/quilt-review/consensus-engine/application/queries"
	"quiltqc/contexts/quilt-review/consensus-engine/application/workers"
	"quiltqc/contexts/quilt-review/consensus-engine/ports"
)

type Module struct {
	Handler     httpadapter.Handler
	Consensus   commands.CheckConsensusUseCase
	Recomputer  workers.Recomputer
	OutboxRelay workers.OutboxRelay
	Store       *memory.Store
}

type Dependencies struct {
	Votes     ports.VoteRepository
	Blocks    ports.BlockRepository
	Queries   ports.BlockQueryRepository
	Outbox    ports.OutboxRepository
	Publisher ports.EventPublisher

	// Locker is optional; without it concurrent checks on one block may both
	// write the same result.
	Locker  ports.BlockLocker
	Clock   ports.Clock
	IDGen   ports.IDGenerator
	Metrics ports.ConsensusMetrics

	ClosedBlockCacheSize int
	RecomputeWorkers     int
	RecomputeAttempts    int
	RecomputeBackoff     time.Duration
	Logger               *slog.Logger
}

func NewModule(deps Dependencies) (Module, error) {
	closed, err := commands.NewClosedBlockCache(deps.ClosedBlockCacheSize)
	if err != nil {
		return Module{}, err
	}
	consensus := commands.CheckConsensusUseCase{
		Votes:   deps.Votes,
		Blocks:  deps.Blocks,
		Locker:  deps.Locker,
		Clock:   deps.Clock,
		IDGen:   deps.IDGen,
		Metrics: deps.Metrics,
		Logger:  deps.Logger,
	}
	return Module{
		Handler: httpadapter.Handler{
			Votes: commands.SubmitVoteUseCase{
				Votes:        deps.Votes,
				Blocks:       deps.Blocks,
				Consensus:    consensus,
				ClosedBlocks: closed,
				Clock:        deps.Clock,
				Metrics:      deps.Metrics,
				Logger:       deps.Logger,
			},
			Consensus: consensus,
			Admin: commands.BlockAdminUseCase{
				Blocks:       deps.Blocks,
				ClosedBlocks: closed,
				Clock:        deps.Clock,
				Logger:       deps.Logger,
			},
			Recrop: commands.RecropUseCase{
				Blocks: deps.Blocks,
				Clock:  deps.Clock,
				IDGen:  deps.IDGen,
				Logger: deps.Logger,
			},
			Blocks: queries.BlockQueryUseCase{
				Blocks:  deps.Blocks,
				Queries: deps.Queries,
			},
			Stats:  queries.NewStatsUseCase(deps.Queries),
			Logger: deps.Logger,
		},
		Consensus: consensus,
		Recomputer: workers.Recomputer{
			Queries:     deps.Queries,
			Votes:       deps.Votes,
			Engine:      consensus,
			Workers:     deps.RecomputeWorkers,
			MaxAttempts: deps.RecomputeAttempts,
			Backoff:     deps.RecomputeBackoff,
			Logger:      deps.Logger,
		},
		OutboxRelay: workers.OutboxRelay{
			Outbox:    deps.Outbox,
			Publisher: deps.Publisher,
			Clock:     deps.Clock,
			Logger:    deps.Logger,
		},
	}, nil
}

// NewInMemoryModule wires every port to one memory store seeded with
// blockCount blocks.
func NewInMemoryModule(blockCount int, logger *slog.Logger) Module {
	store := memory.NewStore(blockCount)
	module, err := NewModule(Dependencies{
		Votes:            store,
		Blocks:           store,
		Queries:          store,
		Outbox:           store,
		Publisher:        store,
		Locker:           store,
		Clock:            store,
		IDGen:            store,
		RecomputeBackoff: time.Millisecond,
		Logger:           logger,
	})
	if err != nil {
		panic(err)
	}
	module.Store = store
	return module
}
