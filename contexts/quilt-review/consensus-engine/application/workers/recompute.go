package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	application "quiltqc/contexts/quilt-review/consensus-engine/application"
	"quiltqc/contexts/quilt-review/consensus-engine/application/commands"
	"quiltqc/contexts/quilt-review/consensus-engine/domain/entities"
	domainerrors "quiltqc/contexts/quilt-review/consensus-engine/domain/errors"
	"quiltqc/contexts/quilt-review/consensus-engine/domain/services"
	"quiltqc/contexts/quilt-review/consensus-engine/ports"

	"github.com/gammazero/workerpool"
	"github.com/hashicorp/go-multierror"
	"github.com/sethvargo/go-retry"
)

const (
	defaultRecomputeWorkers  = 4
	defaultRecomputeAttempts = 3
	defaultRecomputeBackoff  = 200 * time.Millisecond
	maxRecomputeBackoff      = 5 * time.Second
)

type ConsensusChecker interface {
	Execute(ctx context.Context, blockID int64) (commands.CheckResult, error)
}

// RecomputeSummary counts per-block outcomes of one sweep.
type RecomputeSummary struct {
	Candidates   int
	Reached      int
	NoAgreement  int
	Insufficient int
	Failed       int
	DryRun       bool
}

// Recomputer re-runs the engine over every block that has enough votes but
// no consensus. Blocks are independent: a failing block is retried with
// exponential backoff, then recorded, and the sweep carries on.
type Recomputer struct {
	Queries     ports.BlockQueryRepository
	Votes       ports.VoteRepository
	Engine      ConsensusChecker
	Workers     int
	MaxAttempts int
	Backoff     time.Duration
	DryRun      bool
	Logger      *slog.Logger
}

func (r Recomputer) RunOnce(ctx context.Context) (RecomputeSummary, error) {
	logger := application.ResolveLogger(r.Logger)
	candidates, err := r.Queries.ListRecomputeCandidates(ctx)
	if err != nil {
		logger.Error("recompute candidate listing failed",
			"event", "consensus_recompute_list_failed",
			"module", "quilt-review/consensus-engine",
			"layer", "worker",
			"error", err.Error(),
		)
		return RecomputeSummary{}, err
	}

	summary := RecomputeSummary{Candidates: len(candidates), DryRun: r.DryRun}
	logger.Info("recompute sweep started",
		"event", "consensus_recompute_started",
		"module", "quilt-review/consensus-engine",
		"layer", "worker",
		"candidates", len(candidates),
		"dry_run", r.DryRun,
	)
	if len(candidates) == 0 {
		return summary, nil
	}

	workers := r.Workers
	if workers <= 0 {
		workers = defaultRecomputeWorkers
	}
	pool := workerpool.New(workers)

	var mu sync.Mutex
	var errs *multierror.Error
	record := func(outcome entities.Outcome, blockID int64, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			summary.Failed++
			errs = multierror.Append(errs, fmt.Errorf("block %d: %w", blockID, err))
			return
		}
		switch outcome {
		case entities.OutcomeConsensusReached:
			summary.Reached++
		case entities.OutcomeNoAgreement:
			summary.NoAgreement++
		default:
			summary.Insufficient++
		}
	}

	for _, blockID := range candidates {
		pool.Submit(func() {
			if ctx.Err() != nil {
				record("", blockID, ctx.Err())
				return
			}
			outcome, err := r.processBlock(ctx, blockID)
			if err != nil {
				logger.Error("recompute block failed",
					"event", "consensus_recompute_block_failed",
					"module", "quilt-review/consensus-engine",
					"layer", "worker",
					"block_id", blockID,
					"error", err.Error(),
				)
			}
			record(outcome, blockID, err)
		})
	}
	pool.StopWait()

	logger.Info("recompute sweep completed",
		"event", "consensus_recompute_completed",
		"module", "quilt-review/consensus-engine",
		"layer", "worker",
		"candidates", summary.Candidates,
		"reached", summary.Reached,
		"no_agreement", summary.NoAgreement,
		"insufficient", summary.Insufficient,
		"failed", summary.Failed,
		"dry_run", r.DryRun,
	)
	return summary, errs.ErrorOrNil()
}

func (r Recomputer) processBlock(ctx context.Context, blockID int64) (entities.Outcome, error) {
	backoff, err := r.backoff()
	if err != nil {
		return "", err
	}

	var outcome entities.Outcome
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		var attemptErr error
		if r.DryRun {
			outcome, attemptErr = r.preview(ctx, blockID)
		} else {
			var check commands.CheckResult
			check, attemptErr = r.Engine.Execute(ctx, blockID)
			outcome = check.Outcome
		}
		if attemptErr == nil {
			return nil
		}
		if errors.Is(attemptErr, domainerrors.ErrStorageRead) || errors.Is(attemptErr, domainerrors.ErrStorageWrite) {
			return retry.RetryableError(attemptErr)
		}
		return attemptErr
	})
	return outcome, err
}

// preview runs the pure engine without persisting anything.
func (r Recomputer) preview(ctx context.Context, blockID int64) (entities.Outcome, error) {
	votes, err := r.Votes.ListVotesByBlock(ctx, blockID)
	if err != nil {
		return "", errors.Join(domainerrors.ErrStorageRead, err)
	}
	return services.OutcomeOf(services.TallyVotes(votes)), nil
}

func (r Recomputer) backoff() (retry.Backoff, error) {
	base := r.Backoff
	if base <= 0 {
		base = defaultRecomputeBackoff
	}
	attempts := r.MaxAttempts
	if attempts <= 0 {
		attempts = defaultRecomputeAttempts
	}
	backoff, err := retry.NewExponential(base)
	if err != nil {
		return nil, err
	}
	backoff = retry.WithCappedDuration(maxRecomputeBackoff, backoff)
	return retry.WithMaxRetries(uint64(attempts-1), backoff), nil
}
