package commands

import (
	"context"
	"errors"
	"log/slog"
	"time"

	application "quiltqc/contexts/quilt-review/consensus-engine/application"
	"quiltqc/contexts/quilt-review/consensus-engine/domain/entities"
	domainerrors "quiltqc/contexts/quilt-review/consensus-engine/domain/errors"
	"quiltqc/contexts/quilt-review/consensus-engine/domain/services"
	"quiltqc/contexts/quilt-review/consensus-engine/ports"
	contractsv1 "quiltqc/contracts/gen/events/v1"
)

// CheckResult reports one engine invocation. Result is set only when the
// outcome is consensus_reached.
type CheckResult struct {
	BlockID    int64
	Outcome    entities.Outcome
	TotalVotes int
	Result     *entities.ConsensusResult
}

// CheckConsensusUseCase re-derives a block's consensus from its full vote
// list. Every call recomputes from scratch and touches only the given block.
// Storage failures are returned once; callers own any retry policy.
type CheckConsensusUseCase struct {
	Votes   ports.VoteRepository
	Blocks  ports.BlockRepository
	Locker  ports.BlockLocker
	Clock   ports.Clock
	IDGen   ports.IDGenerator
	Metrics ports.ConsensusMetrics
	Logger  *slog.Logger
}

func (uc CheckConsensusUseCase) Execute(ctx context.Context, blockID int64) (CheckResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	if blockID <= 0 {
		return CheckResult{}, domainerrors.ErrInvalidBlockID
	}
	started := time.Now()
	if uc.Locker == nil {
		return uc.evaluate(ctx, blockID, uc.Votes, uc.Blocks, started)
	}

	var (
		check   CheckResult
		evalErr error
		ran     bool
	)
	lockErr := uc.Locker.WithBlockLock(ctx, blockID, func(votes ports.VoteRepository, blocks ports.BlockRepository) error {
		ran = true
		check, evalErr = uc.evaluate(ctx, blockID, votes, blocks, started)
		return evalErr
	})
	if evalErr != nil {
		return CheckResult{}, evalErr
	}
	if lockErr != nil {
		kind, stage := domainerrors.ErrStorageRead, "lock"
		if ran {
			kind, stage = domainerrors.ErrStorageWrite, "commit"
		}
		logger.Error("consensus block lock failed",
			"event", "consensus_check_lock_failed",
			"module", "quilt-review/consensus-engine",
			"layer", "application",
			"block_id", blockID,
			"stage", stage,
			"error", lockErr.Error(),
		)
		uc.observeError(stage)
		return CheckResult{}, errors.Join(kind, lockErr)
	}
	return check, nil
}

// evaluate reads, tallies and persists through the given repositories, which
// are either the use case's own or the ones scoped to a held block lock.
func (uc CheckConsensusUseCase) evaluate(
	ctx context.Context,
	blockID int64,
	voteRepo ports.VoteRepository,
	blockRepo ports.BlockRepository,
	started time.Time,
) (CheckResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	votes, err := voteRepo.ListVotesByBlock(ctx, blockID)
	if err != nil {
		logger.Error("consensus vote read failed",
			"event", "consensus_check_read_failed",
			"module", "quilt-review/consensus-engine",
			"layer", "application",
			"block_id", blockID,
			"error", err.Error(),
		)
		uc.observeError("read")
		return CheckResult{}, errors.Join(domainerrors.ErrStorageRead, err)
	}

	check := CheckResult{
		BlockID:    blockID,
		TotalVotes: len(votes),
	}
	if len(votes) < entities.QuorumThreshold {
		check.Outcome = entities.OutcomeInsufficient
		uc.observe(check.Outcome, started)
		logger.Debug("consensus check found too few votes",
			"event", "consensus_check_insufficient",
			"module", "quilt-review/consensus-engine",
			"layer", "application",
			"block_id", blockID,
			"total_votes", len(votes),
		)
		return check, nil
	}

	tally := services.TallyVotes(votes)
	for _, group := range tally.Groups {
		if group.Pattern.Kind == entities.PatternUnparsed {
			logger.Debug("consensus vote data malformed",
				"event", "consensus_vote_data_malformed",
				"module", "quilt-review/consensus-engine",
				"layer", "application",
				"block_id", blockID,
				"first_vote_id", group.FirstVoteID,
				"votes", group.Count,
			)
		}
	}

	check.Outcome = services.OutcomeOf(tally)
	if check.Outcome != entities.OutcomeConsensusReached {
		uc.observe(check.Outcome, started)
		logger.Info("consensus not reached",
			"event", "consensus_check_no_agreement",
			"module", "quilt-review/consensus-engine",
			"layer", "application",
			"block_id", blockID,
			"total_votes", len(votes),
			"patterns", len(tally.Groups),
		)
		return check, nil
	}

	now := resolveNow(uc.Clock)
	result, err := services.SynthesizeResult(blockID, tally, now)
	if err != nil {
		return CheckResult{}, err
	}

	eventID, err := newEventID(ctx, uc.IDGen)
	if err != nil {
		uc.observeError("write")
		return CheckResult{}, errors.Join(domainerrors.ErrStorageWrite, err)
	}
	event, err := newBlockEnvelope(eventID, EventConsensusReached, blockID, now, contractsv1.BlockConsensusReached{
		BlockID:              blockID,
		FinalOrientationData: result.FinalOrientationData,
		NonStandard:          result.NonStandard,
		NeedsRecrop:          result.NeedsRecrop,
		VoteCount:            result.SupportingVotes,
		TotalVotes:           result.TotalVotes,
	})
	if err != nil {
		return CheckResult{}, err
	}

	if err := blockRepo.ApplyConsensus(ctx, result, event); err != nil {
		logger.Error("consensus persist failed",
			"event", "consensus_check_write_failed",
			"module", "quilt-review/consensus-engine",
			"layer", "application",
			"block_id", blockID,
			"error", err.Error(),
		)
		uc.observeError("write")
		if errors.Is(err, domainerrors.ErrBlockNotFound) {
			return CheckResult{}, err
		}
		return CheckResult{}, errors.Join(domainerrors.ErrStorageWrite, err)
	}

	check.Result = &result
	uc.observe(check.Outcome, started)
	logger.Info("consensus reached",
		"event", "consensus_check_reached",
		"module", "quilt-review/consensus-engine",
		"layer", "application",
		"block_id", blockID,
		"pattern_kind", string(result.Pattern.Kind),
		"vote_count", result.SupportingVotes,
		"total_votes", result.TotalVotes,
		"needs_recrop", result.NeedsRecrop,
	)
	return check, nil
}

func (uc CheckConsensusUseCase) observe(outcome entities.Outcome, started time.Time) {
	if uc.Metrics == nil {
		return
	}
	uc.Metrics.ObserveCheck(outcome, time.Since(started))
}

func (uc CheckConsensusUseCase) observeError(kind string) {
	if uc.Metrics == nil {
		return
	}
	uc.Metrics.ObserveCheckError(kind)
}
