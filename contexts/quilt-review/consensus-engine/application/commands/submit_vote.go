package commands

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	application "quiltqc/contexts/quilt-review/consensus-engine/application"
	"quiltqc/contexts/quilt-review/consensus-engine/domain/entities"
	domainerrors "quiltqc/contexts/quilt-review/consensus-engine/domain/errors"
	"quiltqc/contexts/quilt-review/consensus-engine/ports"
)

const maxOrientationDataBytes = 4096

// SubmitVoteCommand is one volunteer submission.
type SubmitVoteCommand struct {
	BlockID         int64
	OrientationData string
	NeedsRecrop     bool
	NonStandard     bool
	IPAddress       string
	UserSession     string
}

// SubmitVoteResult carries the stored vote plus the engine outcome. A failed
// consensus check does not fail the submission; it is reported through
// ConsensusError instead.
type SubmitVoteResult struct {
	Vote             entities.Vote
	Consensus        *CheckResult
	ConsensusSkipped bool
	ConsensusError   error
}

type SubmitVoteUseCase struct {
	Votes        ports.VoteRepository
	Blocks       ports.BlockRepository
	Consensus    CheckConsensusUseCase
	ClosedBlocks *ClosedBlockCache
	Clock        ports.Clock
	Metrics      ports.ConsensusMetrics
	Logger       *slog.Logger
}

func (uc SubmitVoteUseCase) Execute(ctx context.Context, cmd SubmitVoteCommand) (SubmitVoteResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	if cmd.BlockID <= 0 {
		return SubmitVoteResult{}, domainerrors.ErrInvalidBlockID
	}
	if len(cmd.OrientationData) > maxOrientationDataBytes {
		logger.Warn("vote submission rejected",
			"event", "consensus_vote_submit_validation_failed",
			"module", "quilt-review/consensus-engine",
			"layer", "application",
			"block_id", cmd.BlockID,
			"orientation_bytes", len(cmd.OrientationData),
		)
		return SubmitVoteResult{}, domainerrors.ErrInvalidVoteInput
	}

	block, err := uc.Blocks.GetBlock(ctx, cmd.BlockID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrBlockNotFound) {
			return SubmitVoteResult{}, err
		}
		return SubmitVoteResult{}, errors.Join(domainerrors.ErrStorageRead, err)
	}

	now := resolveNow(uc.Clock)
	vote, err := uc.Votes.AppendVote(ctx, entities.Vote{
		BlockID:         cmd.BlockID,
		OrientationData: cmd.OrientationData,
		NeedsRecrop:     cmd.NeedsRecrop,
		NonStandard:     cmd.NonStandard,
		IPAddress:       strings.TrimSpace(cmd.IPAddress),
		UserSession:     strings.TrimSpace(cmd.UserSession),
		CreatedAt:       now,
	})
	if err != nil {
		logger.Error("vote append failed",
			"event", "consensus_vote_append_failed",
			"module", "quilt-review/consensus-engine",
			"layer", "application",
			"block_id", cmd.BlockID,
			"error", err.Error(),
		)
		return SubmitVoteResult{}, errors.Join(domainerrors.ErrStorageWrite, err)
	}
	if uc.Metrics != nil {
		uc.Metrics.ObserveVote(vote.NonStandard, vote.NeedsRecrop)
	}
	logger.Info("vote recorded",
		"event", "consensus_vote_recorded",
		"module", "quilt-review/consensus-engine",
		"layer", "application",
		"block_id", vote.BlockID,
		"vote_id", vote.VoteID,
		"not_8_panel", vote.NonStandard,
		"needs_recrop", vote.NeedsRecrop,
	)

	closed := uc.ClosedBlocks.Contains(cmd.BlockID) || block.IsClosed()
	// A late non-standard vote must not rewrite a stored consensus; a late
	// recrop request still queues the block for review.
	raiseNonStandard := cmd.NonStandard && !closed
	if cmd.NeedsRecrop || raiseNonStandard {
		if err := uc.Blocks.RaiseVoteFlags(ctx, cmd.BlockID, cmd.NeedsRecrop, raiseNonStandard, now); err != nil {
			logger.Warn("block flag raise failed",
				"event", "consensus_vote_flags_failed",
				"module", "quilt-review/consensus-engine",
				"layer", "application",
				"block_id", cmd.BlockID,
				"error", err.Error(),
			)
		}
	}

	result := SubmitVoteResult{Vote: vote}
	if closed {
		uc.ClosedBlocks.Add(cmd.BlockID)
		result.ConsensusSkipped = true
		return result, nil
	}

	check, err := uc.Consensus.Execute(ctx, cmd.BlockID)
	if err != nil {
		logger.Error("consensus check after vote failed",
			"event", "consensus_vote_check_failed",
			"module", "quilt-review/consensus-engine",
			"layer", "application",
			"block_id", cmd.BlockID,
			"vote_id", vote.VoteID,
			"error", err.Error(),
		)
		result.ConsensusError = err
		return result, nil
	}
	if check.Outcome == entities.OutcomeConsensusReached {
		uc.ClosedBlocks.Add(cmd.BlockID)
	}
	result.Consensus = &check
	return result, nil
}
