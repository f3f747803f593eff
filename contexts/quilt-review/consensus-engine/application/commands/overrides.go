package commands

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	application "quiltqc/contexts/quilt-review/consensus-engine/application"
	domainerrors "quiltqc/contexts/quilt-review/consensus-engine/domain/errors"
	"quiltqc/contexts/quilt-review/consensus-engine/ports"
)

// FlagOverrideCommand is an operator decision on one block flag.
type FlagOverrideCommand struct {
	BlockID    int64
	Value      bool
	VerifiedBy string
	IPAddress  string
}

// BlockAdminUseCase holds operator actions that bypass voting.
type BlockAdminUseCase struct {
	Blocks       ports.BlockRepository
	ClosedBlocks *ClosedBlockCache
	Clock        ports.Clock
	Logger       *slog.Logger
}

func (uc BlockAdminUseCase) SetRecropFlag(ctx context.Context, cmd FlagOverrideCommand) error {
	update, err := uc.flagUpdate(cmd)
	if err != nil {
		return err
	}
	if err := uc.Blocks.SetRecropFlag(ctx, update); err != nil {
		return uc.writeFailed("consensus_override_recrop_failed", cmd.BlockID, err)
	}
	uc.logOverride("recrop", update)
	return nil
}

// SetNonStandardFlag also sets the confirmed flag to the same value: an
// operator decision counts as confirmation.
func (uc BlockAdminUseCase) SetNonStandardFlag(ctx context.Context, cmd FlagOverrideCommand) error {
	update, err := uc.flagUpdate(cmd)
	if err != nil {
		return err
	}
	if err := uc.Blocks.SetNonStandardFlag(ctx, update); err != nil {
		return uc.writeFailed("consensus_override_nonstandard_failed", cmd.BlockID, err)
	}
	uc.logOverride("not_8_panel", update)
	return nil
}

// ResetConsensus clears derived consensus fields so the next submission or
// recompute run evaluates the block again.
func (uc BlockAdminUseCase) ResetConsensus(ctx context.Context, blockID int64) error {
	if blockID <= 0 {
		return domainerrors.ErrInvalidBlockID
	}
	if err := uc.Blocks.ResetConsensus(ctx, blockID, resolveNow(uc.Clock)); err != nil {
		return uc.writeFailed("consensus_reset_failed", blockID, err)
	}
	uc.ClosedBlocks.Remove(blockID)
	application.ResolveLogger(uc.Logger).Info("consensus reset",
		"event", "consensus_reset_completed",
		"module", "quilt-review/consensus-engine",
		"layer", "application",
		"block_id", blockID,
	)
	return nil
}

func (uc BlockAdminUseCase) flagUpdate(cmd FlagOverrideCommand) (ports.FlagUpdate, error) {
	if cmd.BlockID <= 0 {
		return ports.FlagUpdate{}, domainerrors.ErrInvalidBlockID
	}
	verifiedBy := strings.TrimSpace(cmd.VerifiedBy)
	if verifiedBy == "" {
		return ports.FlagUpdate{}, domainerrors.ErrInvalidFlagUpdate
	}
	return ports.FlagUpdate{
		BlockID:    cmd.BlockID,
		Value:      cmd.Value,
		VerifiedBy: verifiedBy,
		VerifiedAt: resolveNow(uc.Clock),
		IPAddress:  strings.TrimSpace(cmd.IPAddress),
	}, nil
}

func (uc BlockAdminUseCase) writeFailed(event string, blockID int64, err error) error {
	if errors.Is(err, domainerrors.ErrBlockNotFound) {
		return err
	}
	application.ResolveLogger(uc.Logger).Error("block override failed",
		"event", event,
		"module", "quilt-review/consensus-engine",
		"layer", "application",
		"block_id", blockID,
		"error", err.Error(),
	)
	return errors.Join(domainerrors.ErrStorageWrite, err)
}

func (uc BlockAdminUseCase) logOverride(flag string, update ports.FlagUpdate) {
	application.ResolveLogger(uc.Logger).Info("block flag overridden",
		"event", "consensus_override_applied",
		"module", "quilt-review/consensus-engine",
		"layer", "application",
		"block_id", update.BlockID,
		"flag", flag,
		"value", update.Value,
		"verified_by", update.VerifiedBy,
	)
}
