package commands

import (
	"context"
	"errors"
	"log/slog"

	application "quiltqc/contexts/quilt-review/consensus-engine/application"
	"quiltqc/contexts/quilt-review/consensus-engine/domain/entities"
	domainerrors "quiltqc/contexts/quilt-review/consensus-engine/domain/errors"
	"quiltqc/contexts/quilt-review/consensus-engine/domain/services"
	"quiltqc/contexts/quilt-review/consensus-engine/ports"
	contractsv1 "quiltqc/contracts/gen/events/v1"
)

// RecropCommand carries corners drawn on the reference preview. When both
// image dimensions are zero the corners are taken as source coordinates.
type RecropCommand struct {
	BlockID     int64
	Corners     []entities.Point
	ImageWidth  int
	ImageHeight int
	VerifiedBy  string
}

type RecropPlan struct {
	Corners []entities.Point
	Bounds  entities.Bounds
}

type RecropUseCase struct {
	Blocks ports.BlockRepository
	Clock  ports.Clock
	IDGen  ports.IDGenerator
	Logger *slog.Logger
}

// Preview computes crop bounds without touching storage.
func (uc RecropUseCase) Preview(cmd RecropCommand) (RecropPlan, error) {
	corners := cmd.Corners
	if cmd.ImageWidth != 0 || cmd.ImageHeight != 0 {
		scaled, err := services.ScaleCorners(cmd.Corners, cmd.ImageWidth, cmd.ImageHeight)
		if err != nil {
			return RecropPlan{}, err
		}
		corners = scaled
	}
	bounds, err := services.ComputeBounds(corners)
	if err != nil {
		return RecropPlan{}, err
	}
	return RecropPlan{Corners: corners, Bounds: bounds}, nil
}

// Accept stores the crop bounds, clears needs_recrop and queues a
// block.recrop_completed event for the image worker.
func (uc RecropUseCase) Accept(ctx context.Context, cmd RecropCommand) (RecropPlan, error) {
	logger := application.ResolveLogger(uc.Logger)
	if cmd.BlockID <= 0 {
		return RecropPlan{}, domainerrors.ErrInvalidBlockID
	}
	plan, err := uc.Preview(cmd)
	if err != nil {
		return RecropPlan{}, err
	}

	now := resolveNow(uc.Clock)
	eventID, err := newEventID(ctx, uc.IDGen)
	if err != nil {
		return RecropPlan{}, errors.Join(domainerrors.ErrStorageWrite, err)
	}
	event, err := newBlockEnvelope(eventID, EventRecropCompleted, cmd.BlockID, now, contractsv1.BlockRecropCompleted{
		BlockID:    cmd.BlockID,
		X:          plan.Bounds.X,
		Y:          plan.Bounds.Y,
		Width:      plan.Bounds.Width,
		Height:     plan.Bounds.Height,
		VerifiedBy: cmd.VerifiedBy,
	})
	if err != nil {
		return RecropPlan{}, err
	}

	if err := uc.Blocks.CompleteRecrop(ctx, cmd.BlockID, plan.Bounds, now, event); err != nil {
		if errors.Is(err, domainerrors.ErrBlockNotFound) {
			return RecropPlan{}, err
		}
		logger.Error("recrop accept failed",
			"event", "consensus_recrop_accept_failed",
			"module", "quilt-review/consensus-engine",
			"layer", "application",
			"block_id", cmd.BlockID,
			"error", err.Error(),
		)
		return RecropPlan{}, errors.Join(domainerrors.ErrStorageWrite, err)
	}

	logger.Info("recrop accepted",
		"event", "consensus_recrop_accepted",
		"module", "quilt-review/consensus-engine",
		"layer", "application",
		"block_id", cmd.BlockID,
		"width", plan.Bounds.Width,
		"height", plan.Bounds.Height,
	)
	return plan, nil
}
