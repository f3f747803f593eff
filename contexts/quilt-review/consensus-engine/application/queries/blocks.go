package queries

import (
	"context"

	"quiltqc/contexts/quilt-review/consensus-engine/domain/entities"
	domainerrors "quiltqc/contexts/quilt-review/consensus-engine/domain/errors"
	"quiltqc/contexts/quilt-review/consensus-engine/ports"
)

type BlockQueryUseCase struct {
	Blocks  ports.BlockRepository
	Queries ports.BlockQueryRepository
}

func (uc BlockQueryUseCase) GetBlock(ctx context.Context, blockID int64) (entities.Block, error) {
	if blockID <= 0 {
		return entities.Block{}, domainerrors.ErrInvalidBlockID
	}
	return uc.Blocks.GetBlock(ctx, blockID)
}

// NextIncompleteBlock picks a random block without consensus so concurrent
// volunteers spread across the pool.
func (uc BlockQueryUseCase) NextIncompleteBlock(ctx context.Context) (entities.Block, bool, error) {
	return uc.Queries.NextIncompleteBlock(ctx)
}

// NextRecropBlock returns the lowest-id block still waiting for a crop.
func (uc BlockQueryUseCase) NextRecropBlock(ctx context.Context) (entities.Block, bool, error) {
	return uc.Queries.NextRecropBlock(ctx)
}

func (uc BlockQueryUseCase) RecropBlocks(ctx context.Context) ([]entities.BlockSummary, error) {
	return uc.Queries.ListRecropBlocks(ctx)
}

func (uc BlockQueryUseCase) NonStandardBlocks(ctx context.Context) ([]entities.BlockSummary, error) {
	return uc.Queries.ListNonStandardConfirmed(ctx)
}

// PendingNonStandardBlocks lists blocks with non-standard votes that have not
// reached consensus yet. VoteCount is the number of non-standard votes.
func (uc BlockQueryUseCase) PendingNonStandardBlocks(ctx context.Context) ([]entities.BlockSummary, error) {
	return uc.Queries.ListNonStandardPending(ctx)
}
