package commands

import (
	"context"
	"encoding/json"
	"testing"

	"quiltqc/contexts/quilt-review/consensus-engine/domain/entities"
	domainerrors "quiltqc/contexts/quilt-review/consensus-engine/domain/errors"

	"github.com/stretchr/testify/require"
)

func TestBlockAdminNonStandardOverrideConfirms(t *testing.T) {
	engine, store := newEngine(t)
	admin := BlockAdminUseCase{Blocks: store, Clock: engine.Clock}

	err := admin.SetNonStandardFlag(context.Background(), FlagOverrideCommand{
		BlockID:    14,
		Value:      true,
		VerifiedBy: "reviewer",
	})
	require.NoError(t, err)

	block, err := store.GetBlock(context.Background(), 14)
	require.NoError(t, err)
	require.True(t, block.NonStandard)
	require.True(t, block.NonStandardConfirmed)
	require.Equal(t, "reviewer", block.VerifiedBy)
	require.NotNil(t, block.VerifiedAt)
}

func TestBlockAdminRecropOverride(t *testing.T) {
	engine, store := newEngine(t)
	admin := BlockAdminUseCase{Blocks: store, Clock: engine.Clock}

	require.NoError(t, admin.SetRecropFlag(context.Background(), FlagOverrideCommand{
		BlockID: 2, Value: true, VerifiedBy: "reviewer",
	}))
	block, err := store.GetBlock(context.Background(), 2)
	require.NoError(t, err)
	require.True(t, block.NeedsRecrop)

	err = admin.SetRecropFlag(context.Background(), FlagOverrideCommand{BlockID: 2, VerifiedBy: " "})
	require.ErrorIs(t, err, domainerrors.ErrInvalidFlagUpdate)

	err = admin.SetRecropFlag(context.Background(), FlagOverrideCommand{BlockID: 999, VerifiedBy: "reviewer"})
	require.ErrorIs(t, err, domainerrors.ErrBlockNotFound)
}

func TestBlockAdminResetReopensBlock(t *testing.T) {
	engine, store := newEngine(t)
	cache, err := NewClosedBlockCache(4)
	require.NoError(t, err)
	admin := BlockAdminUseCase{Blocks: store, ClosedBlocks: cache, Clock: engine.Clock}

	addVote(t, store, 10, "[1]", false, false)
	addVote(t, store, 10, "[1]", false, false)
	_, err = engine.Execute(context.Background(), 10)
	require.NoError(t, err)
	cache.Add(10)

	require.NoError(t, admin.ResetConsensus(context.Background(), 10))
	require.False(t, cache.Contains(10))
	block, err := store.GetBlock(context.Background(), 10)
	require.NoError(t, err)
	require.False(t, block.ConsensusReached)
	require.Empty(t, block.FinalOrientationData)

	check, err := engine.Execute(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, entities.OutcomeConsensusReached, check.Outcome)
	require.Equal(t, 2, store.ConsensusWrites())
}

func TestRecropPreviewScalesToSourceImage(t *testing.T) {
	uc := RecropUseCase{}

	plan, err := uc.Preview(RecropCommand{
		Corners:     []entities.Point{{X: 10, Y: 20}, {X: 500, Y: 20}, {X: 500, Y: 400}, {X: 10, Y: 400}},
		ImageWidth:  1024,
		ImageHeight: 1024,
	})
	require.NoError(t, err)
	require.Equal(t, entities.Bounds{X: 20, Y: 40, Width: 980, Height: 760}, plan.Bounds)
}

func TestRecropAcceptStoresBoundsAndQueuesEvent(t *testing.T) {
	engine, store := newEngine(t)
	uc := RecropUseCase{Blocks: store, Clock: engine.Clock, IDGen: store}
	require.NoError(t, store.RaiseVoteFlags(context.Background(), 33, true, false, engine.Clock.Now()))

	plan, err := uc.Accept(context.Background(), RecropCommand{
		BlockID: 33,
		Corners: []entities.Point{{X: 5, Y: 5}, {X: 105, Y: 55}},
	})
	require.NoError(t, err)
	require.Equal(t, entities.Bounds{X: 5, Y: 5, Width: 100, Height: 50}, plan.Bounds)

	block, err := store.GetBlock(context.Background(), 33)
	require.NoError(t, err)
	require.False(t, block.NeedsRecrop)
	require.True(t, block.RecropCompleted)
	require.Equal(t, &plan.Bounds, block.RecropBounds)

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, EventRecropCompleted, pending[0].EventType)
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(pending[0].Payload, &envelope))
	require.EqualValues(t, 100, envelope.Data["width"])
}

func TestRecropAcceptRejectsDegenerateCorners(t *testing.T) {
	engine, store := newEngine(t)
	uc := RecropUseCase{Blocks: store, Clock: engine.Clock}

	_, err := uc.Accept(context.Background(), RecropCommand{
		BlockID: 33,
		Corners: []entities.Point{{X: 5, Y: 5}},
	})
	require.ErrorIs(t, err, domainerrors.ErrInvalidCorners)
}
