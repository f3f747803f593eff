package httpadapter

import (
	"context"
	"fmt"
	"log/slog"

	"quiltqc/contexts/quilt-review/consensus-engine/application/commands"
	"quiltqc/contexts/quilt-review/consensus-engine/application/queries"
	"quiltqc/contexts/quilt-review/consensus-engine/domain/entities"
	domainerrors "quiltqc/contexts/quilt-review/consensus-engine/domain/errors"
	httptransport "quiltqc/contexts/quilt-review/consensus-engine/transport/http"
)

type Handler struct {
	Votes     commands.SubmitVoteUseCase
	Consensus commands.CheckConsensusUseCase
	Admin     commands.BlockAdminUseCase
	Recrop    commands.RecropUseCase
	Blocks    queries.BlockQueryUseCase
	Stats     queries.StatsUseCase
	Logger    *slog.Logger
}

func (h Handler) SubmitVoteHandler(
	ctx context.Context,
	ipAddress string,
	req httptransport.SubmitVoteRequest,
) (httptransport.SubmitVoteResponse, error) {
	result, err := h.Votes.Execute(ctx, commands.SubmitVoteCommand{
		BlockID:         req.BlockID,
		OrientationData: req.OrientationData,
		NeedsRecrop:     req.NeedsRecrop,
		NonStandard:     req.NonStandard,
		IPAddress:       ipAddress,
		UserSession:     req.UserSession,
	})
	if err != nil {
		return httptransport.SubmitVoteResponse{}, err
	}
	resp := httptransport.SubmitVoteResponse{
		Success:          true,
		VoteID:           result.Vote.VoteID,
		BlockID:          result.Vote.BlockID,
		ConsensusSkipped: result.ConsensusSkipped,
	}
	if result.Consensus != nil {
		check := mapCheck(*result.Consensus)
		resp.Consensus = &check
	}
	if result.ConsensusError != nil {
		resp.ConsensusError = result.ConsensusError.Error()
	}
	return resp, nil
}

func (h Handler) CheckConsensusHandler(ctx context.Context, blockID int64) (httptransport.CheckResponse, error) {
	check, err := h.Consensus.Execute(ctx, blockID)
	if err != nil {
		return httptransport.CheckResponse{}, err
	}
	return mapCheck(check), nil
}

func (h Handler) ResetConsensusHandler(ctx context.Context, blockID int64) error {
	return h.Admin.ResetConsensus(ctx, blockID)
}

func (h Handler) GetBlockHandler(ctx context.Context, blockID int64) (httptransport.BlockResponse, error) {
	block, err := h.Blocks.GetBlock(ctx, blockID)
	if err != nil {
		return httptransport.BlockResponse{}, err
	}
	return mapBlock(block), nil
}

func (h Handler) NextIncompleteBlockHandler(ctx context.Context) (httptransport.BlockResponse, error) {
	block, found, err := h.Blocks.NextIncompleteBlock(ctx)
	if err != nil {
		return httptransport.BlockResponse{}, err
	}
	if !found {
		return httptransport.BlockResponse{}, domainerrors.ErrBlockNotFound
	}
	return mapBlock(block), nil
}

func (h Handler) NextRecropBlockHandler(ctx context.Context) (httptransport.BlockResponse, error) {
	block, found, err := h.Blocks.NextRecropBlock(ctx)
	if err != nil {
		return httptransport.BlockResponse{}, err
	}
	if !found {
		return httptransport.BlockResponse{}, domainerrors.ErrBlockNotFound
	}
	return mapBlock(block), nil
}

func (h Handler) RecropBlocksHandler(ctx context.Context) (httptransport.BlockListResponse, error) {
	items, err := h.Blocks.RecropBlocks(ctx)
	if err != nil {
		return httptransport.BlockListResponse{}, err
	}
	return mapSummaries(items), nil
}

func (h Handler) NonStandardBlocksHandler(ctx context.Context) (httptransport.BlockListResponse, error) {
	items, err := h.Blocks.NonStandardBlocks(ctx)
	if err != nil {
		return httptransport.BlockListResponse{}, err
	}
	return mapSummaries(items), nil
}

func (h Handler) PendingNonStandardBlocksHandler(ctx context.Context) (httptransport.BlockListResponse, error) {
	items, err := h.Blocks.PendingNonStandardBlocks(ctx)
	if err != nil {
		return httptransport.BlockListResponse{}, err
	}
	return mapSummaries(items), nil
}

func (h Handler) SetRecropFlagHandler(
	ctx context.Context,
	blockID int64,
	ipAddress string,
	req httptransport.RecropFlagRequest,
) (httptransport.BlockResponse, error) {
	if req.NeedsRecrop == nil {
		return httptransport.BlockResponse{}, domainerrors.ErrInvalidFlagUpdate
	}
	if err := h.Admin.SetRecropFlag(ctx, commands.FlagOverrideCommand{
		BlockID:    blockID,
		Value:      *req.NeedsRecrop,
		VerifiedBy: req.VerifiedBy,
		IPAddress:  ipAddress,
	}); err != nil {
		return httptransport.BlockResponse{}, err
	}
	return h.GetBlockHandler(ctx, blockID)
}

func (h Handler) SetNonStandardFlagHandler(
	ctx context.Context,
	blockID int64,
	ipAddress string,
	req httptransport.NonStandardFlagRequest,
) (httptransport.BlockResponse, error) {
	if req.NonStandard == nil {
		return httptransport.BlockResponse{}, domainerrors.ErrInvalidFlagUpdate
	}
	if err := h.Admin.SetNonStandardFlag(ctx, commands.FlagOverrideCommand{
		BlockID:    blockID,
		Value:      *req.NonStandard,
		VerifiedBy: req.VerifiedBy,
		IPAddress:  ipAddress,
	}); err != nil {
		return httptransport.BlockResponse{}, err
	}
	return h.GetBlockHandler(ctx, blockID)
}

func (h Handler) PreviewRecropHandler(req httptransport.RecropRequest) (httptransport.RecropResponse, error) {
	plan, err := h.Recrop.Preview(recropCommand(req))
	if err != nil {
		return httptransport.RecropResponse{}, err
	}
	return mapPlan(req.BlockID, plan), nil
}

func (h Handler) AcceptRecropHandler(ctx context.Context, req httptransport.RecropRequest) (httptransport.RecropResponse, error) {
	plan, err := h.Recrop.Accept(ctx, recropCommand(req))
	if err != nil {
		return httptransport.RecropResponse{}, err
	}
	return mapPlan(req.BlockID, plan), nil
}

func (h Handler) RecropStatsHandler(ctx context.Context) (httptransport.RecropStatsResponse, error) {
	stats, err := h.Stats.Stats(ctx)
	if err != nil {
		return httptransport.RecropStatsResponse{}, err
	}
	return httptransport.RecropStatsResponse{
		TotalNeedingRecrop: stats.BlocksNeedingRecrop,
		TotalRecropped:     stats.BlocksRecropped,
	}, nil
}

func (h Handler) NonStandardStatsHandler(ctx context.Context) (httptransport.NonStandardStatsResponse, error) {
	stats, err := h.Stats.Stats(ctx)
	if err != nil {
		return httptransport.NonStandardStatsResponse{}, err
	}
	return httptransport.NonStandardStatsResponse{
		TotalNonStandard:     stats.TotalBlocks - stats.StandardBlocks,
		NonStandardCompleted: stats.NonStandardCompleted,
		NonStandardPending:   stats.NonStandardPending,
	}, nil
}

func (h Handler) TotalStatsHandler(ctx context.Context) (httptransport.TotalStatsResponse, error) {
	stats, err := h.Stats.Stats(ctx)
	if err != nil {
		return httptransport.TotalStatsResponse{}, err
	}
	return httptransport.TotalStatsResponse{TotalBlocks: stats.TotalBlocks}, nil
}

func (h Handler) CompletedStatsHandler(ctx context.Context) (httptransport.CompletedStatsResponse, error) {
	stats, err := h.Stats.Stats(ctx)
	if err != nil {
		return httptransport.CompletedStatsResponse{}, err
	}
	return httptransport.CompletedStatsResponse{
		CompletedBlocks:  stats.CompletedBlocks,
		ConsensusReached: stats.ConsensusReached,
	}, nil
}

func (h Handler) VotingStatsHandler(ctx context.Context) (httptransport.VotingStatsResponse, error) {
	stats, err := h.Stats.Stats(ctx)
	if err != nil {
		return httptransport.VotingStatsResponse{}, err
	}
	return httptransport.VotingStatsResponse{
		TotalVotes:       stats.TotalVotes,
		ConsensusReached: stats.ConsensusReached,
		Breakdown: httptransport.VoteBreakdownResponse{
			BlocksWithOneVote:      stats.Breakdown.BlocksWithOneVote,
			BlocksWithTwoVotes:     stats.Breakdown.BlocksWithTwoVotes,
			BlocksWithThreeOrMore:  stats.Breakdown.BlocksWithThreeOrMore,
			VotesFromOneVoteBlocks: stats.Breakdown.VotesFromOneVoteBlocks,
			VotesFromTwoVoteBlocks: stats.Breakdown.VotesFromTwoVoteBlocks,
			VotesFromThreeOrMore:   stats.Breakdown.VotesFromThreeOrMore,
		},
		NonStandardVotes:        stats.NonStandardVotes,
		NeedsRecropVotes:        stats.NeedsRecropVotes,
		UniqueNonStandardBlocks: stats.UniqueNonStandardBlocks,
		UniqueNeedsRecropBlocks: stats.UniqueNeedsRecropBlocks,
		StandardBlocks:          stats.StandardBlocks,
		StandardCompleted:       stats.StandardCompleted,
		NonStandardCompleted:    stats.NonStandardCompleted,
	}, nil
}

func recropCommand(req httptransport.RecropRequest) commands.RecropCommand {
	corners := make([]entities.Point, 0, len(req.Corners))
	for _, corner := range req.Corners {
		corners = append(corners, entities.Point{X: corner.X, Y: corner.Y})
	}
	return commands.RecropCommand{
		BlockID:     req.BlockID,
		Corners:     corners,
		ImageWidth:  req.ImageWidth,
		ImageHeight: req.ImageHeight,
		VerifiedBy:  req.VerifiedBy,
	}
}

func mapPlan(blockID int64, plan commands.RecropPlan) httptransport.RecropResponse {
	corners := make([]httptransport.CornerDTO, 0, len(plan.Corners))
	for _, corner := range plan.Corners {
		corners = append(corners, httptransport.CornerDTO{X: corner.X, Y: corner.Y})
	}
	return httptransport.RecropResponse{
		Success: true,
		BlockID: blockID,
		Corners: corners,
		Bounds:  mapBounds(plan.Bounds),
	}
}

func mapCheck(check commands.CheckResult) httptransport.CheckResponse {
	resp := httptransport.CheckResponse{
		BlockID:          check.BlockID,
		Outcome:          string(check.Outcome),
		ConsensusReached: check.Outcome == entities.OutcomeConsensusReached,
		TotalVotes:       check.TotalVotes,
	}
	if check.Result != nil {
		resp.VoteCount = check.Result.SupportingVotes
		resp.NonStandard = check.Result.NonStandard
		resp.NeedsRecrop = check.Result.NeedsRecrop
		resp.FinalOrientationData = check.Result.FinalOrientationData
	}
	return resp
}

func mapBlock(block entities.Block) httptransport.BlockResponse {
	resp := httptransport.BlockResponse{
		BlockID:              block.BlockID,
		NeedsRecrop:          block.NeedsRecrop,
		Completed:            block.Completed,
		ConsensusReached:     block.ConsensusReached,
		NonStandard:          block.NonStandard,
		NonStandardConfirmed: block.NonStandardConfirmed,
		VoteCount:            block.VoteCount,
		FinalOrientationData: block.FinalOrientationData,
		RecropCompleted:      block.RecropCompleted,
		VerifiedBy:           block.VerifiedBy,
		VerifiedAt:           block.VerifiedAt,
		ImageURL:             ImageURL(block.BlockID),
		UpdatedAt:            block.UpdatedAt,
	}
	if block.RecropBounds != nil {
		bounds := mapBounds(*block.RecropBounds)
		resp.RecropBounds = &bounds
	}
	return resp
}

func mapSummaries(items []entities.BlockSummary) httptransport.BlockListResponse {
	out := make([]httptransport.BlockSummaryResponse, 0, len(items))
	for _, item := range items {
		out = append(out, httptransport.BlockSummaryResponse{
			BlockID:              item.BlockID,
			NeedsRecrop:          item.NeedsRecrop,
			NonStandard:          item.NonStandard,
			NonStandardConfirmed: item.NonStandardConfirmed,
			ConsensusReached:     item.ConsensusReached,
			VoteCount:            item.VoteCount,
			FinalOrientationData: item.FinalOrientationData,
			UpdatedAt:            item.UpdatedAt,
		})
	}
	return httptransport.BlockListResponse{Items: out}
}

func mapBounds(bounds entities.Bounds) httptransport.BoundsDTO {
	return httptransport.BoundsDTO{
		X:      bounds.X,
		Y:      bounds.Y,
		Width:  bounds.Width,
		Height: bounds.Height,
	}
}

// ImageURL is the path the image service serves a block's scan under; ids
// are zero-padded to five digits.
func ImageURL(blockID int64) string {
	return fmt.Sprintf("/api/image/%05d", blockID)
}
