package postgresadapter

import (
	"context"
	"errors"
	"time"

	"quiltqc/contexts/quilt-review/consensus-engine/domain/entities"
	"quiltqc/contexts/quilt-review/consensus-engine/ports"

	"gorm.io/gorm"
)

func (r *Repository) NextIncompleteBlock(ctx context.Context) (entities.Block, bool, error) {
	return r.firstBlock(ctx, "consensus_repo_next_incomplete_failed", func(db *gorm.DB) *gorm.DB {
		return db.Where("consensus_reached = ?", false).Order("RANDOM()")
	})
}

func (r *Repository) NextRecropBlock(ctx context.Context) (entities.Block, bool, error) {
	return r.firstBlock(ctx, "consensus_repo_next_recrop_failed", func(db *gorm.DB) *gorm.DB {
		return db.Where("needs_recrop = ? AND recrop_completed = ?", true, false).Order("block_id ASC")
	})
}

func (r *Repository) ListRecropBlocks(ctx context.Context) ([]entities.BlockSummary, error) {
	var rows []struct {
		blockModel
		TotalVotes int `gorm:"column:total_votes"`
	}
	err := r.db.WithContext(ctx).
		Model(&blockModel{}).
		Select("blocks.*, (SELECT COUNT(*) FROM votes WHERE votes.block_id = blocks.block_id) AS total_votes").
		Where("blocks.needs_recrop = ?", true).
		Order("blocks.block_id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, r.logError("consensus_repo_list_recrop_failed", err)
	}
	items := make([]entities.BlockSummary, 0, len(rows))
	for _, row := range rows {
		summary := row.blockModel.toSummary()
		summary.VoteCount = row.TotalVotes
		items = append(items, summary)
	}
	return items, nil
}

func (r *Repository) ListNonStandardConfirmed(ctx context.Context) ([]entities.BlockSummary, error) {
	var rows []blockModel
	if err := r.db.WithContext(ctx).
		Where("not_8_panel = ? AND not_8_panel_confirmed = ?", true, true).
		Order("block_id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("consensus_repo_list_nonstandard_failed", err)
	}
	items := make([]entities.BlockSummary, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toSummary())
	}
	return items, nil
}

func (r *Repository) ListNonStandardPending(ctx context.Context) ([]entities.BlockSummary, error) {
	var rows []struct {
		BlockID    int64     `gorm:"column:block_id"`
		VoteCount  int       `gorm:"column:vote_count"`
		LastVoteAt time.Time `gorm:"column:last_vote_at"`
	}
	err := r.db.WithContext(ctx).Raw(`
		SELECT v.block_id, COUNT(*) AS vote_count, MAX(v.created_at) AS last_vote_at
		FROM votes v
		JOIN blocks b ON b.block_id = v.block_id
		WHERE v.not_8_panel = TRUE AND b.consensus_reached = FALSE
		GROUP BY v.block_id
		ORDER BY v.block_id ASC`).
		Scan(&rows).Error
	if err != nil {
		return nil, r.logError("consensus_repo_list_nonstandard_pending_failed", err)
	}
	items := make([]entities.BlockSummary, 0, len(rows))
	for _, row := range rows {
		items = append(items, entities.BlockSummary{
			BlockID:     row.BlockID,
			NonStandard: true,
			VoteCount:   row.VoteCount,
			UpdatedAt:   row.LastVoteAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) ListRecomputeCandidates(ctx context.Context) ([]int64, error) {
	ids := make([]int64, 0)
	err := r.db.WithContext(ctx).Raw(`
		SELECT b.block_id
		FROM blocks b
		JOIN votes v ON v.block_id = b.block_id
		WHERE b.consensus_reached = FALSE
		GROUP BY b.block_id
		HAVING COUNT(v.vote_id) >= ?
		ORDER BY b.block_id ASC`, entities.QuorumThreshold).
		Scan(&ids).Error
	if err != nil {
		return nil, r.logError("consensus_repo_list_candidates_failed", err)
	}
	return ids, nil
}

func (r *Repository) Stats(ctx context.Context) (entities.Stats, error) {
	var blocks struct {
		TotalBlocks          int `gorm:"column:total_blocks"`
		CompletedBlocks      int `gorm:"column:completed_blocks"`
		ConsensusReached     int `gorm:"column:consensus_reached"`
		StandardBlocks       int `gorm:"column:standard_blocks"`
		StandardCompleted    int `gorm:"column:standard_completed"`
		NonStandardCompleted int `gorm:"column:nonstandard_completed"`
		BlocksNeedingRecrop  int `gorm:"column:blocks_needing_recrop"`
		BlocksRecropped      int `gorm:"column:blocks_recropped"`
	}
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			COUNT(*) AS total_blocks,
			COUNT(*) FILTER (WHERE completed) AS completed_blocks,
			COUNT(*) FILTER (WHERE consensus_reached) AS consensus_reached,
			COUNT(*) FILTER (WHERE NOT not_8_panel) AS standard_blocks,
			COUNT(*) FILTER (WHERE NOT not_8_panel AND consensus_reached) AS standard_completed,
			COUNT(*) FILTER (WHERE not_8_panel AND consensus_reached) AS nonstandard_completed,
			COUNT(*) FILTER (WHERE needs_recrop) AS blocks_needing_recrop,
			COUNT(*) FILTER (WHERE NOT needs_recrop AND recrop_completed) AS blocks_recropped
		FROM blocks`).
		Scan(&blocks).Error
	if err != nil {
		return entities.Stats{}, r.logError("consensus_repo_block_stats_failed", err)
	}

	var votes struct {
		TotalVotes              int `gorm:"column:total_votes"`
		NonStandardVotes        int `gorm:"column:nonstandard_votes"`
		NeedsRecropVotes        int `gorm:"column:needs_recrop_votes"`
		UniqueNonStandardBlocks int `gorm:"column:unique_nonstandard_blocks"`
		UniqueNeedsRecropBlocks int `gorm:"column:unique_needs_recrop_blocks"`
		NonStandardPending      int `gorm:"column:nonstandard_pending"`
	}
	err = r.db.WithContext(ctx).Raw(`
		SELECT
			COUNT(*) AS total_votes,
			COUNT(*) FILTER (WHERE v.not_8_panel) AS nonstandard_votes,
			COUNT(*) FILTER (WHERE v.needs_recrop) AS needs_recrop_votes,
			COUNT(DISTINCT v.block_id) FILTER (WHERE v.not_8_panel) AS unique_nonstandard_blocks,
			COUNT(DISTINCT v.block_id) FILTER (WHERE v.needs_recrop) AS unique_needs_recrop_blocks,
			COUNT(DISTINCT v.block_id) FILTER (WHERE v.not_8_panel AND NOT b.consensus_reached) AS nonstandard_pending
		FROM votes v
		JOIN blocks b ON b.block_id = v.block_id`).
		Scan(&votes).Error
	if err != nil {
		return entities.Stats{}, r.logError("consensus_repo_vote_stats_failed", err)
	}

	var breakdown struct {
		BlocksWithOneVote      int `gorm:"column:one_vote_blocks"`
		BlocksWithTwoVotes     int `gorm:"column:two_vote_blocks"`
		BlocksWithThreeOrMore  int `gorm:"column:three_plus_blocks"`
		VotesFromOneVoteBlocks int `gorm:"column:one_vote_votes"`
		VotesFromTwoVoteBlocks int `gorm:"column:two_vote_votes"`
		VotesFromThreeOrMore   int `gorm:"column:three_plus_votes"`
	}
	err = r.db.WithContext(ctx).Raw(`
		WITH per_block AS (
			SELECT block_id, COUNT(*) AS n FROM votes GROUP BY block_id
		)
		SELECT
			COUNT(*) FILTER (WHERE n = 1) AS one_vote_blocks,
			COUNT(*) FILTER (WHERE n = 2) AS two_vote_blocks,
			COUNT(*) FILTER (WHERE n >= 3) AS three_plus_blocks,
			COALESCE(SUM(n) FILTER (WHERE n = 1), 0) AS one_vote_votes,
			COALESCE(SUM(n) FILTER (WHERE n = 2), 0) AS two_vote_votes,
			COALESCE(SUM(n) FILTER (WHERE n >= 3), 0) AS three_plus_votes
		FROM per_block`).
		Scan(&breakdown).Error
	if err != nil {
		return entities.Stats{}, r.logError("consensus_repo_vote_breakdown_failed", err)
	}

	return entities.Stats{
		TotalBlocks:      blocks.TotalBlocks,
		CompletedBlocks:  blocks.CompletedBlocks,
		TotalVotes:       votes.TotalVotes,
		ConsensusReached: blocks.ConsensusReached,
		Breakdown: entities.VoteBreakdown{
			BlocksWithOneVote:      breakdown.BlocksWithOneVote,
			BlocksWithTwoVotes:     breakdown.BlocksWithTwoVotes,
			BlocksWithThreeOrMore:  breakdown.BlocksWithThreeOrMore,
			VotesFromOneVoteBlocks: breakdown.VotesFromOneVoteBlocks,
			VotesFromTwoVoteBlocks: breakdown.VotesFromTwoVoteBlocks,
			VotesFromThreeOrMore:   breakdown.VotesFromThreeOrMore,
		},
		NonStandardVotes:        votes.NonStandardVotes,
		NeedsRecropVotes:        votes.NeedsRecropVotes,
		UniqueNonStandardBlocks: votes.UniqueNonStandardBlocks,
		UniqueNeedsRecropBlocks: votes.UniqueNeedsRecropBlocks,
		StandardBlocks:          blocks.StandardBlocks,
		StandardCompleted:       blocks.StandardCompleted,
		NonStandardCompleted:    blocks.NonStandardCompleted,
		NonStandardPending:      votes.NonStandardPending,
		BlocksNeedingRecrop:     blocks.BlocksNeedingRecrop,
		BlocksRecropped:         blocks.BlocksRecropped,
	}, nil
}

func (r *Repository) firstBlock(
	ctx context.Context,
	event string,
	scope func(db *gorm.DB) *gorm.DB,
) (entities.Block, bool, error) {
	var row blockModel
	err := scope(r.db.WithContext(ctx).Model(&blockModel{})).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Block{}, false, nil
		}
		return entities.Block{}, false, r.logError(event, err)
	}
	return row.toEntity(), true, nil
}

var _ ports.BlockQueryRepository = (*Repository)(nil)
