package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"quiltqc/contexts/quilt-review/consensus-engine/domain/entities"
	domainerrors "quiltqc/contexts/quilt-review/consensus-engine/domain/errors"
	"quiltqc/contexts/quilt-review/consensus-engine/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"
	seedBatchSize         = 500
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Models lists the tables owned by this adapter, for AutoMigrate.
func Models() []any {
	return []any{&blockModel{}, &voteModel{}, &outboxModel{}}
}

func (r *Repository) AppendVote(ctx context.Context, vote entities.Vote) (entities.Vote, error) {
	row := voteModelFromEntity(vote)
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isForeignKeyViolation(err) {
			return entities.Vote{}, domainerrors.ErrBlockNotFound
		}
		return entities.Vote{}, r.logError("consensus_repo_append_vote_failed", err,
			"block_id", vote.BlockID,
		)
	}
	return row.toEntity(), nil
}

func (r *Repository) ListVotesByBlock(ctx context.Context, blockID int64) ([]entities.Vote, error) {
	var rows []voteModel
	if err := r.db.WithContext(ctx).
		Where("block_id = ?", blockID).
		Order("created_at ASC").
		Order("vote_id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("consensus_repo_list_votes_failed", err, "block_id", blockID)
	}
	items := make([]entities.Vote, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) GetBlock(ctx context.Context, blockID int64) (entities.Block, error) {
	var row blockModel
	err := r.db.WithContext(ctx).
		Where("block_id = ?", blockID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Block{}, domainerrors.ErrBlockNotFound
		}
		return entities.Block{}, r.logError("consensus_repo_get_block_failed", err, "block_id", blockID)
	}
	return row.toEntity(), nil
}

// ApplyConsensus locks the block row, skips the write when the stored result
// already matches, and otherwise updates the block and appends the event in
// the same transaction.
func (r *Repository) ApplyConsensus(ctx context.Context, result entities.ConsensusResult, event ports.EventEnvelope) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row blockModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("block_id = ?", result.BlockID).
			First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainerrors.ErrBlockNotFound
			}
			return err
		}
		if row.matches(result) {
			return nil
		}
		update := tx.Model(&blockModel{}).
			Where("block_id = ?", result.BlockID).
			Updates(map[string]any{
				"consensus_reached":      true,
				"completed":              true,
				"not_8_panel":            result.NonStandard,
				"not_8_panel_confirmed":  result.NonStandardConfirmed,
				"needs_recrop":           result.NeedsRecrop,
				"vote_count":             result.SupportingVotes,
				"final_orientation_data": result.FinalOrientationData,
				"updated_at":             result.ReachedAt.UTC(),
			})
		if update.Error != nil {
			return update.Error
		}
		return appendOutbox(tx, event)
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrBlockNotFound) {
			return err
		}
		return r.logError("consensus_repo_apply_consensus_failed", err, "block_id", result.BlockID)
	}
	return nil
}

func (r *Repository) ResetConsensus(ctx context.Context, blockID int64, updatedAt time.Time) error {
	return r.updateBlock(ctx, "consensus_repo_reset_consensus_failed", blockID, map[string]any{
		"consensus_reached":      false,
		"completed":              false,
		"not_8_panel_confirmed":  false,
		"vote_count":             0,
		"final_orientation_data": nil,
		"updated_at":             updatedAt.UTC(),
	})
}

func (r *Repository) RaiseVoteFlags(
	ctx context.Context,
	blockID int64,
	needsRecrop bool,
	nonStandard bool,
	updatedAt time.Time,
) error {
	values := map[string]any{"updated_at": updatedAt.UTC()}
	if needsRecrop {
		values["needs_recrop"] = true
	}
	if nonStandard {
		// not_8_panel belongs to the consensus result once one is stored.
		values["not_8_panel"] = gorm.Expr("not_8_panel OR NOT consensus_reached")
	}
	return r.updateBlock(ctx, "consensus_repo_raise_flags_failed", blockID, values)
}

func (r *Repository) SetRecropFlag(ctx context.Context, update ports.FlagUpdate) error {
	values := verificationValues(update)
	values["needs_recrop"] = update.Value
	return r.updateBlock(ctx, "consensus_repo_set_recrop_failed", update.BlockID, values)
}

func (r *Repository) SetNonStandardFlag(ctx context.Context, update ports.FlagUpdate) error {
	values := verificationValues(update)
	values["not_8_panel"] = update.Value
	values["not_8_panel_confirmed"] = update.Value
	return r.updateBlock(ctx, "consensus_repo_set_nonstandard_failed", update.BlockID, values)
}

func (r *Repository) CompleteRecrop(
	ctx context.Context,
	blockID int64,
	bounds entities.Bounds,
	completedAt time.Time,
	event ports.EventEnvelope,
) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		update := tx.Model(&blockModel{}).
			Where("block_id = ?", blockID).
			Updates(map[string]any{
				"needs_recrop":     false,
				"recrop_completed": true,
				"recrop_x":         bounds.X,
				"recrop_y":         bounds.Y,
				"recrop_width":     bounds.Width,
				"recrop_height":    bounds.Height,
				"updated_at":       completedAt.UTC(),
			})
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			return domainerrors.ErrBlockNotFound
		}
		return appendOutbox(tx, event)
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrBlockNotFound) {
			return err
		}
		return r.logError("consensus_repo_complete_recrop_failed", err, "block_id", blockID)
	}
	return nil
}

// SeedBlocks inserts missing rows for ids 1..count and reports how many were
// created. Existing rows are left alone.
func (r *Repository) SeedBlocks(ctx context.Context, count int) (int, error) {
	if count <= 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	created := 0
	for start := 1; start <= count; start += seedBatchSize {
		end := min(start+seedBatchSize-1, count)
		rows := make([]blockModel, 0, end-start+1)
		for id := start; id <= end; id++ {
			rows = append(rows, blockModel{BlockID: int64(id), CreatedAt: now, UpdatedAt: now})
		}
		insert := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "block_id"}},
			DoNothing: true,
		}).Create(&rows)
		if insert.Error != nil {
			return created, r.logError("consensus_repo_seed_blocks_failed", insert.Error,
				"from_block_id", start,
				"to_block_id", end,
			)
		}
		created += int(insert.RowsAffected)
	}
	return created, nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		if isUndefinedTable(err) {
			return nil, nil
		}
		return nil, r.logError("consensus_repo_list_pending_outbox_failed", err, "limit", limit)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      append([]byte(nil), row.Payload...),
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("consensus_repo_mark_outbox_published_failed", result.Error,
			"outbox_id", strings.TrimSpace(outboxID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) updateBlock(ctx context.Context, event string, blockID int64, values map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&blockModel{}).
		Where("block_id = ?", blockID).
		Updates(values)
	if result.Error != nil {
		return r.logError(event, result.Error, "block_id", blockID)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrBlockNotFound
	}
	return nil
}

func appendOutbox(tx *gorm.DB, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	row := outboxModel{
		OutboxID:     strings.TrimSpace(envelope.EventID),
		EventType:    strings.TrimSpace(envelope.EventType),
		PartitionKey: strings.TrimSpace(envelope.PartitionKey),
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    envelope.OccurredAt.UTC(),
	}
	if row.OutboxID == "" {
		row.OutboxID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	create := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "outbox_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		if isUniqueViolation(create.Error) {
			return domainerrors.ErrConflict
		}
		return create.Error
	}
	return nil
}

func verificationValues(update ports.FlagUpdate) map[string]any {
	values := map[string]any{
		"verified_by": update.VerifiedBy,
		"verified_at": update.VerifiedAt.UTC(),
		"updated_at":  update.VerifiedAt.UTC(),
	}
	if update.IPAddress != "" {
		values["ip_address"] = update.IPAddress
	}
	return values
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "quilt-review/consensus-engine",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("consensus repository operation failed", fields...)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}

var _ ports.VoteRepository = (*Repository)(nil)
var _ ports.BlockRepository = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
