package postgresadapter

import (
	"context"

	"quiltqc/contexts/quilt-review/consensus-engine/ports"

	"gorm.io/gorm"
)

// WithBlockLock runs fn inside one transaction holding a transaction-scoped
// advisory lock keyed by block id. The repository handed to fn is bound to
// that transaction, so lock, reads and writes use a single pooled connection
// and the server drops the lock on commit or rollback.
func (r *Repository) WithBlockLock(
	ctx context.Context,
	blockID int64,
	fn func(votes ports.VoteRepository, blocks ports.BlockRepository) error,
) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", blockID).Error; err != nil {
			return r.logError("consensus_repo_lock_failed", err, "block_id", blockID)
		}
		scoped := r.withTx(tx)
		return fn(scoped, scoped)
	})
}

func (r *Repository) withTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx, logger: r.logger}
}

var _ ports.BlockLocker = (*Repository)(nil)
