package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/eslamalbaik/earth-innovators-booking/internal/models"
)

// RewardRepository persists the append-only reward grant ledger.
type RewardRepository struct {
	db *sqlx.DB
}

// NewRewardRepository constructs the repository.
func NewRewardRepository(db *sqlx.DB) *RewardRepository {
	return &RewardRepository{db: db}
}

// Grant inserts a ledger entry keyed by (source_type, source_id). The unique
// constraint makes the operation idempotent: a duplicate attempt inserts
// nothing and the existing grant is returned with created=false.
func (r *RewardRepository) Grant(ctx context.Context, grant *models.RewardGrant) (*models.RewardGrant, bool, error) {
	if grant.ID == "" {
		grant.ID = uuid.NewString()
	}
	if grant.CreatedAt.IsZero() {
		grant.CreatedAt = time.Now().UTC()
	}

	const insertQuery = `INSERT INTO reward_grants (id, recipient_id, source_type, source_id, amount, reason, created_at)
        VALUES (:id, :recipient_id, :source_type, :source_id, :amount, :reason, :created_at)
        ON CONFLICT (source_type, source_id) DO NOTHING`
	res, err := r.db.NamedExecContext(ctx, insertQuery, grant)
	if err != nil {
		return nil, false, fmt.Errorf("insert reward grant: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("insert reward grant rows: %w", err)
	}
	if affected == 1 {
		return grant, true, nil
	}

	existing, err := r.FindBySource(ctx, grant.SourceType, grant.SourceID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// FindBySource returns the grant recorded for a source, if any.
func (r *RewardRepository) FindBySource(ctx context.Context, sourceType, sourceID string) (*models.RewardGrant, error) {
	const query = `SELECT id, recipient_id, source_type, source_id, amount, reason, created_at
        FROM reward_grants WHERE source_type = $1 AND source_id = $2`
	var grant models.RewardGrant
	if err := r.db.GetContext(ctx, &grant, query, sourceType, sourceID); err != nil {
		return nil, err
	}
	return &grant, nil
}

// BalanceFor computes a recipient's cumulative balance from the ledger.
func (r *RewardRepository) BalanceFor(ctx context.Context, recipientID string) (int, error) {
	const query = `SELECT COALESCE(SUM(amount), 0) FROM reward_grants WHERE recipient_id = $1`
	var balance int
	if err := r.db.GetContext(ctx, &balance, query, recipientID); err != nil {
		return 0, fmt.Errorf("sum reward grants: %w", err)
	}
	return balance, nil
}

// ListByRecipient returns a recipient's grants, newest first.
func (r *RewardRepository) ListByRecipient(ctx context.Context, recipientID string) ([]models.RewardGrant, error) {
	const query = `SELECT id, recipient_id, source_type, source_id, amount, reason, created_at
        FROM reward_grants WHERE recipient_id = $1 ORDER BY created_at DESC`
	var grants []models.RewardGrant
	if err := r.db.SelectContext(ctx, &grants, query, recipientID); err != nil {
		return nil, fmt.Errorf("list reward grants: %w", err)
	}
	return grants, nil
}
