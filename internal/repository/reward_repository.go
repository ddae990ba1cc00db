package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/saiMhatre/stocky/internal/domain"
)

type RewardRepository struct {
	db *sqlx.DB
}

func NewRewardRepository(db *sqlx.DB) *RewardRepository {
	return &RewardRepository{db: db}
}

type rewardRow struct {
	ID                uuid.UUID           `db:"id"`
	UserID            string              `db:"user_id"`
	StockSymbol       string              `db:"stock_symbol"`
	Quantity          decimal.Decimal     `db:"quantity"`
	RewardedAt        time.Time           `db:"rewarded_at"`
	Notes             string              `db:"notes"`
	IdempotencyKey    string              `db:"idempotency_key"`
	Status            string              `db:"status"`
	AdjustmentReason  sql.NullString      `db:"adjustment_reason"`
	ParentID          uuid.NullUUID       `db:"parent_id"`
	OriginalQuantity  decimal.NullDecimal `db:"original_quantity"`
	CorporateActionID uuid.NullUUID       `db:"corporate_action_id"`
	SupersededBy      uuid.NullUUID       `db:"superseded_by"`
	CreatedAt         time.Time           `db:"created_at"`
}

const rewardColumns = `id, user_id, stock_symbol, quantity, rewarded_at, notes, idempotency_key,
	status, adjustment_reason, parent_id, original_quantity, corporate_action_id, superseded_by, created_at`

func (r rewardRow) toDomain() domain.RewardEvent {
	adj := domain.Adjustment{
		Status: domain.RewardStatus(r.Status),
		Reason: r.AdjustmentReason.String,
	}
	if r.ParentID.Valid {
		id := r.ParentID.UUID
		adj.ParentID = &id
	}
	if r.OriginalQuantity.Valid {
		q := r.OriginalQuantity.Decimal
		adj.OriginalQuantity = &q
	}
	if r.CorporateActionID.Valid {
		id := r.CorporateActionID.UUID
		adj.ActionID = &id
	}
	e := domain.RewardEvent{
		ID:             r.ID,
		UserID:         r.UserID,
		Symbol:         r.StockSymbol,
		Quantity:       r.Quantity,
		RewardedAt:     r.RewardedAt.UTC(),
		Notes:          r.Notes,
		IdempotencyKey: r.IdempotencyKey,
		Adjustment:     adj,
		CreatedAt:      r.CreatedAt.UTC(),
	}
	if r.SupersededBy.Valid {
		id := r.SupersededBy.UUID
		e.SupersededBy = &id
	}
	return e
}

// Insert writes a reward inside the caller's transaction. A repeated
// idempotency key surfaces as the driver's unique violation; see
// db.IsUniqueViolation.
func (rr *RewardRepository) Insert(ctx context.Context, q sqlx.ExtContext, e domain.RewardEvent) error {
	if err := e.Validate(); err != nil {
		return err
	}
	adj := e.Adjustment
	_, err := q.ExecContext(ctx, q.Rebind(`
		INSERT INTO rewards (`+rewardColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`),
		e.ID, e.UserID, e.Symbol, e.Quantity, e.RewardedAt.UTC(), e.Notes, e.IdempotencyKey,
		string(adj.Status), nullString(adj.Reason), nullUUID(adj.ParentID), nullDecimal(adj.OriginalQuantity),
		nullUUID(adj.ActionID), nullUUID(e.SupersededBy), e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert reward: %w", err)
	}
	return nil
}

func (rr *RewardRepository) Get(ctx context.Context, id uuid.UUID) (domain.RewardEvent, error) {
	return rr.getOne(ctx, `SELECT `+rewardColumns+` FROM rewards WHERE id = ?`, id)
}

func (rr *RewardRepository) GetByIdempotencyKey(ctx context.Context, key string) (domain.RewardEvent, error) {
	return rr.getOne(ctx, `SELECT `+rewardColumns+` FROM rewards WHERE idempotency_key = ?`, key)
}

func (rr *RewardRepository) getOne(ctx context.Context, query string, args ...any) (domain.RewardEvent, error) {
	var row rewardRow
	if err := rr.db.GetContext(ctx, &row, rr.db.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.RewardEvent{}, fmt.Errorf("reward: %w", domain.ErrNotFound)
		}
		return domain.RewardEvent{}, fmt.Errorf("get reward: %w", err)
	}
	return row.toDomain(), nil
}

// ListHeldBefore returns the rewards of symbol granted strictly before the
// given time whose shares are still held, oldest first. That includes events
// adjusted or derived by earlier splits and bonuses, and excludes events a
// merger or delisting superseded.
func (rr *RewardRepository) ListHeldBefore(ctx context.Context, symbol string, before time.Time) ([]domain.RewardEvent, error) {
	return rr.list(ctx, `
		SELECT `+rewardColumns+` FROM rewards
		WHERE stock_symbol = ? AND superseded_by IS NULL AND status IN (?, ?) AND rewarded_at < ?
		ORDER BY rewarded_at ASC, id ASC
	`, symbol, string(domain.RewardStatusActive), string(domain.RewardStatusAdjusted), before.UTC())
}

// ListByUserBetween returns a user's rewards granted in [from, to).
func (rr *RewardRepository) ListByUserBetween(ctx context.Context, userID string, from, to time.Time) ([]domain.RewardEvent, error) {
	return rr.list(ctx, `
		SELECT `+rewardColumns+` FROM rewards
		WHERE user_id = ? AND rewarded_at >= ? AND rewarded_at < ?
		ORDER BY rewarded_at ASC, id ASC
	`, userID, from.UTC(), to.UTC())
}

func (rr *RewardRepository) ListByUserSymbol(ctx context.Context, userID, symbol string) ([]domain.RewardEvent, error) {
	return rr.list(ctx, `
		SELECT `+rewardColumns+` FROM rewards
		WHERE user_id = ? AND stock_symbol = ?
		ORDER BY rewarded_at ASC, created_at ASC
	`, userID, symbol)
}

func (rr *RewardRepository) list(ctx context.Context, query string, args ...any) ([]domain.RewardEvent, error) {
	rows := []rewardRow{}
	if err := rr.db.SelectContext(ctx, &rows, rr.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	out := make([]domain.RewardEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// MarkAdjusted flips an ACTIVE reward to the given adjustment inside the
// caller's transaction. It reports false when the reward was no longer
// ACTIVE, which callers treat as "already adjusted".
func (rr *RewardRepository) MarkAdjusted(ctx context.Context, q sqlx.ExtContext, id uuid.UUID, adj domain.Adjustment) (bool, error) {
	if err := adj.Validate(); err != nil {
		return false, err
	}
	res, err := q.ExecContext(ctx, q.Rebind(`
		UPDATE rewards
		SET status = ?, adjustment_reason = ?, original_quantity = ?, corporate_action_id = ?
		WHERE id = ? AND status = ?
	`), string(adj.Status), adj.Reason, nullDecimal(adj.OriginalQuantity), nullUUID(adj.ActionID),
		id, string(domain.RewardStatusActive))
	if err != nil {
		return false, fmt.Errorf("flip reward %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkSuperseded records that actionID moved a held reward's shares out of
// its symbol. An ACTIVE reward also takes adj; an already adjusted one keeps
// its reason and lineage. It reports false when the reward was superseded
// before or is no longer held.
func (rr *RewardRepository) MarkSuperseded(ctx context.Context, q sqlx.ExtContext, id, actionID uuid.UUID, adj domain.Adjustment) (bool, error) {
	if err := adj.Validate(); err != nil {
		return false, err
	}
	res, err := q.ExecContext(ctx, q.Rebind(`
		UPDATE rewards
		SET status = ?,
			adjustment_reason = COALESCE(adjustment_reason, ?),
			original_quantity = COALESCE(original_quantity, ?),
			corporate_action_id = COALESCE(corporate_action_id, ?),
			superseded_by = ?
		WHERE id = ? AND superseded_by IS NULL AND status IN (?, ?)
	`), string(domain.RewardStatusAdjusted), adj.Reason, nullDecimal(adj.OriginalQuantity), nullUUID(adj.ActionID),
		actionID, id, string(domain.RewardStatusActive), string(domain.RewardStatusAdjusted))
	if err != nil {
		return false, fmt.Errorf("supersede reward %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
