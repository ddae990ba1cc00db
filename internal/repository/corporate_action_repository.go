package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/saiMhatre/stocky/internal/domain"
)

type CorporateActionRepository struct {
	db *sqlx.DB
}

func NewCorporateActionRepository(db *sqlx.DB) *CorporateActionRepository {
	return &CorporateActionRepository{db: db}
}

type actionRow struct {
	ID            uuid.UUID    `db:"id"`
	StockSymbol   string       `db:"stock_symbol"`
	ActionType    string       `db:"action_type"`
	Parameter     string       `db:"parameter"`
	EffectiveDate time.Time    `db:"effective_date"`
	AnnouncedAt   time.Time    `db:"announced_at"`
	Status        string       `db:"status"`
	FailureReason string       `db:"failure_reason"`
	ProcessedAt   sql.NullTime `db:"processed_at"`
}

const actionColumns = `id, stock_symbol, action_type, parameter, effective_date, announced_at,
	status, failure_reason, processed_at`

func (r actionRow) toDomain() (domain.CorporateAction, error) {
	params, err := domain.DecodeParams(domain.ActionType(r.ActionType), []byte(r.Parameter))
	if err != nil {
		return domain.CorporateAction{}, err
	}
	a := domain.CorporateAction{
		ID:            r.ID,
		Symbol:        r.StockSymbol,
		Params:        params,
		EffectiveDate: r.EffectiveDate.UTC(),
		AnnouncedAt:   r.AnnouncedAt.UTC(),
		Status:        domain.ActionStatus(r.Status),
		FailureReason: r.FailureReason,
	}
	if r.ProcessedAt.Valid {
		t := r.ProcessedAt.Time.UTC()
		a.ProcessedAt = &t
	}
	return a, nil
}

func (ar *CorporateActionRepository) Insert(ctx context.Context, a domain.CorporateAction) error {
	raw, err := domain.EncodeParams(a.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	_, err = ar.db.ExecContext(ctx, ar.db.Rebind(`
		INSERT INTO corporate_actions (id, stock_symbol, action_type, parameter, effective_date, announced_at, status)
		VALUES (?,?,?,?,?,?,?)
	`), a.ID, a.Symbol, string(a.Type()), string(raw), a.EffectiveDate.UTC(), a.AnnouncedAt.UTC(), string(a.Status))
	if err != nil {
		return fmt.Errorf("insert corporate action: %w", err)
	}
	return nil
}

func (ar *CorporateActionRepository) Get(ctx context.Context, id uuid.UUID) (domain.CorporateAction, error) {
	var row actionRow
	err := ar.db.GetContext(ctx, &row, ar.db.Rebind(`SELECT `+actionColumns+` FROM corporate_actions WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CorporateAction{}, fmt.Errorf("corporate action: %w", domain.ErrNotFound)
		}
		return domain.CorporateAction{}, fmt.Errorf("get corporate action: %w", err)
	}
	return row.toDomain()
}

// ListDue returns ANNOUNCED actions effective at or before now, earliest first.
func (ar *CorporateActionRepository) ListDue(ctx context.Context, now time.Time) ([]domain.CorporateAction, error) {
	rows := []actionRow{}
	err := ar.db.SelectContext(ctx, &rows, ar.db.Rebind(`
		SELECT `+actionColumns+` FROM corporate_actions
		WHERE status = ? AND effective_date <= ?
		ORDER BY effective_date ASC, announced_at ASC
	`), string(domain.ActionAnnounced), now.UTC())
	if err != nil {
		return nil, fmt.Errorf("list due corporate actions: %w", err)
	}
	out := make([]domain.CorporateAction, 0, len(rows))
	for _, r := range rows {
		a, err := r.toDomain()
		if err != nil {
			return nil, fmt.Errorf("corporate action %s: %w", r.ID, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// Transition moves an action from one status to another. It reports false
// when the action was not in the expected status.
func (ar *CorporateActionRepository) Transition(ctx context.Context, id uuid.UUID, from, to domain.ActionStatus, reason string, at time.Time) (bool, error) {
	var processedAt interface{}
	if to.Terminal() {
		processedAt = at.UTC()
	}
	res, err := ar.db.ExecContext(ctx, ar.db.Rebind(`
		UPDATE corporate_actions SET status = ?, failure_reason = ?, processed_at = ?
		WHERE id = ? AND status = ?
	`), string(to), reason, processedAt, id, string(from))
	if err != nil {
		return false, fmt.Errorf("transition corporate action %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
