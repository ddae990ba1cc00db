package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/saiMhatre/stocky/internal/domain"
)

type LedgerRepository struct {
	db *sqlx.DB
}

func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

type ledgerRow struct {
	ID                string              `db:"id"`
	TxID              uuid.UUID           `db:"tx_id"`
	LineNo            int                 `db:"line_no"`
	UserID            string              `db:"user_id"`
	Account           string              `db:"account"`
	EntryType         string              `db:"entry_type"`
	StockSymbol       sql.NullString      `db:"stock_symbol"`
	StockQuantity     decimal.NullDecimal `db:"stock_quantity"`
	AmountINR         decimal.NullDecimal `db:"amount_inr"`
	RefID             uuid.NullUUID       `db:"ref_id"`
	Status            string              `db:"status"`
	CorporateActionID uuid.NullUUID       `db:"corporate_action_id"`
	EffectiveAt       time.Time           `db:"effective_at"`
	CreatedAt         time.Time           `db:"created_at"`
}

const ledgerColumns = `id, tx_id, line_no, user_id, account, entry_type, stock_symbol, stock_quantity,
	amount_inr, ref_id, status, corporate_action_id, effective_at, created_at`

func (r ledgerRow) toDomain() (domain.LedgerLine, error) {
	l := domain.LedgerLine{
		ID:            r.ID,
		TransactionID: r.TxID,
		LineNo:        r.LineNo,
		UserID:        r.UserID,
		Account:       domain.Account(r.Account),
		Direction:     domain.Direction(r.EntryType),
		Adjustment:    domain.Adjustment{Status: domain.RewardStatus(r.Status)},
		EffectiveAt:   r.EffectiveAt.UTC(),
		CreatedAt:     r.CreatedAt.UTC(),
	}
	switch {
	case r.StockQuantity.Valid:
		l.Payload = domain.StockPayload{Symbol: r.StockSymbol.String, Quantity: r.StockQuantity.Decimal}
	case r.AmountINR.Valid:
		l.Payload = domain.CashPayload{Amount: r.AmountINR.Decimal}
	default:
		return l, fmt.Errorf("ledger line %s has no payload", r.ID)
	}
	if r.RefID.Valid {
		id := r.RefID.UUID
		l.RewardID = &id
	}
	if r.CorporateActionID.Valid {
		id := r.CorporateActionID.UUID
		l.Adjustment.ActionID = &id
	}
	return l, nil
}

// InsertLines writes the lines of one transaction inside the caller's
// transaction. (tx_id, line_no) is unique, so re-posting a transaction fails
// with a unique violation.
func (lr *LedgerRepository) InsertLines(ctx context.Context, q sqlx.ExtContext, lines []domain.LedgerLine) error {
	query := q.Rebind(`
		INSERT INTO ledger_entries (` + ledgerColumns + `)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`)
	for _, l := range lines {
		var symbol, quantity, amount interface{}
		switch p := l.Payload.(type) {
		case domain.StockPayload:
			if !l.Account.HoldsStock() {
				return fmt.Errorf("%w: stock payload on %s", domain.ErrInvalidInput, l.Account)
			}
			symbol, quantity = p.Symbol, p.Quantity
		case domain.CashPayload:
			if l.Account.HoldsStock() {
				return fmt.Errorf("%w: cash payload on %s", domain.ErrInvalidInput, l.Account)
			}
			amount = p.Amount
		default:
			return fmt.Errorf("%w: ledger line without payload", domain.ErrInvalidInput)
		}
		status := l.Adjustment.Status
		if status == "" {
			status = domain.RewardStatusActive
		}
		_, err := q.ExecContext(ctx, query,
			l.ID, l.TransactionID, l.LineNo, l.UserID, string(l.Account), string(l.Direction),
			symbol, quantity, amount, nullUUID(l.RewardID), string(status), nullUUID(l.Adjustment.ActionID),
			effectiveAt(l).UTC(), l.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("insert ledger line %d of %s: %w", l.LineNo, l.TransactionID, err)
		}
	}
	return nil
}

// ListByTransaction reads the lines of a transaction through q, which may be
// the caller's transaction.
func (lr *LedgerRepository) ListByTransaction(ctx context.Context, q sqlx.QueryerContext, txID uuid.UUID) ([]domain.LedgerLine, error) {
	if q == nil {
		q = lr.db
	}
	rows := []ledgerRow{}
	err := sqlx.SelectContext(ctx, q, &rows, lr.db.Rebind(`
		SELECT `+ledgerColumns+` FROM ledger_entries WHERE tx_id = ? ORDER BY line_no ASC
	`), txID)
	if err != nil {
		return nil, fmt.Errorf("list ledger lines of %s: %w", txID, err)
	}
	return toLines(rows)
}

// ListPortfolio returns the USER_PORTFOLIO lines of a user in the order they
// took effect.
func (lr *LedgerRepository) ListPortfolio(ctx context.Context, userID string) ([]domain.LedgerLine, error) {
	rows := []ledgerRow{}
	err := lr.db.SelectContext(ctx, &rows, lr.db.Rebind(`
		SELECT `+ledgerColumns+` FROM ledger_entries
		WHERE user_id = ? AND account = ?
		ORDER BY effective_at ASC, created_at ASC, tx_id ASC, line_no ASC
	`), userID, string(domain.AccountUserPortfolio))
	if err != nil {
		return nil, fmt.Errorf("list portfolio lines: %w", err)
	}
	return toLines(rows)
}

// MarkPortfolioAdjusted mirrors a reward's status flip onto the portfolio
// lines of its transaction.
func (lr *LedgerRepository) MarkPortfolioAdjusted(ctx context.Context, q sqlx.ExtContext, txID, actionID uuid.UUID) error {
	_, err := q.ExecContext(ctx, q.Rebind(`
		UPDATE ledger_entries SET status = ?, corporate_action_id = ?
		WHERE tx_id = ? AND account = ? AND status = ?
	`), string(domain.RewardStatusAdjusted), actionID, txID,
		string(domain.AccountUserPortfolio), string(domain.RewardStatusActive))
	if err != nil {
		return fmt.Errorf("flip ledger lines of %s: %w", txID, err)
	}
	return nil
}

func effectiveAt(l domain.LedgerLine) time.Time {
	if l.EffectiveAt.IsZero() {
		return l.CreatedAt
	}
	return l.EffectiveAt
}

func toLines(rows []ledgerRow) ([]domain.LedgerLine, error) {
	out := make([]domain.LedgerLine, 0, len(rows))
	for _, r := range rows {
		l, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}
