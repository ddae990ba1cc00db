package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/saiMhatre/stocky/internal/domain"
)

// PriceRepository stores the quote history in price_ticks.
type PriceRepository struct {
	db *sqlx.DB
}

func NewPriceRepository(db *sqlx.DB) *PriceRepository {
	return &PriceRepository{db: db}
}

type priceRow struct {
	ID          string          `db:"id"`
	StockSymbol string          `db:"stock_symbol"`
	PriceINR    decimal.Decimal `db:"price_inr"`
	FetchedAt   time.Time       `db:"fetched_at"`
}

func (r priceRow) toDomain() domain.PriceQuote {
	return domain.PriceQuote{
		ID:         r.ID,
		Symbol:     r.StockSymbol,
		Price:      r.PriceINR,
		ObservedAt: r.FetchedAt.UTC(),
	}
}

func (pr *PriceRepository) Insert(ctx context.Context, q domain.PriceQuote) error {
	_, err := pr.db.ExecContext(ctx, pr.db.Rebind(`
		INSERT INTO price_ticks (id, stock_symbol, price_inr, fetched_at) VALUES (?,?,?,?)
	`), q.ID, q.Symbol, q.Price, q.ObservedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert price: %w", err)
	}
	return nil
}

// Latest returns the most recent quote of symbol.
func (pr *PriceRepository) Latest(ctx context.Context, symbol string) (domain.PriceQuote, error) {
	return pr.getOne(ctx, `
		SELECT id, stock_symbol, price_inr, fetched_at
		FROM price_ticks
		WHERE stock_symbol = ?
		ORDER BY fetched_at DESC, id DESC
		LIMIT 1`, symbol)
}

// LatestAsOf returns the newest quote observed at or before asOf.
func (pr *PriceRepository) LatestAsOf(ctx context.Context, symbol string, asOf time.Time) (domain.PriceQuote, error) {
	return pr.getOne(ctx, `
		SELECT id, stock_symbol, price_inr, fetched_at
		FROM price_ticks
		WHERE stock_symbol = ? AND fetched_at <= ?
		ORDER BY fetched_at DESC, id DESC
		LIMIT 1`, symbol, asOf.UTC())
}

// Range returns the quotes observed in [from, to], oldest first.
func (pr *PriceRepository) Range(ctx context.Context, symbol string, from, to time.Time) ([]domain.PriceQuote, error) {
	rows := []priceRow{}
	err := pr.db.SelectContext(ctx, &rows, pr.db.Rebind(`
		SELECT id, stock_symbol, price_inr, fetched_at
		FROM price_ticks
		WHERE stock_symbol = ? AND fetched_at >= ? AND fetched_at <= ?
		ORDER BY fetched_at ASC, id ASC`), symbol, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("list prices: %w", err)
	}
	out := make([]domain.PriceQuote, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (pr *PriceRepository) getOne(ctx context.Context, query string, args ...any) (domain.PriceQuote, error) {
	var row priceRow
	if err := pr.db.GetContext(ctx, &row, pr.db.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PriceQuote{}, fmt.Errorf("price: %w", domain.ErrNotFound)
		}
		return domain.PriceQuote{}, fmt.Errorf("get price: %w", err)
	}
	return row.toDomain(), nil
}
