package ledger

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiMhatre/stocky/internal/config"
	"github.com/saiMhatre/stocky/internal/db"
	"github.com/saiMhatre/stocky/internal/domain"
	"github.com/saiMhatre/stocky/internal/repository"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestFeeScheduleCompute(t *testing.T) {
	b := DefaultFeeSchedule().Compute(dec("2"), dec("1000"))

	assert.True(t, b.INRValue.Equal(dec("2000")), "inr value %s", b.INRValue)
	assert.True(t, b.Brokerage.Equal(dec("0.4")), "brokerage %s", b.Brokerage)
	assert.True(t, b.STT.Equal(dec("2")), "stt %s", b.STT)
	assert.True(t, b.GST.Equal(dec("0.072")), "gst %s", b.GST)
	assert.True(t, b.TotalFees.Equal(dec("2.472")), "total fees %s", b.TotalFees)
	assert.True(t, b.TotalCost.Equal(dec("2002.472")), "total cost %s", b.TotalCost)
	assert.Empty(t, b.Other)
}

func TestFeeScheduleRegulatoryFees(t *testing.T) {
	cfg := config.Default().Fees
	cfg.ExchangeFeeRate = 0.0000345
	cfg.StampDutyRate = 0.00015
	b := FeeScheduleFromConfig(cfg).Compute(dec("10"), dec("1234.5"))

	require.Len(t, b.Other, 2)
	assert.Equal(t, domain.AccountExchangeFeeExpense, b.Other[0].Account)
	assert.True(t, b.Other[0].Amount.Equal(dec("0.4259")), "exchange fee %s", b.Other[0].Amount)
	assert.Equal(t, domain.AccountStampDutyExpense, b.Other[1].Account)
	assert.True(t, b.Other[1].Amount.Equal(dec("1.8518")), "stamp duty %s", b.Other[1].Amount)

	sum := decimal.Zero
	for _, f := range b.Fees() {
		sum = sum.Add(f.Amount)
	}
	assert.True(t, sum.Equal(b.TotalFees))
}

func TestBreakdownFromLinesMatchesCompute(t *testing.T) {
	cfg := config.Default().Fees
	cfg.SEBIFeeRate = 0.000001
	want := FeeScheduleFromConfig(cfg).Compute(dec("3.5"), dec("812.25"))

	txID := uuid.New()
	lines := []domain.LedgerLine{
		Line(txID, "u1", domain.AccountUserPortfolio, domain.Credit, Stock("TCS", dec("3.5"))),
		Line(txID, "u1", domain.AccountRewardExpense, domain.Debit, Cash(want.INRValue)),
	}
	for _, f := range want.Fees() {
		lines = append(lines, Line(txID, "u1", f.Account, domain.Debit, Cash(f.Amount)))
	}
	lines = append(lines, Line(txID, "u1", domain.AccountCompanyCash, domain.Credit, Cash(want.TotalCost)))

	got := BreakdownFromLines(lines)
	assert.True(t, got.INRValue.Equal(want.INRValue))
	assert.True(t, got.TotalFees.Equal(want.TotalFees))
	assert.True(t, got.TotalCost.Equal(want.TotalCost))
	require.Len(t, got.Other, 1)
	assert.Equal(t, domain.AccountSEBIFeeExpense, got.Other[0].Account)
}

// Any reward built from the schedule must balance, whatever the quantity and
// price.
func TestRewardTransactionsAlwaysBalance(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	fees := DefaultFeeSchedule()
	for i := 0; i < 500; i++ {
		qty := decimal.New(rng.Int64N(10_000_000), -domain.QuantityPlaces)
		price := decimal.New(1+rng.Int64N(50_000_000), -domain.AmountPlaces)
		b := fees.Compute(qty, price)

		txID := uuid.New()
		lines := []domain.LedgerLine{
			Line(txID, "u", domain.AccountRewardExpense, domain.Debit, Cash(b.INRValue)),
		}
		for _, f := range b.Fees() {
			lines = append(lines, Line(txID, "u", f.Account, domain.Debit, Cash(f.Amount)))
		}
		lines = append(lines, Line(txID, "u", domain.AccountCompanyCash, domain.Credit, Cash(b.TotalCost)))

		require.True(t, Balanced(lines), "qty=%s price=%s sum=%s", qty, price, MonetarySum(lines))
	}
}

func TestMonetarySumIgnoresStock(t *testing.T) {
	txID := uuid.New()
	lines := []domain.LedgerLine{
		Line(txID, "u", domain.AccountUserPortfolio, domain.Credit, Stock("TCS", dec("5"))),
		Line(txID, "u", domain.AccountUserCash, domain.Debit, Cash(dec("100.00004"))),
		Line(txID, "u", domain.AccountCompanyCash, domain.Credit, Cash(dec("100"))),
	}
	// Cash rounds to 4 places, so the two sides match exactly.
	assert.True(t, MonetarySum(lines).IsZero())

	lines[1].Payload = domain.CashPayload{Amount: dec("100.0001")}
	assert.False(t, Balanced(lines))

	lines[1].Payload = domain.CashPayload{Amount: dec("100.00009")}
	assert.True(t, Balanced(lines))
}

type fixture struct {
	conn    *sqlx.DB
	rewards *repository.RewardRepository
	lines   *repository.LedgerRepository
	poster  *Poster
	valid   *Validator
}

func newFixture(t *testing.T) fixture {
	conn := db.NewTest(t)
	lines := repository.NewLedgerRepository(conn)
	v := NewValidator(lines)
	return fixture{
		conn:    conn,
		rewards: repository.NewRewardRepository(conn),
		lines:   lines,
		poster:  NewPoster(DefaultFeeSchedule(), lines, v),
		valid:   v,
	}
}

func reward(user, symbol, qty string) domain.RewardEvent {
	now := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	return domain.RewardEvent{
		ID:             uuid.New(),
		UserID:         user,
		Symbol:         symbol,
		Quantity:       dec(qty),
		RewardedAt:     now,
		IdempotencyKey: uuid.NewString(),
		Adjustment:     domain.Active(),
		CreatedAt:      now,
	}
}

func TestPosterPostReward(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	ev := reward("u1", "RELIANCE", "2")
	quote := domain.PriceQuote{Symbol: "RELIANCE", Price: dec("1000")}

	var b Breakdown
	err := db.WithTx(ctx, f.conn, func(tx *sqlx.Tx) error {
		if err := f.rewards.Insert(ctx, tx, ev); err != nil {
			return err
		}
		var err error
		b, err = f.poster.PostReward(ctx, tx, ev, quote)
		return err
	})
	require.NoError(t, err)
	assert.True(t, b.TotalCost.Equal(dec("2002.472")))

	lines, err := f.lines.ListByTransaction(ctx, nil, ev.ID)
	require.NoError(t, err)
	require.Len(t, lines, 6)

	accounts := []domain.Account{}
	for i, l := range lines {
		assert.Equal(t, i+1, l.LineNo)
		assert.NotEmpty(t, l.ID)
		require.NotNil(t, l.RewardID)
		assert.Equal(t, ev.ID, *l.RewardID)
		accounts = append(accounts, l.Account)
	}
	assert.Equal(t, []domain.Account{
		domain.AccountUserPortfolio,
		domain.AccountRewardExpense,
		domain.AccountBrokerageExpense,
		domain.AccountSTTExpense,
		domain.AccountGSTExpense,
		domain.AccountCompanyCash,
	}, accounts)

	ok, err := f.valid.ValidateTransaction(ctx, ev.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	rebuilt := BreakdownFromLines(lines)
	assert.True(t, rebuilt.TotalCost.Equal(b.TotalCost))

	holdings, err := f.poster.Holdings(ctx, "u1")
	require.NoError(t, err)
	require.Contains(t, holdings, "RELIANCE")
	assert.True(t, holdings["RELIANCE"].Equal(dec("2")))
}

func TestPosterRejectsUnbalanced(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	txID := uuid.New()
	lines := []domain.LedgerLine{
		Line(txID, "u1", domain.AccountUserCash, domain.Debit, Cash(dec("10"))),
		Line(txID, "u1", domain.AccountCompanyCash, domain.Credit, Cash(dec("9.99"))),
	}
	err := db.WithTx(ctx, f.conn, func(tx *sqlx.Tx) error {
		return f.poster.Post(ctx, tx, lines)
	})
	require.ErrorIs(t, err, domain.ErrLedgerImbalance)

	stored, err := f.lines.ListByTransaction(ctx, nil, txID)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestPosterRejectsBadPrice(t *testing.T) {
	f := newFixture(t)
	ev := reward("u1", "TCS", "1")
	_, err := f.poster.PostReward(context.Background(), f.conn, ev, domain.PriceQuote{Symbol: "TCS"})
	require.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestPosterRejectsMixedTransactions(t *testing.T) {
	f := newFixture(t)
	lines := []domain.LedgerLine{
		Line(uuid.New(), "u1", domain.AccountUserCash, domain.Debit, Cash(dec("1"))),
		Line(uuid.New(), "u1", domain.AccountCompanyCash, domain.Credit, Cash(dec("1"))),
	}
	require.ErrorIs(t, f.poster.Post(context.Background(), f.conn, lines), domain.ErrInvalidInput)
	require.ErrorIs(t, f.poster.Post(context.Background(), f.conn, nil), domain.ErrInvalidInput)
}

func TestHoldingsNetsDebits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	ev := reward("u1", "TCS", "4")
	require.NoError(t, db.WithTx(ctx, f.conn, func(tx *sqlx.Tx) error {
		if err := f.rewards.Insert(ctx, tx, ev); err != nil {
			return err
		}
		_, err := f.poster.PostReward(ctx, tx, ev, domain.PriceQuote{Symbol: "TCS", Price: dec("3000")})
		return err
	}))

	// move the whole position to another symbol
	txID := uuid.New()
	require.NoError(t, db.WithTx(ctx, f.conn, func(tx *sqlx.Tx) error {
		return f.poster.Post(ctx, tx, []domain.LedgerLine{
			Line(txID, "u1", domain.AccountUserPortfolio, domain.Debit, Stock("TCS", dec("4"))),
			Line(txID, "u1", domain.AccountUserPortfolio, domain.Credit, Stock("TCSL", dec("2"))),
		})
	}))

	holdings, err := f.poster.Holdings(ctx, "u1")
	require.NoError(t, err)
	assert.NotContains(t, holdings, "TCS")
	require.Contains(t, holdings, "TCSL")
	assert.True(t, holdings["TCSL"].Equal(dec("2")))
}
