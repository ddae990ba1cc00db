package corporateaction

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiMhatre/stocky/internal/db"
	"github.com/saiMhatre/stocky/internal/domain"
	"github.com/saiMhatre/stocky/internal/ledger"
	"github.com/saiMhatre/stocky/internal/metrics"
	"github.com/saiMhatre/stocky/internal/repository"
)

var (
	granted   = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	effective = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	conn      *sqlx.DB
	rewards   *repository.RewardRepository
	lines     *repository.LedgerRepository
	actions   *repository.CorporateActionRepository
	poster    *ledger.Poster
	validator *ledger.Validator
	proc      *Processor
}

func newFixture(t *testing.T) *fixture {
	conn := db.NewTest(t)
	lines := repository.NewLedgerRepository(conn)
	validator := ledger.NewValidator(lines)
	poster := ledger.NewPoster(ledger.DefaultFeeSchedule(), lines, validator)
	rewards := repository.NewRewardRepository(conn)
	actions := repository.NewCorporateActionRepository(conn)
	logger, _ := test.NewNullLogger()

	proc := NewProcessor(conn, actions, rewards, lines, poster, logger, metrics.New())
	proc.now = func() time.Time { return effective.Add(time.Hour) }
	return &fixture{
		conn:      conn,
		rewards:   rewards,
		lines:     lines,
		actions:   actions,
		poster:    poster,
		validator: validator,
		proc:      proc,
	}
}

// grant records a reward the way intake does.
func (f *fixture) grant(t *testing.T, user, symbol, qty string, at time.Time) domain.RewardEvent {
	t.Helper()
	ctx := context.Background()
	ev := domain.RewardEvent{
		ID:             uuid.New(),
		UserID:         user,
		Symbol:         symbol,
		Quantity:       dec(qty),
		RewardedAt:     at,
		IdempotencyKey: uuid.NewString(),
		Adjustment:     domain.Active(),
		CreatedAt:      at,
	}
	require.NoError(t, db.WithTx(ctx, f.conn, func(tx *sqlx.Tx) error {
		if err := f.rewards.Insert(ctx, tx, ev); err != nil {
			return err
		}
		_, err := f.poster.PostReward(ctx, tx, ev, domain.PriceQuote{Symbol: symbol, Price: dec("1000")})
		return err
	}))
	return ev
}

func (f *fixture) holding(t *testing.T, user, symbol string) decimal.Decimal {
	t.Helper()
	h, err := f.poster.Holdings(context.Background(), user)
	require.NoError(t, err)
	return h[symbol]
}

func TestProcessStockSplit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ev := f.grant(t, "u1", "TCS", "2.0", granted)
	late := f.grant(t, "u1", "TCS", "1", effective.Add(time.Minute))
	actionID := uuid.New()

	n, err := f.proc.ProcessStockSplit(ctx, Split{ActionID: actionID, Symbol: "TCS", From: dec("1"), To: dec("2"), EffectiveDate: effective})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	original, err := f.rewards.Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RewardStatusAdjusted, original.Status())
	assert.True(t, original.Quantity.Equal(dec("2")), "original quantity is never rewritten")
	require.NotNil(t, original.Adjustment.ActionID)
	assert.Equal(t, actionID, *original.Adjustment.ActionID)

	key := domain.AdjustmentKey(actionID, ev.ID)
	derived, err := f.rewards.GetByIdempotencyKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, domain.AdjustmentID(key), derived.ID)
	assert.Equal(t, domain.RewardStatusAdjusted, derived.Status())
	assert.True(t, derived.Quantity.Equal(dec("2")), "delta %s", derived.Quantity)
	require.NotNil(t, derived.Adjustment.ParentID)
	assert.Equal(t, ev.ID, *derived.Adjustment.ParentID)
	assert.True(t, derived.Adjustment.OriginalQuantity.Equal(dec("2")))

	lines, err := f.lines.ListByTransaction(ctx, nil, derived.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, domain.AccountUserPortfolio, lines[0].Account)
	assert.Equal(t, domain.Credit, lines[0].Direction)

	// 2 + 2 from the split, plus the reward granted after the effective date
	assert.True(t, f.holding(t, "u1", "TCS").Equal(dec("5")))

	untouched, err := f.rewards.Get(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RewardStatusActive, untouched.Status())

	t.Run("re-running is a no-op", func(t *testing.T) {
		n, err := f.proc.ProcessStockSplit(ctx, Split{ActionID: actionID, Symbol: "TCS", From: dec("1"), To: dec("2"), EffectiveDate: effective})
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		assert.True(t, f.holding(t, "u1", "TCS").Equal(dec("5")))

		all, err := f.rewards.ListByUserSymbol(ctx, "u1", "TCS")
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})
}

func TestProcessStockSplitRejectsReverseSplit(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "u1", "TCS", "2", granted)
	_, err := f.proc.ProcessStockSplit(context.Background(), Split{ActionID: uuid.New(), Symbol: "TCS", From: dec("2"), To: dec("1"), EffectiveDate: effective})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.True(t, f.holding(t, "u1", "TCS").Equal(dec("2")))
}

func TestProcessBonus(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "u1", "INFY", "4", granted)

	// one bonus share for every two held
	n, err := f.proc.ProcessBonus(context.Background(), Bonus{ActionID: uuid.New(), Symbol: "INFY", From: dec("2"), To: dec("1"), EffectiveDate: effective})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, f.holding(t, "u1", "INFY").Equal(dec("6")))
}

func TestProcessMerger(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ev := f.grant(t, "u1", "HDFC", "4.0", granted)
	actionID := uuid.New()

	n, err := f.proc.ProcessMerger(ctx, Merger{ActionID: actionID, OldSymbol: "HDFC", NewSymbol: "hdfcbank", Ratio: dec("0.5"), EffectiveDate: effective})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	derived, err := f.rewards.Get(ctx, domain.AdjustmentID(domain.AdjustmentKey(actionID, ev.ID)))
	require.NoError(t, err)
	assert.Equal(t, "HDFCBANK", derived.Symbol)
	assert.True(t, derived.Quantity.Equal(dec("2")))

	h, err := f.poster.Holdings(ctx, "u1")
	require.NoError(t, err)
	assert.NotContains(t, h, "HDFC")
	assert.True(t, h["HDFCBANK"].Equal(dec("2")))

	lines, err := f.lines.ListByTransaction(ctx, nil, derived.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, domain.Debit, lines[0].Direction)
	assert.Equal(t, domain.Credit, lines[1].Direction)

	_, err = f.proc.ProcessMerger(ctx, Merger{ActionID: uuid.New(), OldSymbol: "TCS", NewSymbol: "tcs", Ratio: dec("1"), EffectiveDate: effective})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestProcessDelisting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ev := f.grant(t, "u1", "VEDANTA", "2.5", granted)
	actionID := uuid.New()

	n, err := f.proc.ProcessDelisting(ctx, Delisting{ActionID: actionID, Symbol: "VEDANTA", FinalPrice: dec("100"), EffectiveDate: effective})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	txID := domain.AdjustmentID(domain.AdjustmentKey(actionID, ev.ID))
	lines, err := f.lines.ListByTransaction(ctx, nil, txID)
	require.NoError(t, err)
	require.Len(t, lines, 3)

	cash, ok := lines[1].Cash()
	require.True(t, ok)
	assert.Equal(t, domain.AccountUserCash, lines[1].Account)
	assert.Equal(t, "250.0000", cash.StringFixed(4))
	assert.Equal(t, domain.AccountCompanyCash, lines[2].Account)
	assert.Equal(t, domain.Credit, lines[2].Direction)

	assert.True(t, lines[0].EffectiveAt.Equal(effective), "effective at %s", lines[0].EffectiveAt)

	ok, err = f.validator.ValidateTransaction(ctx, txID)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.True(t, f.holding(t, "u1", "VEDANTA").IsZero())

	n, err = f.proc.ProcessDelisting(ctx, Delisting{ActionID: actionID, Symbol: "VEDANTA", FinalPrice: dec("100"), EffectiveDate: effective})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestProcessDividend(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ev := f.grant(t, "u1", "ITC", "3", granted)
	actionID := uuid.New()
	d := Dividend{ActionID: actionID, Symbol: "ITC", PerShare: dec("6.25"), EffectiveDate: effective}

	n, err := f.proc.ProcessDividend(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	lines, err := f.lines.ListByTransaction(ctx, nil, domain.AdjustmentID(domain.AdjustmentKey(actionID, ev.ID)))
	require.NoError(t, err)
	require.Len(t, lines, 2)
	amount, _ := lines[0].Cash()
	assert.True(t, amount.Equal(dec("18.75")))

	n, err = f.proc.ProcessDividend(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	still, err := f.rewards.Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RewardStatusActive, still.Status())
	assert.True(t, f.holding(t, "u1", "ITC").Equal(dec("3")))
}

func TestHandlersRequireActionID(t *testing.T) {
	f := newFixture(t)
	_, err := f.proc.ProcessStockSplit(context.Background(), Split{Symbol: "TCS", From: dec("1"), To: dec("2"), EffectiveDate: effective})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestAnnounce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	a, err := f.proc.Announce(ctx, domain.CorporateAction{
		Symbol:        " tcs",
		Params:        domain.SplitParams{From: dec("1"), To: dec("3")},
		EffectiveDate: effective,
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, a.ID)
	assert.Equal(t, "TCS", a.Symbol)
	assert.Equal(t, domain.ActionAnnounced, a.Status)

	got, err := f.proc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionSplit, got.Type())

	_, err = f.proc.Announce(ctx, domain.CorporateAction{
		Symbol:        "TCS",
		Params:        domain.MergerParams{TargetSymbol: "tcs", Ratio: dec("1")},
		EffectiveDate: effective,
	})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.proc.Announce(ctx, domain.CorporateAction{Symbol: "TCS", Params: domain.SplitParams{From: dec("1"), To: dec("2")}})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestProcessPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.grant(t, "u1", "TCS", "2", granted)
	f.grant(t, "u2", "TCS", "1", granted)
	f.grant(t, "u1", "WIPRO", "10", granted)

	split, err := f.proc.Announce(ctx, domain.CorporateAction{
		Symbol: "TCS", Params: domain.SplitParams{From: dec("1"), To: dec("2")}, EffectiveDate: effective,
	})
	require.NoError(t, err)

	// stored directly so that the bad ratio only surfaces while processing
	broken := domain.CorporateAction{
		ID: uuid.New(), Symbol: "WIPRO", Params: domain.SplitParams{From: dec("2"), To: dec("1")},
		EffectiveDate: effective.Add(-time.Hour), AnnouncedAt: granted, Status: domain.ActionAnnounced,
	}
	require.NoError(t, f.actions.Insert(ctx, broken))

	future, err := f.proc.Announce(ctx, domain.CorporateAction{
		Symbol: "WIPRO", Params: domain.DelistingParams{FinalPrice: dec("1")}, EffectiveDate: effective.AddDate(0, 1, 0),
	})
	require.NoError(t, err)

	report, err := f.proc.ProcessPending(ctx)
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	assert.Equal(t, 1, report.Count(domain.ActionProcessed))
	assert.Equal(t, 1, report.Count(domain.ActionCancelled))

	// earliest effective date first
	assert.Equal(t, broken.ID, report.Results[0].ActionID)
	assert.NotEmpty(t, report.Results[0].Error)
	assert.Equal(t, split.ID, report.Results[1].ActionID)
	assert.Equal(t, 2, report.Results[1].Adjusted)

	got, err := f.actions.Get(ctx, broken.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionCancelled, got.Status)
	assert.Contains(t, got.FailureReason, "to > from")
	require.NotNil(t, got.ProcessedAt)

	got, err = f.actions.Get(ctx, split.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionProcessed, got.Status)

	got, err = f.actions.Get(ctx, future.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionAnnounced, got.Status)

	assert.True(t, f.holding(t, "u1", "TCS").Equal(dec("4")))
	assert.True(t, f.holding(t, "u2", "TCS").Equal(dec("2")))
	assert.True(t, f.holding(t, "u1", "WIPRO").Equal(dec("10")))

	again, err := f.proc.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, again.Results)
	assert.True(t, f.holding(t, "u1", "TCS").Equal(dec("4")))
}

func TestChainedSplits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.grant(t, "u1", "TCS", "2", granted)
	later := effective.AddDate(0, 0, 1)
	second := Split{ActionID: uuid.New(), Symbol: "TCS", From: dec("1"), To: dec("2"), EffectiveDate: later}

	_, err := f.proc.ProcessStockSplit(ctx, Split{ActionID: uuid.New(), Symbol: "TCS", From: dec("1"), To: dec("2"), EffectiveDate: effective})
	require.NoError(t, err)
	require.True(t, f.holding(t, "u1", "TCS").Equal(dec("4")))

	// the original and the shares the first split derived both double
	n, err := f.proc.ProcessStockSplit(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, f.holding(t, "u1", "TCS").Equal(dec("8")), "holding %s", f.holding(t, "u1", "TCS"))

	n, err = f.proc.ProcessStockSplit(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.True(t, f.holding(t, "u1", "TCS").Equal(dec("8")))
}

func TestDividendAfterSplit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.grant(t, "u1", "ITC", "3", granted)

	_, err := f.proc.ProcessStockSplit(ctx, Split{ActionID: uuid.New(), Symbol: "ITC", From: dec("1"), To: dec("2"), EffectiveDate: effective})
	require.NoError(t, err)

	n, err := f.proc.ProcessDividend(ctx, Dividend{ActionID: uuid.New(), Symbol: "ITC", PerShare: dec("1.5"), EffectiveDate: effective.AddDate(0, 0, 1)})
	require.NoError(t, err)
	assert.Equal(t, 2, n, "paid on the original and on the split shares")
}

func TestMergerThenDelisting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ev := f.grant(t, "u1", "OLD", "4", granted)
	merger, delisting := uuid.New(), uuid.New()
	later := effective.AddDate(0, 0, 1)

	_, err := f.proc.ProcessMerger(ctx, Merger{ActionID: merger, OldSymbol: "OLD", NewSymbol: "NEW", Ratio: dec("0.5"), EffectiveDate: effective})
	require.NoError(t, err)
	require.True(t, f.holding(t, "u1", "NEW").Equal(dec("2")))

	original, err := f.rewards.Get(ctx, ev.ID)
	require.NoError(t, err)
	require.NotNil(t, original.SupersededBy)
	assert.Equal(t, merger, *original.SupersededBy)

	// the merged-away symbol has nothing left to act on
	n, err := f.proc.ProcessDelisting(ctx, Delisting{ActionID: uuid.New(), Symbol: "OLD", FinalPrice: dec("1"), EffectiveDate: later})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = f.proc.ProcessDelisting(ctx, Delisting{ActionID: delisting, Symbol: "NEW", FinalPrice: dec("100"), EffectiveDate: later})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	h, err := f.poster.Holdings(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, h)

	mergedID := domain.AdjustmentID(domain.AdjustmentKey(merger, ev.ID))
	lines, err := f.lines.ListByTransaction(ctx, nil, domain.AdjustmentID(domain.AdjustmentKey(delisting, mergedID)))
	require.NoError(t, err)
	require.Len(t, lines, 3)
	cash, ok := lines[1].Cash()
	require.True(t, ok)
	assert.Equal(t, domain.AccountUserCash, lines[1].Account)
	assert.True(t, cash.Equal(dec("200")), "cash %s", cash)

	merged, err := f.rewards.Get(ctx, mergedID)
	require.NoError(t, err)
	require.NotNil(t, merged.SupersededBy)
	assert.Equal(t, delisting, *merged.SupersededBy)
	require.NotNil(t, merged.Adjustment.ParentID)
	assert.Equal(t, ev.ID, *merged.Adjustment.ParentID)
}

func TestRunRecordsOutcomeAfterCancellation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.grant(t, "u1", "TCS", "2", granted)
	a, err := f.proc.Announce(ctx, domain.CorporateAction{
		Symbol: "TCS", Params: domain.SplitParams{From: dec("1"), To: dec("2")}, EffectiveDate: effective,
	})
	require.NoError(t, err)

	claimed, err := f.actions.Transition(ctx, a.ID, domain.ActionAnnounced, domain.ActionPending, "", f.proc.now())
	require.NoError(t, err)
	require.True(t, claimed)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	res, err := f.proc.run(cancelled, a)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionCancelled, res.Status)

	got, err := f.actions.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionCancelled, got.Status)
	assert.Contains(t, got.FailureReason, context.Canceled.Error())
	assert.True(t, f.holding(t, "u1", "TCS").Equal(dec("2")))

	t.Run("retry resumes the action", func(t *testing.T) {
		retried, err := f.proc.Retry(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ActionAnnounced, retried.Status)
		assert.Empty(t, retried.FailureReason)
		assert.Nil(t, retried.ProcessedAt)

		report, err := f.proc.ProcessPending(ctx)
		require.NoError(t, err)
		require.Len(t, report.Results, 1)
		assert.Equal(t, domain.ActionProcessed, report.Results[0].Status)
		assert.True(t, f.holding(t, "u1", "TCS").Equal(dec("4")))
	})
}

func TestProcessPendingWithCancelledContext(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.grant(t, "u1", "TCS", "2", granted)
	a, err := f.proc.Announce(ctx, domain.CorporateAction{
		Symbol: "TCS", Params: domain.SplitParams{From: dec("1"), To: dec("2")}, EffectiveDate: effective,
	})
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = f.proc.ProcessPending(cancelled)
	require.ErrorIs(t, err, context.Canceled)

	got, err := f.actions.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionAnnounced, got.Status, "unclaimed actions stay announced")
}

func TestRetryPaysDividendOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first := f.grant(t, "u1", "ITC", "3", granted)
	f.grant(t, "u2", "ITC", "2", granted.Add(time.Hour))
	a, err := f.proc.Announce(ctx, domain.CorporateAction{
		Symbol: "ITC", Params: domain.DividendParams{PerShare: dec("5")}, EffectiveDate: effective,
	})
	require.NoError(t, err)

	_, err = f.conn.ExecContext(ctx, `
		CREATE TRIGGER fail_u2 BEFORE INSERT ON ledger_entries
		WHEN NEW.user_id = 'u2'
		BEGIN SELECT RAISE(ABORT, 'payout rejected'); END
	`)
	require.NoError(t, err)

	report, err := f.proc.ProcessPending(ctx)
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, domain.ActionCancelled, report.Results[0].Status)
	assert.Equal(t, 1, report.Results[0].Adjusted)

	_, err = f.conn.ExecContext(ctx, `DROP TRIGGER fail_u2`)
	require.NoError(t, err)

	_, err = f.proc.Retry(ctx, a.ID)
	require.NoError(t, err)
	report, err = f.proc.ProcessPending(ctx)
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, domain.ActionProcessed, report.Results[0].Status)
	assert.Equal(t, 1, report.Results[0].Adjusted, "only the holder missed by the first run is paid")

	var payouts int
	require.NoError(t, f.conn.GetContext(ctx, &payouts, f.conn.Rebind(
		`SELECT COUNT(*) FROM ledger_entries WHERE user_id = ? AND account = ?`), "u1", string(domain.AccountUserCash)))
	assert.Equal(t, 1, payouts)

	lines, err := f.lines.ListByTransaction(ctx, nil, domain.AdjustmentID(domain.AdjustmentKey(a.ID, first.ID)))
	require.NoError(t, err)
	require.Len(t, lines, 2)
	amount, _ := lines[0].Cash()
	assert.True(t, amount.Equal(dec("15")))
}

func TestRetryRequiresCancelledAction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, err := f.proc.Announce(ctx, domain.CorporateAction{
		Symbol: "TCS", Params: domain.SplitParams{From: dec("1"), To: dec("2")}, EffectiveDate: effective,
	})
	require.NoError(t, err)

	_, err = f.proc.Retry(ctx, a.ID)
	require.ErrorIs(t, err, domain.ErrConflict)

	_, err = f.proc.Retry(ctx, uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)
}
