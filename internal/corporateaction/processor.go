// Package corporateaction applies splits, bonuses, mergers, delistings and
// dividends to the reward events recorded before their effective date.
//
// Original events are never rewritten. Each one is flipped to ADJUSTED and
// the effect of the action is recorded as a new reward event and/or ledger
// transaction whose identifiers derive from (action, event). Every event is
// handled in its own database transaction, so re-running an action after a
// crash only applies what is missing.
//
// An action applies to every event whose shares are still held in its
// symbol, including events adjusted or derived by earlier splits and
// bonuses. Mergers and delistings move shares out of the symbol and mark
// the events they consume as superseded.
package corporateaction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/saiMhatre/stocky/internal/db"
	"github.com/saiMhatre/stocky/internal/domain"
	"github.com/saiMhatre/stocky/internal/ledger"
	"github.com/saiMhatre/stocky/internal/metrics"
	"github.com/saiMhatre/stocky/internal/repository"
)

// errApplied marks an event the action has already been applied to.
var errApplied = errors.New("already applied")

type Split struct {
	ActionID      uuid.UUID
	Symbol        string
	From, To      decimal.Decimal
	EffectiveDate time.Time
}

// Bonus grants To new shares for every From held.
type Bonus struct {
	ActionID      uuid.UUID
	Symbol        string
	From, To      decimal.Decimal
	EffectiveDate time.Time
}

type Merger struct {
	ActionID      uuid.UUID
	OldSymbol     string
	NewSymbol     string
	Ratio         decimal.Decimal
	EffectiveDate time.Time
}

type Delisting struct {
	ActionID      uuid.UUID
	Symbol        string
	FinalPrice    decimal.Decimal
	EffectiveDate time.Time
}

type Dividend struct {
	ActionID      uuid.UUID
	Symbol        string
	PerShare      decimal.Decimal
	EffectiveDate time.Time
}

// Result is the outcome of one corporate action.
type Result struct {
	ActionID uuid.UUID           `json:"action_id"`
	Type     domain.ActionType   `json:"type"`
	Status   domain.ActionStatus `json:"status"`
	Adjusted int                 `json:"adjusted"`
	Error    string              `json:"error,omitempty"`
}

type Report struct {
	Results []Result `json:"results"`
	// Skipped counts due actions claimed by another caller first.
	Skipped int `json:"skipped"`
}

func (r Report) Count(status domain.ActionStatus) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

type Processor struct {
	conn    *sqlx.DB
	actions *repository.CorporateActionRepository
	rewards *repository.RewardRepository
	lines   *repository.LedgerRepository
	poster  *ledger.Poster
	log     logrus.FieldLogger
	metrics *metrics.Metrics
	now     func() time.Time

	mu sync.Mutex
}

func NewProcessor(conn *sqlx.DB, actions *repository.CorporateActionRepository, rewards *repository.RewardRepository,
	lines *repository.LedgerRepository, poster *ledger.Poster, log logrus.FieldLogger, m *metrics.Metrics) *Processor {
	return &Processor{
		conn:    conn,
		actions: actions,
		rewards: rewards,
		lines:   lines,
		poster:  poster,
		log:     log,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Announce validates and stores a new ANNOUNCED action.
func (p *Processor) Announce(ctx context.Context, a domain.CorporateAction) (domain.CorporateAction, error) {
	a.Symbol = domain.NormalizeSymbol(a.Symbol)
	if m, ok := a.Params.(domain.MergerParams); ok {
		m.TargetSymbol = domain.NormalizeSymbol(m.TargetSymbol)
		a.Params = m
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.AnnouncedAt.IsZero() {
		a.AnnouncedAt = p.now()
	}
	a.EffectiveDate = a.EffectiveDate.UTC()
	a.Status = domain.ActionAnnounced
	a.FailureReason = ""
	a.ProcessedAt = nil
	if err := a.Validate(); err != nil {
		return domain.CorporateAction{}, err
	}
	if err := p.actions.Insert(ctx, a); err != nil {
		return domain.CorporateAction{}, err
	}
	p.log.WithFields(logrus.Fields{
		"action_id": a.ID.String(),
		"type":      a.Type(),
		"symbol":    a.Symbol,
		"effective": a.EffectiveDate.Format(time.RFC3339),
	}).Info("corporate action announced")
	return a, nil
}

func (p *Processor) Get(ctx context.Context, id uuid.UUID) (domain.CorporateAction, error) {
	return p.actions.Get(ctx, id)
}

// Retry re-announces a CANCELLED action under its own id, so the next
// ProcessPending resumes it. Holders it already reached are skipped through
// their derived keys, which announcing a new action would not do.
func (p *Processor) Retry(ctx context.Context, id uuid.UUID) (domain.CorporateAction, error) {
	ok, err := p.actions.Transition(ctx, id, domain.ActionCancelled, domain.ActionAnnounced, "", p.now())
	if err != nil {
		return domain.CorporateAction{}, err
	}
	a, err := p.actions.Get(ctx, id)
	if err != nil {
		return domain.CorporateAction{}, err
	}
	if !ok {
		return domain.CorporateAction{}, fmt.Errorf("%w: corporate action %s is %s, only CANCELLED actions can be retried",
			domain.ErrConflict, id, a.Status)
	}
	p.log.WithFields(logrus.Fields{
		"action_id": a.ID.String(),
		"type":      a.Type(),
		"symbol":    a.Symbol,
	}).Info("corporate action re-announced")
	return a, nil
}

// ProcessPending runs every ANNOUNCED action that is due, earliest first. A
// failing action is cancelled with its reason and the rest still run. The
// returned error is only set when the store itself fails.
func (p *Processor) ProcessPending(ctx context.Context) (Report, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	report := Report{Results: []Result{}}
	due, err := p.actions.ListDue(ctx, p.now())
	if err != nil {
		return report, err
	}
	for _, a := range due {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		claimed, err := p.actions.Transition(ctx, a.ID, domain.ActionAnnounced, domain.ActionPending, "", p.now())
		if err != nil {
			return report, err
		}
		if !claimed {
			report.Skipped++
			continue
		}
		res, err := p.run(ctx, a)
		if err != nil {
			return report, err
		}
		report.Results = append(report.Results, res)
	}
	return report, nil
}

func (p *Processor) run(ctx context.Context, a domain.CorporateAction) (Result, error) {
	log := p.log.WithFields(logrus.Fields{
		"action_id": a.ID.String(),
		"type":      a.Type(),
		"symbol":    a.Symbol,
	})
	res := Result{ActionID: a.ID, Type: a.Type()}

	n, herr := p.apply(ctx, a)
	res.Adjusted = n
	p.metrics.Adjusted(string(a.Type()), n)

	to, reason := domain.ActionProcessed, ""
	if herr != nil {
		aerr := domain.ActionError{ActionID: a.ID, Type: a.Type(), Err: herr}
		to, reason = domain.ActionCancelled, herr.Error()
		res.Error = aerr.Error()
		log.WithError(herr).WithField("adjusted", n).Error("corporate action failed, cancelling")
	}
	// recorded even when ctx ended mid-run, so a claimed action never
	// stays PENDING
	if _, err := p.actions.Transition(context.WithoutCancel(ctx), a.ID, domain.ActionPending, to, reason, p.now()); err != nil {
		return res, err
	}
	res.Status = to
	p.metrics.Action(string(a.Type()), string(to))
	if herr == nil {
		log.WithField("adjusted", n).Info("corporate action processed")
	}
	return res, nil
}

func (p *Processor) apply(ctx context.Context, a domain.CorporateAction) (int, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	switch params := a.Params.(type) {
	case domain.SplitParams:
		return p.ProcessStockSplit(ctx, Split{ActionID: a.ID, Symbol: a.Symbol, From: params.From, To: params.To, EffectiveDate: a.EffectiveDate})
	case domain.BonusParams:
		return p.ProcessBonus(ctx, Bonus{ActionID: a.ID, Symbol: a.Symbol, From: params.From, To: params.To, EffectiveDate: a.EffectiveDate})
	case domain.MergerParams:
		return p.ProcessMerger(ctx, Merger{ActionID: a.ID, OldSymbol: a.Symbol, NewSymbol: params.TargetSymbol, Ratio: params.Ratio, EffectiveDate: a.EffectiveDate})
	case domain.DelistingParams:
		return p.ProcessDelisting(ctx, Delisting{ActionID: a.ID, Symbol: a.Symbol, FinalPrice: params.FinalPrice, EffectiveDate: a.EffectiveDate})
	case domain.DividendParams:
		return p.ProcessDividend(ctx, Dividend{ActionID: a.ID, Symbol: a.Symbol, PerShare: params.PerShare, EffectiveDate: a.EffectiveDate})
	}
	return 0, fmt.Errorf("%w: unsupported action type %q", domain.ErrInvalidInput, a.Type())
}

// ProcessStockSplit credits every holder the extra shares of the split as a
// derived event; the original quantity is left untouched.
func (p *Processor) ProcessStockSplit(ctx context.Context, s Split) (int, error) {
	if err := (domain.SplitParams{From: s.From, To: s.To}).Validate(); err != nil {
		return 0, err
	}
	reason := fmt.Sprintf("SPLIT %s:%s", s.From, s.To)
	return p.grantExtra(ctx, s.ActionID, s.Symbol, s.EffectiveDate, reason, func(qty decimal.Decimal) decimal.Decimal {
		return qty.Mul(s.To).Div(s.From).Sub(qty)
	})
}

// ProcessBonus credits To bonus shares for every From held.
func (p *Processor) ProcessBonus(ctx context.Context, b Bonus) (int, error) {
	if err := (domain.BonusParams{From: b.From, To: b.To}).Validate(); err != nil {
		return 0, err
	}
	reason := fmt.Sprintf("BONUS %s:%s", b.To, b.From)
	return p.grantExtra(ctx, b.ActionID, b.Symbol, b.EffectiveDate, reason, func(qty decimal.Decimal) decimal.Decimal {
		return qty.Mul(b.To).Div(b.From)
	})
}

func (p *Processor) grantExtra(ctx context.Context, actionID uuid.UUID, symbol string, effective time.Time,
	reason string, delta func(decimal.Decimal) decimal.Decimal) (int, error) {
	return p.forEachHeld(ctx, actionID, symbol, effective, func(tx *sqlx.Tx, ev domain.RewardEvent) error {
		if err := p.adjust(ctx, tx, ev, actionID, reason); err != nil {
			return err
		}
		extra := domain.RoundQuantity(delta(ev.Quantity))
		derived, err := p.derive(ctx, tx, ev, actionID, ev.Symbol, extra, effective, reason)
		if err != nil {
			return err
		}
		return p.post(ctx, tx, derived.ID, &derived.ID, derived.Adjustment, effective,
			ledger.Line(derived.ID, ev.UserID, domain.AccountUserPortfolio, domain.Credit, ledger.Stock(ev.Symbol, extra)),
		)
	})
}

// ProcessMerger moves every holding of OldSymbol to NewSymbol at Ratio new
// shares per old share.
func (p *Processor) ProcessMerger(ctx context.Context, m Merger) (int, error) {
	params := domain.MergerParams{TargetSymbol: m.NewSymbol, Ratio: m.Ratio}
	if err := params.Validate(); err != nil {
		return 0, err
	}
	oldSym, newSym := domain.NormalizeSymbol(m.OldSymbol), domain.NormalizeSymbol(m.NewSymbol)
	if oldSym == newSym {
		return 0, fmt.Errorf("%w: merger target must differ from the source symbol", domain.ErrInvalidInput)
	}
	reason := fmt.Sprintf("MERGER %s->%s x%s", oldSym, newSym, m.Ratio)
	return p.forEachHeld(ctx, m.ActionID, oldSym, m.EffectiveDate, func(tx *sqlx.Tx, ev domain.RewardEvent) error {
		if err := p.supersede(ctx, tx, ev, m.ActionID, reason); err != nil {
			return err
		}
		qty := domain.RoundQuantity(ev.Quantity.Mul(m.Ratio))
		derived, err := p.derive(ctx, tx, ev, m.ActionID, newSym, qty, m.EffectiveDate, reason)
		if err != nil {
			return err
		}
		return p.post(ctx, tx, derived.ID, &derived.ID, derived.Adjustment, m.EffectiveDate,
			ledger.Line(derived.ID, ev.UserID, domain.AccountUserPortfolio, domain.Debit, ledger.Stock(ev.Symbol, ev.Quantity)),
			ledger.Line(derived.ID, ev.UserID, domain.AccountUserPortfolio, domain.Credit, ledger.Stock(newSym, qty)),
		)
	})
}

// ProcessDelisting converts every holding of Symbol to cash at FinalPrice.
func (p *Processor) ProcessDelisting(ctx context.Context, d Delisting) (int, error) {
	if err := (domain.DelistingParams{FinalPrice: d.FinalPrice}).Validate(); err != nil {
		return 0, err
	}
	reason := fmt.Sprintf("DELISTING @%s", d.FinalPrice)
	return p.forEachHeld(ctx, d.ActionID, d.Symbol, d.EffectiveDate, func(tx *sqlx.Tx, ev domain.RewardEvent) error {
		if err := p.supersede(ctx, tx, ev, d.ActionID, reason); err != nil {
			return err
		}
		txID := domain.AdjustmentID(domain.AdjustmentKey(d.ActionID, ev.ID))
		adj := domain.Adjusted(reason, &ev.ID, ev.Quantity, d.ActionID)
		payout := domain.RoundAmount(ev.Quantity.Mul(d.FinalPrice))

		lines := []domain.LedgerLine{
			ledger.Line(txID, ev.UserID, domain.AccountUserPortfolio, domain.Debit, ledger.Stock(ev.Symbol, ev.Quantity)),
		}
		if payout.IsPositive() {
			lines = append(lines,
				ledger.Line(txID, ev.UserID, domain.AccountUserCash, domain.Debit, ledger.Cash(payout)),
				ledger.Line(txID, ev.UserID, domain.AccountCompanyCash, domain.Credit, ledger.Cash(payout)),
			)
		}
		return p.post(ctx, tx, txID, &ev.ID, adj, d.EffectiveDate, lines...)
	})
}

// ProcessDividend pays PerShare in cash for every share held before the
// effective date. Holdings and event statuses do not change; a repeated run
// is stopped by the ledger's (tx_id, line_no) uniqueness.
func (p *Processor) ProcessDividend(ctx context.Context, d Dividend) (int, error) {
	if err := (domain.DividendParams{PerShare: d.PerShare}).Validate(); err != nil {
		return 0, err
	}
	return p.forEachHeld(ctx, d.ActionID, d.Symbol, d.EffectiveDate, func(tx *sqlx.Tx, ev domain.RewardEvent) error {
		txID := domain.AdjustmentID(domain.AdjustmentKey(d.ActionID, ev.ID))
		amount := domain.RoundAmount(ev.Quantity.Mul(d.PerShare))
		if !amount.IsPositive() {
			return errApplied
		}
		act := d.ActionID
		adj := domain.Active()
		adj.ActionID = &act
		err := p.post(ctx, tx, txID, &ev.ID, adj, d.EffectiveDate,
			ledger.Line(txID, ev.UserID, domain.AccountUserCash, domain.Debit, ledger.Cash(amount)),
			ledger.Line(txID, ev.UserID, domain.AccountCompanyCash, domain.Credit, ledger.Cash(amount)),
		)
		if db.IsUniqueViolation(err) {
			return errApplied
		}
		return err
	})
}

// forEachHeld runs fn for every held event of symbol granted before
// effective, one database transaction per event. Events fn reports as
// already applied are not counted.
func (p *Processor) forEachHeld(ctx context.Context, actionID uuid.UUID, symbol string, effective time.Time,
	fn func(tx *sqlx.Tx, ev domain.RewardEvent) error) (int, error) {
	if actionID == uuid.Nil {
		return 0, fmt.Errorf("%w: action id is required", domain.ErrInvalidInput)
	}
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return 0, fmt.Errorf("%w: symbol is required", domain.ErrInvalidInput)
	}
	if effective.IsZero() {
		return 0, fmt.Errorf("%w: effective date is required", domain.ErrInvalidInput)
	}

	events, err := p.rewards.ListHeldBefore(ctx, symbol, effective)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, ev := range events {
		err := db.WithTx(ctx, p.conn, func(tx *sqlx.Tx) error {
			return fn(tx, ev)
		})
		switch {
		case err == nil:
			n++
		case errors.Is(err, errApplied):
		default:
			if errors.Is(err, domain.ErrLedgerImbalance) {
				p.metrics.Imbalance()
			}
			return n, fmt.Errorf("reward %s: %w", ev.ID, err)
		}
	}
	return n, nil
}

// adjust flips an ACTIVE ev and its portfolio lines to ADJUSTED by the
// action. An event adjusted by an earlier action keeps that adjustment; the
// derived key stops a repeated run.
func (p *Processor) adjust(ctx context.Context, tx *sqlx.Tx, ev domain.RewardEvent, actionID uuid.UUID, reason string) error {
	ok, err := p.rewards.MarkAdjusted(ctx, tx, ev.ID, domain.Adjusted(reason, nil, ev.Quantity, actionID))
	if err != nil || !ok {
		return err
	}
	return p.lines.MarkPortfolioAdjusted(ctx, tx, ev.ID, actionID)
}

// supersede records that the action consumed ev's shares. It returns
// errApplied when ev was already superseded.
func (p *Processor) supersede(ctx context.Context, tx *sqlx.Tx, ev domain.RewardEvent, actionID uuid.UUID, reason string) error {
	ok, err := p.rewards.MarkSuperseded(ctx, tx, ev.ID, actionID, domain.Adjusted(reason, nil, ev.Quantity, actionID))
	if err != nil {
		return err
	}
	if !ok {
		return errApplied
	}
	return p.lines.MarkPortfolioAdjusted(ctx, tx, ev.ID, actionID)
}

// derive inserts the ADJUSTED event produced by applying the action to ev.
func (p *Processor) derive(ctx context.Context, tx *sqlx.Tx, ev domain.RewardEvent, actionID uuid.UUID,
	symbol string, qty decimal.Decimal, effective time.Time, reason string) (domain.RewardEvent, error) {
	key := domain.AdjustmentKey(actionID, ev.ID)
	parent := ev.ID
	derived := domain.RewardEvent{
		ID:             domain.AdjustmentID(key),
		UserID:         ev.UserID,
		Symbol:         symbol,
		Quantity:       qty,
		RewardedAt:     effective.UTC(),
		Notes:          reason,
		IdempotencyKey: key,
		Adjustment:     domain.Adjusted(reason, &parent, ev.Quantity, actionID),
		CreatedAt:      p.now(),
	}
	if err := p.rewards.Insert(ctx, tx, derived); err != nil {
		if db.IsUniqueViolation(err) {
			return domain.RewardEvent{}, errApplied
		}
		return domain.RewardEvent{}, err
	}
	return derived, nil
}

func (p *Processor) post(ctx context.Context, tx *sqlx.Tx, txID uuid.UUID, rewardID *uuid.UUID,
	adj domain.Adjustment, effective time.Time, lines ...domain.LedgerLine) error {
	for i := range lines {
		lines[i].RewardID = rewardID
		lines[i].Adjustment = adj
		lines[i].EffectiveAt = effective.UTC()
	}
	return p.poster.Post(ctx, tx, lines)
}
