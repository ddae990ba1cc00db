package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/saiMhatre/stocky/internal/domain"
	"github.com/saiMhatre/stocky/internal/id"
	"github.com/saiMhatre/stocky/internal/repository"
)

// Poster turns business events into balanced sets of ledger lines.
type Poster struct {
	fees      FeeSchedule
	repo      *repository.LedgerRepository
	validator *Validator
	now       func() time.Time
}

func NewPoster(fees FeeSchedule, repo *repository.LedgerRepository, validator *Validator) *Poster {
	return &Poster{
		fees:      fees,
		repo:      repo,
		validator: validator,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (p *Poster) Fees() FeeSchedule {
	return p.fees
}

// Line starts a ledger line of transaction txID. Post fills in the id and
// line number, and the timestamps left unset.
func Line(txID uuid.UUID, userID string, account domain.Account, dir domain.Direction, payload domain.Payload) domain.LedgerLine {
	return domain.LedgerLine{
		TransactionID: txID,
		UserID:        userID,
		Account:       account,
		Direction:     dir,
		Payload:       payload,
		Adjustment:    domain.Active(),
	}
}

func Stock(symbol string, quantity decimal.Decimal) domain.StockPayload {
	return domain.StockPayload{Symbol: symbol, Quantity: domain.RoundQuantity(quantity)}
}

func Cash(amount decimal.Decimal) domain.CashPayload {
	return domain.CashPayload{Amount: domain.RoundAmount(amount)}
}

// PostReward writes the transaction of a freshly inserted reward inside q and
// returns its breakdown. The transaction id is the reward id.
func (p *Poster) PostReward(ctx context.Context, q sqlx.ExtContext, event domain.RewardEvent, quote domain.PriceQuote) (Breakdown, error) {
	if !quote.Price.IsPositive() {
		return Breakdown{}, fmt.Errorf("%w: non-positive price %s for %s", domain.ErrPriceUnavailable, quote.Price, quote.Symbol)
	}
	b := p.fees.Compute(event.Quantity, quote.Price)

	txID := event.ID
	lines := []domain.LedgerLine{
		Line(txID, event.UserID, domain.AccountUserPortfolio, domain.Credit, Stock(event.Symbol, event.Quantity)),
		Line(txID, event.UserID, domain.AccountRewardExpense, domain.Debit, Cash(b.INRValue)),
	}
	for _, f := range b.Fees() {
		lines = append(lines, Line(txID, event.UserID, f.Account, domain.Debit, Cash(f.Amount)))
	}
	lines = append(lines, Line(txID, event.UserID, domain.AccountCompanyCash, domain.Credit, Cash(b.TotalCost)))

	for i := range lines {
		rewardID := event.ID
		lines[i].RewardID = &rewardID
		lines[i].EffectiveAt = event.RewardedAt.UTC()
	}

	if err := p.Post(ctx, q, lines); err != nil {
		return Breakdown{}, err
	}
	return b, nil
}

// Post writes one transaction inside q. Unbalanced monetary lines are
// rejected before anything is written, and the persisted transaction is
// checked again before returning.
func (p *Poster) Post(ctx context.Context, q sqlx.ExtContext, lines []domain.LedgerLine) error {
	if len(lines) == 0 {
		return fmt.Errorf("%w: empty transaction", domain.ErrInvalidInput)
	}
	txID := lines[0].TransactionID
	for _, l := range lines {
		if l.TransactionID != txID {
			return fmt.Errorf("%w: lines span transactions %s and %s", domain.ErrInvalidInput, txID, l.TransactionID)
		}
		if !l.Account.Valid() {
			return fmt.Errorf("%w: unknown account %q", domain.ErrInvalidInput, l.Account)
		}
	}
	if sum := MonetarySum(lines); !sum.Abs().LessThan(Tolerance) {
		return fmt.Errorf("%w: transaction %s is off by %s", domain.ErrLedgerImbalance, txID, sum.String())
	}

	now := p.now()
	for i := range lines {
		lines[i].LineNo = i + 1
		if lines[i].ID == "" {
			lines[i].ID = id.NewAt(now)
		}
		if lines[i].CreatedAt.IsZero() {
			lines[i].CreatedAt = now
		}
		if lines[i].EffectiveAt.IsZero() {
			lines[i].EffectiveAt = lines[i].CreatedAt
		}
	}
	if err := p.repo.InsertLines(ctx, q, lines); err != nil {
		return err
	}
	return p.validator.Check(ctx, q, txID)
}

// Holdings returns a user's net stock per symbol from the portfolio lines.
// Symbols that net to zero are left out.
func (p *Poster) Holdings(ctx context.Context, userID string) (map[string]decimal.Decimal, error) {
	lines, err := p.repo.ListPortfolio(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := map[string]decimal.Decimal{}
	for _, l := range lines {
		s, ok := l.Stock()
		if !ok {
			continue
		}
		// credits add to the holding, debits take away
		out[s.Symbol] = out[s.Symbol].Sub(l.Signed(s.Quantity))
	}
	for sym, q := range out {
		if q.IsZero() {
			delete(out, sym)
		}
	}
	return out, nil
}
