package reward

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/saiMhatre/stocky/internal/domain"
)

// Holding is a valued position of one symbol.
type Holding struct {
	Symbol   string          `json:"stock"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price_inr"`
	Value    decimal.Decimal `json:"value_inr"`
	Stale    bool            `json:"price_unavailable,omitempty"`
}

type Portfolio struct {
	UserID   string          `json:"user_id"`
	Holdings []Holding       `json:"holdings"`
	Total    decimal.Decimal `json:"total_value_inr"`
}

// DayValue is the INR value of a user's holdings at the end of a day.
type DayValue struct {
	Day   string          `json:"day"`
	Value decimal.Decimal `json:"inr_value"`
}

// TodayRewards lists the rewards a user received on the UTC day of now.
func (s *Service) TodayRewards(ctx context.Context, userID string, now time.Time) ([]domain.RewardEvent, error) {
	start := now.UTC().Truncate(24 * time.Hour)
	return s.rewards.ListByUserBetween(ctx, userID, start, start.Add(24*time.Hour))
}

// Portfolio values the user's net holdings at the latest prices. A symbol
// without a price is listed with a zero value.
func (s *Service) Portfolio(ctx context.Context, userID string) (Portfolio, error) {
	held, err := s.poster.Holdings(ctx, userID)
	if err != nil {
		return Portfolio{}, err
	}
	out := Portfolio{UserID: userID, Holdings: []Holding{}, Total: decimal.Zero}
	for _, sym := range sortedSymbols(held) {
		h := Holding{Symbol: sym, Quantity: held[sym], Price: decimal.Zero, Value: decimal.Zero}
		q, err := s.prices.GetLatestPrice(ctx, sym)
		if err != nil {
			s.log.WithField("symbol", sym).WithError(err).Warn("value holding")
			h.Stale = true
		} else {
			h.Price = q.Price
			h.Value = domain.RoundAmount(q.Price.Mul(h.Quantity))
		}
		out.Total = out.Total.Add(h.Value)
		out.Holdings = append(out.Holdings, h)
	}
	return out, nil
}

// HistoricalValue values the user's holdings at the end of each of the last
// days days before now, newest first.
func (s *Service) HistoricalValue(ctx context.Context, userID string, days int, now time.Time) ([]DayValue, error) {
	lines, err := s.lines.ListPortfolio(ctx, userID)
	if err != nil {
		return nil, err
	}
	today := now.UTC().Truncate(24 * time.Hour)
	out := make([]DayValue, 0, days)
	for d := 1; d <= days; d++ {
		end := today.AddDate(0, 0, -d+1)
		held := map[string]decimal.Decimal{}
		for _, l := range lines {
			st, ok := l.Stock()
			if !ok || !l.EffectiveAt.Before(end) {
				continue
			}
			held[st.Symbol] = held[st.Symbol].Sub(l.Signed(st.Quantity))
		}
		total := decimal.Zero
		for _, sym := range sortedSymbols(held) {
			if held[sym].IsZero() {
				continue
			}
			q, err := s.prices.GetPriceForDate(ctx, sym, end)
			if err != nil {
				continue
			}
			total = total.Add(q.Price.Mul(held[sym]))
		}
		out = append(out, DayValue{
			Day:   end.AddDate(0, 0, -1).Format("2006-01-02"),
			Value: domain.RoundAmount(total),
		})
	}
	return out, nil
}

func sortedSymbols(m map[string]decimal.Decimal) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
