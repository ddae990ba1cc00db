package price

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Refresher periodically produces a new quote for every symbol of a fixed
// universe so the history keeps moving without reward traffic.
type Refresher struct {
	oracle   *Oracle
	symbols  []string
	interval time.Duration
	log      logrus.FieldLogger
}

func NewRefresher(oracle *Oracle, symbols []string, interval time.Duration, log logrus.FieldLogger) *Refresher {
	return &Refresher{oracle: oracle, symbols: symbols, interval: interval, log: log}
}

// Run refreshes once immediately and then on every tick until ctx is done.
func (r *Refresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.RefreshAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.RefreshAll(ctx)
		}
	}
}

// RefreshAll refreshes every symbol and returns how many succeeded. A failing
// symbol is logged and skipped.
func (r *Refresher) RefreshAll(ctx context.Context) int {
	r.log.Info("refreshing prices (mock)...")
	ok := 0
	for _, s := range r.symbols {
		q, err := r.oracle.Refresh(ctx, s)
		if err != nil {
			r.log.WithField("symbol", s).WithError(err).Error("refresh price")
			continue
		}
		ok++
		r.log.Debugf("price stored %s -> %s", q.Symbol, q.Price.String())
	}
	return ok
}
