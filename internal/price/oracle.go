package price

//go:generate mockgen -source=oracle.go -destination=mock_store_test.go -package=price

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/saiMhatre/stocky/internal/domain"
	"github.com/saiMhatre/stocky/internal/id"
	"github.com/saiMhatre/stocky/internal/metrics"
)

const DefaultTTL = 5 * time.Minute

const (
	// drift applied to the latest stored quote on a refresh
	historySpread = 0.02
	// drift applied to the base table when a symbol has no history
	baseSpread = 0.05
)

var (
	minPrice     = decimal.NewFromInt(1)
	defaultPrice = decimal.NewFromInt(1000)
)

var basePrices = map[string]decimal.Decimal{
	"RELIANCE": decimal.NewFromInt(2600),
	"TCS":      decimal.NewFromInt(3300),
	"INFY":     decimal.NewFromInt(1500),
	"HDFC":     decimal.NewFromInt(2500),
	"ADANI":    decimal.NewFromInt(2000),
	"AXIS":     decimal.NewFromInt(700),
	"KOTAK":    decimal.NewFromInt(1800),
	"MAHINDRA": decimal.NewFromInt(900),
	"CISCO":    decimal.NewFromInt(4500),
	"WIPRO":    decimal.NewFromInt(400),
	"LT":       decimal.NewFromInt(1800),
	"BAJAJ":    decimal.NewFromInt(3500),
	"BHARTI":   decimal.NewFromInt(700),
	"VEDANTA":  decimal.NewFromInt(300),
}

// BasePrice is the starting price of a symbol with no quote history.
func BasePrice(symbol string) decimal.Decimal {
	if p, ok := basePrices[symbol]; ok {
		return p
	}
	return defaultPrice
}

// QuoteStore persists the quote history.
type QuoteStore interface {
	Insert(ctx context.Context, q domain.PriceQuote) error
	Latest(ctx context.Context, symbol string) (domain.PriceQuote, error)
	LatestAsOf(ctx context.Context, symbol string, asOf time.Time) (domain.PriceQuote, error)
	Range(ctx context.Context, symbol string, from, to time.Time) ([]domain.PriceQuote, error)
}

// Oracle hands out simulated INR prices. Fresh quotes come from the cache;
// on a miss the last stored quote drifts a little and the result is stored
// and cached.
type Oracle struct {
	store   QuoteStore
	cache   Cache
	ttl     time.Duration
	strict  bool
	now     func() time.Time
	rand    func() float64
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

type Option func(*Oracle)

func WithTTL(ttl time.Duration) Option {
	return func(o *Oracle) { o.ttl = ttl }
}

// WithStrictHistory makes GetPriceForDate fail instead of falling back to the
// latest price.
func WithStrictHistory(strict bool) Option {
	return func(o *Oracle) { o.strict = strict }
}

func WithClock(now func() time.Time) Option {
	return func(o *Oracle) { o.now = now }
}

// WithRand sets the source of uniform values in [0, 1).
func WithRand(f func() float64) Option {
	return func(o *Oracle) { o.rand = f }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(o *Oracle) { o.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Oracle) { o.metrics = m }
}

func NewOracle(store QuoteStore, cache Cache, opts ...Option) *Oracle {
	o := &Oracle{
		store: store,
		cache: cache,
		ttl:   DefaultTTL,
		now:   func() time.Time { return time.Now().UTC() },
		rand:  rand.Float64,
		log:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// GetLatestPrice returns the current quote of symbol. When a new quote cannot
// be produced the last cached one is returned even if it is stale.
func (o *Oracle) GetLatestPrice(ctx context.Context, symbol string) (domain.PriceQuote, error) {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return domain.PriceQuote{}, fmt.Errorf("%w: symbol is required", domain.ErrInvalidInput)
	}

	now := o.now()
	cached, ok := o.cache.Get(symbol)
	if ok && cached.Age(now) < o.ttl {
		o.metrics.PriceLookup(metrics.PriceHit)
		return cached, nil
	}

	q, err := o.refresh(ctx, symbol, now)
	if err != nil {
		if ok {
			o.log.WithFields(logrus.Fields{
				"symbol": symbol,
				"age":    cached.Age(now).String(),
			}).WithError(err).Warn("serving stale price")
			o.metrics.PriceLookup(metrics.PriceStale)
			return cached, nil
		}
		o.metrics.PriceLookup(metrics.PriceUnavailable)
		return domain.PriceQuote{}, fmt.Errorf("%w: %s: %v", domain.ErrPriceUnavailable, symbol, err)
	}
	o.metrics.PriceLookup(metrics.PriceMiss)
	return q, nil
}

// Refresh produces, stores and caches a new quote regardless of the cache.
func (o *Oracle) Refresh(ctx context.Context, symbol string) (domain.PriceQuote, error) {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return domain.PriceQuote{}, fmt.Errorf("%w: symbol is required", domain.ErrInvalidInput)
	}
	return o.refresh(ctx, symbol, o.now())
}

func (o *Oracle) refresh(ctx context.Context, symbol string, now time.Time) (domain.PriceQuote, error) {
	base, spread := BasePrice(symbol), baseSpread
	last, err := o.store.Latest(ctx, symbol)
	switch {
	case err == nil:
		base, spread = last.Price, historySpread
	case !errors.Is(err, domain.ErrNotFound):
		return domain.PriceQuote{}, err
	}

	factor := decimal.NewFromFloat(1 + (o.rand()*2-1)*spread)
	p := domain.RoundAmount(base.Mul(factor))
	if p.LessThan(minPrice) {
		p = minPrice
	}

	q := domain.PriceQuote{
		ID:         id.NewAt(now),
		Symbol:     symbol,
		Price:      p,
		ObservedAt: now,
	}
	if err := o.store.Insert(ctx, q); err != nil {
		return domain.PriceQuote{}, err
	}
	if err := o.cache.Set(q); err != nil {
		o.log.WithField("symbol", symbol).WithError(err).Warn("cache price")
	}
	return q, nil
}

// GetPriceForDate returns the newest quote observed at or before asOf.
func (o *Oracle) GetPriceForDate(ctx context.Context, symbol string, asOf time.Time) (domain.PriceQuote, error) {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return domain.PriceQuote{}, fmt.Errorf("%w: symbol is required", domain.ErrInvalidInput)
	}

	q, err := o.store.LatestAsOf(ctx, symbol, asOf)
	if err == nil {
		return q, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.PriceQuote{}, fmt.Errorf("%w: %s: %v", domain.ErrPriceUnavailable, symbol, err)
	}
	if o.strict {
		return domain.PriceQuote{}, fmt.Errorf("%w: %s at %s", domain.ErrNoHistoricalPrice, symbol, asOf.Format(time.RFC3339))
	}
	o.log.WithFields(logrus.Fields{
		"symbol": symbol,
		"as_of":  asOf.Format(time.RFC3339),
	}).Warn("no historical price, using latest")
	return o.GetLatestPrice(ctx, symbol)
}

// GetHistoricalPrices returns the stored quotes in [from, to], oldest first.
func (o *Oracle) GetHistoricalPrices(ctx context.Context, symbol string, from, to time.Time) ([]domain.PriceQuote, error) {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", domain.ErrInvalidInput)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: history range ends before it starts", domain.ErrInvalidInput)
	}
	return o.store.Range(ctx, symbol, from, to)
}

// ClearCache empties the quote cache.
func (o *Oracle) ClearCache() error {
	return o.cache.Clear()
}
