package price

import (
	"context"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	json "github.com/goccy/go-json"

	"github.com/saiMhatre/stocky/internal/domain"
)

// Cache keeps the last quote of every symbol. Entries older than the oracle's
// TTL are still returned; the oracle decides whether they are fresh.
type Cache interface {
	Get(symbol string) (domain.PriceQuote, bool)
	Set(q domain.PriceQuote) error
	Clear() error
}

// BigCache is the in-process Cache. Nothing survives a restart.
type BigCache struct {
	c *bigcache.BigCache
}

// NewBigCache keeps quotes for at least retention. Expired entries are only
// dropped when newer writes need their space, so the oracle can still fall
// back to them.
func NewBigCache(retention time.Duration) (*BigCache, error) {
	cfg := bigcache.DefaultConfig(retention)
	cfg.Shards = 16
	cfg.MaxEntriesInWindow = 1024
	cfg.MaxEntrySize = 256
	cfg.CleanWindow = 0
	cfg.Verbose = false

	c, err := bigcache.New(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("init price cache: %w", err)
	}
	return &BigCache{c: c}, nil
}

func (b *BigCache) Get(symbol string) (domain.PriceQuote, bool) {
	raw, err := b.c.Get(symbol)
	if err != nil {
		return domain.PriceQuote{}, false
	}
	var q domain.PriceQuote
	if err := json.Unmarshal(raw, &q); err != nil {
		return domain.PriceQuote{}, false
	}
	return q, true
}

func (b *BigCache) Set(q domain.PriceQuote) error {
	raw, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("encode quote: %w", err)
	}
	return b.c.Set(q.Symbol, raw)
}

func (b *BigCache) Clear() error {
	return b.c.Reset()
}

func (b *BigCache) Close() error {
	return b.c.Close()
}
