package collector

import (
	"context"
	"sync"
	"time"

	"PriceSentinel/internal/model"
)

// DefaultQuoteTTL is how long a quote is served from cache.
const DefaultQuoteTTL = 15 * time.Second

// QuoteCache holds recent quotes keyed by normalized symbol. Entries are
// advisory: losing one only costs an extra upstream call.
type QuoteCache interface {
	Get(ctx context.Context, symbol string) (*model.Quote, bool)
	Set(ctx context.Context, symbol string, q *model.Quote)
}

type cachedQuote struct {
	quote    model.Quote
	storedAt time.Time
}

// MemoryQuoteCache is an in-process QuoteCache with a fixed TTL.
type MemoryQuoteCache struct {
	mu      sync.RWMutex
	entries map[string]cachedQuote
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryQuoteCache creates a cache. A non-positive ttl uses DefaultQuoteTTL.
func NewMemoryQuoteCache(ttl time.Duration) *MemoryQuoteCache {
	if ttl <= 0 {
		ttl = DefaultQuoteTTL
	}
	return &MemoryQuoteCache{
		entries: make(map[string]cachedQuote),
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (c *MemoryQuoteCache) WithClock(now func() time.Time) *MemoryQuoteCache {
	c.now = now
	return c
}

func (c *MemoryQuoteCache) Get(_ context.Context, symbol string) (*model.Quote, bool) {
	c.mu.RLock()
	e, ok := c.entries[symbol]
	c.mu.RUnlock()
	if !ok || c.now().Sub(e.storedAt) >= c.ttl {
		return nil, false
	}
	q := e.quote
	return &q, true
}

func (c *MemoryQuoteCache) Set(_ context.Context, symbol string, q *model.Quote) {
	if q == nil {
		return
	}
	c.mu.Lock()
	c.entries[symbol] = cachedQuote{quote: *q, storedAt: c.now()}
	c.mu.Unlock()
}

// CachingFetcher serves quotes from a QuoteCache and refreshes the entry
// after every successful upstream fetch.
type CachingFetcher struct {
	Next  Fetcher
	Cache QuoteCache
}

// NewCachingFetcher wraps next with cache.
func NewCachingFetcher(next Fetcher, cache QuoteCache) *CachingFetcher {
	return &CachingFetcher{Next: next, Cache: cache}
}

func (c *CachingFetcher) Name() string { return c.Next.Name() }

func (c *CachingFetcher) FetchQuote(ctx context.Context, symbol string) (*model.Quote, error) {
	sym := NormalizeSymbol(symbol)
	if q, ok := c.Cache.Get(ctx, sym); ok {
		return q, nil
	}
	q, err := c.Next.FetchQuote(ctx, sym)
	if err != nil {
		return nil, err
	}
	c.Cache.Set(ctx, sym, q)
	return q, nil
}
