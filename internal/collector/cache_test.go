package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"PriceSentinel/internal/model"
)

func TestMemoryQuoteCache_TTL(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	c := NewMemoryQuoteCache(15 * time.Second).WithClock(func() time.Time { return now })
	ctx := context.Background()

	c.Set(ctx, "TCS", &model.Quote{Symbol: "TCS", Price: model.Float(3500)})

	now = now.Add(14 * time.Second)
	q, ok := c.Get(ctx, "TCS")
	if !ok || *q.Price != 3500 {
		t.Fatalf("expected cached quote within TTL, got %v %v", q, ok)
	}

	now = now.Add(time.Second)
	if _, ok := c.Get(ctx, "TCS"); ok {
		t.Error("expected miss once the entry reaches the TTL")
	}
}

func TestMemoryQuoteCache_DefaultTTL(t *testing.T) {
	if c := NewMemoryQuoteCache(0); c.ttl != DefaultQuoteTTL {
		t.Errorf("expected default TTL %v, got %v", DefaultQuoteTTL, c.ttl)
	}
}

func TestCachingFetcher(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	mock := NewMockFetcher(map[string]float64{"INFY": 1500})
	cache := NewMemoryQuoteCache(15 * time.Second).WithClock(func() time.Time { return now })
	f := NewCachingFetcher(mock, cache)
	ctx := context.Background()

	if _, err := f.FetchQuote(ctx, "infy.ns"); err != nil {
		t.Fatal(err)
	}
	mock.SetPrice("INFY", 1510)

	q, err := f.FetchQuote(ctx, "INFY")
	if err != nil {
		t.Fatal(err)
	}
	if *q.Price != 1500 {
		t.Errorf("expected cached price 1500, got %v", *q.Price)
	}
	if n := len(mock.Calls()); n != 1 {
		t.Errorf("expected a single upstream call, got %d", n)
	}

	now = now.Add(20 * time.Second)
	q, err = f.FetchQuote(ctx, "INFY")
	if err != nil {
		t.Fatal(err)
	}
	if *q.Price != 1510 {
		t.Errorf("expected refreshed price 1510, got %v", *q.Price)
	}
	if n := len(mock.Calls()); n != 2 {
		t.Errorf("expected a second upstream call after expiry, got %d", n)
	}
}

func TestCachingFetcher_ErrorNotCached(t *testing.T) {
	mock := NewMockFetcher(nil)
	f := NewCachingFetcher(mock, NewMemoryQuoteCache(time.Minute))
	ctx := context.Background()

	if _, err := f.FetchQuote(ctx, "WIPRO"); !errors.Is(err, ErrQuoteUnavailable) {
		t.Fatalf("expected ErrQuoteUnavailable, got %v", err)
	}
	mock.SetPrice("WIPRO", 450)
	q, err := f.FetchQuote(ctx, "WIPRO")
	if err != nil || *q.Price != 450 {
		t.Errorf("expected fresh fetch after failure, got %v (%v)", q, err)
	}
}

func TestMockFetcher_Errors(t *testing.T) {
	mock := NewMockFetcher(map[string]float64{"SBIN": 800})
	boom := errors.New("boom")
	mock.SetError("sbin", boom)

	if _, err := mock.FetchQuote(context.Background(), "SBIN"); !errors.Is(err, boom) {
		t.Errorf("expected configured error, got %v", err)
	}
	mock.SetPrice("SBIN", 810)
	q, err := mock.FetchQuote(context.Background(), "SBIN")
	if err != nil || *q.Price != 810 {
		t.Errorf("expected price 810 after SetPrice, got %v (%v)", q, err)
	}
}
