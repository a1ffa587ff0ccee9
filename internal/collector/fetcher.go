package collector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"PriceSentinel/internal/model"
)

// Fetcher defines the interface for fetching a live quote.
type Fetcher interface {
	FetchQuote(ctx context.Context, symbol string) (*model.Quote, error)
	Name() string
}

var (
	// ErrQuoteUnavailable means the upstream answered but carried no usable price.
	ErrQuoteUnavailable = errors.New("quote unavailable")
	// ErrUpstreamAuth means the upstream kept rejecting the session (HTTP 401).
	ErrUpstreamAuth = errors.New("upstream rejected session")
	// ErrSymbolNotFound is returned by symbol search when nothing matches.
	ErrSymbolNotFound = errors.New("symbol not found")
)

// UpstreamError is a non-2xx answer from a quote source.
type UpstreamError struct {
	Source     string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: status %d, body: %s", e.Source, e.StatusCode, e.Body)
}

// Unwrap lets errors.Is(err, ErrUpstreamAuth) match exhausted 401 retries.
func (e *UpstreamError) Unwrap() error {
	if e.StatusCode == 401 {
		return ErrUpstreamAuth
	}
	return nil
}

// NormalizeSymbol upper-cases a ticker and strips the ".NS" exchange suffix.
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	return strings.TrimSuffix(s, ".NS")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func snippet(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
