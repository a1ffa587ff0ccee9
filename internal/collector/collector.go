package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"PriceSentinel/internal/model"
)

// MockFetcher returns controllable fixed quotes for development and testing.
type MockFetcher struct {
	mu     sync.Mutex
	Prices map[string]float64
	Errors map[string]error
	calls  []string
}

// NewMockFetcher creates a MockFetcher serving the given prices.
func NewMockFetcher(prices map[string]float64) *MockFetcher {
	if prices == nil {
		prices = make(map[string]float64)
	}
	return &MockFetcher{Prices: prices, Errors: make(map[string]error)}
}

func (m *MockFetcher) Name() string { return "mock" }

// SetPrice changes the price served for symbol.
func (m *MockFetcher) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Prices[NormalizeSymbol(symbol)] = price
	delete(m.Errors, NormalizeSymbol(symbol))
}

// SetError makes every fetch of symbol fail with err.
func (m *MockFetcher) SetError(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[NormalizeSymbol(symbol)] = err
}

// Calls returns the normalized symbols fetched so far, in order.
func (m *MockFetcher) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *MockFetcher) FetchQuote(ctx context.Context, symbol string) (*model.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sym := NormalizeSymbol(symbol)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, sym)

	if err, ok := m.Errors[sym]; ok {
		return nil, err
	}
	price, ok := m.Prices[sym]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrQuoteUnavailable, sym)
	}
	return &model.Quote{Symbol: sym, Price: model.Float(price), FetchedAt: time.Now()}, nil
}
