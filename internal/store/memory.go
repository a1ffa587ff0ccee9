package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"PriceSentinel/internal/model"
)

// MemoryStore keeps positions in process memory. It backs tests and the
// dry-run mode used when no database is configured.
type MemoryStore struct {
	mu        sync.RWMutex
	positions map[string]model.Position
	order     []string
	changes   []model.StatusChange
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		positions: make(map[string]model.Position),
		now:       time.Now,
	}
}

func (m *MemoryStore) FindAll(_ context.Context) ([]model.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Position, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, clonePosition(m.positions[id]))
	}
	return out, nil
}

func (m *MemoryStore) Find(_ context.Context, id string) (*model.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := clonePosition(p)
	return &c, nil
}

func (m *MemoryStore) UpdatePrice(_ context.Context, id string, u model.PriceUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[id]
	if !ok {
		return ErrNotFound
	}
	u.Apply(&p)
	p.UpdatedAt = m.now()
	m.positions[id] = p
	return nil
}

func (m *MemoryStore) FindExitedBefore(_ context.Context, status model.Status, before time.Time) ([]model.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Position
	for _, id := range m.order {
		p := m.positions[id]
		if p.Status == status && p.ExitedAt != nil && !p.ExitedAt.After(before) {
			out = append(out, clonePosition(p))
		}
	}
	return out, nil
}

func (m *MemoryStore) MarkExited(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[id]
	if !ok {
		return false, ErrNotFound
	}
	if p.Status != model.StatusExit {
		return false, nil
	}
	p.Status = model.StatusExited
	p.UpdatedAt = at
	m.positions[id] = p
	return true, nil
}

func (m *MemoryStore) RecordStatusChange(_ context.Context, c model.StatusChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes = append(m.changes, c)
	return nil
}

func (m *MemoryStore) StatusChanges(_ context.Context, positionID string) ([]model.StatusChange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.StatusChange
	for _, c := range m.changes {
		if c.PositionID == positionID {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

func (m *MemoryStore) Create(_ context.Context, p *model.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prepareNew(p, m.now())
	if _, dup := m.positions[p.ID]; !dup {
		m.order = append(m.order, p.ID)
	}
	m.positions[p.ID] = clonePosition(*p)
	return nil
}

func (m *MemoryStore) Exists(_ context.Context, symbol, company string, at time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	start, end := dayBounds(at)
	for _, p := range m.positions {
		if !strings.EqualFold(p.Symbol, symbol) || p.CompanyName != company {
			continue
		}
		if !p.RecommendedAt.Before(start) && p.RecommendedAt.Before(end) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) Close() error { return nil }

func clonePosition(p model.Position) model.Position {
	if p.AverageEntry != nil {
		p.AverageEntry = model.Float(*p.AverageEntry)
	}
	if p.CurrentPrice != nil {
		p.CurrentPrice = model.Float(*p.CurrentPrice)
	}
	if p.RealisedPct != nil {
		p.RealisedPct = model.Float(*p.RealisedPct)
	}
	if p.LastPriceUpdate != nil {
		p.LastPriceUpdate = model.Time(*p.LastPriceUpdate)
	}
	if p.ExitedAt != nil {
		p.ExitedAt = model.Time(*p.ExitedAt)
	}
	return p
}
