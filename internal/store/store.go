package store

import (
	"context"
	"errors"
	"time"

	"PriceSentinel/internal/model"
)

// ErrNotFound is returned when a position id is unknown.
var ErrNotFound = errors.New("position not found")

// Store persists positions and their status history.
type Store interface {
	// FindAll returns every position regardless of status.
	FindAll(ctx context.Context) ([]model.Position, error)
	// Find returns one position or ErrNotFound.
	Find(ctx context.Context, id string) (*model.Position, error)
	// UpdatePrice writes all fields of u in a single atomic update.
	UpdatePrice(ctx context.Context, id string, u model.PriceUpdate) error
	// FindExitedBefore returns positions in status whose exit time is at or
	// before the cutoff.
	FindExitedBefore(ctx context.Context, status model.Status, before time.Time) ([]model.Position, error)
	// MarkExited archives an exit position. It reports false when the
	// position was no longer in exit.
	MarkExited(ctx context.Context, id string, at time.Time) (bool, error)
	RecordStatusChange(ctx context.Context, c model.StatusChange) error
	StatusChanges(ctx context.Context, positionID string) ([]model.StatusChange, error)
	// Create inserts p, assigning an id when it has none.
	Create(ctx context.Context, p *model.Position) error
	// Exists reports whether a recommendation for symbol and company was
	// already made on the calendar day of at.
	Exists(ctx context.Context, symbol, company string, at time.Time) (bool, error)
	Close() error
}

// dayBounds returns the start and end of the calendar day holding t, in t's
// location.
func dayBounds(t time.Time) (time.Time, time.Time) {
	y, m, d := t.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}

func prepareNew(p *model.Position, now time.Time) {
	if p.ID == "" {
		p.ID = newID()
	}
	if p.Status == "" {
		p.Status = model.StatusEntry
	}
	if p.RecommendedAt.IsZero() {
		p.RecommendedAt = now
	}
	p.CreatedAt = now
	p.UpdatedAt = now
}
