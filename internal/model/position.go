package model

import "time"

// Status is the lifecycle state of a tracked recommendation.
type Status string

const (
	StatusEntry  Status = "entry"
	StatusHold   Status = "hold"
	StatusExit   Status = "exit"
	StatusExited Status = "exited"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusEntry, StatusHold, StatusExit, StatusExited:
		return true
	}
	return false
}

// Active reports whether the position is still live (entry or hold).
func (s Status) Active() bool {
	return s == StatusEntry || s == StatusHold
}

// Closed reports whether the position has exited, recently or in the past.
func (s Status) Closed() bool {
	return s == StatusExit || s == StatusExited
}

// Position is a tracked stock recommendation.
type Position struct {
	ID              string
	Symbol          string
	CompanyName     string
	EntryZone       string
	AverageEntry    *float64 // explicit override of the entry-zone midpoint
	Target          string
	StopLoss        string
	Status          Status
	CurrentPrice    *float64
	LastPriceUpdate *time.Time
	RealisedPct     *float64 // frozen on exit, always 2 decimals
	ExitedAt        *time.Time
	RecommendedAt   time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PriceUpdate is the set of fields written by a refresh. All of them are
// applied in one write; a nil pointer clears the column.
type PriceUpdate struct {
	CurrentPrice    float64
	LastPriceUpdate time.Time
	Status          Status
	RealisedPct     *float64
	ExitedAt        *time.Time
}

// Apply copies the update onto p.
func (u PriceUpdate) Apply(p *Position) {
	price := u.CurrentPrice
	at := u.LastPriceUpdate
	p.CurrentPrice = &price
	p.LastPriceUpdate = &at
	p.Status = u.Status
	p.RealisedPct = u.RealisedPct
	p.ExitedAt = u.ExitedAt
}

// StatusChange records a lifecycle transition.
type StatusChange struct {
	PositionID  string
	Symbol      string
	From        Status
	To          Status
	Price       float64
	RealisedPct *float64
	Reason      string
	At          time.Time
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Time returns a pointer to t.
func Time(t time.Time) *time.Time { return &t }
