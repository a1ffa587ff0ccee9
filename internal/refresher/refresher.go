package refresher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"PriceSentinel/internal/calculator"
	"PriceSentinel/internal/collector"
	"PriceSentinel/internal/lifecycle"
	"PriceSentinel/internal/metrics"
	"PriceSentinel/internal/model"
)

const (
	// DefaultDelay paces successive upstream calls within a batch.
	DefaultDelay = 100 * time.Millisecond
	// DefaultPromoteAfter is how long a position stays in exit before it is
	// archived as exited.
	DefaultPromoteAfter = 48 * time.Hour
)

// ErrUnevaluable means the entry zone or stop-loss text holds no price.
var ErrUnevaluable = errors.New("entry zone or stop-loss cannot be parsed")

// Store is the persistence the refresher needs.
type Store interface {
	FindAll(ctx context.Context) ([]model.Position, error)
	Find(ctx context.Context, id string) (*model.Position, error)
	UpdatePrice(ctx context.Context, id string, u model.PriceUpdate) error
	FindExitedBefore(ctx context.Context, status model.Status, before time.Time) ([]model.Position, error)
	MarkExited(ctx context.Context, id string, at time.Time) (bool, error)
	RecordStatusChange(ctx context.Context, c model.StatusChange) error
}

// Alerter is told about every status transition.
type Alerter interface {
	StatusChanged(ctx context.Context, p model.Position, c model.StatusChange) error
}

// Stage names the step of a single-position refresh that failed.
type Stage string

const (
	StageLoad    Stage = "load"
	StageParse   Stage = "parse"
	StageFetch   Stage = "fetch"
	StagePersist Stage = "persist"
)

// StageError wraps a single-position failure with the stage it happened in.
type StageError struct {
	Stage      Stage
	PositionID string
	Err        error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("refresh %s: %s: %v", e.PositionID, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Result summarises a batch refresh.
type Result struct {
	Updated int
	Errors  int
	// Skipped counts positions whose levels could not be parsed.
	Skipped int
}

// PromoteResult summarises a promotion sweep.
type PromoteResult struct {
	Moved int
}

// Options tunes a Refresher. Zero values select the defaults.
type Options struct {
	Delay        time.Duration
	PromoteAfter time.Duration
	Alerter      Alerter
	Metrics      *metrics.Metrics
}

// Refresher fetches live prices for tracked positions and reconciles their
// lifecycle status.
type Refresher struct {
	store        Store
	fetcher      collector.Fetcher
	alerter      Alerter
	metrics      *metrics.Metrics
	log          zerolog.Logger
	delay        time.Duration
	promoteAfter time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(store Store, fetcher collector.Fetcher, log zerolog.Logger, opts Options) *Refresher {
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.PromoteAfter <= 0 {
		opts.PromoteAfter = DefaultPromoteAfter
	}
	return &Refresher{
		store:        store,
		fetcher:      fetcher,
		alerter:      opts.Alerter,
		metrics:      opts.Metrics,
		log:          log.With().Str("component", "refresher").Logger(),
		delay:        opts.Delay,
		promoteAfter: opts.PromoteAfter,
		now:          time.Now,
		sleep:        sleepContext,
	}
}

// RefreshAll refreshes every position regardless of status. A failing
// position is counted and logged; only a failure to list positions or a
// cancelled context aborts the batch.
func (r *Refresher) RefreshAll(ctx context.Context) (Result, error) {
	var res Result
	positions, err := r.store.FindAll(ctx)
	if err != nil {
		return res, fmt.Errorf("list positions: %w", err)
	}

	start := r.now()
	fetched := false
	for i := range positions {
		p := &positions[i]
		if !evaluable(p) {
			res.Skipped++
			r.log.Warn().Str("id", p.ID).Str("symbol", p.Symbol).
				Str("entry_zone", p.EntryZone).Str("stop_loss", p.StopLoss).
				Msg("skipping position with unparseable levels")
			continue
		}

		if fetched {
			if err := r.sleep(ctx, r.delay); err != nil {
				return res, err
			}
		}
		fetched = true

		if _, err := r.refresh(ctx, p); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Errors++
			r.metrics.PositionError(stageOf(err))
			r.log.Warn().Err(err).Str("id", p.ID).Str("symbol", p.Symbol).Msg("price refresh failed")
			continue
		}
		res.Updated++
	}

	r.log.Info().
		Int("updated", res.Updated).
		Int("errors", res.Errors).
		Int("skipped", res.Skipped).
		Dur("took", r.now().Sub(start)).
		Msg("price refresh completed")
	return res, nil
}

// RefreshOne refreshes a single position without pacing. Every failure is
// returned as a *StageError; unknown ids unwrap to store.ErrNotFound.
func (r *Refresher) RefreshOne(ctx context.Context, id string) (*model.Position, error) {
	p, err := r.store.Find(ctx, id)
	if err != nil {
		return nil, &StageError{Stage: StageLoad, PositionID: id, Err: err}
	}
	if !evaluable(p) {
		return nil, &StageError{Stage: StageParse, PositionID: id, Err: ErrUnevaluable}
	}
	return r.refresh(ctx, p)
}

func (r *Refresher) refresh(ctx context.Context, p *model.Position) (*model.Position, error) {
	q, err := r.fetcher.FetchQuote(ctx, p.Symbol)
	r.metrics.QuoteFetched(r.fetcher.Name(), err)
	if err != nil {
		return nil, &StageError{Stage: StageFetch, PositionID: p.ID, Err: err}
	}
	if q.Price == nil {
		return nil, &StageError{Stage: StageFetch, PositionID: p.ID,
			Err: fmt.Errorf("%w: no price for %s", collector.ErrQuoteUnavailable, p.Symbol)}
	}

	price := *q.Price
	now := r.now()
	prev := p.Status
	res := lifecycle.Reconcile(p, price, now)
	upd := res.Update(price, now)

	if err := r.store.UpdatePrice(ctx, p.ID, upd); err != nil {
		return nil, &StageError{Stage: StagePersist, PositionID: p.ID, Err: err}
	}
	upd.Apply(p)

	if res.Changed(prev) {
		r.statusChanged(ctx, *p, model.StatusChange{
			PositionID:  p.ID,
			Symbol:      p.Symbol,
			From:        prev,
			To:          res.Status,
			Price:       price,
			RealisedPct: res.RealisedPct,
			Reason:      string(res.Reason),
			At:          now,
		})
	}
	return p, nil
}

// statusChanged logs, records and alerts a transition. History and alert
// failures are logged and never fail the refresh.
func (r *Refresher) statusChanged(ctx context.Context, p model.Position, c model.StatusChange) {
	ev := r.log.Info().
		Str("id", c.PositionID).
		Str("symbol", c.Symbol).
		Str("from", string(c.From)).
		Str("to", string(c.To)).
		Float64("price", c.Price).
		Str("reason", c.Reason)
	if c.RealisedPct != nil {
		ev = ev.Float64("realised_pct", *c.RealisedPct)
	}
	ev.Msg("status changed")

	r.metrics.Transition(string(c.From), string(c.To))
	if err := r.store.RecordStatusChange(ctx, c); err != nil {
		r.log.Warn().Err(err).Str("id", c.PositionID).Msg("record status change failed")
	}
	if r.alerter != nil {
		if err := r.alerter.StatusChanged(ctx, p, c); err != nil {
			r.log.Warn().Err(err).Str("id", c.PositionID).Msg("status alert failed")
		}
	}
}

// PromoteExpiredExits archives every exit position whose exit is at least
// PromoteAfter old. Realised return and exit time stay frozen. Running it
// again with nothing new due is a no-op.
func (r *Refresher) PromoteExpiredExits(ctx context.Context) (PromoteResult, error) {
	var res PromoteResult
	now := r.now()
	due, err := r.store.FindExitedBefore(ctx, model.StatusExit, now.Add(-r.promoteAfter))
	if err != nil {
		return res, fmt.Errorf("list expired exits: %w", err)
	}

	var errs []error
	for _, p := range due {
		moved, err := r.store.MarkExited(ctx, p.ID, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("promote %s: %w", p.ID, err))
			continue
		}
		if !moved {
			continue
		}
		res.Moved++
		r.log.Info().Str("id", p.ID).Str("symbol", p.Symbol).Msg("moved to past performance")

		c := model.StatusChange{
			PositionID:  p.ID,
			Symbol:      p.Symbol,
			From:        model.StatusExit,
			To:          model.StatusExited,
			RealisedPct: p.RealisedPct,
			Reason:      "promoted",
			At:          now,
		}
		if p.CurrentPrice != nil {
			c.Price = *p.CurrentPrice
		}
		r.metrics.Transition(string(c.From), string(c.To))
		if err := r.store.RecordStatusChange(ctx, c); err != nil {
			r.log.Warn().Err(err).Str("id", p.ID).Msg("record status change failed")
		}
	}

	r.metrics.Promoted(res.Moved)
	if res.Moved > 0 {
		r.log.Info().Int("moved", res.Moved).Msg("promoted exits to exited")
	}
	return res, errors.Join(errs...)
}

func evaluable(p *model.Position) bool {
	if _, ok := calculator.ParseRange(p.EntryZone); !ok {
		return false
	}
	_, ok := calculator.ParsePrice(p.StopLoss)
	return ok
}

func stageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return string(se.Stage)
	}
	return "unknown"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
