package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"PriceSentinel/internal/markethours"
	"PriceSentinel/internal/metrics"
	"PriceSentinel/internal/refresher"
)

const (
	DefaultMarketInterval = 5 * time.Minute
	DefaultOffInterval    = 30 * time.Minute
)

var (
	// ErrCycleInFlight is returned by RunNow while another cycle runs.
	ErrCycleInFlight = errors.New("refresh cycle already in flight")
	// ErrNotRunning is returned when stopping a scheduler that never
	// started, or triggering one that was stopped.
	ErrNotRunning = errors.New("scheduler not running")
)

// Refresher is the work a cycle performs.
type Refresher interface {
	RefreshAll(ctx context.Context) (refresher.Result, error)
	PromoteExpiredExits(ctx context.Context) (refresher.PromoteResult, error)
}

// DigestFunc sends the daily performance digest.
type DigestFunc func(ctx context.Context) error

// Options configures a Scheduler. Zero intervals select the defaults.
type Options struct {
	MarketInterval time.Duration
	OffInterval    time.Duration
	Disabled       bool
	// DigestCron is a six-field cron spec evaluated in IST. Empty disables
	// the digest.
	DigestCron string
	Digest     DigestFunc
	Metrics    *metrics.Metrics
	Health     *metrics.Health
}

// Scheduler runs refresh cycles back to back, waiting a market-hours aware
// interval after each one. At most one cycle is in flight at any time.
type Scheduler struct {
	Cron      *cron.Cron
	refresher Refresher
	opts      Options
	log       zerolog.Logger

	mu      sync.Mutex
	running bool
	stopped bool
	pending bool
	timer   *time.Timer
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	now    func() time.Time
	isOpen func(time.Time) bool
}

// New creates a Scheduler. Nothing runs until Start.
func New(r Refresher, log zerolog.Logger, opts Options) *Scheduler {
	if opts.MarketInterval <= 0 {
		opts.MarketInterval = DefaultMarketInterval
	}
	if opts.OffInterval <= 0 {
		opts.OffInterval = DefaultOffInterval
	}
	return &Scheduler{
		Cron:      cron.New(cron.WithSeconds(), cron.WithLocation(markethours.IST)),
		refresher: r,
		opts:      opts,
		log:       log.With().Str("component", "scheduler").Logger(),
		now:       time.Now,
		isOpen:    markethours.IsOpen,
	}
}

// Start begins the refresh loop with an immediate first cycle. A second call,
// or a call on a disabled scheduler, is a no-op. The loop lives until Stop
// or until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.log.Warn().Msg("scheduler already running, skipping new start")
		return nil
	}
	if s.opts.Disabled {
		s.log.Info().Msg("price refresh scheduler is disabled")
		return nil
	}

	if s.opts.DigestCron != "" && s.opts.Digest != nil {
		if _, err := s.Cron.AddFunc(s.opts.DigestCron, s.digestTask); err != nil {
			return fmt.Errorf("register digest task: %w", err)
		}
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.Cron.Start()
	s.log.Info().
		Dur("market_interval", s.opts.MarketInterval).
		Dur("off_interval", s.opts.OffInterval).
		Msg("starting price refresh scheduler")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.tick()
	}()
	return nil
}

// Stop prevents further ticks and waits for an in-flight cycle. When ctx
// expires first the cycle is cancelled and ctx's error returned.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running || s.stopped {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.stopped = true
	s.disarmLocked()
	s.mu.Unlock()

	cronDone := s.Cron.Stop()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		<-cronDone.Done()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		s.log.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}

// Running reports whether Start has launched the loop.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && !s.stopped
}

// Pending reports whether a cycle is in flight.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// RunNow runs one cycle synchronously on the caller's goroutine. It does not
// disturb the timer chain and fails with ErrCycleInFlight when a cycle is
// already running.
func (s *Scheduler) RunNow(ctx context.Context) (refresher.Result, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return refresher.Result{}, ErrNotRunning
	}
	if s.pending {
		s.mu.Unlock()
		return refresher.Result{}, ErrCycleInFlight
	}
	s.pending = true
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	res, err := s.cycle(ctx)

	s.mu.Lock()
	s.pending = false
	s.mu.Unlock()
	return res, err
}

// tick runs one scheduled cycle unless another is in flight, then arms the
// next tick.
func (s *Scheduler) tick() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if s.pending {
		s.opts.Metrics.SkipTick()
		s.log.Debug().Msg("skipping price refresh run: previous run still pending")
		s.scheduleNextLocked()
		s.mu.Unlock()
		return
	}
	s.pending = true
	ctx := s.ctx
	s.mu.Unlock()

	s.cycle(ctx)

	s.mu.Lock()
	s.pending = false
	s.scheduleNextLocked()
	s.mu.Unlock()
}

func (s *Scheduler) scheduleNextLocked() {
	if s.stopped || !s.running {
		return
	}
	if s.ctx.Err() != nil {
		s.log.Info().Msg("scheduler context done, not rescheduling")
		return
	}
	interval := s.nextInterval()
	s.disarmLocked()
	s.wg.Add(1)
	s.timer = time.AfterFunc(interval, func() {
		defer s.wg.Done()
		s.tick()
	})
	s.log.Info().Dur("interval", interval).Msg("next price refresh scheduled")
}

// disarmLocked cancels a pending tick. A timer stopped before firing never
// runs its deferred Done, so it is released here.
func (s *Scheduler) disarmLocked() {
	if s.timer != nil && s.timer.Stop() {
		s.wg.Done()
	}
	s.timer = nil
}

// nextInterval picks the market or off-hours interval for the current time.
func (s *Scheduler) nextInterval() time.Duration {
	open := s.isOpen(s.now())
	s.opts.Metrics.SetMarketOpen(open)
	if open {
		return s.opts.MarketInterval
	}
	return s.opts.OffInterval
}

// cycle refreshes every position and then sweeps expired exits. Errors and
// panics are logged and returned; they never escape as panics.
func (s *Scheduler) cycle(ctx context.Context) (res refresher.Result, err error) {
	start := s.now()
	outcome := "ok"
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresh cycle panic: %v", r)
			outcome = "panic"
		}
		if err != nil {
			if outcome == "ok" {
				outcome = "error"
			}
			s.log.Error().Err(err).Msg("scheduled price refresh failed")
		}
		end := s.now()
		s.opts.Metrics.ObserveCycle(outcome, end.Sub(start), end)
		s.opts.Health.CycleDone(end, err)
	}()

	s.log.Info().Msg("price refresh cycle started")
	res, err = s.refresher.RefreshAll(ctx)
	if err != nil {
		return res, fmt.Errorf("refresh all: %w", err)
	}
	pr, err := s.refresher.PromoteExpiredExits(ctx)
	if err != nil {
		return res, fmt.Errorf("promote exits: %w", err)
	}
	s.log.Info().
		Int("updated", res.Updated).
		Int("errors", res.Errors).
		Int("skipped", res.Skipped).
		Int("promoted", pr.Moved).
		Dur("took", s.now().Sub(start)).
		Msg("price refresh cycle finished")
	return res, nil
}

func (s *Scheduler) digestTask() {
	s.log.Info().Msg("running daily digest")
	ctx, cancel := context.WithTimeout(s.ctx, time.Minute)
	defer cancel()
	if err := s.opts.Digest(ctx); err != nil {
		s.log.Error().Err(err).Msg("daily digest failed")
	}
}
