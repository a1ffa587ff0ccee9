package notifier

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"PriceSentinel/internal/model"
	"PriceSentinel/internal/performance"
	"PriceSentinel/internal/refresher"
	"PriceSentinel/internal/scheduler"
)

// CycleRunner runs a full refresh cycle on demand.
type CycleRunner interface {
	RunNow(ctx context.Context) (refresher.Result, error)
}

// PositionRefresher refreshes single positions and sweeps stale exits.
type PositionRefresher interface {
	RefreshOne(ctx context.Context, id string) (*model.Position, error)
	PromoteExpiredExits(ctx context.Context) (refresher.PromoteResult, error)
}

// PositionReader is the read side of the position store.
type PositionReader interface {
	FindAll(ctx context.Context) ([]model.Position, error)
	Find(ctx context.Context, id string) (*model.Position, error)
	StatusChanges(ctx context.Context, positionID string) ([]model.StatusChange, error)
}

// Commands answers admin commands received over Telegram.
type Commands struct {
	runner    CycleRunner
	refresher PositionRefresher
	positions PositionReader
	now       func() time.Time
}

// NewCommands wires the command handler.
func NewCommands(runner CycleRunner, r PositionRefresher, positions PositionReader) *Commands {
	return &Commands{runner: runner, refresher: r, positions: positions, now: time.Now}
}

const helpText = `<b>PriceSentinel</b>
/refresh - refresh every position now
/refresh &lt;id&gt; - refresh one position
/promote - archive exits older than 48h
/stats - performance statistics
/position &lt;id&gt; - position details and history`

// Handle implements CommandHandler.
func (c *Commands) Handle(ctx context.Context, text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	// "/stats@MyBot" addresses the bot in group chats
	cmd, _, _ := strings.Cut(fields[0], "@")
	args := fields[1:]

	switch cmd {
	case "/refresh":
		if len(args) > 0 {
			return c.refreshOne(ctx, args[0])
		}
		return c.refreshAll(ctx)
	case "/promote":
		res, err := c.refresher.PromoteExpiredExits(ctx)
		if err != nil {
			return fmt.Sprintf("❌ Promotion finished with errors: %s\nMoved: %d", html.EscapeString(err.Error()), res.Moved)
		}
		return fmt.Sprintf("📁 Archived %d position(s)", res.Moved)
	case "/stats":
		positions, err := c.positions.FindAll(ctx)
		if err != nil {
			return FormatError(err)
		}
		return FormatPerformanceStats(performance.Compute(positions), c.now())
	case "/position":
		if len(args) == 0 {
			return "Usage: /position &lt;id&gt;"
		}
		return c.position(ctx, args[0])
	case "/start", "/help":
		return helpText
	default:
		return "Unknown command.\n\n" + helpText
	}
}

func (c *Commands) refreshAll(ctx context.Context) string {
	start := c.now()
	res, err := c.runner.RunNow(ctx)
	switch {
	case errors.Is(err, scheduler.ErrCycleInFlight):
		return "⏳ A refresh is already running, try again shortly."
	case errors.Is(err, scheduler.ErrNotRunning):
		return "⏹ The scheduler is stopped."
	case err != nil:
		return FormatError(err)
	}
	return FormatRefreshSummary(res, c.now().Sub(start))
}

func (c *Commands) refreshOne(ctx context.Context, id string) string {
	p, err := c.refresher.RefreshOne(ctx, id)
	if err != nil {
		return FormatError(err)
	}
	return FormatPosition(performance.Enrich(*p), nil)
}

func (c *Commands) position(ctx context.Context, id string) string {
	p, err := c.positions.Find(ctx, id)
	if err != nil {
		return FormatError(&refresher.StageError{Stage: refresher.StageLoad, PositionID: id, Err: err})
	}
	history, err := c.positions.StatusChanges(ctx, id)
	if err != nil {
		return FormatError(err)
	}
	return FormatPosition(performance.Enrich(*p), history)
}
