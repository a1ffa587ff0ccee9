package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"PriceSentinel/internal/model"
)

// SQLiteStore persists positions to a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
	now func() time.Time
}

// NewSQLiteStore opens (or creates) the SQLite database and runs migrations.
func NewSQLiteStore(dbPath string, log zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	// WAL mode so readers (CLI, dashboards) do not block the refresh cycle.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, log: log, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("sqlite store opened")
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS positions (
			id                TEXT PRIMARY KEY,
			symbol            TEXT NOT NULL,
			company_name      TEXT NOT NULL DEFAULT '',
			entry_zone        TEXT NOT NULL DEFAULT '',
			average_entry     REAL,
			target            TEXT NOT NULL DEFAULT '',
			stop_loss         TEXT NOT NULL DEFAULT '',
			status            TEXT NOT NULL,
			current_price     REAL,
			last_price_update INTEGER,
			realised_pct      REAL,
			exited_at         INTEGER,
			recommended_at    INTEGER NOT NULL,
			created_at        INTEGER NOT NULL,
			updated_at        INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status, exited_at)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_symbol ON positions(symbol, recommended_at)`,

		`CREATE TABLE IF NOT EXISTS status_changes (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp    INTEGER NOT NULL,
			position_id  TEXT NOT NULL,
			symbol       TEXT NOT NULL,
			from_status  TEXT NOT NULL,
			to_status    TEXT NOT NULL,
			price        REAL,
			realised_pct REAL,
			reason       TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_status_changes_pos ON status_changes(position_id, timestamp)`,
	}

	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return fmt.Errorf("exec %q: %w", st[:40], err)
		}
	}
	return nil
}

const positionColumns = `id, symbol, company_name, entry_zone, average_entry, target, stop_loss,
	status, current_price, last_price_update, realised_pct, exited_at,
	recommended_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (model.Position, error) {
	var (
		p                             model.Position
		status                        string
		avgEntry, price, pct          sql.NullFloat64
		lastUpdate, exitedAt          sql.NullInt64
		recommended, created, updated int64
	)
	err := row.Scan(&p.ID, &p.Symbol, &p.CompanyName, &p.EntryZone, &avgEntry, &p.Target, &p.StopLoss,
		&status, &price, &lastUpdate, &pct, &exitedAt,
		&recommended, &created, &updated)
	if err != nil {
		return p, err
	}
	p.Status = model.Status(status)
	p.AverageEntry = floatPtr(avgEntry)
	p.CurrentPrice = floatPtr(price)
	p.RealisedPct = floatPtr(pct)
	p.LastPriceUpdate = timePtr(lastUpdate)
	p.ExitedAt = timePtr(exitedAt)
	p.RecommendedAt = time.UnixMilli(recommended)
	p.CreatedAt = time.UnixMilli(created)
	p.UpdatedAt = time.UnixMilli(updated)
	return p, nil
}

func (s *SQLiteStore) queryPositions(ctx context.Context, query string, args ...any) ([]model.Position, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) FindAll(ctx context.Context) ([]model.Position, error) {
	return s.queryPositions(ctx, `SELECT `+positionColumns+` FROM positions ORDER BY created_at, id`)
}

func (s *SQLiteStore) Find(ctx context.Context, id string) (*model.Position, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+positionColumns+` FROM positions WHERE id = ?`, id)
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteStore) UpdatePrice(ctx context.Context, id string, u model.PriceUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE positions SET
		current_price = ?, last_price_update = ?, status = ?, realised_pct = ?, exited_at = ?, updated_at = ?
		WHERE id = ?`,
		u.CurrentPrice, u.LastPriceUpdate.UnixMilli(), string(u.Status),
		nullFloat(u.RealisedPct), nullTime(u.ExitedAt), s.now().UnixMilli(), id,
	)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (s *SQLiteStore) FindExitedBefore(ctx context.Context, status model.Status, before time.Time) ([]model.Position, error) {
	return s.queryPositions(ctx, `SELECT `+positionColumns+` FROM positions
		WHERE status = ? AND exited_at IS NOT NULL AND exited_at <= ? ORDER BY exited_at`,
		string(status), before.UnixMilli())
}

func (s *SQLiteStore) MarkExited(ctx context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE positions SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(model.StatusExited), at.UnixMilli(), id, string(model.StatusExit))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) RecordStatusChange(ctx context.Context, c model.StatusChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `INSERT INTO status_changes
		(timestamp, position_id, symbol, from_status, to_status, price, realised_pct, reason)
		VALUES (?,?,?,?,?,?,?,?)`,
		c.At.UnixMilli(), c.PositionID, c.Symbol, string(c.From), string(c.To),
		c.Price, nullFloat(c.RealisedPct), c.Reason,
	)
	return err
}

func (s *SQLiteStore) StatusChanges(ctx context.Context, positionID string) ([]model.StatusChange, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT timestamp, position_id, symbol, from_status, to_status, price, realised_pct, reason
		FROM status_changes WHERE position_id = ? ORDER BY timestamp, id`, positionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.StatusChange
	for rows.Next() {
		var (
			c        model.StatusChange
			ts       int64
			from, to string
			pct      sql.NullFloat64
			reason   sql.NullString
		)
		if err := rows.Scan(&ts, &c.PositionID, &c.Symbol, &from, &to, &c.Price, &pct, &reason); err != nil {
			return nil, err
		}
		c.At = time.UnixMilli(ts)
		c.From = model.Status(from)
		c.To = model.Status(to)
		c.RealisedPct = floatPtr(pct)
		c.Reason = reason.String
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Create(ctx context.Context, p *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prepareNew(p, s.now())
	_, err := s.db.ExecContext(ctx, `INSERT INTO positions (`+positionColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Symbol, p.CompanyName, p.EntryZone, nullFloat(p.AverageEntry), p.Target, p.StopLoss,
		string(p.Status), nullFloat(p.CurrentPrice), nullTime(p.LastPriceUpdate), nullFloat(p.RealisedPct), nullTime(p.ExitedAt),
		p.RecommendedAt.UnixMilli(), p.CreatedAt.UnixMilli(), p.UpdatedAt.UnixMilli(),
	)
	return err
}

func (s *SQLiteStore) Exists(ctx context.Context, symbol, company string, at time.Time) (bool, error) {
	start, end := dayBounds(at)
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM positions
		WHERE UPPER(symbol) = UPPER(?) AND company_name = ? AND recommended_at >= ? AND recommended_at < ?`,
		symbol, company, start.UnixMilli(), end.UnixMilli()).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) Close() error {
	s.log.Info().Msg("closing sqlite store")
	return s.db.Close()
}

func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return model.Float(v.Float64)
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	return model.Time(time.UnixMilli(v.Int64))
}
