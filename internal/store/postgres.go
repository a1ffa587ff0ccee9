package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"PriceSentinel/internal/model"
)

// positionRow is the gorm mapping of model.Position.
type positionRow struct {
	ID              string   `gorm:"primaryKey;size:36"`
	Symbol          string   `gorm:"index:idx_positions_symbol;not null"`
	CompanyName     string   `gorm:"not null;default:''"`
	EntryZone       string   `gorm:"not null;default:''"`
	AverageEntry    *float64 `gorm:"type:decimal(20,4)"`
	Target          string   `gorm:"not null;default:''"`
	StopLoss        string   `gorm:"not null;default:''"`
	Status          string   `gorm:"index:idx_positions_status;not null"`
	CurrentPrice    *float64 `gorm:"type:decimal(20,4)"`
	LastPriceUpdate *time.Time
	RealisedPct     *float64   `gorm:"type:decimal(10,2)"`
	ExitedAt        *time.Time `gorm:"index:idx_positions_status"`
	RecommendedAt   time.Time  `gorm:"index:idx_positions_symbol;not null"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (positionRow) TableName() string { return "positions" }

type statusChangeRow struct {
	ID          uint      `gorm:"primaryKey"`
	Timestamp   time.Time `gorm:"index:idx_status_changes_pos;not null"`
	PositionID  string    `gorm:"index:idx_status_changes_pos;size:36;not null"`
	Symbol      string    `gorm:"not null"`
	FromStatus  string    `gorm:"not null"`
	ToStatus    string    `gorm:"not null"`
	Price       float64   `gorm:"type:decimal(20,4)"`
	RealisedPct *float64  `gorm:"type:decimal(10,2)"`
	Reason      string
}

func (statusChangeRow) TableName() string { return "status_changes" }

// PostgresStore persists positions to PostgreSQL through gorm.
type PostgresStore struct {
	db  *gorm.DB
	log zerolog.Logger
	now func() time.Time
}

// NewPostgresStore connects to dsn and migrates the schema.
func NewPostgresStore(dsn string, log zerolog.Logger) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := db.AutoMigrate(&positionRow{}, &statusChangeRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info().Msg("postgres store opened")
	return &PostgresStore{db: db, log: log, now: time.Now}, nil
}

func (s *PostgresStore) FindAll(ctx context.Context) ([]model.Position, error) {
	var rows []positionRow
	if err := s.db.WithContext(ctx).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toPositions(rows), nil
}

func (s *PostgresStore) Find(ctx context.Context, id string) (*model.Position, error) {
	var row positionRow
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p := row.toModel()
	return &p, nil
}

func (s *PostgresStore) UpdatePrice(ctx context.Context, id string, u model.PriceUpdate) error {
	// a map keeps nil values so cleared fields are written as NULL
	res := s.db.WithContext(ctx).Model(&positionRow{}).Where("id = ?", id).Updates(map[string]any{
		"current_price":     u.CurrentPrice,
		"last_price_update": u.LastPriceUpdate,
		"status":            string(u.Status),
		"realised_pct":      u.RealisedPct,
		"exited_at":         u.ExitedAt,
		"updated_at":        s.now(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindExitedBefore(ctx context.Context, status model.Status, before time.Time) ([]model.Position, error) {
	var rows []positionRow
	err := s.db.WithContext(ctx).
		Where("status = ? AND exited_at IS NOT NULL AND exited_at <= ?", string(status), before).
		Order("exited_at").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toPositions(rows), nil
}

func (s *PostgresStore) MarkExited(ctx context.Context, id string, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&positionRow{}).
		Where("id = ? AND status = ?", id, string(model.StatusExit)).
		Updates(map[string]any{"status": string(model.StatusExited), "updated_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *PostgresStore) RecordStatusChange(ctx context.Context, c model.StatusChange) error {
	row := statusChangeRow{
		Timestamp:   c.At,
		PositionID:  c.PositionID,
		Symbol:      c.Symbol,
		FromStatus:  string(c.From),
		ToStatus:    string(c.To),
		Price:       c.Price,
		RealisedPct: c.RealisedPct,
		Reason:      c.Reason,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *PostgresStore) StatusChanges(ctx context.Context, positionID string) ([]model.StatusChange, error) {
	var rows []statusChangeRow
	err := s.db.WithContext(ctx).Where("position_id = ?", positionID).Order("timestamp, id").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]model.StatusChange, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.StatusChange{
			PositionID:  r.PositionID,
			Symbol:      r.Symbol,
			From:        model.Status(r.FromStatus),
			To:          model.Status(r.ToStatus),
			Price:       r.Price,
			RealisedPct: r.RealisedPct,
			Reason:      r.Reason,
			At:          r.Timestamp,
		})
	}
	return out, nil
}

func (s *PostgresStore) Create(ctx context.Context, p *model.Position) error {
	prepareNew(p, s.now())
	row := fromModel(*p)
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *PostgresStore) Exists(ctx context.Context, symbol, company string, at time.Time) (bool, error) {
	start, end := dayBounds(at)
	var n int64
	err := s.db.WithContext(ctx).Model(&positionRow{}).
		Where("UPPER(symbol) = UPPER(?) AND company_name = ? AND recommended_at >= ? AND recommended_at < ?",
			symbol, company, start, end).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *PostgresStore) Close() error {
	s.log.Info().Msg("closing postgres store")
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r positionRow) toModel() model.Position {
	return model.Position{
		ID:              r.ID,
		Symbol:          r.Symbol,
		CompanyName:     r.CompanyName,
		EntryZone:       r.EntryZone,
		AverageEntry:    r.AverageEntry,
		Target:          r.Target,
		StopLoss:        r.StopLoss,
		Status:          model.Status(r.Status),
		CurrentPrice:    r.CurrentPrice,
		LastPriceUpdate: r.LastPriceUpdate,
		RealisedPct:     r.RealisedPct,
		ExitedAt:        r.ExitedAt,
		RecommendedAt:   r.RecommendedAt,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func fromModel(p model.Position) positionRow {
	return positionRow{
		ID:              p.ID,
		Symbol:          p.Symbol,
		CompanyName:     p.CompanyName,
		EntryZone:       p.EntryZone,
		AverageEntry:    p.AverageEntry,
		Target:          p.Target,
		StopLoss:        p.StopLoss,
		Status:          string(p.Status),
		CurrentPrice:    p.CurrentPrice,
		LastPriceUpdate: p.LastPriceUpdate,
		RealisedPct:     p.RealisedPct,
		ExitedAt:        p.ExitedAt,
		RecommendedAt:   p.RecommendedAt,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func toPositions(rows []positionRow) []model.Position {
	out := make([]model.Position, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out
}
