// Package sqlite is the single-node storage backend: a local SQLite file
// accessed through gorm with the pure-Go driver.
package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Store implements domain.Recorder and the archive read side on SQLite.
type Store struct {
	db *gorm.DB
}

// Open creates the parent directory if needed, opens the database at path
// and migrates the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create dir %s: %w", dir, err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	s := &Store{db: db}
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Migrate brings the schema up to date.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&quoteRow{}, &opportunityRow{}, &tradeRow{}, &performanceRow{}, &auditRow{}); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) AppendQuote(ctx context.Context, q domain.Quote) error {
	row := quoteToRow(q)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("sqlite: insert quote %s/%s: %w", q.Venue, q.Instrument, err)
	}
	return nil
}

// AppendOpportunity inserts the opportunity or updates its executed flag.
func (s *Store) AppendOpportunity(ctx context.Context, o domain.Opportunity) error {
	row := opportunityToRow(o)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"executed"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("sqlite: insert opportunity %s: %w", o.ID, err)
	}
	return nil
}

// AppendTrade writes the trade, replacing an earlier row with the same id.
func (s *Store) AppendTrade(ctx context.Context, t domain.Trade) error {
	row, err := tradeToRow(t)
	if err != nil {
		return fmt.Errorf("sqlite: encode trade %s: %w", t.ID, err)
	}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("sqlite: save trade %s: %w", t.ID, err)
	}
	return nil
}

func (s *Store) AppendPerformance(ctx context.Context, p domain.PerformanceStats, at time.Time) error {
	row := performanceRow{
		TotalTrades: p.TotalTrades, SuccessfulTrades: p.SuccessfulTrades, FailedTrades: p.FailedTrades,
		TotalProfit: p.TotalProfit, TotalLoss: p.TotalLoss, NetProfit: p.NetProfit,
		WinRate: p.WinRate, AverageProfit: p.AverageProfit, NakedExposures: p.NakedExposures,
		RecordedAt: at.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("sqlite: insert performance metrics: %w", err)
	}
	return nil
}

// QueryRecentTrades returns up to limit finished trades, newest first.
func (s *Store) QueryRecentTrades(ctx context.Context, limit int) ([]domain.Trade, error) {
	var rows []tradeRow
	err := s.db.WithContext(ctx).
		Where("completed_at IS NOT NULL").
		Order("completed_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("sqlite: recent trades: %w", err)
	}
	return tradesFromRows(rows)
}

// ListTrades pages through trades by start time, newest first.
func (s *Store) ListTrades(ctx context.Context, opts domain.ListOpts) ([]domain.Trade, error) {
	q := s.db.WithContext(ctx).Model(&tradeRow{})
	if opts.Since != nil {
		q = q.Where("started_at >= ?", opts.Since.UTC())
	}
	if opts.Until != nil {
		q = q.Where("started_at <= ?", opts.Until.UTC())
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	var rows []tradeRow
	if err := q.Order("started_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlite: list trades: %w", err)
	}
	return tradesFromRows(rows)
}

// GetTrade returns one trade or domain.ErrNotFound.
func (s *Store) GetTrade(ctx context.Context, id string) (domain.Trade, error) {
	var row tradeRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Trade{}, fmt.Errorf("sqlite: trade %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Trade{}, fmt.Errorf("sqlite: get trade %s: %w", id, err)
	}
	return row.toDomain()
}

// ListQuotesBefore returns quotes observed before the cutoff, oldest first.
func (s *Store) ListQuotesBefore(ctx context.Context, before time.Time) ([]domain.Quote, error) {
	var rows []quoteRow
	if err := s.db.WithContext(ctx).Where("observed_at < ?", before.UTC()).Order("observed_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlite: list quotes before: %w", err)
	}
	out := make([]domain.Quote, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (s *Store) DeleteQuotesBefore(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("observed_at < ?", before.UTC()).Delete(&quoteRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("sqlite: delete quotes before: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Store) ListOpportunitiesBefore(ctx context.Context, before time.Time) ([]domain.Opportunity, error) {
	var rows []opportunityRow
	if err := s.db.WithContext(ctx).Where("detected_at < ?", before.UTC()).Order("detected_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlite: list opportunities before: %w", err)
	}
	out := make([]domain.Opportunity, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (s *Store) ListTradesBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	var rows []tradeRow
	if err := s.db.WithContext(ctx).Where("started_at < ?", before.UTC()).Order("started_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlite: list trades before: %w", err)
	}
	return tradesFromRows(rows)
}

// Log appends an audit event.
func (s *Store) Log(ctx context.Context, event string, detail map[string]any) error {
	data, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("sqlite: marshal audit detail: %w", err)
	}
	row := auditRow{Event: event, Detail: string(data), CreatedAt: time.Now().UTC()}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("sqlite: log audit event %s: %w", event, err)
	}
	return nil
}

func tradesFromRows(rows []tradeRow) ([]domain.Trade, error) {
	out := make([]domain.Trade, 0, len(rows))
	for _, r := range rows {
		t, err := r.toDomain()
		if err != nil {
			return nil, fmt.Errorf("sqlite: decode trade %s: %w", r.ID, err)
		}
		out = append(out, t)
	}
	return out, nil
}

var (
	_ domain.Recorder    = (*Store)(nil)
	_ domain.TradeLister = (*Store)(nil)
	_ domain.AuditLogger = (*Store)(nil)
)
