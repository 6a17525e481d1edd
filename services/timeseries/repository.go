package timeseries

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"market_data_hub/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists daily price points keyed by (symbol, date).
type Repository interface {
	// GetRange returns the points of symbol in [start, end], ascending by date.
	GetRange(ctx context.Context, symbol string, start, end time.Time) ([]models.PricePoint, error)
	// UpsertBatch inserts or updates every point, or none of them.
	UpsertBatch(ctx context.Context, points []models.PricePoint) error
	// DeleteSymbol removes all history of symbol.
	DeleteSymbol(ctx context.Context, symbol string) (int64, error)
}

// DefaultUpsertBatchSize is the number of rows per INSERT statement.
const DefaultUpsertBatchSize = 200

// GormRepository stores price points in the price_points table.
type GormRepository struct {
	db        *gorm.DB
	batchSize int
}

// NewGormRepository creates a repository over db and migrates its table.
func NewGormRepository(db *gorm.DB, batchSize int) (*GormRepository, error) {
	if err := models.MigratePriceModels(db); err != nil {
		return nil, fmt.Errorf("failed to migrate price_points: %w", err)
	}
	if batchSize <= 0 {
		batchSize = DefaultUpsertBatchSize
	}
	return &GormRepository{db: db, batchSize: batchSize}, nil
}

func (r *GormRepository) GetRange(ctx context.Context, symbol string, start, end time.Time) ([]models.PricePoint, error) {
	var points []models.PricePoint
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND date >= ? AND date <= ?", symbol, Date(start), Date(end)).
		Order("date ASC").
		Find(&points).Error
	if err != nil {
		return nil, fmt.Errorf("query price points for %s: %w", symbol, err)
	}
	// Drivers may hand the stored UTC midnight back in a local zone.
	for i := range points {
		points[i].Date = Date(points[i].Date.UTC())
	}
	return points, nil
}

func (r *GormRepository) UpsertBatch(ctx context.Context, points []models.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	rows := make([]models.PricePoint, len(points))
	copy(rows, points)
	for i := range rows {
		rows[i].ID = 0
		rows[i].Date = Date(rows[i].Date)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "adj_close", "volume", "updated_at"}),
		}).CreateInBatches(&rows, r.batchSize).Error
		if err != nil {
			return fmt.Errorf("upsert %d price points: %w", len(rows), err)
		}
		return nil
	})
}

func (r *GormRepository) DeleteSymbol(ctx context.Context, symbol string) (int64, error) {
	res := r.db.WithContext(ctx).Where("symbol = ?", symbol).Delete(&models.PricePoint{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete price points for %s: %w", symbol, res.Error)
	}
	return res.RowsAffected, nil
}

// MemoryRepository keeps price points in process memory.
type MemoryRepository struct {
	mu     sync.RWMutex
	points map[string]map[time.Time]models.PricePoint
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{points: make(map[string]map[time.Time]models.PricePoint)}
}

func (r *MemoryRepository) GetRange(_ context.Context, symbol string, start, end time.Time) ([]models.PricePoint, error) {
	start, end = Date(start), Date(end)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.PricePoint
	for d, p := range r.points[symbol] {
		if d.Before(start) || d.After(end) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

var errInvalidPoint = errors.New("price point needs a symbol and a date")

func (r *MemoryRepository) UpsertBatch(_ context.Context, points []models.PricePoint) error {
	// Validate everything before touching the map so a bad point writes nothing.
	for i, p := range points {
		if p.Symbol == "" || p.Date.IsZero() {
			return fmt.Errorf("upsert %d price points: point %d: %w", len(points), i, errInvalidPoint)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, p := range points {
		p.Date = Date(p.Date)
		p.UpdatedAt = now
		bySymbol, ok := r.points[p.Symbol]
		if !ok {
			bySymbol = make(map[time.Time]models.PricePoint)
			r.points[p.Symbol] = bySymbol
		}
		bySymbol[p.Date] = p
	}
	return nil
}

func (r *MemoryRepository) DeleteSymbol(_ context.Context, symbol string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := int64(len(r.points[symbol]))
	delete(r.points, symbol)
	return n, nil
}

var (
	_ Repository = (*GormRepository)(nil)
	_ Repository = (*MemoryRepository)(nil)
)
