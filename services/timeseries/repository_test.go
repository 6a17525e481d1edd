package timeseries

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"market_data_hub/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	return openSQLiteDSN(t, "file::memory:")
}

func openSQLiteDSN(t *testing.T, dsn string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func repositories(t *testing.T) map[string]Repository {
	gormRepo, err := NewGormRepository(openSQLite(t), 2)
	require.NoError(t, err)
	return map[string]Repository{
		"gorm":   gormRepo,
		"memory": NewMemoryRepository(),
	}
}

func weekBars(symbol, price string) []models.PricePoint {
	var out []models.PricePoint
	for _, d := range TradingDays(day(2024, 1, 8), day(2024, 1, 12)) {
		out = append(out, bar(symbol, d, price))
	}
	return out
}

func TestRepository_UpsertIsIdempotent(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, repo.UpsertBatch(ctx, weekBars("ACME", "10")))
			require.NoError(t, repo.UpsertBatch(ctx, weekBars("ACME", "10")))

			got, err := repo.GetRange(ctx, "ACME", day(2024, 1, 1), day(2024, 1, 31))
			require.NoError(t, err)
			require.Len(t, got, 5)
			for i, p := range got {
				assert.Equal(t, "ACME", p.Symbol)
				assert.True(t, p.Date.Equal(day(2024, 1, 8+i)), p.Date.String())
			}

			// Same keys, new values: rows are updated in place.
			require.NoError(t, repo.UpsertBatch(ctx, weekBars("ACME", "12.25")))
			got, err = repo.GetRange(ctx, "ACME", day(2024, 1, 1), day(2024, 1, 31))
			require.NoError(t, err)
			require.Len(t, got, 5)
			assert.True(t, got[4].Close.Equal(decimal.RequireFromString("12.25")), got[4].Close.String())
		})
	}
}

func TestRepository_RangeAndDelete(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, repo.UpsertBatch(ctx, weekBars("ACME", "10")))
			require.NoError(t, repo.UpsertBatch(ctx, weekBars("INIT", "20")))

			got, err := repo.GetRange(ctx, "ACME", day(2024, 1, 9), day(2024, 1, 10))
			require.NoError(t, err)
			assert.Len(t, got, 2)

			n, err := repo.DeleteSymbol(ctx, "ACME")
			require.NoError(t, err)
			assert.Equal(t, int64(5), n)

			got, err = repo.GetRange(ctx, "ACME", day(2024, 1, 1), day(2024, 1, 31))
			require.NoError(t, err)
			assert.Empty(t, got)

			got, err = repo.GetRange(ctx, "INIT", day(2024, 1, 1), day(2024, 1, 31))
			require.NoError(t, err)
			assert.Len(t, got, 5)
		})
	}
}

func TestGormRepository_BatchIsAllOrNothing(t *testing.T) {
	db := openSQLite(t)
	repo, err := NewGormRepository(db, 2)
	require.NoError(t, err)

	// Fail the second INSERT of the batch.
	inserts := 0
	err = db.Callback().Create().After("gorm:create").Register("test:fail_second_insert", func(tx *gorm.DB) {
		if tx.Statement.Table != "price_points" {
			return
		}
		inserts++
		if inserts == 2 {
			tx.AddError(errors.New("disk full"))
		}
	})
	require.NoError(t, err)

	err = repo.UpsertBatch(context.Background(), weekBars("ACME", "10"))
	require.Error(t, err)

	got, err := repo.GetRange(context.Background(), "ACME", day(2024, 1, 1), day(2024, 1, 31))
	require.NoError(t, err)
	assert.Empty(t, got, "no rows survive a failed batch")
}

func TestMemoryRepository_BatchIsAllOrNothing(t *testing.T) {
	repo := NewMemoryRepository()
	points := weekBars("ACME", "10")
	points[3].Date = time.Time{}

	require.Error(t, repo.UpsertBatch(context.Background(), points))
	got, err := repo.GetRange(context.Background(), "ACME", day(2024, 1, 1), day(2024, 1, 31))
	require.NoError(t, err)
	assert.Empty(t, got)
}

// _loc makes the driver return stored instants in New York time, the way pgx
// returns timestamptz columns in the server's local zone.
func TestGormRepository_ReturnsUTCCalendarDays(t *testing.T) {
	repo, err := NewGormRepository(openSQLiteDSN(t, "file::memory:?_loc=America/New_York"), 2)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, repo.UpsertBatch(ctx, weekBars("ACME", "10")))
	got, err := repo.GetRange(ctx, "ACME", day(2024, 1, 1), day(2024, 1, 31))
	require.NoError(t, err)
	require.Len(t, got, 5)
	for i, p := range got {
		assert.Equal(t, day(2024, 1, 8+i), p.Date)
		assert.Equal(t, time.UTC, p.Date.Location())
	}
}

func TestStore_LocalZoneDriverDoesNotTriggerRefetch(t *testing.T) {
	repo, err := NewGormRepository(openSQLiteDSN(t, "file::memory:?_loc=America/New_York"), 50)
	require.NoError(t, err)
	origin := &fakeOrigin{}
	s := newTestStore(t, repo, origin, time.Date(2024, 2, 5, 12, 0, 0, 0, newYork(t)))
	ctx := context.Background()

	_, err = s.GetRange(ctx, "ACME", day(2024, 1, 1), day(2024, 1, 31))
	require.NoError(t, err)
	got, err := s.GetRange(ctx, "ACME", day(2024, 1, 1), day(2024, 1, 31))
	require.NoError(t, err)

	assert.Len(t, got, 23)
	assert.Equal(t, day(2024, 1, 1), got[0].Date)
	assert.Equal(t, int32(1), atomic.LoadInt32(&origin.rangeCalls))
}
