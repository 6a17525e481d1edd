package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market_data_hub/models"
	"market_data_hub/services/apperrors"
	"market_data_hub/services/realtime"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeMarketData struct {
	err error

	symbol   string
	kind     models.StatementKind
	period   models.Period
	chamber  models.Chamber
	interval string
	start    time.Time
	end      time.Time
	resource string
}

func (f *fakeMarketData) Quote(_ context.Context, symbol string) (models.Quote, error) {
	f.symbol = symbol
	if f.err != nil {
		return models.Quote{}, f.err
	}
	return models.Quote{Symbol: symbol, Price: decimal.RequireFromString("101.5")}, nil
}

func (f *fakeMarketData) Profile(_ context.Context, symbol string) (models.CompanyProfile, error) {
	f.symbol = symbol
	return models.CompanyProfile{Symbol: symbol}, f.err
}

func (f *fakeMarketData) Statements(_ context.Context, symbol string, kind models.StatementKind, period models.Period) ([]models.FinancialStatement, error) {
	f.symbol, f.kind, f.period = symbol, kind, period
	return []models.FinancialStatement{{Symbol: symbol}}, f.err
}

func (f *fakeMarketData) KeyMetrics(_ context.Context, symbol string, period models.Period) ([]models.KeyMetrics, error) {
	f.symbol, f.period = symbol, period
	return nil, f.err
}

func (f *fakeMarketData) Trades(_ context.Context, chamber models.Chamber, symbol string) ([]models.TradeDisclosure, error) {
	f.chamber, f.symbol = chamber, symbol
	return nil, f.err
}

func (f *fakeMarketData) History(_ context.Context, symbol string, start, end time.Time) ([]models.PricePoint, error) {
	f.symbol, f.start, f.end = symbol, start, end
	return []models.PricePoint{{Symbol: symbol, Date: start}}, f.err
}

func (f *fakeMarketData) Intraday(_ context.Context, symbol, interval string, start, end time.Time) ([]models.IntradayBar, error) {
	f.symbol, f.interval, f.start, f.end = symbol, interval, start, end
	return nil, f.err
}

func (f *fakeMarketData) ClearCache(_ context.Context, resource, symbol string) error {
	f.resource, f.symbol = resource, symbol
	return f.err
}

func newTestRouter(data MarketData) (*gin.Engine, *MarketController) {
	mc := NewMarketController(data)
	mc.now = func() time.Time { return time.Date(2024, 3, 15, 18, 0, 0, 0, time.UTC) }

	r := gin.New()
	stocks := r.Group("/api/v1/stocks/:symbol")
	stocks.GET("/quote", mc.GetQuote)
	stocks.GET("/profile", mc.GetProfile)
	stocks.GET("/financials/:statement", mc.GetFinancials)
	stocks.GET("/metrics", mc.GetKeyMetrics)
	stocks.GET("/history", mc.GetHistory)
	stocks.GET("/intraday", mc.GetIntraday)
	r.GET("/api/v1/trades/:chamber", mc.GetTrades)
	r.DELETE("/api/v1/admin/cache/:resource", mc.ClearCache)
	return r, mc
}

func do(r http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestGetQuote(t *testing.T) {
	fake := &fakeMarketData{}
	r, _ := newTestRouter(fake)

	rec := do(r, http.MethodGet, "/api/v1/stocks/aapl/quote")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data models.Quote `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "aapl", body.Data.Symbol)
	assert.True(t, body.Data.Price.Equal(decimal.RequireFromString("101.5")))
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		kind string
	}{
		{"invalid", apperrors.InvalidInput("bad symbol"), http.StatusBadRequest, "invalid_input"},
		{"not found", apperrors.NotFound("quote ZZZZ"), http.StatusNotFound, "not_found"},
		{"origin down", apperrors.OriginUnavailable("quote", errors.New("timeout")), http.StatusBadGateway, "origin_unavailable"},
		{"persistence", apperrors.Persistence("upsert", errors.New("disk full")), http.StatusInternalServerError, "persistence_failure"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRouter(&fakeMarketData{err: tt.err})
			rec := do(r, http.MethodGet, "/api/v1/stocks/ZZZZ/quote")
			assert.Equal(t, tt.code, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.kind, body["error"])
		})
	}
}

func TestGetFinancials(t *testing.T) {
	fake := &fakeMarketData{}
	r, _ := newTestRouter(fake)

	rec := do(r, http.MethodGet, "/api/v1/stocks/MSFT/financials/cash-flow?period=quarter")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.CashFlow, fake.kind)
	assert.Equal(t, models.PeriodQuarter, fake.period)

	rec = do(r, http.MethodGet, "/api/v1/stocks/MSFT/financials/dividends")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(r, http.MethodGet, "/api/v1/stocks/MSFT/metrics?period=weekly")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(r, http.MethodGet, "/api/v1/stocks/MSFT/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.PeriodAnnual, fake.period)
}

func TestGetHistory_Range(t *testing.T) {
	fake := &fakeMarketData{}
	r, _ := newTestRouter(fake)

	rec := do(r, http.MethodGet, "/api/v1/stocks/ACME/history?from=2024-01-01&to=2024-01-31")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), fake.start)
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), fake.end)

	rec = do(r, http.MethodGet, "/api/v1/stocks/ACME/history")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), fake.end)
	assert.Equal(t, fake.end.Add(-defaultHistoryLookback), fake.start)

	rec = do(r, http.MethodGet, "/api/v1/stocks/ACME/history?from=01/01/2024")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetIntraday_DefaultsInterval(t *testing.T) {
	fake := &fakeMarketData{}
	r, _ := newTestRouter(fake)

	rec := do(r, http.MethodGet, "/api/v1/stocks/ACME/intraday")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "5min", fake.interval)
	assert.Equal(t, fake.start, fake.end)

	do(r, http.MethodGet, "/api/v1/stocks/ACME/intraday?interval=1hour")
	assert.Equal(t, "1hour", fake.interval)
}

func TestGetTrades(t *testing.T) {
	fake := &fakeMarketData{}
	r, _ := newTestRouter(fake)

	rec := do(r, http.MethodGet, "/api/v1/trades/Senate?symbol=NVDA")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.ChamberSenate, fake.chamber)
	assert.Equal(t, "NVDA", fake.symbol)

	rec = do(r, http.MethodGet, "/api/v1/trades/house")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClearCache(t *testing.T) {
	fake := &fakeMarketData{}
	r, _ := newTestRouter(fake)

	rec := do(r, http.MethodDelete, "/api/v1/admin/cache/quote?symbol=AAPL")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "quote", fake.resource)
	assert.Equal(t, "AAPL", fake.symbol)

	fake.err = apperrors.InvalidInput("unknown resource")
	rec = do(r, http.MethodDelete, "/api/v1/admin/cache/bogus")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type staticQuotes struct{}

func (staticQuotes) Quote(_ context.Context, symbol string) (models.Quote, error) {
	return models.Quote{Symbol: symbol}, nil
}

func TestRealtimeStatus(t *testing.T) {
	cfg := realtime.DefaultConfig()
	cfg.MaxClients = 3
	hub := realtime.NewHub(staticQuotes{}, cfg)
	rc := NewRealtimeController(hub)

	r := gin.New()
	r.GET("/status", rc.GetStatus)

	rec := do(r, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data realtime.Status `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Data.MaxClients)
	assert.Equal(t, 0, body.Data.Clients)
}
