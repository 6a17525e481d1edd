package controllers

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"market_data_hub/models"
	"market_data_hub/services/apperrors"
	"market_data_hub/services/marketdata"
	"market_data_hub/services/timeseries"
)

const dateLayout = "2006-01-02"

// defaultHistoryLookback is used when a history request has no "from".
const defaultHistoryLookback = 365 * 24 * time.Hour

// MarketData is the read surface the HTTP API serves.
type MarketData interface {
	Quote(ctx context.Context, symbol string) (models.Quote, error)
	Profile(ctx context.Context, symbol string) (models.CompanyProfile, error)
	Statements(ctx context.Context, symbol string, kind models.StatementKind, period models.Period) ([]models.FinancialStatement, error)
	KeyMetrics(ctx context.Context, symbol string, period models.Period) ([]models.KeyMetrics, error)
	Trades(ctx context.Context, chamber models.Chamber, symbol string) ([]models.TradeDisclosure, error)
	History(ctx context.Context, symbol string, start, end time.Time) ([]models.PricePoint, error)
	Intraday(ctx context.Context, symbol, interval string, start, end time.Time) ([]models.IntradayBar, error)
	ClearCache(ctx context.Context, resource, symbol string) error
}

// MarketController handles stock and trade data requests
type MarketController struct {
	data MarketData
	now  func() time.Time
}

// NewMarketController creates a new market controller
func NewMarketController(data MarketData) *MarketController {
	return &MarketController{data: data, now: time.Now}
}

// GetQuote returns the latest quote
// GET /api/v1/stocks/:symbol/quote
func (mc *MarketController) GetQuote(c *gin.Context) {
	quote, err := mc.data.Quote(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": quote})
}

// GetProfile returns the company profile
// GET /api/v1/stocks/:symbol/profile
func (mc *MarketController) GetProfile(c *gin.Context) {
	profile, err := mc.data.Profile(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": profile})
}

// GetFinancials returns one financial statement series
// GET /api/v1/stocks/:symbol/financials/:statement?period=annual|quarter
func (mc *MarketController) GetFinancials(c *gin.Context) {
	kind, err := marketdata.ParseStatementKind(c.Param("statement"))
	if err != nil {
		respondError(c, err)
		return
	}
	period, err := marketdata.ParsePeriod(c.Query("period"))
	if err != nil {
		respondError(c, err)
		return
	}

	statements, err := mc.data.Statements(c.Request.Context(), c.Param("symbol"), kind, period)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":   statements,
		"kind":   kind,
		"period": period,
	})
}

// GetKeyMetrics returns valuation and profitability ratios
// GET /api/v1/stocks/:symbol/metrics?period=annual|quarter
func (mc *MarketController) GetKeyMetrics(c *gin.Context) {
	period, err := marketdata.ParsePeriod(c.Query("period"))
	if err != nil {
		respondError(c, err)
		return
	}

	metrics, err := mc.data.KeyMetrics(c.Request.Context(), c.Param("symbol"), period)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": metrics, "period": period})
}

// GetHistory returns daily bars
// GET /api/v1/stocks/:symbol/history?from=YYYY-MM-DD&to=YYYY-MM-DD
func (mc *MarketController) GetHistory(c *gin.Context) {
	start, end, err := mc.parseRange(c, defaultHistoryLookback)
	if err != nil {
		respondError(c, err)
		return
	}

	points, err := mc.data.History(c.Request.Context(), c.Param("symbol"), start, end)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":  points,
		"from":  start.Format(dateLayout),
		"to":    end.Format(dateLayout),
		"count": len(points),
	})
}

// GetIntraday returns sub-daily bars
// GET /api/v1/stocks/:symbol/intraday?interval=5min&from=YYYY-MM-DD&to=YYYY-MM-DD
func (mc *MarketController) GetIntraday(c *gin.Context) {
	start, end, err := mc.parseRange(c, 0)
	if err != nil {
		respondError(c, err)
		return
	}
	interval := c.DefaultQuery("interval", "5min")

	bars, err := mc.data.Intraday(c.Request.Context(), c.Param("symbol"), interval, start, end)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":     bars,
		"interval": interval,
		"count":    len(bars),
	})
}

// GetTrades returns congressional trading disclosures for one symbol
// GET /api/v1/trades/:chamber?symbol=XYZ
func (mc *MarketController) GetTrades(c *gin.Context) {
	chamber := models.Chamber(strings.ToLower(c.Param("chamber")))
	symbol := c.Query("symbol")
	if symbol == "" {
		respondError(c, apperrors.InvalidInput("symbol query parameter is required"))
		return
	}

	trades, err := mc.data.Trades(c.Request.Context(), chamber, symbol)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": trades, "chamber": chamber})
}

// ClearCache purges a cached resource, optionally for one symbol
// DELETE /api/v1/admin/cache/:resource?symbol=XYZ
func (mc *MarketController) ClearCache(c *gin.Context) {
	resource := c.Param("resource")
	symbol := c.Query("symbol")

	if err := mc.data.ClearCache(c.Request.Context(), resource, symbol); err != nil {
		respondError(c, err)
		return
	}

	log.Printf("Cache cleared by %s: resource=%s symbol=%q", c.GetString("user_id"), resource, symbol)
	c.JSON(http.StatusOK, gin.H{
		"message":  "Cache cleared",
		"resource": resource,
		"symbol":   symbol,
	})
}

// parseRange reads from/to dates. A missing "to" is today in UTC; a missing
// "from" is lookback before "to".
func (mc *MarketController) parseRange(c *gin.Context, lookback time.Duration) (time.Time, time.Time, error) {
	end := timeseries.Date(mc.now().UTC())
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			return time.Time{}, time.Time{}, apperrors.InvalidInput("invalid to date %q, use YYYY-MM-DD", raw)
		}
		end = t
	}

	start := end.Add(-lookback)
	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			return time.Time{}, time.Time{}, apperrors.InvalidInput("invalid from date %q, use YYYY-MM-DD", raw)
		}
		start = t
	}
	return start, end, nil
}

func respondError(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Printf("ERROR: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{
		"error":   apperrors.Kind(err),
		"message": err.Error(),
	})
}
