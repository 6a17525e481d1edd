package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"market_data_hub/models"
	"market_data_hub/services/apperrors"

	"github.com/shopspring/decimal"
)

type historicalResponse struct {
	Symbol     string `json:"symbol"`
	Historical []struct {
		Date     string          `json:"date"`
		Open     decimal.Decimal `json:"open"`
		High     decimal.Decimal `json:"high"`
		Low      decimal.Decimal `json:"low"`
		Close    decimal.Decimal `json:"close"`
		AdjClose decimal.Decimal `json:"adjClose"`
		Volume   int64           `json:"volume"`
	} `json:"historical"`
}

type intradayResponse struct {
	Date   string          `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// FetchPriceRange returns the daily bars of symbol in [start, end]. An empty
// range is not an error.
func (c *Client) FetchPriceRange(ctx context.Context, symbol string, start, end time.Time) ([]models.PricePoint, error) {
	op := "fetch price range " + symbol

	var body historicalResponse
	query := map[string]string{"from": start.Format(time.DateOnly), "to": end.Format(time.DateOnly)}
	if err := c.get(ctx, op, "/historical-price-full/{symbol}", map[string]string{"symbol": symbol}, query, &body); err != nil {
		return nil, err
	}

	out := make([]models.PricePoint, 0, len(body.Historical))
	for _, h := range body.Historical {
		d, err := parseDay(h.Date)
		if err != nil {
			return nil, apperrors.OriginUnavailable(op, err)
		}
		adj := h.AdjClose
		if adj.IsZero() {
			adj = h.Close
		}
		out = append(out, models.PricePoint{
			Symbol:   symbol,
			Date:     d,
			Open:     h.Open,
			High:     h.High,
			Low:      h.Low,
			Close:    h.Close,
			AdjClose: adj,
			Volume:   h.Volume,
		})
	}
	return out, nil
}

// FetchIntraday returns sub-daily bars of symbol in [start, end]. The provider
// reports bar times in exchange local time.
func (c *Client) FetchIntraday(ctx context.Context, symbol, interval string, start, end time.Time) ([]models.IntradayBar, error) {
	op := "fetch intraday " + symbol

	var rows []intradayResponse
	path := "/historical-chart/{interval}/{symbol}"
	query := map[string]string{"from": start.Format(time.DateOnly), "to": end.Format(time.DateOnly)}
	if err := c.get(ctx, op, path, map[string]string{"interval": interval, "symbol": symbol}, query, &rows); err != nil {
		return nil, err
	}

	out := make([]models.IntradayBar, 0, len(rows))
	for _, r := range rows {
		ts, err := time.ParseInLocation(time.DateTime, strings.TrimSpace(r.Date), c.loc)
		if err != nil {
			return nil, apperrors.OriginUnavailable(op, fmt.Errorf("parse time %q: %w", r.Date, err))
		}
		out = append(out, models.IntradayBar{
			Symbol: symbol,
			Time:   ts,
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		})
	}
	return out, nil
}
