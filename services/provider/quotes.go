package provider

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"market_data_hub/models"
	"market_data_hub/services/apperrors"

	"github.com/shopspring/decimal"
)

type quoteResponse struct {
	Symbol            string          `json:"symbol"`
	Name              string          `json:"name"`
	Exchange          string          `json:"exchange"`
	Price             decimal.Decimal `json:"price"`
	Change            decimal.Decimal `json:"change"`
	ChangesPercentage decimal.Decimal `json:"changesPercentage"`
	Open              decimal.Decimal `json:"open"`
	DayHigh           decimal.Decimal `json:"dayHigh"`
	DayLow            decimal.Decimal `json:"dayLow"`
	PreviousClose     decimal.Decimal `json:"previousClose"`
	Volume            int64           `json:"volume"`
	MarketCap         decimal.Decimal `json:"marketCap"`
	Timestamp         int64           `json:"timestamp"`
}

type profileResponse struct {
	Symbol            string          `json:"symbol"`
	CompanyName       string          `json:"companyName"`
	ExchangeShortName string          `json:"exchangeShortName"`
	Currency          string          `json:"currency"`
	Industry          string          `json:"industry"`
	Sector            string          `json:"sector"`
	Country           string          `json:"country"`
	CEO               string          `json:"ceo"`
	Website           string          `json:"website"`
	Description       string          `json:"description"`
	FullTimeEmployees string          `json:"fullTimeEmployees"`
	MktCap            decimal.Decimal `json:"mktCap"`
	Beta              decimal.Decimal `json:"beta"`
	IPODate           string          `json:"ipoDate"`
}

// FetchQuote returns the latest quote of symbol.
func (c *Client) FetchQuote(ctx context.Context, symbol string) (models.Quote, error) {
	op := "fetch quote " + symbol

	var rows []quoteResponse
	if err := c.get(ctx, op, "/quote/{symbol}", map[string]string{"symbol": symbol}, nil, &rows); err != nil {
		return models.Quote{}, err
	}
	if len(rows) == 0 || rows[0].Symbol == "" {
		return models.Quote{}, apperrors.NotFound(op)
	}

	r := rows[0]
	ts := time.Now().UTC()
	if r.Timestamp > 0 {
		ts = time.Unix(r.Timestamp, 0).UTC()
	}
	return models.Quote{
		Symbol:        strings.ToUpper(r.Symbol),
		Name:          r.Name,
		Exchange:      r.Exchange,
		Price:         r.Price,
		Change:        r.Change,
		ChangePercent: r.ChangesPercentage,
		Open:          r.Open,
		High:          r.DayHigh,
		Low:           r.DayLow,
		PreviousClose: r.PreviousClose,
		Volume:        r.Volume,
		MarketCap:     r.MarketCap,
		Timestamp:     ts,
	}, nil
}

// FetchProfile returns company reference data for symbol.
func (c *Client) FetchProfile(ctx context.Context, symbol string) (models.CompanyProfile, error) {
	op := "fetch profile " + symbol

	var rows []profileResponse
	if err := c.get(ctx, op, "/profile/{symbol}", map[string]string{"symbol": symbol}, nil, &rows); err != nil {
		return models.CompanyProfile{}, err
	}
	if len(rows) == 0 || rows[0].Symbol == "" {
		return models.CompanyProfile{}, apperrors.NotFound(op)
	}

	r := rows[0]
	employees, _ := strconv.ParseInt(strings.TrimSpace(r.FullTimeEmployees), 10, 64)
	return models.CompanyProfile{
		Symbol:      strings.ToUpper(r.Symbol),
		Name:        r.CompanyName,
		Exchange:    r.ExchangeShortName,
		Currency:    r.Currency,
		Industry:    r.Industry,
		Sector:      r.Sector,
		Country:     r.Country,
		CEO:         r.CEO,
		Website:     r.Website,
		Description: r.Description,
		Employees:   employees,
		MarketCap:   r.MktCap,
		Beta:        r.Beta,
		IPODate:     r.IPODate,
	}, nil
}

// parseDay reads a provider date such as "2024-01-31".
func parseDay(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}
