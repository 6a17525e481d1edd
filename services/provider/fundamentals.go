package provider

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"market_data_hub/models"
	"market_data_hub/services/apperrors"

	"github.com/shopspring/decimal"
)

// statementMeta are the non-numeric fields of a statement row.
var statementMeta = map[string]bool{
	"date": true, "symbol": true, "reportedCurrency": true, "cik": true,
	"fillingDate": true, "acceptedDate": true, "calendarYear": true,
	"period": true, "link": true, "finalLink": true,
}

type keyMetricsResponse struct {
	Symbol            string          `json:"symbol"`
	Date              string          `json:"date"`
	Period            string          `json:"period"`
	PERatio           decimal.Decimal `json:"peRatio"`
	PBRatio           decimal.Decimal `json:"pbRatio"`
	NetIncomePerShare decimal.Decimal `json:"netIncomePerShare"`
	ROE               decimal.Decimal `json:"roe"`
	DebtToEquity      decimal.Decimal `json:"debtToEquity"`
	DividendYield     decimal.Decimal `json:"dividendYield"`
	MarketCap         decimal.Decimal `json:"marketCap"`
	EnterpriseValue   decimal.Decimal `json:"enterpriseValue"`
}

type tradeResponse struct {
	Symbol           string `json:"symbol"`
	FirstName        string `json:"firstName"`
	LastName         string `json:"lastName"`
	Representative   string `json:"representative"`
	Owner            string `json:"owner"`
	AssetDescription string `json:"assetDescription"`
	Type             string `json:"type"`
	Amount           string `json:"amount"`
	TransactionDate  string `json:"transactionDate"`
	DisclosureDate   string `json:"disclosureDate"`
	Link             string `json:"link"`
}

// FetchStatements returns up to limit reported periods of one statement kind,
// newest first.
func (c *Client) FetchStatements(ctx context.Context, symbol string, kind models.StatementKind, period models.Period, limit int) ([]models.FinancialStatement, error) {
	op := "fetch " + string(kind) + " " + symbol

	var rows []map[string]json.RawMessage
	path := "/" + string(kind) + "/{symbol}"
	query := map[string]string{"period": string(period), "limit": strconv.Itoa(limit)}
	if err := c.get(ctx, op, path, map[string]string{"symbol": symbol}, query, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperrors.NotFound(op)
	}

	out := make([]models.FinancialStatement, 0, len(rows))
	for _, row := range rows {
		st := models.FinancialStatement{
			Symbol:   symbol,
			Date:     rawString(row["date"]),
			Period:   rawString(row["period"]),
			Currency: rawString(row["reportedCurrency"]),
			Items:    make(map[string]decimal.Decimal, len(row)),
		}
		for name, raw := range row {
			if statementMeta[name] {
				continue
			}
			var v decimal.Decimal
			if err := json.Unmarshal(raw, &v); err != nil {
				continue
			}
			st.Items[name] = v
		}
		out = append(out, st)
	}
	return out, nil
}

// FetchKeyMetrics returns valuation ratios per period, newest first.
func (c *Client) FetchKeyMetrics(ctx context.Context, symbol string, period models.Period, limit int) ([]models.KeyMetrics, error) {
	op := "fetch key metrics " + symbol

	var rows []keyMetricsResponse
	query := map[string]string{"period": string(period), "limit": strconv.Itoa(limit)}
	if err := c.get(ctx, op, "/key-metrics/{symbol}", map[string]string{"symbol": symbol}, query, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperrors.NotFound(op)
	}

	out := make([]models.KeyMetrics, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.KeyMetrics{
			Symbol:          symbol,
			Date:            r.Date,
			Period:          r.Period,
			PERatio:         r.PERatio,
			PBRatio:         r.PBRatio,
			EPS:             r.NetIncomePerShare,
			ROE:             r.ROE,
			DebtToEquity:    r.DebtToEquity,
			DividendYield:   r.DividendYield,
			MarketCap:       r.MarketCap,
			EnterpriseValue: r.EnterpriseValue,
		})
	}
	return out, nil
}

// FetchTrades returns congressional trading disclosures for symbol in chamber.
func (c *Client) FetchTrades(ctx context.Context, chamber models.Chamber, symbol string) ([]models.TradeDisclosure, error) {
	op := "fetch " + string(chamber) + " trades " + symbol

	var rows []tradeResponse
	path := "/" + string(chamber) + "-trading"
	if err := c.get(ctx, op, path, nil, map[string]string{"symbol": symbol}, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperrors.NotFound(op)
	}

	out := make([]models.TradeDisclosure, 0, len(rows))
	for _, r := range rows {
		name := r.Representative
		if name == "" {
			name = strings.TrimSpace(r.FirstName + " " + r.LastName)
		}
		td := models.TradeDisclosure{
			Chamber:        chamber,
			Symbol:         strings.ToUpper(r.Symbol),
			Representative: name,
			Owner:          r.Owner,
			AssetName:      r.AssetDescription,
			Type:           strings.ToLower(r.Type),
			Amount:         r.Amount,
			Link:           r.Link,
		}
		if d, err := parseDay(r.TransactionDate); err == nil {
			td.TransactionDate = d
		}
		if d, err := parseDay(r.DisclosureDate); err == nil {
			td.DisclosureDate = d
		}
		out = append(out, td)
	}
	return out, nil
}

func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
