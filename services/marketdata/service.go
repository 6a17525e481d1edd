// Package marketdata is the read API over the cache coordinator, the
// history store and the upstream provider.
package marketdata

import (
	"context"
	"log"
	"strings"
	"time"

	"market_data_hub/models"
	"market_data_hub/services/apperrors"
	"market_data_hub/services/cache"
	"market_data_hub/services/timeseries"
)

// Provider is the subset of the origin client the service reads through the cache.
type Provider interface {
	FetchQuote(ctx context.Context, symbol string) (models.Quote, error)
	FetchProfile(ctx context.Context, symbol string) (models.CompanyProfile, error)
	FetchStatements(ctx context.Context, symbol string, kind models.StatementKind, period models.Period, limit int) ([]models.FinancialStatement, error)
	FetchKeyMetrics(ctx context.Context, symbol string, period models.Period, limit int) ([]models.KeyMetrics, error)
	FetchTrades(ctx context.Context, chamber models.Chamber, symbol string) ([]models.TradeDisclosure, error)
}

// HistoryResource is the ClearCache name for persisted daily history.
const HistoryResource = "history"

// DefaultStatementLimit is how many periods are requested per statement.
const DefaultStatementLimit = 8

// Service validates requests and routes them to the right tier.
type Service struct {
	cache          *cache.Coordinator
	history        *timeseries.Store
	provider       Provider
	statementLimit int
}

// NewService wires a service.
func NewService(coord *cache.Coordinator, history *timeseries.Store, provider Provider) *Service {
	return &Service{
		cache:          coord,
		history:        history,
		provider:       provider,
		statementLimit: DefaultStatementLimit,
	}
}

// Quote returns the latest quote of symbol.
func (s *Service) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	symbol, err := normalize(symbol)
	if err != nil {
		return models.Quote{}, err
	}
	return cache.Fetch(ctx, s.cache, cache.Key{Type: cache.ResourceQuote, Identifier: symbol},
		func(ctx context.Context) (models.Quote, error) {
			return s.provider.FetchQuote(ctx, symbol)
		})
}

// Profile returns company reference data.
func (s *Service) Profile(ctx context.Context, symbol string) (models.CompanyProfile, error) {
	symbol, err := normalize(symbol)
	if err != nil {
		return models.CompanyProfile{}, err
	}
	return cache.Fetch(ctx, s.cache, cache.Key{Type: cache.ResourceProfile, Identifier: symbol},
		func(ctx context.Context) (models.CompanyProfile, error) {
			return s.provider.FetchProfile(ctx, symbol)
		})
}

// Statements returns reported periods of one financial statement.
func (s *Service) Statements(ctx context.Context, symbol string, kind models.StatementKind, period models.Period) ([]models.FinancialStatement, error) {
	symbol, err := normalize(symbol)
	if err != nil {
		return nil, err
	}
	rt, ok := statementResources[kind]
	if !ok {
		return nil, apperrors.InvalidInput("unknown statement %q", kind)
	}
	if err := validatePeriod(period); err != nil {
		return nil, err
	}

	key := cache.Key{Type: rt, Identifier: symbol, Variant: string(period)}
	return cache.Fetch(ctx, s.cache, key, func(ctx context.Context) ([]models.FinancialStatement, error) {
		return s.provider.FetchStatements(ctx, symbol, kind, period, s.statementLimit)
	})
}

// KeyMetrics returns valuation ratios per period.
func (s *Service) KeyMetrics(ctx context.Context, symbol string, period models.Period) ([]models.KeyMetrics, error) {
	symbol, err := normalize(symbol)
	if err != nil {
		return nil, err
	}
	if err := validatePeriod(period); err != nil {
		return nil, err
	}

	key := cache.Key{Type: cache.ResourceKeyMetrics, Identifier: symbol, Variant: string(period)}
	return cache.Fetch(ctx, s.cache, key, func(ctx context.Context) ([]models.KeyMetrics, error) {
		return s.provider.FetchKeyMetrics(ctx, symbol, period, s.statementLimit)
	})
}

// Trades returns congressional trading disclosures for symbol.
func (s *Service) Trades(ctx context.Context, chamber models.Chamber, symbol string) ([]models.TradeDisclosure, error) {
	symbol, err := normalize(symbol)
	if err != nil {
		return nil, err
	}
	var rt cache.ResourceType
	switch chamber {
	case models.ChamberSenate:
		rt = cache.ResourceSenateTrades
	case models.ChamberHouse:
		rt = cache.ResourceHouseTrades
	default:
		return nil, apperrors.InvalidInput("unknown chamber %q", chamber)
	}

	return cache.Fetch(ctx, s.cache, cache.Key{Type: rt, Identifier: symbol},
		func(ctx context.Context) ([]models.TradeDisclosure, error) {
			return s.provider.FetchTrades(ctx, chamber, symbol)
		})
}

// History returns daily bars in [start, end], backfilling when needed.
func (s *Service) History(ctx context.Context, symbol string, start, end time.Time) ([]models.PricePoint, error) {
	return s.history.GetRange(ctx, symbol, start, end)
}

// Intraday returns sub-daily bars straight from the origin.
func (s *Service) Intraday(ctx context.Context, symbol, interval string, start, end time.Time) ([]models.IntradayBar, error) {
	return s.history.GetIntraday(ctx, symbol, interval, start, end)
}

// RefreshHistory re-fetches the last lookback of daily bars for each symbol.
// Failures are logged per symbol; the count of refreshed symbols is returned.
func (s *Service) RefreshHistory(ctx context.Context, symbols []string, lookback time.Duration) int {
	end := timeseries.Date(time.Now())
	start := end.Add(-lookback)

	refreshed := 0
	for _, sym := range symbols {
		if ctx.Err() != nil {
			break
		}
		if _, err := s.history.Refresh(ctx, sym, start, end); err != nil {
			log.Printf("Warning: history refresh failed for %s: %v", sym, err)
			continue
		}
		refreshed++
	}
	return refreshed
}

// ClearCache purges one resource for symbol, or for every symbol when symbol
// is empty. The "history" resource deletes persisted daily bars and needs a symbol.
func (s *Service) ClearCache(ctx context.Context, resource, symbol string) error {
	if symbol != "" {
		norm, err := normalize(symbol)
		if err != nil {
			return err
		}
		symbol = norm
	}

	if strings.EqualFold(strings.TrimSpace(resource), HistoryResource) {
		if symbol == "" {
			return apperrors.InvalidInput("clearing history needs a symbol")
		}
		n, err := s.history.DeleteSymbol(ctx, symbol)
		if err != nil {
			return err
		}
		log.Printf("History cleared: %s (%d rows)", symbol, n)
		return nil
	}

	rt, ok := cache.ParseResourceType(resource)
	if !ok {
		return apperrors.InvalidInput("unknown resource %q", resource)
	}
	return s.cache.Clear(ctx, rt, symbol)
}

var statementResources = map[models.StatementKind]cache.ResourceType{
	models.IncomeStatement: cache.ResourceIncomeStatement,
	models.BalanceSheet:    cache.ResourceBalanceSheet,
	models.CashFlow:        cache.ResourceCashFlow,
}

// ParseStatementKind accepts "income-statement", "income_statement" or "income".
func ParseStatementKind(raw string) (models.StatementKind, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "_", "-") {
	case "income-statement", "income":
		return models.IncomeStatement, nil
	case "balance-sheet", "balance":
		return models.BalanceSheet, nil
	case "cash-flow", "cashflow":
		return models.CashFlow, nil
	}
	return "", apperrors.InvalidInput("unknown statement %q", raw)
}

// ParsePeriod defaults an empty period to annual.
func ParsePeriod(raw string) (models.Period, error) {
	p := models.Period(strings.ToLower(strings.TrimSpace(raw)))
	if p == "" {
		return models.PeriodAnnual, nil
	}
	if err := validatePeriod(p); err != nil {
		return "", err
	}
	return p, nil
}

func validatePeriod(p models.Period) error {
	if p != models.PeriodAnnual && p != models.PeriodQuarter {
		return apperrors.InvalidInput("period must be annual or quarter")
	}
	return nil
}

func normalize(symbol string) (string, error) {
	norm, err := models.NormalizeSymbol(symbol)
	if err != nil {
		return "", apperrors.InvalidInput("%v", err)
	}
	return norm, nil
}
