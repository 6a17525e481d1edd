package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CompanyProfile is mostly static company reference data.
type CompanyProfile struct {
	Symbol      string          `json:"symbol"`
	Name        string          `json:"name"`
	Exchange    string          `json:"exchange"`
	Currency    string          `json:"currency"`
	Industry    string          `json:"industry"`
	Sector      string          `json:"sector"`
	Country     string          `json:"country"`
	CEO         string          `json:"ceo,omitempty"`
	Website     string          `json:"website,omitempty"`
	Description string          `json:"description,omitempty"`
	Employees   int64           `json:"employees,omitempty"`
	MarketCap   decimal.Decimal `json:"market_cap"`
	Beta        decimal.Decimal `json:"beta"`
	IPODate     string          `json:"ipo_date,omitempty"`
}

// StatementKind names a financial statement.
type StatementKind string

const (
	IncomeStatement StatementKind = "income-statement"
	BalanceSheet    StatementKind = "balance-sheet"
	CashFlow        StatementKind = "cash-flow"
)

// Period is the reporting period of a statement.
type Period string

const (
	PeriodAnnual  Period = "annual"
	PeriodQuarter Period = "quarter"
)

// FinancialStatement is one reported period. Line items vary by statement
// kind and provider, so they are kept as a name→value map.
type FinancialStatement struct {
	Symbol   string                     `json:"symbol"`
	Date     string                     `json:"date"`
	Period   string                     `json:"period"`
	Currency string                     `json:"currency,omitempty"`
	Items    map[string]decimal.Decimal `json:"items"`
}

// KeyMetrics holds valuation ratios for one period.
type KeyMetrics struct {
	Symbol          string          `json:"symbol"`
	Date            string          `json:"date"`
	Period          string          `json:"period"`
	PERatio         decimal.Decimal `json:"pe_ratio"`
	PBRatio         decimal.Decimal `json:"pb_ratio"`
	EPS             decimal.Decimal `json:"eps"`
	ROE             decimal.Decimal `json:"roe"`
	DebtToEquity    decimal.Decimal `json:"debt_to_equity"`
	DividendYield   decimal.Decimal `json:"dividend_yield"`
	MarketCap       decimal.Decimal `json:"market_cap"`
	EnterpriseValue decimal.Decimal `json:"enterprise_value"`
}

// Chamber is the legislative chamber of a trading disclosure.
type Chamber string

const (
	ChamberSenate Chamber = "senate"
	ChamberHouse  Chamber = "house"
)

// TradeDisclosure is one reported securities transaction by a member of congress.
type TradeDisclosure struct {
	Chamber         Chamber   `json:"chamber"`
	Symbol          string    `json:"symbol"`
	Representative  string    `json:"representative"`
	Owner           string    `json:"owner,omitempty"`
	AssetName       string    `json:"asset_name,omitempty"`
	Type            string    `json:"type"` // purchase, sale, exchange
	Amount          string    `json:"amount"`
	TransactionDate time.Time `json:"transaction_date"`
	DisclosureDate  time.Time `json:"disclosure_date"`
	Link            string    `json:"link,omitempty"`
}
