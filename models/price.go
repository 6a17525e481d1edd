package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PricePoint is one daily OHLC bar. A symbol has at most one row per date.
type PricePoint struct {
	ID        uint            `gorm:"primaryKey" json:"-"`
	Symbol    string          `gorm:"size:16;not null;uniqueIndex:idx_price_symbol_date" json:"symbol"`
	Date      time.Time       `gorm:"not null;uniqueIndex:idx_price_symbol_date" json:"date"`
	Open      decimal.Decimal `gorm:"type:decimal(18,4)" json:"open"`
	High      decimal.Decimal `gorm:"type:decimal(18,4)" json:"high"`
	Low       decimal.Decimal `gorm:"type:decimal(18,4)" json:"low"`
	Close     decimal.Decimal `gorm:"type:decimal(18,4)" json:"close"`
	AdjClose  decimal.Decimal `gorm:"type:decimal(18,4)" json:"adj_close"`
	Volume    int64           `json:"volume"`
	UpdatedAt time.Time       `json:"-"`
}

// TableName pins the table name used by the history store.
func (PricePoint) TableName() string {
	return "price_points"
}

// Quote is the latest trading snapshot for a symbol.
type Quote struct {
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name,omitempty"`
	Exchange      string          `json:"exchange,omitempty"`
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	Open          decimal.Decimal `json:"open"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
	PreviousClose decimal.Decimal `json:"previous_close"`
	Volume        int64           `json:"volume"`
	MarketCap     decimal.Decimal `json:"market_cap"`
	Timestamp     time.Time       `json:"timestamp"`
}

// MigratePriceModels creates the history table.
func MigratePriceModels(db *gorm.DB) error {
	return db.AutoMigrate(&PricePoint{})
}

// IntradayBar is one sub-daily OHLC bar. Intraday data is never persisted.
type IntradayBar struct {
	Symbol string          `json:"symbol"`
	Time   time.Time       `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}
