package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is the canonical, normalized representation of one executed swap.
// Each normalizer is responsible for populating every field, including the
// content-hash ID when the source exposes no native trade identifier.
type Trade struct {
	// ID is the exchange-assigned trade identifier, or a content hash when
	// the source has none. Not unique by itself within a partition.
	ID string `json:"id"`
	// OriginalID is the true exchange-assigned identifier when known; empty
	// for placeholder rows awaiting confirmation.
	OriginalID string `json:"original_id"`

	Exchange string `json:"exchange"`
	User     string `json:"user"`

	UTCTime time.Time `json:"utc_time"`

	BoughtCurrency string          `json:"bought_currency"`
	BoughtAmount   decimal.Decimal `json:"bought_amount"`
	SoldCurrency   string          `json:"sold_currency"`
	SoldAmount     decimal.Decimal `json:"sold_amount"`

	Price       decimal.Decimal `json:"price"`
	FeeCurrency string          `json:"fee_currency"`
	FeeAmount   decimal.Decimal `json:"fee_amount"`
}

// TradeKey is the composite identity of a trade within a (user, exchange)
// partition. Two records sharing ID but differing OriginalID are distinct.
type TradeKey struct {
	ID         string `json:"id"`
	OriginalID string `json:"original_id"`
}

// Key returns the composite identity of the trade.
func (t Trade) Key() TradeKey {
	return TradeKey{ID: t.ID, OriginalID: t.OriginalID}
}

// HashTimeLayout is the second-precision timestamp format hashed into a
// trade's content identity. Second-level precision is required so that the
// one-second collision bump actually changes the digest.
const HashTimeLayout = "2006-01-02 15:04:05"

// HashFields returns the stringified identity fields of the trade, excluding
// the partition keys (exchange, user) and both identifiers. The map is the
// exact input contract of identity.Hash.
func (t Trade) HashFields() map[string]string {
	return map[string]string{
		"utc_time":        t.UTCTime.UTC().Format(HashTimeLayout),
		"bought_currency": t.BoughtCurrency,
		"bought_amount":   t.BoughtAmount.String(),
		"sold_currency":   t.SoldCurrency,
		"sold_amount":     t.SoldAmount.String(),
		"price":           t.Price.String(),
		"fee_currency":    t.FeeCurrency,
		"fee_amount":      t.FeeAmount.String(),
	}
}

// User is a lightweight reference entity, auto-created on first use.
type User struct {
	ID   int64  `json:"user_id"`
	Name string `json:"user_name"`
}

// Exchange is a lightweight reference entity, auto-created on first use.
type Exchange struct {
	ID   int64  `json:"exchange_id"`
	Name string `json:"exchange_name"`
}

// Rate is one currency exchange rate quotation from the NBP API.
type Rate struct {
	BaseCurrency  string  `json:"base_currency"`
	QuoteCurrency string  `json:"quote_currency"`
	Date          string  `json:"date"` // YYYY-MM-DD
	Price         float64 `json:"price"`
	Source        string  `json:"source"`
}

// Symbol maps an exchange trading pair to its base and quote assets.
type Symbol struct {
	Venue      string `json:"venue"`
	Symbol     string `json:"symbol"`
	BaseAsset  string `json:"base_asset"`
	QuoteAsset string `json:"quote_asset"`
}

// Candle is one stored price point from an exchange klines endpoint.
type Candle struct {
	Symbol   string    `json:"symbol"`
	Interval string    `json:"interval"`
	Time     time.Time `json:"time"`
	Price    float64   `json:"price"`
	Source   string    `json:"source"`
}

// Transfer is a deposit or withdrawal record kept alongside the trade ledger.
type Transfer struct {
	Exchange string    `json:"exchange"`
	User     string    `json:"user"`
	Kind     string    `json:"kind"` // "deposit" or "withdrawal"
	NativeID string    `json:"native_id"`
	Asset    string    `json:"asset"`
	Amount   string    `json:"amount"`
	Status   string    `json:"status"`
	TxID     string    `json:"tx_id"`
	UTCTime  time.Time `json:"utc_time"`
}
