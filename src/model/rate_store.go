package model

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/models"
)

// RateExists reports whether a rate quotation is already stored.
func RateExists(ctx context.Context, db *sql.DB, base, quote, date string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rates
		WHERE base_currency = ? AND quote_currency = ? AND date = ?`,
		base, quote, date).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking rate %s/%s@%s: %w", base, quote, date, err)
	}
	return n > 0, nil
}

// CreateRate stores one rate quotation.
func CreateRate(ctx context.Context, db *sql.DB, rate models.Rate) error {
	_, err := db.ExecContext(ctx, `INSERT INTO rates (base_currency, quote_currency, date, price, source)
		VALUES (?, ?, ?, ?, ?)`,
		rate.BaseCurrency, rate.QuoteCurrency, rate.Date, rate.Price, rate.Source)
	if err != nil {
		return fmt.Errorf("inserting rate %s/%s@%s: %w", rate.BaseCurrency, rate.QuoteCurrency, rate.Date, err)
	}
	return nil
}

// UpsertSymbols stores trading-pair metadata for a venue, replacing stale
// base/quote asset mappings in place.
func UpsertSymbols(ctx context.Context, db *sql.DB, symbols []models.Symbol) (int, error) {
	stored := 0
	for _, sym := range symbols {
		_, err := db.ExecContext(ctx, `INSERT INTO symbols (venue, symbol, base_asset, quote_asset)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(venue, symbol) DO UPDATE SET
				base_asset = excluded.base_asset,
				quote_asset = excluded.quote_asset`,
			sym.Venue, sym.Symbol, sym.BaseAsset, sym.QuoteAsset)
		if err != nil {
			return stored, fmt.Errorf("upserting symbol %s on %s: %w", sym.Symbol, sym.Venue, err)
		}
		stored++
	}
	return stored, nil
}

// GetSymbol returns the base/quote asset mapping for a venue's trading pair.
func GetSymbol(ctx context.Context, db *sql.DB, venue, symbol string) (models.Symbol, error) {
	var sym models.Symbol
	err := db.QueryRowContext(ctx, `SELECT venue, symbol, base_asset, quote_asset
		FROM symbols WHERE venue = ? AND symbol = ?`, venue, symbol).
		Scan(&sym.Venue, &sym.Symbol, &sym.BaseAsset, &sym.QuoteAsset)
	if err != nil {
		return models.Symbol{}, err
	}
	return sym, nil
}

// CandleExists reports whether a price point is already stored.
func CandleExists(ctx context.Context, db *sql.DB, symbol, interval string, t time.Time) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM price_history
		WHERE symbol = ? AND interval = ? AND time = ?`,
		symbol, interval, t.UTC().Format(TimeLayout)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking candle %s %s: %w", symbol, interval, err)
	}
	return n > 0, nil
}

// StoreCandles inserts the price points that are not stored yet and returns
// the number inserted.
func StoreCandles(ctx context.Context, db *sql.DB, candles []models.Candle) (int, error) {
	inserted := 0
	for _, c := range candles {
		res, err := db.ExecContext(ctx, `INSERT INTO price_history (symbol, interval, time, price, source)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(symbol, interval, time) DO NOTHING`,
			c.Symbol, c.Interval, c.Time.UTC().Format(TimeLayout), c.Price, c.Source)
		if err != nil {
			return inserted, fmt.Errorf("inserting candle %s %s: %w", c.Symbol, c.Interval, err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			inserted++
		}
	}
	return inserted, nil
}

// StoreTransfers inserts deposit/withdrawal records, skipping rows whose
// native id was already stored for the partition and kind. Returns the number
// inserted.
func StoreTransfers(ctx context.Context, db *sql.DB, transfers []models.Transfer) (int, error) {
	inserted := 0
	for _, tr := range transfers {
		kind := strings.ToLower(tr.Kind)
		res, err := db.ExecContext(ctx, `INSERT INTO transfers
			(exchange, user, kind, native_id, asset, amount, status, tx_id, utc_time)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(exchange, user, kind, native_id) DO NOTHING`,
			tr.Exchange, tr.User, kind, tr.NativeID, tr.Asset, tr.Amount, tr.Status, tr.TxID,
			tr.UTCTime.UTC().Format(TimeLayout))
		if err != nil {
			return inserted, fmt.Errorf("inserting %s %s: %w", kind, tr.NativeID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			inserted++
		}
	}
	return inserted, nil
}
