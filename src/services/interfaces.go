package services

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/goccy/go-json"

	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/models"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/reconcile"
)

const (
	ckLatestSummary        = "agg_latest_summary_%s_%s"
	ckNbpRates             = "nbp_rates_%s"
	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

// Common service errors.
var (
	ErrParsingFailed   = errors.New("csv parsing failed")
	ErrSymbolUnknown   = errors.New("symbol not found, update symbols first")
	ErrInvalidTimezone = errors.New("invalid timezone")
)

// KangaService glues the Kanga client and the CSV importer to the
// reconciliation engine.
type KangaService interface {
	FetchAndStoreRange(ctx context.Context, startTime, endTime string) (*reconcile.Result, error)
	FetchAndStoreDate(ctx context.Context, date string) (*reconcile.Result, error)
	FetchAndStorePeriod(ctx context.Context, startDate, endDate string) (*reconcile.Result, error)
	ImportCSV(ctx context.Context, file io.Reader, user, timezone string) (*reconcile.Result, error)
	Balances(ctx context.Context) (json.RawMessage, error)
	Markets(ctx context.Context) (json.RawMessage, error)
	SyncTickers(ctx context.Context) (int, error)
	LatestSummary(user string) (*reconcile.Result, bool)
	User() string
}

// BinanceService glues the Binance client and the CSV importer to the
// reconciliation engine, plus the price-history and transfer supplements.
type BinanceService interface {
	FetchAndStoreTrades(ctx context.Context, user, symbol, startDate, endDate string) (*reconcile.Result, error)
	ImportCSV(ctx context.Context, file io.Reader, user string) (*reconcile.Result, error)
	UpdateSymbols(ctx context.Context) (int, error)
	BackfillPrices(ctx context.Context, symbol, interval, endDate string, batchSize, maxPages int) (int, error)
	SyncDeposits(ctx context.Context, user, asset, earliestDate, latestDate string) (int, error)
	SyncWithdrawals(ctx context.Context, user, asset, earliestDate, latestDate string) (int, error)
	LatestSummary(user string) (*reconcile.Result, bool)
}

// NbpService fetches and stores NBP currency reference rates.
type NbpService interface {
	FetchRates(ctx context.Context, table, code, startDate, endDate string) ([]models.Rate, error)
	StoreRates(ctx context.Context, rates []models.Rate) (int, error)
}
