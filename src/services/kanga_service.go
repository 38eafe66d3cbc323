package services

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"
	"github.com/patrickmn/go-cache"

	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/exchanges/kanga"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/logger"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/model"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/models"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/parsers"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/reconcile"
)

type kangaServiceImpl struct {
	client       *kanga.Client
	db           *sql.DB
	store        *model.TradeStore
	engine       *reconcile.Engine
	summaryCache *cache.Cache
}

func NewKangaService(client *kanga.Client, db *sql.DB, store *model.TradeStore, engine *reconcile.Engine, summaryCache *cache.Cache) KangaService {
	return &kangaServiceImpl{
		client:       client,
		db:           db,
		store:        store,
		engine:       engine,
		summaryCache: summaryCache,
	}
}

func (s *kangaServiceImpl) User() string { return s.client.User() }

// reconcileTrades registers the partition entities, runs the engine and
// caches the resulting summary.
func (s *kangaServiceImpl) reconcileTrades(ctx context.Context, user string, trades []models.Trade) (*reconcile.Result, error) {
	if _, err := model.UpsertUser(ctx, s.db, user); err != nil {
		return nil, err
	}
	if _, err := model.UpsertExchange(ctx, s.db, kanga.Exchange); err != nil {
		return nil, err
	}
	result, err := s.engine.Reconcile(ctx, kanga.Exchange, user, trades)
	if err != nil {
		return nil, err
	}
	s.summaryCache.Set(fmt.Sprintf(ckLatestSummary, kanga.Exchange, user), result, cache.DefaultExpiration)
	return result, nil
}

func (s *kangaServiceImpl) LatestSummary(user string) (*reconcile.Result, bool) {
	if cached, found := s.summaryCache.Get(fmt.Sprintf(ckLatestSummary, kanga.Exchange, user)); found {
		return cached.(*reconcile.Result), true
	}
	return nil, false
}

// FetchAndStoreRange fetches one transaction history page for an explicit
// ISO-8601 time range and reconciles it into the ledger.
func (s *kangaServiceImpl) FetchAndStoreRange(ctx context.Context, startTime, endTime string) (*reconcile.Result, error) {
	page, err := s.client.TransactionHistory(ctx, startTime, endTime)
	if err != nil {
		return nil, err
	}
	trades, err := kanga.ParsePage(page, s.client.User())
	if err != nil {
		return nil, err
	}
	return s.reconcileTrades(ctx, s.client.User(), trades)
}

// FetchAndStoreDate fetches one calendar day, sentinel rows included, and
// reconciles it into the ledger.
func (s *kangaServiceImpl) FetchAndStoreDate(ctx context.Context, date string) (*reconcile.Result, error) {
	day, err := s.client.TradesForDate(ctx, s.store, date)
	if err != nil {
		return nil, err
	}
	return s.reconcileTrades(ctx, s.client.User(), day.Trades)
}

// FetchAndStorePeriod walks the date range day by day and reconciles
// whatever was fetched, including partial results after a rate-limit stop.
func (s *kangaServiceImpl) FetchAndStorePeriod(ctx context.Context, startDate, endDate string) (*reconcile.Result, error) {
	trades, err := s.client.TradesForPeriod(ctx, s.store, startDate, endDate)
	if err != nil {
		return nil, err
	}
	return s.reconcileTrades(ctx, s.client.User(), trades)
}

// ImportCSV parses an exported trade file in the given local timezone and
// reconciles it into the ledger for the given user.
func (s *kangaServiceImpl) ImportCSV(ctx context.Context, file io.Reader, user, timezone string) (*reconcile.Result, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTimezone, timezone)
	}
	parser, err := parsers.GetParser("kanga", loc)
	if err != nil {
		return nil, err
	}
	trades, err := parser.Parse(file)
	if err != nil {
		logger.FromContext(ctx).Warn("Kanga CSV import failed", "user", user, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}
	for i := range trades {
		trades[i].User = user
	}
	return s.reconcileTrades(ctx, user, trades)
}

func (s *kangaServiceImpl) Balances(ctx context.Context) (json.RawMessage, error) {
	return s.client.WalletList(ctx)
}

func (s *kangaServiceImpl) Markets(ctx context.Context) (json.RawMessage, error) {
	return s.client.MarketList(ctx)
}

// SyncTickers fetches the market ticker list and stores each market as a
// trading pair. Kanga market names are BASE-QUOTE.
func (s *kangaServiceImpl) SyncTickers(ctx context.Context) (int, error) {
	names, err := s.client.MarketTickers(ctx)
	if err != nil {
		return 0, err
	}
	symbols := make([]models.Symbol, 0, len(names))
	for _, name := range names {
		sym := models.Symbol{Venue: kanga.Exchange, Symbol: name}
		if base, quote, ok := splitMarket(name); ok {
			sym.BaseAsset, sym.QuoteAsset = base, quote
		}
		symbols = append(symbols, sym)
	}
	return model.UpsertSymbols(ctx, s.db, symbols)
}

func splitMarket(name string) (string, string, bool) {
	for i := range name {
		if name[i] == '-' {
			return name[:i], name[i+1:], true
		}
	}
	return "", "", false
}
