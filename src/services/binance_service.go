package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/patrickmn/go-cache"

	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/errs"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/exchanges/binance"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/logger"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/model"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/models"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/parsers"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/reconcile"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/utils"
)

type binanceServiceImpl struct {
	client       *binance.Client
	db           *sql.DB
	store        *model.TradeStore
	engine       *reconcile.Engine
	summaryCache *cache.Cache
}

func NewBinanceService(client *binance.Client, db *sql.DB, store *model.TradeStore, engine *reconcile.Engine, summaryCache *cache.Cache) BinanceService {
	return &binanceServiceImpl{
		client:       client,
		db:           db,
		store:        store,
		engine:       engine,
		summaryCache: summaryCache,
	}
}

func (s *binanceServiceImpl) reconcileTrades(ctx context.Context, user string, trades []models.Trade) (*reconcile.Result, error) {
	if _, err := model.UpsertUser(ctx, s.db, user); err != nil {
		return nil, err
	}
	if _, err := model.UpsertExchange(ctx, s.db, binance.Exchange); err != nil {
		return nil, err
	}
	result, err := s.engine.Reconcile(ctx, binance.Exchange, user, trades)
	if err != nil {
		return nil, err
	}
	s.summaryCache.Set(fmt.Sprintf(ckLatestSummary, binance.Exchange, user), result, cache.DefaultExpiration)
	return result, nil
}

func (s *binanceServiceImpl) LatestSummary(user string) (*reconcile.Result, bool) {
	if cached, found := s.summaryCache.Get(fmt.Sprintf(ckLatestSummary, binance.Exchange, user)); found {
		return cached.(*reconcile.Result), true
	}
	return nil, false
}

// FetchAndStoreTrades fetches the account trades of one symbol in the date
// range and reconciles them into the ledger. The symbol's base/quote split
// must already be stored; UpdateSymbols populates it.
func (s *binanceServiceImpl) FetchAndStoreTrades(ctx context.Context, user, symbol, startDate, endDate string) (*reconcile.Result, error) {
	sym, err := model.GetSymbol(ctx, s.db, binance.Exchange, symbol)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrSymbolUnknown, symbol)
		}
		return nil, err
	}
	startMs, err := utils.MillisFromString(startDate)
	if err != nil {
		return nil, errs.New(binance.Exchange, errs.CodeInvalid, errs.WithMessage(err.Error()))
	}
	endMs, err := utils.MillisFromString(endDate)
	if err != nil {
		return nil, errs.New(binance.Exchange, errs.CodeInvalid, errs.WithMessage(err.Error()))
	}
	raw, err := s.client.MyTrades(ctx, symbol, startMs, endMs)
	if err != nil {
		return nil, err
	}
	return s.reconcileTrades(ctx, user, binance.NormalizeTrades(raw, sym, user))
}

// ImportCSV parses an exported trade file (timestamps already UTC) and
// reconciles it into the ledger for the given user.
func (s *binanceServiceImpl) ImportCSV(ctx context.Context, file io.Reader, user string) (*reconcile.Result, error) {
	parser, err := parsers.GetParser("binance", nil)
	if err != nil {
		return nil, err
	}
	trades, err := parser.Parse(file)
	if err != nil {
		logger.FromContext(ctx).Warn("Binance CSV import failed", "user", user, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}
	for i := range trades {
		trades[i].User = user
	}
	return s.reconcileTrades(ctx, user, trades)
}

// UpdateSymbols refreshes the stored trading-pair metadata from the
// exchangeInfo endpoint.
func (s *binanceServiceImpl) UpdateSymbols(ctx context.Context) (int, error) {
	symbols, err := s.client.Symbols(ctx)
	if err != nil {
		return 0, err
	}
	return model.UpsertSymbols(ctx, s.db, symbols)
}

// BackfillPrices walks candlestick history backwards from endDate and stores
// the price points that are not stored yet.
func (s *binanceServiceImpl) BackfillPrices(ctx context.Context, symbol, interval, endDate string, batchSize, maxPages int) (int, error) {
	endMs, err := utils.MillisFromString(endDate)
	if err != nil {
		return 0, errs.New(binance.Exchange, errs.CodeInvalid, errs.WithMessage(err.Error()))
	}
	candles, err := s.client.KlinesDescending(ctx, symbol, interval, endMs, batchSize, maxPages)
	if err != nil {
		return 0, err
	}
	stored, err := model.StoreCandles(ctx, s.db, candles)
	if err != nil {
		return stored, err
	}
	logger.FromContext(ctx).Info("Backfilled prices", "symbol", symbol, "interval", interval,
		"fetched", len(candles), "stored", stored)
	return stored, nil
}

func (s *binanceServiceImpl) SyncDeposits(ctx context.Context, user, asset, earliestDate, latestDate string) (int, error) {
	earliest, err := utils.DateFromString(earliestDate)
	if err != nil {
		return 0, errs.New(binance.Exchange, errs.CodeInvalid, errs.WithMessage(err.Error()))
	}
	latest, err := utils.DateFromString(latestDate)
	if err != nil {
		return 0, errs.New(binance.Exchange, errs.CodeInvalid, errs.WithMessage(err.Error()))
	}
	transfers, err := s.client.AllDeposits(ctx, user, asset, earliest, latest)
	if err != nil {
		return 0, err
	}
	return model.StoreTransfers(ctx, s.db, transfers)
}

func (s *binanceServiceImpl) SyncWithdrawals(ctx context.Context, user, asset, earliestDate, latestDate string) (int, error) {
	earliest, err := utils.DateFromString(earliestDate)
	if err != nil {
		return 0, errs.New(binance.Exchange, errs.CodeInvalid, errs.WithMessage(err.Error()))
	}
	latest, err := utils.DateFromString(latestDate)
	if err != nil {
		return 0, errs.New(binance.Exchange, errs.CodeInvalid, errs.WithMessage(err.Error()))
	}
	transfers, err := s.client.AllWithdrawals(ctx, user, asset, earliest, latest)
	if err != nil {
		return 0, err
	}
	return model.StoreTransfers(ctx, s.db, transfers)
}
