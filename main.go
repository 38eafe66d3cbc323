package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"

	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/config"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/database"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/exchanges/binance"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/exchanges/kanga"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/handlers"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/logger"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/model"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/reconcile"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/services"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/utils"
)

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)

	logger.L.Info("CryptoPortfolioTracker backend server starting...")

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	database.RunMigrations(config.Cfg.DatabasePath)

	summaryCache := cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval)
	rateCache := cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval)

	tradeStore := model.NewTradeStore(database.DB)
	engine := reconcile.NewEngine(tradeStore)

	kangaClient := kanga.NewClient(kanga.Config{
		BaseURL:     config.Cfg.KangaBaseURL,
		APIKey:      config.Cfg.KangaAPIKey,
		APISecret:   config.Cfg.KangaAPISecret,
		User:        config.Cfg.KangaUser,
		PageLimit:   config.Cfg.KangaPageLimit,
		Pause:       config.Cfg.KangaPause,
		MaxRetries:  config.Cfg.KangaMaxRetries,
		BackoffBase: config.Cfg.KangaBackoffBase,
	})
	binanceClient := binance.NewClient(binance.Config{
		BaseURL:     config.Cfg.BinanceBaseURL,
		APIKey:      config.Cfg.BinanceAPIKey,
		APISecret:   config.Cfg.BinanceAPISecret,
		PageLimit:   config.Cfg.BinancePageLimit,
		Pause:       config.Cfg.BinancePause,
		MaxRetries:  config.Cfg.BinanceMaxRetries,
		BackoffBase: config.Cfg.BinanceBackoffBase,
	})

	kangaService := services.NewKangaService(kangaClient, database.DB, tradeStore, engine, summaryCache)
	binanceService := services.NewBinanceService(binanceClient, database.DB, tradeStore, engine, summaryCache)
	nbpService := services.NewNbpService(config.Cfg.NBPBaseURL, database.DB, rateCache)

	kangaHandler := handlers.NewKangaHandler(kangaService)
	binanceHandler := handlers.NewBinanceHandler(binanceService)
	nbpHandler := handlers.NewNbpHandler(nbpService)
	userHandler := handlers.NewUserHandler(database.DB)
	tradeHandler := handlers.NewTradeHandler(tradeStore)

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(handlers.ContextualLoggerMiddleware)
	r.Use(handlers.EnableCORS)
	r.Use(handlers.RateLimitMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.SendJSONResponse(w, map[string]string{"status": "ok"}, http.StatusOK)
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/kanga", func(r chi.Router) {
			r.Get("/balances", kangaHandler.HandleBalances)
			r.Get("/markets", kangaHandler.HandleMarkets)
			r.Post("/tickers/sync", kangaHandler.HandleSyncTickers)
			r.Get("/user", kangaHandler.HandleUser)
			r.Get("/trades/range", kangaHandler.HandleFetchRange)
			r.Get("/trades/date", kangaHandler.HandleFetchDate)
			r.Get("/trades/period", kangaHandler.HandleFetchPeriod)
			r.Get("/summary", kangaHandler.HandleLatestSummary)
			r.Post("/upload-csv", kangaHandler.HandleUploadCSV)
		})
		r.Route("/binance", func(r chi.Router) {
			r.Get("/trades", binanceHandler.HandleFetchTrades)
			r.Post("/symbols/sync", binanceHandler.HandleUpdateSymbols)
			r.Post("/prices/backfill", binanceHandler.HandleBackfillPrices)
			r.Post("/deposits/sync", binanceHandler.HandleSyncDeposits)
			r.Post("/withdrawals/sync", binanceHandler.HandleSyncWithdrawals)
			r.Get("/summary", binanceHandler.HandleLatestSummary)
			r.Post("/upload-csv", binanceHandler.HandleUploadCSV)
		})
		r.Route("/users", func(r chi.Router) {
			r.Get("/", userHandler.HandleListUsers)
			r.Post("/", userHandler.HandleAddUser)
		})
		r.Get("/trades", tradeHandler.HandleListTrades)
		r.Route("/nbp", func(r chi.Router) {
			r.Get("/rates", nbpHandler.HandleGetRates)
			r.Post("/rates/store", nbpHandler.HandleStoreRates)
		})
	})

	addr := ":" + config.Cfg.Port
	logger.L.Info("Server listening", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.L.Error("Server failed", "error", err)
	}
}
