package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/config"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/logger"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/services"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/utils"
)

type BinanceHandler struct {
	binanceService services.BinanceService
}

func NewBinanceHandler(service services.BinanceService) *BinanceHandler {
	return &BinanceHandler{binanceService: service}
}

// HandleFetchTrades fetches and reconciles account trades for one symbol in
// an optional date range.
func (h *BinanceHandler) HandleFetchTrades(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	user := query.Get("user")
	symbol := query.Get("symbol")
	if user == "" || symbol == "" {
		utils.SendJSONError(w, "user and symbol are required", http.StatusBadRequest)
		return
	}
	result, err := h.binanceService.FetchAndStoreTrades(r.Context(), user, symbol,
		query.Get("start_date"), query.Get("end_date"))
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSONResponse(w, result, http.StatusOK)
}

func (h *BinanceHandler) HandleUpdateSymbols(w http.ResponseWriter, r *http.Request) {
	stored, err := h.binanceService.UpdateSymbols(r.Context())
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSONResponse(w, map[string]any{"stored": stored}, http.StatusOK)
}

// HandleBackfillPrices walks candlestick history backwards from end_date and
// stores the missing price points.
func (h *BinanceHandler) HandleBackfillPrices(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	symbol := query.Get("symbol")
	if symbol == "" {
		utils.SendJSONError(w, "symbol is required", http.StatusBadRequest)
		return
	}
	interval := query.Get("interval")
	if interval == "" {
		interval = "1d"
	}
	batchSize, _ := strconv.Atoi(query.Get("batch_size"))
	maxPages, _ := strconv.Atoi(query.Get("max_pages"))

	stored, err := h.binanceService.BackfillPrices(r.Context(), symbol, interval,
		query.Get("end_date"), batchSize, maxPages)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSONResponse(w, map[string]any{"stored": stored}, http.StatusOK)
}

func (h *BinanceHandler) HandleSyncDeposits(w http.ResponseWriter, r *http.Request) {
	h.syncTransfers(w, r, h.binanceService.SyncDeposits)
}

func (h *BinanceHandler) HandleSyncWithdrawals(w http.ResponseWriter, r *http.Request) {
	h.syncTransfers(w, r, h.binanceService.SyncWithdrawals)
}

func (h *BinanceHandler) syncTransfers(w http.ResponseWriter, r *http.Request,
	sync func(ctx context.Context, user, asset, earliestDate, latestDate string) (int, error)) {
	query := r.URL.Query()
	user := query.Get("user")
	if user == "" {
		utils.SendJSONError(w, "user is required", http.StatusBadRequest)
		return
	}
	stored, err := sync(r.Context(), user, query.Get("asset"),
		query.Get("earliest_date"), query.Get("latest_date"))
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSONResponse(w, map[string]any{"stored": stored}, http.StatusOK)
}

func (h *BinanceHandler) HandleLatestSummary(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		utils.SendJSONError(w, "user is required", http.StatusBadRequest)
		return
	}
	result, found := h.binanceService.LatestSummary(user)
	if !found {
		utils.SendJSONError(w, "no summary cached for user", http.StatusNotFound)
		return
	}
	utils.SendJSONResponse(w, result, http.StatusOK)
}

// HandleUploadCSV imports an exported trade file for the given user. Export
// timestamps are already UTC.
func (h *BinanceHandler) HandleUploadCSV(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	user := r.URL.Query().Get("user")
	if user == "" {
		utils.SendJSONError(w, "user is required", http.StatusBadRequest)
		return
	}
	if err := r.ParseMultipartForm(config.Cfg.MaxUploadSizeBytes); err != nil {
		log.Warn("Failed to parse multipart form or request too large", "error", err, "limit", config.Cfg.MaxUploadSizeBytes)
		utils.SendJSONError(w, "failed to parse upload or file too large", http.StatusBadRequest)
		return
	}
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		utils.SendJSONError(w, "failed to retrieve file from request, use the 'file' field", http.StatusBadRequest)
		return
	}
	defer file.Close()
	if !strings.HasSuffix(fileHeader.Filename, ".csv") {
		utils.SendJSONError(w, "only .csv files are supported", http.StatusBadRequest)
		return
	}

	log.Info("Processing Binance CSV upload", "user", user, "filename", fileHeader.Filename, "size", fileHeader.Size)
	result, err := h.binanceService.ImportCSV(r.Context(), file, user)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSONResponse(w, result, http.StatusOK)
}
