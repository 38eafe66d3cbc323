package handlers

import (
	"net/http"
	"strings"

	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/config"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/logger"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/services"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/utils"
)

type KangaHandler struct {
	kangaService services.KangaService
}

func NewKangaHandler(service services.KangaService) *KangaHandler {
	return &KangaHandler{kangaService: service}
}

func (h *KangaHandler) HandleBalances(w http.ResponseWriter, r *http.Request) {
	wallets, err := h.kangaService.Balances(r.Context())
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSONResponse(w, map[string]any{"wallet": wallets}, http.StatusOK)
}

func (h *KangaHandler) HandleMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := h.kangaService.Markets(r.Context())
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSONResponse(w, markets, http.StatusOK)
}

func (h *KangaHandler) HandleSyncTickers(w http.ResponseWriter, r *http.Request) {
	stored, err := h.kangaService.SyncTickers(r.Context())
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSONResponse(w, map[string]any{"stored": stored}, http.StatusOK)
}

func (h *KangaHandler) HandleUser(w http.ResponseWriter, r *http.Request) {
	utils.SendJSONResponse(w, map[string]string{"user": h.kangaService.User()}, http.StatusOK)
}

// HandleFetchRange fetches and reconciles trades for an explicit ISO-8601
// time range.
func (h *KangaHandler) HandleFetchRange(w http.ResponseWriter, r *http.Request) {
	startTime := r.URL.Query().Get("start_time")
	endTime := r.URL.Query().Get("end_time")
	if startTime == "" || endTime == "" {
		utils.SendJSONError(w, "start_time and end_time are required", http.StatusBadRequest)
		return
	}
	result, err := h.kangaService.FetchAndStoreRange(r.Context(), startTime, endTime)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSONResponse(w, result, http.StatusOK)
}

// HandleFetchDate fetches and reconciles trades for one calendar day.
func (h *KangaHandler) HandleFetchDate(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		utils.SendJSONError(w, "date is required (YYYY-MM-DD)", http.StatusBadRequest)
		return
	}
	result, err := h.kangaService.FetchAndStoreDate(r.Context(), date)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSONResponse(w, result, http.StatusOK)
}

// HandleFetchPeriod fetches and reconciles trades for a date range.
func (h *KangaHandler) HandleFetchPeriod(w http.ResponseWriter, r *http.Request) {
	startDate := r.URL.Query().Get("start_date")
	endDate := r.URL.Query().Get("end_date")
	if startDate == "" || endDate == "" {
		utils.SendJSONError(w, "start_date and end_date are required (YYYY-MM-DD)", http.StatusBadRequest)
		return
	}
	result, err := h.kangaService.FetchAndStorePeriod(r.Context(), startDate, endDate)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSONResponse(w, result, http.StatusOK)
}

func (h *KangaHandler) HandleLatestSummary(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		user = h.kangaService.User()
	}
	result, found := h.kangaService.LatestSummary(user)
	if !found {
		utils.SendJSONError(w, "no summary cached for user", http.StatusNotFound)
		return
	}
	utils.SendJSONResponse(w, result, http.StatusOK)
}

// HandleUploadCSV imports an exported trade file for the given user,
// interpreting timestamps in the given timezone.
func (h *KangaHandler) HandleUploadCSV(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	user := r.URL.Query().Get("user")
	if user == "" {
		utils.SendJSONError(w, "user is required", http.StatusBadRequest)
		return
	}
	timezone := r.URL.Query().Get("timezone")
	if timezone == "" {
		timezone = "Europe/Warsaw"
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

	log.Info("Processing Kanga CSV upload", "user", user, "filename", fileHeader.Filename, "size", fileHeader.Size)
	result, err := h.kangaService.ImportCSV(r.Context(), file, user, timezone)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSONResponse(w, result, http.StatusOK)
}
