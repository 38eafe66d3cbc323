package handlers

import (
	"net/http"

	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/services"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/utils"
)

type NbpHandler struct {
	nbpService services.NbpService
}

func NewNbpHandler(service services.NbpService) *NbpHandler {
	return &NbpHandler{nbpService: service}
}

func (h *NbpHandler) rateParams(r *http.Request) (table, code, startDate, endDate string) {
	query := r.URL.Query()
	table = query.Get("table")
	if table == "" {
		table = "a"
	}
	code = query.Get("code")
	if code == "" {
		code = "eur"
	}
	return table, code, query.Get("start_date"), query.Get("end_date")
}

// HandleGetRates fetches reference rates from the NBP API without storing.
func (h *NbpHandler) HandleGetRates(w http.ResponseWriter, r *http.Request) {
	table, code, startDate, endDate := h.rateParams(r)
	rates, err := h.nbpService.FetchRates(r.Context(), table, code, startDate, endDate)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSONResponse(w, map[string]any{"count": len(rates), "rates": rates}, http.StatusOK)
}

// HandleStoreRates fetches reference rates and stores the ones not stored yet.
func (h *NbpHandler) HandleStoreRates(w http.ResponseWriter, r *http.Request) {
	table, code, startDate, endDate := h.rateParams(r)
	rates, err := h.nbpService.FetchRates(r.Context(), table, code, startDate, endDate)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	saved, err := h.nbpService.StoreRates(r.Context(), rates)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSONResponse(w, map[string]any{"fetched": len(rates), "saved": saved}, http.StatusOK)
}
