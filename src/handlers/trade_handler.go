package handlers

import (
	"net/http"

	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/logger"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/model"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/utils"
)

type TradeHandler struct {
	store *model.TradeStore
}

func NewTradeHandler(store *model.TradeStore) *TradeHandler {
	return &TradeHandler{store: store}
}

// HandleListTrades returns every trade in one (user, exchange) partition,
// ordered by time.
func (h *TradeHandler) HandleListTrades(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	exchange := query.Get("exchange")
	user := query.Get("user")
	if exchange == "" || user == "" {
		utils.SendJSONError(w, "exchange and user are required", http.StatusBadRequest)
		return
	}
	trades, err := h.store.TradesForPartition(r.Context(), exchange, user)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list trades", "exchange", exchange, "user", user, "error", err)
		utils.SendJSONError(w, "failed to list trades", http.StatusInternalServerError)
		return
	}
	utils.SendJSONResponse(w, map[string]any{"count": len(trades), "trades": trades}, http.StatusOK)
}
