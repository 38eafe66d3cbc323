package handlers

import (
	"database/sql"
	"net/http"

	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/logger"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/model"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/utils"
)

type UserHandler struct {
	db *sql.DB
}

func NewUserHandler(db *sql.DB) *UserHandler {
	return &UserHandler{db: db}
}

func (h *UserHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := model.GetAllUsers(r.Context(), h.db)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list users", "error", err)
		utils.SendJSONError(w, "failed to list users", http.StatusInternalServerError)
		return
	}
	utils.SendJSONResponse(w, map[string]any{"users": users}, http.StatusOK)
}

func (h *UserHandler) HandleAddUser(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		utils.SendJSONError(w, "name is required", http.StatusBadRequest)
		return
	}
	user, err := model.UpsertUser(r.Context(), h.db, name)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to upsert user", "name", name, "error", err)
		utils.SendJSONError(w, "failed to store user", http.StatusInternalServerError)
		return
	}
	utils.SendJSONResponse(w, user, http.StatusOK)
}
