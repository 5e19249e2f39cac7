package billing

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mireilabs/velora/backend/internal/service/billing"
	"github.com/mireilabs/velora/backend/pkg/utils"
)

// Handler serves credit balances and top-ups.
type Handler struct {
	accounts billing.Accounts
}

func New(accounts billing.Accounts) *Handler {
	return &Handler{accounts: accounts}
}

// RegisterRoutes mounts the credit routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/credits/{userID}", h.handleBalance)
	r.Post("/credits/{userID}/topup", h.handleTopup)
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	balance, err := h.accounts.Balance(r.Context(), userID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to read balance")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"userId": userID, "balance": balance})
}

type topupRequest struct {
	Units int64 `json:"units"`
}

func (h *Handler) handleTopup(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req topupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Units <= 0 {
		utils.RespondError(w, http.StatusBadRequest, "units must be a positive integer")
		return
	}

	if err := h.accounts.Topup(r.Context(), userID, req.Units); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "topup failed")
		return
	}

	balance, err := h.accounts.Balance(r.Context(), userID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to read balance")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"userId": userID, "balance": balance})
}
