package session

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/klash/wager-engine/internal/ledger"
	"github.com/klash/wager-engine/internal/limits"
	"github.com/klash/wager-engine/internal/model"
)

// Handlers exposes the orchestrator over HTTP.
type Handlers struct {
	orc *Orchestrator
}

// NewHandlers creates the HTTP handler set.
func NewHandlers(orc *Orchestrator) *Handlers {
	return &Handlers{orc: orc}
}

// CreateMarketRequest is the JSON body for POST /api/v1/markets.
type CreateMarketRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	SideA       string `json:"side_a"`
	SideB       string `json:"side_b"`
	Category    string `json:"category"`
}

// JoinRequest is the JSON body for POST /api/v1/markets/{marketID}/join.
type JoinRequest struct {
	WalletAddress string          `json:"wallet_address"`
	Side          int             `json:"side"`
	Amount        decimal.Decimal `json:"amount"`
}

// MarketResponse is a market with its session (null before first join).
type MarketResponse struct {
	model.Market
	Session *model.Session `json:"session"`
}

// CreateMarket handles POST /api/v1/markets.
func (h *Handlers) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req CreateMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Title == "" || req.SideA == "" || req.SideB == "" {
		writeError(w, "title, side_a, and side_b are required", http.StatusBadRequest)
		return
	}

	market, err := h.orc.CreateMarket(r.Context(), req.Title, req.Description, req.SideA, req.SideB, req.Category)
	if err != nil {
		writeError(w, "failed to create market", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, market)
}

// ListMarkets handles GET /api/v1/markets.
func (h *Handlers) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := h.orc.ListMarkets(r.Context())
	if err != nil {
		writeError(w, "failed to list markets", http.StatusInternalServerError)
		return
	}
	if markets == nil {
		markets = []model.Market{}
	}
	writeJSON(w, http.StatusOK, markets)
}

// GetMarket handles GET /api/v1/markets/{marketID}.
func (h *Handlers) GetMarket(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")

	market, sess, err := h.orc.GetMarket(r.Context(), marketID)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, MarketResponse{Market: *market, Session: sess})
}

// JoinMarket handles POST /api/v1/markets/{marketID}/join.
func (h *Handlers) JoinMarket(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")

	var req JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.WalletAddress == "" {
		writeError(w, "wallet_address is required", http.StatusBadRequest)
		return
	}

	sess, err := h.orc.JoinMarket(r.Context(), marketID, req.WalletAddress, req.Side, req.Amount)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

// GetPortfolio handles GET /api/v1/portfolio/{wallet}.
func (h *Handlers) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	wallet := chi.URLParam(r, "wallet")

	entries, err := h.orc.Portfolio(r.Context(), wallet)
	if err != nil {
		writeError(w, "failed to load portfolio", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// statusFor maps orchestrator errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrMarketNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidSide), errors.Is(err, ErrInvalidStake):
		return http.StatusBadRequest
	case errors.Is(err, ErrMarketNotJoinable),
		errors.Is(err, ErrSessionFull),
		errors.Is(err, ErrSideTaken),
		errors.Is(err, ErrUnsupportedMode),
		errors.Is(err, limits.ErrStakeTooLarge),
		errors.Is(err, limits.ErrWalletExposureExceeded):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrTxFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
