// Package api provides the HTTP handlers for placing orders, querying
// portfolios, and running evaluation passes.
//
// All monetary values use shopspring/decimal, never float64 for money.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/tickersim/trade-engine/internal/engine"
	"github.com/tickersim/trade-engine/internal/feed"
	"github.com/tickersim/trade-engine/internal/ledger"
	"github.com/tickersim/trade-engine/internal/metrics"
	"github.com/tickersim/trade-engine/internal/model"
	"github.com/tickersim/trade-engine/internal/store"
	"github.com/tickersim/trade-engine/internal/valuation"
)

// Service wires the engine and price feed into HTTP handlers. Pass nil
// for hub if WebSocket broadcasting is not needed.
type Service struct {
	engine *engine.Engine
	feed   feed.Quoter
	wsHub  *WSHub
}

// NewService creates a new API service.
func NewService(e *engine.Engine, quoter feed.Quoter, hub *WSHub) *Service {
	return &Service{
		engine: e,
		feed:   quoter,
		wsHub:  hub,
	}
}

// Routes mounts every handler on a chi router.
func (s *Service) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/orders", s.PlaceOrder)
		r.Get("/orders", s.ListOrders)
		r.Delete("/orders/{orderID}", s.CancelOrder)
		r.Delete("/orders", s.CancelBySymbol)
		r.Post("/evaluate", s.Evaluate)
		r.Get("/portfolio/{userID}", s.GetPortfolio)
		r.Get("/leaderboard", s.GetLeaderboard)
		r.Get("/movers", s.GetMovers)
		if s.wsHub != nil {
			r.Get("/ws", s.wsHub.HandleWS)
		}

		r.Route("/admin", func(r chi.Router) {
			r.Get("/users", s.AdminListUsers)
			r.Get("/users/{userID}", s.AdminUserInfo)
			r.Post("/users/{userID}/reset", s.AdminResetUser)
			r.Post("/users/{userID}/balance", s.AdminSetBalance)
			r.Delete("/users/{userID}/orders", s.AdminClearOrders)
			r.Delete("/users/{userID}", s.AdminDeleteUser)
		})
	})
}

// PlaceOrder handles POST /api/v1/orders.
type placeResponse struct {
	Order model.Order      `json:"order"`
	Fill  *model.FillEvent `json:"fill,omitempty"`
}

func (s *Service) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req engine.PlaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	order, fill, err := s.engine.Place(r.Context(), req)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	metrics.OrdersPlaced.WithLabelValues(string(order.Kind)).Inc()
	if fill != nil {
		metrics.OrdersFilled.WithLabelValues(string(order.Kind)).Inc()
		s.broadcastFill(*fill)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(placeResponse{Order: order, Fill: fill})
}

// ListOrders handles GET /api/v1/orders?user=<id>.
func (s *Service) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		writeError(w, "user query parameter is required", http.StatusBadRequest)
		return
	}

	orders, err := s.engine.Orders(r.Context(), userID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(orders)
}

// CancelOrder handles DELETE /api/v1/orders/{orderID}?user=<id>.
func (s *Service) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	userID := r.URL.Query().Get("user")
	if userID == "" {
		writeError(w, "user query parameter is required", http.StatusBadRequest)
		return
	}

	order, err := s.engine.Cancel(r.Context(), userID, orderID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(order)
}

// CancelBySymbol handles DELETE /api/v1/orders?user=<id>&symbol=<sym>.
func (s *Service) CancelBySymbol(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	symbol := r.URL.Query().Get("symbol")
	if userID == "" || symbol == "" {
		writeError(w, "user and symbol query parameters are required", http.StatusBadRequest)
		return
	}

	n, err := s.engine.CancelSymbol(r.Context(), userID, symbol)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"cancelled": n})
}

// Evaluate handles POST /api/v1/evaluate: one on-demand evaluation pass
// using current quotes for every tracked symbol.
func (s *Service) Evaluate(w http.ResponseWriter, r *http.Request) {
	fills := s.RunEvaluation(r.Context())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"fills": fills,
	})
}

// RunEvaluation fetches quotes for tracked symbols, runs one pass, and
// broadcasts the resulting fills. The periodic ticker and the HTTP
// endpoint share it.
func (s *Service) RunEvaluation(ctx context.Context) []model.FillEvent {
	start := time.Now()
	quotes := s.currentQuotes(ctx, s.engine.Symbols())
	fills := s.engine.EvaluateAll(ctx, quotes)
	metrics.EvaluationDuration.Observe(time.Since(start).Seconds())

	pending := 0
	for _, snap := range s.engine.Snapshots() {
		for _, o := range snap.Orders {
			if o.Status == model.StatusPending {
				pending++
			}
		}
	}
	metrics.PendingOrders.Set(float64(pending))

	if fills == nil {
		fills = []model.FillEvent{}
	}
	for _, fill := range fills {
		metrics.OrdersFilled.WithLabelValues(string(fill.Kind)).Inc()
		s.broadcastFill(fill)
	}
	return fills
}

// GetPortfolio handles GET /api/v1/portfolio/{userID}.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	snap, err := s.engine.Snapshot(userID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	symbols := make([]string, 0, len(snap.Account.Holdings))
	for sym := range snap.Account.Holdings {
		symbols = append(symbols, sym)
	}
	quotes := s.currentQuotes(r.Context(), symbols)
	portfolio := valuation.Value(snap.Account, quotes)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(portfolio)
}

// GetLeaderboard handles GET /api/v1/leaderboard?limit=<n>.
func (s *Service) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	snaps := s.engine.Snapshots()
	quotes := s.currentQuotes(r.Context(), s.engine.Symbols())

	entries := valuation.Rank(snaps, quotes)
	if limit := queryInt(r, "limit"); limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// GetMovers handles GET /api/v1/movers?limit=<n>.
func (s *Service) GetMovers(w http.ResponseWriter, r *http.Request) {
	quotes := s.currentQuotes(r.Context(), s.trackedSymbols())
	limit := queryInt(r, "limit")
	if limit <= 0 {
		limit = 10
	}

	movers := valuation.TopMovers(quotes, limit)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(movers)
}

// --- Admin handlers ---

func (s *Service) AdminListUsers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.engine.Users(r.Context()))
}

func (s *Service) AdminUserInfo(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	snap, err := s.engine.Snapshot(userID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

func (s *Service) AdminResetUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := s.engine.ResetUser(r.Context(), userID); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setBalanceRequest struct {
	Balance decimal.Decimal `json:"balance"`
}

func (s *Service) AdminSetBalance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req setBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.engine.SetBalance(r.Context(), userID, req.Balance); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) AdminClearOrders(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	n, err := s.engine.ClearOrders(r.Context(), userID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"cleared": n})
}

func (s *Service) AdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := s.engine.DeleteUser(r.Context(), userID); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

// currentQuotes fetches quotes for the given symbols, skipping any that
// fail. Valuation and evaluation both treat a missing quote as "wait".
func (s *Service) currentQuotes(ctx context.Context, symbols []string) map[string]model.Quote {
	quotes := make(map[string]model.Quote, len(symbols))
	for _, sym := range symbols {
		q, err := s.feed.GetQuote(ctx, sym)
		if err != nil {
			metrics.QuoteFailures.Inc()
			slog.Warn("quote unavailable", "symbol", sym, "error", err)
			continue
		}
		quotes[sym] = q
	}
	return quotes
}

// trackedSymbols merges the feed's symbol universe with everything the
// engine references.
func (s *Service) trackedSymbols() []string {
	type lister interface{ Symbols() []string }

	set := make(map[string]struct{})
	if l, ok := s.feed.(lister); ok {
		for _, sym := range l.Symbols() {
			set[sym] = struct{}{}
		}
	}
	for _, sym := range s.engine.Symbols() {
		set[sym] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for sym := range set {
		out = append(out, sym)
	}
	return out
}

func (s *Service) broadcastFill(fill model.FillEvent) {
	if s.wsHub == nil {
		return
	}
	s.wsHub.Broadcast(WSMessage{
		Type:     "order_filled",
		OrderID:  fill.OrderID,
		UserID:   fill.UserID,
		Symbol:   fill.Symbol,
		Side:     string(fill.Side),
		Kind:     string(fill.Kind),
		Quantity: strconv.FormatInt(fill.Quantity, 10),
		Price:    fill.Price.String(),
	})
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

// writeEngineError maps engine and store sentinels onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidOrder):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrUserNotFound), errors.Is(err, engine.ErrOrderNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, engine.ErrAlreadyResolved),
		errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrInsufficientShares),
		errors.Is(err, ledger.ErrInvalidAmount):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, feed.ErrQuoteUnavailable):
		writeError(w, err.Error(), http.StatusServiceUnavailable)
	default:
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
