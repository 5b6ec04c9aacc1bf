// Package server provides the HTTP handlers for portfolio risk metrics,
// position sizing, scenario stress tests, liquidation heatmaps, and the
// liquidation-aware trade gate.
//
// All monetary values use shopspring/decimal — never float64 for money.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quantfolio/risk-engine/internal/gate"
	"github.com/quantfolio/risk-engine/internal/liquidation"
	"github.com/quantfolio/risk-engine/internal/metrics"
	"github.com/quantfolio/risk-engine/internal/model"
	"github.com/quantfolio/risk-engine/internal/risk"
	"github.com/quantfolio/risk-engine/internal/scenario"
	"github.com/quantfolio/risk-engine/internal/store"
)

// Service wires the calculators behind the HTTP API. The store is optional:
// without it, metric computations still work but history endpoints return
// 503 and snapshots are not persisted.
type Service struct {
	calc      *risk.Calculator
	estimator *liquidation.Estimator
	store     store.Store
	wsHub     *WSHub // optional WebSocket hub for real-time broadcasts
}

// NewService creates a new risk service.
// Pass nil for st and hub to disable persistence and broadcasting.
func NewService(calc *risk.Calculator, est *liquidation.Estimator, st store.Store, hub *WSHub) *Service {
	return &Service{
		calc:      calc,
		estimator: est,
		store:     st,
		wsHub:     hub,
	}
}

// Routes mounts the service's handlers on a chi router.
func (s *Service) Routes(r chi.Router) {
	r.Post("/risk/metrics", s.CalculateMetrics)
	r.Post("/risk/size", s.RecommendSize)
	r.Post("/risk/scenarios", s.RunScenarios)
	r.Get("/risk/history/{portfolioID}", s.GetHistory)
	r.Get("/liquidation/{symbol}/heatmap", s.GetHeatmap)
	r.Get("/liquidation/{symbol}/assessment", s.GetAssessment)
	r.Post("/trade/check", s.CheckTrade)
	r.Post("/position/check", s.CheckPosition)
	if s.wsHub != nil {
		r.Get("/ws", s.wsHub.HandleWS)
	}
}

// --- Request/Response types ---

// MetricsRequest is the JSON body for POST /risk/metrics. PortfolioID is
// optional; when set and a store is configured, the result is persisted.
type MetricsRequest struct {
	PortfolioID string                  `json:"portfolio_id,omitempty"`
	Portfolio   model.PortfolioSnapshot `json:"portfolio"`
}

// MetricsResponse bundles the computed metrics with the snapshot ID when
// the result was persisted.
type MetricsResponse struct {
	SnapshotID string            `json:"snapshot_id,omitempty"`
	Metrics    model.RiskMetrics `json:"metrics"`
}

// PositionCheckRequest is the JSON body for POST /position/check.
type PositionCheckRequest struct {
	Symbol string          `json:"symbol"`
	Side   string          `json:"side"`
	Price  decimal.Decimal `json:"price"`
}

// --- HTTP Handlers ---

// CalculateMetrics handles POST /api/v1/risk/metrics
func (s *Service) CalculateMetrics(w http.ResponseWriter, r *http.Request) {
	var req MetricsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Portfolio.TotalValue.IsNegative() {
		writeError(w, "total_value must not be negative", http.StatusBadRequest)
		return
	}

	start := time.Now()
	m := s.calc.Calculate(req.Portfolio)
	metrics.CalculationLatency.Observe(time.Since(start).Seconds())
	metrics.RiskCalculationsTotal.WithLabelValues(m.Source).Inc()

	resp := MetricsResponse{Metrics: m}

	if s.store != nil && req.PortfolioID != "" {
		snap := &model.RiskSnapshot{
			ID:          uuid.New().String(),
			PortfolioID: req.PortfolioID,
			Metrics:     m,
			CreatedAt:   time.Now().UTC(),
		}
		if err := s.store.SaveRiskSnapshot(r.Context(), snap); err != nil {
			// Persistence is best-effort for this endpoint; the computed
			// metrics are still valid and returned.
			slog.Error("snapshot save failed", "portfolio", req.PortfolioID, "err", err)
		} else {
			metrics.SnapshotsSaved.Inc()
			resp.SnapshotID = snap.ID
		}
	}

	slog.Info("risk metrics computed",
		"portfolio", req.PortfolioID,
		"positions", len(req.Portfolio.Positions),
		"source", m.Source,
		"volatility", m.AnnualizedVolatility,
		"var95", m.VaR95,
	)

	writeJSON(w, http.StatusOK, resp)
}

// RecommendSize handles POST /api/v1/risk/size
func (s *Service) RecommendSize(w http.ResponseWriter, r *http.Request) {
	var in risk.SizingInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if in.PortfolioValue.LessThanOrEqual(decimal.Zero) {
		writeError(w, "portfolio_value must be positive", http.StatusBadRequest)
		return
	}
	if in.WinRate < 0 || in.WinRate > 1 {
		writeError(w, "win_rate must be in [0, 1]", http.StatusBadRequest)
		return
	}

	rec := risk.RecommendPositionSize(in)

	slog.Info("position size recommended",
		"portfolio_value", in.PortfolioValue.String(),
		"recommended_pct", rec.RecommendedPct,
	)

	writeJSON(w, http.StatusOK, rec)
}

// RunScenarios handles POST /api/v1/risk/scenarios
// Applies every built-in stress scenario to the submitted portfolio.
func (s *Service) RunScenarios(w http.ResponseWriter, r *http.Request) {
	var snap model.PortfolioSnapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	analyses := scenario.ApplyAll(snap, scenario.Builtin())
	writeJSON(w, http.StatusOK, analyses)
}

// GetHistory handles GET /api/v1/risk/history/{portfolioID}?limit=N
func (s *Service) GetHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, "history store not configured", http.StatusServiceUnavailable)
		return
	}
	portfolioID := chi.URLParam(r, "portfolioID")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	snaps, err := s.store.ListRiskSnapshots(r.Context(), portfolioID, limit)
	if err != nil {
		writeError(w, "failed to list snapshots", http.StatusInternalServerError)
		return
	}
	if snaps == nil {
		snaps = []model.RiskSnapshot{}
	}

	writeJSON(w, http.StatusOK, snaps)
}

// GetHeatmap handles GET /api/v1/liquidation/{symbol}/heatmap?price=X
func (s *Service) GetHeatmap(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	price, ok := priceParam(w, r)
	if !ok {
		return
	}

	hm := s.estimator.Heatmap(r.Context(), symbol, price)
	metrics.HeatmapsServed.WithLabelValues(hm.Source).Inc()

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:         "heatmap_update",
			Symbol:       symbol,
			CurrentPrice: price.String(),
			MagnetPrice:  hm.MagnetPrice.String(),
			DominantSide: hm.DominantSide,
			RiskScore:    hm.RiskScore,
		})
	}

	writeJSON(w, http.StatusOK, hm)
}

// GetAssessment handles GET /api/v1/liquidation/{symbol}/assessment?price=X&side=long
// Side is optional; when absent the assessment is side-agnostic.
func (s *Service) GetAssessment(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	price, ok := priceParam(w, r)
	if !ok {
		return
	}
	side := r.URL.Query().Get("side")
	if side != "" && side != model.SideLong && side != model.SideShort {
		writeError(w, "side must be long or short", http.StatusBadRequest)
		return
	}

	hm := s.estimator.Heatmap(r.Context(), symbol, price)
	assessment := gate.Assess(hm, side)

	writeJSON(w, http.StatusOK, assessment)
}

// CheckTrade handles POST /api/v1/trade/check
// Runs the submitted trade through the liquidation-aware gate.
func (s *Service) CheckTrade(w http.ResponseWriter, r *http.Request) {
	var intent model.TradeIntent
	if err := json.NewDecoder(r.Body).Decode(&intent); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if intent.Symbol == "" {
		writeError(w, "symbol is required", http.StatusBadRequest)
		return
	}
	if intent.Size.LessThanOrEqual(decimal.Zero) {
		writeError(w, "size must be positive", http.StatusBadRequest)
		return
	}
	if intent.Price.LessThanOrEqual(decimal.Zero) {
		writeError(w, "price must be positive", http.StatusBadRequest)
		return
	}

	hm := s.estimator.Heatmap(r.Context(), intent.Symbol, intent.Price)

	decision, err := gate.CheckTrade(hm, intent)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	metrics.TradeGateDecisions.WithLabelValues(gateOutcome(decision)).Inc()

	slog.Info("trade gate decision",
		"symbol", intent.Symbol,
		"side", intent.Side,
		"requested", decision.RequestedSize.String(),
		"adjusted", decision.RiskAdjustedSize.String(),
		"allowed", decision.Allowed,
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:         "gate_decision",
			Symbol:       intent.Symbol,
			Side:         intent.Side,
			Allowed:      &decision.Allowed,
			AdjustedSize: decision.RiskAdjustedSize.String(),
		})
	}

	writeJSON(w, http.StatusOK, decision)
}

// CheckPosition handles POST /api/v1/position/check
// Evaluates an open position against the current liquidation landscape.
func (s *Service) CheckPosition(w http.ResponseWriter, r *http.Request) {
	var req PositionCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Symbol == "" {
		writeError(w, "symbol is required", http.StatusBadRequest)
		return
	}
	if req.Price.LessThanOrEqual(decimal.Zero) {
		writeError(w, "price must be positive", http.StatusBadRequest)
		return
	}

	hm := s.estimator.Heatmap(r.Context(), req.Symbol, req.Price)

	analysis, err := gate.CheckPosition(hm, req.Side)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, analysis)
}

// Health handles GET /health.
func (s *Service) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- helpers ---

func gateOutcome(d model.TradeGateDecision) string {
	switch {
	case !d.Allowed:
		return "blocked"
	case d.RiskAdjustedSize.LessThan(d.RequestedSize):
		return "reduced"
	default:
		return "allowed"
	}
}

func priceParam(w http.ResponseWriter, r *http.Request) (decimal.Decimal, bool) {
	raw := r.URL.Query().Get("price")
	if raw == "" {
		writeError(w, "price query parameter is required", http.StatusBadRequest)
		return decimal.Zero, false
	}
	price, err := decimal.NewFromString(raw)
	if err != nil || price.LessThanOrEqual(decimal.Zero) {
		writeError(w, "price must be a positive number", http.StatusBadRequest)
		return decimal.Zero, false
	}
	return price, true
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
