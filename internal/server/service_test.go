package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/quantfolio/risk-engine/internal/liquidation"
	"github.com/quantfolio/risk-engine/internal/marketdata"
	"github.com/quantfolio/risk-engine/internal/model"
	"github.com/quantfolio/risk-engine/internal/risk"
	"github.com/quantfolio/risk-engine/internal/server"
	"github.com/quantfolio/risk-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// newTestEnv creates a test Service with in-memory store and chi router.
func newTestEnv(t *testing.T) (*store.MemoryStore, chi.Router) {
	t.Helper()
	ms := store.NewMemoryStore()
	est := liquidation.NewEstimator(marketdata.NoData{}, nil, liquidation.NoNoise)
	svc := server.NewService(risk.NewCalculator(), est, ms, nil)

	r := chi.NewRouter()
	r.Route("/api/v1", svc.Routes)
	r.Get("/health", svc.Health)
	return ms, r
}

func doJSON(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func testPortfolio() model.PortfolioSnapshot {
	return model.PortfolioSnapshot{
		TotalValue:  d(100000),
		CashBalance: d(40000),
		Positions: []model.Position{
			{Symbol: "BTC", Quantity: d(1), CurrentPrice: d(50000), EntryPrice: d(45000), Value: d(50000), Weight: 0.5},
			{Symbol: "ETH", Quantity: d(3), CurrentPrice: d(3000), EntryPrice: d(2800), Value: d(9000), Weight: 0.09},
		},
		Returns: []float64{0.01, -0.02, 0.005, 0.015, -0.01, 0.002, -0.004, 0.008},
	}
}

// --- Risk metrics ---

func TestCalculateMetrics_PersistsSnapshot(t *testing.T) {
	ms, router := newTestEnv(t)

	w := doJSON(t, router, "POST", "/api/v1/risk/metrics", server.MetricsRequest{
		PortfolioID: "portfolio-1",
		Portfolio:   testPortfolio(),
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp server.MetricsResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp.SnapshotID == "" {
		t.Fatal("expected snapshot_id when portfolio_id is provided")
	}
	if resp.Metrics.Source != model.SourceHistorical {
		t.Errorf("8 real returns should be labeled historical, got %q", resp.Metrics.Source)
	}
	if resp.Metrics.VaR95 < 0 {
		t.Errorf("VaR95 is a loss magnitude, got %v", resp.Metrics.VaR95)
	}

	snap, err := ms.GetRiskSnapshot(context.Background(), resp.SnapshotID)
	if err != nil {
		t.Fatalf("snapshot not persisted: %v", err)
	}
	if snap.PortfolioID != "portfolio-1" {
		t.Errorf("persisted portfolio ID = %q", snap.PortfolioID)
	}
}

func TestCalculateMetrics_NoPortfolioIDSkipsPersistence(t *testing.T) {
	ms, router := newTestEnv(t)

	w := doJSON(t, router, "POST", "/api/v1/risk/metrics", server.MetricsRequest{
		Portfolio: testPortfolio(),
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp server.MetricsResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.SnapshotID != "" {
		t.Errorf("no portfolio_id should mean no snapshot, got %q", resp.SnapshotID)
	}

	snaps, _ := ms.ListRiskSnapshots(context.Background(), "", 0)
	if len(snaps) != 0 {
		t.Errorf("store should be empty, has %d snapshots", len(snaps))
	}
}

func TestCalculateMetrics_InvalidBody(t *testing.T) {
	_, router := newTestEnv(t)

	req := httptest.NewRequest("POST", "/api/v1/risk/metrics", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", w.Code)
	}
}

// --- Position sizing ---

func TestRecommendSize_Valid(t *testing.T) {
	_, router := newTestEnv(t)

	w := doJSON(t, router, "POST", "/api/v1/risk/size", risk.SizingInput{
		WinRate:         0.55,
		AvgWin:          0.04,
		AvgLoss:         0.02,
		AssetVolatility: 0.05,
		PortfolioValue:  d(100000),
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var rec model.PositionSizeRecommendation
	json.Unmarshal(w.Body.Bytes(), &rec)

	if rec.RecommendedPct < 1 || rec.RecommendedPct > 25 {
		t.Errorf("recommended pct %v outside [1, 25]", rec.RecommendedPct)
	}
	if len(rec.Reasoning) == 0 {
		t.Error("reasoning trail is a required output")
	}
}

func TestRecommendSize_Invalid(t *testing.T) {
	_, router := newTestEnv(t)

	cases := []struct {
		name string
		in   risk.SizingInput
	}{
		{"zero portfolio value", risk.SizingInput{WinRate: 0.5}},
		{"win rate above 1", risk.SizingInput{WinRate: 1.5, PortfolioValue: d(1000)}},
		{"negative win rate", risk.SizingInput{WinRate: -0.1, PortfolioValue: d(1000)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, router, "POST", "/api/v1/risk/size", tc.in)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", w.Code)
			}
		})
	}
}

// --- Scenarios ---

func TestRunScenarios_AllBuiltin(t *testing.T) {
	_, router := newTestEnv(t)

	w := doJSON(t, router, "POST", "/api/v1/risk/scenarios", testPortfolio())
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var analyses []model.ScenarioAnalysis
	json.Unmarshal(w.Body.Bytes(), &analyses)

	if len(analyses) != 6 {
		t.Fatalf("expected 6 built-in scenarios, got %d", len(analyses))
	}
	for _, a := range analyses {
		if a.Name == "" {
			t.Error("scenario missing name")
		}
		if a.ProjectedDrawdown < 0 {
			t.Errorf("%s: projected drawdown must be non-negative, got %v", a.Name, a.ProjectedDrawdown)
		}
	}
}

// --- History ---

func TestGetHistory_ReturnsNewestFirst(t *testing.T) {
	_, router := newTestEnv(t)

	for i := 0; i < 3; i++ {
		w := doJSON(t, router, "POST", "/api/v1/risk/metrics", server.MetricsRequest{
			PortfolioID: "portfolio-1",
			Portfolio:   testPortfolio(),
		})
		if w.Code != http.StatusOK {
			t.Fatalf("metrics %d: %d %s", i, w.Code, w.Body.String())
		}
	}

	w := doJSON(t, router, "GET", "/api/v1/risk/history/portfolio-1?limit=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var snaps []model.RiskSnapshot
	json.Unmarshal(w.Body.Bytes(), &snaps)
	if len(snaps) != 2 {
		t.Errorf("limit=2 should return 2 snapshots, got %d", len(snaps))
	}
}

func TestGetHistory_InvalidLimit(t *testing.T) {
	_, router := newTestEnv(t)

	w := doJSON(t, router, "GET", "/api/v1/risk/history/portfolio-1?limit=abc", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", w.Code)
	}
}

func TestGetHistory_NoStore(t *testing.T) {
	est := liquidation.NewEstimator(marketdata.NoData{}, nil, liquidation.NoNoise)
	svc := server.NewService(risk.NewCalculator(), est, nil, nil)
	r := chi.NewRouter()
	r.Route("/api/v1", svc.Routes)

	w := doJSON(t, r, "GET", "/api/v1/risk/history/portfolio-1", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without a store, got %d", w.Code)
	}
}

// --- Liquidation heatmap ---

func TestGetHeatmap_FullGrid(t *testing.T) {
	_, router := newTestEnv(t)

	w := doJSON(t, router, "GET", "/api/v1/liquidation/XRP/heatmap?price=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var hm model.LiquidationHeatmapData
	json.Unmarshal(w.Body.Bytes(), &hm)

	if hm.Symbol != "XRP" {
		t.Errorf("symbol = %q", hm.Symbol)
	}
	if len(hm.Levels) != 61 {
		t.Errorf("expected 61 levels, got %d", len(hm.Levels))
	}
	if hm.Source != model.SourceEstimated {
		t.Errorf("no provider means estimated, got %q", hm.Source)
	}
}

func TestGetHeatmap_MissingPrice(t *testing.T) {
	_, router := newTestEnv(t)

	w := doJSON(t, router, "GET", "/api/v1/liquidation/XRP/heatmap", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without price, got %d", w.Code)
	}

	w = doJSON(t, router, "GET", "/api/v1/liquidation/XRP/heatmap?price=-3", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for negative price, got %d", w.Code)
	}
}

func TestGetAssessment_WithSide(t *testing.T) {
	_, router := newTestEnv(t)

	w := doJSON(t, router, "GET", "/api/v1/liquidation/BTC/assessment?price=50000&side=long", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var a model.LiquidationRiskAssessment
	json.Unmarshal(w.Body.Bytes(), &a)

	if a.RiskLevel == "" {
		t.Error("assessment missing risk level")
	}
	if a.SuggestedStopLoss.IsZero() {
		t.Error("expected a suggested stop loss")
	}
}

func TestGetAssessment_BadSide(t *testing.T) {
	_, router := newTestEnv(t)

	w := doJSON(t, router, "GET", "/api/v1/liquidation/BTC/assessment?price=50000&side=sideways", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad side, got %d", w.Code)
	}
}

// --- Trade gate ---

func TestCheckTrade_HighRiskHalved(t *testing.T) {
	_, router := newTestEnv(t)

	w := doJSON(t, router, "POST", "/api/v1/trade/check", model.TradeIntent{
		Symbol: "BTC",
		Side:   model.SideLong,
		Size:   d(10000),
		Price:  d(50000),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var dec model.TradeGateDecision
	json.Unmarshal(w.Body.Bytes(), &dec)

	if !dec.Allowed {
		t.Fatalf("trade should be allowed, blocked: %s", dec.BlockReason)
	}
	// The estimated heatmap's nearest significant long cluster is the
	// boosted level 5% below price, so the high-risk cut halves the size;
	// the opposing-zone cap agrees.
	if !dec.RiskAdjustedSize.Equal(d(5000)) {
		t.Errorf("adjusted size = %s, want 5000", dec.RiskAdjustedSize)
	}
	if len(dec.Warnings) == 0 {
		t.Error("a reduced trade should carry warnings")
	}
}

func TestCheckTrade_Invalid(t *testing.T) {
	_, router := newTestEnv(t)

	cases := []struct {
		name   string
		intent model.TradeIntent
	}{
		{"missing symbol", model.TradeIntent{Side: model.SideLong, Size: d(100), Price: d(10)}},
		{"zero size", model.TradeIntent{Symbol: "BTC", Side: model.SideLong, Price: d(10)}},
		{"zero price", model.TradeIntent{Symbol: "BTC", Side: model.SideLong, Size: d(100)}},
		{"bad side", model.TradeIntent{Symbol: "BTC", Side: "diagonal", Size: d(100), Price: d(10)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, router, "POST", "/api/v1/trade/check", tc.intent)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

// --- Position check ---

func TestCheckPosition_HighRiskHolds(t *testing.T) {
	_, router := newTestEnv(t)

	w := doJSON(t, router, "POST", "/api/v1/position/check", server.PositionCheckRequest{
		Symbol: "ETH",
		Side:   model.SideShort,
		Price:  d(3000),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var a model.PositionLiquidationAnalysis
	json.Unmarshal(w.Body.Bytes(), &a)

	if a.ShouldExit {
		t.Error("a 5% zone distance is high risk; exit fires only in the danger band")
	}
	if a.RiskLevel != model.RiskHigh {
		t.Errorf("risk level = %q, want high", a.RiskLevel)
	}
	// The 3% and 4% levels fall below half the major zone's value, so the
	// nearest cluster that counts is the boosted level at 5%.
	if a.DistanceToDanger != 5 {
		t.Errorf("nearest significant cluster sits 5%% away, got %v", a.DistanceToDanger)
	}
}

func TestCheckPosition_Invalid(t *testing.T) {
	_, router := newTestEnv(t)

	w := doJSON(t, router, "POST", "/api/v1/position/check", server.PositionCheckRequest{
		Symbol: "ETH",
		Side:   model.SideLong,
		Price:  decimal.Zero,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for zero price, got %d", w.Code)
	}
}

// --- Health ---

func TestHealth(t *testing.T) {
	_, router := newTestEnv(t)

	w := doJSON(t, router, "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
