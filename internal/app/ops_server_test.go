package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"predictwatch/config"
	"predictwatch/internal/models"
)

func newOpsFixture(t *testing.T) (*OpsServer, *stubRepo, *config.LiveConfig) {
	t.Helper()
	repo := newStubRepo()
	live := config.NewLiveConfig(config.Defaults())
	settings := config.NewSettingsManager(zap.NewNop(), repo, live)
	tracked := NewTrackedWallets(zap.NewNop(), repo)
	dedup := NewDedupLedger(zap.NewNop(), repo, time.Hour)
	walletStats := NewWalletStatsProvider(zap.NewNop(), repo, time.Minute)

	s := NewOpsServer(zap.NewNop(), repo, live, settings, tracked, dedup, walletStats, &LoopStats{})
	return s, repo, live
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestOpsHealthz(t *testing.T) {
	s, _, _ := newOpsFixture(t)
	w := doJSON(t, s.router(), http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestOpsStats(t *testing.T) {
	s, repo, _ := newOpsFixture(t)
	repo.InsertAlert(context.Background(), &models.Alert{
		Kind:     models.AlertKindWhale,
		MarketID: "mkt-1",
		DedupKey: "k1",
	})

	w := doJSON(t, s.router(), http.MethodGet, "/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		Data struct {
			Alerts map[string]int64 `json:"alerts_24h"`
			Paused bool             `json:"paused"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Data.Alerts[models.AlertKindWhale] != 1 {
		t.Errorf("whale count = %d", resp.Data.Alerts[models.AlertKindWhale])
	}
	if resp.Data.Paused {
		t.Error("paused should default false")
	}
}

func TestOpsSettingsRoundTrip(t *testing.T) {
	s, repo, live := newOpsFixture(t)
	r := s.router()

	w := doJSON(t, r, http.MethodPost, "/settings", map[string]any{
		"detection": map[string]any{
			"whale_threshold":     2500,
			"whale_dedup_window":  int64(time.Hour),
			"min_quality_score":   40,
			"coord_wallets":       6,
			"coord_window":        int64(5 * time.Minute),
			"coord_min_total":     500,
			"spike_ratio":         3.0,
			"spike_average_hours": 24,
		},
		"poller": map[string]any{
			"interval":      int64(30 * time.Second),
			"notify_pacing": int64(500 * time.Millisecond),
			"paused":        true,
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	cfg := live.Get()
	if cfg.Detection.WhaleThreshold != 2500 {
		t.Errorf("threshold = %v", cfg.Detection.WhaleThreshold)
	}
	if !cfg.Poller.Paused {
		t.Error("paused not applied")
	}

	// Overrides persist for the next boot.
	if raw := repo.settings["runtime_settings"]; raw == nil {
		t.Fatal("settings not persisted")
	}

	w = doJSON(t, r, http.MethodGet, "/settings", nil)
	var resp struct {
		Data config.RuntimeSettings `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Data.Detection.CoordWallets != 6 {
		t.Errorf("coord wallets = %d", resp.Data.Detection.CoordWallets)
	}
}

func TestOpsSettingsRejectsOutOfBounds(t *testing.T) {
	s, _, live := newOpsFixture(t)

	w := doJSON(t, s.router(), http.MethodPost, "/settings", map[string]any{
		"detection": map[string]any{
			"whale_threshold": 0,
		},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if live.Get().Detection.WhaleThreshold == 0 {
		t.Fatal("invalid threshold applied")
	}
}

func TestOpsTrackedLifecycle(t *testing.T) {
	s, repo, _ := newOpsFixture(t)
	r := s.router()

	w := doJSON(t, r, http.MethodPost, "/tracked", map[string]any{
		"wallet":   "0xABC",
		"nickname": "sniper",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if _, ok := repo.tracked["0xabc"]; !ok {
		t.Fatal("wallet not persisted")
	}

	w = doJSON(t, r, http.MethodDelete, "/tracked/0xabc", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if _, ok := repo.tracked["0xabc"]; ok {
		t.Fatal("wallet not deleted")
	}

	w = doJSON(t, r, http.MethodPost, "/tracked", map[string]any{"nickname": "no wallet"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing wallet accepted, status = %d", w.Code)
	}
}

func TestOpsSettlementInvalidatesStats(t *testing.T) {
	s, repo, _ := newOpsFixture(t)

	w := doJSON(t, s.router(), http.MethodPost, "/settlements", map[string]any{
		"wallet":    "0xAAA",
		"market_id": "mkt-1",
		"won":       true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(repo.settlements) != 1 {
		t.Fatalf("settlements = %d", len(repo.settlements))
	}
	if repo.settlements[0].Wallet != "0xaaa" {
		t.Errorf("wallet = %q, want lowercased", repo.settlements[0].Wallet)
	}
}

func TestOpsMarketActivity(t *testing.T) {
	s, repo, _ := newOpsFixture(t)
	repo.InsertTrade(context.Background(), &models.Trade{
		Identity:   "t1",
		MarketID:   "mkt-1",
		Wallet:     "0xaaa",
		Side:       "YES",
		Amount:     dec("120"),
		ExecutedAt: time.Now(),
	})

	w := doJSON(t, s.router(), http.MethodGet, "/stats/markets/mkt-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		Data struct {
			Volume     string `json:"volume"`
			TradeCount int64  `json:"trade_count"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Data.Volume != "120.00" || resp.Data.TradeCount != 1 {
		t.Errorf("activity = %+v", resp.Data)
	}
}

func TestOpsTopWallets(t *testing.T) {
	s, repo, _ := newOpsFixture(t)
	ctx := context.Background()
	repo.InsertTrade(ctx, &models.Trade{
		Identity: "t1", MarketID: "mkt-1", Wallet: "0xbig",
		Side: "YES", Amount: dec("6000"), ExecutedAt: time.Now(),
	})
	repo.InsertTrade(ctx, &models.Trade{
		Identity: "t2", MarketID: "mkt-1", Wallet: "0xsmall",
		Side: "YES", Amount: dec("50"), ExecutedAt: time.Now(),
	})

	w := doJSON(t, s.router(), http.MethodGet, "/stats/wallets?limit=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		Data []topWalletView `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Data) != 1 || resp.Data[0].Wallet != "0xbig" {
		t.Fatalf("top wallets = %+v", resp.Data)
	}
	if resp.Data[0].WinRate != 75 || !resp.Data[0].Estimated {
		t.Errorf("win rate = %v estimated=%v", resp.Data[0].WinRate, resp.Data[0].Estimated)
	}
}
