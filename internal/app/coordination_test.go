package app

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"predictwatch/clients/predictapi"
	"predictwatch/config"
	"predictwatch/internal/models"
)

func seedGroupTrades(t *testing.T, repo *stubRepo, market, side string, wallets int, each string, at time.Time) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < wallets; i++ {
		trade := &models.Trade{
			Identity:   fmt.Sprintf("%s-%s-%d-%d", market, side, i, at.UnixNano()),
			MarketID:   market,
			Wallet:     fmt.Sprintf("0xw%02d", i),
			Side:       side,
			Amount:     dec(each),
			ExecutedAt: at,
		}
		if _, err := repo.InsertTrade(ctx, trade); err != nil {
			t.Fatal(err)
		}
	}
}

func newCoordDetector(repo *stubRepo, markets MarketInfoProvider, now time.Time) *CoordinationDetector {
	d := NewCoordinationDetector(zap.NewNop(), repo, markets)
	d.now = func() time.Time { return now }
	return d
}

// batchFor marks a (market, side) group as touched by the current cycle.
func batchFor(market string, side Side, at time.Time) []TradeEvent {
	return []TradeEvent{{
		Identity:   "batch-" + market,
		MarketID:   market,
		Wallet:     "0xw00",
		Side:       side,
		Amount:     dec("100"),
		ExecutedAt: at,
	}}
}

func fastMarkets(market string) *stubMarkets {
	return &stubMarkets{markets: map[string]*predictapi.Market{
		market: {ID: market, Title: "Will it happen today?"},
	}}
}

func TestCoordinationFiresAtThresholds(t *testing.T) {
	now := time.Now()
	repo := newStubRepo()
	seedGroupTrades(t, repo, "mkt-1", "YES", 5, "100", now.Add(-time.Minute))

	d := newCoordDetector(repo, fastMarkets("mkt-1"), now)
	out, err := d.Evaluate(context.Background(), batchFor("mkt-1", SideYes, now), config.Defaults())
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("candidates = %d, want 1", len(out))
	}

	c := out[0]
	if c.Kind != models.AlertKindCoordinated {
		t.Errorf("kind = %q", c.Kind)
	}
	if c.Side != SideYes {
		t.Errorf("side = %q", c.Side)
	}
	if !c.Amount.Equal(dec("500")) {
		t.Errorf("combined amount = %s, want 500", c.Amount)
	}
	if c.Detail["wallet_count"] != 5 {
		t.Errorf("wallet count = %v", c.Detail["wallet_count"])
	}
}

func TestCoordinationTooFewWallets(t *testing.T) {
	now := time.Now()
	repo := newStubRepo()
	seedGroupTrades(t, repo, "mkt-1", "YES", 4, "150", now.Add(-time.Minute))

	d := newCoordDetector(repo, fastMarkets("mkt-1"), now)
	out, err := d.Evaluate(context.Background(), batchFor("mkt-1", SideYes, now), config.Defaults())
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Fatalf("4 wallets at $600 should not alert, got %d", len(out))
	}
}

func TestCoordinationBelowCombinedFloor(t *testing.T) {
	now := time.Now()
	repo := newStubRepo()
	seedGroupTrades(t, repo, "mkt-1", "YES", 5, "99.80", now.Add(-time.Minute))

	d := newCoordDetector(repo, fastMarkets("mkt-1"), now)
	out, err := d.Evaluate(context.Background(), batchFor("mkt-1", SideYes, now), config.Defaults())
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Fatalf("$499 combined should not alert, got %d", len(out))
	}
}

func TestCoordinationWindowExcludesOldTrades(t *testing.T) {
	now := time.Now()
	repo := newStubRepo()
	// Three wallets inside the window, two more just outside it.
	seedGroupTrades(t, repo, "mkt-1", "YES", 3, "300", now.Add(-time.Minute))
	old := now.Add(-6 * time.Minute)
	for i := 3; i < 5; i++ {
		repo.InsertTrade(context.Background(), &models.Trade{
			Identity:   fmt.Sprintf("old-%d", i),
			MarketID:   "mkt-1",
			Wallet:     fmt.Sprintf("0xw%02d", i),
			Side:       "YES",
			Amount:     dec("300"),
			ExecutedAt: old,
		})
	}

	d := newCoordDetector(repo, fastMarkets("mkt-1"), now)
	out, err := d.Evaluate(context.Background(), batchFor("mkt-1", SideYes, now), config.Defaults())
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Fatalf("trades outside the window counted, got %d candidates", len(out))
	}
}

func TestCoordinationSidesCountSeparately(t *testing.T) {
	now := time.Now()
	repo := newStubRepo()
	// Five distinct wallets split across both sides never form one group.
	seedGroupTrades(t, repo, "mkt-1", "YES", 3, "300", now.Add(-time.Minute))
	for i := 3; i < 5; i++ {
		repo.InsertTrade(context.Background(), &models.Trade{
			Identity:   fmt.Sprintf("no-%d", i),
			MarketID:   "mkt-1",
			Wallet:     fmt.Sprintf("0xw%02d", i),
			Side:       "NO",
			Amount:     dec("300"),
			ExecutedAt: now.Add(-time.Minute),
		})
	}

	d := newCoordDetector(repo, fastMarkets("mkt-1"), now)
	out, err := d.Evaluate(context.Background(), batchFor("mkt-1", SideYes, now), config.Defaults())
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Fatalf("opposite sides merged into one group, got %d", len(out))
	}
}

func TestCoordinationUntouchedGroupStaysQuiet(t *testing.T) {
	now := time.Now()
	repo := newStubRepo()
	seedGroupTrades(t, repo, "mkt-1", "YES", 5, "200", now.Add(-time.Minute))

	d := newCoordDetector(repo, fastMarkets("mkt-1"), now)
	// The batch touches a different market entirely.
	out, err := d.Evaluate(context.Background(), batchFor("mkt-9", SideYes, now), config.Defaults())
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Fatalf("untouched group alerted, got %d", len(out))
	}
}

func TestCoordinationSlowMarketSuppressed(t *testing.T) {
	now := time.Now()
	repo := newStubRepo()
	seedGroupTrades(t, repo, "mkt-1", "YES", 5, "200", now.Add(-time.Minute))

	far := now.Add(90 * 24 * time.Hour)
	markets := &stubMarkets{markets: map[string]*predictapi.Market{
		"mkt-1": {ID: "mkt-1", Title: "Who wins the election?", ResolutionDate: &far},
	}}

	d := newCoordDetector(repo, markets, now)
	out, err := d.Evaluate(context.Background(), batchFor("mkt-1", SideYes, now), config.Defaults())
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Fatalf("far-out resolution should suppress, got %d", len(out))
	}
}

func TestCoordinationUnknownMetadataIsPermissive(t *testing.T) {
	now := time.Now()
	repo := newStubRepo()
	seedGroupTrades(t, repo, "mkt-1", "YES", 5, "200", now.Add(-time.Minute))

	cases := []struct {
		name    string
		markets MarketInfoProvider
	}{
		{"no provider", nil},
		{"metadata error", &stubMarkets{err: context.DeadlineExceeded}},
		{"unknown market", &stubMarkets{}},
		{"dateless no hint", &stubMarkets{markets: map[string]*predictapi.Market{
			"mkt-1": {ID: "mkt-1", Title: "An unremarkable question"},
		}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := newCoordDetector(repo, tc.markets, now)
			out, err := d.Evaluate(context.Background(), batchFor("mkt-1", SideYes, now), config.Defaults())
			if err != nil {
				t.Fatal(err)
			}
			if len(out) != 1 {
				t.Fatalf("candidates = %d, want 1", len(out))
			}
		})
	}
}

func TestCoordinationFastResolveTextRules(t *testing.T) {
	cases := []struct {
		text string
		fast bool
	}{
		{"Will BTC close above 100k today?", true},
		{"Temperature above 90F tomorrow in NYC", true},
		{"Resolution within 2 hours of kickoff", true},
		{"Does the bill pass this week?", true},
		{"Does the race finish under caution?", true},
		{"Who will be president in 2030?", false},
	}

	for _, tc := range cases {
		matched := false
		for _, rule := range fastResolveRules {
			if rule.pattern.MatchString(tc.text) {
				matched = true
				break
			}
		}
		if matched != tc.fast {
			t.Errorf("%q: matched = %v, want %v", tc.text, matched, tc.fast)
		}
	}
}
