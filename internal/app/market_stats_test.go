package app

import (
	"context"
	"testing"
	"time"

	"predictwatch/internal/models"
)

func TestActivitySideBreakdown(t *testing.T) {
	repo := newStubRepo()
	ctx := context.Background()

	trades := []struct {
		side   Side
		amount string
	}{
		{SideYes, "300"},
		{SideYes, "200"},
		{SideNo, "100"},
		{SideUnknown, "50"},
	}
	for i, tr := range trades {
		if _, err := repo.InsertTrade(ctx, &models.Trade{
			Identity:   string(rune('a' + i)),
			MarketID:   "m1",
			Wallet:     "0xw",
			Side:       string(tr.side),
			Amount:     dec(tr.amount),
			ExecutedAt: time.Now(),
		}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	p := NewMarketStatsProvider(nil, repo)
	act, err := p.Activity(ctx, "m1")
	if err != nil {
		t.Fatalf("activity failed: %v", err)
	}

	if !act.Volume.Equal(dec("650")) {
		t.Errorf("volume = %s, want 650", act.Volume)
	}
	if !act.YesVolume.Equal(dec("500")) {
		t.Errorf("yes volume = %s, want 500", act.YesVolume)
	}
	if !act.NoVolume.Equal(dec("100")) {
		t.Errorf("no volume = %s, want 100", act.NoVolume)
	}
	if act.TradeCount != 4 {
		t.Errorf("trade count = %d, want 4", act.TradeCount)
	}
}

func TestRecordSnapshotIdempotentPerHour(t *testing.T) {
	repo := newStubRepo()
	p := NewMarketStatsProvider(nil, repo)
	ctx := context.Background()

	if err := p.RecordSnapshot(ctx, "m1", dec("100"), dec("60"), dec("40"), 5); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	// Same hour, new totals: overwrite, not append.
	if err := p.RecordSnapshot(ctx, "m1", dec("250"), dec("150"), dec("100"), 12); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	if len(repo.snapshots) != 1 {
		t.Fatalf("expected 1 snapshot row, got %d", len(repo.snapshots))
	}
	for _, snap := range repo.snapshots {
		if !snap.Volume.Equal(dec("250")) {
			t.Errorf("snapshot volume = %s, want 250", snap.Volume)
		}
		if snap.TradeCount != 12 {
			t.Errorf("snapshot count = %d, want 12", snap.TradeCount)
		}
	}
}

func TestAverageVolume(t *testing.T) {
	repo := newStubRepo()
	p := NewMarketStatsProvider(nil, repo)
	ctx := context.Background()

	// No snapshots: zero, no error.
	avg, err := p.AverageVolume(ctx, "m1", 24)
	if err != nil {
		t.Fatalf("average failed: %v", err)
	}
	if !avg.IsZero() {
		t.Errorf("expected zero average with no history, got %s", avg)
	}

	now := time.Now().UTC().Truncate(time.Hour)
	for i, vol := range []string{"100", "200", "300"} {
		if err := repo.UpsertVolumeSnapshot(ctx, &models.MarketVolumeSnapshot{
			MarketID:   "m1",
			HourBucket: now.Add(-time.Duration(i+1) * time.Hour),
			Volume:     dec(vol),
		}); err != nil {
			t.Fatalf("seed snapshot: %v", err)
		}
	}

	avg, err = p.AverageVolume(ctx, "m1", 24)
	if err != nil {
		t.Fatalf("average failed: %v", err)
	}
	if !avg.Equal(dec("200")) {
		t.Errorf("average = %s, want 200", avg)
	}
}
