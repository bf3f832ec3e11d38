package app

import (
	"testing"
	"time"
)

func TestScoreEntryBestCase(t *testing.T) {
	q := ScoreEntry(ScoreInput{
		Amount:           dec("2000"),
		WinRate:          85,
		HasWinRate:       true,
		EntryPrice:       0.30,
		HasEntryPrice:    true,
		Liquidity:        dec("50000"),
		HasLiquidity:     true,
		TimeToResolution: 6 * time.Hour,
		HasResolution:    true,
	})

	// 25 + 25 + 25 + 15 + 10 = 100
	if q.Score != 100 {
		t.Errorf("score = %d, want 100", q.Score)
	}
	if q.PositionPct != 30 {
		t.Errorf("position = %d%%, want 30%%", q.PositionPct)
	}
	if len(q.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", q.Warnings)
	}
}

func TestScoreEntryClampedAtZero(t *testing.T) {
	q := ScoreEntry(ScoreInput{
		Amount:           dec("50"),   // +5
		EntryPrice:       0.90,        // -20
		HasEntryPrice:    true,
		Liquidity:        dec("500"),  // -10
		HasLiquidity:     true,
		TimeToResolution: 60 * 24 * time.Hour, // -5
		HasResolution:    true,
	})

	if q.Score != 0 {
		t.Errorf("score = %d, want 0 (clamped)", q.Score)
	}
	if q.PositionPct != 0 {
		t.Errorf("position = %d%%, want skip", q.PositionPct)
	}
}

func TestScoreEntryDeterministic(t *testing.T) {
	in := ScoreInput{
		Amount:        dec("750"),
		WinRate:       65,
		HasWinRate:    true,
		EntryPrice:    0.50,
		HasEntryPrice: true,
	}

	a := ScoreEntry(in)
	b := ScoreEntry(in)
	if a.Score != b.Score || a.PositionPct != b.PositionPct {
		t.Errorf("scoring not deterministic: %+v vs %+v", a, b)
	}
}

func TestScoreEntryMissingInputsWarn(t *testing.T) {
	q := ScoreEntry(ScoreInput{Amount: dec("1500")})

	// Only the bet size contributes.
	if q.Score != 25 {
		t.Errorf("score = %d, want 25", q.Score)
	}
	if len(q.Warnings) != 4 {
		t.Errorf("expected 4 warnings for 4 missing inputs, got %v", q.Warnings)
	}
}

func TestScoreEntryZeroContributionIsNotAWarning(t *testing.T) {
	// A 70% entry price contributes 0 points but is known, so no warning.
	q := ScoreEntry(ScoreInput{
		Amount:        dec("100"),
		EntryPrice:    0.70,
		HasEntryPrice: true,
	})

	for _, w := range q.Warnings {
		if w == "entry price unknown" {
			t.Error("known entry price should not warn")
		}
	}
	if q.Score != 10 {
		t.Errorf("score = %d, want 10", q.Score)
	}
}

func TestScoreEntryBetSizeTiers(t *testing.T) {
	cases := []struct {
		amount string
		want   int
	}{
		{"1000", 25},
		{"999", 20},
		{"500", 20},
		{"499", 15},
		{"200", 15},
		{"150", 10},
		{"100", 10},
		{"99", 5},
		{"0", 5},
	}

	for _, tc := range cases {
		q := ScoreEntry(ScoreInput{Amount: dec(tc.amount)})
		if q.Score != tc.want {
			t.Errorf("amount %s: score = %d, want %d", tc.amount, q.Score, tc.want)
		}
	}
}

func TestScoreEntryPriceTiers(t *testing.T) {
	cases := []struct {
		price float64
		want  int
	}{
		{0.39, 25},
		{0.40, 15},
		{0.54, 15},
		{0.55, 5},
		{0.64, 5},
		{0.65, 0},
		{0.74, 0},
		{0.75, -20},
		{0.95, -20},
	}

	for _, tc := range cases {
		// Amount 0 contributes the +5 floor; subtract it to isolate price.
		q := ScoreEntry(ScoreInput{EntryPrice: tc.price, HasEntryPrice: true})
		got := q.Score - 5
		want := tc.want
		if want < -5 {
			// Clamp floor: 5 + (-20) = -15 -> 0.
			if q.Score != 0 {
				t.Errorf("price %.2f: score = %d, want 0 (clamped)", tc.price, q.Score)
			}
			continue
		}
		if got != want {
			t.Errorf("price %.2f: contribution = %d, want %d", tc.price, got, want)
		}
	}
}

func TestScoreEntryPositionSizing(t *testing.T) {
	cases := []struct {
		score int
		want  int
	}{
		{100, 30},
		{80, 30},
		{79, 20},
		{65, 20},
		{64, 10},
		{50, 10},
		{49, 5},
		{35, 5},
		{34, 0},
		{0, 0},
	}

	for _, tc := range cases {
		got := 0
		for _, tier := range positionTiers {
			if tc.score >= tier.minScore {
				got = tier.pct
				break
			}
		}
		if got != tc.want {
			t.Errorf("score %d: position = %d%%, want %d%%", tc.score, got, tc.want)
		}
	}
}
