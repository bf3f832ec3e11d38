package app

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ScoreInput carries everything the entry-quality scorer considers. Each
// Has* flag distinguishes a missing input (warning, zero contribution)
// from a genuine zero value.
type ScoreInput struct {
	Amount decimal.Decimal

	WinRate    float64
	HasWinRate bool

	// EntryPrice is the implied probability being bought, 0..1.
	EntryPrice    float64
	HasEntryPrice bool

	// Liquidity is the market's 24h volume.
	Liquidity    decimal.Decimal
	HasLiquidity bool

	TimeToResolution time.Duration
	HasResolution    bool
}

// QualityScore is the deterministic scoring verdict.
type QualityScore struct {
	Score       int      `json:"score"`
	Reasons     []string `json:"reasons"`
	Warnings    []string `json:"warnings,omitempty"`
	PositionPct int      `json:"position_pct"`
}

type scoreTier struct {
	min    decimal.Decimal
	points int
	label  string
}

// Ordered largest threshold first; first match wins.
var betSizeTiers = []scoreTier{
	{decimal.NewFromInt(1000), 25, "bet >= $1000"},
	{decimal.NewFromInt(500), 20, "bet >= $500"},
	{decimal.NewFromInt(200), 15, "bet >= $200"},
	{decimal.NewFromInt(100), 10, "bet >= $100"},
}

const betSizeFloorPoints = 5

var winRateScoreTiers = []struct {
	min    float64
	points int
	label  string
}{
	{80, 25, "win rate >= 80%"},
	{70, 20, "win rate >= 70%"},
	{60, 10, "win rate >= 60%"},
}

// entryPriceTiers are ordered lowest ceiling first; first ceiling the price
// falls under wins. Prices at or above the last ceiling are penalized.
var entryPriceTiers = []struct {
	below  float64
	points int
	label  string
}{
	{0.40, 25, "entry below 40%"},
	{0.55, 15, "entry below 55%"},
	{0.65, 5, "entry below 65%"},
	{0.75, 0, "entry below 75%"},
}

const entryPricePenalty = -20

var liquidityTiers = []scoreTier{
	{decimal.NewFromInt(20000), 15, "liquidity >= $20k"},
	{decimal.NewFromInt(5000), 10, "liquidity >= $5k"},
	{decimal.NewFromInt(2000), 5, "liquidity >= $2k"},
}

const liquidityPenalty = -10

var resolutionTiers = []struct {
	within time.Duration
	points int
	label  string
}{
	{24 * time.Hour, 10, "resolves within 1d"},
	{3 * 24 * time.Hour, 5, "resolves within 3d"},
	{14 * 24 * time.Hour, 0, "resolves within 14d"},
}

const resolutionPenalty = -5

// positionTiers map a score to a suggested position size percentage.
var positionTiers = []struct {
	minScore int
	pct      int
}{
	{80, 30},
	{65, 20},
	{50, 10},
	{35, 5},
}

// ScoreEntry computes the entry-quality score. Deterministic: the same
// input always yields the same verdict.
func ScoreEntry(in ScoreInput) QualityScore {
	q := QualityScore{}
	total := 0

	// Bet size.
	sized := false
	for _, tier := range betSizeTiers {
		if in.Amount.GreaterThanOrEqual(tier.min) {
			total += tier.points
			q.Reasons = append(q.Reasons, tier.label)
			sized = true
			break
		}
	}
	if !sized {
		total += betSizeFloorPoints
		q.Reasons = append(q.Reasons, "small bet")
	}

	// Wallet win rate.
	if in.HasWinRate {
		for _, tier := range winRateScoreTiers {
			if in.WinRate >= tier.min {
				total += tier.points
				q.Reasons = append(q.Reasons, tier.label)
				break
			}
		}
	} else {
		q.Warnings = append(q.Warnings, "wallet win rate unknown")
	}

	// Entry price.
	if in.HasEntryPrice {
		matched := false
		for _, tier := range entryPriceTiers {
			if in.EntryPrice < tier.below {
				total += tier.points
				if tier.points != 0 {
					q.Reasons = append(q.Reasons, tier.label)
				}
				matched = true
				break
			}
		}
		if !matched {
			total += entryPricePenalty
			q.Reasons = append(q.Reasons, fmt.Sprintf("chasing at %.0f%%", in.EntryPrice*100))
		}
	} else {
		q.Warnings = append(q.Warnings, "entry price unknown")
	}

	// Liquidity.
	if in.HasLiquidity {
		matched := false
		for _, tier := range liquidityTiers {
			if in.Liquidity.GreaterThanOrEqual(tier.min) {
				total += tier.points
				q.Reasons = append(q.Reasons, tier.label)
				matched = true
				break
			}
		}
		if !matched {
			total += liquidityPenalty
			q.Reasons = append(q.Reasons, "thin market")
		}
	} else {
		q.Warnings = append(q.Warnings, "market liquidity unknown")
	}

	// Time to resolution.
	if in.HasResolution {
		matched := false
		for _, tier := range resolutionTiers {
			if in.TimeToResolution <= tier.within {
				total += tier.points
				if tier.points != 0 {
					q.Reasons = append(q.Reasons, tier.label)
				}
				matched = true
				break
			}
		}
		if !matched {
			total += resolutionPenalty
			q.Reasons = append(q.Reasons, "distant resolution")
		}
	} else {
		q.Warnings = append(q.Warnings, "resolution date unknown")
	}

	// Clamp to [0, 100].
	if total < 0 {
		total = 0
	}
	if total > 100 {
		total = 100
	}
	q.Score = total

	for _, tier := range positionTiers {
		if q.Score >= tier.minScore {
			q.PositionPct = tier.pct
			break
		}
	}

	return q
}
