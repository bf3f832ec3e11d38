package app

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"predictwatch/config"
	"predictwatch/internal/models"
)

// VolumeSpikeDetector compares each market's batch volume against its
// trailing snapshot average. After evaluation the batch totals are recorded
// as the current hour's snapshot, so the baseline builds itself.
type VolumeSpikeDetector struct {
	logger      *zap.Logger
	marketStats *MarketStatsProvider
	markets     MarketInfoProvider
	now         func() time.Time
}

func NewVolumeSpikeDetector(logger *zap.Logger, marketStats *MarketStatsProvider, markets MarketInfoProvider) *VolumeSpikeDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VolumeSpikeDetector{
		logger:      logger,
		marketStats: marketStats,
		markets:     markets,
		now:         time.Now,
	}
}

func (d *VolumeSpikeDetector) Name() string { return "volume_spike" }

type marketBucket struct {
	volume    decimal.Decimal
	yesVolume decimal.Decimal
	noVolume  decimal.Decimal
	count     int64
	latest    time.Time
}

func (d *VolumeSpikeDetector) Evaluate(ctx context.Context, batch []TradeEvent, cfg *config.Config) ([]AlertCandidate, error) {
	buckets := make(map[string]*marketBucket)
	for _, ev := range batch {
		if ev.MarketID == "" {
			continue
		}
		b, ok := buckets[ev.MarketID]
		if !ok {
			b = &marketBucket{
				volume:    decimal.Zero,
				yesVolume: decimal.Zero,
				noVolume:  decimal.Zero,
			}
			buckets[ev.MarketID] = b
		}
		b.volume = b.volume.Add(ev.Amount)
		b.count++
		switch ev.Side {
		case SideYes:
			b.yesVolume = b.yesVolume.Add(ev.Amount)
		case SideNo:
			b.noVolume = b.noVolume.Add(ev.Amount)
		}
		if ev.ExecutedAt.After(b.latest) {
			b.latest = ev.ExecutedAt
		}
	}

	ratio := decimal.NewFromFloat(cfg.Detection.SpikeRatio)
	var marketIDs []string
	for id := range buckets {
		marketIDs = append(marketIDs, id)
	}
	sort.Strings(marketIDs)

	var out []AlertCandidate
	for _, marketID := range marketIDs {
		b := buckets[marketID]

		avg, err := d.marketStats.AverageVolume(ctx, marketID, cfg.Detection.SpikeAverageHours)
		if err != nil {
			d.logger.Warn("spike baseline unavailable",
				zap.String("market", marketID),
				zap.Error(err),
			)
		} else if avg.IsPositive() && b.volume.GreaterThanOrEqual(avg.Mul(ratio)) {
			out = append(out, d.buildCandidate(ctx, marketID, b, avg))
		}

		// Record after comparing so a spike is measured against history,
		// not against itself.
		if err := d.marketStats.RecordSnapshot(ctx, marketID, b.volume, b.yesVolume, b.noVolume, b.count); err != nil {
			d.logger.Warn("snapshot record failed",
				zap.String("market", marketID),
				zap.Error(err),
			)
		}
	}

	return out, nil
}

func (d *VolumeSpikeDetector) buildCandidate(ctx context.Context, marketID string, b *marketBucket, avg decimal.Decimal) AlertCandidate {
	dominant := SideNo
	if b.yesVolume.GreaterThan(b.noVolume) {
		dominant = SideYes
	}

	dominantPct := 0.0
	if sided := b.yesVolume.Add(b.noVolume); sided.IsPositive() {
		share := b.noVolume
		if dominant == SideYes {
			share = b.yesVolume
		}
		dominantPct, _ = share.Mul(decimal.NewFromInt(100)).Div(sided).Float64()
	}

	title := ""
	if d.markets != nil {
		if m, err := d.markets.MarketInfo(ctx, marketID); err == nil && m != nil {
			title = m.Title
		}
	}

	spikeRatio, _ := b.volume.Div(avg).Float64()
	volumeFloat, _ := b.volume.Float64()
	avgFloat, _ := avg.Float64()

	return AlertCandidate{
		Kind:     models.AlertKindVolumeSpike,
		MarketID: marketID,
		Market:   title,
		Side:     dominant,
		Amount:   b.volume,
		Detail: map[string]any{
			"current_volume":  volumeFloat,
			"average_volume":  avgFloat,
			"spike_ratio":     spikeRatio,
			"trade_count":     b.count,
			"dominant_side":   string(dominant),
			"side_percentage": dominantPct,
		},
		DedupKey:  dedupKey(models.AlertKindVolumeSpike, marketID, string(dominant), b.volume, b.latest),
		Timestamp: b.latest,
	}
}
