package app

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"predictwatch/clients/predictapi"
	"predictwatch/config"
	"predictwatch/internal/models"
	"predictwatch/internal/storage"
)

// MarketInfoProvider supplies upstream market metadata. Implemented by the
// predictapi client; detectors degrade when it returns nil or errors.
type MarketInfoProvider interface {
	MarketInfo(ctx context.Context, marketID string) (*predictapi.Market, error)
}

// WhaleDetector flags single trades at or above the whale threshold.
type WhaleDetector struct {
	logger      *zap.Logger
	repo        storage.Repository
	walletStats *WalletStatsProvider
	marketStats *MarketStatsProvider
	markets     MarketInfoProvider
	now         func() time.Time
}

func NewWhaleDetector(logger *zap.Logger, repo storage.Repository, walletStats *WalletStatsProvider, marketStats *MarketStatsProvider, markets MarketInfoProvider) *WhaleDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WhaleDetector{
		logger:      logger,
		repo:        repo,
		walletStats: walletStats,
		marketStats: marketStats,
		markets:     markets,
		now:         time.Now,
	}
}

func (d *WhaleDetector) Name() string { return "whale" }

func (d *WhaleDetector) Evaluate(ctx context.Context, batch []TradeEvent, cfg *config.Config) ([]AlertCandidate, error) {
	threshold := decimal.NewFromFloat(cfg.Detection.WhaleThreshold)
	var out []AlertCandidate

	for _, ev := range batch {
		if ev.Wallet == "" || ev.MarketID == "" {
			continue
		}
		if ev.Amount.LessThan(threshold) {
			continue
		}

		// A near-identical whale alert inside the dedup window means this
		// is the same position being re-reported, not a new whale.
		since := d.now().Add(-cfg.Detection.WhaleDedupWindow)
		seen, err := d.repo.HasWhaleAlertSince(ctx, ev.MarketID, ev.Wallet, ev.Amount, since)
		if err != nil {
			d.logger.Warn("whale dedup check failed", zap.Error(err))
		} else if seen {
			continue
		}

		candidate := d.buildCandidate(ctx, ev, cfg)
		out = append(out, candidate)
	}

	return out, nil
}

func (d *WhaleDetector) buildCandidate(ctx context.Context, ev TradeEvent, cfg *config.Config) AlertCandidate {
	input := ScoreInput{Amount: ev.Amount}
	detail := map[string]any{
		"threshold": cfg.Detection.WhaleThreshold,
	}

	stats, err := d.walletStats.Stats(ctx, ev.Wallet)
	if err != nil {
		d.logger.Warn("wallet stats unavailable",
			zap.String("wallet", ev.Wallet),
			zap.Error(err),
		)
	} else {
		input.WinRate = stats.WinRate
		input.HasWinRate = true
		detail["wallet_win_rate"] = stats.WinRate
		detail["wallet_win_rate_estimated"] = stats.Estimated
		detail["wallet_total_bets"] = stats.TotalBets
	}

	var market *predictapi.Market
	if d.markets != nil {
		market, err = d.markets.MarketInfo(ctx, ev.MarketID)
		if err != nil {
			d.logger.Warn("market metadata unavailable",
				zap.String("market", ev.MarketID),
				zap.Error(err),
			)
			market = nil
		}
	}

	if price, ok := entryPrice(ev, market); ok {
		input.EntryPrice = price
		input.HasEntryPrice = true
	}

	if market != nil && market.Volume24h != nil {
		input.Liquidity = decimal.NewFromFloat(*market.Volume24h)
		input.HasLiquidity = true
	} else if activity, err := d.marketStats.Activity(ctx, ev.MarketID); err == nil && activity.TradeCount > 0 {
		input.Liquidity = activity.Volume
		input.HasLiquidity = true
	}

	if market != nil && market.ResolutionDate != nil {
		input.TimeToResolution = market.ResolutionDate.Sub(d.now())
		input.HasResolution = true
	}

	quality := ScoreEntry(input)
	detail["quality"] = quality

	title := ""
	if market != nil {
		title = market.Title
	}

	amountFloat, _ := ev.Amount.Float64()
	detail["amount"] = amountFloat

	return AlertCandidate{
		Kind:      models.AlertKindWhale,
		MarketID:  ev.MarketID,
		Market:    title,
		Wallet:    ev.Wallet,
		Side:      ev.Side,
		Amount:    ev.Amount,
		Price:     ev.Price,
		Quality:   &quality,
		Detail:    detail,
		DedupKey:  dedupKey(models.AlertKindWhale, ev.MarketID, ev.Wallet, ev.Amount, ev.ExecutedAt),
		LogOnly:   quality.Score < cfg.Detection.MinQualityScore,
		Timestamp: ev.ExecutedAt,
	}
}

// entryPrice resolves the implied probability bought: the trade's own price
// when present, otherwise the market's yes price flipped for NO bets.
func entryPrice(ev TradeEvent, market *predictapi.Market) (float64, bool) {
	if ev.Price.Valid {
		p, _ := ev.Price.Decimal.Float64()
		if p > 0 && p < 1 {
			return p, true
		}
	}
	if market != nil && market.YesPrice != nil {
		p := *market.YesPrice
		if ev.Side == SideNo {
			p = 1 - p
		}
		if p > 0 && p < 1 {
			return p, true
		}
	}
	return 0, false
}
