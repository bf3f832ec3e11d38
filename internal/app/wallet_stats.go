package app

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"predictwatch/internal/storage"
)

// WalletStats summarizes a wallet's ledger history for the detectors.
type WalletStats struct {
	Wallet      string
	TotalBets   int64
	TotalVolume decimal.Decimal
	Wins        int64
	Losses      int64

	// WinRate is a percentage. Estimated is true when no settlements exist
	// and the volume-tier heuristic was used instead.
	WinRate   float64
	Estimated bool
}

// winRateTiers is the fallback estimate applied when a wallet has no
// settled positions, ordered highest volume first.
var winRateTiers = []struct {
	minVolume decimal.Decimal
	rate      float64
}{
	{decimal.NewFromInt(5000), 75},
	{decimal.NewFromInt(2000), 65},
	{decimal.NewFromInt(500), 55},
}

func estimatedWinRate(volume decimal.Decimal) float64 {
	for _, tier := range winRateTiers {
		if volume.GreaterThan(tier.minVolume) {
			return tier.rate
		}
	}
	return 0
}

type cachedWalletStats struct {
	stats     WalletStats
	fetchedAt time.Time
}

// WalletStatsProvider computes wallet stats from the repository with a TTL
// cache. On repository errors a stale cache entry is served rather than
// failing the detector.
type WalletStatsProvider struct {
	logger *zap.Logger
	repo   storage.Repository
	ttl    time.Duration

	mu    sync.Mutex
	cache map[string]cachedWalletStats
}

func NewWalletStatsProvider(logger *zap.Logger, repo storage.Repository, ttl time.Duration) *WalletStatsProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &WalletStatsProvider{
		logger: logger,
		repo:   repo,
		ttl:    ttl,
		cache:  make(map[string]cachedWalletStats),
	}
}

// Stats returns stats for a wallet, cached for the TTL.
func (p *WalletStatsProvider) Stats(ctx context.Context, wallet string) (WalletStats, error) {
	p.mu.Lock()
	entry, ok := p.cache[wallet]
	p.mu.Unlock()

	if ok && time.Since(entry.fetchedAt) < p.ttl {
		return entry.stats, nil
	}

	stats, err := p.fetch(ctx, wallet)
	if err != nil {
		if ok {
			p.logger.Warn("serving stale wallet stats",
				zap.String("wallet", wallet),
				zap.Error(err),
			)
			return entry.stats, nil
		}
		return WalletStats{}, err
	}

	p.mu.Lock()
	p.cache[wallet] = cachedWalletStats{stats: stats, fetchedAt: time.Now()}
	p.mu.Unlock()

	return stats, nil
}

func (p *WalletStatsProvider) fetch(ctx context.Context, wallet string) (WalletStats, error) {
	agg, err := p.repo.WalletAggregate(ctx, wallet)
	if err != nil {
		return WalletStats{}, err
	}

	settled, err := p.repo.WalletSettlements(ctx, wallet)
	if err != nil {
		return WalletStats{}, err
	}

	stats := WalletStats{
		Wallet:      wallet,
		TotalBets:   agg.TotalBets,
		TotalVolume: agg.TotalVolume,
		Wins:        settled.Wins,
		Losses:      settled.Losses,
	}

	if total := settled.Wins + settled.Losses; total > 0 {
		stats.WinRate = float64(settled.Wins) / float64(total) * 100
	} else {
		stats.WinRate = estimatedWinRate(agg.TotalVolume)
		stats.Estimated = true
	}

	return stats, nil
}

// Invalidate drops a wallet's cache entry. Used after recording a
// settlement so the next read reflects it.
func (p *WalletStatsProvider) Invalidate(wallet string) {
	p.mu.Lock()
	delete(p.cache, wallet)
	p.mu.Unlock()
}
