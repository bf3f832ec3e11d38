package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"predictwatch/internal/models"
	"predictwatch/internal/storage"
)

// DedupLedger admits each trade identity at most once across restarts. The
// trades table with its unique identity index is the durable record; the
// in-memory set is only a fast path and is warmed from recent rows at boot.
type DedupLedger struct {
	logger *zap.Logger
	repo   storage.Repository

	mu     sync.Mutex
	seen   map[string]time.Time
	maxAge time.Duration
}

func NewDedupLedger(logger *zap.Logger, repo storage.Repository, maxAge time.Duration) *DedupLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &DedupLedger{
		logger: logger,
		repo:   repo,
		seen:   make(map[string]time.Time),
		maxAge: maxAge,
	}
}

// WarmUp loads recent identities so a restart does not re-admit trades the
// ledger already holds without a round trip per event.
func (d *DedupLedger) WarmUp(ctx context.Context, lookback time.Duration) error {
	identities, err := d.repo.RecentIdentities(ctx, time.Now().Add(-lookback), 0)
	if err != nil {
		return fmt.Errorf("warm dedup cache: %w", err)
	}

	now := time.Now()
	d.mu.Lock()
	for _, id := range identities {
		d.seen[id] = now
	}
	size := len(d.seen)
	d.mu.Unlock()

	d.logger.Info("dedup cache warmed", zap.Int("identities", size))
	return nil
}

// Admit returns true exactly once per identity: the event was written to
// the ledger and should flow to the detectors. False means replay. The
// database insert is the authority; the cache can only produce false
// negatives, never false admits.
func (d *DedupLedger) Admit(ctx context.Context, ev TradeEvent) (bool, error) {
	d.mu.Lock()
	if _, ok := d.seen[ev.Identity]; ok {
		d.mu.Unlock()
		return false, nil
	}
	d.mu.Unlock()

	trade := &models.Trade{
		Identity:   ev.Identity,
		MarketID:   ev.MarketID,
		Wallet:     ev.Wallet,
		Side:       string(ev.Side),
		Amount:     ev.Amount,
		Price:      ev.Price,
		ExecutedAt: ev.ExecutedAt,
	}

	inserted, err := d.repo.InsertTrade(ctx, trade)
	if err != nil {
		return false, err
	}

	d.mu.Lock()
	d.seen[ev.Identity] = time.Now()
	d.mu.Unlock()

	return inserted, nil
}

// Trim drops cache entries older than maxAge. Runs on a cron schedule; the
// durable ledger is unaffected.
func (d *DedupLedger) Trim() int {
	cutoff := time.Now().Add(-d.maxAge)

	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for id, at := range d.seen {
		if at.Before(cutoff) {
			delete(d.seen, id)
			removed++
		}
	}
	return removed
}

// Size reports the cache size for the stats endpoint.
func (d *DedupLedger) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
