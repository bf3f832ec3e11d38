package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"predictwatch/config"
	"predictwatch/internal/models"
	"predictwatch/internal/storage"
)

// TrackedWallets is the operator watch list: an in-memory set written
// through to the tracked_wallets table.
type TrackedWallets struct {
	logger *zap.Logger
	repo   storage.Repository

	mu  sync.RWMutex
	set map[string]string // wallet -> nickname
}

func NewTrackedWallets(logger *zap.Logger, repo storage.Repository) *TrackedWallets {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrackedWallets{
		logger: logger,
		repo:   repo,
		set:    make(map[string]string),
	}
}

// Load populates the set from the database at startup.
func (t *TrackedWallets) Load(ctx context.Context) error {
	wallets, err := t.repo.ListTrackedWallets(ctx)
	if err != nil {
		return fmt.Errorf("load tracked wallets: %w", err)
	}

	t.mu.Lock()
	t.set = make(map[string]string, len(wallets))
	for _, w := range wallets {
		t.set[normalizeWallet(w.Wallet)] = w.Nickname
	}
	size := len(t.set)
	t.mu.Unlock()

	t.logger.Info("tracked wallets loaded", zap.Int("count", size))
	return nil
}

// Track adds or renames a wallet. Write-through: the DB row is upserted
// first so a crash cannot lose the entry.
func (t *TrackedWallets) Track(ctx context.Context, wallet, nickname string) error {
	wallet = normalizeWallet(wallet)
	if wallet == "" {
		return fmt.Errorf("wallet is empty")
	}

	err := t.repo.UpsertTrackedWallet(ctx, &models.TrackedWallet{
		Wallet:   wallet,
		Nickname: nickname,
		AddedAt:  time.Now(),
	})
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.set[wallet] = nickname
	t.mu.Unlock()
	return nil
}

// Untrack removes a wallet.
func (t *TrackedWallets) Untrack(ctx context.Context, wallet string) error {
	wallet = normalizeWallet(wallet)
	if err := t.repo.DeleteTrackedWallet(ctx, wallet); err != nil {
		return err
	}

	t.mu.Lock()
	delete(t.set, wallet)
	t.mu.Unlock()
	return nil
}

// Lookup returns the nickname and whether the wallet is tracked.
func (t *TrackedWallets) Lookup(wallet string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	nickname, ok := t.set[normalizeWallet(wallet)]
	return nickname, ok
}

// List returns the watch list for the ops endpoint.
func (t *TrackedWallets) List() map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]string, len(t.set))
	for w, n := range t.set {
		out[w] = n
	}
	return out
}

func normalizeWallet(wallet string) string {
	return strings.ToLower(strings.TrimSpace(wallet))
}

// TrackedDetector alerts on any trade by a watched wallet, regardless of
// size.
type TrackedDetector struct {
	logger      *zap.Logger
	tracked     *TrackedWallets
	walletStats *WalletStatsProvider
}

func NewTrackedDetector(logger *zap.Logger, tracked *TrackedWallets, walletStats *WalletStatsProvider) *TrackedDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrackedDetector{
		logger:      logger,
		tracked:     tracked,
		walletStats: walletStats,
	}
}

func (d *TrackedDetector) Name() string { return "tracked" }

func (d *TrackedDetector) Evaluate(ctx context.Context, batch []TradeEvent, cfg *config.Config) ([]AlertCandidate, error) {
	var out []AlertCandidate

	for _, ev := range batch {
		if ev.Wallet == "" {
			continue
		}
		nickname, ok := d.tracked.Lookup(ev.Wallet)
		if !ok {
			continue
		}

		amountFloat, _ := ev.Amount.Float64()
		detail := map[string]any{
			"nickname": nickname,
			"amount":   amountFloat,
		}

		if stats, err := d.walletStats.Stats(ctx, ev.Wallet); err == nil {
			detail["wallet_win_rate"] = stats.WinRate
			detail["wallet_total_bets"] = stats.TotalBets
		}

		out = append(out, AlertCandidate{
			Kind:      models.AlertKindTracked,
			MarketID:  ev.MarketID,
			Wallet:    ev.Wallet,
			Nickname:  nickname,
			Side:      ev.Side,
			Amount:    ev.Amount,
			Price:     ev.Price,
			Detail:    detail,
			DedupKey:  dedupKey(models.AlertKindTracked, ev.MarketID, ev.Wallet, ev.Amount, ev.ExecutedAt),
			Timestamp: ev.ExecutedAt,
		})
	}

	return out, nil
}
