package app

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"predictwatch/config"
	"predictwatch/internal/models"
	"predictwatch/internal/storage"
)

// fastResolveRule marks market text that implies a near-term resolution.
type fastResolveRule struct {
	name    string
	pattern *regexp.Regexp
}

var fastResolveRules = []fastResolveRule{
	{"same-day", regexp.MustCompile(`(?i)\b(today|tonight|this (morning|afternoon|evening))\b`)},
	{"next-day", regexp.MustCompile(`(?i)\btomorrow\b`)},
	{"intraday", regexp.MustCompile(`(?i)\b(within|next|in) \d+ (minute|hour)s?\b`)},
	{"this-week", regexp.MustCompile(`(?i)\bthis week(end)?\b`)},
	{"live-event", regexp.MustCompile(`(?i)\b(game|match|race|fight|debate|launch)\b.*\b(win|score|beat|finish)\b`)},
}

// fastResolveHorizon is how soon a dated resolution counts as fast.
const fastResolveHorizon = 7 * 24 * time.Hour

// CoordinationDetector flags bursts of distinct wallets taking the same
// side of a fast-resolving market within a short window.
type CoordinationDetector struct {
	logger  *zap.Logger
	repo    storage.Repository
	markets MarketInfoProvider
	now     func() time.Time
}

func NewCoordinationDetector(logger *zap.Logger, repo storage.Repository, markets MarketInfoProvider) *CoordinationDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CoordinationDetector{
		logger:  logger,
		repo:    repo,
		markets: markets,
		now:     time.Now,
	}
}

func (d *CoordinationDetector) Name() string { return "coordination" }

func (d *CoordinationDetector) Evaluate(ctx context.Context, batch []TradeEvent, cfg *config.Config) ([]AlertCandidate, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	// The window is measured back from now over the ledger, not just this
	// batch, so a burst split across poll cycles is still seen whole.
	windowStart := d.now().Add(-cfg.Detection.CoordWindow)
	recent, err := d.repo.TradesSince(ctx, windowStart)
	if err != nil {
		return nil, fmt.Errorf("load coordination window: %w", err)
	}

	type group struct {
		wallets map[string]struct{}
		total   decimal.Decimal
		latest  time.Time
	}
	groups := make(map[string]*group)

	for _, tr := range recent {
		if tr.Wallet == "" || tr.MarketID == "" {
			continue
		}
		side := Side(tr.Side)
		if side != SideYes && side != SideNo {
			continue
		}
		key := tr.MarketID + "|" + tr.Side
		g, ok := groups[key]
		if !ok {
			g = &group{wallets: make(map[string]struct{}), total: decimal.Zero}
			groups[key] = g
		}
		g.wallets[tr.Wallet] = struct{}{}
		g.total = g.total.Add(tr.Amount)
		if tr.ExecutedAt.After(g.latest) {
			g.latest = tr.ExecutedAt
		}
	}

	// Only groups touched by this batch may alert; the ledger context just
	// widens the window.
	touched := make(map[string]struct{})
	for _, ev := range batch {
		touched[ev.MarketID+"|"+string(ev.Side)] = struct{}{}
	}

	minTotal := decimal.NewFromFloat(cfg.Detection.CoordMinTotal)
	var keys []string
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var out []AlertCandidate
	for _, key := range keys {
		if _, ok := touched[key]; !ok {
			continue
		}
		g := groups[key]
		if len(g.wallets) < cfg.Detection.CoordWallets {
			continue
		}
		if g.total.LessThan(minTotal) {
			continue
		}

		marketID, side := splitGroupKey(key)

		fast, ruleName := d.isFastResolving(ctx, marketID)
		if !fast {
			continue
		}

		title := ""
		if d.markets != nil {
			if m, err := d.markets.MarketInfo(ctx, marketID); err == nil && m != nil {
				title = m.Title
			}
		}

		totalFloat, _ := g.total.Float64()
		out = append(out, AlertCandidate{
			Kind:     models.AlertKindCoordinated,
			MarketID: marketID,
			Market:   title,
			Side:     Side(side),
			Amount:   g.total,
			Detail: map[string]any{
				"wallet_count":      len(g.wallets),
				"combined_amount":   totalFloat,
				"window_seconds":    int(cfg.Detection.CoordWindow.Seconds()),
				"fast_resolve_rule": ruleName,
			},
			DedupKey:  dedupKey(models.AlertKindCoordinated, marketID, side, g.total, g.latest),
			Timestamp: g.latest,
		})
	}

	return out, nil
}

func splitGroupKey(key string) (marketID, side string) {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '|' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}

// isFastResolving judges whether a market resolves soon. Unknown metadata
// is treated as fast: missing data should not suppress a burst signal.
func (d *CoordinationDetector) isFastResolving(ctx context.Context, marketID string) (bool, string) {
	if d.markets == nil {
		return true, "no-metadata"
	}

	market, err := d.markets.MarketInfo(ctx, marketID)
	if err != nil {
		d.logger.Warn("fast-resolve check degraded",
			zap.String("market", marketID),
			zap.Error(err),
		)
		return true, "metadata-error"
	}
	if market == nil {
		return true, "unknown-market"
	}

	if market.ResolutionDate != nil {
		if market.ResolutionDate.Sub(d.now()) <= fastResolveHorizon {
			return true, "resolution-date"
		}
		return false, ""
	}

	text := market.Title + " " + market.Description
	for _, rule := range fastResolveRules {
		if rule.pattern.MatchString(text) {
			return true, rule.name
		}
	}

	// No date and no textual hint: permissive. Only a known far-out
	// resolution date suppresses the signal.
	return true, "default-permissive"
}
