package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"predictwatch/clients/notifier"
	"predictwatch/internal/models"
	"predictwatch/internal/storage"
)

// Dispatcher persists alert candidates and pushes notifications with
// exactly-once delivery per stored alert. The gate is two-layered: an
// in-memory sent set for this process and the durable notified_at mark.
// When the durable mark fails the in-memory entry is rolled back so the
// alert is retried on a later cycle rather than silently lost.
type Dispatcher struct {
	logger   *zap.Logger
	repo     storage.Repository
	notifier notifier.Notifier

	mu   sync.Mutex
	sent map[uint64]struct{}

	pacing time.Duration
	sleep  func(time.Duration)
}

func NewDispatcher(logger *zap.Logger, repo storage.Repository, n notifier.Notifier, pacing time.Duration) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		logger:   logger,
		repo:     repo,
		notifier: n,
		sent:     make(map[uint64]struct{}),
		pacing:   pacing,
		sleep:    time.Sleep,
	}
}

// DispatchResult reports what one dispatch pass did.
type DispatchResult struct {
	Stored     int
	Duplicates int
	Notified   int
	LogOnly    int
	Failed     int
}

// Dispatch stores each candidate and notifies the newly stored ones.
func (d *Dispatcher) Dispatch(ctx context.Context, candidates []AlertCandidate) DispatchResult {
	var result DispatchResult

	for _, c := range candidates {
		alert, inserted, err := d.store(ctx, c)
		if err != nil {
			result.Failed++
			d.logger.Error("alert store failed",
				zap.String("kind", c.Kind),
				zap.String("market", c.MarketID),
				zap.Error(err),
			)
			continue
		}
		if !inserted {
			result.Duplicates++
			continue
		}
		result.Stored++

		if c.LogOnly {
			result.LogOnly++
			d.logger.Info("alert below quality floor, log only",
				zap.String("kind", c.Kind),
				zap.String("market", c.MarketID),
				zap.Int("score", scoreOf(c)),
			)
			continue
		}

		if d.notify(ctx, alert, c) {
			result.Notified++
		} else {
			result.Failed++
		}

		if d.pacing > 0 {
			d.sleep(d.pacing)
		}
	}

	return result
}

// RetryUnnotified re-sends alerts whose notifications never completed, e.g.
// after a channel outage or a crash between send and mark.
func (d *Dispatcher) RetryUnnotified(ctx context.Context, limit int) int {
	alerts, err := d.repo.UnnotifiedAlerts(ctx, limit)
	if err != nil {
		d.logger.Warn("unnotified sweep failed", zap.Error(err))
		return 0
	}

	retried := 0
	for i := range alerts {
		a := alerts[i]
		if d.alreadySent(a.ID) {
			continue
		}
		c, err := candidateFromAlert(a)
		if err != nil {
			d.logger.Warn("unnotified alert payload unreadable",
				zap.Uint64("id", a.ID),
				zap.Error(err),
			)
			continue
		}
		if d.notify(ctx, &a, c) {
			retried++
		}
		if d.pacing > 0 {
			d.sleep(d.pacing)
		}
	}
	return retried
}

func (d *Dispatcher) store(ctx context.Context, c AlertCandidate) (*models.Alert, bool, error) {
	payload, err := json.Marshal(c.Detail)
	if err != nil {
		return nil, false, fmt.Errorf("encode payload: %w", err)
	}

	alert := &models.Alert{
		Kind:     c.Kind,
		MarketID: c.MarketID,
		Wallet:   c.Wallet,
		Side:     string(c.Side),
		Amount:   c.Amount,
		Score:    scoreOf(c),
		DedupKey: c.DedupKey,
		Payload:  payload,
	}

	// Log-only alerts are marked at insert time and never enter the
	// retry sweep.
	if c.LogOnly {
		now := time.Now()
		alert.NotifiedAt = &now
	}

	inserted, err := d.repo.InsertAlert(ctx, alert)
	if err != nil {
		return nil, false, err
	}
	return alert, inserted, nil
}

// notify sends and closes the gate. Order matters: send first, then record.
// A send failure leaves the alert unnotified for the retry sweep. A durable
// mark failure after a successful send rolls the in-memory entry back so
// the next sweep retries; delivery is at-least-once across a crash in that
// narrow window, exactly-once otherwise.
func (d *Dispatcher) notify(ctx context.Context, alert *models.Alert, c AlertCandidate) bool {
	if d.alreadySent(alert.ID) {
		return false
	}

	if err := d.notifier.Send(ctx, buildNotification(alert, c)); err != nil {
		d.logger.Warn("notification failed, will retry",
			zap.Uint64("id", alert.ID),
			zap.String("kind", c.Kind),
			zap.Error(err),
		)
		return false
	}

	d.mu.Lock()
	d.sent[alert.ID] = struct{}{}
	d.mu.Unlock()

	if err := d.markNotified(ctx, alert.ID); err != nil {
		d.mu.Lock()
		delete(d.sent, alert.ID)
		d.mu.Unlock()
		d.logger.Error("durable notify mark failed, rolled back sent set",
			zap.Uint64("id", alert.ID),
			zap.Error(err),
		)
		return false
	}

	return true
}

func (d *Dispatcher) alreadySent(id uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.sent[id]
	return ok
}

func (d *Dispatcher) markNotified(ctx context.Context, id uint64) error {
	return d.repo.MarkAlertNotified(ctx, id, time.Now())
}

func scoreOf(c AlertCandidate) int {
	if c.Quality == nil {
		return 0
	}
	return c.Quality.Score
}

func buildNotification(alert *models.Alert, c AlertCandidate) notifier.Alert {
	amount, _ := c.Amount.Float64()
	n := notifier.Alert{
		Kind:      notifier.Kind(c.Kind),
		MarketID:  c.MarketID,
		Market:    c.Market,
		Wallet:    c.Wallet,
		Nickname:  c.Nickname,
		Side:      string(c.Side),
		Amount:    amount,
		Timestamp: c.Timestamp,
	}

	if c.Price.Valid {
		n.Price, _ = c.Price.Decimal.Float64()
		n.HasPrice = true
	}

	if c.Quality != nil {
		n.Score = c.Quality.Score
		n.HasScore = true
		n.PositionPct = c.Quality.PositionPct
		n.Warnings = c.Quality.Warnings
	}

	switch c.Kind {
	case models.AlertKindCoordinated:
		n.WalletCount = detailInt(c.Detail, "wallet_count")
		n.TotalAmount = detailFloat(c.Detail, "combined_amount")
	case models.AlertKindVolumeSpike:
		n.CurrentVolume = detailFloat(c.Detail, "current_volume")
		n.AverageVolume = detailFloat(c.Detail, "average_volume")
		n.SpikeRatio = detailFloat(c.Detail, "spike_ratio")
		n.DominantSide = detailString(c.Detail, "dominant_side")
		n.DominantPct = detailFloat(c.Detail, "side_percentage")
	case models.AlertKindWhale:
		if v, ok := c.Detail["wallet_win_rate"]; ok {
			if f, ok := toFloat(v); ok {
				n.WinRate = f
				n.HasWinRate = true
			}
		}
	}

	return n
}

// candidateFromAlert rebuilds enough of a candidate from a stored alert to
// re-send its notification.
func candidateFromAlert(a models.Alert) (AlertCandidate, error) {
	detail := make(map[string]any)
	if len(a.Payload) > 0 {
		if err := json.Unmarshal(a.Payload, &detail); err != nil {
			return AlertCandidate{}, err
		}
	}

	c := AlertCandidate{
		Kind:      a.Kind,
		MarketID:  a.MarketID,
		Wallet:    a.Wallet,
		Side:      Side(a.Side),
		Amount:    a.Amount,
		Detail:    detail,
		DedupKey:  a.DedupKey,
		Timestamp: a.CreatedAt,
	}

	if a.Score > 0 {
		c.Quality = &QualityScore{Score: a.Score}
	}

	return c, nil
}

func detailInt(detail map[string]any, key string) int {
	if f, ok := toFloat(detail[key]); ok {
		return int(f)
	}
	return 0
}

func detailFloat(detail map[string]any, key string) float64 {
	f, _ := toFloat(detail[key])
	return f
}

func detailString(detail map[string]any, key string) string {
	s, _ := detail[key].(string)
	return s
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
