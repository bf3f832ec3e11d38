package notifier

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Kind identifies which detection rule produced an alert.
type Kind string

const (
	KindWhale       Kind = "WHALE_BET"
	KindCoordinated Kind = "COORDINATED_BETTING"
	KindTracked     Kind = "TRACKED_WALLET"
	KindVolumeSpike Kind = "VOLUME_SPIKE"
)

// Alert contains the data needed to render one notification.
// Kind-specific fields are left zero for other kinds.
type Alert struct {
	Kind     Kind
	MarketID string
	Market   string // title when metadata is available
	Wallet   string
	Nickname string // tracked wallet nickname, when any
	Side     string
	Amount   float64
	Price    float64
	HasPrice bool

	// Wallet stats.
	WinRate    float64
	HasWinRate bool

	// Entry quality.
	Score       int
	HasScore    bool
	PositionPct int
	Warnings    []string

	// Coordination.
	WalletCount int
	TotalAmount float64

	// Volume spike.
	SpikeRatio    float64
	CurrentVolume float64
	AverageVolume float64
	DominantSide  string
	DominantPct   float64 // dominant side's share of the spike volume

	Timestamp time.Time
}

// Notifier delivers alerts to one channel. Send returns an error so the
// dispatch gate can retry undelivered alerts on a later cycle.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
	Close() error
}

// MultiNotifier fans out to multiple channels. A channel failure is logged
// and counted but does not stop delivery to the remaining channels; Send
// fails only when every channel fails.
type MultiNotifier struct {
	logger    *zap.Logger
	notifiers []Notifier
}

func NewMultiNotifier(logger *zap.Logger, notifiers ...Notifier) *MultiNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MultiNotifier{
		logger:    logger,
		notifiers: notifiers,
	}
}

func (m *MultiNotifier) Send(ctx context.Context, alert Alert) error {
	if len(m.notifiers) == 0 {
		return fmt.Errorf("no notification channels configured")
	}

	failed := 0
	var lastErr error
	for _, n := range m.notifiers {
		if err := n.Send(ctx, alert); err != nil {
			failed++
			lastErr = err
			m.logger.Warn("notification channel failed",
				zap.String("kind", string(alert.Kind)),
				zap.Error(err),
			)
		}
	}

	if failed == len(m.notifiers) {
		return fmt.Errorf("all %d channels failed: %w", failed, lastErr)
	}
	return nil
}

func (m *MultiNotifier) Close() error {
	var lastErr error
	for _, n := range m.notifiers {
		if err := n.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
