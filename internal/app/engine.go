package app

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"predictwatch/config"
)

// AlertCandidate is one detection result headed for the dispatcher.
type AlertCandidate struct {
	Kind     string
	MarketID string
	Market   string
	Wallet   string
	Nickname string
	Side     Side
	Amount   decimal.Decimal
	Price    decimal.NullDecimal

	Quality *QualityScore

	// Kind-specific detail serialized into the alert payload.
	Detail map[string]any

	// DedupKey folds the situation into the hour so a re-detection within
	// the bucket conflicts in the alert store instead of re-emitting.
	DedupKey string

	// LogOnly marks candidates recorded but never notified, e.g. whales
	// below the quality floor.
	LogOnly bool

	Timestamp time.Time
}

func dedupKey(kind, marketID, wallet string, amount decimal.Decimal, at time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%s:%d",
		kind, marketID, wallet, amount.StringFixed(4), at.UTC().Truncate(time.Hour).Unix())
}

// Detector is one detection rule evaluated per poll batch.
type Detector interface {
	Name() string
	Evaluate(ctx context.Context, batch []TradeEvent, cfg *config.Config) ([]AlertCandidate, error)
}

// Engine runs every detector over a batch, isolated: a panic or error in
// one rule is logged and the remaining rules still run.
type Engine struct {
	logger    *zap.Logger
	detectors []Detector
}

func NewEngine(logger *zap.Logger, detectors ...Detector) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger, detectors: detectors}
}

// Evaluate returns the combined candidates from all detectors.
func (e *Engine) Evaluate(ctx context.Context, batch []TradeEvent, cfg *config.Config) []AlertCandidate {
	var out []AlertCandidate
	for _, d := range e.detectors {
		candidates, err := e.evaluateOne(ctx, d, batch, cfg)
		if err != nil {
			e.logger.Error("detector failed",
				zap.String("detector", d.Name()),
				zap.Error(err),
			)
			continue
		}
		out = append(out, candidates...)
	}
	return out
}

func (e *Engine) evaluateOne(ctx context.Context, d Detector, batch []TradeEvent, cfg *config.Config) (candidates []AlertCandidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			candidates = nil
			err = fmt.Errorf("detector panic: %v", r)
		}
	}()
	return d.Evaluate(ctx, batch, cfg)
}
