package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"predictwatch/clients"
	"predictwatch/config"
	"predictwatch/internal/cronrunner"
	"predictwatch/internal/storage"
)

// LoopStats counts what the poll loop has done since startup, read by the
// ops stats endpoint.
type LoopStats struct {
	mu         sync.Mutex
	cycles     int64
	fetched    int64
	dropped    int64
	admitted   int64
	replayed   int64
	stored     int64
	notified   int64
	logOnly    int64
	failures   int64
	lastCycle  time.Time
	lastError  string
}

// LoopStatsSnapshot is the JSON view of LoopStats.
type LoopStatsSnapshot struct {
	Cycles    int64     `json:"cycles"`
	Fetched   int64     `json:"fetched"`
	Dropped   int64     `json:"dropped"`
	Admitted  int64     `json:"admitted"`
	Replayed  int64     `json:"replayed"`
	Stored    int64     `json:"stored"`
	Notified  int64     `json:"notified"`
	LogOnly   int64     `json:"log_only"`
	Failures  int64     `json:"failures"`
	LastCycle time.Time `json:"last_cycle"`
	LastError string    `json:"last_error,omitempty"`
}

func (s *LoopStats) record(fetched, dropped, admitted, replayed int, dispatch DispatchResult, errText string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles++
	s.fetched += int64(fetched)
	s.dropped += int64(dropped)
	s.admitted += int64(admitted)
	s.replayed += int64(replayed)
	s.stored += int64(dispatch.Stored)
	s.notified += int64(dispatch.Notified)
	s.logOnly += int64(dispatch.LogOnly)
	s.failures += int64(dispatch.Failed)
	s.lastCycle = time.Now()
	s.lastError = errText
}

func (s *LoopStats) Snapshot() LoopStatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return LoopStatsSnapshot{
		Cycles:    s.cycles,
		Fetched:   s.fetched,
		Dropped:   s.dropped,
		Admitted:  s.admitted,
		Replayed:  s.replayed,
		Stored:    s.stored,
		Notified:  s.notified,
		LogOnly:   s.logOnly,
		Failures:  s.failures,
		LastCycle: s.lastCycle,
		LastError: s.lastError,
	}
}

// Runner owns the synchronous poll loop and the supporting jobs. One cycle
// is fetch, normalize, admit, detect, dispatch; cycles never overlap.
type Runner struct {
	logger     *zap.Logger
	repo       storage.Repository
	clients    *clients.Clients
	live       *config.LiveConfig
	settings   *config.SettingsManager
	normalizer *Normalizer
	dedup      *DedupLedger
	tracked    *TrackedWallets
	engine     *Engine
	dispatcher *Dispatcher
	cron       *cronrunner.Runner
	ops        *OpsServer
	stats      *LoopStats
}

// NewRunner wires the full pipeline from config.
func NewRunner(logger *zap.Logger, repo storage.Repository, cl *clients.Clients, live *config.LiveConfig, settings *config.SettingsManager) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := live.Get()

	normalizer := NewNormalizer(logger.Named("normalizer"))
	dedup := NewDedupLedger(logger.Named("dedup"), repo, cfg.Cache.DedupMaxAge)
	tracked := NewTrackedWallets(logger.Named("tracked"), repo)
	walletStats := NewWalletStatsProvider(logger.Named("walletstats"), repo, cfg.Cache.WalletStatsTTL)
	marketStats := NewMarketStatsProvider(logger.Named("marketstats"), repo)

	engine := NewEngine(logger.Named("engine"),
		NewWhaleDetector(logger.Named("whale"), repo, walletStats, marketStats, cl.Predict),
		NewCoordinationDetector(logger.Named("coordination"), repo, cl.Predict),
		NewTrackedDetector(logger.Named("trackeddet"), tracked, walletStats),
		NewVolumeSpikeDetector(logger.Named("volumespike"), marketStats, cl.Predict),
	)

	dispatcher := NewDispatcher(logger.Named("dispatcher"), repo, cl.Notifier, cfg.Poller.NotifyPacing)
	stats := &LoopStats{}

	return &Runner{
		logger:     logger,
		repo:       repo,
		clients:    cl,
		live:       live,
		settings:   settings,
		normalizer: normalizer,
		dedup:      dedup,
		tracked:    tracked,
		engine:     engine,
		dispatcher: dispatcher,
		stats:      stats,
		ops:        NewOpsServer(logger.Named("ops"), repo, live, settings, tracked, dedup, walletStats, stats),
	}
}

// Run blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	cfg := r.live.Get()

	if err := r.dedup.WarmUp(ctx, cfg.Cache.DedupWarmup); err != nil {
		r.logger.Warn("dedup warmup failed, continuing cold", zap.Error(err))
	}
	if err := r.tracked.Load(ctx); err != nil {
		r.logger.Warn("tracked wallet load failed", zap.Error(err))
	}

	r.cron = cronrunner.New(r.logger.Named("cron"), ctx)
	if err := r.registerJobs(cfg); err != nil {
		return err
	}
	r.cron.Start()
	defer r.cron.Stop()

	if cfg.Ops.Enabled {
		r.ops.Start(ctx, cfg.Ops.Addr)
	}

	r.logger.Info("poll loop starting",
		zap.Duration("interval", cfg.Poller.Interval),
		zap.Float64("whaleThreshold", cfg.Detection.WhaleThreshold),
	)

	ticker := time.NewTicker(cfg.Poller.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("poll loop stopping")
			return ctx.Err()
		case <-ticker.C:
			// Snapshot once so every stage of the cycle sees the same
			// thresholds even if an operator updates mid-cycle.
			current := r.live.Get()
			if current.Poller.Paused {
				continue
			}
			r.cycle(ctx, current)
			if current.Poller.Interval != cfg.Poller.Interval && current.Poller.Interval > 0 {
				cfg = current
				ticker.Reset(cfg.Poller.Interval)
				r.logger.Info("poll interval changed", zap.Duration("interval", cfg.Poller.Interval))
			}
		}
	}
}

func (r *Runner) registerJobs(cfg *config.Config) error {
	if _, err := r.cron.Add(cfg.Retention.PruneSpec, func(jobCtx context.Context) {
		cutoff := time.Now().Add(-r.live.Get().Retention.MaxAge)
		removed, err := r.repo.PruneBefore(jobCtx, cutoff)
		if err != nil {
			r.logger.Error("retention prune failed", zap.Error(err))
			return
		}
		r.logger.Info("retention prune complete",
			zap.Int64("removed", removed),
			zap.Time("cutoff", cutoff),
		)
	}); err != nil {
		return err
	}

	if _, err := r.cron.Add(cfg.Retention.TrimSpec, func(context.Context) {
		if removed := r.dedup.Trim(); removed > 0 {
			r.logger.Debug("dedup cache trimmed", zap.Int("removed", removed))
		}
	}); err != nil {
		return err
	}

	return nil
}

// cycle runs one fetch-to-dispatch pass.
func (r *Runner) cycle(ctx context.Context, cfg *config.Config) {
	since := time.Now().Add(-cfg.Feed.Lookback)
	raw, err := r.clients.Predict.RecentOrderMatches(ctx, since, cfg.Feed.PageLimit)
	if err != nil {
		r.logger.Warn("feed fetch failed", zap.Error(err))
		r.stats.record(0, 0, 0, 0, DispatchResult{}, err.Error())
		return
	}

	events, dropped := r.normalizer.NormalizeBatch(raw)

	admitted := make([]TradeEvent, 0, len(events))
	replayed := 0
	for _, ev := range events {
		first, err := r.dedup.Admit(ctx, ev)
		if err != nil {
			r.logger.Warn("trade admission failed",
				zap.String("identity", ev.Identity),
				zap.Error(err),
			)
			continue
		}
		if !first {
			replayed++
			continue
		}
		admitted = append(admitted, ev)
	}

	var dispatch DispatchResult
	if len(admitted) > 0 {
		candidates := r.engine.Evaluate(ctx, admitted, cfg)
		dispatch = r.dispatcher.Dispatch(ctx, candidates)
	}

	retried := r.dispatcher.RetryUnnotified(ctx, 20)

	r.stats.record(len(raw), dropped, len(admitted), replayed, dispatch, "")

	if len(admitted) > 0 || dispatch.Stored > 0 || retried > 0 {
		r.logger.Info("cycle complete",
			zap.Int("fetched", len(raw)),
			zap.Int("admitted", len(admitted)),
			zap.Int("replayed", replayed),
			zap.Int("alertsStored", dispatch.Stored),
			zap.Int("notified", dispatch.Notified),
			zap.Int("retried", retried),
		)
	}
}
