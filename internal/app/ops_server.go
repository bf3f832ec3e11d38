package app

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"predictwatch/config"
	"predictwatch/internal/models"
	"predictwatch/internal/storage"
)

// OpsServer is the operator HTTP surface: health, stats reads, runtime
// settings and the tracked-wallet watch list.
type OpsServer struct {
	logger      *zap.Logger
	repo        storage.Repository
	live        *config.LiveConfig
	settings    *config.SettingsManager
	tracked     *TrackedWallets
	dedup       *DedupLedger
	walletStats *WalletStatsProvider
	stats       *LoopStats

	srv *http.Server
}

func NewOpsServer(logger *zap.Logger, repo storage.Repository, live *config.LiveConfig, settings *config.SettingsManager, tracked *TrackedWallets, dedup *DedupLedger, walletStats *WalletStatsProvider, stats *LoopStats) *OpsServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpsServer{
		logger:      logger,
		repo:        repo,
		live:        live,
		settings:    settings,
		tracked:     tracked,
		dedup:       dedup,
		walletStats: walletStats,
		stats:       stats,
	}
}

type opsResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func opsOk(c *gin.Context, data any) {
	c.JSON(http.StatusOK, opsResponse{Code: 0, Message: "ok", Data: data})
}

func opsError(c *gin.Context, status int, message string) {
	c.JSON(status, opsResponse{Code: status, Message: message})
}

func (s *OpsServer) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.health)
	r.GET("/stats", s.getStats)
	r.GET("/stats/wallets", s.topWallets)
	r.GET("/stats/markets/:id", s.marketActivity)
	r.GET("/settings", s.getSettings)
	r.POST("/settings", s.postSettings)
	r.GET("/tracked", s.listTracked)
	r.POST("/tracked", s.postTracked)
	r.DELETE("/tracked/:wallet", s.deleteTracked)
	r.POST("/settlements", s.postSettlement)

	return r
}

// Start runs the server until ctx is cancelled.
func (s *OpsServer) Start(ctx context.Context, addr string) {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.logger.Info("ops server listening", zap.String("addr", addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("ops server failed", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("ops server shutdown", zap.Error(err))
		}
	}()
}

func (s *OpsServer) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *OpsServer) getStats(c *gin.Context) {
	ctx := c.Request.Context()
	cfg := s.live.Get()

	counts, err := s.repo.AlertCountsSince(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		s.logger.Warn("alert counts unavailable", zap.Error(err))
		counts = map[string]int64{}
	}

	opsOk(c, gin.H{
		"loop":            s.stats.Snapshot(),
		"alerts_24h":      counts,
		"dedup_cache":     s.dedup.Size(),
		"paused":          cfg.Poller.Paused,
		"config_updated":  s.live.LastUpdated(),
		"tracked_wallets": len(s.tracked.List()),
	})
}

type topWalletView struct {
	Wallet      string  `json:"wallet"`
	TotalBets   int64   `json:"total_bets"`
	TotalVolume string  `json:"total_volume"`
	WinRate     float64 `json:"win_rate"`
	Estimated   bool    `json:"estimated"`
}

func (s *OpsServer) topWallets(c *gin.Context) {
	ctx := c.Request.Context()
	limit := intQuery(c, "limit", 10)
	hours := intQuery(c, "hours", 24)

	wallets, err := s.repo.TopWalletsByVolume(ctx, time.Now().Add(-time.Duration(hours)*time.Hour), limit)
	if err != nil {
		opsError(c, http.StatusBadGateway, err.Error())
		return
	}

	out := make([]topWalletView, 0, len(wallets))
	for _, w := range wallets {
		view := topWalletView{
			Wallet:      w.Wallet,
			TotalBets:   w.TotalBets,
			TotalVolume: w.TotalVolume.StringFixed(2),
		}
		if stats, err := s.walletStats.Stats(ctx, w.Wallet); err == nil {
			view.WinRate = stats.WinRate
			view.Estimated = stats.Estimated
		}
		out = append(out, view)
	}
	opsOk(c, out)
}

func (s *OpsServer) marketActivity(c *gin.Context) {
	marketID := strings.TrimSpace(c.Param("id"))
	if marketID == "" {
		opsError(c, http.StatusBadRequest, "invalid market id")
		return
	}
	hours := intQuery(c, "hours", 24)

	activity, err := s.repo.MarketActivity(c.Request.Context(), marketID, time.Now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		opsError(c, http.StatusBadGateway, err.Error())
		return
	}

	opsOk(c, gin.H{
		"market_id":   marketID,
		"hours":       hours,
		"volume":      activity.Volume.StringFixed(2),
		"yes_volume":  activity.YesVolume.StringFixed(2),
		"no_volume":   activity.NoVolume.StringFixed(2),
		"trade_count": activity.TradeCount,
	})
}

func (s *OpsServer) getSettings(c *gin.Context) {
	cfg := s.live.Get()
	opsOk(c, config.RuntimeSettings{
		Poller:    cfg.Poller,
		Detection: cfg.Detection,
	})
}

func (s *OpsServer) postSettings(c *gin.Context) {
	cfg := s.live.Get()

	// Pre-populate with the current values so a partial body only changes
	// the fields it names.
	body := config.RuntimeSettings{
		Poller:    cfg.Poller,
		Detection: cfg.Detection,
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		opsError(c, http.StatusBadRequest, err.Error())
		return
	}

	cfg.Poller = body.Poller
	cfg.Detection = body.Detection

	if err := s.settings.Apply(c.Request.Context(), cfg); err != nil {
		var verr *config.ConfigValidationError
		if errors.As(err, &verr) {
			opsError(c, http.StatusBadRequest, verr.Error())
			return
		}
		opsError(c, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info("runtime settings updated",
		zap.Float64("whaleThreshold", cfg.Detection.WhaleThreshold),
		zap.Bool("paused", cfg.Poller.Paused),
	)
	s.getSettings(c)
}

func (s *OpsServer) listTracked(c *gin.Context) {
	opsOk(c, s.tracked.List())
}

type trackRequest struct {
	Wallet   string `json:"wallet" binding:"required"`
	Nickname string `json:"nickname"`
}

func (s *OpsServer) postTracked(c *gin.Context) {
	var body trackRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		opsError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.tracked.Track(c.Request.Context(), body.Wallet, body.Nickname); err != nil {
		opsError(c, http.StatusBadGateway, err.Error())
		return
	}
	opsOk(c, s.tracked.List())
}

func (s *OpsServer) deleteTracked(c *gin.Context) {
	wallet := strings.TrimSpace(c.Param("wallet"))
	if wallet == "" {
		opsError(c, http.StatusBadRequest, "invalid wallet")
		return
	}
	if err := s.tracked.Untrack(c.Request.Context(), wallet); err != nil {
		opsError(c, http.StatusBadGateway, err.Error())
		return
	}
	opsOk(c, s.tracked.List())
}

type settlementRequest struct {
	Wallet   string `json:"wallet" binding:"required"`
	MarketID string `json:"market_id" binding:"required"`
	Won      bool   `json:"won"`
}

// postSettlement records a resolved position so true win rates accumulate
// over the volume-tier estimates.
func (s *OpsServer) postSettlement(c *gin.Context) {
	var body settlementRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		opsError(c, http.StatusBadRequest, err.Error())
		return
	}

	wallet := strings.ToLower(strings.TrimSpace(body.Wallet))
	err := s.repo.InsertSettlement(c.Request.Context(), &models.WalletSettlement{
		Wallet:    wallet,
		MarketID:  body.MarketID,
		Won:       body.Won,
		SettledAt: time.Now(),
	})
	if err != nil {
		opsError(c, http.StatusBadGateway, err.Error())
		return
	}

	s.walletStats.Invalidate(wallet)
	opsOk(c, gin.H{"wallet": wallet, "won": body.Won})
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
