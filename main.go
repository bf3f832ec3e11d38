package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	clts "predictwatch/clients"
	"predictwatch/config"
	"predictwatch/internal/app"
	"predictwatch/internal/db"
	"predictwatch/internal/storage/gormstore"
)

// loadTimeout bounds startup reads from the database.
const loadTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("PREDICTWATCH_CONFIG"), "path to config file")
	flag.Parse()

	// Optional .env bootstrap before viper reads the environment.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("starting predictwatch", zap.Bool("isProd", cfg.IsProd))

	gdb, err := db.Open(cfg.Database)
	if err != nil {
		logger.Fatal("database open failed", zap.Error(err))
	}
	if err := db.AutoMigrate(gdb); err != nil {
		logger.Fatal("automigrate failed", zap.Error(err))
	}
	repo := gormstore.New(gdb)

	liveConfig := config.NewLiveConfig(cfg)
	settingsManager := config.NewSettingsManager(logger, repo, liveConfig)

	// Restore operator overrides saved by a previous run.
	loadCtx, loadCancel := context.WithTimeout(context.Background(), loadTimeout)
	saved, err := settingsManager.LoadSettings(loadCtx, cfg)
	loadCancel()
	if err != nil {
		logger.Warn("saved settings unusable, using env/defaults", zap.Error(err))
	} else if saved != nil {
		if err := liveConfig.Update(saved); err != nil {
			logger.Warn("failed to apply saved settings", zap.Error(err))
		} else {
			logger.Info("saved settings restored")
		}
	}

	logger.Info("instantiating clients")
	clients := clts.NewClients(logger, liveConfig.Get())
	defer clients.Close()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	runner := app.NewRunner(logger, repo, clients, liveConfig, settingsManager)
	if err := runner.Run(ctx); err != nil && err != context.Canceled {
		logger.Fatal("runner failed", zap.Error(err))
	}
}

func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Log.Development {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	zcfg.Level = level
	return zcfg.Build()
}
