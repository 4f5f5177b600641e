package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"StockPipeline/internal/cache"
	"StockPipeline/internal/calculator"
	"StockPipeline/internal/collector"
	"StockPipeline/internal/config"
	"StockPipeline/internal/logger"
	"StockPipeline/internal/manager"
	"StockPipeline/internal/recorder"
	"StockPipeline/internal/storage"
)

// app holds the wired components for one process.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	recorder recorder.Recorder
	manager  *manager.Manager
}

func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	log.Info().Str("provider", provider.Name()).Msg("Data source selected")

	store := cache.NewStore()
	fetcher := collector.NewFetcher(provider, store, cfg.SymbolTimeout, log)
	calc := calculator.NewMetricCalculator(store, *cfg.DefaultGrowthPct, log)

	st := storage.New(cfg.DataDir, log)
	if cfg.Mirror.S3Bucket != "" {
		m, err := storage.NewS3Mirror(ctx, cfg.Mirror.S3Bucket, cfg.Mirror.S3Prefix)
		if err != nil {
			log.Warn().Err(err).Msg("S3 mirror disabled")
		} else {
			st.Mirror = m
			log.Info().Str("bucket", cfg.Mirror.S3Bucket).Msg("S3 mirror enabled")
		}
	}

	rec := openRecorder(cfg, log)
	return &app{
		cfg:      cfg,
		log:      log,
		recorder: rec,
		manager:  manager.New(fetcher, calc, st, rec, log),
	}, nil
}

func (a *app) Close() {
	if err := a.recorder.Close(); err != nil {
		a.log.Warn().Err(err).Msg("Failed to close recorder")
	}
}

func newProvider(cfg *config.Config) (collector.Provider, error) {
	switch cfg.Provider.Name {
	case config.ProviderYahoo:
		return collector.NewYahooProvider(cfg.Proxy), nil
	case config.ProviderVsTrader:
		return collector.NewVsTraderProvider(cfg.Provider.BaseURL, cfg.Provider.APIKey, cfg.Proxy), nil
	case config.ProviderFolder:
		return collector.NewFolderProvider(cfg.Provider.Folder), nil
	case config.ProviderMock:
		return &collector.MockProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider.Name)
	}
}

func openRecorder(cfg *config.Config, log zerolog.Logger) recorder.Recorder {
	if !cfg.RecorderEnabled() {
		return recorder.NewNoopRecorder()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database.SQLitePath), 0o755); err != nil {
		log.Warn().Err(err).Msg("Init sqlite recorder failed, using noop")
		return recorder.NewNoopRecorder()
	}
	sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, log)
	if err != nil {
		log.Warn().Err(err).Msg("Init sqlite recorder failed, using noop")
		return recorder.NewNoopRecorder()
	}
	return sr
}
