package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/polywatcher/engine/internal/classifier"
	"github.com/polywatcher/engine/internal/config"
	"github.com/polywatcher/engine/internal/detector"
	"github.com/polywatcher/engine/internal/feed"
	"github.com/polywatcher/engine/internal/gate"
	"github.com/polywatcher/engine/internal/logger"
	"github.com/polywatcher/engine/internal/resolution"
	"github.com/polywatcher/engine/internal/storage"
	"github.com/polywatcher/engine/internal/telegram"
	"github.com/polywatcher/engine/internal/thresholds"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	// Local development convenience; ignore a missing .env.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	retention := storage.DefaultRetention()
	retention.Markets = time.Duration(cfg.Storage.MarketDays) * 24 * time.Hour
	retention.PriceHistory = time.Duration(cfg.Storage.HistoryDays) * 24 * time.Hour
	retention.Signals = time.Duration(cfg.Storage.SignalDays) * 24 * time.Hour

	store, err := storage.New(cfg.Storage.DBPath, retention)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	feedClient := feed.NewClient(cfg.Feed.GammaAPIURL, feed.ClientConfig{
		Timeout:         cfg.Feed.Timeout,
		RequestsPerSec:  cfg.Feed.RequestsPerSec,
		MaxRetryElapsed: cfg.Feed.MaxRetryElapsed,
		PageSize:        cfg.Feed.PageSize,
		MinLiquidity:    cfg.Feed.MinLiquidity,
		MinVolume:       cfg.Feed.MinVolume,
	})

	thresholdStore := thresholds.New(store)
	accuracyIndex := resolution.NewAccuracyIndex(store)
	cls := classifier.New(thresholdStore, accuracyIndex, store)

	alertGate := gate.New(store, gate.Config{
		MarketCooldown: cfg.Gate.MarketCooldown,
		MinSpacing:     cfg.Gate.MinSpacing,
		DailyCap:       cfg.Gate.DailyCap,
	})

	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	var sink detector.Sink
	if telegramClient != nil {
		sink = telegramClient
	}
	det := detector.New(store, cls, alertGate, sink, detector.Config{
		WindowHours: cfg.Detector.WindowHours,
		Workers:     cfg.Detector.Workers,
		BatchSize:   cfg.Detector.BatchSize,
	})
	tracker := resolution.New(store, thresholdStore)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	logger.Info("Starting signal detection service (poll: %v, windows: %v, workers: %d)",
		cfg.Detector.PollInterval,
		cfg.Detector.WindowHours,
		cfg.Detector.Workers,
	)

	detectTicker := time.NewTicker(cfg.Detector.PollInterval)
	defer detectTicker.Stop()
	resolveTicker := time.NewTicker(cfg.Detector.ResolutionInterval)
	defer resolveTicker.Stop()

	consecutiveFailures := 0

	handleCycleResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Detection pass failed: %v", err)
			if consecutiveFailures == 1 && telegramClient != nil {
				if sendErr := telegramClient.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
		} else {
			if consecutiveFailures > 0 && telegramClient != nil {
				if sendErr := telegramClient.SendRecovery(consecutiveFailures); sendErr != nil {
					logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
				}
			}
			consecutiveFailures = 0
		}
	}

	logger.Debug("Running initial detection pass")
	handleCycleResult(runDetectionPass(ctx, feedClient, det, cfg))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Service stopped")
			return

		case <-detectTicker.C:
			logger.Debug("Starting scheduled detection pass")
			handleCycleResult(runDetectionPass(ctx, feedClient, det, cfg))

		case <-resolveTicker.C:
			logger.Debug("Starting scheduled resolution pass")
			if err := runResolutionPass(ctx, feedClient, tracker, cfg); err != nil {
				logger.Error("Resolution pass failed: %v", err)
			}
		}
	}
}

func runDetectionPass(ctx context.Context, feedClient *feed.Client, det *detector.Detector, cfg *config.Config) error {
	startTime := time.Now()
	logger.Info("Starting detection pass")

	markets, err := feedClient.FetchMarkets(ctx, cfg.Feed.MaxMarkets)
	if err != nil {
		return err
	}
	logger.Info("Fetched %d markets", len(markets))

	stats, err := det.Run(ctx, markets, time.Now().UTC())
	if err != nil {
		return err
	}

	logger.Info("Detection pass completed in %v: %d ingested, %d analyzed, %d signals, %d delivered",
		time.Since(startTime), stats.Ingested, stats.Analyzed, stats.Detected, stats.Delivered)
	return nil
}

func runResolutionPass(ctx context.Context, feedClient *feed.Client, tracker *resolution.Tracker, cfg *config.Config) error {
	startTime := time.Now()
	logger.Info("Starting resolution pass")

	resolved, err := feedClient.FetchResolvedMarkets(ctx, cfg.Feed.ResolvedLookbackMin, cfg.Feed.ResolvedLookbackMax)
	if err != nil {
		return err
	}
	logger.Info("Fetched %d recently closed markets", len(resolved))

	processed, err := tracker.Process(resolved, time.Now().UTC())
	if err != nil {
		return err
	}

	logger.Info("Resolution pass completed in %v: %d markets newly resolved", time.Since(startTime), processed)
	return nil
}
