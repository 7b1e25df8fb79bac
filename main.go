package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fluent/fluent-logger-golang/fluent"

	"car-sniper/bot"
	"car-sniper/config"
	"car-sniper/scraper"
	"car-sniper/scraper/auto24"
	"car-sniper/server"
	"car-sniper/services"
	"car-sniper/storage"
	"car-sniper/utils"
)

const wizardTTL = 15 * time.Minute

func main() {
	once := flag.Bool("once", false, "run one scan with the log-only notifier, print insights and exit")
	flag.Parse()

	cfg := config.Load()

	var fluentClient *fluent.Fluent
	if cfg.FluentHost != "" {
		fc, err := utils.NewFluentClient(utils.FluentConfig{Host: cfg.FluentHost, Port: cfg.FluentPort, TagPrefix: cfg.FluentTag})
		if err != nil {
			fmt.Fprintf(os.Stderr, "fluentd disabled: %v\n", err)
		} else {
			fluentClient = fc
			defer fluentClient.Close()
		}
	}
	logger := utils.NewLoggerWithOptions(utils.LogOptions{
		Level:  cfg.LogLevel,
		JSON:   cfg.LogFormat == "json",
		Color:  cfg.LogColor,
		Fluent: fluentClient,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("=== Car Sniper starting ===")
	logger.Info("Config | sources: %d | interval: %v | fetch: %s | storage: %s | dry run: %v",
		len(cfg.SourceURLs), cfg.ScanInterval, cfg.FetchMode, cfg.Storage, cfg.DryRun)

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to open storage: %v", err)
		logger.Error("Make sure Docker is running: docker compose up -d")
		os.Exit(1)
	}
	defer store.Close()

	fetcher, closeFetcher, err := newFetcher(cfg, logger)
	if err != nil {
		logger.Error("Failed to create fetcher: %v", err)
		os.Exit(1)
	}
	defer closeFetcher()

	source, err := auto24.New(cfg, fetcher, logger.With("source", "auto24"))
	if err != nil {
		logger.Error("Failed to configure source: %v", err)
		os.Exit(1)
	}

	var snapshot storage.SnapshotWriter
	if cfg.CSVOutputPath != "" {
		csvWriter, err := storage.NewCSVWriter(cfg.CSVOutputPath)
		if err != nil {
			logger.Error("Failed to create CSV writer: %v", err)
			os.Exit(1)
		}
		defer csvWriter.Close()
		snapshot = csvWriter
	}

	wizard := services.NewWizard(wizardTTL)

	var (
		notifier services.Notifier
		tgBot    *bot.Bot
	)
	switch {
	case cfg.DryRun || *once:
		notifier = services.NewLogNotifier(logger)
	case cfg.BotToken == "":
		logger.Error("BOT_TOKEN is not set (use DRY_RUN=true to run without Telegram)")
		os.Exit(1)
	default:
		tgBot, err = bot.New(cfg.BotToken, store, wizard, cfg.SendRate, logger.With("component", "bot"))
		if err != nil {
			logger.Error("Failed to start Telegram bot: %v", err)
			os.Exit(1)
		}
		notifier = tgBot
	}

	orchestrator := services.NewOrchestrator(services.OrchestratorOptions{
		Sources:     []services.Source{source},
		Store:       store,
		Notifier:    notifier,
		Snapshot:    snapshot,
		SendTimeout: cfg.SendTimeout,
		DryRun:      tgBot == nil,
		Logger:      logger,
	})

	if *once {
		report, err := orchestrator.Tick(ctx)
		if err != nil {
			logger.Error("Scan failed: %v", err)
		}
		if report.Insights != nil {
			services.NewInsightService(logger).Print(os.Stdout, report.Insights)
		}
		fmt.Printf("  Done. %d listings, %d matches, %d notified\n\n", report.Listings, report.Matches, report.Sent)
		return
	}

	scheduler := services.NewScheduler(orchestrator, cfg.ScanInterval, cfg.FirstScanDelay, logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scheduler.Run(ctx)
	}()

	if tgBot != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tgBot.Run(ctx)
		}()
	}

	if cfg.StatusAddr != "" {
		srv := server.NewServer(cfg.StatusAddr, orchestrator, scheduler, logger)
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error("Status server failed: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Stop(shutdownCtx)
		}()
	}

	<-ctx.Done()
	logger.Info("Shutting down...")
	wg.Wait()
	logger.Info("=== Car Sniper stopped ===")
}

func openStore(ctx context.Context, cfg *config.Config, logger *utils.Logger) (storage.Store, error) {
	switch cfg.Storage {
	case "memory":
		logger.Warn("Using in-memory storage: filters and the ledger are lost on restart")
		return storage.NewMemoryStore(), nil
	case "postgres", "":
		ps, err := storage.NewPostgresStore(ctx, cfg.DSN(), logger)
		if err != nil {
			return nil, err
		}
		return ps, nil
	default:
		return nil, fmt.Errorf("unknown STORAGE %q", cfg.Storage)
	}
}

func newFetcher(cfg *config.Config, logger *utils.Logger) (scraper.Fetcher, func(), error) {
	switch cfg.FetchMode {
	case "browser":
		b := scraper.NewBrowserFetcher(cfg.ChromeBin, cfg.UserAgent, logger)
		return b, b.Close, nil
	case "http", "":
		f, err := scraper.NewHTTPFetcher(cfg.UserAgent, cfg.MaxConcurrency,
			time.Duration(cfg.RateLimitMs)*time.Millisecond, cfg.FetchTimeout)
		if err != nil {
			return nil, nil, err
		}
		return f, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown FETCH_MODE %q", cfg.FetchMode)
	}
}
