package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/user/obs-watcher/internal/captcha"
	"github.com/user/obs-watcher/internal/config"
	"github.com/user/obs-watcher/internal/extractor"
	"github.com/user/obs-watcher/internal/monitoring"
	"github.com/user/obs-watcher/internal/notify"
	"github.com/user/obs-watcher/internal/session"
	"github.com/user/obs-watcher/internal/storage"
	"github.com/user/obs-watcher/internal/watcher"
)

func main() {
	once := flag.Bool("once", false, "run a single check and exit")
	testMode := flag.Bool("test", false, "validate config, telegram and portal login, then exit")
	flag.Parse()

	// Initialize structured logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("could not load config", zap.Error(err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		os.Exit(1)
	}

	metrics := monitoring.NewMetrics()

	notifier, err := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID, logger)
	if err != nil {
		logger.Error("telegram setup failed", zap.Error(err))
		os.Exit(1)
	}

	// Captcha stack: vision tier only when an API key is configured.
	var vision *captcha.VisionTier
	if cfg.GeminiAPIKey != "" {
		vision = captcha.NewVisionTier(
			captcha.NewGeminiModel(cfg.GeminiAPIKey), cfg.GeminiModelList(), logger)
	} else {
		logger.Info("GEMINI_API_KEY not set, captcha solving is OCR-only")
	}
	solver := captcha.NewSolver(vision, captcha.NewTesseractEngine(), metrics, logger)

	newPortal := func() watcher.Portal {
		return session.New(session.Config{
			LoginURL:     cfg.LoginURL(),
			GradesURL:    cfg.GradesURL(),
			Username:     cfg.OBSUsername,
			Password:     cfg.OBSPassword,
			Headless:     cfg.Headless,
			LoginRetries: cfg.LoginRetries,
			PageTimeout:  time.Duration(cfg.PageTimeoutSeconds) * time.Second,
		}, solver, logger)
	}

	var store storage.SnapshotStore
	if cfg.SnapshotBackend == "redis" {
		store = storage.NewRedisStore(cfg.RedisAddr, logger)
	} else {
		store = storage.NewFileStore(cfg.CacheFile, logger)
	}

	var history watcher.History
	if cfg.PostgresURL != "" {
		h, err := storage.NewHistoryStore(context.Background(), cfg.PostgresURL)
		if err != nil {
			logger.Warn("grade history unavailable, continuing without it", zap.Error(err))
		} else {
			defer h.Close()
			history = h
		}
	}

	w := watcher.New(newPortal, extractor.New(logger), store, history, notifier, metrics, logger)

	if *testMode {
		runTestMode(notifier, newPortal, logger)
		return
	}
	if *once {
		w.Run(context.Background())
		return
	}

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Error("metrics listener failed", zap.Error(err))
			}
		}()
	}

	interval := time.Duration(cfg.CheckIntervalMinutes) * time.Minute
	logger.Info("starting watcher", zap.Duration("interval", interval))

	if err := notifier.Startup(interval); err != nil {
		logger.Warn("startup announcement failed", zap.Error(err))
	}

	// Initial check, then the fixed-period schedule.
	w.Run(context.Background())

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %dm", cfg.CheckIntervalMinutes), func() {
		w.Run(context.Background())
	}); err != nil {
		logger.Error("could not schedule checks", zap.Error(err))
		os.Exit(1)
	}
	c.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down, waiting for in-flight check...")
	<-c.Stop().Done()
	logger.Info("watcher stopped")
}

// runTestMode exercises every external collaborator once: telegram
// delivery, portal login and the grade fetch.
func runTestMode(notifier *notify.Telegram, newPortal func() watcher.Portal, logger *zap.Logger) {
	logger.Info("configuration validated")

	if err := notifier.Send("🔧 Test mesajı - OBS Bildirim Botu çalışıyor!"); err != nil {
		logger.Error("telegram test message failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("telegram test message sent")

	portal := newPortal()
	defer portal.Close()

	ctx := context.Background()
	if err := portal.Login(ctx); err != nil {
		logger.Error("portal login failed", zap.Error(err))
		return
	}
	logger.Info("portal login successful")

	html, err := portal.FetchResultsPage(ctx)
	if err != nil {
		logger.Error("fetching grades failed", zap.Error(err))
		return
	}
	records, err := extractor.New(logger).Extract(html)
	if err != nil {
		logger.Error("parsing grades failed", zap.Error(err))
		return
	}
	logger.Info("test completed", zap.Int("courses", len(records)))
}
