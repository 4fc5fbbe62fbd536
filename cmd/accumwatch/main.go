package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/accumwatch/engine/internal/aggregator"
	"github.com/accumwatch/engine/internal/alerts"
	"github.com/accumwatch/engine/internal/config"
	"github.com/accumwatch/engine/internal/feed"
	"github.com/accumwatch/engine/internal/ingest"
	"github.com/accumwatch/engine/internal/metrics"
	"github.com/accumwatch/engine/internal/screener"
	"github.com/accumwatch/engine/internal/storage"
)

func main() {
	// Initialize logger
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(logrus.InfoLevel)

	// .env is optional; env vars win in deployed environments
	_ = godotenv.Load()

	log.Info("Starting accumwatch service...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	log.WithFields(logrus.Fields{
		"environment":        cfg.Environment,
		"signal_threshold":   cfg.Thresholds.SignalThreshold,
		"sweep_interval_sec": cfg.SweepIntervalSec,
		"sweep_workers":      cfg.SweepWorkers,
		"alert_mode":         cfg.AlertMode,
	}).Info("Configuration loaded")

	// Initialize database
	db, err := storage.New(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	log.Info("Database connected")

	// Run auto-migration
	if err := db.AutoMigrate(); err != nil {
		log.WithError(err).Fatal("Failed to run database migrations")
	}

	log.Info("Database migrations complete")

	// Initialize feed client
	feedClient := feed.NewClient(cfg)

	log.Info("Feed client initialized")

	// Initialize alert dispatcher
	dispatcher := createDispatcher(cfg, db, log)

	log.WithField("alert_mode", cfg.AlertMode).Info("Alert dispatcher initialized")

	// Initialize pipeline components
	ingester := ingest.New(db, feedClient, cfg.FeedBatchLimit, log)
	agg := aggregator.New(db, feedClient, dispatcher, cfg, log)
	screen := screener.New(db, log)

	// Start HTTP server (health + metrics + screener)
	go startHTTPServer(cfg.HealthPort, db, screen, log)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ingestTicker := time.NewTicker(time.Duration(cfg.IngestIntervalSec) * time.Second)
	defer ingestTicker.Stop()

	sweepTicker := time.NewTicker(time.Duration(cfg.SweepIntervalSec) * time.Second)
	defer sweepTicker.Stop()

	log.Info("Starting ingest and sweep loops")

	// Prime the pipeline immediately on startup
	if _, err := ingester.RunOnce(ctx); err != nil {
		log.WithError(err).Error("Error ingesting transfers")
	}
	if err := agg.Sweep(ctx); err != nil {
		log.WithError(err).Error("Error running detection sweep")
	}

	for {
		select {
		case <-ingestTicker.C:
			if _, err := ingester.RunOnce(ctx); err != nil {
				log.WithError(err).Error("Error ingesting transfers")
			}
		case <-sweepTicker.C:
			if err := agg.Sweep(ctx); err != nil {
				log.WithError(err).Error("Error running detection sweep")
			}
		case sig := <-sigChan:
			log.WithField("signal", sig).Info("Received shutdown signal")
			cancel()
			log.Info("Graceful shutdown complete")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, shutting down")
			return
		}
	}
}

// createDispatcher wires the configured alert channels into a dispatcher.
// The fallback sender covers subscribers with no usable channel; with
// several modes configured it fans out across all of them.
func createDispatcher(cfg *config.Config, db *storage.DB, log *logrus.Logger) *alerts.Dispatcher {
	var telegram *alerts.TelegramSender
	var smtpSender *alerts.SMTPSender
	fallbacks := []alerts.Sender{alerts.NewLogSender(log)}

	modes := strings.Split(cfg.AlertMode, ",")
	for _, mode := range modes {
		switch strings.TrimSpace(mode) {
		case "telegram":
			telegram = alerts.NewTelegramSender(cfg.TelegramBotToken, cfg.TelegramChatID)
			if cfg.TelegramChatID != "" {
				fallbacks = append(fallbacks, telegram)
			}
		case "smtp":
			smtpSender = alerts.NewSMTPSender(
				cfg.SMTPHost,
				cfg.SMTPPort,
				cfg.SMTPUser,
				cfg.SMTPPassword,
				cfg.SMTPFrom,
				cfg.SMTPTo,
			)
			if len(cfg.SMTPTo) > 0 {
				fallbacks = append(fallbacks, smtpSender)
			}
		case "log":
			// Always first in the fallback chain.
		default:
			log.WithField("mode", mode).Warn("Unknown alert mode, skipping")
		}
	}

	fallback := fallbacks[0]
	if len(fallbacks) > 1 {
		fallback = alerts.NewMultiSender(fallbacks...)
	}

	return alerts.NewDispatcher(db, telegram, smtpSender, fallback, cfg.Environment, log)
}

func startHTTPServer(port int, db *storage.DB, screen *screener.Engine, log *logrus.Logger) {
	mux := http.NewServeMux()

	// Health check endpoints
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		metrics.RecordHealthCheck(true)
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy"}`)
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			metrics.RecordHealthCheck(false)
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status":"not ready"}`)
			return
		}
		metrics.RecordHealthCheck(true)
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ready"}`)
	})

	// Screener endpoint
	mux.HandleFunc("/screener", func(w http.ResponseWriter, r *http.Request) {
		handleScreener(w, r, screen, log)
	})

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	log.WithField("port", port).Info("Starting HTTP server (health + metrics + screener)")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Error("HTTP server failed")
	}
}

// handleScreener serves GET /screener?preset=...&sort=...&limit=... plus the
// ad-hoc filter params (minScore, maxMarketCap, minVolume, minWhaleInflow,
// minSmartWallets, maxAgeDays, chain, signalType, breakout).
func handleScreener(w http.ResponseWriter, r *http.Request, screen *screener.Engine, log *logrus.Logger) {
	q := screener.Query{
		Preset: r.URL.Query().Get("preset"),
		SortBy: r.URL.Query().Get("sort"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			q.Limit = n
		}
	}
	if v := r.URL.Query().Get("minScore"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			q.Filter.MinAccumulationScore = &f
		}
	}
	if v := r.URL.Query().Get("maxMarketCap"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			q.Filter.MaxMarketCap = &f
		}
	}
	if v := r.URL.Query().Get("minVolume"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			q.Filter.MinVolume24h = &f
		}
	}
	if v := r.URL.Query().Get("minWhaleInflow"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			q.Filter.MinWhaleInflowPct = &f
		}
	}
	if v := r.URL.Query().Get("minSmartWallets"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			q.Filter.MinSmartWallets = &n
		}
	}
	if v := r.URL.Query().Get("maxAgeDays"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			q.Filter.MaxAgeDays = &n
		}
	}
	q.Filter.Chain = r.URL.Query().Get("chain")
	q.Filter.SignalType = r.URL.Query().Get("signalType")
	q.Filter.BreakoutOnly = r.URL.Query().Get("breakout") == "true"

	rows, err := screen.Screen(r.Context(), q)
	if err != nil {
		log.WithError(err).Error("Screener query failed")
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, `{"error":"screener unavailable"}`)
		return
	}
	if rows == nil {
		rows = []screener.Row{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rows); err != nil {
		log.WithError(err).Error("Failed to encode screener response")
	}
}
