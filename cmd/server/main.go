// Package main is the entry point for the investment analysis service.
// It runs the multi-agent research pipeline behind an HTTP API: clients
// submit analyses over a set of tickers, follow the run's log output live
// over WebSocket, and fetch the resulting recommendations.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/brunocrt/crew-investment-agents/internal/clients/marketdata"
	"github.com/brunocrt/crew-investment-agents/internal/config"
	"github.com/brunocrt/crew-investment-agents/internal/database"
	"github.com/brunocrt/crew-investment-agents/internal/events"
	"github.com/brunocrt/crew-investment-agents/internal/modules/analysis"
	"github.com/brunocrt/crew-investment-agents/internal/modules/crew"
	"github.com/brunocrt/crew-investment-agents/internal/modules/research"
	"github.com/brunocrt/crew-investment-agents/internal/reliability"
	"github.com/brunocrt/crew-investment-agents/internal/scheduler"
	"github.com/brunocrt/crew-investment-agents/internal/server"
	"github.com/brunocrt/crew-investment-agents/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting investment analysis service")

	// Databases: durable analyses store plus an ephemeral market data cache.
	analysesDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "analyses.db"),
		Profile: database.ProfileStandard,
		Name:    "analyses",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open analyses database")
	}
	defer analysesDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	if err := analysis.InitSchema(analysesDB.Conn()); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize analyses schema")
	}

	eventBus := events.NewBus(log)

	// Market data provider. Without a configured API the service runs on the
	// deterministic offline provider, which is enough for development and
	// for exercising the full pipeline.
	var provider marketdata.Provider
	var cacheRepo *marketdata.CacheRepository
	if cfg.MarketDataBaseURL != "" {
		cacheRepo, err = marketdata.NewCacheRepository(cacheDB.Conn())
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize market data cache")
		}
		history := marketdata.NewHistoryStore(filepath.Join(cfg.DataDir, "history"), log)
		provider = marketdata.NewClient(cfg.MarketDataBaseURL, cacheRepo, history, log)
		log.Info().Str("base_url", cfg.MarketDataBaseURL).Msg("Using market data API")
	} else {
		provider = marketdata.NewStaticProvider()
		log.Warn().Msg("No market data API configured, using offline provider")
	}

	// Analysis engine wiring: store, broker, sink, pipeline, service.
	repo := analysis.NewRepository(analysesDB.Conn(), log)
	broker := analysis.NewBroker(log)
	sink := analysis.NewSink(repo, broker, eventBus, log)

	researchSvc := research.NewService(provider, log)
	pipeline := crew.NewInvestmentCrew(researchSvc, provider, cfg.RequireAllStages, log)

	service := analysis.NewService(repo, broker, sink, pipeline, eventBus, log)

	srv := server.New(server.Config{
		Log:        log,
		Config:     cfg,
		AnalysesDB: analysesDB,
		CacheDB:    cacheDB,
		EventBus:   eventBus,
		Service:    service,
	})

	// Background jobs.
	sched := scheduler.New(log)
	if cfg.MonitorSchedule != "" {
		if err := sched.AddJob(cfg.MonitorSchedule, scheduler.NewMonitorJob(service, log)); err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.MonitorSchedule).Msg("Invalid monitor schedule")
		}
	}
	if cacheRepo != nil {
		// Daily at 03:30.
		if err := sched.AddJob("0 30 3 * * *", scheduler.NewCacheCleanupJob(cacheRepo, log)); err != nil {
			log.Fatal().Err(err).Msg("Failed to register cache cleanup job")
		}
	}
	if cfg.Backup != nil && cfg.Backup.Enabled {
		s3Client, err := reliability.NewS3Client(context.Background(), cfg.Backup, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize backup storage client")
		}
		backupSvc := reliability.NewBackupService(s3Client, analysesDB, cfg.DataDir, log)
		// Nightly at 02:00.
		if err := sched.AddJob("0 0 2 * * *", reliability.NewBackupJob(backupSvc, log)); err != nil {
			log.Fatal().Err(err).Msg("Failed to register backup job")
		}
	}
	sched.Start()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Block until SIGINT or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Let in-flight analyses reach a terminal state before closing the DBs.
	if err := service.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Timed out waiting for running analyses")
	}

	log.Info().Msg("Server stopped")
}
