package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flight-radar/configs"
	"flight-radar/internal/database"
	"flight-radar/internal/logger"
	"flight-radar/internal/providers"
	"flight-radar/internal/services"
	"flight-radar/internal/store"
)

// reconcile runs one arrival reconciliation pass over yesterday's flights
// and exits, for hosts that schedule it externally.
func main() {
	if err := configs.LoadConfig(); err != nil {
		bootLog := logger.GetLogger()
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	cfg := configs.AppConfig

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		bootLog := logger.GetLogger()
		bootLog.Fatal().Err(err).Msg("Invalid logger configuration")
	}

	dbm, err := database.Open(database.Options{
		Driver:   cfg.DBDriver,
		WriteDSN: cfg.DatabaseURL,
		ReadDSNs: cfg.DatabaseReadURLs,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer dbm.Close()

	openSky := providers.NewOpenSkyClient(providers.OpenSkyConfig{
		BaseURL:      cfg.OpenSkyBaseURL,
		AuthURL:      cfg.OpenSkyAuthURL,
		ClientID:     cfg.OpenSkyClientID,
		ClientSecret: cfg.OpenSkyClientSecret,
		Timeout:      cfg.HTTPClientTimeout,
	})
	reconciler := services.NewReconciliationService(
		store.NewFlightCacheStore(dbm.WriteDB, dbm.GetReadDB),
		openSky,
		services.ReconcileConfig{
			MaxRetries:               cfg.ReconcileMaxRetries,
			BatchLimit:               cfg.ReconcileBatchLimit,
			Pacing:                   cfg.ReconcilePacing,
			LandingAltitudeThreshold: cfg.LandingAltitudeThreshold,
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.ReconcileJobTimeout)
	defer cancel()

	report, err := reconciler.RunOnce(ctx, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("Reconciliation failed")
	}
	log.Info().
		Int("candidates", report.Candidates).
		Int("resolved", report.Resolved).
		Int("retried", report.Retried).
		Int("errors", report.Errors).
		Bool("interrupted", report.Interrupted).
		Msg("Reconciliation finished")
}
