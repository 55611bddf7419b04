package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flight-radar/configs"
	"flight-radar/internal/cache"
	"flight-radar/internal/database"
	"flight-radar/internal/handlers"
	"flight-radar/internal/logger"
	"flight-radar/internal/middleware"
	"flight-radar/internal/providers"
	"flight-radar/internal/scheduler"
	"flight-radar/internal/services"
	"flight-radar/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// @title Flight Radar API
// @version 1.0
// @description Nearby flights with cached route, operator, aircraft and image enrichment

// @host localhost:8080
// @BasePath /api

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

const labelUpdatesChannel = "label_updates"

func main() {
	hashKey := flag.String("hash-api-key", "", "print the bcrypt hash for an admin API key and exit")
	flag.Parse()

	if *hashKey != "" {
		hash, err := services.HashAPIKey(*hashKey)
		if err != nil {
			fmt.Fprintln(os.Stderr, "failed to hash API key:", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

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

	cacheMgr := cache.NewCacheManager(cfg.RedisURL, labelUpdatesChannel)
	defer cacheMgr.Close()

	flightStore := store.NewFlightCacheStore(dbm.WriteDB, dbm.GetReadDB)

	openSky := providers.NewOpenSkyClient(providers.OpenSkyConfig{
		BaseURL:      cfg.OpenSkyBaseURL,
		AuthURL:      cfg.OpenSkyAuthURL,
		ClientID:     cfg.OpenSkyClientID,
		ClientSecret: cfg.OpenSkyClientSecret,
		Timeout:      cfg.HTTPClientTimeout,
	})
	labels := providers.NewCachedLabelProvider(
		providers.NewFlightWallClient(cfg.FlightWallCDNBaseURL, cfg.HTTPClientTimeout),
		cacheMgr,
		cfg.LabelCacheTTL,
	)
	routes := providers.NewAeroAPIClient(cfg.AeroAPIBaseURL, cfg.AeroAPIKey, cfg.HTTPClientTimeout)
	images := providers.NewWikimediaImageResolver(cfg.WikimediaBaseURL, cfg.HTTPClientTimeout)

	budget := services.NewBudgetGate(flightStore, cfg.MaxPaidCallsPerDay)
	enrichment := services.NewEnrichmentService(
		flightStore,
		budget,
		labels,
		routes,
		images,
		services.EnrichmentConfig{
			MaxAttemptsPerCallsign: cfg.MaxAttemptsPerCallsign,
			NegativeCacheTTL:       cfg.NegativeCacheTTL,
			LabelTimeout:           cfg.LabelTimeout,
			PaidTimeout:            cfg.PaidTimeout,
			ImageTimeout:           cfg.ImageTimeout,
			PlaceholderImageURL:    cfg.PlaceholderImageURL,
		},
	)
	flights := services.NewFlightService(openSky, enrichment, cfg.CenterLat, cfg.CenterLon, cfg.BBoxDegrees)
	reconciler := services.NewReconciliationService(flightStore, openSky, services.ReconcileConfig{
		MaxRetries:               cfg.ReconcileMaxRetries,
		BatchLimit:               cfg.ReconcileBatchLimit,
		Pacing:                   cfg.ReconcilePacing,
		LandingAltitudeThreshold: cfg.LandingAltitudeThreshold,
	})
	authService := services.NewAuthService(cfg.AdminAPIKeyHash, cfg.AdminJWTSecret, cfg.AdminJWTTTL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flightHandler := handlers.NewFlightHandler(flights)
	adminHandler := handlers.NewAdminHandler(ctx, authService, flightStore, reconciler, labels, handlers.AdminConfig{
		MaxPaidCallsPerDay: budget.MaxPerDay(),
		ReconcileTimeout:   cfg.ReconcileJobTimeout,
	})

	// Setup Gin router
	if os.Getenv("GIN_MODE") != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.ValidationMiddleware())

	router.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/static/index.html")
	})
	router.Static("/static", cfg.StaticDir)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/health", func(c *gin.Context) {
		status, code := "ok", http.StatusOK
		dbStatus := "connected"
		if err := dbm.Ping(); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
			dbStatus = "unavailable"
		}
		redisStatus := "local_cache_only"
		if cacheMgr.IsAvailable() {
			redisStatus = "connected"
		}
		reconcileStatus := "idle"
		if reconciler.Running() {
			reconcileStatus = "running"
		}
		c.JSON(code, gin.H{
			"status":    status,
			"timestamp": time.Now().Unix(),
			"services": map[string]string{
				"database":       dbStatus,
				"redis":          redisStatus,
				"reconciliation": reconcileStatus,
			},
		})
	})

	api := router.Group("/api")
	public := api.Group("")
	if cfg.EnableRateLimit {
		public.Use(middleware.RateLimitMiddleware(cacheMgr, cfg.RateLimitPerHour))
	}
	public.GET("/flights/nearby", flightHandler.NearbyFlights)

	api.POST("/admin/token", adminHandler.IssueToken)
	admin := api.Group("/admin")
	admin.Use(middleware.AdminAuthMiddleware(authService))
	admin.GET("/flights/:callsign", adminHandler.GetFlight)
	admin.GET("/budget", adminHandler.GetBudget)
	admin.POST("/reconcile", adminHandler.TriggerReconcile)
	admin.DELETE("/labels/:kind/:code", adminHandler.InvalidateLabel)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	cron := scheduler.NewCrontab(reconciler, cfg.ReconcileCron, cfg.ReconcileJobTimeout)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return cron.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		log.Info().Msg("Shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
		os.Exit(1)
	}
}
