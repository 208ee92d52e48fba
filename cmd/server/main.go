package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"towtrace-backend/internal/cache"
	"towtrace-backend/internal/config"
	"towtrace-backend/internal/database"
	"towtrace-backend/internal/handlers"
	"towtrace-backend/internal/hos"
	"towtrace-backend/internal/logging"
	"towtrace-backend/internal/memstore"
	"towtrace-backend/internal/metrics"
	"towtrace-backend/internal/middleware"
	"towtrace-backend/internal/models"
	"towtrace-backend/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// backends groups the store implementations selected by database.driver
type backends struct {
	intervals hos.IntervalStore
	resolver  hos.DeviceResolver
	activity  hos.DeviceActivityRecorder
	audit     hos.AuditLog
	directory hos.DriverDirectory
	close     func()
}

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	// .env is optional; deployments set variables directly
	envErr := godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger := logging.Setup(cfg.Logging)
	logger.Info().Msg("🚀 TOWTRACE HOS SERVER STARTING")
	if envErr != nil {
		logger.Debug().Msg("⚠️  .env file not found, using environment variables from system")
	}

	b, err := openBackends(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("❌ Failed to initialize storage")
	}
	defer b.close()

	resolver := b.resolver
	if cfg.Redis.Enabled {
		client, err := cache.Open(cache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("⚠️  Redis unavailable, device lookups will not be cached")
		} else {
			defer client.Close()
			resolver = cache.NewDeviceResolver(client, b.resolver,
				config.ParseDuration(cfg.Redis.DeviceTTL, 5*time.Minute),
				config.ParseDuration(cfg.Redis.NegativeTTL, 30*time.Second),
				logger)
			logger.Info().Str("addr", cfg.Redis.Addr).Msg("✅ Device cache enabled")
		}
	}

	manager := hos.NewIntervalManager(b.intervals, cfg.HOS.ManagerConfig(), logger)
	ingestor := hos.NewIngestor(resolver, manager, b.activity, b.audit, cfg.IngestorConfig(), logger)
	compliance := hos.NewComplianceService(b.intervals, b.directory, cfg.HOS.Limits())

	wsHub := websocket.NewHub()
	go wsHub.Run()
	defer wsHub.Stop()
	logger.Info().Msg("✅ WebSocket hub started")

	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.Server.AllowedOrigin},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler())

	// WebSocket endpoint authenticates from the token query parameter
	r.Get("/ws", websocket.HandleWebSocket(wsHub, cfg.Auth.JWTSecret))

	r.Route("/api", func(r chi.Router) {
		// Device gateways authenticate upstream
		r.Post("/telemetry", handlers.IngestTelemetry(ingestor, wsHub))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.Auth.JWTSecret))

			r.Get("/drivers/{id}/intervals", handlers.GetDriverIntervals(compliance))
			r.Get("/drivers/{id}/summary", handlers.GetDriverSummary(compliance))
			r.Get("/drivers/{id}/hos-report", handlers.GetDriverHOSReport(compliance, cfg.HOS.ReportMaxDays))

			r.With(middleware.RequireRole("admin", "dispatcher")).
				Get("/fleet/duty-status", handlers.GetFleetDutyStatus(compliance))
		})
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Server.Port).Msg("🎯 Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("❌ Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("🛑 Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
	}
}

func openBackends(cfg *config.Config, logger zerolog.Logger) (*backends, error) {
	if cfg.Database.Driver == "memory" {
		logger.Warn().Msg("⚠️  Using in-memory store, data is lost on restart")
		store := memstore.New()
		seedMemory(store)
		return &backends{
			intervals: store,
			resolver:  store,
			activity:  store,
			audit:     store,
			directory: store,
			close:     func() {},
		}, nil
	}

	db, err := database.Connect(cfg.Database.URL, cfg.Database.MaxOpenConns)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	if cfg.Database.SeedDemo {
		if err := database.SeedDemoFleet(db); err != nil {
			db.Close()
			return nil, err
		}
	}

	devices := database.NewDeviceDirectory(db)
	return &backends{
		intervals: database.NewIntervalStore(db),
		resolver:  devices,
		activity:  devices,
		audit:     devices,
		directory: database.NewDriverDirectory(db),
		close:     func() { db.Close() },
	}, nil
}

func seedMemory(store *memstore.Store) {
	for _, d := range database.DemoFleet.Drivers {
		vehicleID := d.VehicleID
		store.AddDriver(models.Driver{
			ID:               d.ID,
			TenantID:         database.DemoFleet.TenantID,
			Name:             d.Name,
			CurrentVehicleID: &vehicleID,
		})
		store.AddDevice(models.DeviceAssignment{
			DeviceID:  d.DeviceID,
			DriverID:  d.ID,
			VehicleID: &vehicleID,
			TenantID:  database.DemoFleet.TenantID,
		})
	}
}
