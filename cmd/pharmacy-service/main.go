package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/medflow/medflow-pharmacy/internal/pharmacy/events"
	"github.com/medflow/medflow-pharmacy/internal/pharmacy/handler"
	"github.com/medflow/medflow-pharmacy/internal/pharmacy/pdmp"
	"github.com/medflow/medflow-pharmacy/internal/pharmacy/repository"
	"github.com/medflow/medflow-pharmacy/internal/pharmacy/service"
	"github.com/medflow/medflow-pharmacy/pkg/circuitbreaker"
	"github.com/medflow/medflow-pharmacy/pkg/config"
	"github.com/medflow/medflow-pharmacy/pkg/database"
	"github.com/medflow/medflow-pharmacy/pkg/httputil"
	"github.com/medflow/medflow-pharmacy/pkg/i18n"
	"github.com/medflow/medflow-pharmacy/pkg/logger"
	"github.com/medflow/medflow-pharmacy/pkg/messaging"
	"github.com/medflow/medflow-pharmacy/pkg/metrics"
	"github.com/medflow/medflow-pharmacy/pkg/tracing"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(config.ServiceName, cfg.Server.Environment, cfg.Log.Level)
	log.Info().Msg("starting Pharmacy Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, cfg.Tracing, config.ServiceName, cfg.Server.Environment)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracing")
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(ctx, repository.Migrations()); err != nil {
		log.Fatal().Err(err).Msg("failed to apply migrations")
	}

	// Events are dropped when the broker is disabled
	var publisher service.EventPublisher
	var rmq *messaging.RabbitMQ
	if !cfg.RabbitMQ.Disabled {
		rmq, err = messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer rmq.Close()
		go rmq.Watch(ctx)

		pub, err := events.NewPharmacyEventPublisher(rmq, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
		publisher = pub
	} else {
		log.Warn().Msg("RabbitMQ disabled, pharmacy events will not be published")
	}

	// Initialize repositories
	inventoryRepo := repository.NewInventoryRepository(db)
	dispensingRepo := repository.NewDispensingRepository(db)
	controlledRepo := repository.NewControlledLogRepository(db)
	prescriptionRepo := repository.NewPrescriptionRepository(db)
	medicationRepo := repository.NewMedicationRepository(db)
	pharmacyRepo := repository.NewPharmacyRepository(db)
	referenceRepo := repository.NewReferenceRepository(db)
	auditRepo := repository.NewAuditTrailRepository(db)

	// Registry submissions go through a circuit breaker
	breakerCfg := circuitbreaker.DefaultConfig("pdmp-registry")
	breakerCfg.Timeout = cfg.PDMP.BreakerTimeout
	breakerCfg.FailureThreshold = cfg.PDMP.BreakerMaxFailures
	registry := pdmp.NewBreakerSubmitter(
		pdmp.NewSimulatedRegistry(cfg.PDMP.StateCode, log),
		circuitbreaker.New(breakerCfg, log, m),
	)

	// Initialize services
	audit := service.NewAuditService(auditRepo, log)
	ledger := service.NewInventoryLedger(db, inventoryRepo, publisher, cfg.Inventory, m, log)
	checker := service.NewInteractionChecker(referenceRepo, service.SubstringMatcher{}, m, log)
	monitor := service.NewControlledSubstanceMonitor(controlledRepo, registry, nil, publisher, cfg.PDMP, m, log)
	orchestrator := service.NewDispensingOrchestrator(
		db,
		service.Stores{
			Prescriptions: prescriptionRepo,
			Medications:   medicationRepo,
			Pharmacies:    pharmacyRepo,
			Dispensings:   dispensingRepo,
			Controlled:    controlledRepo,
		},
		ledger, checker, monitor, audit, publisher, cfg.Dispensing, m, log,
	)

	var sweeper *service.ReportSweeper
	if cfg.PDMP.SweepEnabled {
		sweeper = service.NewReportSweeper(monitor, cfg.PDMP.SweepInterval, log)
		sweeper.Start(ctx)
	}

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.UserContext)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Language", "Authorization", "Content-Type", "X-Request-ID", "X-User-ID", "X-User-Email", "X-User-Role", "X-User-Permissions"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(i18n.Middleware)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		health := map[string]any{
			"status":   "healthy",
			"service":  config.ServiceName,
			"database": db.Health(r.Context()),
		}
		if rmq != nil {
			health["rabbitmq"] = rmq.Health()
		}
		httputil.JSON(w, http.StatusOK, health)
	})

	if m != nil {
		r.Handle(cfg.Metrics.Path, m.Handler())
	}

	handler.Mount(r, handler.Handlers{
		Dispensing: handler.NewDispensingHandler(orchestrator, log),
		Inventory:  handler.NewInventoryHandler(ledger, cfg.Inventory.ExpiringDays, log),
		Safety:     handler.NewSafetyHandler(checker, log),
		PDMP:       handler.NewPDMPHandler(monitor, log),
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	if sweeper != nil {
		sweeper.Stop()
	}
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to flush traces")
	}

	log.Info().Msg("server stopped")
}
