package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	h "github.com/gorilla/handlers"
	"github.com/pressly/goose/v3"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/recallguard/recallguard-api/internal/alerting"
	"github.com/recallguard/recallguard-api/internal/config"
	"github.com/recallguard/recallguard-api/internal/dispatch"
	"github.com/recallguard/recallguard-api/internal/handlers"
	"github.com/recallguard/recallguard-api/internal/ingest"
	"github.com/recallguard/recallguard-api/internal/match"
	"github.com/recallguard/recallguard-api/internal/middleware"
	"github.com/recallguard/recallguard-api/internal/migration"
	"github.com/recallguard/recallguard-api/internal/remedy"
	"github.com/recallguard/recallguard-api/internal/repository"
	"github.com/recallguard/recallguard-api/internal/routes"
	"github.com/recallguard/recallguard-api/internal/source"
	"github.com/recallguard/recallguard-api/internal/temporal"
	"github.com/recallguard/recallguard-api/internal/temporal/activities"
	"github.com/recallguard/recallguard-api/internal/temporal/workflows"

	_ "github.com/lib/pq" // PostgreSQL driver
	tc "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

type application struct {
	config         *config.Config
	db             *sql.DB
	temporalClient tc.Client
	broker         *dispatch.Broker
	logger         zerolog.Logger

	recallRepo       repository.RecallRepository
	productRepo      repository.ProductRepository
	subscriptionRepo repository.SubscriptionRepository
	userRepo         repository.UserRepository
	alertRepo        repository.AlertRepository
	watermarkRepo    repository.WatermarkRepository

	orchestrator *ingest.Orchestrator
	poller       *remedy.Poller
	sweeper      *dispatch.Sweeper
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	temporalLogger := temporal.NewTemporalAdapter(logger)

	gooseAdapter := migration.NewGooseAdapter(logger)
	goose.SetLogger(gooseAdapter)

	// Load configuration.
	cfg := config.Load()

	// Initialize database connection.
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to the database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ping database")
	}

	// Run database migrations.
	migration.RunMigrations(cfg.DatabaseURL, logger)

	// Initialize Temporal client.
	temporalClient, err := tc.Dial(tc.Options{
		HostPort: cfg.Temporal.HostPort,
		Logger:   temporalLogger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Unable to create Temporal client")
	}
	defer temporalClient.Close()

	app := &application{
		config:         cfg,
		db:             db,
		temporalClient: temporalClient,
		broker:         dispatch.NewBroker(),
		logger:         logger,
	}
	app.initRepositories()
	app.initPipeline(logger)

	// Start the Temporal worker in a separate goroutine.
	temporalWorker := app.startTemporalWorker(logger)

	// Start the scheduled jobs.
	scheduler := app.startScheduler(logger)

	// Initialize the HTTP router and middleware.
	router := app.initRouter(logger)
	loggedRouter := middleware.LoggingMiddleware(app.logger)(router)
	corsHandler := h.CORS(
		h.AllowedOrigins([]string{"http://localhost:3000"}),
		h.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		h.AllowCredentials(),
	)(loggedRouter)

	// Start the HTTP server and handle graceful shutdown.
	app.startServer(corsHandler, temporalWorker, scheduler, logger)

	logger.Info().Msg("Application terminated.")
}

func (app *application) initRepositories() {
	app.recallRepo = repository.NewRecallRepository(app.db)
	app.productRepo = repository.NewProductRepository(app.db)
	app.subscriptionRepo = repository.NewSubscriptionRepository(app.db)
	app.userRepo = repository.NewUserRepository(app.db)
	app.alertRepo = repository.NewAlertRepository(app.db)
	app.watermarkRepo = repository.NewWatermarkRepository(app.db)
}

// initPipeline wires the ingest -> match -> alert pipeline and the
// remedy poller.
func (app *application) initPipeline(logger zerolog.Logger) {
	enqueuer := temporal.NewDeliveryEnqueuer(app.temporalClient, logger)
	generator := alerting.NewGenerator(app.alertRepo, app.userRepo, enqueuer, app.broker, logger)
	matcher := match.NewMatcher(app.productRepo, app.subscriptionRepo, logger)
	adapters := source.BuildAdapters(app.config, app.productRepo, logger)

	app.orchestrator = ingest.NewOrchestrator(
		adapters,
		app.recallRepo,
		app.watermarkRepo,
		matcher,
		generator,
		app.config.Fetch,
		logger,
	)
	app.poller = remedy.NewPoller(
		app.recallRepo,
		app.alertRepo,
		app.watermarkRepo,
		generator,
		app.broker,
		app.config.Remedy,
		logger,
	)
	app.sweeper = dispatch.NewSweeper(app.alertRepo, enqueuer, logger)
}

// initRouter sets up all HTTP handlers and returns the router.
func (app *application) initRouter(logger zerolog.Logger) http.Handler {
	recallHandler := handlers.NewRecallHandler(app.recallRepo, logger)
	adminHandler := handlers.NewAdminHandler(app.orchestrator, logger)
	eventsHandler := handlers.NewEventsHandler(app.broker, logger)

	return routes.NewRouter(recallHandler, adminHandler, eventsHandler)
}

func (app *application) startTemporalWorker(logger zerolog.Logger) worker.Worker {
	var notifiers []dispatch.Notifier

	emailNotifier, err := dispatch.NewEmailNotifier(app.config.Email, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("email notifier disabled")
	} else {
		notifiers = append(notifiers, emailNotifier)
	}

	pushNotifier, err := dispatch.NewPushNotifier(app.config.Push, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("push notifier disabled")
	} else {
		notifiers = append(notifiers, pushNotifier)
	}

	slackNotifier, err := dispatch.NewSlackNotifier(app.config.Slack, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("slack notifier disabled")
	} else {
		notifiers = append(notifiers, slackNotifier)
	}

	notifiers = append(notifiers, dispatch.NewWebhookNotifier(app.config.JWTSecret, logger))

	dispatcher := dispatch.NewDispatcher(
		app.alertRepo,
		app.recallRepo,
		app.userRepo,
		app.subscriptionRepo,
		logger,
		notifiers...,
	)
	activityImpl := &activities.Activities{Dispatcher: dispatcher}

	w := worker.New(app.temporalClient, temporal.TaskQueueName, worker.Options{})

	w.RegisterWorkflow(workflows.DeliveryWorkflow)
	w.RegisterActivity(activityImpl)

	// Start the worker in a goroutine so it doesn't block.
	go func() {
		logger.Info().Msg("Starting Temporal worker...")
		if err := w.Run(worker.InterruptCh()); err != nil {
			logger.Fatal().Err(err).Msg("Unable to start worker")
		}
	}()

	return w
}

// startScheduler registers the periodic refresh, the remedy poll, and
// the pending-alert sweep.
func (app *application) startScheduler(logger zerolog.Logger) *cron.Cron {
	scheduler := cron.New()

	if _, err := scheduler.AddFunc(app.config.Fetch.RefreshCron, func() {
		if _, err := app.orchestrator.Refresh(context.Background()); err != nil {
			if errors.Is(err, ingest.ErrRefreshInProgress) {
				logger.Warn().Msg("scheduled refresh skipped, previous run still active")
				return
			}
			logger.Error().Err(err).Msg("scheduled refresh failed")
		}
	}); err != nil {
		logger.Fatal().Err(err).Msg("Invalid refresh cron expression")
	}

	if _, err := scheduler.AddFunc(app.config.Remedy.Cron, func() {
		if _, err := app.poller.Run(context.Background()); err != nil {
			logger.Error().Err(err).Msg("remedy poll failed")
		}
	}); err != nil {
		logger.Fatal().Err(err).Msg("Invalid remedy cron expression")
	}

	if _, err := scheduler.AddFunc("@every 10m", func() {
		if err := app.sweeper.Run(context.Background()); err != nil {
			logger.Error().Err(err).Msg("pending alert sweep failed")
		}
	}); err != nil {
		logger.Fatal().Err(err).Msg("Failed to register pending sweep")
	}

	scheduler.Start()
	logger.Info().
		Str("refresh", app.config.Fetch.RefreshCron).
		Str("remedy", app.config.Remedy.Cron).
		Msg("Scheduler started")
	return scheduler
}

// startServer launches the HTTP server and handles graceful shutdown.
func (app *application) startServer(handler http.Handler, temporalWorker worker.Worker, scheduler *cron.Cron, logger zerolog.Logger) {
	server := &http.Server{
		Addr:    ":" + app.config.ServerPort,
		Handler: handler,
	}

	// Channel to listen for server errors
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for an interrupt signal or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Msgf("Received signal: %s. Shutting down...", sig)
	case err := <-serverErrCh:
		logger.Error().Err(err).Msg("Server error occurred")
	}

	// Stop taking new scheduled runs, let the active one finish.
	cronCtx := scheduler.Stop()
	<-cronCtx.Done()
	logger.Info().Msg("Scheduler stopped.")

	// Gracefully shut down the HTTP server.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server shutdown complete.")
	}

	// Stop the Temporal worker.
	logger.Info().Msg("Stopping Temporal worker...")
	temporalWorker.Stop()
	logger.Info().Msg("Temporal worker stopped.")
}
