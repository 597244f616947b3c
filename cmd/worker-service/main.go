package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nitinthakurcode/weddingflo-sub013/internal/config"
	"github.com/nitinthakurcode/weddingflo-sub013/internal/queue"
	"github.com/nitinthakurcode/weddingflo-sub013/shared/logger"
	"github.com/nitinthakurcode/weddingflo-sub013/shared/postgresql"
	"github.com/nitinthakurcode/weddingflo-sub013/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := logger.New(&logger.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       cfg.Logging.Output,
		EnableSource: cfg.Logging.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize PostgreSQL client (job store)
	dbClient, err := postgresql.NewClient(&postgresql.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	appLogger.Info("Database connection established")

	// Initialize RabbitMQ client (enqueue nudges). The worker keeps running
	// without it; the poll loop alone guarantees progress.
	rabbitClient, err := rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.RabbitMQ.Host,
		Port:               cfg.RabbitMQ.Port,
		User:               cfg.RabbitMQ.User,
		Password:           cfg.RabbitMQ.Password,
		VHost:              cfg.RabbitMQ.VHost,
		ExchangeName:       cfg.RabbitMQ.Exchange.Name,
		ExchangeType:       cfg.RabbitMQ.Exchange.Type,
		ExchangeDurable:    cfg.RabbitMQ.Exchange.Durable,
		ExchangeAutoDelete: cfg.RabbitMQ.Exchange.AutoDelete,
		QueueName:          cfg.RabbitMQ.Queue.Name,
		QueueDurable:       cfg.RabbitMQ.Queue.Durable,
		QueueAutoDelete:    cfg.RabbitMQ.Queue.AutoDelete,
		QueueExclusive:     cfg.RabbitMQ.Queue.Exclusive,
		RoutingKey:         cfg.RabbitMQ.RoutingKey,
		RetryAttempts:      cfg.RabbitMQ.Connection.RetryAttempts,
		RetryInterval:      cfg.RabbitMQ.Connection.RetryInterval,
		Heartbeat:          cfg.RabbitMQ.Connection.Heartbeat,
		ConnectionTimeout:  cfg.RabbitMQ.Connection.ConnectionTimeout,
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	appLogger.Info("RabbitMQ connection established")

	// Wire the store and dispatcher
	store := queue.NewPostgresStore(dbClient.GetDB(), appLogger.Logger, cfg.Worker.BackoffBase)
	dispatcher := queue.NewDispatcher(&queue.DispatcherConfig{
		Logger:       appLogger.Logger,
		Store:        store,
		Concurrency:  cfg.Worker.Concurrency,
		PollInterval: cfg.Worker.PollInterval,
		JobTimeout:   cfg.Worker.JobTimeout,
	})
	registerHandlers(dispatcher, appLogger.Logger)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Consume nudges so the dispatcher polls as soon as new work is enqueued
	go consumeNudges(ctx, rabbitClient, dispatcher, appLogger.Logger)

	// Periodically purge terminal jobs past the retention window
	go runCleanup(ctx, store, cfg.Worker.CleanupInterval, cfg.Worker.RetentionDays, appLogger.Logger)

	// Start dispatcher in goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := dispatcher.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Worker service is running")

	// Wait for interrupt signal or dispatcher error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		appLogger.Error("Dispatcher failed",
			slog.Any("error", err),
		)
		return err
	case sig := <-quit:
		appLogger.Info("Received shutdown signal",
			slog.String("signal", sig.String()),
		)
	}

	appLogger.Info("Shutting down worker service...")
	cancel()

	// Let in-flight jobs finish, but never hang past the shutdown timeout
	done := make(chan struct{})
	go func() {
		dispatcher.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker service shutdown complete")
	case <-time.After(cfg.Worker.ShutdownTimeout):
		appLogger.Warn("Shutdown timeout exceeded, forcing exit")
	}

	return nil
}

// registerHandlers binds job types to their handlers. Product job handlers
// plug in here.
func registerHandlers(dispatcher *queue.Dispatcher, logger *slog.Logger) {
	dispatcher.Register("noop", func(ctx context.Context, job *queue.Job) error {
		logger.Info("Noop job executed",
			slog.String("job_id", job.ID),
		)
		return nil
	})
}

// consumeNudges drains the nudge queue and wakes the dispatcher for each
// delivery. Nudge content is irrelevant; the dispatcher re-queries the store
// for whatever is actually due. Consumer errors are logged and the loop
// exits, leaving the poll ticker as the sole (and sufficient) trigger.
func consumeNudges(ctx context.Context, client *rabbitmq.Client, dispatcher *queue.Dispatcher, logger *slog.Logger) {
	deliveries, err := client.Consume("worker-service")
	if err != nil {
		logger.Warn("Failed to start nudge consumer, relying on poll loop",
			slog.String("error", err.Error()),
		)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case delivery, ok := <-deliveries:
			if !ok {
				logger.Warn("Nudge channel closed, relying on poll loop")
				return
			}
			if err := delivery.Ack(false); err != nil {
				logger.Warn("Failed to ack nudge",
					slog.String("error", err.Error()),
				)
			}
			dispatcher.Wake()
		}
	}
}

// runCleanup deletes terminal jobs older than the retention window on a
// fixed interval.
func runCleanup(ctx context.Context, store queue.Store, interval time.Duration, retentionDays int, logger *slog.Logger) {
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := store.CleanupOld(ctx, retentionDays)
			if err != nil {
				logger.Error("Job cleanup failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			if deleted > 0 {
				logger.Info("Purged old jobs",
					slog.Int64("deleted", deleted),
				)
			}
		}
	}
}
