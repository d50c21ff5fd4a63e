package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gartstein/ymm/internal/registry/auth"
	"github.com/gartstein/ymm/internal/registry/config"
	"github.com/gartstein/ymm/internal/registry/controller"
	"github.com/gartstein/ymm/internal/registry/db"
	"github.com/gartstein/ymm/internal/registry/events"
	"github.com/gartstein/ymm/internal/registry/handlers"
	"github.com/gartstein/ymm/internal/registry/numbering"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

const healthInterval = 10 * time.Second

func main() {
	cfg, err := config.Load(config.DefaultPath)
	if err != nil {
		zap.Must(zap.NewProduction()).Fatal("failed to load config", zap.Error(err))
	}

	logger := initLogger(cfg.LogDevelopment)
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	repo, err := connectDatabase(cfg.Database(), logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Error("failed to close database", zap.Error(err))
		}
	}()

	producer := initProducer(cfg, logger)
	defer producer.Close()

	engine := numbering.NewEngine(cfg.LicenseNo, cfg.ManualCutoffYear, logger)
	registrySvc := controller.NewService(repo, engine, producer, controller.Options{
		DefaultWorkingYear: cfg.DefaultWorkingYear(time.Now()),
	}, logger)

	// Create handlers
	registryHandler := handlers.NewRegistryHandler(registrySvc, logger)

	// Initialize auth interceptor
	authInterceptor := auth.NewAuthInterceptor(cfg.JWTSecret)
	// Create server
	server := handlers.NewServer(cfg.GRPCPort, cfg.HTTPPort, cfg.GRPCReflection, logger,
		grpc.UnaryInterceptor(authInterceptor.Unary()),
		grpc.StreamInterceptor(authInterceptor.Stream()),
	)
	if err := server.RegisterHTTPHandler(registryHandler, repo, cfg.JWTSecret, cfg.RequestTimeout); err != nil {
		logger.Fatal("Failed to register HTTP handlers", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.WatchHealth(ctx, repo, healthInterval)

	// Start servers
	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("Failed to start servers", zap.Error(err))
		}
	}()

	waitForShutdown(server, logger)
}

// initLogger initializes a Zap logger; development mode is human readable.
func initLogger(development bool) *zap.Logger {
	if development {
		return zap.Must(zap.NewDevelopment())
	}
	return zap.Must(zap.NewProduction())
}

// connectDatabase retries until the database accepts connections or a
// minute has passed.
func connectDatabase(cfg *db.Config, logger *zap.Logger) (*db.Repository, error) {
	var repo *db.Repository
	operation := func() error {
		var err error
		repo, err = db.NewRepository(cfg)
		if err != nil {
			logger.Warn("database not ready", zap.Error(err))
		}
		return err
	}
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = time.Minute
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	logger.Info("database connected", zap.String("dialect", repo.Dialect()))
	return repo, nil
}

type eventProducer interface {
	controller.EventProducer
	Close()
}

// initProducer returns a Kafka producer, or a no-op one when no brokers are
// configured.
func initProducer(cfg *config.Config, logger *zap.Logger) eventProducer {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Warn("no Kafka brokers configured, events are dropped")
		return events.NopProducer{}
	}
	producer, err := events.NewProducer(cfg.KafkaBrokers, logger, cfg.Topic)
	if err != nil {
		logger.Fatal("failed to initialize Kafka producer", zap.Error(err))
	}
	return producer
}

// waitForShutdown blocks until an interrupt or SIGTERM is received, then shuts down servers.
func waitForShutdown(server *handlers.Server, logger *zap.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	server.Stop()
	logger.Info("Servers stopped properly")
}
