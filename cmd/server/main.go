package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/erain9/tinyme/config"
	"github.com/erain9/tinyme/pkg/backend/memory"
	redisstore "github.com/erain9/tinyme/pkg/backend/redis"
	"github.com/erain9/tinyme/pkg/db/queue"
	"github.com/erain9/tinyme/pkg/logging"
	"github.com/erain9/tinyme/pkg/messaging"
	"github.com/erain9/tinyme/pkg/messaging/kafka"
	natspub "github.com/erain9/tinyme/pkg/messaging/nats"
	"github.com/erain9/tinyme/pkg/messaging/ws"
	"github.com/erain9/tinyme/pkg/otel"
	"github.com/erain9/tinyme/pkg/server"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/zap"
)

var configFile = flag.String("config", "", "Path to config file (YAML)")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(logging.Config{
		Level:  cfg.Server.LogLevel,
		Pretty: strings.EqualFold(cfg.Server.LogFormat, "pretty"),
	})
	logger := log.Logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx)

	cleanup, err := otel.Init(otel.Config{
		ServiceVersion:   cfg.OTel.ServiceVersion,
		Endpoint:         cfg.OTel.Endpoint,
		MetricInterval:   cfg.OTel.MetricInterval,
		CollectorEnabled: cfg.OTel.Enabled,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize OpenTelemetry")
	}
	defer cleanup()
	if cfg.OTel.Enabled {
		if err := otel.StartRuntimeMetrics(cfg.OTel.MetricInterval); err != nil {
			logger.Warn().Err(err).Msg("Runtime metrics unavailable")
		}
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to start")
	}
	if err := a.run(ctx); err != nil {
		logger.Error().Err(err).Msg("Server stopped with error")
	}
	a.close()
	logger.Info().Msg("Shutdown complete")
}

// app wires the engine to its inputs (HTTP, Kafka) and outputs (Kafka,
// NATS, websockets) as configured
type app struct {
	cfg    *config.Config
	logger zerolog.Logger

	repo      *memory.Repository
	engine    *server.Engine
	service   *server.Service
	publisher *messaging.Fanout
	hub       *ws.Hub
	router    http.Handler

	store    *redisstore.Store
	consumer *kafka.RequestConsumer
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	repo, err := a.loadRepository(ctx)
	if err != nil {
		return nil, err
	}
	a.repo = repo
	logger.Info().Str("repository", repo.String()).Msg("Reference data loaded")

	a.hub = ws.NewHub(logger)
	a.publisher = messaging.NewFanout(a.hub)
	if err := a.connectPublishers(); err != nil {
		_ = a.publisher.Close()
		return nil, err
	}

	metrics := server.NewMetrics()
	a.engine = server.NewEngine(cfg.Engine.QueueSize, logger)
	a.service = server.NewService(a.engine, server.NewOrderHandler(repo, a.publisher, metrics), repo)
	a.router = server.NewRouter(a.service, metrics, a.hub)

	if cfg.Kafka.Enabled {
		a.consumer = kafka.NewRequestConsumer(cfg.Kafka.Brokers, cfg.Kafka.RequestsTopic, cfg.Kafka.GroupID, logger)
	}
	return a, nil
}

// loadRepository fills the repository from Redis when a snapshot exists
// there, and from the seed file otherwise
func (a *app) loadRepository(ctx context.Context) (*memory.Repository, error) {
	repo := memory.NewRepository()

	if a.cfg.Redis.Enabled {
		zl, err := zap.NewProduction()
		if err != nil {
			return nil, fmt.Errorf("creating zap logger: %w", err)
		}
		client := redisstore.NewClient(redisstore.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		a.store = redisstore.NewStore(client, a.cfg.Redis.Prefix, zl)
		if err := a.store.Ping(ctx); err != nil {
			return nil, fmt.Errorf("connecting to redis at %s: %w", a.cfg.Redis.Addr, err)
		}
		loaded, err := a.store.Load(ctx, repo)
		if err != nil {
			return nil, err
		}
		if loaded > 0 {
			return repo, nil
		}
	}

	if a.cfg.Seed.Path != "" {
		seed, err := memory.LoadSeedFile(a.cfg.Seed.Path)
		if err != nil {
			return nil, err
		}
		if err := seed.Apply(repo); err != nil {
			return nil, err
		}
	}
	return repo, nil
}

func (a *app) connectPublishers() error {
	if a.cfg.Kafka.Enabled {
		a.publisher.Add(kafka.NewPublisher(a.cfg.Kafka.Brokers, a.cfg.Kafka.EventsTopic))
		a.logger.Info().Strs("brokers", a.cfg.Kafka.Brokers).Str("topic", a.cfg.Kafka.EventsTopic).Msg("Publishing events to Kafka")
	}
	if a.cfg.Kafka.ProtoEnabled {
		a.publisher.Add(queue.NewProtoPublisher(queue.Config{
			Brokers: a.cfg.Kafka.Brokers,
			Topic:   a.cfg.Kafka.ProtoTopic,
		}))
		a.logger.Info().Str("topic", a.cfg.Kafka.ProtoTopic).Msg("Publishing protobuf events to Kafka")
	}
	if a.cfg.NATS.Enabled {
		p, err := natspub.Connect(a.cfg.NATS.URL, a.cfg.NATS.SubjectPrefix)
		if err != nil {
			return fmt.Errorf("connecting to nats: %w", err)
		}
		a.publisher.Add(p)
		a.logger.Info().Str("url", a.cfg.NATS.URL).Msg("Publishing events to NATS")
	}
	return nil
}

// run serves until ctx is cancelled, then shuts the listeners down
func (a *app) run(ctx context.Context) error {
	engineCtx, cancelEngine := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelEngine()
	engineDone := make(chan struct{})
	go func() {
		a.engine.Run(engineCtx)
		close(engineDone)
	}()

	errCh := make(chan error, 2)
	httpServer := &http.Server{
		Addr:              a.cfg.Server.HTTPAddr,
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info().Str("addr", a.cfg.Server.HTTPAddr).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("serving http: %w", err)
		}
	}()

	consumerCtx, cancelConsumer := context.WithCancel(ctx)
	defer cancelConsumer()
	if a.consumer != nil {
		go func() {
			if err := a.consumer.Run(consumerCtx, a.service.Handle); err != nil {
				errCh <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info().Msg("Received signal, shutting down")
	case runErr = <-errCh:
	}

	cancelConsumer()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	a.engine.Stop()
	<-engineDone
	return runErr
}

// close saves the final balances and releases every connection. The
// engine must be stopped.
func (a *app) close() {
	if a.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.store.Save(ctx, a.repo); err != nil {
			a.logger.Error().Err(err).Msg("Failed to save snapshot")
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close Kafka consumer")
		}
	}
	if err := a.publisher.Close(); err != nil {
		a.logger.Error().Err(err).Msg("Failed to close publishers")
	}
}
