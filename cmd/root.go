package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"malasakit/internal/features"
	"malasakit/internal/handler"
	repo "malasakit/internal/repo"
	sv "malasakit/internal/service"
	"malasakit/internal/session"
	"malasakit/internal/utils/extractor"
	dbclient "malasakit/pkg/database/client"
	logging "malasakit/pkg/logger/pkg"
	rabbit "malasakit/pkg/rabbit/pkg"
	redisclient "malasakit/pkg/redis/pkg"
	"malasakit/schema"
)

func Execute() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Error loading .env file: %v", err)
	}
	if err := readConfig(); err != nil {
		log.Fatalf("Failed to read config: %v", err)
	}
	if err := logging.InitLogger(logging.ReadConfig()); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logger := logging.Base()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Fatal("Service stopped", zap.Error(err))
	}
	logger.Info("Service stopped")
}

func readConfig() error {
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = "config/config.yaml"
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			log.Printf("Config file %s not found, using environment only", path)
			return nil
		}
		return err
	}
	return nil
}

func run(ctx context.Context, logger *zap.Logger) error {
	drv, err := dbclient.Open("malasakit", dbclient.ReadConfig())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer drv.Close()
	if err := schema.Create(ctx, drv); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	repository := repo.New(drv, time.Duration(viper.GetInt("timeouts.db_ms"))*time.Millisecond)

	binder, err := newBinder(logger)
	if err != nil {
		return err
	}

	mq := rabbit.New(rabbit.ReadConfig())
	events := features.NewEventWorkerPool(mq, logger,
		viper.GetInt("events.workers"),
		viper.GetInt("events.queue_per_worker"),
		time.Duration(viper.GetInt("events.max_wait_ms"))*time.Millisecond)

	media := sv.NewMediaStore(sv.ReadMediaConfig(), logger)
	fetcher := sv.NewRecordingClient(sv.ReadRecordingConfig(), logger)
	cfg := features.ReadConfig()
	survey := features.New(repository, binder, fetcher, media, events, cfg)
	sweeper := features.NewSweeper(repository, cfg, logger)

	serverCfg := handler.ReadConfig()
	serverCfg.MediaRoot = media.Root()
	h := handler.NewSurveyHandler(survey, extractor.New(), map[string]handler.Pinger{
		"db":      repository,
		"session": binder,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return events.Run(ctx) })
	g.Go(func() error { return sweeper.Run(ctx) })
	g.Go(func() error { return mq.Consume(ctx, survey.ReceiveLinked) })
	g.Go(func() error { return startHTTP(ctx, logger, handler.NewRouter(h, serverCfg), serverCfg.Port) })
	return g.Wait()
}

func newBinder(logger *zap.Logger) (session.Binder, error) {
	cfg := session.ReadConfig()
	switch cfg.Backend {
	case session.BackendMemory:
		logger.Warn("Using in-process session store; calls cannot move between instances")
		return session.Memory(cfg.TTL), nil
	case session.BackendRedis:
		client, err := redisclient.New(redisclient.ReadConfig())
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return session.NewRedis(client, cfg.TTL), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}
