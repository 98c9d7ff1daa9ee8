package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fleetrelay/backend/internal/ai"
	"github.com/fleetrelay/backend/internal/classifier"
	"github.com/fleetrelay/backend/internal/config"
	"github.com/fleetrelay/backend/internal/db"
	"github.com/fleetrelay/backend/internal/events"
	httpapi "github.com/fleetrelay/backend/internal/http"
	"github.com/fleetrelay/backend/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := log.Level(level).With().Str("service", "fleetrelay-backend").Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect db")
	}
	defer store.Close()

	var adapter ai.Adapter
	if cfg.AIURL == "" {
		adapter = ai.MockAdapter{}
		logger.Info().Msg("using mock AI adapter")
	} else {
		adapter = ai.OpenAICompatAdapter{
			BaseURL: cfg.AIURL,
			Model:   cfg.AIModel,
			APIKey:  cfg.AIAPIKey,
			Timeout: cfg.AITimeout,
		}
	}

	cls := &classifier.Classifier{AI: adapter, Logger: logger}

	producer := events.NewProducer(events.ParseBrokers(cfg.KafkaBrokers), cfg.KafkaTopic, logger)
	defer producer.Close()

	worker := service.NewWorker(store, cls, producer, logger, cfg.AITimeout+5*time.Second)
	worker.Start(ctx)

	buf := service.NewBuffer(cfg.BufferTimeout, logger)
	corr := &service.Correlator{
		Store:          store,
		Classifier:     cls,
		Buffer:         buf,
		Worker:         worker,
		Events:         producer,
		Logger:         logger,
		OpenWindow:     cfg.OpenWindow,
		ResolvedWindow: cfg.ResolvedWindow,
	}

	go corr.RunSweep(ctx, cfg.SweepInterval)

	router := httpapi.Router(cfg, store, corr, buf, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	_ = srv.Shutdown(ctxShutdown)

	worker.Close()
	cancel()
	logger.Info().Msg("server stopped")
}
