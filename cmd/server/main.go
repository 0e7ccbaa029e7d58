package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/valuatech/portfolio-service/internal/api"
	"github.com/valuatech/portfolio-service/internal/cache"
	"github.com/valuatech/portfolio-service/internal/config"
	"github.com/valuatech/portfolio-service/internal/database"
	"github.com/valuatech/portfolio-service/internal/engine"
	"github.com/valuatech/portfolio-service/internal/kafka"
)

func main() {
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := log.With().Str("service", "portfolio-service").Logger()

	cfg := config.Load()

	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.RunMigrations(cfg.Database.MigrationsPath); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	valueCache := cache.New(redisClient, cfg.Redis.TTL, logger)

	producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic)
	defer producer.Close()

	eng := engine.New(db, db, db, db, db, db, engine.WeightPolicy(cfg.Engine.WeightPolicy), logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.RequestsTopic, cfg.Kafka.GroupID, eng, db, producer, logger)
	go func() {
		if err := consumer.Start(ctx); err != nil {
			logger.Error().Err(err).Msg("kafka consumer stopped")
		}
	}()

	handler := api.NewHandler(db, eng, producer, valueCache, logger)
	router := api.SetupRoutes(handler)

	srv := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown failed")
		os.Exit(1)
	}
}
