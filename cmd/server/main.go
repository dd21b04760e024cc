package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/retro-leaderboard/internal/app"
	"github.com/retro-leaderboard/internal/config"
	"github.com/retro-leaderboard/internal/handler"
	"github.com/retro-leaderboard/internal/kafka"
	"github.com/retro-leaderboard/internal/websocket"
	"github.com/retro-leaderboard/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if a.Cached {
		if err := a.Leaderboard.WarmCache(ctx); err != nil {
			logger.Warn("failed to warm standings cache", "error", err)
		}
	}

	wsHub := websocket.NewHub(logger)
	go wsHub.Run()

	updateService := a.Updates
	updateService.SetBroadcaster(wsHub)

	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("starting Kafka consumer", "request_topic", cfg.Kafka.RequestTopic)
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, updateService, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else if err := kafkaConsumer.Start(); err != nil {
			logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
			kafkaConsumer = nil
		}
	}

	updateWorker := worker.NewUpdateWorker(updateService, &cfg.Update, logger)
	if cfg.Update.Enabled {
		if err := updateWorker.Start(ctx); err != nil {
			logger.Error("failed to start update worker", "error", err)
			os.Exit(1)
		}
	}

	httpHandler := handler.NewHandler(updateService, a.Leaderboard, a.Games, wsHub, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	wsHub.Stop()

	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	if err := updateWorker.Stop(); err != nil {
		logger.Error("failed to stop update worker", "error", err)
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	logger.Info("server stopped")
}
