package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"strings"

	"github.com/retro-leaderboard/internal/config"
	"github.com/retro-leaderboard/internal/kafka"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	brokers := flag.String("brokers", "", "Kafka brokers (comma-separated), overrides config")
	topic := flag.String("topic", "", "Request topic, overrides config")
	challengeID := flag.Int64("challenge", 0, "Challenge to reconcile (0 = current)")
	requestedBy := flag.String("requested-by", "update-trigger", "Name recorded with the request")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}
	if *brokers != "" {
		cfg.Kafka.Brokers = strings.Split(*brokers, ",")
	}
	if *topic != "" {
		cfg.Kafka.RequestTopic = *topic
	}

	publisher, err := kafka.NewPublisher(&cfg.Kafka, logger)
	if err != nil {
		logger.Error("failed to create producer", "brokers", cfg.Kafka.Brokers, "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	req := kafka.UpdateRequest{ChallengeID: *challengeID, RequestedBy: *requestedBy}
	if err := publisher.PublishUpdateRequest(context.Background(), req); err != nil {
		logger.Error("failed to publish update request", "error", err)
		os.Exit(1)
	}

	logger.Info("update request published",
		"topic", cfg.Kafka.RequestTopic,
		"challenge_id", *challengeID,
	)
}
