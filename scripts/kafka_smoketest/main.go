//go:build kafka

// Command kafka_smoketest round-trips an integrity alert through the kafka
// event bus to check a local cluster before running the worker against it.
//
// Usage: go run -tags kafka ./scripts/kafka_smoketest
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	infraeventbus "github.com/amirasaad/settlement/infra/eventbus"
	"github.com/amirasaad/settlement/pkg/domain/events"
	"github.com/google/uuid"
)

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// RunSmokeTest emits one alert and waits for the registered handler to see it.
func RunSmokeTest(logger *slog.Logger) error {
	brokers := envOr("BROKERS", "localhost:9093,localhost:9092")
	bus, err := infraeventbus.NewWithKafka(brokers, logger, &infraeventbus.KafkaEventBusConfig{
		GroupID:     envOr("GROUP_ID", "settlement-smoketest"),
		TopicPrefix: envOr("TOPIC_PREFIX", "settlement.smoketest"),
	})
	if err != nil {
		return err
	}
	defer func() { _ = bus.Close() }()

	want := uuid.NewString()
	got := make(chan string, 1)
	bus.Register(events.EventTypeIntegrityAlertRaised, func(_ context.Context, e events.Event) error {
		if alert, ok := events.As[events.IntegrityAlertRaised](e); ok && alert.AlertID == want {
			select {
			case got <- alert.AlertID:
			default:
			}
		}
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := bus.Emit(ctx, events.IntegrityAlertRaised{
		AlertID:     want,
		AlertType:   "SMOKE_TEST",
		Severity:    "INFO",
		ReferenceID: "kafka",
		OccurredAt:  time.Now().UTC(),
	}); err != nil {
		return err
	}
	logger.Info("produced", "alert_id", want)

	select {
	case id := <-got:
		logger.Info("consumed", "alert_id", id)
		return nil
	case <-ctx.Done():
		return errors.New("alert not consumed before timeout")
	}
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	if err := RunSmokeTest(logger); err != nil {
		logger.Error("kafka smoke test failed", "error", err)
		os.Exit(1)
	}
	logger.Info("kafka smoke test passed")
}
