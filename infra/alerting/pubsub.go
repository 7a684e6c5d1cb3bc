// Package alerting forwards integrity alerts raised on the event bus to
// Google Cloud Pub/Sub so on-call tooling outside the service sees them.
package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/amirasaad/settlement/pkg/domain/events"
	"github.com/amirasaad/settlement/pkg/eventbus"
)

// Publisher sends one message and waits for the server ack.
type Publisher interface {
	Publish(ctx context.Context, data []byte, attrs map[string]string) error
}

// TopicPublisher publishes to a Pub/Sub topic.
type TopicPublisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewTopicPublisher connects to projectID and uses topicID, creating the
// topic when it does not exist yet. PUBSUB_EMULATOR_HOST is honoured by
// the client.
func NewTopicPublisher(ctx context.Context, projectID, topicID string) (*TopicPublisher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	topic := client.Topic(topicID)
	ok, err := topic.Exists(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pubsub topic %s: %w", topicID, err)
	}
	if !ok {
		if topic, err = client.CreateTopic(ctx, topicID); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("create pubsub topic %s: %w", topicID, err)
		}
	}
	return &TopicPublisher{client: client, topic: topic}, nil
}

func (p *TopicPublisher) Publish(ctx context.Context, data []byte, attrs map[string]string) error {
	res := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	_, err := res.Get(ctx)
	return err
}

// Close flushes pending messages and closes the client.
func (p *TopicPublisher) Close() error {
	p.topic.Stop()
	return p.client.Close()
}

// Forwarder publishes IntegrityAlertRaised events.
type Forwarder struct {
	pub     Publisher
	timeout time.Duration
	logger  *slog.Logger
}

func NewForwarder(pub Publisher, logger *slog.Logger) *Forwarder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Forwarder{pub: pub, timeout: 10 * time.Second, logger: logger.With("component", "alerting")}
}

// Register subscribes the forwarder to the bus.
func (f *Forwarder) Register(bus eventbus.Bus) {
	bus.Register(events.EventTypeIntegrityAlertRaised, f.Handle)
}

// Handle publishes one alert. The alert row is already committed, so a
// failed publish is returned for the bus to log and nothing is retried.
func (f *Forwarder) Handle(ctx context.Context, e events.Event) error {
	alert, ok := events.As[events.IntegrityAlertRaised](e)
	if !ok {
		return nil
	}
	data, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	if err := f.pub.Publish(ctx, data, map[string]string{
		"alertType": alert.AlertType,
		"severity":  alert.Severity,
	}); err != nil {
		return fmt.Errorf("publish alert %s: %w", alert.AlertID, err)
	}
	f.logger.Info("alert forwarded", "alert_id", alert.AlertID, "type", alert.AlertType)
	return nil
}
