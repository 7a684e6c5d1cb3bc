//go:build kafka

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/amirasaad/settlement/pkg/domain/events"
	"github.com/amirasaad/settlement/pkg/eventbus"
	"github.com/segmentio/kafka-go"
)

// KafkaEventBusConfig holds configuration for the Kafka event bus.
type KafkaEventBusConfig struct {
	GroupID     string
	TopicPrefix string
}

// KafkaEventBus writes one topic per event type and reads each registered
// type through a consumer group. Handler failures are copied to a DLQ topic.
type KafkaEventBus struct {
	brokers []string
	writer  *kafka.Writer
	dialer  *kafka.Dialer
	config  KafkaEventBusConfig
	logger  *slog.Logger

	mu       sync.Mutex
	handlers map[events.EventType][]eventbus.HandlerFunc
	readers  map[events.EventType]*kafka.Reader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWithKafka connects to a comma-separated broker list.
func NewWithKafka(brokers string, logger *slog.Logger, config *KafkaEventBusConfig) (*KafkaEventBus, error) {
	list := parseBrokers(brokers)
	if len(list) == 0 {
		return nil, fmt.Errorf("kafka event bus: brokers are required")
	}
	cfg := KafkaEventBusConfig{GroupID: "settlement", TopicPrefix: "settlement.events"}
	if config != nil {
		if config.GroupID != "" {
			cfg.GroupID = config.GroupID
		}
		if strings.TrimSpace(config.TopicPrefix) != "" {
			cfg.TopicPrefix = config.TopicPrefix
		}
	}
	dialer := &kafka.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.Dial("tcp", list[0])
	if err != nil {
		return nil, fmt.Errorf("kafka event bus: connection failed: %w", err)
	}
	_ = conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	b := &KafkaEventBus{
		brokers: list,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(list...),
			AllowAutoTopicCreation: true,
			RequiredAcks:           kafka.RequireOne,
			Balancer:               &kafka.Hash{},
		},
		dialer:   dialer,
		config:   cfg,
		logger:   logger.With("bus", "kafka"),
		handlers: make(map[events.EventType][]eventbus.HandlerFunc),
		readers:  make(map[events.EventType]*kafka.Reader),
		ctx:      ctx,
		cancel:   cancel,
	}
	b.logger.Info("kafka event bus initialized", "brokers", list, "group_id", cfg.GroupID)
	return b, nil
}

func (b *KafkaEventBus) topicFor(eventType events.EventType) string {
	return channelName(b.config.TopicPrefix, ".", eventType)
}

func (b *KafkaEventBus) Emit(ctx context.Context, event events.Event) error {
	raw, err := encodeEnvelope(event)
	if err != nil {
		return fmt.Errorf("kafka event bus: %w", err)
	}
	msg := kafka.Message{
		Topic: b.topicFor(events.EventType(event.Type())),
		Key:   []byte(event.Type()),
		Value: raw,
		Time:  time.Now(),
	}
	if err := b.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka event bus: publish failed: %w", err)
	}
	return nil
}

func (b *KafkaEventBus) Register(eventType events.EventType, handler eventbus.HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	if _, ok := b.readers[eventType]; ok {
		return
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     b.brokers,
		GroupID:     b.config.GroupID,
		Topic:       b.topicFor(eventType),
		StartOffset: kafka.FirstOffset,
		MaxWait:     time.Second,
		Dialer:      b.dialer,
	})
	b.readers[eventType] = reader
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.consume(eventType, reader)
	}()
}

func (b *KafkaEventBus) consume(eventType events.EventType, reader *kafka.Reader) {
	for {
		msg, err := reader.FetchMessage(b.ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || b.ctx.Err() != nil {
				return
			}
			b.logger.Error("kafka fetch failed", "event_type", eventType, "error", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if err := b.process(eventType, msg); err != nil {
			// leave uncommitted so the group redelivers it
			b.logger.Error("kafka message not processed", "event_type", eventType, "offset", msg.Offset, "error", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if err := reader.CommitMessages(b.ctx, msg); err != nil {
			b.logger.Error("kafka commit failed", "event_type", eventType, "offset", msg.Offset, "error", err)
		}
	}
}

func (b *KafkaEventBus) process(eventType events.EventType, msg kafka.Message) error {
	evt, err := decodeEnvelope(msg.Value)
	if err != nil {
		b.logger.Error("undecodable kafka message", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		return b.toDLQ(eventType, msg.Value)
	}
	b.mu.Lock()
	handlers := append([]eventbus.HandlerFunc(nil), b.handlers[eventType]...)
	b.mu.Unlock()
	for _, h := range handlers {
		if err := safeCall(b.ctx, h, evt); err != nil {
			b.logger.Error("handler failed", "event_type", eventType, "offset", msg.Offset, "error", err)
			return b.toDLQ(eventType, msg.Value)
		}
	}
	return nil
}

func (b *KafkaEventBus) toDLQ(eventType events.EventType, raw []byte) error {
	topic := channelName(b.config.TopicPrefix+".dlq", ".", eventType)
	err := b.writer.WriteMessages(b.ctx, kafka.Message{Topic: topic, Key: []byte(eventType), Value: raw, Time: time.Now()})
	if err != nil {
		return fmt.Errorf("kafka event bus: dlq publish failed: %w", err)
	}
	b.logger.Warn("message sent to DLQ", "event_type", eventType, "topic", topic)
	return nil
}

// Close stops consumers and flushes the writer.
func (b *KafkaEventBus) Close() error {
	b.cancel()
	b.mu.Lock()
	for _, r := range b.readers {
		_ = r.Close()
	}
	b.mu.Unlock()
	b.wg.Wait()
	return b.writer.Close()
}

func parseBrokers(brokers string) []string {
	var out []string
	for _, p := range strings.Split(brokers, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var _ eventbus.Bus = (*KafkaEventBus)(nil)
