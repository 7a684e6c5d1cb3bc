package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/amirasaad/settlement/pkg/domain/events"
	"github.com/amirasaad/settlement/pkg/eventbus"
	"github.com/redis/go-redis/v9"
)

// RedisEventBus publishes to one Redis stream per event type and consumes
// them through a consumer group. Failed deliveries go to a DLQ stream.
type RedisEventBus struct {
	client *redis.Client
	prefix string
	group  string
	logger *slog.Logger

	mu       sync.Mutex
	handlers map[events.EventType][]eventbus.HandlerFunc
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewWithRedis connects to url and uses stream as the name prefix.
func NewWithRedis(url, stream, group string, logger *slog.Logger) (*RedisEventBus, error) {
	if url == "" || stream == "" || group == "" {
		return nil, fmt.Errorf("redis event bus: url, stream and group are required")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis event bus: invalid URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis event bus: connection failed: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisEventBus{
		client:   client,
		prefix:   stream,
		group:    group,
		logger:   logger.With("bus", "redis"),
		handlers: make(map[events.EventType][]eventbus.HandlerFunc),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

func (b *RedisEventBus) streamFor(eventType events.EventType) string {
	return channelName(b.prefix, ":", eventType)
}

func (b *RedisEventBus) Emit(ctx context.Context, event events.Event) error {
	raw, err := encodeEnvelope(event)
	if err != nil {
		return fmt.Errorf("redis event bus: %w", err)
	}
	err = b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.streamFor(events.EventType(event.Type())),
		Values: map[string]any{"event": string(raw)},
	}).Err()
	if err != nil {
		b.logger.Error("failed to emit event", "type", event.Type(), "error", err)
		return fmt.Errorf("redis event bus: emit failed: %w", err)
	}
	return nil
}

// Register adds a handler and starts the consumer for eventType on first use.
func (b *RedisEventBus) Register(eventType events.EventType, handler eventbus.HandlerFunc) {
	b.mu.Lock()
	first := len(b.handlers[eventType]) == 0
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.mu.Unlock()
	if !first {
		return
	}

	stream := b.streamFor(eventType)
	if err := b.client.XGroupCreateMkStream(b.ctx, stream, b.group, "0").Err(); err != nil &&
		err.Error() != "BUSYGROUP Consumer Group name already exists" {
		b.logger.Error("create consumer group failed", "stream", stream, "error", err)
	}
	host, _ := os.Hostname()
	consumer := fmt.Sprintf("%s-%d", host, os.Getpid())

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.consume(eventType, stream, consumer)
	}()
	b.logger.Info("handler registered", "event_type", eventType, "stream", stream, "consumer", consumer)
}

func (b *RedisEventBus) consume(eventType events.EventType, stream, consumer string) {
	for {
		res, err := b.client.XReadGroup(b.ctx, &redis.XReadGroupArgs{
			Group:    b.group,
			Consumer: consumer,
			Streams:  []string{stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()
		if b.ctx.Err() != nil {
			return
		}
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				b.logger.Error("read stream failed", "stream", stream, "error", err)
				time.Sleep(time.Second)
			}
			continue
		}
		for _, s := range res {
			for _, msg := range s.Messages {
				b.handle(eventType, stream, msg)
			}
		}
	}
}

func (b *RedisEventBus) handle(eventType events.EventType, stream string, msg redis.XMessage) {
	defer func() {
		if err := b.client.XAck(b.ctx, stream, b.group, msg.ID).Err(); err != nil {
			b.logger.Error("ack failed", "stream", stream, "msg_id", msg.ID, "error", err)
		}
	}()
	raw, _ := msg.Values["event"].(string)
	evt, err := decodeEnvelope([]byte(raw))
	if err != nil {
		b.logger.Error("undecodable message", "stream", stream, "msg_id", msg.ID, "error", err)
		b.pushToDLQ(stream, msg.Values)
		return
	}

	b.mu.Lock()
	handlers := append([]eventbus.HandlerFunc(nil), b.handlers[eventType]...)
	b.mu.Unlock()
	for _, h := range handlers {
		if err := safeCall(b.ctx, h, evt); err != nil {
			b.logger.Error("handler failed", "event_type", eventType, "msg_id", msg.ID, "error", err)
			b.pushToDLQ(stream, msg.Values)
			return
		}
	}
}

func (b *RedisEventBus) pushToDLQ(stream string, values map[string]any) {
	dlq := stream + ":dlq"
	if err := b.client.XAdd(b.ctx, &redis.XAddArgs{Stream: dlq, Values: values}).Err(); err != nil {
		b.logger.Error("push to DLQ failed", "stream", dlq, "error", err)
		return
	}
	b.logger.Warn("event pushed to DLQ", "stream", dlq)
}

// Close stops the consumers and the client.
func (b *RedisEventBus) Close() error {
	b.cancel()
	b.wg.Wait()
	return b.client.Close()
}

func safeCall(ctx context.Context, h eventbus.HandlerFunc, evt events.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, evt)
}

var _ eventbus.Bus = (*RedisEventBus)(nil)
