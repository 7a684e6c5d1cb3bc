//go:build !kafka

package eventbus

import (
	"context"
	"errors"
	"log/slog"

	"github.com/amirasaad/settlement/pkg/domain/events"
	"github.com/amirasaad/settlement/pkg/eventbus"
)

var errKafkaDisabled = errors.New("kafka event bus: build with -tags kafka to enable")

type KafkaEventBusConfig struct {
	GroupID     string
	TopicPrefix string
}

type KafkaEventBus struct{}

func NewWithKafka(string, *slog.Logger, *KafkaEventBusConfig) (*KafkaEventBus, error) {
	return nil, errKafkaDisabled
}

func (b *KafkaEventBus) Register(events.EventType, eventbus.HandlerFunc) {}

func (b *KafkaEventBus) Emit(context.Context, events.Event) error {
	return errKafkaDisabled
}

func (b *KafkaEventBus) Close() error { return nil }

var _ eventbus.Bus = (*KafkaEventBus)(nil)
