package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/learnio/learnio/internal/config"
)

const metadataEventType = "event_type"

// Bus pairs a publisher and subscriber on one topic
type Bus struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	Topic      string

	closers []io.Closer
}

// NewBus connects to Kafka when brokers are configured, otherwise it uses an in-process channel
func NewBus(cfg config.KafkaConfig, logger *slog.Logger) (*Bus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	if len(cfg.Brokers) == 0 {
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, wmLogger)
		return &Bus{Publisher: ch, Subscriber: ch, Topic: cfg.Topic, closers: []io.Closer{ch}}, nil
	}

	publisher, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:   cfg.Brokers,
		Marshaler: kafka.DefaultMarshaler{},
	}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka publisher: %w", err)
	}

	// every portal instance needs every event, so each gets its own consumer group
	subscriber, err := kafka.NewSubscriber(kafka.SubscriberConfig{
		Brokers:               cfg.Brokers,
		Unmarshaler:           kafka.DefaultMarshaler{},
		OverwriteSaramaConfig: kafka.DefaultSaramaSubscriberConfig(),
		ConsumerGroup:         "learnio-portal-" + watermill.NewShortUUID(),
	}, wmLogger)
	if err != nil {
		publisher.Close()
		return nil, fmt.Errorf("failed to create kafka subscriber: %w", err)
	}

	return &Bus{
		Publisher:  publisher,
		Subscriber: subscriber,
		Topic:      cfg.Topic,
		closers:    []io.Closer{subscriber, publisher},
	}, nil
}

// Close shuts down both sides of the bus
func (b *Bus) Close() error {
	var errs []error
	for _, c := range b.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WatermillPublisher publishes events as JSON messages
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
	logger    *slog.Logger
}

func NewWatermillPublisher(publisher message.Publisher, topic string, logger *slog.Logger) *WatermillPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		topic:     topic,
		logger:    logger,
	}
}

func (p *WatermillPublisher) Publish(ctx context.Context, event *Event) error {
	payload, err := event.Marshal()
	if err != nil {
		return err
	}

	msg := message.NewMessage(event.ID, payload)
	msg.Metadata.Set(metadataEventType, string(event.Type))
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}

	p.logger.Debug("Event published",
		"event_id", event.ID,
		"event_type", event.Type,
		"subject", event.Subject)
	return nil
}

// Close is a no-op; the Bus owns the underlying publisher
func (p *WatermillPublisher) Close() error {
	return nil
}

// Consume delivers every event on the topic to handler until ctx is done.
// Failed and undecodable messages are logged and acked; the cache TTL bounds staleness.
func Consume(ctx context.Context, subscriber message.Subscriber, topic string, logger *slog.Logger, handler Handler) error {
	messages, err := subscriber.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}

			event, err := Unmarshal(msg.Payload)
			if err != nil {
				logger.Warn("Dropping malformed event", "message_id", msg.UUID, "error", err)
				msg.Ack()
				continue
			}

			if err := handler(msg.Context(), event); err != nil {
				logger.Error("Event handler failed",
					"event_id", event.ID,
					"event_type", event.Type,
					"error", err)
			}
			msg.Ack()
		}
	}
}
