package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/marcelsud/webhook-dispatcher/delivery"
	"github.com/marcelsud/webhook-dispatcher/payload"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

const subjectPrefix = "events."

// Config holds the configuration for the JetStream intake bridge
type Config struct {
	URL            string
	StreamName     string
	ConsumerName   string
	Subject        string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectionName string
	AckWait        time.Duration
	MaxDeliver     int
}

// Publisher is the engine entry point the bridge feeds
type Publisher interface {
	Publish(ctx context.Context, e delivery.Event) ([]string, error)
}

// Message is the part of jetstream.Msg the bridge uses
type Message interface {
	Data() []byte
	Subject() string
	Metadata() (*jetstream.MsgMetadata, error)
	Ack() error
	Nak() error
	Term() error
}

/* Bridge consumes domain events from a JetStream stream and publishes them
 * Events are acked once dispatched, nak'd when the engine fails so JetStream
 * redelivers, and terminated when they can never be dispatched
 */
type Bridge struct {
	nc        *nats.Conn
	js        jetstream.JetStream
	publisher Publisher
	config    Config
	logger    *zap.Logger
}

type eventMessage struct {
	EventType  string        `json:"event_type"`
	OccurredAt *time.Time    `json:"occurred_at,omitempty"`
	Data       payload.Value `json:"data"`
}

// New connects to NATS and creates the JetStream context
func New(cfg Config, publisher Publisher, logger *zap.Logger) (*Bridge, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Subject == "" {
		cfg.Subject = subjectPrefix + ">"
	}

	opts := []nats.Option{
		nats.Name(cfg.ConnectionName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Error("disconnected from NATS", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	return &Bridge{
		nc:        nc,
		js:        js,
		publisher: publisher,
		config:    cfg,
		logger:    logger,
	}, nil
}

// Run consumes until ctx is canceled, messages are handled one at a time
func (b *Bridge) Run(ctx context.Context) error {
	b.logger.Info("starting event bridge",
		zap.String("stream", b.config.StreamName),
		zap.String("consumer", b.config.ConsumerName),
		zap.String("subject", b.config.Subject),
	)

	consumer, err := b.js.CreateOrUpdateConsumer(ctx, b.config.StreamName, jetstream.ConsumerConfig{
		Durable:       b.config.ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       b.config.AckWait,
		MaxDeliver:    b.config.MaxDeliver,
		FilterSubject: b.config.Subject,
	})
	if err != nil {
		return fmt.Errorf("creating consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		b.Handle(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("starting consumer: %w", err)
	}

	<-ctx.Done()
	b.logger.Info("shutting down event bridge")
	cc.Drain()
	<-cc.Closed()
	return nil
}

// Handle dispatches a single message and settles it
func (b *Bridge) Handle(ctx context.Context, msg Message) {
	logger := b.logger.With(zap.String("subject", msg.Subject()))
	if md, err := msg.Metadata(); err == nil && md != nil {
		logger = logger.With(zap.Uint64("num_delivered", md.NumDelivered))
	}

	e, err := DecodeEvent(msg.Subject(), msg.Data())
	if err != nil {
		logger.Warn("dropping undecodable event", zap.Error(err))
		if err := msg.Term(); err != nil {
			logger.Error("failed to terminate message", zap.Error(err))
		}
		return
	}

	ids, err := b.publisher.Publish(ctx, e)
	if errors.Is(err, delivery.ErrInvalidEvent) {
		logger.Warn("dropping invalid event", zap.String("event_type", e.Type), zap.Error(err))
		if err := msg.Term(); err != nil {
			logger.Error("failed to terminate message", zap.Error(err))
		}
		return
	}
	if err != nil {
		logger.Error("failed to publish event", zap.String("event_type", e.Type), zap.Error(err))
		if err := msg.Nak(); err != nil {
			logger.Error("failed to nak message", zap.Error(err))
		}
		return
	}

	if err := msg.Ack(); err != nil {
		logger.Error("failed to ack message", zap.Error(err))
		return
	}
	logger.Debug("event bridged", zap.String("event_type", e.Type), zap.Int("deliveries", len(ids)))
}

/* DecodeEvent parses a message body {event_type, occurred_at, data}
 * When event_type is absent it is taken from the subject after "events."
 */
func DecodeEvent(subject string, data []byte) (delivery.Event, error) {
	var m eventMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return delivery.Event{}, fmt.Errorf("decoding event: %w", err)
	}

	e := delivery.Event{Type: m.EventType, Data: m.Data}
	if e.Type == "" {
		e.Type = strings.TrimPrefix(subject, subjectPrefix)
	}
	if m.OccurredAt != nil {
		e.OccurredAt = *m.OccurredAt
	}
	return e, nil
}

// Close closes the NATS connection
func (b *Bridge) Close() {
	if b.nc == nil {
		return
	}
	b.nc.Close()
}
