// Package consumer reads one Kafka topic with at-least-once delivery. Offsets are committed after the
// handler has run, and an inbox table drops redelivered events by id.
package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
)

type Handler func(ctx context.Context, msg kafka.Message) error

// Inbox de-duplicates deliveries by event id. Forget undoes Record for an event whose handler failed.
type Inbox interface {
	Record(ctx context.Context, meta kafkax.EventMeta) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// Reader is the subset of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader   Reader
	logger   *slog.Logger
	inbox    Inbox
	handler  Handler
	attempts int
	backoff  time.Duration
}

type Config struct {
	Brokers string
	GroupID string
	Topic   string
	// Attempts bounds handler retries per message; defaults to 3.
	Attempts int
}

func New(logger *slog.Logger, inbox Inbox, cfg Config, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  kafkax.SplitBrokers(cfg.Brokers),
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	c := NewWithReader(logger, inbox, reader, handler)
	if cfg.Attempts > 0 {
		c.attempts = cfg.Attempts
	}
	return c
}

func NewWithReader(logger *slog.Logger, inbox Inbox, reader Reader, handler Handler) *Consumer {
	return &Consumer{
		reader:   reader,
		logger:   logger,
		inbox:    inbox,
		handler:  handler,
		attempts: 3,
		backoff:  200 * time.Millisecond,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka fetch error", "err", err)
			if !sleep(ctx, time.Second) {
				return
			}
			continue
		}
		c.handle(ctx, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit error", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	span.SetAttributes(attribute.String("messaging.message.id", meta.EventID))
	if c.inbox != nil {
		fresh, err := c.inbox.Record(ctxSpan, meta)
		if err != nil {
			c.logger.Error("inbox record failed", "err", err, "event_id", meta.EventID)
			span.RecordError(err)
			span.SetStatus(codes.Error, "inbox")
			return
		}
		if !fresh {
			c.logger.Debug("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
			return
		}
	}

	var err error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if err = c.handler(ctxSpan, msg); err == nil {
			return
		}
		c.logger.Warn("handler error", "err", err, "event_id", meta.EventID, "attempt", attempt)
		if attempt < c.attempts && !sleep(ctx, c.backoff*time.Duration(attempt)) {
			break
		}
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "handler")
	c.logger.Error("event dropped after retries", "err", err, "event_id", meta.EventID, "event_type", meta.EventType)
	if c.inbox != nil {
		if ferr := c.inbox.Forget(context.WithoutCancel(ctx), meta.EventID); ferr != nil {
			c.logger.Error("inbox forget failed", "err", ferr, "event_id", meta.EventID)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
