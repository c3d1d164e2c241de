package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// natsSubject maps a stream and event type to a subject, e.g. "stream.feed.post_created".
func natsSubject(stream, eventType string) string {
	return strings.ReplaceAll(stream, ":", ".") + "." + eventType
}

// NatsPublisher implements Publisher on core NATS. Trace context travels in headers.
type NatsPublisher struct {
	nc *nats.Conn
}

func NewNatsPublisher(nc *nats.Conn) *NatsPublisher {
	return &NatsPublisher{nc: nc}
}

func (p *NatsPublisher) Publish(ctx context.Context, stream string, event ChangeEvent) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	msg := &nats.Msg{
		Subject: natsSubject(stream, event.Type),
		Data:    data,
		Header:  nats.Header{},
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))

	if err := p.nc.PublishMsg(msg); err != nil {
		log.Printf("[NatsPublisher] Publish FAILED: subject=%s err=%v", msg.Subject, err)
		return "", fmt.Errorf("nats publish: %w", err)
	}
	log.Printf("[NatsPublisher] Publish OK: subject=%s", msg.Subject)
	logEventDetails("[NatsPublisher]", event)
	return msg.Subject, nil
}

// EventHandler processes one change event.
type EventHandler interface {
	HandleEvent(ctx context.Context, event ChangeEvent) error
}

// NatsSubscriber delivers every event of a stream to a handler. Subscribers sharing a
// group split the events between them.
type NatsSubscriber struct {
	nc      *nats.Conn
	handler EventHandler
	timeout time.Duration
}

func NewNatsSubscriber(nc *nats.Conn, handler EventHandler) *NatsSubscriber {
	return &NatsSubscriber{nc: nc, handler: handler, timeout: 30 * time.Second}
}

// Subscribe starts delivery and returns the unsubscribe func.
func (s *NatsSubscriber) Subscribe(stream, group string) (func(), error) {
	subject := natsSubject(stream, ">")
	sub, err := s.nc.QueueSubscribe(subject, group, s.handle)
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", subject, err)
	}
	log.Printf("[NatsSubscriber] Listening: subject=%s group=%s", subject, group)

	return func() {
		if err := sub.Drain(); err != nil {
			log.Printf("[NatsSubscriber] Drain %s: %v", subject, err)
		}
	}, nil
}

func (s *NatsSubscriber) handle(msg *nats.Msg) {
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), propagation.HeaderCarrier(msg.Header))
	ctx, span := otel.Tracer("jazzfeed/queue").Start(ctx, "handle "+msg.Subject, trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	event, err := DecodeChangeEvent(msg.Data)
	if err != nil {
		span.RecordError(err)
		log.Printf("[NatsSubscriber] Invalid event on %s: %v", msg.Subject, err)
		return
	}
	if err := s.handler.HandleEvent(ctx, event); err != nil {
		span.RecordError(err)
		log.Printf("[NatsSubscriber] Handle %s FAILED: %v", event.Type, err)
	}
}
