package queue

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Publisher defines the interface for publishing events to a stream.
type Publisher interface {
	// Publish adds an event to the specified stream and returns the id the bus assigned.
	Publish(ctx context.Context, stream string, event ChangeEvent) (messageID string, err error)
}

// RedisPublisher implements Publisher using Redis Streams.
type RedisPublisher struct {
	client *redis.Client
}

// NewPublisher creates a new Publisher backed by Redis Streams.
func NewPublisher(client *redis.Client) Publisher {
	return &RedisPublisher{client: client}
}

// Publish adds an event to the stream using XADD with an auto-generated id.
func (p *RedisPublisher) Publish(ctx context.Context, stream string, event ChangeEvent) (string, error) {
	startTime := time.Now()

	values, err := event.ToMap()
	if err != nil {
		log.Printf("[Publisher] Publish FAILED: stream=%s type=%s err=%v", stream, event.Type, err)
		return "", fmt.Errorf("serialize event: %w", err)
	}
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	for k, v := range carrier {
		values[traceFieldPrefix+k] = v
	}

	messageID, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Result()
	if err != nil {
		log.Printf("[Publisher] Publish FAILED: stream=%s type=%s err=%v", stream, event.Type, err)
		return "", fmt.Errorf("xadd to stream: %w", err)
	}

	log.Printf("[Publisher] Publish OK: stream=%s type=%s msgID=%s duration=%v",
		stream, event.Type, messageID, time.Since(startTime))
	logEventDetails("[Publisher]", event)

	return messageID, nil
}

// NopPublisher drops every event. Used by tests that do not observe events.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, stream string, event ChangeEvent) (string, error) {
	return "", nil
}

func logEventDetails(prefix string, event ChangeEvent) {
	switch event.Type {
	case EventPostCreated, EventPostLiked, EventPostCommented:
		log.Printf("%s   -> post=%s author=%s actor=%s", prefix, event.PostID, event.AuthorID, event.ActorID)
	case EventGraphRepair:
		if event.RepairSide != nil {
			log.Printf("%s   -> repair op=%s user=%s deltas=%d", prefix, event.RepairOp, event.RepairSide.UID, len(event.RepairSide.Deltas))
		}
	default:
		log.Printf("%s   -> actor=%s target=%s", prefix, event.ActorID, event.TargetID)
	}
}
