package worker_test

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"jazzfeed/internal/model"
	"jazzfeed/internal/queue"
	"jazzfeed/internal/worker"
)

// =============================================================================
// Mock Implementations
// =============================================================================

// MockFeeds records every invalidated viewer.
type MockFeeds struct {
	mu          sync.Mutex
	invalidated []string
}

func (m *MockFeeds) InvalidateViewers(ctx context.Context, uids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = append(m.invalidated, uids...)
	return nil
}

func (m *MockFeeds) Viewers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]string{}, m.invalidated...)
	sort.Strings(out)
	return out
}

// MockGraph simulates the user documents the worker reads followers from.
type MockGraph struct {
	users    map[string]*model.User
	repaired []model.GraphSide
	// repairErr makes Repair fail.
	repairErr error
}

func NewMockGraph() *MockGraph {
	return &MockGraph{users: make(map[string]*model.User)}
}

func (m *MockGraph) AddFollower(uid, follower string) {
	u, ok := m.users[uid]
	if !ok {
		u = &model.User{UID: uid}
		m.users[uid] = u
	}
	u.Followers = append(u.Followers, follower)
}

func (m *MockGraph) GetUser(ctx context.Context, uid string) (*model.User, error) {
	u, ok := m.users[uid]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	return u, nil
}

func (m *MockGraph) Repair(ctx context.Context, side model.GraphSide) error {
	if m.repairErr != nil {
		return m.repairErr
	}
	m.repaired = append(m.repaired, side)
	return nil
}

// =============================================================================
// Test Helpers
// =============================================================================

func setupTestRedis(t *testing.T) *redis.Client {
	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		t.Fatalf("Failed to parse Redis URL: %v", err)
	}

	// Use DB 1 for testing to avoid conflicts with dev data
	opts.DB = 1

	client := redis.NewClient(opts)

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available, skipping test: %v", err)
	}

	client.FlushDB(ctx)
	return client
}

func cleanupTestRedis(client *redis.Client) {
	ctx := context.Background()
	client.FlushDB(ctx)
	client.Close()
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// =============================================================================
// Handler Tests
// =============================================================================

// TestPostCreatedInvalidatesAudience checks that a new post refreshes the author and
// every follower, and nobody else.
func TestPostCreatedInvalidatesAudience(t *testing.T) {
	ctx := context.Background()
	feeds := &MockFeeds{}
	graph := NewMockGraph()
	handler := worker.NewHandler(feeds, graph, graph)

	graph.AddFollower("author", "f1")
	graph.AddFollower("author", "f2")
	graph.AddFollower("other", "f3")

	if err := handler.HandleEvent(ctx, queue.NewPostCreatedEvent("p1", "author")); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}

	want := []string{"author", "f1", "f2"}
	if got := feeds.Viewers(); !equalStrings(got, want) {
		t.Errorf("invalidated = %v, want %v", got, want)
	}
}

func TestEngagementEventsInvalidateAudience(t *testing.T) {
	ctx := context.Background()
	graph := NewMockGraph()
	graph.AddFollower("author", "fan")

	for _, event := range []queue.ChangeEvent{
		queue.NewPostLikedEvent("p1", "author", "fan"),
		queue.NewPostCommentedEvent("p1", "author", "fan"),
	} {
		feeds := &MockFeeds{}
		handler := worker.NewHandler(feeds, graph, graph)
		if err := handler.HandleEvent(ctx, event); err != nil {
			t.Fatalf("HandleEvent(%s) failed: %v", event.Type, err)
		}
		if got := feeds.Viewers(); !equalStrings(got, []string{"author", "fan"}) {
			t.Errorf("%s invalidated %v", event.Type, got)
		}
	}
}

func TestPostEventForUnknownAuthorFails(t *testing.T) {
	feeds := &MockFeeds{}
	graph := NewMockGraph()
	handler := worker.NewHandler(feeds, graph, graph)

	err := handler.HandleEvent(context.Background(), queue.NewPostCreatedEvent("p1", "ghost"))
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(feeds.Viewers()) != 0 {
		t.Errorf("nothing should be invalidated, got %v", feeds.Viewers())
	}
}

// TestGraphEventsInvalidateBothUsers covers every follow workflow transition.
func TestGraphEventsInvalidateBothUsers(t *testing.T) {
	types := []string{
		queue.EventFollowRequested,
		queue.EventFollowAccepted,
		queue.EventFollowDeclined,
		queue.EventFollowCancelled,
		queue.EventUserUnfollowed,
	}
	for _, eventType := range types {
		t.Run(eventType, func(t *testing.T) {
			feeds := &MockFeeds{}
			graph := NewMockGraph()
			handler := worker.NewHandler(feeds, graph, graph)

			if err := handler.HandleEvent(context.Background(), queue.NewGraphEvent(eventType, "a", "b")); err != nil {
				t.Fatalf("HandleEvent failed: %v", err)
			}
			if got := feeds.Viewers(); !equalStrings(got, []string{"a", "b"}) {
				t.Errorf("invalidated = %v", got)
			}
		})
	}
}

func TestProfileUpdatedInvalidatesFollowers(t *testing.T) {
	feeds := &MockFeeds{}
	graph := NewMockGraph()
	graph.AddFollower("a", "b")
	handler := worker.NewHandler(feeds, graph, graph)

	if err := handler.HandleEvent(context.Background(), queue.NewProfileUpdatedEvent("a")); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if got := feeds.Viewers(); !equalStrings(got, []string{"a", "b"}) {
		t.Errorf("invalidated = %v", got)
	}
}

// TestGraphRepairReplaysFailedSide replays the side carried in the event.
func TestGraphRepairReplaysFailedSide(t *testing.T) {
	feeds := &MockFeeds{}
	graph := NewMockGraph()
	handler := worker.NewHandler(feeds, graph, graph)

	partial := &model.PartialGraphUpdateError{
		Op:      "accept request",
		Applied: model.GraphSide{UID: "owner"},
		Failed: model.GraphSide{UID: "requester", Deltas: []model.MemberDelta{
			{Field: model.FieldFollowing, Value: "owner"},
			{Field: model.FieldFollowingRequests, Value: "owner", Remove: true},
		}},
		Err: model.ErrBackendUnavailable,
	}

	if err := handler.HandleEvent(context.Background(), queue.NewGraphRepairEvent(partial)); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if len(graph.repaired) != 1 || graph.repaired[0].UID != "requester" || len(graph.repaired[0].Deltas) != 2 {
		t.Fatalf("unexpected repairs: %+v", graph.repaired)
	}
	if got := feeds.Viewers(); !equalStrings(got, []string{"owner", "requester"}) {
		t.Errorf("invalidated = %v", got)
	}
}

func TestGraphRepairFailureIsReported(t *testing.T) {
	feeds := &MockFeeds{}
	graph := NewMockGraph()
	graph.repairErr = model.ErrBackendUnavailable
	handler := worker.NewHandler(feeds, graph, graph)

	partial := &model.PartialGraphUpdateError{
		Op:      "follow",
		Applied: model.GraphSide{UID: "a"},
		Failed:  model.GraphSide{UID: "b"},
	}
	err := handler.HandleEvent(context.Background(), queue.NewGraphRepairEvent(partial))
	if !errors.Is(err, model.ErrBackendUnavailable) {
		t.Fatalf("expected backend unavailable, got %v", err)
	}
	if len(feeds.Viewers()) != 0 {
		t.Errorf("nothing should be invalidated before the repair lands")
	}

	if err := handler.HandleEvent(context.Background(), queue.ChangeEvent{Type: queue.EventGraphRepair}); err == nil {
		t.Error("repair without side should fail")
	}
}

func TestUnknownEventType(t *testing.T) {
	graph := NewMockGraph()
	handler := worker.NewHandler(&MockFeeds{}, graph, graph)

	if err := handler.HandleEvent(context.Background(), queue.ChangeEvent{Type: "trip_created"}); err == nil {
		t.Error("expected error for unknown event type")
	}
}

// =============================================================================
// Manager Tests
// =============================================================================

// fakeConsumer serves one batch of messages and records acks.
type fakeConsumer struct {
	mu      sync.Mutex
	batch   []queue.Message
	acked   []string
	ackedCh chan struct{}
}

func (c *fakeConsumer) EnsureGroup(ctx context.Context, stream, group string) error { return nil }

func (c *fakeConsumer) Read(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]queue.Message, error) {
	c.mu.Lock()
	batch := c.batch
	c.batch = nil
	c.mu.Unlock()
	if len(batch) > 0 {
		return batch, nil
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Millisecond):
		return nil, nil
	}
}

func (c *fakeConsumer) Ack(ctx context.Context, stream, group string, messageIDs ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acked = append(c.acked, messageIDs...)
	if len(c.acked) == 2 {
		close(c.ackedCh)
	}
	return nil
}

func (c *fakeConsumer) Pending(ctx context.Context, stream, group string) (int64, error) {
	return 0, nil
}

// TestManagerHandlesAndAcks checks that failed events are acked like successful ones.
func TestManagerHandlesAndAcks(t *testing.T) {
	feeds := &MockFeeds{}
	graph := NewMockGraph()
	graph.AddFollower("author", "f1")
	handler := worker.NewHandler(feeds, graph, graph)

	consumer := &fakeConsumer{
		ackedCh: make(chan struct{}),
		batch: []queue.Message{
			{ID: "1-0", Event: queue.NewPostCreatedEvent("p1", "author")},
			{ID: "2-0", Event: queue.ChangeEvent{Type: "unknown"}},
		},
	}

	manager := worker.NewManager(consumer, handler, worker.ManagerConfig{WorkerCount: 1})
	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case <-consumer.ackedCh:
	case <-time.After(3 * time.Second):
		t.Fatal("messages were not acked")
	}
	manager.Stop()

	if got := feeds.Viewers(); !equalStrings(got, []string{"author", "f1"}) {
		t.Errorf("invalidated = %v", got)
	}
}

// =============================================================================
// Stream + Worker Integration Test
// =============================================================================

// TestStreamToWorkerIntegration tests the complete flow:
// Publisher -> Stream -> Consumer -> Handler -> FeedInvalidator
func TestStreamToWorkerIntegration(t *testing.T) {
	client := setupTestRedis(t)
	defer cleanupTestRedis(client)

	ctx := context.Background()

	feeds := &MockFeeds{}
	graph := NewMockGraph()
	graph.AddFollower("author", "f1")
	graph.AddFollower("author", "f2")
	handler := worker.NewHandler(feeds, graph, graph)
	publisher := queue.NewPublisher(client)
	consumer := queue.NewConsumer(client)

	if err := consumer.EnsureGroup(ctx, queue.StreamFeed, queue.ConsumerGroupFeed); err != nil {
		t.Fatalf("EnsureGroup failed: %v", err)
	}

	msgID, err := publisher.Publish(ctx, queue.StreamFeed, queue.NewPostCreatedEvent("p1", "author"))
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	t.Logf("Published message: %s", msgID)

	messages, err := consumer.Read(ctx, queue.StreamFeed, queue.ConsumerGroupFeed, "test-worker", 10, time.Second)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(messages))
	}

	msg := messages[0]
	if msg.Event.PostID != "p1" || msg.Event.AuthorID != "author" {
		t.Fatalf("event did not survive the stream: %+v", msg.Event)
	}
	if err := handler.HandleEvent(ctx, msg.Event); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if err := consumer.Ack(ctx, queue.StreamFeed, queue.ConsumerGroupFeed, msg.ID); err != nil {
		t.Fatalf("Ack failed: %v", err)
	}

	if got := feeds.Viewers(); !equalStrings(got, []string{"author", "f1", "f2"}) {
		t.Errorf("invalidated = %v", got)
	}

	pending, _ := consumer.Pending(ctx, queue.StreamFeed, queue.ConsumerGroupFeed)
	if pending != 0 {
		t.Errorf("Expected 0 pending messages, got %d", pending)
	}
}
