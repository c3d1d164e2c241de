package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"jazzfeed/internal/docstore"
	"jazzfeed/internal/model"
	"jazzfeed/internal/queue"
	"jazzfeed/internal/repository"
)

// =============================================================================
// MOCKS
// =============================================================================

// recordingPublisher keeps every published event. Set err to make Publish fail.
type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.ChangeEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, stream string, event queue.ChangeEvent) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, event)
	return fmt.Sprintf("%d-0", len(p.events)), nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func (p *recordingPublisher) last() queue.ChangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return queue.ChangeEvent{}
	}
	return p.events[len(p.events)-1]
}

// flakyMutateStore fails Mutate on chosen document ids a fixed number of times, and
// reports ids in missing as deleted.
type flakyMutateStore struct {
	*docstore.MemoryStore
	mu         sync.Mutex
	failMutate map[string]int
	missing    map[string]bool
}

func (s *flakyMutateStore) Mutate(ctx context.Context, collection, id string, ops ...docstore.Mutation) error {
	s.mu.Lock()
	if s.missing[id] {
		s.mu.Unlock()
		return fmt.Errorf("mutate %s: %w", id, docstore.ErrNotFound)
	}
	if s.failMutate[id] > 0 {
		s.failMutate[id]--
		s.mu.Unlock()
		return fmt.Errorf("mutate %s: %w", id, docstore.ErrUnavailable)
	}
	s.mu.Unlock()
	return s.MemoryStore.Mutate(ctx, collection, id, ops...)
}

// failingComments breaks GetComments for every post.
type failingComments struct {
	repository.PostStore
}

func (f failingComments) GetComments(ctx context.Context, postID string) ([]model.Comment, error) {
	return nil, fmt.Errorf("comments: %w", model.ErrBackendUnavailable)
}

// =============================================================================
// FIXTURE
// =============================================================================

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// tickingClock returns a time one second later on every call, so posts created in
// sequence have strictly increasing timestamps.
func tickingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}

type fixture struct {
	store     *flakyMutateStore
	graph     repository.GraphStore
	posts     repository.PostStore
	publisher *recordingPublisher

	feed       *FeedService
	follow     *FollowService
	profile    *ProfileService
	engagement *EngagementService
	compose    *PostService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := &flakyMutateStore{MemoryStore: docstore.NewMemoryStore(), failMutate: map[string]int{}, missing: map[string]bool{}}
	graph := repository.NewGraphStore(store)
	posts := repository.NewPostStoreWithClock(store, tickingClock(epoch))
	pub := &recordingPublisher{}
	feed := NewFeedService(graph, posts)

	return &fixture{
		store:      store,
		graph:      graph,
		posts:      posts,
		publisher:  pub,
		feed:       feed,
		follow:     NewFollowService(graph, pub),
		profile:    NewProfileService(graph, posts, feed, pub),
		engagement: NewEngagementService(posts, pub),
		compose:    NewPostService(posts, pub, ""),
	}
}

func (f *fixture) signup(t *testing.T, uids ...string) {
	t.Helper()
	for _, uid := range uids {
		_, err := f.profile.Signup(context.Background(), uid, model.SignupRequest{
			DisplayName: "User " + uid,
			Email:       uid + "@example.com",
		})
		require.NoError(t, err)
	}
}

func (f *fixture) post(t *testing.T, author, text string) *model.Post {
	t.Helper()
	p, err := f.posts.CreatePost(context.Background(), author, text, nil)
	require.NoError(t, err)
	return p
}

// befriend runs the full request/accept workflow so requester follows owner.
func (f *fixture) befriend(t *testing.T, requester, owner string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.follow.RequestFollow(ctx, requester, owner)
	require.NoError(t, err)
	_, err = f.follow.Accept(ctx, owner, requester)
	require.NoError(t, err)
}

func entryIDs(entries []model.FeedEntry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	return ids
}
