package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jazzfeed/internal/docstore"
	"jazzfeed/internal/model"
)

// =============================================================================
// Test Helpers
// =============================================================================

// countingStore records queries and can fail Mutate on chosen documents.
type countingStore struct {
	*docstore.MemoryStore
	queries [][]string
	// failMutate maps document id -> number of Mutate calls to fail.
	failMutate map[string]int
	mutateErr  error
}

func newCountingStore() *countingStore {
	return &countingStore{
		MemoryStore: docstore.NewMemoryStore(),
		failMutate:  make(map[string]int),
		mutateErr:   fmt.Errorf("mutate: %w", docstore.ErrUnavailable),
	}
}

func (s *countingStore) Query(ctx context.Context, collection string, filter docstore.Filter, orderBy string, dir docstore.Direction) ([]docstore.Document, error) {
	if values, ok := filter.Value.([]string); ok {
		s.queries = append(s.queries, values)
	}
	return s.MemoryStore.Query(ctx, collection, filter, orderBy, dir)
}

func (s *countingStore) Mutate(ctx context.Context, collection, id string, ops ...docstore.Mutation) error {
	if s.failMutate[id] > 0 {
		s.failMutate[id]--
		return s.mutateErr
	}
	return s.MemoryStore.Mutate(ctx, collection, id, ops...)
}

func seedUsers(t *testing.T, graph GraphStore, uids ...string) {
	t.Helper()
	for _, uid := range uids {
		require.NoError(t, graph.CreateUser(context.Background(), &model.User{
			UID:         uid,
			DisplayName: "User " + uid,
			Email:       uid + "@example.com",
		}))
	}
}

func mustUser(t *testing.T, graph GraphStore, uid string) *model.User {
	t.Helper()
	u, err := graph.GetUser(context.Background(), uid)
	require.NoError(t, err)
	return u
}

// assertMirror checks X in A.followers <=> A in X.following for every pair.
func assertMirror(t *testing.T, graph GraphStore, uids ...string) {
	t.Helper()
	for _, a := range uids {
		ua := mustUser(t, graph, a)
		for _, x := range uids {
			if a == x {
				continue
			}
			ux := mustUser(t, graph, x)
			assert.Equal(t, ua.HasFollower(x), ux.IsFollowing(a), "mirror broken for %s/%s", a, x)
			if ux.IsFollowing(a) {
				assert.False(t, ux.HasRequestedFollow(a), "pending request coexists with edge %s->%s", x, a)
				assert.False(t, ua.HasFollowerRequest(x), "pending request coexists with edge %s->%s", x, a)
			}
		}
	}
}

// =============================================================================
// FOLLOW / UNFOLLOW
// =============================================================================

func TestGraphStore_FollowThenUnfollowRestoresState(t *testing.T) {
	ctx := context.Background()
	graph := NewGraphStore(docstore.NewMemoryStore())
	seedUsers(t, graph, "a", "b")

	require.NoError(t, graph.Follow(ctx, "a", "b"))
	assert.True(t, mustUser(t, graph, "a").IsFollowing("b"))
	assert.True(t, mustUser(t, graph, "b").HasFollower("a"))
	assertMirror(t, graph, "a", "b")

	require.NoError(t, graph.Unfollow(ctx, "a", "b"))
	a, b := mustUser(t, graph, "a"), mustUser(t, graph, "b")
	assert.Empty(t, a.Following)
	assert.Empty(t, b.Followers)
	assertMirror(t, graph, "a", "b")
}

func TestGraphStore_FollowIsIdempotent(t *testing.T) {
	ctx := context.Background()
	graph := NewGraphStore(docstore.NewMemoryStore())
	seedUsers(t, graph, "a", "b")

	require.NoError(t, graph.Follow(ctx, "a", "b"))
	require.NoError(t, graph.Follow(ctx, "a", "b"))
	assert.Equal(t, []string{"b"}, mustUser(t, graph, "a").Following)
	assert.Equal(t, []string{"a"}, mustUser(t, graph, "b").Followers)
}

func TestGraphStore_SelfFollowRejected(t *testing.T) {
	ctx := context.Background()
	graph := NewGraphStore(docstore.NewMemoryStore())
	seedUsers(t, graph, "a")

	for name, fn := range map[string]func() error{
		"follow":  func() error { return graph.Follow(ctx, "a", "a") },
		"request": func() error { return graph.RequestFollow(ctx, "a", "a") },
		"accept":  func() error { return graph.AcceptRequest(ctx, "a", "a") },
		"unfollow": func() error {
			return graph.Unfollow(ctx, "a", "a")
		},
	} {
		t.Run(name, func(t *testing.T) {
			err := fn()
			assert.ErrorIs(t, err, model.ErrInvalidOperation)
		})
	}
}

func TestGraphStore_FollowUnknownTarget(t *testing.T) {
	graph := NewGraphStore(docstore.NewMemoryStore())
	seedUsers(t, graph, "a")

	err := graph.Follow(context.Background(), "a", "ghost")
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Empty(t, mustUser(t, graph, "a").Following)
}

// =============================================================================
// REQUEST / ACCEPT / DECLINE
// =============================================================================

func TestGraphStore_RequestThenAcceptEqualsFollow(t *testing.T) {
	ctx := context.Background()

	viaRequest := NewGraphStore(docstore.NewMemoryStore())
	seedUsers(t, viaRequest, "a", "b")
	require.NoError(t, viaRequest.RequestFollow(ctx, "a", "b"))
	assert.True(t, mustUser(t, viaRequest, "a").HasRequestedFollow("b"))
	assert.True(t, mustUser(t, viaRequest, "b").HasFollowerRequest("a"))
	require.NoError(t, viaRequest.AcceptRequest(ctx, "b", "a"))

	direct := NewGraphStore(docstore.NewMemoryStore())
	seedUsers(t, direct, "a", "b")
	require.NoError(t, direct.Follow(ctx, "a", "b"))

	for _, uid := range []string{"a", "b"} {
		got, want := mustUser(t, viaRequest, uid), mustUser(t, direct, uid)
		assert.Equal(t, want.Followers, got.Followers, uid)
		assert.Equal(t, want.Following, got.Following, uid)
		assert.Empty(t, got.FollowerRequests, uid)
		assert.Empty(t, got.FollowingRequests, uid)
	}
	assertMirror(t, viaRequest, "a", "b")
}

func TestGraphStore_RepeatedRequestIsInformational(t *testing.T) {
	ctx := context.Background()
	graph := NewGraphStore(docstore.NewMemoryStore())
	seedUsers(t, graph, "a", "b")

	require.NoError(t, graph.RequestFollow(ctx, "a", "b"))
	err := graph.RequestFollow(ctx, "a", "b")
	assert.ErrorIs(t, err, model.ErrAlreadyRequested)

	assert.Equal(t, []string{"b"}, mustUser(t, graph, "a").FollowingRequests)
	assert.Equal(t, []string{"a"}, mustUser(t, graph, "b").FollowerRequests)
}

func TestGraphStore_RequestWhenFollowing(t *testing.T) {
	ctx := context.Background()
	graph := NewGraphStore(docstore.NewMemoryStore())
	seedUsers(t, graph, "a", "b")
	require.NoError(t, graph.Follow(ctx, "a", "b"))

	err := graph.RequestFollow(ctx, "a", "b")
	assert.ErrorIs(t, err, model.ErrAlreadyFollowing)
	assert.Empty(t, mustUser(t, graph, "b").FollowerRequests)
}

func TestGraphStore_AcceptWithoutRequest(t *testing.T) {
	graph := NewGraphStore(docstore.NewMemoryStore())
	seedUsers(t, graph, "a", "b")

	err := graph.AcceptRequest(context.Background(), "b", "a")
	assert.ErrorIs(t, err, model.ErrInvalidOperation)
	assert.Empty(t, mustUser(t, graph, "b").Followers)
}

func TestGraphStore_DeclineAndCancelRemovePair(t *testing.T) {
	ctx := context.Background()
	graph := NewGraphStore(docstore.NewMemoryStore())
	seedUsers(t, graph, "a", "b", "c")

	require.NoError(t, graph.RequestFollow(ctx, "a", "b"))
	require.NoError(t, graph.RequestFollow(ctx, "c", "b"))

	require.NoError(t, graph.DeclineRequest(ctx, "b", "a"))
	require.NoError(t, graph.CancelRequest(ctx, "c", "b"))

	assert.Empty(t, mustUser(t, graph, "b").FollowerRequests)
	assert.Empty(t, mustUser(t, graph, "a").FollowingRequests)
	assert.Empty(t, mustUser(t, graph, "c").FollowingRequests)
	assert.Empty(t, mustUser(t, graph, "b").Followers)

	// Absence is a no-op.
	require.NoError(t, graph.DeclineRequest(ctx, "b", "a"))
}

func TestGraphStore_ConcurrentRequestsToSameTarget(t *testing.T) {
	ctx := context.Background()
	graph := NewGraphStore(docstore.NewMemoryStore())
	requesters := make([]string, 20)
	for i := range requesters {
		requesters[i] = fmt.Sprintf("r%02d", i)
	}
	seedUsers(t, graph, append([]string{"target"}, requesters...)...)

	done := make(chan error, len(requesters))
	for _, r := range requesters {
		go func(r string) { done <- graph.RequestFollow(ctx, r, "target") }(r)
	}
	for range requesters {
		require.NoError(t, <-done)
	}

	assert.ElementsMatch(t, requesters, mustUser(t, graph, "target").FollowerRequests)
}

// =============================================================================
// PARTIAL UPDATES
// =============================================================================

func TestGraphStore_CompensatingRetryHealsTransientFailure(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	graph := NewGraphStore(store)
	seedUsers(t, graph, "a", "b")

	store.failMutate["b"] = 1 // second side of follow(a, b) fails once

	require.NoError(t, graph.Follow(ctx, "a", "b"))
	assertMirror(t, graph, "a", "b")
	assert.True(t, mustUser(t, graph, "a").IsFollowing("b"))
}

func TestGraphStore_PartialUpdateReportsFailedSide(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	graph := NewGraphStore(store)
	seedUsers(t, graph, "a", "b")

	store.failMutate["b"] = 2

	err := graph.Follow(ctx, "a", "b")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrPartialGraphUpdate)
	assert.ErrorIs(t, err, model.ErrBackendUnavailable)

	var partial *model.PartialGraphUpdateError
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, "a", partial.Applied.UID)
	assert.Equal(t, "b", partial.Failed.UID)

	// a already follows b; b does not list a yet.
	assert.True(t, mustUser(t, graph, "a").IsFollowing("b"))
	assert.False(t, mustUser(t, graph, "b").HasFollower("a"))

	require.NoError(t, graph.Repair(ctx, partial.Failed))
	assertMirror(t, graph, "a", "b")
}

func TestGraphStore_FirstSideFailureAppliesNothing(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	graph := NewGraphStore(store)
	seedUsers(t, graph, "a", "b")

	store.failMutate["a"] = 1

	err := graph.Follow(ctx, "a", "b")
	assert.ErrorIs(t, err, model.ErrBackendUnavailable)
	assert.NotErrorIs(t, err, model.ErrPartialGraphUpdate)
	assert.Empty(t, mustUser(t, graph, "a").Following)
	assert.Empty(t, mustUser(t, graph, "b").Followers)
}

// =============================================================================
// BATCHED READS
// =============================================================================

func TestGraphStore_GetUsersBatches(t *testing.T) {
	store := newCountingStore()
	graph := NewGraphStore(store)

	uids := make([]string, 23)
	for i := range uids {
		uids[i] = fmt.Sprintf("u%02d", i)
	}
	seedUsers(t, graph, uids...)

	users, err := graph.GetUsers(context.Background(), append(uids, "ghost", "u00"))
	require.NoError(t, err)
	assert.Len(t, users, 23)
	assert.Equal(t, "User u07", users["u07"].DisplayName)

	require.Len(t, store.queries, 3)
	assert.Len(t, store.queries[0], 10)
	assert.Len(t, store.queries[1], 10)
	assert.Len(t, store.queries[2], 4)
}

func TestGraphStore_UpdateProfile(t *testing.T) {
	ctx := context.Background()
	graph := NewGraphStore(docstore.NewMemoryStore())
	seedUsers(t, graph, "a")

	bio := "jazz and coffee"
	require.NoError(t, graph.UpdateProfile(ctx, "a", &model.UpdateProfileRequest{Bio: &bio}))

	u := mustUser(t, graph, "a")
	assert.Equal(t, bio, u.Bio)
	assert.Equal(t, "User a", u.DisplayName)

	err := graph.UpdateProfile(ctx, "ghost", &model.UpdateProfileRequest{Bio: &bio})
	assert.ErrorIs(t, err, model.ErrUserNotFound)
}
