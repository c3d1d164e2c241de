package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jazzfeed/internal/model"
	"jazzfeed/internal/queue"
)

func TestProfileService_PrivateUserHidesPosts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signup(t, "V", "C")
	f.post(t, "C", "secret one")
	f.post(t, "C", "secret two")

	entries, err := f.feed.BuildFeed(ctx, "V")
	require.NoError(t, err)
	assert.Empty(t, entries)

	view, err := f.profile.GetProfile(ctx, "V", "C")
	require.NoError(t, err)
	assert.True(t, view.Private)
	assert.Empty(t, view.Posts)
	assert.Equal(t, model.FollowStateNone, view.State)
	assert.Equal(t, "C", view.User.UID)
	assert.Equal(t, model.DefaultBio, view.Bio)

	_, err = f.follow.RequestFollow(ctx, "V", "C")
	require.NoError(t, err)
	view, err = f.profile.GetProfile(ctx, "V", "C")
	require.NoError(t, err)
	assert.True(t, view.Private)
	assert.Empty(t, view.Posts)
	assert.Equal(t, model.FollowStateRequested, view.State)
}

func TestProfileService_FollowerSeesPosts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signup(t, "V", "C")
	older := f.post(t, "C", "one")
	newer := f.post(t, "C", "two")
	f.befriend(t, "V", "C")

	view, err := f.profile.GetProfile(ctx, "V", "C")
	require.NoError(t, err)
	assert.False(t, view.Private)
	assert.Equal(t, model.FollowStateFollowing, view.State)
	assert.Equal(t, []string{newer.ID, older.ID}, entryIDs(view.Posts))
	assert.Equal(t, 1, view.FollowerCount)
	assert.Equal(t, 0, view.FollowingCount)
}

func TestProfileService_OwnProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signup(t, "V")
	p := f.post(t, "V", "mine")

	view, err := f.profile.GetProfile(ctx, "V", "V")
	require.NoError(t, err)
	assert.False(t, view.Private)
	assert.Equal(t, model.FollowStateSelf, view.State)
	assert.Equal(t, []string{p.ID}, entryIDs(view.Posts))
}

func TestProfileService_UnknownTarget(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "V")

	_, err := f.profile.GetProfile(context.Background(), "V", "ghost")
	assert.ErrorIs(t, err, model.ErrUserNotFound)
}

func TestProfileService_SignupIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signup(t, "a", "b")
	f.befriend(t, "a", "b")

	user, err := f.profile.Signup(ctx, "a", model.SignupRequest{DisplayName: "Renamed"})
	require.NoError(t, err)
	assert.Equal(t, "User a", user.DisplayName)
	assert.Equal(t, []string{"b"}, user.Following)

	fresh, err := f.profile.Signup(ctx, "c", model.SignupRequest{DisplayName: " Cee "})
	require.NoError(t, err)
	assert.Equal(t, "Cee", fresh.DisplayName)
	assert.Empty(t, fresh.Followers)
	assert.Empty(t, fresh.Following)
	assert.Empty(t, fresh.FollowerRequests)
	assert.Empty(t, fresh.FollowingRequests)
}

func TestProfileService_UpdateProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signup(t, "a")

	bio := "  jazz and coffee  "
	pic := "https://cdn.example.com/a.jpg"
	user, err := f.profile.UpdateProfile(ctx, "a", &model.UpdateProfileRequest{Bio: &bio, ProfilePicture: &pic})
	require.NoError(t, err)
	assert.Equal(t, "jazz and coffee", user.Bio)
	assert.Equal(t, pic, user.ProfilePicture)
	assert.Equal(t, queue.EventProfileUpdated, f.publisher.last().Type)

	// Nil fields are left untouched.
	newBio := "only bio"
	user, err = f.profile.UpdateProfile(ctx, "a", &model.UpdateProfileRequest{Bio: &newBio})
	require.NoError(t, err)
	assert.Equal(t, "only bio", user.Bio)
	assert.Equal(t, pic, user.ProfilePicture)

	long := strings.Repeat("x", model.MaxBioLength+1)
	_, err = f.profile.UpdateProfile(ctx, "a", &model.UpdateProfileRequest{Bio: &long})
	assert.ErrorIs(t, err, model.ErrContentTooLong)

	bad := "not a url"
	_, err = f.profile.UpdateProfile(ctx, "a", &model.UpdateProfileRequest{ProfilePicture: &bad})
	assert.ErrorIs(t, err, model.ErrInvalidImageURL)

	_, err = f.profile.UpdateProfile(ctx, "ghost", &model.UpdateProfileRequest{Bio: &newBio})
	assert.ErrorIs(t, err, model.ErrUserNotFound)
}

func TestProfileService_ListFollowRequests(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signup(t, "owner", "zed", "amy")

	for _, uid := range []string{"zed", "amy"} {
		_, err := f.follow.RequestFollow(ctx, uid, "owner")
		require.NoError(t, err)
	}

	resp, err := f.profile.ListFollowRequests(ctx, "owner")
	require.NoError(t, err)
	require.Len(t, resp.Users, 2)
	assert.Equal(t, "amy", resp.Users[0].UID)
	assert.Equal(t, "zed", resp.Users[1].UID)
	require.NotNil(t, resp.Users[0].DisplayName)
	assert.Equal(t, "User amy", *resp.Users[0].DisplayName)

	_, err = f.follow.Accept(ctx, "owner", "amy")
	require.NoError(t, err)
	resp, err = f.profile.ListFollowRequests(ctx, "owner")
	require.NoError(t, err)
	require.Len(t, resp.Users, 1)
	assert.Equal(t, "zed", resp.Users[0].UID)
}

func TestProfileService_FollowListsAreGated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signup(t, "V", "C", "D")
	f.befriend(t, "D", "C")

	_, err := f.profile.ListFollowers(ctx, "V", "C")
	assert.ErrorIs(t, err, model.ErrPrivateProfile)
	_, err = f.profile.ListFollowing(ctx, "V", "D")
	assert.ErrorIs(t, err, model.ErrPrivateProfile)

	followers, err := f.profile.ListFollowers(ctx, "C", "C")
	require.NoError(t, err)
	require.Len(t, followers.Users, 1)
	assert.Equal(t, "D", followers.Users[0].UID)

	following, err := f.profile.ListFollowing(ctx, "D", "D")
	require.NoError(t, err)
	require.Len(t, following.Users, 1)
	assert.Equal(t, "C", following.Users[0].UID)

	// A follower of C may see C's lists.
	followers, err = f.profile.ListFollowers(ctx, "D", "C")
	require.NoError(t, err)
	assert.Len(t, followers.Users, 1)
}
