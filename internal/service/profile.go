package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"

	"jazzfeed/internal/model"
	"jazzfeed/internal/queue"
	"jazzfeed/internal/repository"
)

// ProfileService serves profile pages, profile edits, signup and the follow request
// inbox.
type ProfileService struct {
	graph     repository.GraphStore
	posts     repository.PostStore
	feed      *FeedService
	publisher queue.Publisher
}

func NewProfileService(graph repository.GraphStore, posts repository.PostStore, feed *FeedService, publisher queue.Publisher) *ProfileService {
	return &ProfileService{graph: graph, posts: posts, feed: feed, publisher: publisher}
}

// Signup creates the user document for uid with empty relation sets. Signing up
// again returns the stored user untouched.
func (s *ProfileService) Signup(ctx context.Context, uid string, req model.SignupRequest) (*model.User, error) {
	existing, err := s.graph.GetUser(ctx, uid)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	user := &model.User{
		UID:               uid,
		DisplayName:       strings.TrimSpace(req.DisplayName),
		Email:             strings.TrimSpace(req.Email),
		Followers:         []string{},
		Following:         []string{},
		FollowerRequests:  []string{},
		FollowingRequests: []string{},
	}
	if err := s.graph.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}
	log.Printf("[ProfileService] Signup OK: uid=%s", uid)
	return user, nil
}

// GetProfile renders target's profile for viewer. Past posts are only listed for the
// owner and for followers; everyone else sees Private=true and no posts.
func (s *ProfileService) GetProfile(ctx context.Context, viewerUID, targetUID string) (*model.ProfileView, error) {
	ctx, span := tracer.Start(ctx, "ProfileService.GetProfile")
	defer span.End()

	viewer, err := s.graph.GetUser(ctx, viewerUID)
	if err != nil {
		return nil, fmt.Errorf("get viewer: %w", err)
	}
	target := viewer
	if targetUID != viewerUID {
		if target, err = s.graph.GetUser(ctx, targetUID); err != nil {
			return nil, err
		}
	}

	state := model.FollowStateOf(viewer, targetUID)
	view := &model.ProfileView{
		User:           target.Summary(),
		Bio:            target.Bio,
		FollowerCount:  len(target.Followers),
		FollowingCount: len(target.Following),
		State:          state,
		Private:        !canSeePosts(state),
		Posts:          []model.FeedEntry{},
	}
	if view.Bio == "" {
		view.Bio = model.DefaultBio
	}
	if view.Private {
		return view, nil
	}

	posts, err := s.posts.GetPostsByAuthors(ctx, []string{targetUID})
	if err != nil {
		return nil, fmt.Errorf("get profile posts: %w", err)
	}
	view.Posts = s.feed.Enrich(ctx, viewerUID, posts)
	return view, nil
}

// UpdateProfile edits bio and/or profile picture of uid.
func (s *ProfileService) UpdateProfile(ctx context.Context, uid string, req *model.UpdateProfileRequest) (*model.User, error) {
	if req.Bio != nil {
		bio := strings.TrimSpace(*req.Bio)
		if utf8.RuneCountInString(bio) > model.MaxBioLength {
			return nil, model.ErrContentTooLong
		}
		req.Bio = &bio
	}
	if req.ProfilePicture != nil && *req.ProfilePicture != "" {
		u, err := url.Parse(*req.ProfilePicture)
		if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
			return nil, model.ErrInvalidImageURL
		}
	}

	if err := s.graph.UpdateProfile(ctx, uid, req); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	publish(ctx, s.publisher, "ProfileService", queue.NewProfileUpdatedEvent(uid))

	return s.graph.GetUser(ctx, uid)
}

// ListFollowRequests returns the users waiting for uid to accept them, ordered by uid.
func (s *ProfileService) ListFollowRequests(ctx context.Context, uid string) (*model.FollowListResponse, error) {
	user, err := s.graph.GetUser(ctx, uid)
	if err != nil {
		return nil, err
	}
	return s.summaries(ctx, user.FollowerRequests)
}

// ListFollowers lists target's followers. Visible to the owner and followers only.
func (s *ProfileService) ListFollowers(ctx context.Context, viewerUID, targetUID string) (*model.FollowListResponse, error) {
	target, err := s.visibleTarget(ctx, viewerUID, targetUID)
	if err != nil {
		return nil, err
	}
	return s.summaries(ctx, target.Followers)
}

// ListFollowing lists the accounts target follows. Visible to the owner and followers
// only.
func (s *ProfileService) ListFollowing(ctx context.Context, viewerUID, targetUID string) (*model.FollowListResponse, error) {
	target, err := s.visibleTarget(ctx, viewerUID, targetUID)
	if err != nil {
		return nil, err
	}
	return s.summaries(ctx, target.Following)
}

func (s *ProfileService) visibleTarget(ctx context.Context, viewerUID, targetUID string) (*model.User, error) {
	target, err := s.graph.GetUser(ctx, targetUID)
	if err != nil {
		return nil, err
	}
	if viewerUID == targetUID || target.HasFollower(viewerUID) {
		return target, nil
	}
	return nil, model.ErrPrivateProfile
}

// summaries resolves uids in batches. Users that no longer resolve are listed with
// only their uid.
func (s *ProfileService) summaries(ctx context.Context, uids []string) (*model.FollowListResponse, error) {
	resp := &model.FollowListResponse{Users: []model.UserSummary{}}
	if len(uids) == 0 {
		return resp, nil
	}

	users, err := s.graph.GetUsers(ctx, uids)
	if err != nil {
		return nil, fmt.Errorf("resolve users: %w", err)
	}

	sorted := append([]string{}, uids...)
	sort.Strings(sorted)
	for _, uid := range sorted {
		if u, ok := users[uid]; ok {
			resp.Users = append(resp.Users, u.Summary())
		} else {
			resp.Users = append(resp.Users, model.UserSummary{UID: uid})
		}
	}
	return resp, nil
}

func canSeePosts(state model.FollowState) bool {
	return state == model.FollowStateSelf || state == model.FollowStateFollowing
}
