package service

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"unicode/utf8"

	"jazzfeed/internal/model"
	"jazzfeed/internal/queue"
	"jazzfeed/internal/repository"
)

type PostService struct {
	posts     repository.PostStore
	publisher queue.Publisher
	// mediaBaseURL, when set, is the only origin post images may come from.
	mediaBaseURL string
}

func NewPostService(posts repository.PostStore, publisher queue.Publisher, mediaBaseURL string) *PostService {
	return &PostService{
		posts:        posts,
		publisher:    publisher,
		mediaBaseURL: strings.TrimSuffix(mediaBaseURL, "/"),
	}
}

// Create composes a new post with an empty like set and publishes an event so
// followers' feeds are rebuilt.
func (s *PostService) Create(ctx context.Context, authorUID string, req model.CreatePostRequest) (*model.Post, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" && len(req.Images) == 0 {
		return nil, model.ErrContentRequired
	}
	if utf8.RuneCountInString(text) > model.MaxPostTextLength {
		return nil, model.ErrContentTooLong
	}
	if len(req.Images) > model.MaxPostImages {
		return nil, model.ErrTooManyImages
	}
	for _, img := range req.Images {
		if !s.validImageURL(img) {
			return nil, fmt.Errorf("%w: %s", model.ErrInvalidImageURL, img)
		}
	}

	post, err := s.posts.CreatePost(ctx, authorUID, text, req.Images)
	if err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}

	publish(ctx, s.publisher, "PostService", queue.NewPostCreatedEvent(post.ID, authorUID))
	log.Printf("[PostService] Create OK: post=%s author=%s images=%d", post.ID, authorUID, len(post.Images))
	return post, nil
}

func (s *PostService) GetByID(ctx context.Context, postID string) (*model.Post, error) {
	return s.posts.GetPost(ctx, postID)
}

func (s *PostService) validImageURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return false
	}
	if s.mediaBaseURL != "" && !strings.HasPrefix(raw, s.mediaBaseURL+"/") {
		return false
	}
	return true
}
