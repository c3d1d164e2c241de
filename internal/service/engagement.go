package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"jazzfeed/internal/model"
	"jazzfeed/internal/queue"
	"jazzfeed/internal/repository"
)

// EngagementService handles likes and comments on existing posts.
type EngagementService struct {
	posts     repository.PostStore
	publisher queue.Publisher
}

func NewEngagementService(posts repository.PostStore, publisher queue.Publisher) *EngagementService {
	return &EngagementService{posts: posts, publisher: publisher}
}

// ToggleLike likes the post if the viewer has not liked it yet, otherwise unlikes it.
// Authors cannot like their own posts.
func (s *EngagementService) ToggleLike(ctx context.Context, viewerUID, postID string) (*model.LikeResult, error) {
	ctx, span := tracer.Start(ctx, "EngagementService.ToggleLike")
	defer span.End()

	result, err := s.posts.ToggleLike(ctx, postID, viewerUID)
	if err != nil {
		return nil, err
	}

	publish(ctx, s.publisher, "EngagementService", queue.NewPostLikedEvent(postID, result.AuthorUID, viewerUID))

	log.Printf("[EngagementService] ToggleLike OK: post=%s viewer=%s liked=%t count=%d",
		postID, viewerUID, result.Liked, result.LikeCount)
	return result, nil
}

// AddComment appends a comment. Comments are immutable once written.
func (s *EngagementService) AddComment(ctx context.Context, viewerUID, postID string, req model.CreateCommentRequest) (*model.Comment, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, model.ErrContentRequired
	}
	if utf8.RuneCountInString(text) > model.MaxCommentLength {
		return nil, model.ErrContentTooLong
	}

	comment, err := s.posts.AddComment(ctx, postID, viewerUID, text)
	if err != nil {
		return nil, fmt.Errorf("add comment: %w", err)
	}

	post, err := s.posts.GetPost(ctx, postID)
	authorID := ""
	if err == nil {
		authorID = post.UID
	}
	publish(ctx, s.publisher, "EngagementService", queue.NewPostCommentedEvent(postID, authorID, viewerUID))

	return comment, nil
}

// GetComments lists a post's comments oldest first.
func (s *EngagementService) GetComments(ctx context.Context, postID string) ([]model.Comment, error) {
	if _, err := s.posts.GetPost(ctx, postID); err != nil {
		return nil, err
	}
	return s.posts.GetComments(ctx, postID)
}
