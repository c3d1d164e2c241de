package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"jazzfeed/internal/model"
	"jazzfeed/internal/repository"
)

// CommentFetchConcurrency bounds parallel comment reads during one feed build.
const CommentFetchConcurrency = 8

var tracer = otel.Tracer("jazzfeed/service")

// FeedService assembles feeds from the follow graph and the post store. Every build
// starts from scratch and writes nothing.
type FeedService struct {
	graph repository.GraphStore
	posts repository.PostStore
}

func NewFeedService(graph repository.GraphStore, posts repository.PostStore) *FeedService {
	return &FeedService{graph: graph, posts: posts}
}

// BuildFeed returns the posts of everyone the viewer follows plus the viewer's own,
// newest first, each with author metadata and comments oldest first.
func (s *FeedService) BuildFeed(ctx context.Context, viewerUID string) ([]model.FeedEntry, error) {
	ctx, span := tracer.Start(ctx, "FeedService.BuildFeed")
	defer span.End()
	span.SetAttributes(attribute.String("viewer.uid", viewerUID))
	startTime := time.Now()

	viewer, err := s.graph.GetUser(ctx, viewerUID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("get viewer: %w", err)
	}

	authors := append(append([]string{}, viewer.Following...), viewer.UID)
	posts, err := s.posts.GetPostsByAuthors(ctx, authors)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("get posts: %w", err)
	}

	entries := s.Enrich(ctx, viewer.UID, posts)

	span.SetAttributes(attribute.Int("feed.authors", len(authors)), attribute.Int("feed.entries", len(entries)))
	log.Printf("[FeedService] BuildFeed OK: viewer=%s authors=%d posts=%d duration=%v",
		viewerUID, len(authors), len(entries), time.Since(startTime))
	return entries, nil
}

// Enrich attaches author metadata and comments to posts, keeping their order. A post
// whose author does not resolve gets blank author fields; a failed comment read
// leaves that post with no comments.
func (s *FeedService) Enrich(ctx context.Context, viewerUID string, posts []model.Post) []model.FeedEntry {
	entries := make([]model.FeedEntry, len(posts))
	if len(posts) == 0 {
		return entries
	}

	authorIDs := make([]string, 0, len(posts))
	for _, p := range posts {
		authorIDs = append(authorIDs, p.UID)
	}
	authors, err := s.graph.GetUsers(ctx, authorIDs)
	if err != nil {
		log.Printf("[FeedService] Failed to resolve authors, rendering blank names: %v", err)
		authors = map[string]*model.User{}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(CommentFetchConcurrency)
	for i := range posts {
		entries[i] = model.FeedEntry{
			Post:          posts[i],
			Comments:      []model.Comment{},
			LikedByViewer: posts[i].LikedBy(viewerUID),
		}
		if author, ok := authors[posts[i].UID]; ok {
			summary := author.Summary()
			entries[i].AuthorDisplayName = summary.DisplayName
			entries[i].AuthorEmail = summary.Email
		}

		g.Go(func() error {
			comments, err := s.posts.GetComments(gctx, posts[i].ID)
			if err != nil {
				log.Printf("[FeedService] Comments for post=%s unavailable: %v", posts[i].ID, err)
				return nil
			}
			entries[i].Comments = comments
			return nil
		})
	}
	_ = g.Wait()

	return entries
}
