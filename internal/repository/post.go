package repository

import (
	"context"
	"fmt"
	"time"

	"jazzfeed/internal/batch"
	"jazzfeed/internal/docstore"
	"jazzfeed/internal/model"
)

type postStore struct {
	store docstore.Store
	now   func() time.Time
}

func NewPostStore(store docstore.Store) PostStore {
	return &postStore{store: store, now: time.Now}
}

// NewPostStoreWithClock is NewPostStore with a fixed time source.
func NewPostStoreWithClock(store docstore.Store, now func() time.Time) PostStore {
	return &postStore{store: store, now: now}
}

// CreatePost stores a new post with an empty like set.
func (r *postStore) CreatePost(ctx context.Context, author, text string, images []string) (*model.Post, error) {
	post := &model.Post{
		UID:    author,
		Text:   text,
		Time:   model.FormatTime(r.now()),
		Images: nonNil(images),
		Likes:  []string{},
	}
	data := map[string]any{
		model.FieldUID:      post.UID,
		model.FieldPostText: post.Text,
		model.FieldTime:     post.Time,
		model.FieldImages:   post.Images,
		model.FieldLikes:    post.Likes,
	}

	id, err := r.store.Create(ctx, model.CollectionPosts, data)
	if err != nil {
		return nil, mapStoreError(fmt.Errorf("insert post: %w", err), model.ErrPostNotFound)
	}
	post.ID = id
	return post, nil
}

func (r *postStore) GetPost(ctx context.Context, postID string) (*model.Post, error) {
	if postID == "" {
		return nil, model.ErrEmptyID
	}
	doc, err := r.store.Get(ctx, model.CollectionPosts, postID)
	if err != nil {
		return nil, mapStoreError(err, model.ErrPostNotFound)
	}
	post := postFromDoc(doc)
	return &post, nil
}

// GetPostsByAuthors issues one "in" query per batch of at most docstore.MaxInValues
// authors and merges the batches by time descending, ties by post id ascending.
func (r *postStore) GetPostsByAuthors(ctx context.Context, uids []string) ([]model.Post, error) {
	posts, err := batch.QuerySorted(ctx, batch.Dedupe(uids), docstore.MaxInValues,
		func(ctx context.Context, chunk []string) ([]model.Post, error) {
			filter := docstore.Filter{Field: model.FieldUID, Op: docstore.OpIn, Value: chunk}
			docs, err := r.store.Query(ctx, model.CollectionPosts, filter, model.FieldTime, docstore.Desc)
			if err != nil {
				return nil, err
			}
			out := make([]model.Post, 0, len(docs))
			for _, doc := range docs {
				out = append(out, postFromDoc(doc))
			}
			return out, nil
		},
		func(a, b model.Post) bool {
			if a.Time != b.Time {
				return a.Time > b.Time
			}
			return a.ID < b.ID
		})
	if err != nil {
		return nil, mapStoreError(fmt.Errorf("get posts by authors: %w", err), model.ErrPostNotFound)
	}
	if posts == nil {
		posts = []model.Post{}
	}
	return posts, nil
}

func (r *postStore) AddComment(ctx context.Context, postID, author, text string) (*model.Comment, error) {
	if _, err := r.GetPost(ctx, postID); err != nil {
		return nil, err
	}

	comment := &model.Comment{
		PostID: postID,
		UID:    author,
		Text:   text,
		Time:   model.FormatTime(r.now()),
	}
	id, err := r.store.Create(ctx, model.CollectionComments, map[string]any{
		model.FieldPostID:      comment.PostID,
		model.FieldUID:         comment.UID,
		model.FieldCommentText: comment.Text,
		model.FieldTime:        comment.Time,
	})
	if err != nil {
		return nil, mapStoreError(fmt.Errorf("insert comment: %w", err), model.ErrPostNotFound)
	}
	comment.ID = id
	return comment, nil
}

func (r *postStore) GetComments(ctx context.Context, postID string) ([]model.Comment, error) {
	filter := docstore.Filter{Field: model.FieldPostID, Op: docstore.OpEqual, Value: postID}
	docs, err := r.store.Query(ctx, model.CollectionComments, filter, model.FieldTime, docstore.Asc)
	if err != nil {
		return nil, mapStoreError(fmt.Errorf("get comments for %s: %w", postID, err), model.ErrPostNotFound)
	}

	comments := make([]model.Comment, 0, len(docs))
	for _, doc := range docs {
		comments = append(comments, commentFromDoc(doc))
	}
	return comments, nil
}

// ToggleLike flips uid's membership in the like set from the stored state. It writes a
// single add or remove delta and reports the count read back afterwards.
func (r *postStore) ToggleLike(ctx context.Context, postID, uid string) (*model.LikeResult, error) {
	post, err := r.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.UID == uid {
		return nil, model.ErrSelfLike
	}

	op := docstore.AddMember(model.FieldLikes, uid)
	if post.LikedBy(uid) {
		op = docstore.RemoveMember(model.FieldLikes, uid)
	}
	if err := r.store.Mutate(ctx, model.CollectionPosts, postID, op); err != nil {
		return nil, mapStoreError(err, model.ErrPostNotFound)
	}

	post, err = r.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	return &model.LikeResult{
		PostID:    postID,
		AuthorUID: post.UID,
		Liked:     post.LikedBy(uid),
		LikeCount: len(post.Likes),
	}, nil
}
