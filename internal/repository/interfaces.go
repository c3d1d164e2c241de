package repository

import (
	"context"

	"jazzfeed/internal/model"
)

// GraphStore owns the follow graph held in user documents. Every set change is a
// per-element delta; no method rewrites a whole relation array.
type GraphStore interface {
	GetUser(ctx context.Context, uid string) (*model.User, error)
	// GetUsers resolves uids in batches of at most docstore.MaxInValues. Unknown uids
	// are absent from the result.
	GetUsers(ctx context.Context, uids []string) (map[string]*model.User, error)
	CreateUser(ctx context.Context, user *model.User) error
	UpdateProfile(ctx context.Context, uid string, req *model.UpdateProfileRequest) error

	Follow(ctx context.Context, requester, target string) error
	Unfollow(ctx context.Context, requester, target string) error
	RequestFollow(ctx context.Context, requester, target string) error
	CancelRequest(ctx context.Context, requester, target string) error
	AcceptRequest(ctx context.Context, owner, requester string) error
	DeclineRequest(ctx context.Context, owner, requester string) error
	// Repair replays the unapplied side of a partial mirrored update.
	Repair(ctx context.Context, side model.GraphSide) error
}

// PostStore owns posts, their like sets and comments.
type PostStore interface {
	CreatePost(ctx context.Context, author, text string, images []string) (*model.Post, error)
	GetPost(ctx context.Context, postID string) (*model.Post, error)
	// GetPostsByAuthors returns every post of the given authors, newest first.
	GetPostsByAuthors(ctx context.Context, uids []string) ([]model.Post, error)
	AddComment(ctx context.Context, postID, author, text string) (*model.Comment, error)
	// GetComments returns a post's comments, oldest first.
	GetComments(ctx context.Context, postID string) ([]model.Comment, error)
	ToggleLike(ctx context.Context, postID, uid string) (*model.LikeResult, error)
}
