package model

import (
	"time"
)

// Collection and field names of post documents. The text is stored under "post".
const (
	CollectionPosts = "posts"

	FieldPostText = "post"
	FieldTime     = "time"
	FieldImages   = "images"
	FieldLikes    = "likes"
)

// TimeLayout is the ISO-8601 form every timestamp is stored in. It is fixed width so
// lexical order equals chronological order.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// FormatTime renders t in TimeLayout (UTC).
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime accepts TimeLayout and any RFC 3339 timestamp.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// Post is a post document. Likes is a set of uids and never contains UID.
type Post struct {
	ID     string   `json:"id"`
	UID    string   `json:"uid"`
	Text   string   `json:"text"`
	Time   string   `json:"time"`
	Images []string `json:"images"`
	Likes  []string `json:"likes"`
}

// LikedBy reports whether uid is in the like set.
func (p *Post) LikedBy(uid string) bool { return contains(p.Likes, uid) }

// CreatePostRequest is the request body for composing a post.
type CreatePostRequest struct {
	Text   string   `json:"text"`
	Images []string `json:"images"`
}

// LikeResult is the outcome of a like toggle.
type LikeResult struct {
	PostID    string `json:"postId"`
	AuthorUID string `json:"-"`
	Liked     bool   `json:"liked"`
	LikeCount int    `json:"likeCount"`
}

// Post constraints
const (
	MaxPostImages     = 10
	MaxPostTextLength = 2200
	PostMediaFolder   = "posts"
	MaxPostMediaSize  = 10 * 1024 * 1024 // 10MB per image
)
