package model

// Collection and field names of comment documents.
const (
	CollectionComments = "comments"

	FieldPostID      = "postId"
	FieldCommentText = "text"
)

// Comment is an immutable comment on a post, referencing it by PostID.
type Comment struct {
	ID     string `json:"id"`
	PostID string `json:"postId"`
	UID    string `json:"uid"`
	Text   string `json:"text"`
	Time   string `json:"time"`
}

// CreateCommentRequest is the request body for creating a comment.
type CreateCommentRequest struct {
	Text string `json:"text"`
}

// Comment constraints
const (
	MaxCommentLength = 2200
)
