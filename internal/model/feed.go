package model

// FeedEntry is a post enriched for display. It is rebuilt on every feed load and never
// stored.
type FeedEntry struct {
	Post
	AuthorDisplayName *string   `json:"authorDisplayName"`
	AuthorEmail       *string   `json:"authorEmail"`
	Comments          []Comment `json:"comments"`
	LikedByViewer     bool      `json:"likedByViewer"`
}

// FeedResponse is the body of GET /feed.
type FeedResponse struct {
	Generation uint64      `json:"generation"`
	Entries    []FeedEntry `json:"entries"`
}
