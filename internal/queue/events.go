package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"jazzfeed/internal/model"
)

// Event types published after a successful write.
const (
	EventPostCreated     = "post_created"
	EventPostLiked       = "post_liked"
	EventPostCommented   = "post_commented"
	EventFollowRequested = "follow_requested"
	EventFollowAccepted  = "follow_accepted"
	EventFollowDeclined  = "follow_declined"
	EventFollowCancelled = "follow_cancelled"
	EventUserUnfollowed  = "user_unfollowed"
	EventProfileUpdated  = "profile_updated"
	EventGraphRepair     = "graph_repair"
)

// Stream names
const (
	StreamFeed = "stream:feed"
)

// Consumer group name for feed workers
const (
	ConsumerGroupFeed = "feed_workers"
)

// ChangeEvent describes a committed change that can affect somebody's feed.
type ChangeEvent struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"` // Unix seconds

	// Post events
	PostID   string `json:"post_id,omitempty"`
	AuthorID string `json:"author_id,omitempty"`

	// ActorID performed the change, TargetID is the other user of a graph edge.
	ActorID  string `json:"actor_id,omitempty"`
	TargetID string `json:"target_id,omitempty"`

	// Graph repair: the side of a mirrored update still to be applied.
	RepairOp   string           `json:"repair_op,omitempty"`
	RepairSide *model.GraphSide `json:"repair_side,omitempty"`
}

func newEvent(eventType string) ChangeEvent {
	return ChangeEvent{Type: eventType, Timestamp: time.Now().Unix()}
}

// NewPostCreatedEvent: the author's followers need a fresh feed.
func NewPostCreatedEvent(postID, authorID string) ChangeEvent {
	e := newEvent(EventPostCreated)
	e.PostID, e.AuthorID = postID, authorID
	return e
}

// NewPostLikedEvent is published for both like and unlike.
func NewPostLikedEvent(postID, authorID, actorID string) ChangeEvent {
	e := newEvent(EventPostLiked)
	e.PostID, e.AuthorID, e.ActorID = postID, authorID, actorID
	return e
}

func NewPostCommentedEvent(postID, authorID, actorID string) ChangeEvent {
	e := newEvent(EventPostCommented)
	e.PostID, e.AuthorID, e.ActorID = postID, authorID, actorID
	return e
}

// NewGraphEvent builds one of the follow workflow events.
func NewGraphEvent(eventType, actorID, targetID string) ChangeEvent {
	e := newEvent(eventType)
	e.ActorID, e.TargetID = actorID, targetID
	return e
}

func NewProfileUpdatedEvent(uid string) ChangeEvent {
	e := newEvent(EventProfileUpdated)
	e.ActorID = uid
	return e
}

// NewGraphRepairEvent asks a worker to replay the failed side of a partial update.
func NewGraphRepairEvent(partial *model.PartialGraphUpdateError) ChangeEvent {
	e := newEvent(EventGraphRepair)
	side := partial.Failed
	e.RepairOp = partial.Op
	e.RepairSide = &side
	e.ActorID = partial.Applied.UID
	e.TargetID = partial.Failed.UID
	return e
}

// AffectedUsers returns the users whose own documents changed.
func (e ChangeEvent) AffectedUsers() []string {
	var out []string
	for _, uid := range []string{e.ActorID, e.TargetID} {
		if uid != "" {
			out = append(out, uid)
		}
	}
	return out
}

// ToMap converts the event to a map for Redis XADD.
// Redis Streams store field-value pairs, so we serialize to JSON in a "data" field.
func (e ChangeEvent) ToMap() (map[string]interface{}, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return map[string]interface{}{
		"type": e.Type,
		"data": string(data),
	}, nil
}

// ParseChangeEvent parses a ChangeEvent from Redis stream message values.
func ParseChangeEvent(values map[string]interface{}) (ChangeEvent, error) {
	data, ok := values["data"].(string)
	if !ok {
		return ChangeEvent{}, fmt.Errorf("missing or invalid 'data' field")
	}
	return DecodeChangeEvent([]byte(data))
}

// DecodeChangeEvent parses the JSON form used on every bus.
func DecodeChangeEvent(data []byte) (ChangeEvent, error) {
	var event ChangeEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return ChangeEvent{}, fmt.Errorf("unmarshal event: %w", err)
	}
	if event.Type == "" {
		return ChangeEvent{}, fmt.Errorf("event without type")
	}
	return event, nil
}
