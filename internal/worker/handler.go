package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"jazzfeed/internal/model"
	"jazzfeed/internal/queue"
)

// FeedInvalidator drops cached feeds and wakes live feed sessions. Implemented by
// service.FeedHub.
type FeedInvalidator interface {
	InvalidateViewers(ctx context.Context, uids ...string) error
}

// FollowerProvider resolves whose feeds include a user's posts.
// Implemented by repository.GraphStore.
type FollowerProvider interface {
	GetUser(ctx context.Context, uid string) (*model.User, error)
}

// GraphRepairer replays the unapplied side of a partial mirrored update.
type GraphRepairer interface {
	Repair(ctx context.Context, side model.GraphSide) error
}

// Handler processes change events from the bus. Feeds are never patched in place:
// every affected viewer is invalidated and rebuilds from the stores.
type Handler struct {
	feeds    FeedInvalidator
	graph    FollowerProvider
	repairer GraphRepairer
}

// NewHandler creates a new event handler.
func NewHandler(feeds FeedInvalidator, graph FollowerProvider, repairer GraphRepairer) *Handler {
	return &Handler{feeds: feeds, graph: graph, repairer: repairer}
}

// HandleEvent routes an event to the appropriate handler based on type.
func (h *Handler) HandleEvent(ctx context.Context, event queue.ChangeEvent) error {
	startTime := time.Now()
	var err error

	switch event.Type {
	case queue.EventPostCreated, queue.EventPostLiked, queue.EventPostCommented:
		err = h.handlePostChanged(ctx, event)
	case queue.EventFollowRequested, queue.EventFollowAccepted, queue.EventFollowDeclined,
		queue.EventFollowCancelled, queue.EventUserUnfollowed:
		err = h.handleGraphChanged(ctx, event)
	case queue.EventProfileUpdated:
		err = h.handleProfileUpdated(ctx, event)
	case queue.EventGraphRepair:
		err = h.handleGraphRepair(ctx, event)
	default:
		log.Printf("[Worker] Unknown event type: %s", event.Type)
		return fmt.Errorf("unknown event type: %s", event.Type)
	}

	if err != nil {
		log.Printf("[Worker] HandleEvent FAILED: type=%s duration=%v err=%v",
			event.Type, time.Since(startTime), err)
		return err
	}

	log.Printf("[Worker] HandleEvent OK: type=%s duration=%v", event.Type, time.Since(startTime))
	return nil
}

// handlePostChanged refreshes everyone who sees the post: the author and the
// author's followers.
func (h *Handler) handlePostChanged(ctx context.Context, event queue.ChangeEvent) error {
	if event.AuthorID == "" {
		return fmt.Errorf("%s without author", event.Type)
	}

	viewers, err := h.audience(ctx, event.AuthorID)
	if err != nil {
		return err
	}

	log.Printf("[Worker] %s: post=%s author=%s fanning out to %d viewers",
		event.Type, event.PostID, event.AuthorID, len(viewers))
	return h.feeds.InvalidateViewers(ctx, viewers...)
}

// handleGraphChanged refreshes both ends of the edge. Only the follower's feed
// content changes, but the owner's request inbox and counts change too.
func (h *Handler) handleGraphChanged(ctx context.Context, event queue.ChangeEvent) error {
	users := event.AffectedUsers()
	log.Printf("[Worker] %s: actor=%s target=%s", event.Type, event.ActorID, event.TargetID)
	return h.feeds.InvalidateViewers(ctx, users...)
}

// handleProfileUpdated refreshes feeds that render the user's name.
func (h *Handler) handleProfileUpdated(ctx context.Context, event queue.ChangeEvent) error {
	viewers, err := h.audience(ctx, event.ActorID)
	if err != nil {
		return err
	}
	return h.feeds.InvalidateViewers(ctx, viewers...)
}

// handleGraphRepair replays the failed side of a partial update, then refreshes both
// users. A failed replay is returned so the message is logged; the side deltas are
// idempotent and safe to replay again.
func (h *Handler) handleGraphRepair(ctx context.Context, event queue.ChangeEvent) error {
	if event.RepairSide == nil {
		return fmt.Errorf("graph_repair without side")
	}

	log.Printf("[Worker] GraphRepair: op=%s user=%s deltas=%d",
		event.RepairOp, event.RepairSide.UID, len(event.RepairSide.Deltas))
	if err := h.repairer.Repair(ctx, *event.RepairSide); err != nil {
		return fmt.Errorf("repair %s: %w", event.RepairOp, err)
	}

	log.Printf("[Worker] GraphRepair DONE: op=%s user=%s", event.RepairOp, event.RepairSide.UID)
	return h.feeds.InvalidateViewers(ctx, event.AffectedUsers()...)
}

// audience returns uid followed by uid's followers.
func (h *Handler) audience(ctx context.Context, uid string) ([]string, error) {
	user, err := h.graph.GetUser(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("get followers of %s: %w", uid, err)
	}
	return append([]string{uid}, user.Followers...), nil
}
