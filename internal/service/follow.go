package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"jazzfeed/internal/model"
	"jazzfeed/internal/queue"
	"jazzfeed/internal/repository"
)

// FollowService drives the NONE -> REQUESTED -> FOLLOWING workflow. Every account is
// private, so following always starts with a request the target has to accept.
type FollowService struct {
	graph     repository.GraphStore
	publisher queue.Publisher
}

func NewFollowService(graph repository.GraphStore, publisher queue.Publisher) *FollowService {
	return &FollowService{graph: graph, publisher: publisher}
}

// GetState reports the viewer's relation to target.
func (s *FollowService) GetState(ctx context.Context, viewerUID, targetUID string) (model.FollowState, error) {
	viewer, err := s.graph.GetUser(ctx, viewerUID)
	if err != nil {
		return "", err
	}
	return model.FollowStateOf(viewer, targetUID), nil
}

// RequestFollow moves NONE to REQUESTED. Repeating the request or requesting an
// account already followed succeeds with an informational message.
func (s *FollowService) RequestFollow(ctx context.Context, viewerUID, targetUID string) (*model.FollowStatusResponse, error) {
	err := s.graph.RequestFollow(ctx, viewerUID, targetUID)
	switch {
	case errors.Is(err, model.ErrAlreadyFollowing):
		return s.status(targetUID, model.FollowStateFollowing, err), nil
	case errors.Is(err, model.ErrAlreadyRequested):
		return s.status(targetUID, model.FollowStateRequested, err), nil
	case err != nil:
		return nil, s.graphFailure(ctx, "RequestFollow", err)
	}

	publish(ctx, s.publisher, "FollowService", queue.NewGraphEvent(queue.EventFollowRequested, viewerUID, targetUID))
	log.Printf("[FollowService] RequestFollow OK: requester=%s target=%s", viewerUID, targetUID)
	return s.status(targetUID, model.FollowStateRequested, nil), nil
}

// Unfollow moves FOLLOWING or REQUESTED back to NONE. It is a no-op from NONE.
func (s *FollowService) Unfollow(ctx context.Context, viewerUID, targetUID string) (*model.FollowStatusResponse, error) {
	state, err := s.GetState(ctx, viewerUID, targetUID)
	if err != nil {
		return nil, err
	}

	switch state {
	case model.FollowStateSelf:
		return nil, model.ErrCannotFollowSelf
	case model.FollowStateNone:
		return s.status(targetUID, model.FollowStateNone, nil), nil
	case model.FollowStateRequested:
		if err := s.graph.CancelRequest(ctx, viewerUID, targetUID); err != nil {
			return nil, s.graphFailure(ctx, "CancelRequest", err)
		}
		publish(ctx, s.publisher, "FollowService", queue.NewGraphEvent(queue.EventFollowCancelled, viewerUID, targetUID))
	case model.FollowStateFollowing:
		if err := s.graph.Unfollow(ctx, viewerUID, targetUID); err != nil {
			return nil, s.graphFailure(ctx, "Unfollow", err)
		}
		publish(ctx, s.publisher, "FollowService", queue.NewGraphEvent(queue.EventUserUnfollowed, viewerUID, targetUID))
	}

	log.Printf("[FollowService] Unfollow OK: requester=%s target=%s from=%s", viewerUID, targetUID, state)
	return s.status(targetUID, model.FollowStateNone, nil), nil
}

// Accept is called by the owner on a pending request and moves the requester to
// FOLLOWING.
func (s *FollowService) Accept(ctx context.Context, ownerUID, requesterUID string) (*model.FollowStatusResponse, error) {
	if err := s.graph.AcceptRequest(ctx, ownerUID, requesterUID); err != nil {
		return nil, s.graphFailure(ctx, "AcceptRequest", err)
	}

	publish(ctx, s.publisher, "FollowService", queue.NewGraphEvent(queue.EventFollowAccepted, requesterUID, ownerUID))
	log.Printf("[FollowService] Accept OK: owner=%s requester=%s", ownerUID, requesterUID)
	return s.status(requesterUID, model.FollowStateFollowing, nil), nil
}

// Decline drops a pending request. Declining a request that no longer exists is a
// no-op.
func (s *FollowService) Decline(ctx context.Context, ownerUID, requesterUID string) (*model.FollowStatusResponse, error) {
	if err := s.graph.DeclineRequest(ctx, ownerUID, requesterUID); err != nil {
		return nil, s.graphFailure(ctx, "DeclineRequest", err)
	}

	publish(ctx, s.publisher, "FollowService", queue.NewGraphEvent(queue.EventFollowDeclined, requesterUID, ownerUID))
	log.Printf("[FollowService] Decline OK: owner=%s requester=%s", ownerUID, requesterUID)
	return s.status(requesterUID, model.FollowStateNone, nil), nil
}

func (s *FollowService) status(targetUID string, state model.FollowState, info error) *model.FollowStatusResponse {
	resp := &model.FollowStatusResponse{TargetUID: targetUID, State: state}
	if info != nil {
		resp.Message = info.Error()
	}
	return resp
}

// graphFailure schedules a repair for repairable partial mirrored updates before
// handing the error back.
func (s *FollowService) graphFailure(ctx context.Context, op string, err error) error {
	var partial *model.PartialGraphUpdateError
	if errors.As(err, &partial) {
		log.Printf("[FollowService] PARTIAL GRAPH UPDATE during %s: %v", op, partial)
		if partial.Repairable() {
			publish(ctx, s.publisher, "FollowService", queue.NewGraphRepairEvent(partial))
		} else {
			log.Printf("[FollowService] No repair possible for %s: user %s is missing", op, partial.Failed.UID)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
