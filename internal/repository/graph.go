package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"jazzfeed/internal/batch"
	"jazzfeed/internal/docstore"
	"jazzfeed/internal/model"
)

type graphStore struct {
	store docstore.Store
}

func NewGraphStore(store docstore.Store) GraphStore {
	return &graphStore{store: store}
}

func (r *graphStore) GetUser(ctx context.Context, uid string) (*model.User, error) {
	if uid == "" {
		return nil, model.ErrEmptyID
	}
	doc, err := r.store.Get(ctx, model.CollectionUsers, uid)
	if err != nil {
		return nil, mapStoreError(err, model.ErrUserNotFound)
	}
	return userFromDoc(doc), nil
}

func (r *graphStore) GetUsers(ctx context.Context, uids []string) (map[string]*model.User, error) {
	docs, err := batch.Query(ctx, batch.Dedupe(uids), docstore.MaxInValues,
		func(ctx context.Context, chunk []string) ([]docstore.Document, error) {
			filter := docstore.Filter{Field: model.FieldUID, Op: docstore.OpIn, Value: chunk}
			return r.store.Query(ctx, model.CollectionUsers, filter, "", docstore.Asc)
		})
	if err != nil {
		return nil, mapStoreError(fmt.Errorf("get users: %w", err), model.ErrUserNotFound)
	}

	users := make(map[string]*model.User, len(docs))
	for _, doc := range docs {
		u := userFromDoc(doc)
		users[u.UID] = u
	}
	return users, nil
}

func (r *graphStore) CreateUser(ctx context.Context, user *model.User) error {
	if user.UID == "" {
		return model.ErrEmptyID
	}
	if err := r.store.Set(ctx, model.CollectionUsers, user.UID, userToData(user)); err != nil {
		return mapStoreError(fmt.Errorf("create user: %w", err), model.ErrUserNotFound)
	}
	return nil
}

func (r *graphStore) UpdateProfile(ctx context.Context, uid string, req *model.UpdateProfileRequest) error {
	var ops []docstore.Mutation
	if req.Bio != nil {
		ops = append(ops, docstore.SetField(model.FieldBio, *req.Bio))
	}
	if req.ProfilePicture != nil {
		ops = append(ops, docstore.SetField(model.FieldProfilePicture, *req.ProfilePicture))
	}
	if len(ops) == 0 {
		return nil
	}
	if err := r.store.Mutate(ctx, model.CollectionUsers, uid, ops...); err != nil {
		return mapStoreError(err, model.ErrUserNotFound)
	}
	return nil
}

// Follow creates the edge directly and clears any pending request for the pair.
func (r *graphStore) Follow(ctx context.Context, requester, target string) error {
	if err := r.checkPair(ctx, requester, target); err != nil {
		return err
	}
	owner, follower := edgeSides(target, requester)
	return r.applyMirrored(ctx, "follow", follower, owner)
}

// Unfollow removes the requester -> target edge from both documents.
func (r *graphStore) Unfollow(ctx context.Context, requester, target string) error {
	if err := validatePair(requester, target); err != nil {
		return err
	}
	return r.applyMirrored(ctx, "unfollow",
		model.GraphSide{UID: requester, Deltas: []model.MemberDelta{
			{Field: model.FieldFollowing, Value: target, Remove: true},
		}},
		model.GraphSide{UID: target, Deltas: []model.MemberDelta{
			{Field: model.FieldFollowers, Value: requester, Remove: true},
		}},
	)
}

// RequestFollow records a pending request on both sides. A repeated request re-asserts
// both sides and returns ErrAlreadyRequested.
func (r *graphStore) RequestFollow(ctx context.Context, requester, target string) error {
	if err := validatePair(requester, target); err != nil {
		return err
	}
	viewer, err := r.GetUser(ctx, requester)
	if err != nil {
		return err
	}
	if viewer.IsFollowing(target) {
		return model.ErrAlreadyFollowing
	}
	if _, err := r.GetUser(ctx, target); err != nil {
		return err
	}

	err = r.applyMirrored(ctx, "request follow",
		model.GraphSide{UID: requester, Deltas: []model.MemberDelta{
			{Field: model.FieldFollowingRequests, Value: target},
		}},
		model.GraphSide{UID: target, Deltas: []model.MemberDelta{
			{Field: model.FieldFollowerRequests, Value: requester},
		}},
	)
	if err != nil {
		return err
	}
	if viewer.HasRequestedFollow(target) {
		return model.ErrAlreadyRequested
	}
	return nil
}

// CancelRequest withdraws the requester's pending request. Absence is a no-op.
func (r *graphStore) CancelRequest(ctx context.Context, requester, target string) error {
	if err := validatePair(requester, target); err != nil {
		return err
	}
	owner, follower := requestRemovalSides(target, requester)
	return r.applyMirrored(ctx, "cancel request", follower, owner)
}

// AcceptRequest turns the pending request into an edge. Each document receives one
// update that removes the request and adds the edge.
func (r *graphStore) AcceptRequest(ctx context.Context, owner, requester string) error {
	if err := validatePair(owner, requester); err != nil {
		return err
	}
	ownerDoc, err := r.GetUser(ctx, owner)
	if err != nil {
		return err
	}
	if !ownerDoc.HasFollowerRequest(requester) {
		return model.ErrNoPendingRequest
	}
	ownerSide, requesterSide := edgeSides(owner, requester)
	return r.applyMirrored(ctx, "accept request", ownerSide, requesterSide)
}

// DeclineRequest drops the pending request. Absence is a no-op.
func (r *graphStore) DeclineRequest(ctx context.Context, owner, requester string) error {
	if err := validatePair(owner, requester); err != nil {
		return err
	}
	ownerSide, requesterSide := requestRemovalSides(owner, requester)
	return r.applyMirrored(ctx, "decline request", ownerSide, requesterSide)
}

func (r *graphStore) Repair(ctx context.Context, side model.GraphSide) error {
	if err := r.applySide(ctx, side); err != nil {
		return fmt.Errorf("repair %s: %w", side.UID, err)
	}
	log.Printf("[GraphStore] Repaired user=%s deltas=%d", side.UID, len(side.Deltas))
	return nil
}

// applyMirrored writes first then second. A failed second side gets one retry of that
// side only; set deltas are idempotent so the retry cannot double-apply.
func (r *graphStore) applyMirrored(ctx context.Context, op string, first, second model.GraphSide) error {
	if err := r.applySide(ctx, first); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err := r.applySide(ctx, second)
	if err == nil {
		return nil
	}
	if errors.Is(err, model.ErrNotFound) {
		// The second document is gone; a retry cannot succeed.
		return &model.PartialGraphUpdateError{Op: op, Applied: first, Failed: second, Err: err}
	}

	log.Printf("[GraphStore] %s: side %s failed, retrying once: %v", op, second.UID, err)
	if retryErr := r.applySide(ctx, second); retryErr != nil {
		log.Printf("[GraphStore] %s: PARTIAL UPDATE applied=%s failed=%s: %v", op, first.UID, second.UID, retryErr)
		return &model.PartialGraphUpdateError{Op: op, Applied: first, Failed: second, Err: retryErr}
	}
	return nil
}

func (r *graphStore) applySide(ctx context.Context, side model.GraphSide) error {
	ops := make([]docstore.Mutation, 0, len(side.Deltas))
	for _, d := range side.Deltas {
		if d.Remove {
			ops = append(ops, docstore.RemoveMember(d.Field, d.Value))
		} else {
			ops = append(ops, docstore.AddMember(d.Field, d.Value))
		}
	}
	if err := r.store.Mutate(ctx, model.CollectionUsers, side.UID, ops...); err != nil {
		return mapStoreError(err, fmt.Errorf("%w: %s", model.ErrUserNotFound, side.UID))
	}
	return nil
}

func (r *graphStore) checkPair(ctx context.Context, requester, target string) error {
	if err := validatePair(requester, target); err != nil {
		return err
	}
	if _, err := r.GetUser(ctx, target); err != nil {
		return err
	}
	return nil
}

func validatePair(a, b string) error {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return model.ErrEmptyID
	}
	if a == b {
		return model.ErrCannotFollowSelf
	}
	return nil
}

// edgeSides builds the accept/follow update: owner gains follower, requester gains
// following, and the pending pair is removed from both.
func edgeSides(owner, requester string) (model.GraphSide, model.GraphSide) {
	return model.GraphSide{UID: owner, Deltas: []model.MemberDelta{
			{Field: model.FieldFollowers, Value: requester},
			{Field: model.FieldFollowerRequests, Value: requester, Remove: true},
		}},
		model.GraphSide{UID: requester, Deltas: []model.MemberDelta{
			{Field: model.FieldFollowing, Value: owner},
			{Field: model.FieldFollowingRequests, Value: owner, Remove: true},
		}}
}

func requestRemovalSides(owner, requester string) (model.GraphSide, model.GraphSide) {
	return model.GraphSide{UID: owner, Deltas: []model.MemberDelta{
			{Field: model.FieldFollowerRequests, Value: requester, Remove: true},
		}},
		model.GraphSide{UID: requester, Deltas: []model.MemberDelta{
			{Field: model.FieldFollowingRequests, Value: owner, Remove: true},
		}}
}
