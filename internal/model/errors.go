package model

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the core. Handlers match on these with errors.Is.
var (
	// ErrNotFound is returned when a referenced user or post is absent.
	ErrNotFound = errors.New("not found")

	// ErrInvalidOperation is returned for self-likes, self-follows and malformed input.
	// It is never retried.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrAlreadyFollowing and ErrAlreadyRequested are informational no-op conditions.
	ErrAlreadyFollowing = errors.New("already following this user")
	ErrAlreadyRequested = errors.New("follow already requested")

	// ErrPartialGraphUpdate means one side of a mirrored edge update failed and the
	// graph is inconsistent until the failed side is replayed.
	ErrPartialGraphUpdate = errors.New("partial graph update")

	// ErrBackendUnavailable is a transient backend failure.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrStaleFeed is returned when a newer feed load superseded this one.
	ErrStaleFeed = errors.New("feed load superseded by a newer load")

	// ErrPrivateProfile is returned for follow lists of accounts the viewer does not
	// follow.
	ErrPrivateProfile = errors.New("profile is private")
)

var (
	ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)
	ErrPostNotFound = fmt.Errorf("post %w", ErrNotFound)
)

// Invalid operation details.
var (
	ErrSelfLike         = fmt.Errorf("%w: cannot like your own post", ErrInvalidOperation)
	ErrCannotFollowSelf = fmt.Errorf("%w: cannot follow yourself", ErrInvalidOperation)
	ErrNoPendingRequest = fmt.Errorf("%w: no pending follow request", ErrInvalidOperation)
	ErrContentRequired  = fmt.Errorf("%w: content is required", ErrInvalidOperation)
	ErrContentTooLong   = fmt.Errorf("%w: content too long", ErrInvalidOperation)
	ErrTooManyImages    = fmt.Errorf("%w: too many images", ErrInvalidOperation)
	ErrInvalidImageURL  = fmt.Errorf("%w: invalid image URL", ErrInvalidOperation)
	ErrEmptyID          = fmt.Errorf("%w: id is required", ErrInvalidOperation)
)

// GraphSide is one document's half of a mirrored graph mutation.
type GraphSide struct {
	UID    string        `json:"uid"`
	Deltas []MemberDelta `json:"deltas"`
}

// MemberDelta adds or removes Value from the set stored in Field.
type MemberDelta struct {
	Field  string `json:"field"`
	Value  string `json:"value"`
	Remove bool   `json:"remove,omitempty"`
}

// PartialGraphUpdateError reports which side of a mirrored update was applied and
// which one still has to be replayed.
type PartialGraphUpdateError struct {
	Op      string
	Applied GraphSide
	Failed  GraphSide
	Err     error
}

func (e *PartialGraphUpdateError) Error() string {
	return fmt.Sprintf("%s: %s applied, %s failed: %v", e.Op, e.Applied.UID, e.Failed.UID, e.Err)
}

// Repairable reports whether replaying Failed can succeed. A missing document on the
// failed side cannot be repaired by a replay.
func (e *PartialGraphUpdateError) Repairable() bool {
	return !errors.Is(e.Err, ErrNotFound)
}

func (e *PartialGraphUpdateError) Unwrap() []error {
	return []error{ErrPartialGraphUpdate, e.Err}
}
