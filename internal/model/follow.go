package model

// FollowState is the state of an ordered (viewer, target) pair.
type FollowState string

const (
	FollowStateNone      FollowState = "NONE"
	FollowStateRequested FollowState = "REQUESTED"
	FollowStateFollowing FollowState = "FOLLOWING"
	// FollowStateSelf is reported when viewer and target are the same user.
	FollowStateSelf FollowState = "SELF"
)

// FollowStateOf derives the pair state from the viewer's document.
func FollowStateOf(viewer *User, targetUID string) FollowState {
	switch {
	case viewer.UID == targetUID:
		return FollowStateSelf
	case viewer.IsFollowing(targetUID):
		return FollowStateFollowing
	case viewer.HasRequestedFollow(targetUID):
		return FollowStateRequested
	default:
		return FollowStateNone
	}
}

// FollowStatusResponse is returned by every follow transition.
type FollowStatusResponse struct {
	TargetUID string      `json:"targetUid"`
	State     FollowState `json:"state"`
	Message   string      `json:"message,omitempty"`
}

// FollowListResponse lists followers or followed users.
type FollowListResponse struct {
	Users []UserSummary `json:"users"`
}

// ProfileView is a user profile as seen by a viewer. Posts is empty and Private is
// true unless the viewer is the owner or follows them.
type ProfileView struct {
	User           UserSummary `json:"user"`
	Bio            string      `json:"bio"`
	FollowerCount  int         `json:"followerCount"`
	FollowingCount int         `json:"followingCount"`
	State          FollowState `json:"state"`
	Private        bool        `json:"private"`
	Posts          []FeedEntry `json:"posts"`
}
