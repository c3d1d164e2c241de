package model

// Collection and field names of user documents.
const (
	CollectionUsers = "users"

	FieldUID               = "uid"
	FieldDisplayName       = "displayName"
	FieldEmail             = "email"
	FieldBio               = "bio"
	FieldProfilePicture    = "profilePicture"
	FieldFollowers         = "followers"
	FieldFollowing         = "following"
	FieldFollowerRequests  = "followerRequests"
	FieldFollowingRequests = "followingRequests"
)

// DefaultBio is shown when a user never set a bio.
const DefaultBio = "Hi there!"

const MaxBioLength = 500

// User is a user document. The four relation fields are sets of uids.
type User struct {
	UID               string   `json:"uid"`
	DisplayName       string   `json:"displayName"`
	Email             string   `json:"email"`
	Bio               string   `json:"bio"`
	ProfilePicture    string   `json:"profilePicture,omitempty"`
	Followers         []string `json:"followers"`
	Following         []string `json:"following"`
	FollowerRequests  []string `json:"followerRequests"`
	FollowingRequests []string `json:"followingRequests"`
}

func (u *User) IsFollowing(uid string) bool        { return contains(u.Following, uid) }
func (u *User) HasFollower(uid string) bool        { return contains(u.Followers, uid) }
func (u *User) HasRequestedFollow(uid string) bool { return contains(u.FollowingRequests, uid) }
func (u *User) HasFollowerRequest(uid string) bool { return contains(u.FollowerRequests, uid) }

// UserSummary is the lightweight form used in lists.
type UserSummary struct {
	UID            string  `json:"uid"`
	DisplayName    *string `json:"displayName"`
	Email          *string `json:"email"`
	ProfilePicture *string `json:"profilePicture,omitempty"`
}

// Summary returns the list form of u.
func (u *User) Summary() UserSummary {
	s := UserSummary{UID: u.UID}
	if u.DisplayName != "" {
		s.DisplayName = &u.DisplayName
	}
	if u.Email != "" {
		s.Email = &u.Email
	}
	if u.ProfilePicture != "" {
		s.ProfilePicture = &u.ProfilePicture
	}
	return s
}

// SignupRequest creates the user document for an authenticated uid.
type SignupRequest struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// UpdateProfileRequest edits the mutable profile fields. Nil fields are left untouched.
type UpdateProfileRequest struct {
	Bio            *string `json:"bio"`
	ProfilePicture *string `json:"profilePicture"`
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
