package repository

import (
	"errors"
	"fmt"

	"jazzfeed/internal/docstore"
	"jazzfeed/internal/model"
)

func userFromDoc(doc docstore.Document) *model.User {
	uid := doc.String(model.FieldUID)
	if uid == "" {
		uid = doc.ID
	}
	return &model.User{
		UID:               uid,
		DisplayName:       doc.String(model.FieldDisplayName),
		Email:             doc.String(model.FieldEmail),
		Bio:               doc.String(model.FieldBio),
		ProfilePicture:    doc.String(model.FieldProfilePicture),
		Followers:         doc.Strings(model.FieldFollowers),
		Following:         doc.Strings(model.FieldFollowing),
		FollowerRequests:  doc.Strings(model.FieldFollowerRequests),
		FollowingRequests: doc.Strings(model.FieldFollowingRequests),
	}
}

func userToData(u *model.User) map[string]any {
	return map[string]any{
		model.FieldUID:               u.UID,
		model.FieldDisplayName:       u.DisplayName,
		model.FieldEmail:             u.Email,
		model.FieldBio:               u.Bio,
		model.FieldProfilePicture:    u.ProfilePicture,
		model.FieldFollowers:         nonNil(u.Followers),
		model.FieldFollowing:         nonNil(u.Following),
		model.FieldFollowerRequests:  nonNil(u.FollowerRequests),
		model.FieldFollowingRequests: nonNil(u.FollowingRequests),
	}
}

func postFromDoc(doc docstore.Document) model.Post {
	return model.Post{
		ID:     doc.ID,
		UID:    doc.String(model.FieldUID),
		Text:   doc.String(model.FieldPostText),
		Time:   storedTime(doc.String(model.FieldTime)),
		Images: doc.Strings(model.FieldImages),
		Likes:  doc.Strings(model.FieldLikes),
	}
}

func commentFromDoc(doc docstore.Document) model.Comment {
	return model.Comment{
		ID:     doc.ID,
		PostID: doc.String(model.FieldPostID),
		UID:    doc.String(model.FieldUID),
		Text:   doc.String(model.FieldCommentText),
		Time:   storedTime(doc.String(model.FieldTime)),
	}
}

// storedTime rewrites RFC 3339 timestamps written by other clients into TimeLayout so
// string ordering stays chronological. Unparseable values are kept as they are.
func storedTime(s string) string {
	t, err := model.ParseTime(s)
	if err != nil {
		return s
	}
	return model.FormatTime(t)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// mapStoreError translates docstore errors into the core's error kinds. notFound is
// returned for a missing document.
func mapStoreError(err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, docstore.ErrNotFound):
		return notFound
	case errors.Is(err, docstore.ErrUnavailable):
		return fmt.Errorf("%w: %v", model.ErrBackendUnavailable, err)
	case errors.Is(err, docstore.ErrInvalidArgument):
		return fmt.Errorf("%w: %v", model.ErrInvalidOperation, err)
	default:
		return err
	}
}
