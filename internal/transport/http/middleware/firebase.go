package middleware

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/auth"
)

// FirebaseVerifier checks Firebase ID tokens issued to the mobile client.
type FirebaseVerifier struct {
	client *auth.Client
}

func NewFirebaseVerifier(client *auth.Client) *FirebaseVerifier {
	return &FirebaseVerifier{client: client}
}

func (v *FirebaseVerifier) VerifyToken(ctx context.Context, token string) (string, error) {
	verified, err := v.client.VerifyIDToken(ctx, token)
	if err != nil {
		if auth.IsIDTokenExpired(err) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("verify id token: %w", err)
	}
	return verified.UID, nil
}
