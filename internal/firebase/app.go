package firebase

import (
	"context"
	"fmt"
	"log"

	"cloud.google.com/go/firestore"
	fb "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// App wraps the Firebase app that owns the document store and the user accounts.
//
// The credentials (project ID, client email, private key) come from Firebase Console:
// Project Settings -> Service Accounts -> Generate New Private Key. Without a client
// email the SDK falls back to application default credentials.
type App struct {
	app       *fb.App
	projectID string
}

func NewApp(ctx context.Context, projectID, clientEmail, privateKey string) (*App, error) {
	var opts []option.ClientOption
	if clientEmail != "" {
		// Equivalent to the JSON file downloaded from Firebase Console
		credsJSON := fmt.Sprintf(`{
		"type": "service_account",
		"project_id": %q,
		"private_key": %q,
		"client_email": %q,
		"token_uri": "https://oauth2.googleapis.com/token"
	}`, projectID, privateKey, clientEmail)
		opts = append(opts, option.WithCredentialsJSON([]byte(credsJSON)))
	}

	app, err := fb.NewApp(ctx, &fb.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}

	log.Printf("[Firebase] Initialized for project: %s", projectID)
	return &App{app: app, projectID: projectID}, nil
}

// Firestore opens the document store client. The caller closes it.
func (a *App) Firestore(ctx context.Context) (*firestore.Client, error) {
	client, err := a.app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("get firestore client: %w", err)
	}
	return client, nil
}

// Auth returns the client that verifies ID tokens.
func (a *App) Auth(ctx context.Context) (*auth.Client, error) {
	client, err := a.app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("get auth client: %w", err)
	}
	return client, nil
}
