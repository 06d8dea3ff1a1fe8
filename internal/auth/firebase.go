package auth

import (
	"context"
	"fmt"

	fbauth "firebase.google.com/go/v4/auth"
)

// FirebaseProvider verifies Firebase ID tokens and reads Firebase Auth user records.
type FirebaseProvider struct {
	client *fbauth.Client
}

// NewFirebaseProvider wraps an initialised Firebase Auth client.
func NewFirebaseProvider(client *fbauth.Client) *FirebaseProvider {
	return &FirebaseProvider{client: client}
}

// VerifyIDToken checks signature, audience and expiry and returns the token's uid.
func (p *FirebaseProvider) VerifyIDToken(ctx context.Context, idToken string) (string, error) {
	token, err := p.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return "", fmt.Errorf("verify id token: %w", err)
	}
	return token.UID, nil
}

// GetUser loads the Firebase Auth record of uid.
func (p *FirebaseProvider) GetUser(ctx context.Context, uid string) (Identity, error) {
	rec, err := p.client.GetUser(ctx, uid)
	if err != nil {
		return Identity{}, fmt.Errorf("get firebase user: %w", err)
	}

	identity := Identity{EmailVerified: rec.EmailVerified}
	if rec.UserInfo != nil {
		identity.UID = rec.UID
		identity.Email = rec.Email
		identity.DisplayName = rec.DisplayName
		identity.PhotoURL = rec.PhotoURL
	}
	if identity.UID == "" {
		identity.UID = uid
	}
	if rec.UserMetadata != nil {
		identity.CreatedAt = rec.UserMetadata.CreationTimestamp
	}
	return identity, nil
}

// UpdateUser mirrors display name and photo changes into Firebase Auth.
func (p *FirebaseProvider) UpdateUser(ctx context.Context, uid string, update IdentityUpdate) error {
	if update.DisplayName == nil && update.PhotoURL == nil {
		return nil
	}

	params := &fbauth.UserToUpdate{}
	if update.DisplayName != nil {
		params = params.DisplayName(*update.DisplayName)
	}
	if update.PhotoURL != nil {
		params = params.PhotoURL(*update.PhotoURL)
	}

	if _, err := p.client.UpdateUser(ctx, uid, params); err != nil {
		return fmt.Errorf("update firebase user: %w", err)
	}
	return nil
}
