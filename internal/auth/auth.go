// Package auth verifies bearer credentials against the identity provider.
package auth

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/serene/backend/internal/model"
)

// Verifier validates a raw credential and returns its subject identifier.
type Verifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (string, error)
}

// Identity is the provider-side record of a user.
type Identity struct {
	UID           string
	Email         string
	DisplayName   string
	PhotoURL      string
	EmailVerified bool
	CreatedAt     int64
}

// IdentityUpdate lists provider-side fields to change. Nil fields are left untouched.
type IdentityUpdate struct {
	DisplayName *string
	PhotoURL    *string
}

// Directory reads and updates identity records.
type Directory interface {
	GetUser(ctx context.Context, uid string) (Identity, error)
	UpdateUser(ctx context.Context, uid string, update IdentityUpdate) error
}

// Provider is an identity service that both verifies credentials and serves identity records.
type Provider interface {
	Verifier
	Directory
}

// ParseBearer extracts the credential from an Authorization header of the form
// "Bearer <credential>". The scheme is matched case-insensitively and the header must
// contain exactly two whitespace-separated parts.
func ParseBearer(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// Authenticate resolves the subject of an Authorization header. Every failure is reported
// as model.ErrUnauthorized; the underlying cause is only logged.
func Authenticate(ctx context.Context, v Verifier, header string) (string, error) {
	if v == nil {
		return "", model.ErrUnauthorized
	}

	token, ok := ParseBearer(header)
	if !ok {
		return "", model.ErrUnauthorized
	}

	uid, err := v.VerifyIDToken(ctx, token)
	if err != nil {
		log.Debug().Err(err).Msg("token verification failed")
		return "", model.ErrUnauthorized
	}
	if uid == "" {
		return "", model.ErrUnauthorized
	}
	return uid, nil
}
