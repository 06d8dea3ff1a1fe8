package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTProvider verifies HS256 tokens signed with a shared secret. It is meant for local
// development and tests where no Firebase project is available; identity records are
// synthesised from the subject.
type JWTProvider struct {
	secret []byte
	issuer string
}

// NewJWTProvider creates a provider for tokens signed with secret. An empty issuer
// disables the issuer check.
func NewJWTProvider(secret, issuer string) *JWTProvider {
	return &JWTProvider{secret: []byte(secret), issuer: issuer}
}

// VerifyIDToken validates the token and returns its subject claim.
func (p *JWTProvider) VerifyIDToken(_ context.Context, idToken string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(idToken, claims, func(*jwt.Token) (any, error) {
		return p.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return "", errors.New("token invalid")
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// Issue signs a token for subject valid for ttl.
func (p *JWTProvider) Issue(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    p.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}

// GetUser returns an identity carrying only the subject.
func (p *JWTProvider) GetUser(_ context.Context, uid string) (Identity, error) {
	return Identity{UID: uid}, nil
}

// UpdateUser is a no-op; profile fields live in the document store.
func (p *JWTProvider) UpdateUser(context.Context, string, IdentityUpdate) error {
	return nil
}
