// Package identity defines the contract between the chat core and whatever
// component owns user accounts. The chat layer only ever sees an Identity;
// passwords, tokens and storage stay behind the Provider.
package identity

import (
	"context"
	"errors"
)

// ErrAuth is returned for a bad, missing, expired or revoked credential.
// Implementations wrap it so callers can test with errors.Is.
var ErrAuth = errors.New("authentication failed")

// Identity is the authenticated principal attached to a connection.
type Identity struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// Credentials is what a user presents to log in.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Verifier resolves a bearer token into an Identity.
type Verifier interface {
	VerifyToken(ctx context.Context, token string) (Identity, error)
}

// Provider is the full Identity Provider collaborator.
type Provider interface {
	Verifier
	Authenticate(ctx context.Context, creds Credentials) (Identity, error)
}
