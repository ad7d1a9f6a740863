package providers

import "context"

// AuthProvider verifies bearer tokens presented to the save backend.
type AuthProvider interface {
	VerifyToken(ctx context.Context, idToken string) (*TokenClaims, error)
}

type TokenClaims struct {
	UID string `json:"uid"`
}
