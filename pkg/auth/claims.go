package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Subscriber is the authenticated caller of the billing endpoints.
type Subscriber struct {
	ID    uuid.UUID
	Email string
}

// AccessTokenClaims is the bearer token shape: the subscriber id travels in
// the standard subject claim.
type AccessTokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}
