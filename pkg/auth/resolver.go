package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/billing-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/billing-backend/pkg/errors"
)

// Resolver turns a bearer credential into a Subscriber.
type Resolver struct {
	cfg config.JWTConfig
}

func NewResolver(cfg config.JWTConfig) *Resolver {
	return &Resolver{cfg: cfg}
}

// Resolve validates the token and extracts the subscriber identity. Every
// failure maps to UNAUTHORIZED.
func (r *Resolver) Resolve(ctx context.Context, token string) (Subscriber, error) {
	if strings.TrimSpace(token) == "" {
		return Subscriber{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing bearer token")
	}
	claims, err := ParseAccessToken(r.cfg, token)
	if err != nil {
		return Subscriber{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid bearer token")
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Subscriber{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, fmt.Sprintf("invalid subject %q", claims.Subject))
	}
	return Subscriber{ID: id, Email: claims.Email}, nil
}
