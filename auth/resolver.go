package auth

import (
	"context"
	"fmt"
	"live-chat/domain"
	"live-chat/errors"
	"strings"
)

// JWTResolver accepts tokens issued by the identity service.
type JWTResolver struct {
	issuer *TokenIssuer
}

func NewJWTResolver(issuer *TokenIssuer) *JWTResolver {
	return &JWTResolver{issuer: issuer}
}

func (r *JWTResolver) Resolve(_ context.Context, token string) (domain.Identity, error) {
	if strings.TrimSpace(token) == "" {
		return domain.Identity{}, errors.ErrIdentityRequired
	}
	claims, err := r.issuer.ValidateToken(token)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", errors.ErrInvalidIdentity, err)
	}
	if strings.TrimSpace(claims.DisplayName) == "" {
		return domain.Identity{}, fmt.Errorf("%w: missing display_name claim", errors.ErrInvalidIdentity)
	}
	return domain.Identity{Subject: claims.Subject, DisplayName: claims.DisplayName}, nil
}

// StaticResolver maps known tokens to identities.
// Without a table, every non blank token is accepted and used as the display name.
type StaticResolver struct {
	identities map[string]domain.Identity
}

func NewStaticResolver(identities map[string]domain.Identity) *StaticResolver {
	return &StaticResolver{identities: identities}
}

func (r *StaticResolver) Resolve(_ context.Context, token string) (domain.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Identity{}, errors.ErrIdentityRequired
	}
	if r.identities == nil {
		return domain.Identity{Subject: token, DisplayName: token}, nil
	}
	identity, ok := r.identities[token]
	if !ok {
		return domain.Identity{}, errors.ErrInvalidIdentity
	}
	return identity, nil
}
