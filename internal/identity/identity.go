package identity

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/trip-dispatch/internal/models"
)

var ErrUnauthorized = errors.New("unauthorized")

// Provider resolves a bearer credential presented at the connection
// handshake into an identity. The core trusts the result for the
// lifetime of the connection.
type Provider interface {
	Authenticate(token string) (models.Identity, error)
}

// JWTProvider verifies HS256 tokens carrying `sub` and `role` claims.
type JWTProvider struct {
	secret []byte
}

func NewJWTProvider(secret string) *JWTProvider {
	return &JWTProvider{secret: []byte(secret)}
}

func (p *JWTProvider) Authenticate(token string) (models.Identity, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil || !parsed.Valid {
		return models.Identity{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return models.Identity{}, ErrUnauthorized
	}
	sub, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	id := models.Identity{ID: sub, Role: models.Role(role)}
	if id.ID == "" || (id.Role != models.RoleRider && id.Role != models.RoleDriver) {
		return models.Identity{}, ErrUnauthorized
	}
	return id, nil
}

// StaticProvider maps fixed tokens to identities, for local runs and
// tests where no auth service is reachable.
type StaticProvider struct {
	Tokens map[string]models.Identity
}

func (p *StaticProvider) Authenticate(token string) (models.Identity, error) {
	if id, ok := p.Tokens[token]; ok {
		return id, nil
	}
	return models.Identity{}, ErrUnauthorized
}
