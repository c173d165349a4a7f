package auth

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quizarena/quizarena/internal/auth/jwt"
)

// Identity is the verified principal attached to a connection.
type Identity struct {
	UserID      uuid.UUID
	DisplayName string
	Role        string
}

// Gate verifies bearer credentials on connection handshakes. It does not issue
// or refresh credentials; that lives with the external auth service.
type Gate struct {
	tokens *jwt.Manager
	logger zerolog.Logger
}

// NewGate creates an identity gate over a JWT token manager.
func NewGate(tokens *jwt.Manager, logger zerolog.Logger) *Gate {
	return &Gate{
		tokens: tokens,
		logger: logger.With().Str("component", "auth_gate").Logger(),
	}
}

// VerifyCredential validates an opaque bearer token and returns the identity
// it carries.
func (g *Gate) VerifyCredential(token string) (Identity, error) {
	claims, err := g.tokens.Validate(token)
	if err != nil {
		return Identity{}, err
	}
	return Identity{
		UserID:      claims.UserID,
		DisplayName: claims.DisplayName,
		Role:        claims.Role,
	}, nil
}
