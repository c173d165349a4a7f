package jwt

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateValidateRoundTrip(t *testing.T) {
	mgr := NewManager(TokenConfig{Secret: []byte("test-secret")})
	userID := uuid.New()

	token, err := mgr.Generate(userID, "alice", "player")
	require.NoError(t, err)

	claims, err := mgr.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "alice", claims.DisplayName)
	assert.Equal(t, "player", claims.Role)
	assert.Equal(t, "quizarena", claims.Issuer)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	signer := NewManager(TokenConfig{Secret: []byte("signer-secret")})
	verifier := NewManager(TokenConfig{Secret: []byte("other-secret")})

	token, err := signer.Generate(uuid.New(), "bob", "player")
	require.NoError(t, err)

	_, err = verifier.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsExpired(t *testing.T) {
	mgr := NewManager(TokenConfig{Secret: []byte("test-secret"), TTL: -time.Minute})

	token, err := mgr.Generate(uuid.New(), "carol", "player")
	require.NoError(t, err)

	_, err = mgr.Validate(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateRejectsGarbage(t *testing.T) {
	mgr := NewManager(TokenConfig{Secret: []byte("test-secret")})

	_, err := mgr.Validate("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
