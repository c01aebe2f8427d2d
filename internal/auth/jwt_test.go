package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	svc := NewJWTService("test-secret", "paperhub", time.Hour)

	token, err := svc.GenerateToken(42, "alice")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "paperhub", claims.Issuer)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	svc := NewJWTService("secret-a", "paperhub", time.Hour)
	other := NewJWTService("secret-b", "paperhub", time.Hour)

	token, err := svc.GenerateToken(1, "bob")
	require.NoError(t, err)

	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateToken_Expired(t *testing.T) {
	svc := NewJWTService("test-secret", "paperhub", -time.Minute)

	token, err := svc.GenerateToken(1, "bob")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateToken_Garbage(t *testing.T) {
	svc := NewJWTService("test-secret", "paperhub", time.Hour)

	_, err := svc.ValidateToken("not-a-token")
	assert.Error(t, err)
}
