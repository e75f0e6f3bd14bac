package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestJWTRoundTrip(t *testing.T) {
	m := NewJWTManager(testSecret, time.Minute)

	token, err := m.GenerateAccessToken(42, "GESTOR", 7)
	require.NoError(t, err)

	claims, err := m.ParseAndValidate(token)
	require.NoError(t, err)

	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, "GESTOR", claims.Role)
	assert.Equal(t, int64(7), claims.EmpresaID)
}

func TestJWTRejectsOtherSecretAndExpired(t *testing.T) {
	token, err := NewJWTManager(testSecret, time.Minute).GenerateAccessToken(1, "ADMIN", 1)
	require.NoError(t, err)

	_, err = NewJWTManager("ffffffffffffffffffffffffffffffff", time.Minute).ParseAndValidate(token)
	assert.Error(t, err)

	expired, err := NewJWTManager(testSecret, -time.Minute).GenerateAccessToken(1, "ADMIN", 1)
	require.NoError(t, err)
	_, err = NewJWTManager(testSecret, time.Minute).ParseAndValidate(expired)
	assert.Error(t, err)
}

func TestAPIKeyLifecycle(t *testing.T) {
	key, prefix, hash, err := GenerateAPIKey()
	require.NoError(t, err)

	gotPrefix, secret, err := SplitAPIKey(key)
	require.NoError(t, err)
	assert.Equal(t, prefix, gotPrefix)

	ok, err := VerifyAPIKey(secret, hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyAPIKey("outro", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = SplitAPIKey("sem-ponto")
	assert.ErrorIs(t, err, ErrInvalidAPIKey)
}
