package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifedrop/lifedrop-api/internal/model"
)

func TestJWTService_RoundTrip(t *testing.T) {
	svc, err := NewJWTService(Config{Secret: "test-secret", AccessTokenTTL: time.Hour})
	require.NoError(t, err)

	user := &model.User{ID: "u1", Email: "a@example.com", Role: model.RoleHospital}
	token, err := svc.GenerateAccessToken(user)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, model.RoleHospital, claims.Role)
	assert.NotEmpty(t, claims.ID)
}

func TestJWTService_Rejects(t *testing.T) {
	svc, err := NewJWTService(Config{Secret: "test-secret"})
	require.NoError(t, err)
	other, err := NewJWTService(Config{Secret: "other-secret"})
	require.NoError(t, err)

	token, err := other.GenerateAccessToken(&model.User{ID: "u1"})
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.ValidateToken("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := svc.(*jwtService)
	expired.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	old, err := expired.GenerateAccessToken(&model.User{ID: "u1"})
	require.NoError(t, err)
	expired.now = time.Now
	_, err = svc.ValidateToken(old)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTService_Revoke(t *testing.T) {
	svc, err := NewJWTService(Config{Secret: "test-secret"})
	require.NoError(t, err)

	token, err := svc.GenerateAccessToken(&model.User{ID: "u1"})
	require.NoError(t, err)
	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)

	svc.Revoke(claims)
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestNewJWTService_RequiresSecret(t *testing.T) {
	_, err := NewJWTService(Config{})
	assert.Error(t, err)
}
