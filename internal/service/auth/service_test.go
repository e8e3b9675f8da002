package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifedrop/lifedrop-api/internal/model"
	"github.com/lifedrop/lifedrop-api/internal/store"
	"github.com/lifedrop/lifedrop-api/internal/store/storetest"
	"github.com/lifedrop/lifedrop-api/pkg/auth"
)

func newService(t *testing.T, session bool) (*Service, *storetest.Backend) {
	t.Helper()
	b := storetest.New(store.Snapshot{})
	b.Auth().(*storetest.Auth).Session = session
	st := store.New(b, nil, nil, nil)
	jwtSvc, err := auth.NewJWTService(auth.Config{Secret: "test"})
	require.NoError(t, err)
	return NewService(st, jwtSvc, nil), b
}

func registration() model.RegisterRequest {
	return model.RegisterRequest{
		NewUser: model.NewUser{
			FullName: "Ana", Email: "ana@example.com", BloodType: model.BloodTypeONeg,
			City: "Madrid", Role: model.RoleDonor,
		},
		Password: "secret1",
	}
}

func TestRegister_WithSession(t *testing.T) {
	svc, _ := newService(t, true)

	resp, err := svc.Register(context.Background(), registration())
	require.NoError(t, err)
	assert.False(t, resp.VerificationRequired)
	require.NotNil(t, resp.Token)

	claims, err := svc.ValidateToken(context.Background(), resp.Token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.UserID)

	_, err = svc.Register(context.Background(), registration())
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestRegister_RequiresVerification(t *testing.T) {
	svc, b := newService(t, false)
	ctx := context.Background()

	resp, err := svc.Register(ctx, registration())
	require.NoError(t, err)
	assert.True(t, resp.VerificationRequired)
	assert.Nil(t, resp.Token)

	b.Auth().(*storetest.Auth).Codes["ana@example.com"] = "12345678"
	_, err = svc.Verify(ctx, "ana@example.com", "87654321")
	assert.ErrorIs(t, err, store.ErrInvalidOTP)

	tok, err := svc.Verify(ctx, "ana@example.com", "12345678")
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, tok.User.ID)
}

func TestLoginLogout(t *testing.T) {
	svc, _ := newService(t, true)
	ctx := context.Background()
	_, err := svc.Register(ctx, registration())
	require.NoError(t, err)

	_, err = svc.Login(ctx, "ana@example.com", "nope")
	assert.ErrorIs(t, err, store.ErrInvalidCredentials)

	tok, err := svc.Login(ctx, "ana@example.com", "secret1")
	require.NoError(t, err)
	assert.Positive(t, tok.ExpiresIn)

	claims, err := svc.ValidateToken(ctx, tok.AccessToken)
	require.NoError(t, err)
	me, err := svc.Me(ctx, claims.UserID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", me.FullName)

	require.NoError(t, svc.Logout(ctx, claims))
	_, err = svc.ValidateToken(ctx, tok.AccessToken)
	assert.ErrorIs(t, err, auth.ErrTokenRevoked)
}
