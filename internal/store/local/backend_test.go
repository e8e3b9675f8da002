package local

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifedrop/lifedrop-api/internal/model"
	"github.com/lifedrop/lifedrop-api/internal/store"
)

func openTemp(t *testing.T) (*Backend, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lifedrop.db")
	b, err := Open(context.Background(), path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b, path
}

func TestNewID_Format(t *testing.T) {
	b, _ := openTemp(t)
	re := regexp.MustCompile(`^[0-9a-z]{9}[0-9a-z]+$`)

	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		id := b.NewID()
		assert.Regexp(t, re, id)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, 200)
}

func TestHydrate_EmptyDatabase(t *testing.T) {
	b, _ := openTemp(t)

	snap, err := b.Hydrate(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, snap.Users)
	assert.Empty(t, snap.Users)
	assert.Empty(t, snap.Emergencies)
	assert.Nil(t, snap.Current)
}

func TestHydrate_MalformedValueLoadsAsEmpty(t *testing.T) {
	b, _ := openTemp(t)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, KeyEmergencies, "{not json"))
	require.NoError(t, b.Set(ctx, KeyDonations, `[{"id":"d1","donor_id":"u1","emergency_id":"e1","status":"pending","date":"2024-01-01T00:00:00Z"}]`))

	snap, err := b.Hydrate(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Emergencies)
	require.Len(t, snap.Donations, 1)
	assert.Equal(t, model.DonationStatusPending, snap.Donations[0].Status)
}

func TestApply_RewritesTouchedCollections(t *testing.T) {
	b, path := openTemp(t)
	ctx := context.Background()

	u := model.User{ID: "u1", Email: "a@example.com", Role: model.RoleDonor, CreatedAt: time.Now().UTC()}
	e := model.EmergencyRequest{ID: "e1", Hospital: "General", Status: model.EmergencyStatusOpen}
	snap := &store.Snapshot{
		Users:       []model.User{u},
		Emergencies: []model.EmergencyRequest{e},
		Current:     &u,
	}
	batch := []store.Mutation{
		{Op: store.OpInsert, Collection: store.CollectionUsers, Record: u},
		{Op: store.OpInsert, Collection: store.CollectionEmergencies, Record: e},
	}
	require.NoError(t, b.Apply(ctx, batch, snap))

	_, ok, err := b.Get(ctx, KeyNotifications)
	require.NoError(t, err)
	assert.False(t, ok, "untouched collections are not written")

	require.NoError(t, b.Close())
	reopened, err := Open(ctx, path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.Hydrate(ctx)
	require.NoError(t, err)
	require.Len(t, loaded.Users, 1)
	assert.Equal(t, "u1", loaded.Users[0].ID)
	require.Len(t, loaded.Emergencies, 1)
	require.NotNil(t, loaded.Current)
	assert.Equal(t, "u1", loaded.Current.ID)
}

func TestAuth_SignUpSignInSignOut(t *testing.T) {
	b, _ := openTemp(t)
	ctx := context.Background()

	var states []*model.User
	b.Auth().OnAuthStateChange(func(u *model.User) { states = append(states, u) })

	u := &model.User{ID: "u1", Email: "Donor@Example.com"}
	session, err := b.Auth().SignUp(ctx, u, "secret1")
	require.NoError(t, err)
	assert.True(t, session)

	_, err = b.Auth().SignUp(ctx, &model.User{ID: "u2", Email: "donor@example.com"}, "secret1")
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	raw, ok, err := b.Get(ctx, KeyPasswords)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, raw, "secret1")

	assert.ErrorIs(t, b.Auth().SignIn(ctx, u, "wrong"), store.ErrInvalidCredentials)
	require.NoError(t, b.Auth().SignIn(ctx, u, "secret1"))

	require.NoError(t, b.Auth().SignOut(ctx))
	raw, _, err = b.Get(ctx, KeyCurrentUser)
	require.NoError(t, err)
	assert.Equal(t, "null", raw)

	require.Len(t, states, 3)
	assert.Equal(t, "u1", states[0].ID)
	assert.Equal(t, "u1", states[1].ID)
	assert.Nil(t, states[2])
}

func TestAuth_PasswordsSurviveReopen(t *testing.T) {
	b, path := openTemp(t)
	ctx := context.Background()

	u := &model.User{ID: "u1", Email: "h@example.com"}
	_, err := b.Auth().SignUp(ctx, u, "secret1")
	require.NoError(t, err)
	require.NoError(t, b.Close())

	reopened, err := Open(ctx, path, nil)
	require.NoError(t, err)
	defer reopened.Close()
	_, err = reopened.Hydrate(ctx)
	require.NoError(t, err)

	assert.NoError(t, reopened.Auth().SignIn(ctx, u, "secret1"))
}

func TestStoreOverLocalBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lifedrop.db")
	ctx := context.Background()

	s, err := store.Open(ctx, nil, Opener(path, nil), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, store.ModeLocal, s.Mode())

	u, session, err := s.Register(ctx, model.RegisterRequest{
		NewUser: model.NewUser{
			FullName: "Ana", Email: "ana@example.com", BloodType: model.BloodTypeONeg,
			City: "Madrid", Role: model.RoleDonor,
		},
		Password: "secret1",
	})
	require.NoError(t, err)
	assert.True(t, session)
	_, err = s.ToggleAvailability(ctx, u.ID)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = store.Open(ctx, nil, Opener(path, nil), nil, nil)
	require.NoError(t, err)
	defer s.Close()

	got, ok := s.User(u.ID)
	require.True(t, ok)
	assert.True(t, got.Available)
	require.NotNil(t, s.CurrentUser())
	assert.Equal(t, u.ID, s.CurrentUser().ID)

	_, err = s.Login(ctx, "ana@example.com", "secret1")
	assert.NoError(t, err)
}
