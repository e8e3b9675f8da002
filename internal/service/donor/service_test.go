package donor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifedrop/lifedrop-api/internal/model"
	"github.com/lifedrop/lifedrop-api/internal/store"
	"github.com/lifedrop/lifedrop-api/internal/store/storetest"
)

func newService(t *testing.T) *Service {
	t.Helper()
	now := time.Now()
	snap := store.Snapshot{
		Users: []model.User{
			{ID: "h1", FullName: "General Hospital", Role: model.RoleHospital, City: "Madrid"},
			{ID: "ana", FullName: "Ana Ruiz", Role: model.RoleDonor, City: "Madrid", BloodType: model.BloodTypeONeg, Available: true},
			{ID: "bea", FullName: "Beatriz", Role: model.RoleDonor, City: "MADRID", BloodType: model.BloodTypeAPos},
			{ID: "carlos", FullName: "Carlos Ruiz", Role: model.RoleDonor, City: "Sevilla", BloodType: model.BloodTypeONeg, Available: true},
		},
		Emergencies: []model.EmergencyRequest{
			{ID: "e1", City: "Madrid", Status: model.EmergencyStatusOpen, CreatedAt: now.Add(-time.Hour)},
			{ID: "e2", City: "madrid", Status: model.EmergencyStatusOpen, CreatedAt: now},
			{ID: "e3", City: "Madrid", Status: model.EmergencyStatusCompleted, CreatedAt: now},
			{ID: "e4", City: "Sevilla", Status: model.EmergencyStatusOpen, CreatedAt: now},
		},
		Donations: []model.Donation{
			{ID: "d1", DonorID: "ana", EmergencyID: "e3", Date: now.Add(-time.Hour)},
			{ID: "d2", DonorID: "ana", EmergencyID: "e1", Date: now},
		},
	}
	return NewService(store.New(storetest.New(snap), &snap, nil, nil), nil)
}

func ids(entries []model.DirectoryEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}

func TestDirectory_Filters(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	all, err := svc.Directory(ctx, "h1", model.DirectoryFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"ana", "bea", "carlos"}, ids(all), "hospitals are excluded, sorted by name")

	byName, _ := svc.Directory(ctx, "h1", model.DirectoryFilter{Search: "ruiz"})
	assert.Equal(t, []string{"ana", "carlos"}, ids(byName))

	byType, _ := svc.Directory(ctx, "h1", model.DirectoryFilter{BloodType: model.BloodTypeAPos})
	assert.Equal(t, []string{"bea"}, ids(byType))

	unavailable, _ := svc.Directory(ctx, "h1", model.DirectoryFilter{Availability: model.AvailabilityUnavailable})
	assert.Equal(t, []string{"bea"}, ids(unavailable))

	available, _ := svc.Directory(ctx, "h1", model.DirectoryFilter{Availability: model.AvailabilityAvailable})
	assert.Equal(t, []string{"ana", "carlos"}, ids(available))

	mine, _ := svc.Directory(ctx, "h1", model.DirectoryFilter{City: model.CityMine})
	assert.Equal(t, []string{"ana", "bea"}, ids(mine))

	sevilla, _ := svc.Directory(ctx, "h1", model.DirectoryFilter{City: "sevilla"})
	assert.Equal(t, []string{"carlos"}, ids(sevilla))

	_, err = svc.Directory(ctx, "ghost", model.DirectoryFilter{City: model.CityMine})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDirectory_CanDonateTo(t *testing.T) {
	svc := newService(t)
	entries, err := svc.Directory(context.Background(), "h1", model.DirectoryFilter{Search: "ana"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Len(t, entries[0].CanDonateTo, 8, "O- gives to everyone")
}

func TestToggleAvailability(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	u, err := svc.ToggleAvailability(ctx, "bea")
	require.NoError(t, err)
	assert.True(t, u.Available)

	u, err = svc.ToggleAvailability(ctx, "bea")
	require.NoError(t, err)
	assert.False(t, u.Available)

	_, err = svc.ToggleAvailability(ctx, "h1")
	assert.ErrorIs(t, err, ErrNotDonor)
	_, err = svc.ToggleAvailability(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNearbyEmergencies(t *testing.T) {
	svc := newService(t)

	list, err := svc.NearbyEmergencies(context.Background(), "ana")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "e2", list[0].ID)
	assert.Equal(t, "e1", list[1].ID)
}

func TestHistory(t *testing.T) {
	svc := newService(t)

	list := svc.History(context.Background(), "ana")
	require.Len(t, list, 2)
	assert.Equal(t, "d2", list[0].ID)
	assert.Empty(t, svc.History(context.Background(), "bea"))
}
