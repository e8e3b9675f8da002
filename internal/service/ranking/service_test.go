package ranking

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifedrop/lifedrop-api/internal/model"
	"github.com/lifedrop/lifedrop-api/internal/store"
	"github.com/lifedrop/lifedrop-api/internal/store/storetest"
)

func TestLevel(t *testing.T) {
	cases := map[int]int{0: 1, 99: 1, 100: 2, 249: 2, 250: 3, 400: 4, 600: 5, 800: 6, 1000: 7, 1200: 8, 1499: 8, 1500: 9, 2000: 10, 9000: 10}
	for xp, want := range cases {
		assert.Equal(t, want, Level(xp), "xp %d", xp)
	}
	assert.Equal(t, "Novice", LevelName(1))
	assert.Equal(t, "Mythic", LevelName(10))
	assert.Equal(t, "Novice", LevelName(42))
}

func TestProgress(t *testing.T) {
	assert.InDelta(t, 20.0, Progress(20, 1), 1e-9)
	assert.InDelta(t, 50.0, Progress(175, 2), 1e-9)
	assert.InDelta(t, 100.0, Progress(2500, 10), 1e-9)
}

func TestBoard(t *testing.T) {
	donation := func(donor string, status model.DonationStatus) model.Donation {
		return model.Donation{ID: donor + string(status), DonorID: donor, Status: status}
	}
	snap := store.Snapshot{
		Users: []model.User{
			{ID: "h1", Role: model.RoleHospital},
			{ID: "a", FullName: "A", Role: model.RoleDonor, Available: true},
			{ID: "b", FullName: "B", Role: model.RoleDonor},
			{ID: "c", FullName: "C", Role: model.RoleDonor, Available: true},
			{ID: "d", FullName: "D", Role: model.RoleDonor},
		},
		Donations: []model.Donation{
			donation("b", model.DonationStatusCompleted),
			{ID: "b2", DonorID: "b", Status: model.DonationStatusCompleted},
			donation("c", model.DonationStatusCompleted),
			donation("a", model.DonationStatusPending),
			donation("d", model.DonationStatusCancelled),
		},
	}
	svc := NewService(store.New(storetest.New(snap), &snap, nil, nil))

	board := svc.Board(context.Background(), "c")
	require.Equal(t, 4, board.Total)
	got := []string{}
	for _, e := range board.Entries {
		got = append(got, e.UserID)
	}
	assert.Equal(t, []string{"b", "c", "a", "d"}, got)

	assert.Equal(t, 200, board.Entries[0].XP)
	assert.Equal(t, 2, board.Entries[0].Level)
	assert.Equal(t, 120, board.Entries[1].XP)
	assert.Equal(t, 20, board.Entries[2].XP)
	assert.Zero(t, board.Entries[3].XP)

	require.NotNil(t, board.Me)
	assert.Equal(t, 2, board.Me.Rank)
	assert.Nil(t, svc.Board(context.Background(), "h1").Me)
}
