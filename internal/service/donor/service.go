package donor

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/lifedrop/lifedrop-api/internal/bloodtype"
	"github.com/lifedrop/lifedrop-api/internal/model"
	"github.com/lifedrop/lifedrop-api/internal/service/matching"
	"github.com/lifedrop/lifedrop-api/internal/store"
	"github.com/lifedrop/lifedrop-api/pkg/logger"
)

var (
	ErrNotFound = errors.New("user not found")
	ErrNotDonor = errors.New("only donors can do this")
)

type Service struct {
	store *store.Store
	log   *logger.Logger
}

func NewService(st *store.Store, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{store: st, log: log.Named("donor")}
}

// ToggleAvailability flips the caller's availability. Only donors have one.
func (s *Service) ToggleAvailability(ctx context.Context, userID string) (*model.User, error) {
	u, ok := s.store.User(userID)
	if !ok {
		return nil, ErrNotFound
	}
	if !u.IsDonor() {
		return nil, ErrNotDonor
	}
	updated, err := s.store.ToggleAvailability(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.log.Info("availability changed", "user_id", userID, "available", updated.Available)
	return updated, nil
}

// Directory lists donors matching filter, sorted by name. The caller's city
// resolves the "my_city" filter value.
func (s *Service) Directory(ctx context.Context, callerID string, filter model.DirectoryFilter) ([]model.DirectoryEntry, error) {
	city := strings.TrimSpace(filter.City)
	if city == model.CityMine {
		caller, ok := s.store.User(callerID)
		if !ok {
			return nil, ErrNotFound
		}
		city = caller.City
	}
	search := strings.ToLower(strings.TrimSpace(filter.Search))

	out := make([]model.DirectoryEntry, 0)
	for _, u := range s.store.Users() {
		if !u.IsDonor() {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(u.FullName), search) {
			continue
		}
		if filter.BloodType != "" && u.BloodType != filter.BloodType {
			continue
		}
		switch filter.Availability {
		case model.AvailabilityAvailable:
			if !u.Available {
				continue
			}
		case model.AvailabilityUnavailable:
			if u.Available {
				continue
			}
		}
		if city != "" && !model.SameCity(u.City, city) {
			continue
		}
		out = append(out, model.DirectoryEntry{User: u, CanDonateTo: bloodtype.RecipientsFor(u.BloodType)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].FullName) < strings.ToLower(out[j].FullName)
	})
	return out, nil
}

// NearbyEmergencies lists the open emergencies in the donor's city.
func (s *Service) NearbyEmergencies(ctx context.Context, userID string) ([]model.EmergencyRequest, error) {
	u, ok := s.store.User(userID)
	if !ok {
		return nil, ErrNotFound
	}
	return matching.NearbyOpenEmergencies(u, s.store.Emergencies()), nil
}

// History lists the donor's contact records, newest first.
func (s *Service) History(ctx context.Context, userID string) []model.Donation {
	out := make([]model.Donation, 0)
	for _, d := range s.store.Donations() {
		if d.DonorID == userID {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}
