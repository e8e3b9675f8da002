package emergency

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lifedrop/lifedrop-api/internal/geocode"
	"github.com/lifedrop/lifedrop-api/internal/model"
	"github.com/lifedrop/lifedrop-api/internal/service/matching"
	"github.com/lifedrop/lifedrop-api/internal/service/notification"
	"github.com/lifedrop/lifedrop-api/internal/store"
	"github.com/lifedrop/lifedrop-api/pkg/logger"
	"github.com/lifedrop/lifedrop-api/pkg/metrics"
)

var (
	ErrNotFound          = errors.New("emergency not found")
	ErrDonorNotFound     = errors.New("donor not found")
	ErrForbidden         = errors.New("not allowed to manage this emergency")
	ErrEmergencyClosed   = errors.New("emergency is already completed")
	ErrAlreadyContacted  = errors.New("donor already contacted for this emergency")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidInput      = errors.New("invalid emergency")
)

// Geocoder resolves a free-text address.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (*geocode.Place, error)
}

type EmergencyServicer interface {
	Create(ctx context.Context, actorID string, in model.NewEmergency) (*model.EmergencyRequest, int, error)
	Contact(ctx context.Context, actorID, emergencyID, donorID string) (*model.Donation, error)
	Complete(ctx context.Context, actorID, emergencyID string) (*model.EmergencyRequest, int, error)
	UpdateStatus(ctx context.Context, actorID, emergencyID string, status model.EmergencyStatus) (*model.EmergencyRequest, int, error)
	Get(ctx context.Context, id string) (*model.EmergencyRequest, error)
	List(ctx context.Context, filter model.EmergencyFilter) []model.EmergencyRequest
	EligibleDonors(ctx context.Context, actorID, id string) ([]model.User, error)
	Donations(ctx context.Context, actorID, id string) ([]model.Donation, error)
}

// Service drives the emergency lifecycle. Every operation runs its
// read-check-write section inside a single store update.
type Service struct {
	store    *store.Store
	builder  *notification.Builder
	geocoder Geocoder
	log      *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewService wires the lifecycle. geocoder may be nil.
func NewService(st *store.Store, cfg notification.Config, geocoder Geocoder, log *logger.Logger, m *metrics.Metrics) *Service {
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Service{
		store:    st,
		builder:  notification.NewBuilder(st.NewID, cfg),
		geocoder: geocoder,
		log:      log.Named("emergency"),
		metrics:  m,
		now:      time.Now,
	}
}

// WithClock replaces the time source; used in tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.builder.WithClock(now)
	return s
}

// Create opens an emergency and notifies every eligible donor once. It
// returns the emergency and the number of notifications produced.
func (s *Service) Create(ctx context.Context, actorID string, in model.NewEmergency) (*model.EmergencyRequest, int, error) {
	if err := validate(in); err != nil {
		return nil, 0, err
	}
	s.locate(ctx, &in)

	var (
		created model.EmergencyRequest
		fanned  int
	)
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		actor, ok := tx.User(actorID)
		if !ok || !actor.IsHospital() {
			return ErrForbidden
		}

		created = model.EmergencyRequest{
			ID:              tx.NewID(),
			PatientName:     strings.TrimSpace(in.PatientName),
			BloodTypeNeeded: in.BloodTypeNeeded,
			UnitsNeeded:     in.UnitsNeeded,
			Hospital:        strings.TrimSpace(in.Hospital),
			Address:         strings.TrimSpace(in.Address),
			Lat:             in.Lat,
			Lon:             in.Lon,
			UrgencyLevel:    in.UrgencyLevel,
			ContactNumber:   strings.TrimSpace(in.ContactNumber),
			Status:          model.EmergencyStatusOpen,
			City:            strings.TrimSpace(in.City),
			CreatedBy:       actor.ID,
			CreatedAt:       s.now().UTC(),
		}
		tx.InsertEmergency(created)

		donors := matching.FindEligibleDonors(&created, tx.Users())
		notes := s.builder.ForEmergency(&created, donors)
		tx.InsertNotifications(notes...)
		fanned = len(notes)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	s.metrics.EmergenciesCreated.WithLabelValues(string(created.UrgencyLevel)).Inc()
	s.metrics.NotificationsFanned.WithLabelValues("emergency").Add(float64(fanned))
	s.log.Info("emergency created",
		"emergency_id", created.ID,
		"blood_type", created.BloodTypeNeeded,
		"city", created.City,
		"notified", fanned)
	return &created, fanned, nil
}

// locate fills missing coordinates from the address. Failures are logged
// and the emergency is created without a position.
func (s *Service) locate(ctx context.Context, in *model.NewEmergency) {
	if s.geocoder == nil || (in.Lat != nil && in.Lon != nil) || strings.TrimSpace(in.Address) == "" {
		return
	}
	place, err := s.geocoder.Geocode(ctx, strings.TrimSpace(in.Address)+", "+strings.TrimSpace(in.City))
	if err != nil {
		s.log.Warn("geocoding failed", "address", in.Address, "error", err.Error())
		return
	}
	lat, lon := place.Lat, place.Lon
	in.Lat, in.Lon = &lat, &lon
}

// Contact records that the creating hospital reached out to a donor. A donor
// is contacted at most once per emergency.
func (s *Service) Contact(ctx context.Context, actorID, emergencyID, donorID string) (*model.Donation, error) {
	var donation model.Donation
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		e, err := owned(tx, actorID, emergencyID)
		if err != nil {
			return err
		}
		if e.Status == model.EmergencyStatusCompleted {
			return ErrEmergencyClosed
		}
		donor, ok := tx.User(donorID)
		if !ok || !donor.IsDonor() {
			return ErrDonorNotFound
		}
		existing := tx.Donations(func(d model.Donation) bool {
			return d.DonorID == donorID && d.EmergencyID == emergencyID
		})
		if len(existing) > 0 {
			return ErrAlreadyContacted
		}

		donation = model.Donation{
			ID:          tx.NewID(),
			DonorID:     donorID,
			EmergencyID: emergencyID,
			Status:      model.DonationStatusPending,
			Date:        s.now().UTC(),
		}
		tx.InsertDonation(donation)

		if e.Status == model.EmergencyStatusOpen {
			e.Status = model.EmergencyStatusInProgress
			tx.UpdateEmergency(*e)
		}
		tx.InsertNotifications(s.builder.ForContact(e, donorID))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.DonorsContacted.Inc()
	s.metrics.NotificationsFanned.WithLabelValues("contact").Inc()
	s.log.Info("donor contacted", "emergency_id", emergencyID, "donor_id", donorID)
	return &donation, nil
}

// Complete closes an emergency, settles its pending donations and thanks
// every donor with a donation record. Completing twice is a no-op.
func (s *Service) Complete(ctx context.Context, actorID, emergencyID string) (*model.EmergencyRequest, int, error) {
	var (
		completed model.EmergencyRequest
		thanked   int
		changed   bool
	)
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		e, err := owned(tx, actorID, emergencyID)
		if err != nil {
			return err
		}
		if e.Status == model.EmergencyStatusCompleted {
			completed = *e
			return nil
		}

		e.Status = model.EmergencyStatusCompleted
		tx.UpdateEmergency(*e)
		completed = *e
		changed = true

		records := tx.Donations(func(d model.Donation) bool { return d.EmergencyID == emergencyID })
		donorIDs := make([]string, 0, len(records))
		for _, d := range records {
			donorIDs = append(donorIDs, d.DonorID)
			if d.Status == model.DonationStatusPending {
				d.Status = model.DonationStatusCompleted
				tx.UpdateDonation(d)
			}
		}
		notes := s.builder.ForCompletion(e, donorIDs)
		tx.InsertNotifications(notes...)
		thanked = len(notes)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	if changed {
		s.metrics.EmergenciesCompleted.Inc()
		s.metrics.NotificationsFanned.WithLabelValues("completion").Add(float64(thanked))
		s.log.Info("emergency completed", "emergency_id", emergencyID, "thanked", thanked)
	}
	return &completed, thanked, nil
}

// UpdateStatus moves an emergency forward. Completion goes through Complete;
// moving backwards is rejected.
func (s *Service) UpdateStatus(ctx context.Context, actorID, emergencyID string, status model.EmergencyStatus) (*model.EmergencyRequest, int, error) {
	if !status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	if status == model.EmergencyStatusCompleted {
		return s.Complete(ctx, actorID, emergencyID)
	}

	var updated model.EmergencyRequest
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		e, err := owned(tx, actorID, emergencyID)
		if err != nil {
			return err
		}
		if !e.Status.CanTransition(status) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, e.Status, status)
		}
		updated = *e
		if e.Status == status {
			return nil
		}
		updated.Status = status
		tx.UpdateEmergency(updated)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return &updated, 0, nil
}

func (s *Service) Get(ctx context.Context, id string) (*model.EmergencyRequest, error) {
	e, ok := s.store.Emergency(id)
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

// List returns the emergencies matching filter, newest first.
func (s *Service) List(ctx context.Context, filter model.EmergencyFilter) []model.EmergencyRequest {
	out := make([]model.EmergencyRequest, 0)
	for _, e := range s.store.Emergencies() {
		if filter.CreatedBy != "" && e.CreatedBy != filter.CreatedBy {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if filter.Urgency != "" && e.UrgencyLevel != filter.Urgency {
			continue
		}
		if filter.City != "" && !model.SameCity(e.City, filter.City) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// EligibleDonors recomputes the matching donors against the current roster.
// Only the creating hospital may see them.
func (s *Service) EligibleDonors(ctx context.Context, actorID, id string) ([]model.User, error) {
	e, err := s.ownedBy(actorID, id)
	if err != nil {
		return nil, err
	}
	return matching.FindEligibleDonors(e, s.store.Users()), nil
}

// Donations lists the contact records of an emergency for its creator.
func (s *Service) Donations(ctx context.Context, actorID, id string) ([]model.Donation, error) {
	if _, err := s.ownedBy(actorID, id); err != nil {
		return nil, err
	}
	out := make([]model.Donation, 0)
	for _, d := range s.store.Donations() {
		if d.EmergencyID == id {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Service) ownedBy(actorID, emergencyID string) (*model.EmergencyRequest, error) {
	e, ok := s.store.Emergency(emergencyID)
	if !ok {
		return nil, ErrNotFound
	}
	if e.CreatedBy != actorID {
		return nil, ErrForbidden
	}
	return e, nil
}

func owned(tx *store.Tx, actorID, emergencyID string) (*model.EmergencyRequest, error) {
	e, ok := tx.Emergency(emergencyID)
	if !ok {
		return nil, ErrNotFound
	}
	if e.CreatedBy != actorID {
		return nil, ErrForbidden
	}
	return e, nil
}

func validate(in model.NewEmergency) error {
	switch {
	case strings.TrimSpace(in.PatientName) == "":
		return fmt.Errorf("%w: patient name is required", ErrInvalidInput)
	case strings.TrimSpace(in.Hospital) == "":
		return fmt.Errorf("%w: hospital is required", ErrInvalidInput)
	case strings.TrimSpace(in.City) == "":
		return fmt.Errorf("%w: city is required", ErrInvalidInput)
	case !in.BloodTypeNeeded.Valid():
		return fmt.Errorf("%w: unknown blood type %q", ErrInvalidInput, in.BloodTypeNeeded)
	case in.UnitsNeeded <= 0:
		return fmt.Errorf("%w: units needed must be positive", ErrInvalidInput)
	case !in.UrgencyLevel.Valid():
		return fmt.Errorf("%w: unknown urgency %q", ErrInvalidInput, in.UrgencyLevel)
	}
	return nil
}
