package notification

import (
	"fmt"
	"time"

	"github.com/lifedrop/lifedrop-api/internal/model"
)

const (
	contactMessage = "You have been contacted for a blood donation emergency!"
)

// IDFunc hands out identifiers for new records.
type IDFunc func() string

// Config tunes fan-out. MaxRecipients of 0 means no cap.
type Config struct {
	MaxRecipients int
}

// Builder constructs notification records. It never persists anything.
type Builder struct {
	newID  IDFunc
	now    func() time.Time
	config Config
}

func NewBuilder(newID IDFunc, config Config) *Builder {
	return &Builder{
		newID:  newID,
		now:    time.Now,
		config: config,
	}
}

// WithClock replaces the time source; used in tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// EmergencyMessage is the fan-out text sent to eligible donors.
func EmergencyMessage(e *model.EmergencyRequest) string {
	return fmt.Sprintf("Emergency! %s needs %s blood (%s)", e.Hospital, e.BloodTypeNeeded, e.UrgencyLevel)
}

// CompletionMessage is the thank-you text sent when an emergency closes.
func CompletionMessage(e *model.EmergencyRequest) string {
	return fmt.Sprintf("Emergency request at %s has been completed. Thank you!", e.Hospital)
}

// ForEmergency builds one notification per donor. The emergency's creator
// and repeated donor ids are skipped.
func (b *Builder) ForEmergency(e *model.EmergencyRequest, donors []model.User) []model.Notification {
	message := EmergencyMessage(e)
	createdAt := b.now().UTC()
	seen := make(map[string]struct{}, len(donors))

	out := make([]model.Notification, 0, len(donors))
	for _, d := range donors {
		if d.ID == "" || d.ID == e.CreatedBy {
			continue
		}
		if _, dup := seen[d.ID]; dup {
			continue
		}
		if b.config.MaxRecipients > 0 && len(out) >= b.config.MaxRecipients {
			break
		}
		seen[d.ID] = struct{}{}
		out = append(out, model.Notification{
			ID:          b.newID(),
			UserID:      d.ID,
			Message:     message,
			CreatedAt:   createdAt,
			EmergencyID: emergencyRef(e),
		})
	}
	return out
}

// ForContact builds the single notification sent to a contacted donor.
func (b *Builder) ForContact(e *model.EmergencyRequest, donorID string) model.Notification {
	return model.Notification{
		ID:          b.newID(),
		UserID:      donorID,
		Message:     contactMessage,
		CreatedAt:   b.now().UTC(),
		EmergencyID: emergencyRef(e),
	}
}

// ForCompletion builds one thank-you per distinct donor id.
func (b *Builder) ForCompletion(e *model.EmergencyRequest, donorIDs []string) []model.Notification {
	message := CompletionMessage(e)
	createdAt := b.now().UTC()
	seen := make(map[string]struct{}, len(donorIDs))

	out := make([]model.Notification, 0, len(donorIDs))
	for _, id := range donorIDs {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, model.Notification{
			ID:        b.newID(),
			UserID:    id,
			Message:   message,
			CreatedAt: createdAt,
		})
	}
	return out
}

func emergencyRef(e *model.EmergencyRequest) *string {
	if e.ID == "" {
		return nil
	}
	id := e.ID
	return &id
}
