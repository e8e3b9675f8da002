package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/lifedrop/lifedrop-api/internal/model"
)

var (
	ErrAlreadyExists      = errors.New("already_exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrInvalidOTP         = errors.New("invalid or expired verification code")
	ErrNotFound           = errors.New("not found")
)

// Mode names the persistence strategy picked at startup.
type Mode string

const (
	ModeRemote Mode = "remote"
	ModeLocal  Mode = "local"
)

// Collection names double as remote table names and realtime channels.
type Collection string

const (
	CollectionUsers         Collection = "profiles"
	CollectionEmergencies   Collection = "emergency_requests"
	CollectionDonations     Collection = "donations_history"
	CollectionNotifications Collection = "notifications"
)

// RealtimeCollections are the collections with push-based change events.
var RealtimeCollections = []Collection{
	CollectionEmergencies,
	CollectionNotifications,
	CollectionDonations,
}

// Op is the kind of change carried by a mutation or event.
type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
)

// Mutation is a single committed change. Record holds a model value
// (model.User, model.EmergencyRequest, model.Donation or model.Notification).
type Mutation struct {
	Op         Op
	Collection Collection
	Record     interface{}
}

// Event is the wire form of a change, as published on realtime channels and
// handed to in-process watchers. Origin names the publishing process so a
// subscriber can skip its own writes.
type Event struct {
	Type   Op              `json:"type"`
	Table  Collection      `json:"table"`
	Record json.RawMessage `json:"record"`
	Origin string          `json:"origin,omitempty"`
}

// NewEvent encodes a mutation into its wire form.
func NewEvent(m Mutation) (Event, error) {
	raw, err := json.Marshal(m.Record)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: m.Op, Table: m.Collection, Record: raw}, nil
}

// Mutation decodes the event record into its model type.
func (e Event) Mutation() (Mutation, error) {
	m := Mutation{Op: e.Type, Collection: e.Table}
	var err error
	switch e.Table {
	case CollectionUsers:
		var rec model.User
		err = json.Unmarshal(e.Record, &rec)
		m.Record = rec
	case CollectionEmergencies:
		var rec model.EmergencyRequest
		err = json.Unmarshal(e.Record, &rec)
		m.Record = rec
	case CollectionDonations:
		var rec model.Donation
		err = json.Unmarshal(e.Record, &rec)
		m.Record = rec
	case CollectionNotifications:
		var rec model.Notification
		err = json.Unmarshal(e.Record, &rec)
		m.Record = rec
	default:
		return m, errors.New("unknown table " + string(e.Table))
	}
	if err != nil {
		return m, err
	}
	if e.Type != OpInsert && e.Type != OpUpdate {
		return m, errors.New("unknown event type " + string(e.Type))
	}
	return m, nil
}

// Snapshot is the full application state at one point in time.
type Snapshot struct {
	Users         []model.User
	Emergencies   []model.EmergencyRequest
	Donations     []model.Donation
	Notifications []model.Notification
	Current       *model.User
}

// Authenticator is the auth subsystem of a backend. State changes (sign in,
// sign out, verified sign-up) are reported through OnAuthStateChange
// listeners with the signed-in user, or nil once signed out.
type Authenticator interface {
	// SignUp stores credentials for user. It reports whether a session was
	// opened straight away.
	SignUp(ctx context.Context, user *model.User, password string) (bool, error)
	SignIn(ctx context.Context, user *model.User, password string) error
	SignOut(ctx context.Context) error
	VerifyOTP(ctx context.Context, email, code string) (*model.User, error)
	OnAuthStateChange(fn func(*model.User))
}

// Backend is one of the two persistence strategies. Exactly one is chosen
// per process and never swapped.
type Backend interface {
	Mode() Mode
	NewID() string
	Hydrate(ctx context.Context) (*Snapshot, error)
	// Apply writes a committed batch through to durable storage. snap is the
	// state right after the batch was applied in memory.
	Apply(ctx context.Context, batch []Mutation, snap *Snapshot) error
	// Subscribe establishes the realtime subscription and returns. Events are
	// then delivered in order on a single backend goroutine until ctx is done
	// or the backend is closed. Backends without a realtime channel return nil
	// and never call handler.
	Subscribe(ctx context.Context, handler func(Event)) error
	Auth() Authenticator
	Close() error
}

// Opener builds a backend; used by Open to probe the remote source.
type Opener func(ctx context.Context) (Backend, error)
