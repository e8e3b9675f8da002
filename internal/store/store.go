package store

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lifedrop/lifedrop-api/internal/model"
	"github.com/lifedrop/lifedrop-api/pkg/logger"
	"github.com/lifedrop/lifedrop-api/pkg/metrics"
)

// Store is the in-memory application state over a single Backend. All
// collection mutation goes through Update; readers always receive copies.
type Store struct {
	backend Backend
	log     *logger.Logger
	metrics *metrics.Metrics

	mu            sync.RWMutex
	users         []model.User
	emergencies   []model.EmergencyRequest
	donations     []model.Donation
	notifications []model.Notification
	current       *model.User

	// persistMu keeps write-through batches in commit order.
	persistMu sync.Mutex

	watchMu  sync.RWMutex
	watchers map[int]func(Event)
	nextWID  int

	cancel context.CancelFunc
}

// Open picks the backend for this process. The remote opener is tried first;
// if it cannot be built or its initial hydrate fails, the local backend is
// used for the rest of the session. remote may be nil.
func Open(ctx context.Context, remote, local Opener, log *logger.Logger, m *metrics.Metrics) (*Store, error) {
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	log = log.Named("store")

	backend, snap, err := openBackend(ctx, remote, log)
	if err != nil || backend == nil {
		if local == nil {
			return nil, errors.New("store: no backend available")
		}
		if backend, err = local(ctx); err != nil {
			return nil, err
		}
		if snap, err = backend.Hydrate(ctx); err != nil {
			backend.Close()
			return nil, err
		}
	}

	m.BackendMode.WithLabelValues(string(backend.Mode())).Set(1)
	log.Info("backend selected", "mode", backend.Mode(),
		"users", len(snap.Users), "emergencies", len(snap.Emergencies))

	s := New(backend, snap, log, m)
	if err := s.start(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func openBackend(ctx context.Context, remote Opener, log *logger.Logger) (Backend, *Snapshot, error) {
	if remote == nil {
		return nil, nil, nil
	}
	backend, err := remote(ctx)
	if err != nil {
		log.Warn("remote backend unavailable, using local storage", "error", err.Error())
		return nil, nil, err
	}
	snap, err := backend.Hydrate(ctx)
	if err != nil {
		log.Warn("remote hydrate failed, using local storage", "error", err.Error())
		backend.Close()
		return nil, nil, err
	}
	return backend, snap, nil
}

// New wraps an already hydrated backend. Open is the usual entry point.
func New(backend Backend, snap *Snapshot, log *logger.Logger, m *metrics.Metrics) *Store {
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	if snap == nil {
		snap = &Snapshot{}
	}
	s := &Store{
		backend:       backend,
		log:           log,
		metrics:       m,
		users:         snap.Users,
		emergencies:   snap.Emergencies,
		donations:     snap.Donations,
		notifications: snap.Notifications,
		current:       cloneUser(snap.Current),
		watchers:      make(map[int]func(Event)),
	}
	backend.Auth().OnAuthStateChange(s.setCurrent)
	return s
}

func (s *Store) start(ctx context.Context) error {
	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	return s.backend.Subscribe(subCtx, s.applyEvent)
}

// Close stops the realtime consumer and releases the backend.
func (s *Store) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.backend.Close()
}

func (s *Store) Mode() Mode {
	return s.backend.Mode()
}

// Backend exposes the selected backend, e.g. for health checks.
func (s *Store) Backend() Backend {
	return s.backend
}

func (s *Store) NewID() string {
	return s.backend.NewID()
}

// Watch registers fn for every applied change, local or remote. The returned
// func removes it. fn runs synchronously and must not call back into Update.
func (s *Store) Watch(fn func(Event)) func() {
	s.watchMu.Lock()
	id := s.nextWID
	s.nextWID++
	s.watchers[id] = fn
	s.watchMu.Unlock()

	return func() {
		s.watchMu.Lock()
		delete(s.watchers, id)
		s.watchMu.Unlock()
	}
}

func (s *Store) notify(batch []Mutation) {
	s.watchMu.RLock()
	defer s.watchMu.RUnlock()
	if len(s.watchers) == 0 {
		return
	}
	for _, m := range batch {
		ev, err := NewEvent(m)
		if err != nil {
			s.log.Error(err, "failed to encode change event", "table", m.Collection)
			continue
		}
		for _, fn := range s.watchers {
			fn(ev)
		}
	}
}

// Update runs fn against the current state with the store lock held. Changes
// staged on tx are applied in memory only if fn returns nil, then written
// through to the backend. A failed write is logged and counted; the in-memory
// state is kept.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	s.mu.Lock()
	tx := &Tx{s: s}
	if err := fn(tx); err != nil {
		s.mu.Unlock()
		return err
	}
	if len(tx.batch) == 0 {
		s.mu.Unlock()
		return nil
	}
	for _, m := range tx.batch {
		s.commit(m)
	}
	snap := s.snapshotLocked()
	s.persistMu.Lock()
	s.mu.Unlock()

	// The in-memory commit is done, so the write-through outlives the caller.
	s.persist(context.WithoutCancel(ctx), tx.batch, snap)
	s.persistMu.Unlock()

	s.notify(tx.batch)
	return nil
}

func (s *Store) persist(ctx context.Context, batch []Mutation, snap *Snapshot) {
	label := string(batch[0].Collection)
	start := time.Now()
	err := s.backend.Apply(ctx, batch, snap)
	s.metrics.BackendLatency.WithLabelValues(label).Observe(time.Since(start).Seconds())

	status := "ok"
	if err != nil {
		status = "error"
		s.log.Error(err, "write-through failed, keeping in-memory state",
			"mode", s.backend.Mode(), "changes", len(batch), "table", label)
	}
	for _, m := range batch {
		s.metrics.BackendWrites.WithLabelValues(string(m.Collection), status).Inc()
	}
}

// commit merges one mutation into memory. Caller holds s.mu.
func (s *Store) commit(m Mutation) bool {
	switch rec := m.Record.(type) {
	case model.User:
		var ok bool
		s.users, ok = merge(s.users, rec, m.Op, func(u model.User) string { return u.ID })
		if ok && s.current != nil && s.current.ID == rec.ID {
			s.current = cloneUser(&rec)
		}
		return ok
	case model.EmergencyRequest:
		var ok bool
		s.emergencies, ok = merge(s.emergencies, rec, m.Op, func(e model.EmergencyRequest) string { return e.ID })
		return ok
	case model.Donation:
		var ok bool
		s.donations, ok = merge(s.donations, rec, m.Op, func(d model.Donation) string { return d.ID })
		return ok
	case model.Notification:
		var ok bool
		s.notifications, ok = merge(s.notifications, rec, m.Op, func(n model.Notification) string { return n.ID })
		return ok
	}
	return false
}

// merge applies an INSERT or UPDATE to items. An INSERT whose id is already
// present is dropped; an UPDATE replaces by id, or appends when unknown.
func merge[T any](items []T, rec T, op Op, id func(T) string) ([]T, bool) {
	key := id(rec)
	for i := range items {
		if id(items[i]) != key {
			continue
		}
		if op == OpInsert {
			return items, false
		}
		items[i] = rec
		return items, true
	}
	return append(items, rec), true
}

// applyEvent merges a change delivered by the backend's realtime channel.
func (s *Store) applyEvent(ev Event) {
	m, err := ev.Mutation()
	if err != nil {
		s.metrics.RealtimeEvents.WithLabelValues(string(ev.Table), "invalid").Inc()
		s.log.Warn("dropping malformed realtime event", "table", ev.Table, "error", err.Error())
		return
	}

	s.mu.Lock()
	if s.unchanged(m) {
		s.mu.Unlock()
		s.metrics.RealtimeEvents.WithLabelValues(string(ev.Table), "duplicate").Inc()
		return
	}
	if s.stale(m) {
		s.mu.Unlock()
		s.metrics.RealtimeEvents.WithLabelValues(string(ev.Table), "stale").Inc()
		s.log.Debug("dropping stale realtime update", "table", ev.Table)
		return
	}
	applied := s.commit(m)
	s.mu.Unlock()

	if !applied {
		s.metrics.RealtimeEvents.WithLabelValues(string(ev.Table), "duplicate").Inc()
		return
	}
	s.metrics.RealtimeEvents.WithLabelValues(string(ev.Table), "applied").Inc()
	s.notify([]Mutation{m})
}

// unchanged reports an UPDATE echo of a record already held verbatim. Caller
// holds s.mu.
func (s *Store) unchanged(m Mutation) bool {
	if m.Op != OpUpdate {
		return false
	}
	switch rec := m.Record.(type) {
	case model.User:
		return containsEqual(s.users, rec, func(u model.User) string { return u.ID })
	case model.EmergencyRequest:
		return containsEqual(s.emergencies, rec, func(e model.EmergencyRequest) string { return e.ID })
	case model.Donation:
		return containsEqual(s.donations, rec, func(d model.Donation) string { return d.ID })
	case model.Notification:
		return containsEqual(s.notifications, rec, func(n model.Notification) string { return n.ID })
	}
	return false
}

// stale reports an UPDATE that would move a held record backwards, such as a
// late delivery of an earlier write. Caller holds s.mu.
func (s *Store) stale(m Mutation) bool {
	if m.Op != OpUpdate {
		return false
	}
	switch rec := m.Record.(type) {
	case model.EmergencyRequest:
		held, ok := find(s.emergencies, func(e model.EmergencyRequest) bool { return e.ID == rec.ID })
		return ok && held.Status.Valid() && !held.Status.CanTransition(rec.Status)
	case model.Donation:
		held, ok := find(s.donations, func(d model.Donation) bool { return d.ID == rec.ID })
		return ok && held.Status != model.DonationStatusPending && rec.Status == model.DonationStatusPending
	case model.Notification:
		held, ok := find(s.notifications, func(n model.Notification) bool { return n.ID == rec.ID })
		return ok && held.Read && !rec.Read
	}
	return false
}

func (s *Store) setCurrent(u *model.User) {
	s.mu.Lock()
	s.current = cloneUser(u)
	s.mu.Unlock()
}

func (s *Store) snapshotLocked() *Snapshot {
	return &Snapshot{
		Users:         clone(s.users),
		Emergencies:   clone(s.emergencies),
		Donations:     clone(s.donations),
		Notifications: clone(s.notifications),
		Current:       cloneUser(s.current),
	}
}

// Snapshot returns a copy of the whole state.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) Users() []model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.users)
}

func (s *Store) User(id string) (*model.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return find(s.users, func(u model.User) bool { return u.ID == id })
}

// UserByEmail matches case-insensitively.
func (s *Store) UserByEmail(email string) (*model.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userByEmailLocked(email)
}

func (s *Store) userByEmailLocked(email string) (*model.User, bool) {
	email = normalizeEmail(email)
	return find(s.users, func(u model.User) bool { return normalizeEmail(u.Email) == email })
}

func (s *Store) Emergencies() []model.EmergencyRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.emergencies)
}

func (s *Store) Emergency(id string) (*model.EmergencyRequest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return find(s.emergencies, func(e model.EmergencyRequest) bool { return e.ID == id })
}

func (s *Store) Donations() []model.Donation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.donations)
}

func (s *Store) Notifications() []model.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.notifications)
}

// NotificationsFor lists a user's notifications, newest first.
func (s *Store) NotificationsFor(userID string) []model.Notification {
	s.mu.RLock()
	out := make([]model.Notification, 0)
	for _, n := range s.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *Store) UnreadCount(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, n := range s.notifications {
		if n.UserID == userID && !n.Read {
			count++
		}
	}
	return count
}

// CurrentUser is the user of the last auth state change, if any.
func (s *Store) CurrentUser() *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneUser(s.current)
}

func containsEqual[T any](items []T, rec T, id func(T) string) bool {
	key := id(rec)
	for i := range items {
		if id(items[i]) == key {
			return reflect.DeepEqual(items[i], rec)
		}
	}
	return false
}

func clone[T any](items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	return out
}

func find[T any](items []T, match func(T) bool) (*T, bool) {
	for i := range items {
		if match(items[i]) {
			item := items[i]
			return &item, true
		}
	}
	return nil, false
}

func cloneUser(u *model.User) *model.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
