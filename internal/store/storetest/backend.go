// Package storetest provides an in-memory store.Backend for tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/lifedrop/lifedrop-api/internal/model"
	"github.com/lifedrop/lifedrop-api/internal/store"
)

// Backend keeps everything in memory and records each applied batch.
type Backend struct {
	mu         sync.Mutex
	mode       store.Mode
	seq        int
	seed       store.Snapshot
	applied    [][]store.Mutation
	last       *store.Snapshot
	applyErr   error
	ctxErr     error
	hydrateErr error
	handler    func(store.Event)
	closed     bool
	auth       *Auth
}

// New returns a local-mode backend seeded with snap.
func New(snap store.Snapshot) *Backend {
	return &Backend{mode: store.ModeLocal, seed: snap, auth: NewAuth()}
}

// WithMode changes the reported mode.
func (b *Backend) WithMode(m store.Mode) *Backend {
	b.mode = m
	return b
}

// FailApply makes every subsequent Apply return err.
func (b *Backend) FailApply(err error) {
	b.mu.Lock()
	b.applyErr = err
	b.mu.Unlock()
}

// FailHydrate makes Hydrate return err.
func (b *Backend) FailHydrate(err error) *Backend {
	b.hydrateErr = err
	return b
}

func (b *Backend) Mode() store.Mode { return b.mode }

func (b *Backend) NewID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	return fmt.Sprintf("id-%d", b.seq)
}

func (b *Backend) Hydrate(ctx context.Context) (*store.Snapshot, error) {
	if b.hydrateErr != nil {
		return nil, b.hydrateErr
	}
	snap := b.seed
	return &snap, nil
}

func (b *Backend) Apply(ctx context.Context, batch []store.Mutation, snap *store.Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.applied = append(b.applied, append([]store.Mutation(nil), batch...))
	b.last = snap
	b.ctxErr = ctx.Err()
	return b.applyErr
}

// ApplyContextErr reports ctx.Err() as seen by the most recent Apply.
func (b *Backend) ApplyContextErr() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ctxErr
}

func (b *Backend) Subscribe(ctx context.Context, handler func(store.Event)) error {
	b.mu.Lock()
	b.handler = handler
	b.mu.Unlock()
	return nil
}

// Emit delivers ev as if it came from the realtime channel.
func (b *Backend) Emit(ev store.Event) {
	b.mu.Lock()
	h := b.handler
	b.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

// Batches returns every applied batch in order.
func (b *Backend) Batches() [][]store.Mutation {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]store.Mutation(nil), b.applied...)
}

// Mutations flattens all applied batches.
func (b *Backend) Mutations() []store.Mutation {
	var out []store.Mutation
	for _, batch := range b.Batches() {
		out = append(out, batch...)
	}
	return out
}

// LastSnapshot is the state passed with the latest Apply.
func (b *Backend) LastSnapshot() *store.Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

func (b *Backend) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Backend) Auth() store.Authenticator { return b.auth }

func (b *Backend) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

// Auth keeps plain passwords; it exists for tests only.
type Auth struct {
	mu        sync.Mutex
	passwords map[string]string
	listeners []func(*model.User)
	users     map[string]model.User

	// Session is what SignUp reports.
	Session bool

	// Codes maps email to the OTP VerifyOTP accepts.
	Codes map[string]string
}

func NewAuth() *Auth {
	return &Auth{
		passwords: make(map[string]string),
		Session:   true,
		Codes:     make(map[string]string),
		users:     make(map[string]model.User),
	}
}

func (a *Auth) SignUp(ctx context.Context, user *model.User, password string) (bool, error) {
	a.mu.Lock()
	key := strings.ToLower(user.Email)
	if _, ok := a.passwords[key]; ok {
		a.mu.Unlock()
		return false, store.ErrAlreadyExists
	}
	a.passwords[key] = password
	a.users[key] = *user
	session := a.Session
	a.mu.Unlock()

	if session {
		a.fire(user)
	}
	return session, nil
}

func (a *Auth) SignIn(ctx context.Context, user *model.User, password string) error {
	a.mu.Lock()
	stored, ok := a.passwords[strings.ToLower(user.Email)]
	a.mu.Unlock()
	if !ok || stored != password {
		return store.ErrInvalidCredentials
	}
	a.fire(user)
	return nil
}

func (a *Auth) SignOut(ctx context.Context) error {
	a.fire(nil)
	return nil
}

func (a *Auth) VerifyOTP(ctx context.Context, email, code string) (*model.User, error) {
	a.mu.Lock()
	key := strings.ToLower(email)
	want, ok := a.Codes[key]
	user, known := a.users[key]
	a.mu.Unlock()
	if !ok || want != code {
		return nil, store.ErrInvalidOTP
	}
	if !known {
		return nil, errors.New("no such account")
	}
	a.fire(&user)
	return &user, nil
}

func (a *Auth) OnAuthStateChange(fn func(*model.User)) {
	a.mu.Lock()
	a.listeners = append(a.listeners, fn)
	a.mu.Unlock()
}

func (a *Auth) fire(u *model.User) {
	a.mu.Lock()
	listeners := slices.Clone(a.listeners)
	a.mu.Unlock()
	for _, fn := range listeners {
		fn(u)
	}
}
