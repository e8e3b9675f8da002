// Package local keeps the application state in a sqlite file as a handful of
// JSON documents, one per collection. It is the fallback when the remote
// backend cannot be reached.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/lifedrop/lifedrop-api/internal/model"
	"github.com/lifedrop/lifedrop-api/internal/store"
	"github.com/lifedrop/lifedrop-api/pkg/logger"
	"github.com/lifedrop/lifedrop-api/pkg/security"
)

// Storage keys.
const (
	KeyUsers         = "lifedrop_users"
	KeyPasswords     = "lifedrop_passwords"
	KeyCurrentUser   = "lifedrop_current_user"
	KeyEmergencies   = "lifedrop_emergencies"
	KeyDonations     = "lifedrop_donations"
	KeyNotifications = "lifedrop_notifications"
)

var collectionKeys = map[store.Collection]string{
	store.CollectionUsers:         KeyUsers,
	store.CollectionEmergencies:   KeyEmergencies,
	store.CollectionDonations:     KeyDonations,
	store.CollectionNotifications: KeyNotifications,
}

// entry is one key/value row.
type entry struct {
	Key       string `gorm:"column:storage_key;primaryKey"`
	Value     string `gorm:"column:value;type:text;not null"`
	UpdatedAt time.Time
}

func (entry) TableName() string {
	return "local_storage"
}

// Backend implements store.Backend on top of a gorm sqlite database.
type Backend struct {
	db   *gorm.DB
	log  *logger.Logger
	auth *authenticator
}

// Open opens (or creates) the sqlite file at path. ":memory:" is accepted.
func Open(ctx context.Context, path string, log *logger.Logger) (*Backend, error) {
	if log == nil {
		log = logger.Nop()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).AutoMigrate(&entry{}); err != nil {
		return nil, err
	}

	b := &Backend{db: db, log: log.Named("local")}
	b.auth = newAuthenticator(b, security.NewBcryptHasher(0))
	return b, nil
}

// Opener adapts Open for store.Open.
func Opener(path string, log *logger.Logger) store.Opener {
	return func(ctx context.Context) (store.Backend, error) {
		return Open(ctx, path, log)
	}
}

func (b *Backend) Mode() store.Mode {
	return store.ModeLocal
}

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewID is nine random base-36 characters followed by the base-36
// millisecond timestamp.
func (b *Backend) NewID() string {
	var sb strings.Builder
	for i := 0; i < 9; i++ {
		sb.WriteByte(idAlphabet[rand.IntN(len(idAlphabet))])
	}
	sb.WriteString(strconv.FormatInt(time.Now().UnixMilli(), 36))
	return sb.String()
}

func (b *Backend) Hydrate(ctx context.Context) (*store.Snapshot, error) {
	var rows []entry
	if err := b.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	values := make(map[string]string, len(rows))
	for _, r := range rows {
		values[r.Key] = r.Value
	}

	snap := &store.Snapshot{
		Users:         make([]model.User, 0),
		Emergencies:   make([]model.EmergencyRequest, 0),
		Donations:     make([]model.Donation, 0),
		Notifications: make([]model.Notification, 0),
	}
	b.decode(values, KeyUsers, &snap.Users)
	b.decode(values, KeyEmergencies, &snap.Emergencies)
	b.decode(values, KeyDonations, &snap.Donations)
	b.decode(values, KeyNotifications, &snap.Notifications)
	b.decode(values, KeyCurrentUser, &snap.Current)

	passwords := make(map[string]string)
	b.decode(values, KeyPasswords, &passwords)
	b.auth.load(passwords)
	return snap, nil
}

// decode leaves dst at its default when the key is missing or holds
// malformed JSON.
func (b *Backend) decode(values map[string]string, key string, dst interface{}) {
	raw, ok := values[key]
	if !ok || raw == "" {
		return
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		b.log.Warn("ignoring malformed stored value", "key", key, "error", err.Error())
	}
}

// Apply rewrites every collection the batch touched. A users change also
// rewrites the current user record.
func (b *Backend) Apply(ctx context.Context, batch []store.Mutation, snap *store.Snapshot) error {
	if snap == nil {
		return errors.New("local: apply without snapshot")
	}
	values := make(map[string]interface{})
	for _, m := range batch {
		key, ok := collectionKeys[m.Collection]
		if !ok {
			return errors.New("local: unknown collection " + string(m.Collection))
		}
		switch m.Collection {
		case store.CollectionUsers:
			values[key] = snap.Users
			if snap.Current != nil {
				values[KeyCurrentUser] = snap.Current
			}
		case store.CollectionEmergencies:
			values[key] = snap.Emergencies
		case store.CollectionDonations:
			values[key] = snap.Donations
		case store.CollectionNotifications:
			values[key] = snap.Notifications
		}
	}
	return b.put(ctx, values)
}

// put upserts the given keys in one transaction.
func (b *Backend) put(ctx context.Context, values map[string]interface{}) error {
	if len(values) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]entry, 0, len(values))
	for key, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		rows = append(rows, entry{Key: key, Value: string(raw), UpdatedAt: now})
	}

	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "storage_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&rows).Error
	})
}

// Get returns the raw stored value for key.
func (b *Backend) Get(ctx context.Context, key string) (string, bool, error) {
	var e entry
	err := b.db.WithContext(ctx).Where("storage_key = ?", key).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return e.Value, true, nil
}

// Set stores a raw value under key, bypassing JSON encoding.
func (b *Backend) Set(ctx context.Context, key, value string) error {
	return b.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "storage_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}).Error
}

// Subscribe is a no-op: a local file has no other writers to listen to.
func (b *Backend) Subscribe(ctx context.Context, handler func(store.Event)) error {
	return nil
}

func (b *Backend) Auth() store.Authenticator {
	return b.auth
}

func (b *Backend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// authenticator checks credentials against bcrypt hashes kept under
// KeyPasswords and tracks the signed-in user under KeyCurrentUser.
type authenticator struct {
	backend *Backend
	hasher  security.PasswordHasher

	mu        sync.Mutex
	passwords map[string]string
	listeners []func(*model.User)
}

func newAuthenticator(b *Backend, hasher security.PasswordHasher) *authenticator {
	return &authenticator{
		backend:   b,
		hasher:    hasher,
		passwords: make(map[string]string),
	}
}

func (a *authenticator) load(passwords map[string]string) {
	a.mu.Lock()
	a.passwords = passwords
	a.mu.Unlock()
}

func (a *authenticator) SignUp(ctx context.Context, user *model.User, password string) (bool, error) {
	email := strings.ToLower(user.Email)
	hash, err := a.hasher.Hash(password)
	if err != nil {
		return false, err
	}

	a.mu.Lock()
	if _, exists := a.passwords[email]; exists {
		a.mu.Unlock()
		return false, store.ErrAlreadyExists
	}
	a.passwords[email] = hash
	snapshot := make(map[string]string, len(a.passwords))
	for k, v := range a.passwords {
		snapshot[k] = v
	}
	a.mu.Unlock()

	if err := a.backend.put(ctx, map[string]interface{}{
		KeyPasswords:   snapshot,
		KeyCurrentUser: user,
	}); err != nil {
		return false, err
	}
	a.fire(user)
	return true, nil
}

func (a *authenticator) SignIn(ctx context.Context, user *model.User, password string) error {
	a.mu.Lock()
	hash, ok := a.passwords[strings.ToLower(user.Email)]
	a.mu.Unlock()
	if !ok || a.hasher.Compare(hash, password) != nil {
		return store.ErrInvalidCredentials
	}

	if err := a.backend.put(ctx, map[string]interface{}{KeyCurrentUser: user}); err != nil {
		return err
	}
	a.fire(user)
	return nil
}

func (a *authenticator) SignOut(ctx context.Context) error {
	if err := a.backend.Set(ctx, KeyCurrentUser, "null"); err != nil {
		return err
	}
	a.fire(nil)
	return nil
}

// VerifyOTP has nothing to check: local accounts are active from sign-up.
func (a *authenticator) VerifyOTP(ctx context.Context, email, code string) (*model.User, error) {
	return nil, nil
}

func (a *authenticator) OnAuthStateChange(fn func(*model.User)) {
	a.mu.Lock()
	a.listeners = append(a.listeners, fn)
	a.mu.Unlock()
}

func (a *authenticator) fire(u *model.User) {
	a.mu.Lock()
	listeners := slices.Clone(a.listeners)
	a.mu.Unlock()
	for _, fn := range listeners {
		fn(u)
	}
}
