package remote

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/patrickmn/go-cache"

	"github.com/lifedrop/lifedrop-api/internal/model"
	"github.com/lifedrop/lifedrop-api/internal/store"
	"github.com/lifedrop/lifedrop-api/pkg/logger"
	"github.com/lifedrop/lifedrop-api/pkg/security"
)

const (
	otpDigits     = 8
	defaultOTPTTL = 10 * time.Minute

	pqUniqueViolation = "23505"
)

// CodeSender delivers sign-up verification codes.
type CodeSender interface {
	SendOTP(ctx context.Context, to, code string) error
}

type authenticator struct {
	db     *sqlx.DB
	hasher security.PasswordHasher
	codes  *cache.Cache
	sender CodeSender
	log    *logger.Logger

	mu        sync.Mutex
	listeners []func(*model.User)
}

func newAuthenticator(db *sqlx.DB, sender CodeSender, ttl time.Duration, log *logger.Logger) *authenticator {
	if ttl <= 0 {
		ttl = defaultOTPTTL
	}
	return &authenticator{
		db:     db,
		hasher: security.NewBcryptHasher(0),
		codes:  cache.New(ttl, 2*ttl),
		sender: sender,
		log:    log,
	}
}

// SignUp stores an unverified account and mails a verification code. No
// session is opened until the code is confirmed.
func (a *authenticator) SignUp(ctx context.Context, user *model.User, password string) (bool, error) {
	hash, err := a.hasher.Hash(password)
	if err != nil {
		return false, err
	}
	email := strings.ToLower(user.Email)

	_, err = a.db.ExecContext(ctx,
		`INSERT INTO auth_users (id, email, password_hash, email_verified, created_at) VALUES ($1, $2, $3, FALSE, $4)`,
		user.ID, email, hash, time.Now().UTC())
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return false, store.ErrAlreadyExists
		}
		return false, fmt.Errorf("create account: %w", err)
	}

	code, err := generateOTP()
	if err != nil {
		return false, err
	}
	a.codes.SetDefault(email, code)

	if a.sender == nil {
		a.log.Warn("no mailer configured, verification code not delivered", "email", email)
		return false, nil
	}
	if err := a.sender.SendOTP(ctx, email, code); err != nil {
		a.log.Error(err, "failed to send verification code", "email", email)
	}
	return false, nil
}

func (a *authenticator) SignIn(ctx context.Context, user *model.User, password string) error {
	var row struct {
		PasswordHash  string `db:"password_hash"`
		EmailVerified bool   `db:"email_verified"`
	}
	err := a.db.GetContext(ctx, &row,
		`SELECT password_hash, email_verified FROM auth_users WHERE email = $1`, strings.ToLower(user.Email))
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	if a.hasher.Compare(row.PasswordHash, password) != nil {
		return store.ErrInvalidCredentials
	}
	if !row.EmailVerified {
		return store.ErrEmailNotVerified
	}
	a.fire(user)
	return nil
}

func (a *authenticator) SignOut(ctx context.Context) error {
	a.fire(nil)
	return nil
}

// VerifyOTP confirms the code sent at sign-up, marks the account verified
// and signs the user in.
func (a *authenticator) VerifyOTP(ctx context.Context, email, code string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	want, ok := a.codes.Get(email)
	if !ok || want.(string) != code {
		return nil, store.ErrInvalidOTP
	}

	res, err := a.db.ExecContext(ctx, `UPDATE auth_users SET email_verified = TRUE WHERE email = $1`, email)
	if err != nil {
		return nil, fmt.Errorf("verify account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrNotFound
	}
	a.codes.Delete(email)

	var user model.User
	if err := a.db.GetContext(ctx, &user, selectProfileByEmail, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("load profile: %w", err)
	}
	a.fire(&user)
	return &user, nil
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

func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(100_000_000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}
