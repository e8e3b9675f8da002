package store

import (
	"context"
	"strings"
	"time"

	"github.com/lifedrop/lifedrop-api/internal/model"
)

// Register creates credentials and a profile. New users start unavailable.
// The returned bool reports whether a session was opened straight away; in
// remote mode the account waits for email verification instead.
func (s *Store) Register(ctx context.Context, in model.RegisterRequest) (*model.User, bool, error) {
	if _, exists := s.UserByEmail(in.Email); exists {
		return nil, false, ErrAlreadyExists
	}

	user := model.User{
		ID:        s.backend.NewID(),
		FullName:  strings.TrimSpace(in.FullName),
		Email:     normalizeEmail(in.Email),
		BloodType: in.BloodType,
		Country:   strings.TrimSpace(in.Country),
		City:      strings.TrimSpace(in.City),
		Phone:     strings.TrimSpace(in.Phone),
		Role:      in.Role,
		CreatedAt: time.Now().UTC(),
	}

	// The auth callbacks take s.mu, so sign-up runs unlocked.
	session, err := s.backend.Auth().SignUp(ctx, &user, in.Password)
	if err != nil {
		return nil, false, err
	}

	err = s.Update(ctx, func(tx *Tx) error {
		if _, exists := tx.UserByEmail(user.Email); exists {
			return ErrAlreadyExists
		}
		tx.InsertUser(user)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &user, session, nil
}

// Login checks credentials against the backend. Unknown emails and wrong
// passwords are indistinguishable to the caller.
func (s *Store) Login(ctx context.Context, email, password string) (*model.User, error) {
	user, ok := s.UserByEmail(email)
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if err := s.backend.Auth().SignIn(ctx, user, password); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Store) Logout(ctx context.Context) error {
	return s.backend.Auth().SignOut(ctx)
}

// VerifyOTP confirms a sign-up code and returns the verified user.
func (s *Store) VerifyOTP(ctx context.Context, email, code string) (*model.User, error) {
	user, err := s.backend.Auth().VerifyOTP(ctx, email, code)
	if err != nil {
		return nil, err
	}
	if user == nil {
		u, ok := s.UserByEmail(email)
		if !ok {
			return nil, ErrNotFound
		}
		return u, nil
	}

	err = s.Update(ctx, func(tx *Tx) error {
		if _, known := tx.User(user.ID); !known {
			tx.InsertUser(*user)
		}
		return nil
	})
	return user, err
}

// ToggleAvailability flips a user's availability flag.
func (s *Store) ToggleAvailability(ctx context.Context, userID string) (*model.User, error) {
	var updated model.User
	err := s.Update(ctx, func(tx *Tx) error {
		u, ok := tx.User(userID)
		if !ok {
			return ErrNotFound
		}
		u.Available = !u.Available
		updated = *u
		tx.UpdateUser(updated)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// MarkNotificationRead sets the read flag. A non-empty owner must match the
// notification's recipient, otherwise it reports ErrNotFound.
func (s *Store) MarkNotificationRead(ctx context.Context, id, owner string) (*model.Notification, error) {
	var updated model.Notification
	err := s.Update(ctx, func(tx *Tx) error {
		n, ok := tx.Notification(id)
		if !ok || (owner != "" && n.UserID != owner) {
			return ErrNotFound
		}
		updated = *n
		if n.Read {
			return nil
		}
		updated.Read = true
		tx.UpdateNotification(updated)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}
