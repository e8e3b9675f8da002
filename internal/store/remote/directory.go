package remote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/lifedrop/lifedrop-api/internal/model"
	"github.com/lifedrop/lifedrop-api/internal/store"
)

const selectProfileByID = `SELECT id, full_name, email, blood_type, country, city, phone, role, available, created_at FROM profiles WHERE id = $1`

// Directory resolves profiles straight from the database, for processes
// that do not hold a store.
type Directory struct {
	db *sqlx.DB
}

func NewDirectory(db *sqlx.DB) *Directory {
	return &Directory{db: db}
}

// Profile reports store.ErrNotFound for unknown ids.
func (d *Directory) Profile(ctx context.Context, userID string) (*model.User, error) {
	var u model.User
	err := d.db.GetContext(ctx, &u, selectProfileByID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", userID, err)
	}
	return &u, nil
}
