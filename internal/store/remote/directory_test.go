package remote

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifedrop/lifedrop-api/internal/store"
)

func TestDirectoryProfile(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	d := NewDirectory(sqlx.NewDb(sqlDB, "postgres"))

	mock.ExpectQuery("SELECT (.+) FROM profiles WHERE id = \\$1").WithArgs("u1").WillReturnRows(
		sqlmock.NewRows([]string{"id", "full_name", "email", "blood_type", "country", "city", "phone", "role", "available", "created_at"}).
			AddRow("u1", "Ana", "ana@example.com", "O-", "ES", "Madrid", "", "donor", true, time.Now()))
	mock.ExpectQuery("SELECT (.+) FROM profiles WHERE id = \\$1").WithArgs("ghost").WillReturnRows(
		sqlmock.NewRows([]string{"id"}))

	u, err := d.Profile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", u.Email)

	_, err = d.Profile(context.Background(), "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
