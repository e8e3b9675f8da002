package remote

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/lifedrop/lifedrop-api/internal/model"
	"github.com/lifedrop/lifedrop-api/internal/store"
	redisbroker "github.com/lifedrop/lifedrop-api/pkg/messaging/redis"
	"github.com/lifedrop/lifedrop-api/pkg/security"
)

type capturedCode struct {
	mu    sync.Mutex
	codes map[string]string
}

func (c *capturedCode) SendOTP(ctx context.Context, to, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes[to] = code
	return nil
}

type fixture struct {
	backend *Backend
	mock    sqlmock.Sqlmock
	broker  *redisbroker.RedisBroker
	sender  *capturedCode
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	broker := redisbroker.NewRedisBrokerFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), zerolog.Nop())
	sender := &capturedCode{codes: make(map[string]string)}

	b := New(sqlx.NewDb(sqlDB, "postgres"), broker, cfg, sender, nil)
	t.Cleanup(func() { broker.Close(); sqlDB.Close() })
	return &fixture{backend: b, mock: mock, broker: broker, sender: sender}
}

func TestHydrate(t *testing.T) {
	f := newFixture(t, Config{})
	now := time.Now().UTC()

	f.mock.ExpectQuery("SELECT (.+) FROM profiles").WillReturnRows(
		sqlmock.NewRows([]string{"id", "full_name", "email", "blood_type", "country", "city", "phone", "role", "available", "created_at"}).
			AddRow("u1", "Ana", "ana@example.com", "O-", "ES", "Madrid", "", "donor", true, now))
	f.mock.ExpectQuery("SELECT (.+) FROM emergency_requests").WillReturnRows(
		sqlmock.NewRows([]string{"id", "patient_name", "blood_type_needed", "units_needed", "hospital", "address", "lat", "lon",
			"urgency_level", "contact_number", "status", "city", "created_by", "created_at"}).
			AddRow("e1", "P", "A+", 2, "General", "", nil, nil, "Urgent", "", "open", "Madrid", "h1", now))
	f.mock.ExpectQuery("SELECT (.+) FROM donations_history").WillReturnRows(
		sqlmock.NewRows([]string{"id", "donor_id", "emergency_id", "status", "date"}))
	f.mock.ExpectQuery("SELECT (.+) FROM notifications").WillReturnRows(
		sqlmock.NewRows([]string{"id", "user_id", "message", "read", "created_at", "emergency_id"}).
			AddRow("n1", "u1", "hello", false, now, "e1"))

	snap, err := f.backend.Hydrate(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Users, 1)
	assert.Equal(t, model.BloodTypeONeg, snap.Users[0].BloodType)
	require.Len(t, snap.Emergencies, 1)
	assert.Nil(t, snap.Emergencies[0].Lat)
	assert.Empty(t, snap.Donations)
	require.Len(t, snap.Notifications, 1)
	require.NotNil(t, snap.Notifications[0].EmergencyID)
	assert.Equal(t, "e1", *snap.Notifications[0].EmergencyID)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestHydrate_Error(t *testing.T) {
	f := newFixture(t, Config{})
	f.mock.ExpectQuery("SELECT (.+) FROM profiles").WillReturnError(errors.New(`relation "profiles" does not exist`))

	_, err := f.backend.Hydrate(context.Background())
	assert.Error(t, err)
}

func TestApply_WritesAndPublishes(t *testing.T) {
	f := newFixture(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := f.broker.Subscribe(ctx, string(store.CollectionEmergencies), string(store.CollectionNotifications))
	require.NoError(t, err)

	e := model.EmergencyRequest{ID: "e1", Hospital: "General", Status: model.EmergencyStatusOpen, City: "Madrid"}
	n := model.Notification{ID: "n1", UserID: "u1", Message: "hi"}

	f.mock.ExpectBegin()
	f.mock.ExpectExec("INSERT INTO emergency_requests").WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("INSERT INTO notifications").WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()

	err = f.backend.Apply(ctx, []store.Mutation{
		{Op: store.OpInsert, Collection: store.CollectionEmergencies, Record: e},
		{Op: store.OpInsert, Collection: store.CollectionNotifications, Record: n},
	}, nil)
	require.NoError(t, err)
	assert.NoError(t, f.mock.ExpectationsWereMet())

	var events []store.Event
	timeout := time.After(2 * time.Second)
	for len(events) < 2 {
		select {
		case m := <-msgs:
			var ev store.Event
			require.NoError(t, json.Unmarshal(m.Payload, &ev))
			events = append(events, ev)
		case <-timeout:
			t.Fatal("timed out waiting for published events")
		}
	}
	assert.Equal(t, store.CollectionEmergencies, events[0].Table)
	assert.Equal(t, store.OpInsert, events[0].Type)
	assert.Equal(t, store.CollectionNotifications, events[1].Table)
}

func TestApply_RollsBackOnFailure(t *testing.T) {
	f := newFixture(t, Config{})

	f.mock.ExpectBegin()
	f.mock.ExpectExec("INSERT INTO donations_history").WillReturnError(errors.New("connection reset"))
	f.mock.ExpectRollback()

	err := f.backend.Apply(context.Background(), []store.Mutation{
		{Op: store.OpInsert, Collection: store.CollectionDonations, Record: model.Donation{ID: "d1"}},
	}, nil)
	assert.Error(t, err)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestApply_BreakerOpensAfterFailures(t *testing.T) {
	f := newFixture(t, Config{Breaker: BreakerConfig{ConsecutiveFailures: 1, Timeout: time.Minute}})
	batch := []store.Mutation{{Op: store.OpUpdate, Collection: store.CollectionUsers, Record: model.User{ID: "u1"}}}

	f.mock.ExpectBegin().WillReturnError(errors.New("dial tcp: i/o timeout"))
	require.Error(t, f.backend.Apply(context.Background(), batch, nil))

	err := f.backend.Apply(context.Background(), batch, nil)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSubscribe_DeliversEvents(t *testing.T) {
	f := newFixture(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())

	got := make(chan store.Event, 4)
	require.NoError(t, f.backend.Subscribe(ctx, func(ev store.Event) { got <- ev }))

	ev, err := store.NewEvent(store.Mutation{
		Op: store.OpUpdate, Collection: store.CollectionEmergencies,
		Record: model.EmergencyRequest{ID: "e1", Status: model.EmergencyStatusCompleted},
	})
	require.NoError(t, err)
	require.NoError(t, f.broker.Publish(ctx, string(store.CollectionEmergencies), ev))
	require.NoError(t, f.broker.Publish(ctx, string(store.CollectionNotifications), []byte("not json")))
	require.NoError(t, f.broker.Publish(ctx, string(store.CollectionUsers), ev))

	select {
	case ev := <-got:
		assert.Equal(t, store.OpUpdate, ev.Type)
		m, err := ev.Mutation()
		require.NoError(t, err)
		assert.Equal(t, model.EmergencyStatusCompleted, m.Record.(model.EmergencyRequest).Status)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	cancel()
	f.mock.ExpectClose()
	require.NoError(t, f.backend.Close())
	assert.Empty(t, got, "profiles is not a realtime channel and bad payloads are dropped")
}

func TestSubscribe_SkipsOwnWrites(t *testing.T) {
	f := newFixture(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())

	got := make(chan store.Event, 4)
	require.NoError(t, f.backend.Subscribe(ctx, func(ev store.Event) { got <- ev }))

	f.mock.ExpectBegin()
	f.mock.ExpectExec("INSERT INTO emergency_requests").WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()
	require.NoError(t, f.backend.Apply(ctx, []store.Mutation{{
		Op: store.OpUpdate, Collection: store.CollectionEmergencies,
		Record: model.EmergencyRequest{ID: "e1", Status: model.EmergencyStatusInProgress},
	}}, nil))

	other, err := store.NewEvent(store.Mutation{
		Op: store.OpUpdate, Collection: store.CollectionEmergencies,
		Record: model.EmergencyRequest{ID: "e2", Status: model.EmergencyStatusCompleted},
	})
	require.NoError(t, err)
	other.Origin = "another-instance"
	require.NoError(t, f.broker.Publish(ctx, string(store.CollectionEmergencies), other))

	select {
	case ev := <-got:
		m, err := ev.Mutation()
		require.NoError(t, err)
		assert.Equal(t, "e2", m.Record.(model.EmergencyRequest).ID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	cancel()
	f.mock.ExpectClose()
	require.NoError(t, f.backend.Close())
	assert.Empty(t, got)
}

func TestAuth_SignUpAndVerify(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	user := &model.User{ID: "u1", Email: "Ana@Example.com", FullName: "Ana", Role: model.RoleDonor}

	var signedIn []*model.User
	f.backend.Auth().OnAuthStateChange(func(u *model.User) { signedIn = append(signedIn, u) })

	f.mock.ExpectExec("INSERT INTO auth_users").
		WithArgs("u1", "ana@example.com", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	session, err := f.backend.Auth().SignUp(ctx, user, "secret1")
	require.NoError(t, err)
	assert.False(t, session)
	assert.Empty(t, signedIn)

	code := f.sender.codes["ana@example.com"]
	require.Len(t, code, 8)

	_, err = f.backend.Auth().VerifyOTP(ctx, "ana@example.com", "00000000x")
	assert.ErrorIs(t, err, store.ErrInvalidOTP)

	f.mock.ExpectExec("UPDATE auth_users SET email_verified").
		WithArgs("ana@example.com").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectQuery("SELECT (.+) FROM profiles WHERE email").
		WithArgs("ana@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name", "email", "blood_type", "country", "city", "phone", "role", "available", "created_at"}).
			AddRow("u1", "Ana", "ana@example.com", "O-", "", "Madrid", "", "donor", false, time.Now()))

	verified, err := f.backend.Auth().VerifyOTP(ctx, "ANA@example.com", code)
	require.NoError(t, err)
	assert.Equal(t, "u1", verified.ID)
	require.Len(t, signedIn, 1)
	assert.Equal(t, "u1", signedIn[0].ID)

	_, err = f.backend.Auth().VerifyOTP(ctx, "ana@example.com", code)
	assert.ErrorIs(t, err, store.ErrInvalidOTP, "codes are single use")
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAuth_SignUpDuplicate(t *testing.T) {
	f := newFixture(t, Config{})
	f.mock.ExpectExec("INSERT INTO auth_users").WillReturnError(&pq.Error{Code: "23505"})

	_, err := f.backend.Auth().SignUp(context.Background(), &model.User{ID: "u1", Email: "a@example.com"}, "secret1")
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestAuth_SignIn(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	user := &model.User{ID: "u1", Email: "a@example.com"}
	hash, err := security.NewBcryptHasher(bcrypt.MinCost).Hash("secret1")
	require.NoError(t, err)

	rows := func(verified bool) *sqlmock.Rows {
		return sqlmock.NewRows([]string{"password_hash", "email_verified"}).AddRow(hash, verified)
	}

	f.mock.ExpectQuery("SELECT password_hash").WillReturnRows(sqlmock.NewRows([]string{"password_hash", "email_verified"}))
	assert.ErrorIs(t, f.backend.Auth().SignIn(ctx, user, "secret1"), store.ErrInvalidCredentials)

	f.mock.ExpectQuery("SELECT password_hash").WillReturnRows(rows(true))
	assert.ErrorIs(t, f.backend.Auth().SignIn(ctx, user, "wrong"), store.ErrInvalidCredentials)

	f.mock.ExpectQuery("SELECT password_hash").WillReturnRows(rows(false))
	assert.ErrorIs(t, f.backend.Auth().SignIn(ctx, user, "secret1"), store.ErrEmailNotVerified)

	f.mock.ExpectQuery("SELECT password_hash").WillReturnRows(rows(true))
	assert.NoError(t, f.backend.Auth().SignIn(ctx, user, "secret1"))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestGenerateOTP(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := generateOTP()
		require.NoError(t, err)
		assert.Regexp(t, `^\d{8}$`, code)
	}
}

func TestDSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: 5432, User: "lifedrop", Password: "pw", Name: "lifedrop"}
	assert.Equal(t, "host=db port=5432 user=lifedrop password=pw dbname=lifedrop sslmode=disable", cfg.DSN())
}
