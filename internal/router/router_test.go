package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifedrop/lifedrop-api/internal/handler"
	authHandler "github.com/lifedrop/lifedrop-api/internal/handler/auth"
	donorHandler "github.com/lifedrop/lifedrop-api/internal/handler/donor"
	emergencyHandler "github.com/lifedrop/lifedrop-api/internal/handler/emergency"
	"github.com/lifedrop/lifedrop-api/internal/handler/health"
	notificationHandler "github.com/lifedrop/lifedrop-api/internal/handler/notification"
	rankingHandler "github.com/lifedrop/lifedrop-api/internal/handler/ranking"
	"github.com/lifedrop/lifedrop-api/internal/handler/realtime"
	"github.com/lifedrop/lifedrop-api/internal/handler/reference"
	reportHandler "github.com/lifedrop/lifedrop-api/internal/handler/report"
	"github.com/lifedrop/lifedrop-api/internal/middleware"
	"github.com/lifedrop/lifedrop-api/internal/router"
	authService "github.com/lifedrop/lifedrop-api/internal/service/auth"
	donorService "github.com/lifedrop/lifedrop-api/internal/service/donor"
	emergencyService "github.com/lifedrop/lifedrop-api/internal/service/emergency"
	notificationService "github.com/lifedrop/lifedrop-api/internal/service/notification"
	rankingService "github.com/lifedrop/lifedrop-api/internal/service/ranking"
	reportService "github.com/lifedrop/lifedrop-api/internal/service/report"
	"github.com/lifedrop/lifedrop-api/internal/store"
	"github.com/lifedrop/lifedrop-api/internal/store/storetest"
	"github.com/lifedrop/lifedrop-api/pkg/auth"
	"github.com/lifedrop/lifedrop-api/pkg/metrics"
)

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Reason  string          `json:"reason"`
	Data    json.RawMessage `json:"data"`
}

type api struct {
	t      *testing.T
	engine http.Handler
}

func newAPI(t *testing.T) *api {
	t.Helper()
	require.NoError(t, handler.RegisterValidators())

	backend := storetest.New(store.Snapshot{})
	st, err := store.Open(context.Background(), nil, func(context.Context) (store.Backend, error) {
		return backend, nil
	}, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	jwtSvc, err := auth.NewJWTService(auth.Config{Secret: "test-secret-0123456789"})
	require.NoError(t, err)

	m := metrics.NewNop()
	authSvc := authService.NewService(st, jwtSvc, nil)
	hub := realtime.NewHub(st, nil)
	t.Cleanup(hub.Close)

	r := router.NewRouter(
		middleware.NewAuthMiddleware(authSvc),
		router.Handlers{
			Health:       health.NewHandler(st.Mode(), nil, nil),
			Auth:         authHandler.NewHandler(authSvc),
			Reference:    reference.NewHandler(nil),
			Emergency:    emergencyHandler.NewHandler(emergencyService.NewService(st, notificationService.Config{}, nil, nil, m)),
			Donor:        donorHandler.NewHandler(donorService.NewService(st, nil)),
			Notification: notificationHandler.NewHandler(notificationService.NewService(st)),
			Ranking:      rankingHandler.NewHandler(rankingService.NewService(st)),
			Report:       reportHandler.NewHandler(reportService.NewService(st)),
			Realtime:     realtime.NewHandler(hub, nil, nil),
		},
		m,
		nil,
		router.RouterConfig{},
	)
	r.Setup()
	return &api{t: t, engine: r.Engine()}
}

func (a *api) do(method, path, token string, body interface{}) (int, envelope) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w.Code, env
}

func decode(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, v), string(env.Data))
}

// register signs a user up and returns the session token and user id.
func (a *api) register(name, email, role, bloodType string) (string, string) {
	a.t.Helper()
	code, env := a.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"full_name":  name,
		"email":      email,
		"password":   "secret123",
		"blood_type": bloodType,
		"city":       "Madrid",
		"role":       role,
	})
	require.Equal(a.t, http.StatusCreated, code, env.Message)

	var resp struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
		Token struct {
			AccessToken string `json:"access_token"`
		} `json:"token"`
	}
	decode(a.t, env, &resp)
	require.NotEmpty(a.t, resp.Token.AccessToken)
	return resp.Token.AccessToken, resp.User.ID
}

func TestEmergencyLifecycle(t *testing.T) {
	a := newAPI(t)
	hospital, _ := a.register("General", "general@example.com", "hospital", "O+")
	donor, donorID := a.register("Ana", "ana@example.com", "donor", "O-")

	code, _ := a.do(http.MethodPost, "/api/v1/me/availability", donor, nil)
	require.Equal(t, http.StatusOK, code)

	code, env := a.do(http.MethodPost, "/api/v1/emergencies", hospital, map[string]interface{}{
		"patient_name":      "P. Doe",
		"blood_type_needed": "A+",
		"units_needed":      2,
		"hospital":          "General",
		"urgency_level":     "Critical",
		"city":              "madrid",
	})
	require.Equal(t, http.StatusCreated, code, env.Message)
	var created struct {
		Emergency struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"emergency"`
		Notified int `json:"notified"`
	}
	decode(t, env, &created)
	assert.Equal(t, "open", created.Emergency.Status)
	assert.Equal(t, 1, created.Notified)
	id := created.Emergency.ID

	code, env = a.do(http.MethodGet, "/api/v1/notifications/unread-count", donor, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"unread":1}`, string(env.Data))

	code, _ = a.do(http.MethodPost, "/api/v1/emergencies/"+id+"/contact", hospital, map[string]string{"donor_id": donorID})
	require.Equal(t, http.StatusCreated, code)

	code, env = a.do(http.MethodPost, "/api/v1/emergencies/"+id+"/contact", hospital, map[string]string{"donor_id": donorID})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "error", env.Status)

	code, _ = a.do(http.MethodGet, "/api/v1/emergencies/"+id+"/donations", hospital, nil)
	assert.Equal(t, http.StatusOK, code)
	other, _ := a.register("Other", "other@example.com", "hospital", "O+")
	for _, path := range []string{"/donors", "/donations"} {
		code, _ = a.do(http.MethodGet, "/api/v1/emergencies/"+id+path, other, nil)
		assert.Equal(t, http.StatusForbidden, code, path)
	}

	code, env = a.do(http.MethodPost, "/api/v1/emergencies/"+id+"/complete", hospital, nil)
	require.Equal(t, http.StatusOK, code, env.Message)

	code, _ = a.do(http.MethodPost, "/api/v1/emergencies/"+id+"/contact", hospital, map[string]string{"donor_id": donorID})
	assert.Equal(t, http.StatusConflict, code)

	code, env = a.do(http.MethodGet, "/api/v1/me/donations", donor, nil)
	require.Equal(t, http.StatusOK, code)
	var history []struct {
		Status string `json:"status"`
	}
	decode(t, env, &history)
	require.Len(t, history, 1)
	assert.Equal(t, "completed", history[0].Status)
}

func TestAccessControl(t *testing.T) {
	a := newAPI(t)
	donor, _ := a.register("Ana", "ana@example.com", "donor", "O-")

	code, _ := a.do(http.MethodGet, "/api/v1/emergencies", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = a.do(http.MethodGet, "/api/v1/emergencies", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = a.do(http.MethodPost, "/api/v1/emergencies", donor, map[string]string{})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = a.do(http.MethodGet, "/api/v1/history", donor, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = a.do(http.MethodPost, "/api/v1/auth/logout", donor, nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = a.do(http.MethodGet, "/api/v1/me", donor, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestRegisterValidation(t *testing.T) {
	a := newAPI(t)
	code, env := a.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"full_name":  "Ana",
		"email":      "ana@example.com",
		"password":   "secret123",
		"blood_type": "Z+",
		"city":       "Madrid",
		"role":       "donor",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Message, "blood_type")

	a.register("Ana", "ana@example.com", "donor", "O-")
	code, _ = a.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"full_name":  "Ana Again",
		"email":      "ANA@example.com",
		"password":   "secret123",
		"blood_type": "O-",
		"city":       "Madrid",
		"role":       "donor",
	})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = a.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "ana@example.com",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestCompatibilityAndHealth(t *testing.T) {
	a := newAPI(t)

	code, env := a.do(http.MethodGet, "/api/v1/compatibility?blood_type=AB%2B", "", nil)
	require.Equal(t, http.StatusOK, code)
	var chart struct {
		CanReceiveFrom []string `json:"can_receive_from"`
		CanDonateTo    []string `json:"can_donate_to"`
	}
	decode(t, env, &chart)
	assert.Len(t, chart.CanReceiveFrom, 8)
	assert.Equal(t, []string{"AB+"}, chart.CanDonateTo)

	code, _ = a.do(http.MethodGet, "/api/v1/compatibility?blood_type=Q", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = a.do(http.MethodGet, "/api/v1/health/live", "", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = a.do(http.MethodGet, "/api/v1/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, code)
}
