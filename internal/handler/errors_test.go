package handler

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifedrop/lifedrop-api/internal/service/emergency"
	"github.com/lifedrop/lifedrop-api/internal/store"
	"github.com/lifedrop/lifedrop-api/pkg/auth"
	"github.com/lifedrop/lifedrop-api/pkg/errors"
)

func TestAppError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		reason string
	}{
		{store.ErrAlreadyExists, http.StatusConflict, "already_exists"},
		{store.ErrInvalidCredentials, http.StatusUnauthorized, "unauthorized"},
		{store.ErrEmailNotVerified, http.StatusForbidden, "forbidden"},
		{store.ErrInvalidOTP, http.StatusBadRequest, "bad_request"},
		{fmt.Errorf("%w: expired", auth.ErrInvalidToken), http.StatusUnauthorized, "unauthorized"},
		{emergency.ErrNotFound, http.StatusNotFound, "not_found"},
		{emergency.ErrForbidden, http.StatusForbidden, "forbidden"},
		{emergency.ErrEmergencyClosed, http.StatusConflict, "emergency_closed"},
		{emergency.ErrAlreadyContacted, http.StatusConflict, "already_contacted"},
		{fmt.Errorf("%w: backwards", emergency.ErrInvalidTransition), http.StatusBadRequest, "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			appErr, ok := errors.As(AppError(tt.err))
			require.True(t, ok)
			assert.Equal(t, tt.status, appErr.HTTPStatus())
			assert.Equal(t, tt.reason, appErr.Reason)
			assert.ErrorIs(t, appErr, tt.err)
		})
	}
}

func TestAppError_PassThrough(t *testing.T) {
	assert.Nil(t, AppError(nil))

	unknown := stderrors.New("disk on fire")
	assert.Same(t, unknown, AppError(unknown))

	already := errors.BadRequest("nope", nil)
	assert.Same(t, already, AppError(already))
}
