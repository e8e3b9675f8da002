package handler

import (
	stderrors "errors"

	"github.com/lifedrop/lifedrop-api/internal/geocode"
	"github.com/lifedrop/lifedrop-api/internal/service/donor"
	"github.com/lifedrop/lifedrop-api/internal/service/emergency"
	"github.com/lifedrop/lifedrop-api/internal/store"
	"github.com/lifedrop/lifedrop-api/pkg/auth"
	"github.com/lifedrop/lifedrop-api/pkg/errors"
	"github.com/lifedrop/lifedrop-api/pkg/security"
)

// AppError translates domain errors into API errors. Errors that already
// carry an *errors.AppError, and unknown errors, pass through unchanged.
func AppError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.As(err); ok {
		return err
	}

	switch {
	case stderrors.Is(err, store.ErrAlreadyExists):
		return errors.Conflict("already_exists", "an account with this email already exists", err)
	case stderrors.Is(err, store.ErrInvalidCredentials):
		return errors.Unauthorized(err)
	case stderrors.Is(err, store.ErrEmailNotVerified):
		return errors.Forbidden("email address has not been verified", err)
	case stderrors.Is(err, store.ErrInvalidOTP):
		return errors.BadRequest(err.Error(), err)
	case stderrors.Is(err, security.ErrPasswordTooShort):
		return errors.BadRequest("password must be at least 6 characters", err)
	case stderrors.Is(err, auth.ErrInvalidToken), stderrors.Is(err, auth.ErrTokenRevoked):
		return errors.Unauthorized(err)

	case stderrors.Is(err, emergency.ErrNotFound):
		return errors.NotFound("emergency", err)
	case stderrors.Is(err, emergency.ErrDonorNotFound):
		return errors.NotFound("donor", err)
	case stderrors.Is(err, emergency.ErrForbidden):
		return errors.Forbidden(err.Error(), err)
	case stderrors.Is(err, emergency.ErrEmergencyClosed):
		return errors.Conflict("emergency_closed", err.Error(), err)
	case stderrors.Is(err, emergency.ErrAlreadyContacted):
		return errors.Conflict("already_contacted", err.Error(), err)
	case stderrors.Is(err, emergency.ErrInvalidTransition), stderrors.Is(err, emergency.ErrInvalidInput):
		return errors.BadRequest(err.Error(), err)

	case stderrors.Is(err, donor.ErrNotFound):
		return errors.NotFound("user", err)
	case stderrors.Is(err, donor.ErrNotDonor):
		return errors.Forbidden(err.Error(), err)

	case stderrors.Is(err, geocode.ErrNoResults):
		return errors.NotFound("place", err)
	case stderrors.Is(err, store.ErrNotFound):
		return errors.NotFound("resource", err)
	}
	return err
}
