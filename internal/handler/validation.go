package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/lifedrop/lifedrop-api/internal/model"
	"github.com/lifedrop/lifedrop-api/pkg/errors"
	"github.com/lifedrop/lifedrop-api/pkg/httputil"
	pkgvalidator "github.com/lifedrop/lifedrop-api/pkg/validator"
)

// RegisterValidators installs the tags request models use.
func RegisterValidators() error {
	return pkgvalidator.RegisterGin(map[string]validator.Func{
		"bloodtype": func(fl validator.FieldLevel) bool {
			return model.BloodType(fl.Field().String()).Valid()
		},
	})
}

// BindJSON binds the body into obj, answering 400 on failure.
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		httputil.RespondWithError(c, errors.BadRequest(pkgvalidator.Message(err), err))
		return false
	}
	return true
}

// BindQuery binds query parameters into obj, answering 400 on failure.
func BindQuery(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		httputil.RespondWithError(c, errors.BadRequest(pkgvalidator.Message(err), err))
		return false
	}
	return true
}

// Fail answers with the API error matching err.
func Fail(c *gin.Context, err error) {
	httputil.RespondWithError(c, AppError(err))
}
