package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var messages = map[string]string{
	"required":  "is required",
	"email":     "must be a valid email",
	"oneof":     "must be one of: %s",
	"min":       "must be at least %s characters",
	"gt":        "must be greater than %s",
	"len":       "must be exactly %s characters",
	"numeric":   "must be numeric",
	"bloodtype": "must be a valid blood type",
}

// RegisterGin installs custom tags on gin's binding validator and makes
// error fields report their json names.
func RegisterGin(custom map[string]validator.Func) error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin binding validator is not go-playground/validator")
	}
	for tag, fn := range custom {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("failed to register %q: %w", tag, err)
		}
	}
	v.RegisterTagNameFunc(jsonName)
	return nil
}

func jsonName(fld reflect.StructField) string {
	for _, tag := range []string{"json", "form"} {
		name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		if name != "" {
			return name
		}
	}
	return fld.Name
}

// Message flattens validation errors into one readable line. Other errors,
// such as malformed JSON, are returned as is.
func Message(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	parts := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msg, ok := messages[e.Tag()]
		if !ok {
			msg = "failed " + e.Tag() + " validation"
		}
		if strings.Contains(msg, "%s") {
			msg = fmt.Sprintf(msg, e.Param())
		}
		parts = append(parts, e.Field()+" "+msg)
	}
	return strings.Join(parts, "; ")
}
