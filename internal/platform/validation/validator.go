package validation

import (
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type structValidator struct{ v *validator.Validate }

func (s *structValidator) Validate(i interface{}) error {
	return s.v.Struct(i)
}

// New returns the echo.Validator used by the API server. Handlers invoke it
// via c.Validate on bound request bodies.
func New() echo.Validator {
	return &structValidator{v: validator.New(validator.WithRequiredStructEnabled())}
}
