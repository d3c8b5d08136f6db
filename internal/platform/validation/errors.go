package validation

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrorBody is the payload returned for request bodies that fail struct
// validation: a stable error code plus the failed tag per field.
type ErrorBody struct {
	Error  string              `json:"error"`
	Fields map[string][]string `json:"fields"`
}

// ErrorResponse turns a validator error into an ErrorBody. Non-validator
// errors pass through with their message and no field detail.
func ErrorResponse(err error) ErrorBody {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return ErrorBody{Error: err.Error(), Fields: map[string][]string{}}
	}
	fields := make(map[string][]string, len(verrs))
	for _, fe := range verrs {
		name := strings.ToLower(fe.Field())
		fields[name] = append(fields[name], fe.Tag())
	}
	return ErrorBody{Error: "validation_failed", Fields: fields}
}
