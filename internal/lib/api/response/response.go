package response

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

type Response struct {
	Status  string       `json:"status"`
	Message string       `json:"message,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func OK() Response {
	return Response{Status: StatusOK}
}

func OKMessage(msg string) Response {
	return Response{Status: StatusOK, Message: msg}
}

func Error(msg string) Response {
	return Response{Status: StatusError, Message: msg}
}

// ValidationError maps validator failures to a field-level error array.
func ValidationError(errs validator.ValidationErrors) Response {
	fieldErrs := make([]FieldError, 0, len(errs))

	for _, err := range errs {
		var msg string

		switch err.ActualTag() {
		case "required":
			msg = fmt.Sprintf("field %s is required", err.Field())
		case "email":
			msg = fmt.Sprintf("field %s must be a valid email", err.Field())
		case "min":
			msg = fmt.Sprintf("field %s must be at least %s characters", err.Field(), err.Param())
		default:
			msg = fmt.Sprintf("field %s is invalid", err.Field())
		}

		fieldErrs = append(fieldErrs, FieldError{Field: err.Field(), Message: msg})
	}

	return Response{
		Status:  StatusError,
		Message: "validation failed",
		Errors:  fieldErrs,
	}
}
