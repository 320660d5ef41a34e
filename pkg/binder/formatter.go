package binder

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
	"github.com/segmentio/encoding/json"
)

const (
	expression = "expression"
	gt         = "gt"
	gte        = "gte"
	mx         = "max"
	mn         = "min"
	ne         = "ne"
	oneof      = "oneof"
	required   = "required"
)

func formatUnmarshalTypeError(err *json.UnmarshalTypeError) string {
	return fmt.Sprintf("%q should be of type %s", strings.Trim(err.Field, "."), err.Type)
}

func formatSchemaConversionError(err schema.ConversionError) string {
	return fmt.Sprintf("%q should be of type %s", err.Key, err.Type)
}

func formatValidationError(err validator.FieldError) string {
	field := err.Field()

	switch err.Tag() {
	case expression:
		return fmt.Sprintf("%q is not a valid expression", field)
	case gt:
		return fmt.Sprintf("%q must be greater than %s", field, err.Param())
	case gte:
		return fmt.Sprintf("%q must be greater than or equal to %s", field, err.Param())
	case mx:
		return fmt.Sprintf("%q can be at most %s", field, err.Param())
	case mn:
		return fmt.Sprintf("%q must be at least %s", field, err.Param())
	case ne:
		return fmt.Sprintf("%q can't be %s", field, err.Param())
	case oneof:
		return fmt.Sprintf("%q must be one of: %s", field, strings.Join(strings.Split(err.Param(), " "), ", "))
	case required:
		return fmt.Sprintf("%q is required", field)
	}

	return fmt.Sprintf("%q is invalid", field)
}
