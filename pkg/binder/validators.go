package binder

import (
	"github.com/dop251/goja"
	"github.com/go-playground/validator/v10"
)

// expressionValidator ensures the value compiles as a JavaScript expression.
// The empty string is allowed so that optional condition fields can be
// cleared; add `required` to the validate tag to disallow it.
func expressionValidator(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	_, err := goja.Compile("", value, true)
	return err == nil
}
