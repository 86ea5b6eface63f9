// ABOUTME: Shared go-playground/validator instance for model validation.
// ABOUTME: Translates field errors into short, readable messages.
package models

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

func validateStruct(v any) error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "min", "max":
			msgs = append(msgs, fmt.Sprintf("%s must be within 0..100, got %v", fe.Field(), derefValue(fe.Value())))
		case "datetime":
			msgs = append(msgs, fmt.Sprintf("%s must be a YYYY-MM-DD date, got %q", fe.Field(), fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("invalid %s", strings.Join(msgs, "; "))
}

func derefValue(v any) any {
	if p, ok := v.(*float64); ok && p != nil {
		return *p
	}
	return v
}
