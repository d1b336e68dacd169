package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/recipe-list/internal/apperror"
)

// VALIDATION PIPELINE:
// Every service input is a plain struct checked in two stages:
//
//  1. Its `validate` struct tags (go-playground/validator) for shape: required,
//     length, range, email syntax, confirmation fields.
//  2. An ordered []rule for the business checks tags cannot express.
//
// The first failure in either stage becomes an apperror.ValidationFailed
// naming the offending field by its JSON name.

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// rule is one predicate in a pipeline. ok returns false to reject the input.
type rule[T any] struct {
	field   string
	ok      func(T) bool
	message string
}

// runPipeline validates in against its struct tags, then against rules in
// order, and returns the first failure.
func runPipeline[T any](in T, rules []rule[T]) error {
	if err := validate.Struct(in); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return apperror.ValidationFailed(fe.Field(), fieldMessage(fe))
		}
		return fmt.Errorf("service: validating input: %w", err)
	}

	for _, r := range rules {
		if !r.ok(in) {
			return apperror.ValidationFailed(r.field, r.message)
		}
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	isText := fe.Kind() == reflect.String

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		if isText {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if isText {
			return fmt.Sprintf("%s must be %s characters or less", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "eqfield":
		return fmt.Sprintf("%s must match %s", field, jsonName(fe.Param()))
	}
	return fmt.Sprintf("%s is invalid", field)
}

// jsonName lower-cases the first letter of a Go field name, which matches
// how every input struct in this package names its JSON fields.
func jsonName(goName string) string {
	if goName == "" {
		return goName
	}
	return strings.ToLower(goName[:1]) + goName[1:]
}
