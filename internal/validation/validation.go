package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"trailsbuddy.com/quiz-contest/internal/apperr"
)

// Validator wraps go-playground validator and reports failures as
// apperr validation errors named by their JSON field.
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("single_correct", validateSingleCorrect)
	v.RegisterValidation("unique_ids", validateUniqueIDs)
	return &Validator{validate: v}
}

// Validate validates a struct
func (v *Validator) Validate(i interface{}) error {
	err := v.validate.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Wrap(apperr.KindValidation, err, "invalid input")
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return apperr.Validation(strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gtfield":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "single_correct":
		return "Options must have one correct answer"
	case "unique_ids":
		return "Duplicate optionId"
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// CorrectFlagged is implemented by option types checked by single_correct.
type CorrectFlagged interface {
	Correct() bool
}

// Identified is implemented by option types checked by unique_ids.
type Identified interface {
	Identifier() int
}

// validateSingleCorrect requires exactly one element flagged correct.
func validateSingleCorrect(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() != reflect.Slice {
		return false
	}
	n := 0
	for i := 0; i < field.Len(); i++ {
		if c, ok := field.Index(i).Interface().(CorrectFlagged); ok && c.Correct() {
			n++
		}
	}
	return n == 1
}

func validateUniqueIDs(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() != reflect.Slice {
		return false
	}
	seen := make(map[int]struct{}, field.Len())
	for i := 0; i < field.Len(); i++ {
		id, ok := field.Index(i).Interface().(Identified)
		if !ok {
			return false
		}
		if _, dup := seen[id.Identifier()]; dup {
			return false
		}
		seen[id.Identifier()] = struct{}{}
	}
	return true
}
