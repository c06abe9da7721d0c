package app

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	innPattern   = regexp.MustCompile(`^\d{10}(\d{2})?$`)
	colorPattern = regexp.MustCompile(`^#([A-Fa-f0-9]{6}|[A-Fa-f0-9]{3})$`)
)

// innValidator accepts 10-digit (organisation) and 12-digit (individual) INNs.
func innValidator(fl validator.FieldLevel) bool {
	v, ok := fl.Field().Interface().(string)
	return ok && innPattern.MatchString(v)
}

func colorValidator(fl validator.FieldLevel) bool {
	v, ok := fl.Field().Interface().(string)
	return ok && colorPattern.MatchString(v)
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("inn", innValidator)
	_ = v.RegisterValidation("color", colorValidator)
	return v
}

var validate = newValidator()

// validateInput runs struct tag validation and converts failures into a 400
// listing each offending field.
func validateInput(input any) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := describeFieldError(fe)
		fields[fe.Field()] = msg
		parts = append(parts, fe.Field()+": "+msg)
	}
	return domainError(http.StatusBadRequest, "VALIDATION_ERROR", strings.Join(parts, "; "), fields)
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "uuid":
		return "must be a UUID"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return "must be one of: " + fe.Param()
	case "datetime":
		return "must be a date in " + fe.Param() + " format"
	case "inn":
		return "must contain 10 or 12 digits"
	case "color":
		return "must be a #RRGGBB color"
	default:
		return "is invalid"
	}
}
