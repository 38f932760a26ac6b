package store

import (
	"errors"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"journeycal/internal/model"
)

// newValidator registers the event-specific rules used by the tags on
// model.CreateEventInput and model.UpdateEventInput.
func newValidator() *validator.Validate {
	v := validator.New()

	// Report json names ("cityLocation") instead of Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	_ = v.RegisterValidation("title", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return strings.TrimSpace(s) != "" && utf8.RuneCountInString(s) <= model.MaxTitleLength
	})
	_ = v.RegisterValidation("caldate", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(model.DateLayout, fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		_, err := time.Parse(model.TimeLayout, s)
		return err == nil && len(s) == len(model.TimeLayout)
	})
	_ = v.RegisterValidation("color", func(fl validator.FieldLevel) bool {
		return model.Color(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("weathertype", func(fl validator.FieldLevel) bool {
		return model.WeatherType(fl.Field().String()).Valid()
	})

	return v
}

// check runs struct validation and converts the result to *ValidationError.
func check(v *validator.Validate, in any) error {
	err := v.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Rule: fe.Tag()})
	}
	return out
}
