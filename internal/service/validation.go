package service

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const dateLayout = "2006-01-02"

const (
	minPeriod = 1
	maxPeriod = 10
)

// NewValidator returns a validator that reports JSON field names and knows
// the event_date and period rules.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("event_date", func(fl validator.FieldLevel) bool {
		return validDate(fl.Field().String())
	})
	_ = v.RegisterValidation("period", func(fl validator.FieldLevel) bool {
		return validPeriod(int(fl.Field().Int()))
	})
	return v
}

func validDate(raw string) bool {
	_, err := time.Parse(dateLayout, raw)
	return err == nil
}

func validPeriod(p int) bool {
	return p >= minPeriod && p <= maxPeriod
}
