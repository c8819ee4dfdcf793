package modules

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/andrej220/configzz/internal/errs"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

func init() {
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// validateConfig checks a task config against its struct tags. Every
// violation is reported as ErrInvalidTaskConfiguration.
func validateConfig(kind string, cfg any) error {
	if cfg == nil || reflect.ValueOf(cfg).IsNil() {
		return fmt.Errorf("%w: %s config is missing", errs.ErrInvalidTaskConfiguration, kind)
	}
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %s: %v", errs.ErrInvalidTaskConfiguration, kind, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s: %s", errs.ErrInvalidTaskConfiguration, kind, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s needs at least %s entry", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s can be %s only, got %q", field, strings.Join(strings.Fields(fe.Param()), " or "), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
