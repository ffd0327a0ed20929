package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/iwvelando/autocall-forecast/pkg/constants"
)

// ErrInvalidConfiguration wraps every struct validation failure.
var ErrInvalidConfiguration = errors.New("invalid configuration")

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Variants lists the product variant names accepted in configuration.
var Variants = []string{
	constants.VariantPlain,
	constants.VariantLock,
	constants.VariantKnockIn,
	constants.VariantLizard,
	constants.VariantLizardKnockIn,
	constants.VariantMonthlyPay,
}

func instance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report YAML key names rather than Go field names.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
		_ = validate.RegisterValidation("variant", func(fl validator.FieldLevel) bool {
			v := fl.Field().String()
			if v == "" {
				return true
			}
			for _, known := range Variants {
				if v == known {
					return true
				}
			}
			return false
		})
	})
	return validate
}

// ValidateStruct runs the `validate` struct tags of v and folds every
// violation into one error wrapping ErrInvalidConfiguration.
func ValidateStruct(v any) error {
	err := instance().Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := strings.SplitN(fe.Namespace(), ".", 2)
	path := fe.Namespace()
	if len(field) == 2 {
		path = field[1]
	}

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", path)
	case "variant":
		return fmt.Sprintf("%s must be one of %s, got %q", path, strings.Join(Variants, ", "), fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s, got %v", path, fe.Param(), fe.Value())
	case "datetime":
		return fmt.Sprintf("%s must be a %s date, got %v", path, fe.Param(), fe.Value())
	case "unique":
		return fmt.Sprintf("%s must not contain duplicates", path)
	default:
		if fe.Param() != "" {
			return fmt.Sprintf("%s failed %s=%s (got %v)", path, fe.Tag(), fe.Param(), fe.Value())
		}
		return fmt.Sprintf("%s failed %s (got %v)", path, fe.Tag(), fe.Value())
	}
}
