package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/ps3netsrv/pkg/adapter/netiso"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// ConfigurationError describes one invalid configuration value.
type ConfigurationError struct {
	// Field is the dotted path of the offending field, empty for rules
	// spanning several fields.
	Field string

	// Message says what is wrong.
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate validates the configuration using struct tags and custom rules.
//
// Note: Normalization (log level case, filter mode case) is handled in
// ApplyDefaults, not here.
//
// Returns a *ConfigurationError describing the first failure.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	nc := &cfg.Adapters.Netiso

	if !nc.Enabled {
		return &ConfigurationError{Field: "adapters", Message: "at least one adapter must be enabled"}
	}

	mode, err := netiso.ParseFilterMode(nc.Filter.Mode)
	if err != nil {
		return &ConfigurationError{Field: "adapters.netiso.filter.mode", Message: err.Error()}
	}
	if mode != netiso.FilterNone && len(nc.Filter.Addresses) == 0 {
		return &ConfigurationError{
			Field:   "adapters.netiso.filter.addresses",
			Message: fmt.Sprintf("filter mode %s requires at least one address", mode),
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Port == nc.Port {
		return &ConfigurationError{
			Field:   "metrics.port",
			Message: fmt.Sprintf("port %d already used by the netiso adapter", nc.Port),
		}
	}

	if err := nc.Validate(); err != nil {
		return &ConfigurationError{Field: "adapters.netiso", Message: err.Error()}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return &ConfigurationError{
			Field:   e.Namespace(),
			Message: describeTag(e),
		}
	}
	return err
}

func describeTag(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "dir":
		return fmt.Sprintf("%v is not an existing directory", e.Value())
	case "oneof":
		return fmt.Sprintf("%v must be one of [%s]", e.Value(), e.Param())
	case "ip", "ip|cidr":
		return fmt.Sprintf("%v is not a valid address", e.Value())
	default:
		return fmt.Sprintf("validation failed on '%s' tag (value: %v)", e.Tag(), e.Value())
	}
}
