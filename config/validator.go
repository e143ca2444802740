package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the global validator instance.
var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("env", validateEnvironment)
}

// ConfigError represents a validation error for a specific field.
type ConfigError struct {
	Field   string
	Message string
	Value   interface{}
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("%s: %s (got %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of config errors.
type ValidationErrors []ConfigError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}

	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range e {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// ValidateWithDetails performs tag validation followed by the cross-field
// checks that tags cannot express, and returns every problem at once.
func ValidateWithDetails(cfg *Config) error {
	var details ValidationErrors

	if err := validate.Struct(cfg); err != nil {
		validationErrors, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		for _, fe := range validationErrors {
			details = append(details, ConfigError{
				Field:   fe.Namespace(),
				Message: formatValidationError(fe),
				Value:   fe.Value(),
			})
		}
	}

	details = append(details, crossFieldErrors(cfg)...)
	if len(details) > 0 {
		return details
	}
	return nil
}

func crossFieldErrors(cfg *Config) ValidationErrors {
	var errs ValidationErrors

	if cfg.Storage.Type == "postgres" && strings.TrimSpace(cfg.Storage.Postgres.DSN) == "" {
		errs = append(errs, ConfigError{
			Field:   "Config.Storage.Postgres.DSN",
			Message: "required when storage.type is postgres",
			Value:   cfg.Storage.Postgres.DSN,
		})
	}
	if cfg.Catalog.Mode == "http" && strings.TrimSpace(cfg.Catalog.BaseURL) == "" {
		errs = append(errs, ConfigError{
			Field:   "Config.Catalog.BaseURL",
			Message: "required when catalog.mode is http",
			Value:   cfg.Catalog.BaseURL,
		})
	}
	switch cfg.Generation.Provider {
	case "openai", "anthropic":
		if strings.TrimSpace(cfg.Generation.APIKey) == "" {
			errs = append(errs, ConfigError{
				Field:   "Config.Generation.APIKey",
				Message: fmt.Sprintf("required for provider %s", cfg.Generation.Provider),
				Value:   "",
			})
		}
	}
	if cfg.Ranking.TopK > cfg.Ranking.TopN {
		errs = append(errs, ConfigError{
			Field:   "Config.Ranking.TopK",
			Message: fmt.Sprintf("must not exceed ranking.top_n (%d)", cfg.Ranking.TopN),
			Value:   cfg.Ranking.TopK,
		})
	}
	return errs
}

// formatValidationError converts validator.FieldError to a human-readable message.
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	case "env":
		return "must be one of [development staging production]"
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}

// validateEnvironment is a custom validator for environment values.
func validateEnvironment(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "development", "staging", "production":
		return true
	}
	return false
}
