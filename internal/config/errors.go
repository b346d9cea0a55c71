package config

import (
	"fmt"
	"strings"
)

// Error types reported in ConfigurationError.ErrorType.
const (
	ErrorTypeParse         = "parse"
	ErrorTypeMissing       = "missing"
	ErrorTypeInvalid       = "invalid"
	ErrorTypeDuplicate     = "duplicate"
	ErrorTypeSecretExposed = "secret_exposed"
)

// ConfigurationError describes one problem found while loading configuration.
type ConfigurationError struct {
	FilePath    string   `json:"filePath"`
	Section     string   `json:"section"`   // e.g. "providers[github]"
	Field       string   `json:"field"`     // e.g. "clientId"
	ErrorType   string   `json:"errorType"` // one of the ErrorType constants
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Error implements the error interface
func (ce ConfigurationError) Error() string {
	var where string
	switch {
	case ce.Section != "" && ce.Field != "":
		where = ce.Section + "." + ce.Field
	case ce.Section != "":
		where = ce.Section
	default:
		where = ce.Field
	}
	if where == "" {
		return fmt.Sprintf("[%s] %s", ce.ErrorType, ce.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", ce.ErrorType, where, ce.Message)
}

// DetailedError returns a multi-line description including suggestions.
func (ce ConfigurationError) DetailedError() string {
	parts := []string{ce.Error()}
	if ce.FilePath != "" {
		parts = append(parts, fmt.Sprintf("  File: %s", ce.FilePath))
	}
	if len(ce.Suggestions) > 0 {
		parts = append(parts, "  Suggestions:")
		for _, suggestion := range ce.Suggestions {
			parts = append(parts, fmt.Sprintf("    - %s", suggestion))
		}
	}
	return strings.Join(parts, "\n")
}

// ConfigurationErrorCollection holds multiple configuration errors
type ConfigurationErrorCollection struct {
	Errors []ConfigurationError `json:"errors"`
}

// Error implements the error interface for the collection
func (cec ConfigurationErrorCollection) Error() string {
	if len(cec.Errors) == 0 {
		return "no configuration errors"
	}

	if len(cec.Errors) == 1 {
		return cec.Errors[0].Error()
	}

	return fmt.Sprintf("%d configuration errors: %s (and %d more)",
		len(cec.Errors), cec.Errors[0].Error(), len(cec.Errors)-1)
}

// HasErrors returns true if there are any errors in the collection
func (cec *ConfigurationErrorCollection) HasErrors() bool {
	return len(cec.Errors) > 0
}

// Count returns the number of errors in the collection
func (cec *ConfigurationErrorCollection) Count() int {
	return len(cec.Errors)
}

// Add adds a new error to the collection
func (cec *ConfigurationErrorCollection) Add(err ConfigurationError) {
	cec.Errors = append(cec.Errors, err)
}

// ByType returns the errors of one type.
func (cec *ConfigurationErrorCollection) ByType(errorType string) []ConfigurationError {
	var filtered []ConfigurationError
	for _, err := range cec.Errors {
		if err.ErrorType == errorType {
			filtered = append(filtered, err)
		}
	}
	return filtered
}

// DetailedReport returns every error with its details.
func (cec *ConfigurationErrorCollection) DetailedReport() string {
	if len(cec.Errors) == 0 {
		return "No configuration errors to report"
	}

	parts := []string{fmt.Sprintf("Configuration has %d error(s):", len(cec.Errors))}
	for _, err := range cec.Errors {
		parts = append(parts, err.DetailedError())
	}
	return strings.Join(parts, "\n")
}

// NewConfigurationError creates a configuration error with basic information.
func NewConfigurationError(filePath, section, field, errorType, message string) ConfigurationError {
	return ConfigurationError{
		FilePath:  filePath,
		Section:   section,
		Field:     field,
		ErrorType: errorType,
		Message:   message,
	}
}
