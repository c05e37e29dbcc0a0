package autoprocess

import (
	"errors"
	"fmt"
)

var (
	ErrDefinitionNotFound = fmt.Errorf("auto-process definition not found")
	ErrDefinitionExists   = fmt.Errorf("auto-process definition already exists")
)

// ConfigurationError reports a definition that cannot be saved or executed.
type ConfigurationError struct {
	DefinitionID string
	Field        string
	Reason       string
	Err          error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("auto-process %q: %s", e.DefinitionID, e.Reason)
	if e.Field != "" {
		msg = fmt.Sprintf("auto-process %q: %s: %s", e.DefinitionID, e.Field, e.Reason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func IsConfigurationError(err error) bool {
	var configErr *ConfigurationError
	return errors.As(err, &configErr)
}

func configError(id, field, reason string, err error) *ConfigurationError {
	return &ConfigurationError{DefinitionID: id, Field: field, Reason: reason, Err: err}
}
