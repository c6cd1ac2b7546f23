package models

import (
	"errors"
	"fmt"
)

// ErrDuplicateLabel is returned when an experiment label is registered twice
// within one ledger.
var ErrDuplicateLabel = errors.New("duplicate experiment label")

// ErrUnknownMember is returned when a population lookup misses.
var ErrUnknownMember = errors.New("unknown member")

// ConfigurationError reports an invalid population, partition or round
// configuration. It is raised before any simulation round runs.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// NewConfigurationError builds a ConfigurationError for field.
func NewConfigurationError(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// EmptyPoolError is returned when weighted partition sampling has nothing to
// draw from.
type EmptyPoolError struct {
	Partitions  int
	TotalWeight float64
}

func (e *EmptyPoolError) Error() string {
	return fmt.Sprintf("empty partition pool: %d partitions with total weight %g", e.Partitions, e.TotalWeight)
}
