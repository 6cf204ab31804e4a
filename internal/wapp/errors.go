package wapp

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedHeader is returned when the preamble or the binary header record
	// cannot be read in full
	ErrMalformedHeader = errors.New("malformed WAPP header")

	// ErrUnsupportedIFs is returned when a header declares more than one IF.
	// Summed or separate multi-IF data would be decoded with wrong channel accounting.
	ErrUnsupportedIFs = errors.New("unsupported number of IFs")
)

// ConfigError is a custom error type for header settings the decoder does not recognise
type ConfigError struct {
	Field string
	Value int32
}

func NewConfigError(field string, value int32) *ConfigError {
	return &ConfigError{Field: field, Value: value}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("unrecognized %s setting: %d", e.Field, e.Value)
}
