package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/shopcompare/internal/service"
)

// Validation errors.
var (
	ErrNilContext      = errors.New("context cannot be nil")
	ErrEmptyString     = errors.New("string parameter cannot be empty")
	ErrNilParameter    = errors.New("parameter cannot be nil")
	ErrInvalidDocument = errors.New("invalid document")
	ErrInvalidScope    = errors.New("invalid scope")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateData ensures a document payload is present.
func validateData(data map[string]any) error {
	if data == nil {
		return fmt.Errorf("%w: data", ErrNilParameter)
	}
	return nil
}

// validateScope checks the collection and that the filter field is a plain
// identifier.
func validateScope(scope service.Scope) error {
	if err := validateString(scope.Collection, "collection"); err != nil {
		return err
	}
	if scope.Limit < 0 {
		return fmt.Errorf("%w: negative limit %d", ErrInvalidScope, scope.Limit)
	}
	for _, r := range scope.Field {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return fmt.Errorf("%w: field %q", ErrInvalidScope, scope.Field)
		}
	}
	return nil
}
