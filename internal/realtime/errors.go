package realtime

import (
	"errors"
	"fmt"
)

var (
	ErrValidation      = errors.New("validation")
	ErrNotFound        = errors.New("not_found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInternal        = errors.New("internal")
	ErrUnauthenticated = errors.New("unauthenticated")
)

func validation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

func internal(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInternal, op, err)
}

// Reason maps an operation error to the short string returned to the client.
// Anything unclassified is reported as internal.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return ErrValidation.Error()
	case errors.Is(err, ErrNotFound):
		return ErrNotFound.Error()
	case errors.Is(err, ErrUnauthorized):
		return ErrUnauthorized.Error()
	case errors.Is(err, ErrUnauthenticated):
		return ErrUnauthenticated.Error()
	default:
		return ErrInternal.Error()
	}
}
