package services

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrForbidden         = errors.New("not authorized for this resource")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrInsufficientFunds = errors.New("insufficient balance to send message")
	ErrUnauthenticated   = errors.New("authentication required")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("resource already exists")
)

func invalidInput(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidInput, err)
}
