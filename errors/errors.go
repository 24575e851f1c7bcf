package errors

import (
	"errors"
	"fmt"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")
	ErrEmptyWords  = fmt.Errorf("no words have been found")

	ErrEmptyName       = fmt.Errorf("username is required")
	ErrNameTaken       = fmt.Errorf("username is already taken")
	ErrUnknownAuthor   = fmt.Errorf("unknown author")
	ErrEmptyMessage    = fmt.Errorf("message cannot be empty")
	ErrMessageTooLong  = fmt.Errorf("message too long")
	ErrMalformedFrame  = fmt.Errorf("invalid message format")
	ErrDeliveryFailure = fmt.Errorf("delivery failure")
	ErrArchiveDisabled = fmt.Errorf("archive is disabled")
)

// Is and As let callers importing this package as "errors" keep the standard helpers.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }
