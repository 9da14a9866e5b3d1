package service

import (
	"errors"
	"fmt"
	"log"

	"github.com/mathewtroy/candle/docstore"
)

var (
	ErrInvalidInput              = errors.New("invalid input")
	ErrMissingPassword           = errors.New("password is required")
	ErrHandleTaken               = errors.New("this handle is already taken")
	ErrEmailTaken                = errors.New("this email is already registered")
	ErrInvalidImage              = errors.New("invalid image")
	ErrUploadFailed              = errors.New("image upload failed")
	ErrRegistrationFailed        = errors.New("registration failed, please try again")
	ErrPermissionDenied          = errors.New("permission denied")
	ErrNotFound                  = errors.New("not found")
	ErrSelfModificationForbidden = errors.New("you cannot modify your own account")
	ErrInvalidCredentials        = errors.New("invalid email or password")
	ErrStore                     = errors.New("store error")
)

// StoreError wraps a document store failure. It matches ErrStore and the
// underlying error, and ErrPermissionDenied when the store refused access.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error during %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{ErrStore, e.Err}
}

func (e *StoreError) Is(target error) bool {
	return target == ErrPermissionDenied && errors.Is(e.Err, docstore.ErrPermissionDenied)
}

func storeErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

// EventPublisher publishes domain events. Failures are logged and never
// fail the operation that produced the event.
type EventPublisher interface {
	Publish(subject string, event any) error
}

func publish(p EventPublisher, subject string, event any) {
	if p == nil {
		return
	}
	if err := p.Publish(subject, event); err != nil {
		log.Printf("Failed to publish %s event: %v", subject, err)
	}
}
