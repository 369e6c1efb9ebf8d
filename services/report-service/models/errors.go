package models

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed or out-of-range input. Message is safe
// to return to the caller verbatim.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NotFoundError covers unknown ids and protocols. Soft-deleted reports are
// indistinguishable from missing ones on purpose.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

// ConflictError signals a protocol collision on insert. Creation retries
// generation internally before ever surfacing this.
type ConflictError struct {
	Protocol string
}

func (e *ConflictError) Error() string {
	return "protocol already exists: " + e.Protocol
}

// StoreError wraps a transient persistence failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// ErrConcurrentUpdate is returned by the store when a preconditioned status
// update matched no document because a concurrent writer got there first.
var ErrConcurrentUpdate = errors.New("report modified concurrently")
