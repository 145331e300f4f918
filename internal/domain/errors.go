package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrSubmitting         = errors.New("request already in flight")
	ErrNoPendingOrder     = errors.New("no pending order")
	ErrCheckoutInProgress = errors.New("another checkout is already pending")
	ErrStoreClosed        = errors.New("store closed")
)

// ValidationError is returned before any request leaves the process. Fields
// maps the offending field to a human readable message.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// NetworkError wraps a failed call to a remote API. Status is zero when no
// response was received.
type NetworkError struct {
	Op     string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

type DataIntegrityError struct {
	Reason string
	Err    error
}

func (e *DataIntegrityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data integrity: %s: %v", e.Reason, e.Err)
	}
	return "data integrity: " + e.Reason
}

func (e *DataIntegrityError) Unwrap() error {
	return e.Err
}

type LineFailure struct {
	Index     int    `json:"index"`
	ProductID string `json:"product_id"`
	Err       error  `json:"-"`
	Message   string `json:"error"`
}

// PartialPersistenceError means some order lines of a checkout were stored
// and others were not.
type PartialPersistenceError struct {
	TransactionID string
	Created       int
	Failed        []LineFailure
}

func (e *PartialPersistenceError) Error() string {
	indexes := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		indexes[i] = fmt.Sprintf("%d(%s)", f.Index, f.ProductID)
	}
	return fmt.Sprintf("transaction %s: %d lines created, %d failed: %s",
		e.TransactionID, e.Created, len(e.Failed), strings.Join(indexes, ", "))
}

func (e *PartialPersistenceError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, f := range e.Failed {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}
