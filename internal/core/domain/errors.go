package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnknownAdapter = errors.New("unknown tracklist adapter")
)

func InvalidInputf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func RecordNotFound(id string) error {
	return fmt.Errorf("record %s: %w", id, ErrNotFound)
}

func OrderNotFound(id string) error {
	return fmt.Errorf("order %s: %w", id, ErrNotFound)
}

type InsufficientStockError struct {
	RecordID  string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for record %s: requested %d, available %d",
		e.RecordID, e.Requested, e.Available)
}

// RecordsNotFoundError is returned before any stock mutation when an order references unknown records.
type RecordsNotFoundError struct {
	IDs []string
}

func (e *RecordsNotFoundError) Error() string {
	return "records not found: " + strings.Join(e.IDs, ", ")
}

func (e *RecordsNotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// PartialFailureError reports a multi item order that failed after Completed
// items had already been decremented. Those decrements were rolled back.
type PartialFailureError struct {
	Completed int
	Cause     error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("order failed after %d item(s): %v", e.Completed, e.Cause)
}

func (e *PartialFailureError) Unwrap() error {
	return e.Cause
}

// SyncError means the external id could not be resolved. The record has
// already been marked INVALID when this is returned.
type SyncError struct {
	RecordID   string
	ExternalID string
	Err        error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync record %s with %q: %v", e.RecordID, e.ExternalID, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Retryable reports whether a failed job is worth delivering again.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrNotFound) &&
		!errors.Is(err, ErrInvalidInput) &&
		!errors.Is(err, ErrUnknownAdapter)
}
