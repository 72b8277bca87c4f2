package service

import (
	"errors"
	"fmt"
	"strings"

	"shared-planner/internal/store"
)

var (
	// ErrValidation is the parent of every input validation failure. Nothing
	// has been written when it is returned.
	ErrValidation = errors.New("validation failed")

	ErrInvalidRecurrenceRange = fmt.Errorf("%w: recurrence end date is before the due date", ErrValidation)
	ErrUnknownRecurrenceKind  = fmt.Errorf("%w: unknown recurrence kind", ErrValidation)
	ErrRecurrenceTooLong      = fmt.Errorf("%w: recurrence range produces too many instances", ErrValidation)

	ErrTaskNotFound  = fmt.Errorf("task %w", store.ErrNotFound)
	ErrGroupNotFound = fmt.Errorf("group %w", store.ErrNotFound)
	ErrUserNotFound  = fmt.Errorf("user %w", store.ErrNotFound)

	ErrPermissionDenied = errors.New("permission denied")
	ErrGroupNameTaken   = fmt.Errorf("%w: group name is already taken", ErrValidation)
	ErrNotSelecting     = errors.New("selection mode is not active")
	ErrNoSession        = errors.New("no signed-in user")

	// ErrStoreUnavailable marks failures of live queries. The aggregated
	// view keeps its last good data when it reports this error.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// PartialBatchError reports a batch that stopped partway. Writes that
// succeeded are not rolled back.
type PartialBatchError struct {
	Op           string
	Succeeded    []string // identifiers written or deleted
	Failed       string   // identifier (or instance date) that failed
	NotAttempted []string // identifiers (or instance dates) never tried
	Err          error
}

func (e *PartialBatchError) Error() string {
	return fmt.Sprintf("%s stopped after %d of %d: %s failed: %v",
		e.Op, len(e.Succeeded), e.Total(), e.Failed, e.Err)
}

func (e *PartialBatchError) Unwrap() error {
	return e.Err
}

// Total is the size of the batch.
func (e *PartialBatchError) Total() int {
	return len(e.Succeeded) + 1 + len(e.NotAttempted)
}

// Unprocessed lists the failed item followed by the items never tried.
func (e *PartialBatchError) Unprocessed() []string {
	return append([]string{e.Failed}, e.NotAttempted...)
}

// Summary is the user-facing "completed vs failed" line.
func (e *PartialBatchError) Summary() string {
	return fmt.Sprintf("%d of %d done, not processed: %s",
		len(e.Succeeded), e.Total(), strings.Join(e.Unprocessed(), ", "))
}

// notFound maps store.ErrNotFound to the given domain error and keeps other
// errors as they are.
func notFound(err error, domain error, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", domain, id)
	}
	return err
}
