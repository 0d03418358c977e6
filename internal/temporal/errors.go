package temporal

import (
	"errors"
	"fmt"

	"github.com/roach88/temporal/internal/ir"
)

// LifecycleError reports a request refused by a lifecycle rule.
//
// Lifecycle errors are expected outcomes, not faults: the store was not
// modified and callers are meant to branch on Code (see IsInvalidDateRange
// and IsUpdateNotAllowed).
type LifecycleError struct {
	// Code identifies the rule that refused the request.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// RecordID identifies the affected record (empty for creates).
	RecordID string

	// Group identifies the affected temporal group.
	Group ir.GroupKey

	// Details contains additional context.
	Details map[string]string
}

// ErrorCode categorises lifecycle errors.
type ErrorCode string

const (
	// ErrCodeInvalidDateRange indicates a start in the past (beyond the
	// tolerance window) or an end not strictly after the start.
	ErrCodeInvalidDateRange ErrorCode = "INVALID_DATE_RANGE"

	// ErrCodeUpdateNotAllowed indicates an update outside the allow-list.
	ErrCodeUpdateNotAllowed ErrorCode = "UPDATE_NOT_ALLOWED"
)

// Error implements the error interface.
func (e *LifecycleError) Error() string {
	if e.RecordID != "" {
		return fmt.Sprintf("%s: %s (record=%s)", e.Code, e.Message, e.RecordID)
	}
	if e.Group.Model != "" {
		return fmt.Sprintf("%s: %s (group=%s)", e.Code, e.Message, e.Group)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsInvalidDateRange returns true if err is an invalid date range error.
// Uses errors.As to handle wrapped errors.
func IsInvalidDateRange(err error) bool {
	var le *LifecycleError
	if errors.As(err, &le) {
		return le.Code == ErrCodeInvalidDateRange
	}
	return false
}

// IsUpdateNotAllowed returns true if err is an update restriction error.
// Uses errors.As to handle wrapped errors.
func IsUpdateNotAllowed(err error) bool {
	var le *LifecycleError
	if errors.As(err, &le) {
		return le.Code == ErrCodeUpdateNotAllowed
	}
	return false
}

// IsLifecycleError returns true for any lifecycle rule refusal.
func IsLifecycleError(err error) bool {
	var le *LifecycleError
	return errors.As(err, &le)
}

// NewInvalidDateRangeError creates a LifecycleError for a bad interval.
func NewInvalidDateRangeError(group ir.GroupKey, recordID, message string) *LifecycleError {
	return &LifecycleError{
		Code:     ErrCodeInvalidDateRange,
		Message:  message,
		RecordID: recordID,
		Group:    group,
	}
}

// NewUpdateNotAllowedError creates a LifecycleError for a refused update.
func NewUpdateNotAllowedError(rec ir.Record, reason string, fields []string) *LifecycleError {
	return &LifecycleError{
		Code:     ErrCodeUpdateNotAllowed,
		Message:  reason,
		RecordID: rec.ID,
		Group:    rec.Group,
		Details: map[string]string{
			"fields": fmt.Sprintf("%v", fields),
		},
	}
}
