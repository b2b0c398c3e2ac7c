package chronos

import (
	"errors"
	"fmt"
)

// SchedulerError is returned synchronously by registration operations.
// The tick driver itself never returns errors.
type SchedulerError struct {
	// Code identifies the error category.
	Code SchedulerErrorCode

	// Message is a human-readable description.
	Message string

	// Task is the name of the task or generator being registered.
	Task string

	// Parent is the parent name of a queued task (UNKNOWN_PARENT only).
	Parent string
}

// SchedulerErrorCode categorizes scheduler errors.
type SchedulerErrorCode string

const (
	// ErrCodeInvalidTask indicates a step or continuation that cannot be invoked.
	ErrCodeInvalidTask SchedulerErrorCode = "INVALID_TASK"

	// ErrCodeUnknownParent indicates a queued task whose parent is neither
	// active nor queued.
	ErrCodeUnknownParent SchedulerErrorCode = "UNKNOWN_PARENT"

	// ErrCodeInvalidFrequency indicates a zero, NaN or infinite frequency.
	ErrCodeInvalidFrequency SchedulerErrorCode = "INVALID_FREQUENCY"
)

// Error implements the error interface.
func (e *SchedulerError) Error() string {
	if e.Task != "" && e.Parent != "" {
		return fmt.Sprintf("%s: %s (task=%s, parent=%s)", e.Code, e.Message, e.Task, e.Parent)
	}
	if e.Task != "" {
		return fmt.Sprintf("%s: %s (task=%s)", e.Code, e.Message, e.Task)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsInvalidTaskError returns true if err is an INVALID_TASK error.
// Uses errors.As to handle wrapped errors.
func IsInvalidTaskError(err error) bool {
	return hasCode(err, ErrCodeInvalidTask)
}

// IsUnknownParentError returns true if err is an UNKNOWN_PARENT error.
func IsUnknownParentError(err error) bool {
	return hasCode(err, ErrCodeUnknownParent)
}

// IsInvalidFrequencyError returns true if err is an INVALID_FREQUENCY error.
func IsInvalidFrequencyError(err error) bool {
	return hasCode(err, ErrCodeInvalidFrequency)
}

func hasCode(err error, code SchedulerErrorCode) bool {
	var se *SchedulerError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// NewInvalidTaskError creates a SchedulerError for a nil step.
func NewInvalidTaskError(name string) *SchedulerError {
	return &SchedulerError{
		Code:    ErrCodeInvalidTask,
		Message: "step is not a function",
		Task:    name,
	}
}

// NewUnknownParentError creates a SchedulerError for a missing parent.
func NewUnknownParentError(name, parent string) *SchedulerError {
	return &SchedulerError{
		Code:    ErrCodeUnknownParent,
		Message: "parent task is not attached",
		Task:    name,
		Parent:  parent,
	}
}

// NewInvalidFrequencyError creates a SchedulerError for an unusable frequency.
func NewInvalidFrequencyError(hz float64) *SchedulerError {
	return &SchedulerError{
		Code:    ErrCodeInvalidFrequency,
		Message: fmt.Sprintf("frequency must be a finite non-zero number, got %v", hz),
	}
}
