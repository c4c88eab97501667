package workflows

import (
	"fmt"
)

// Error severity levels for workflow errors
type ErrorSeverity string

const (
	// ErrorSeverityCritical indicates the workflow must fail
	ErrorSeverityCritical ErrorSeverity = "critical"
	// ErrorSeverityHigh indicates a major issue but workflow can continue
	ErrorSeverityHigh ErrorSeverity = "high"
	// ErrorSeverityLow indicates a minor issue that doesn't affect main functionality
	ErrorSeverityLow ErrorSeverity = "low"
)

// WorkflowError represents a structured error in a workflow
type WorkflowError struct {
	Operation string        // The operation that failed (e.g., "deliver_notification")
	Severity  ErrorSeverity // How severe the error is
	Err       error         // The underlying error
	Context   string        // Additional context about the error
}

// Error implements the error interface
func (e *WorkflowError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s failed: %s (%s)", e.Operation, e.Err.Error(), e.Context)
	}
	return fmt.Sprintf("%s failed: %s", e.Operation, e.Err.Error())
}

// Unwrap allows errors.Is and errors.As to work with WorkflowError
func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// NewWorkflowError creates a new workflow error with context
func NewWorkflowError(operation string, severity ErrorSeverity, err error, context string) *WorkflowError {
	return &WorkflowError{
		Operation: operation,
		Severity:  severity,
		Err:       err,
		Context:   context,
	}
}

// WrapActivityError wraps an activity error with operation context.
// Use this when an activity fails to provide consistent error messages.
func WrapActivityError(operation string, err error) error {
	return fmt.Errorf("%s: %w", operation, err)
}

// FormatErrorForResult formats an error for inclusion in workflow result.Errors slice.
// This creates a human-readable error message for end users.
func FormatErrorForResult(operation string, err error) string {
	return fmt.Sprintf("%s: %v", operation, err)
}
