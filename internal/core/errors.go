package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation ErrorCategory = "validation" // Invalid input or graph contract violation
	ErrCatConsensus  ErrorCategory = "consensus"  // Agreement below threshold
	ErrCatExecution  ErrorCategory = "execution"  // Runtime task failure
	ErrCatTimeout    ErrorCategory = "timeout"    // Operation timed out
	ErrCatTool       ErrorCategory = "tool"       // Tool provisioning failure
	ErrCatProvider   ErrorCategory = "provider"   // External collaborator failure
	ErrCatState      ErrorCategory = "state"      // State corruption/conflict
	ErrCatInternal   ErrorCategory = "internal"   // Unexpected internal error
)

// DomainError represents a structured error from the domain layer.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrState creates a state error.
func ErrState(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatState,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrTimeout creates a timeout error.
func ErrTimeout(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatTimeout,
		Code:      "TIMEOUT",
		Message:   message,
		Retryable: true,
	}
}

// ErrProvider creates an external collaborator error.
func ErrProvider(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatProvider,
		Code:      "PROVIDER_FAILED",
		Message:   message,
		Retryable: true,
	}
}

// ErrInsufficientConsensus indicates agreement fell below the threshold.
func ErrInsufficientConsensus(ratio, threshold float64, dissent int) *DomainError {
	return &DomainError{
		Category:  ErrCatConsensus,
		Code:      CodeInsufficientConsensus,
		Message:   fmt.Sprintf("agreement ratio %.2f is below threshold %.2f (%d dissenting candidates)", ratio, threshold, dissent),
		Retryable: false,
		Details: map[string]interface{}{
			"agreement_ratio": ratio,
			"threshold":       threshold,
			"dissent_count":   dissent,
		},
	}
}

// ErrCyclicWorkflow indicates the step set contains a dependency cycle.
// The cycle slice names the steps on at least one detected cycle.
func ErrCyclicWorkflow(cycle []StepID) *DomainError {
	names := make([]string, len(cycle))
	for i, id := range cycle {
		names[i] = string(id)
	}
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      CodeCyclicWorkflow,
		Message:   fmt.Sprintf("workflow contains a dependency cycle: %s", strings.Join(names, " -> ")),
		Retryable: false,
		Details: map[string]interface{}{
			"cycle": names,
		},
	}
}

// ErrEmptyWorkflow indicates no steps survived synthesis and critique.
func ErrEmptyWorkflow(reason string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      CodeEmptyWorkflow,
		Message:   "no steps survived workflow synthesis: " + reason,
		Retryable: false,
	}
}

// ErrToolCreation indicates a tool could not be provisioned or validated.
func ErrToolCreation(signature string, cause error) *DomainError {
	return &DomainError{
		Category:  ErrCatTool,
		Code:      CodeToolCreation,
		Message:   fmt.Sprintf("tool creation failed for signature %q", signature),
		Retryable: false,
		Cause:     cause,
		Details: map[string]interface{}{
			"signature": signature,
		},
	}
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource, id string) *DomainError {
	return &DomainError{
		Category:  ErrCatState,
		Code:      "NOT_FOUND",
		Message:   fmt.Sprintf("%s not found: %s", resource, id),
		Retryable: false,
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Retryable
	}
	return false
}

// GetCategory extracts the error category.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatInternal
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}

// FailureKind classifies a task failure for recovery decisions.
type FailureKind string

const (
	FailureTimeout          FailureKind = "timeout"
	FailureToolUnavailable  FailureKind = "tool_unavailable"
	FailureDependencyFailed FailureKind = "dependency_failed"
	FailureProviderError    FailureKind = "provider_error"
)

// ClassifyFailure maps an execution error to a failure kind.
func ClassifyFailure(err error) FailureKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	switch GetCategory(err) {
	case ErrCatTimeout:
		return FailureTimeout
	case ErrCatTool:
		return FailureToolUnavailable
	default:
		return FailureProviderError
	}
}

// Predefined error codes
const (
	CodeInsufficientConsensus = "INSUFFICIENT_CONSENSUS"
	CodeCyclicWorkflow        = "CYCLIC_WORKFLOW"
	CodeEmptyWorkflow         = "EMPTY_WORKFLOW"
	CodeToolCreation          = "TOOL_CREATION_FAILED"
	CodeDuplicateStep         = "DUPLICATE_STEP"
	CodeUnknownDependency     = "UNKNOWN_DEPENDENCY"
	CodeSelfDependency        = "SELF_DEPENDENCY"
	CodeDuplicateResult       = "DUPLICATE_RESULT"
	CodeInvalidState          = "INVALID_STATE"
	CodeInvalidConfig         = "INVALID_CONFIG"
	CodeNoProposals           = "NO_PROPOSALS"
)
