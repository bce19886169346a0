package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeParse            = "PARSE_ERROR"
	ErrCodeUnknownReference = "UNKNOWN_REFERENCE"
	ErrCodeUnknownFunction  = "UNKNOWN_FUNCTION"
	ErrCodeTypeMismatch     = "TYPE_MISMATCH"
	ErrCodeArityMismatch    = "ARITY_MISMATCH"
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeCycleDetected    = "CYCLE_DETECTED"
	ErrCodeRuntimeCycle     = "CYCLE_DETECTED_AT_RUNTIME"
	ErrCodeConfigEvaluation = "CONFIG_EVALUATION_ERROR"
	ErrCodeExternalAction   = "EXTERNAL_ACTION_ERROR"
	ErrCodeTimeout          = "TIMEOUT_ERROR"
	ErrCodeTriggerRejected  = "TRIGGER_REJECTED"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeCancelled        = "CANCELLED"
	ErrCodeStore            = "STORE_ERROR"
)

// Validation issue codes. Each structural defect class has its own code so
// callers can tell a dangling edge from a duplicate trigger without string
// matching.
const (
	ErrCodeMissingTrigger   = "MISSING_TRIGGER"
	ErrCodeDuplicateTrigger = "DUPLICATE_TRIGGER"
	ErrCodeDanglingEdge     = "DANGLING_EDGE"
	ErrCodeBranchArity      = "BRANCH_ARITY"
)

// TrailError is the structured error type for all trail operations.
// Formula and execution failures are always reported as values of this
// type, never as panics.
type TrailError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	NodeID  string         `json:"node_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *TrailError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *TrailError) Unwrap() error {
	return e.Cause
}

// NewError creates a new TrailError.
func NewError(code, message string) *TrailError {
	return &TrailError{Code: code, Message: message}
}

// NewErrorf creates a new TrailError with a formatted message.
func NewErrorf(code, format string, args ...any) *TrailError {
	return &TrailError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches a node ID to the error.
func (e *TrailError) WithNode(nodeID string) *TrailError {
	e.NodeID = nodeID
	return e
}

// WithCause attaches an underlying cause.
func (e *TrailError) WithCause(err error) *TrailError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *TrailError) WithDetails(details map[string]any) *TrailError {
	e.Details = details
	return e
}
