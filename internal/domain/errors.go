package domain

import "fmt"

// EngineError is the unified error type for the rating engine.
// Each error has a numeric code and human-readable message.
type EngineError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("rating error %d: %s", e.Code, e.Message)
}

// NewEngineError creates a new EngineError.
func NewEngineError(code int, msg string) *EngineError {
	return &EngineError{Code: code, Message: msg}
}

// WrapEngineError creates an EngineError that includes a cause.
func WrapEngineError(code int, msg string, cause error) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf("%s: %v", msg, cause)}
}

// ---- Configuration / policy errors (1000-1099) ----

var (
	ErrConfigInvalid    = &EngineError{Code: 1000, Message: "invalid configuration"}
	ErrPolicyIncomplete = &EngineError{Code: 1001, Message: "policy is missing a required weight, severity mapping, or threshold band"}
	ErrPolicyNotSeeded  = &EngineError{Code: 1002, Message: "no active scoring policy exists for the calculation date"}
	ErrUnknownAlgorithm = &EngineError{Code: 1003, Message: "no aggregation algorithm registered under that name"}
)

// ---- Repository / data errors (1100-1199) ----

var (
	ErrOrgNotFound       = &EngineError{Code: 1100, Message: "organization not found"}
	ErrInvalidAssessment = &EngineError{Code: 1101, Message: "assessment failed validation"}
	ErrInvalidRole       = &EngineError{Code: 1102, Message: "unknown organization role category"}
)

// ---- Scoring errors (1200-1299) ----

var (
	ErrNoScorableComponents = &EngineError{Code: 1200, Message: "no component has both data and a positive weight"}
	ErrNoCriticalComponents = &EngineError{Code: 1201, Message: "minimum-of-critical requires at least one critical component with data"}
	ErrNoThresholdBand      = &EngineError{Code: 1202, Message: "score falls outside every threshold band"}
)

// ---- Store errors (1300-1399) ----

var (
	ErrStoreInit = &EngineError{Code: 1300, Message: "failed to initialize store"}
)

// ---- Publish / conflict errors (1400-1499) ----

var (
	ErrRatingConflict = &EngineError{Code: 1400, Message: "a rating already exists for this organization and date"}
	ErrRatingNotFound = &EngineError{Code: 1401, Message: "no current rating for organization"}
)
