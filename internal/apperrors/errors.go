package apperrors

import (
	"errors"
	"fmt"
)

// Taxonomy codes surfaced on every API response and logged with every
// recovered failure.
const (
	CodeInputValidation             = "INPUT_VALIDATION"
	CodeResolutionMissing           = "RESOLUTION_MISSING"
	CodeLeagueRequired              = "LEAGUE_REQUIRED"
	CodeSchemaMismatch              = "SCHEMA_MISMATCH"
	CodeParseSkip                   = "PARSE_SKIP"
	CodeUpstreamUnavailable         = "UPSTREAM_UNAVAILABLE"
	CodeRateLimited                 = "RATE_LIMITED"
	CodeNoActiveModel               = "NO_ACTIVE_MODEL"
	CodeInsufficientTeamData        = "INSUFFICIENT_TEAM_DATA"
	CodeInsufficientTrainingSamples = "INSUFFICIENT_TRAINING_SAMPLES"
	CodeDegenerateProbability       = "DEGENERATE_PROBABILITY"
	CodeCancelled                   = "CANCELLED"
	CodeConflictActivation          = "CONFLICT_ACTIVATION"
	CodeNotFound                    = "NOT_FOUND"
	CodeInternal                    = "INTERNAL"
)

// Error is a taxonomy-coded error. Handlers translate it to the HTTP
// surface; internal callers branch on the code.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(err error, code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the taxonomy code of err, or CodeInternal when err
// carries none.
func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries the given taxonomy code.
func HasCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}
