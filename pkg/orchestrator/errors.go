package orchestrator

import "fmt"

// ErrorKind classifies every failure the orchestrator surfaces. Callers
// branch on the kind to pick user messaging; they must not retry
// automatically on KindUsageLimitExceeded, since budgets self-heal only at
// month rollover.
type ErrorKind string

const (
	// KindNoKey means no active credential exists, or the provider rejected
	// the credential as invalid.
	KindNoKey ErrorKind = "no_key"
	// KindRateLimited means a local sliding-window ceiling tripped, or the
	// provider returned 429.
	KindRateLimited ErrorKind = "rate_limited"
	// KindUsageLimitExceeded means projected or actual monthly spend exceeds
	// the credential's budget.
	KindUsageLimitExceeded ErrorKind = "usage_limit_exceeded"
	// KindNetworkError means a transport failure, timeout, or non-standard
	// provider error.
	KindNetworkError ErrorKind = "network_error"
	// KindUnknown is anything uncategorized.
	KindUnknown ErrorKind = "unknown"
)

// AIError is the single tagged error type returned by Execute.
type AIError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AIError) Unwrap() error {
	return e.Err
}

func aiErr(kind ErrorKind, message string, err error) *AIError {
	return &AIError{Kind: kind, Message: message, Err: err}
}
