package provider

import (
	"context"
	"fmt"
)

// Provider is the interface that all LLM implementations must satisfy
type Provider interface {
	// AnalyzeCompliance evaluates extracted memorandum text against the
	// Actuarial Standards of Practice and returns the compliance narrative.
	AnalyzeCompliance(ctx context.Context, text string) (string, error)
}

// AnalysisError reports a failed analysis call. Retriable failures (timeout,
// rate limit, upstream outage) may be retried a bounded number of times
// inside the adapter; terminal failures propagate immediately.
type AnalysisError struct {
	Reason    string
	Retriable bool
	Err       error
}

func (e *AnalysisError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("analysis: %s: %v", e.Reason, e.Err)
	}
	return "analysis: " + e.Reason
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// Retriable creates a transient analysis failure.
func Retriable(reason string, err error) *AnalysisError {
	return &AnalysisError{Reason: reason, Retriable: true, Err: err}
}

// Terminal creates a non-retriable analysis failure.
func Terminal(reason string, err error) *AnalysisError {
	return &AnalysisError{Reason: reason, Retriable: false, Err: err}
}
