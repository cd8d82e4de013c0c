package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/c360studio/kgraph/llm"
)

// Reason classifies why an extraction call failed.
type Reason string

const (
	// ReasonTimeout means the oracle call exceeded its deadline.
	ReasonTimeout Reason = "timeout"

	// ReasonRateLimited means the oracle rejected the call due to load,
	// even after retries.
	ReasonRateLimited Reason = "rate_limited"

	// ReasonUnavailable means the oracle could not be reached or
	// rejected the request outright.
	ReasonUnavailable Reason = "oracle_unavailable"

	// ReasonMalformed means the oracle responded but the response did
	// not contain a parseable triplet list.
	ReasonMalformed Reason = "malformed_response"
)

// ExtractionError reports a failed extraction call. It is always returned
// instead of an empty triplet list, so callers can distinguish "nothing
// found" from "the call failed".
type ExtractionError struct {
	Reason Reason
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("extraction failed (%s)", e.Reason)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// classify maps an oracle call error to an extraction failure reason.
func classify(err error) Reason {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case llm.IsTransient(err):
		return ReasonRateLimited
	default:
		return ReasonUnavailable
	}
}
