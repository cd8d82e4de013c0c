package query

import (
	"fmt"

	"github.com/c360studio/kgraph/llm"
)

// ExternalServiceError is a user-readable degraded-service failure. The
// CLI shows Error() directly; Unwrap keeps the underlying fault for
// logs.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	if llm.IsTransient(e.Err) {
		return fmt.Sprintf("the %s is temporarily unavailable or rate-limited; please try again shortly", e.Service)
	}
	return fmt.Sprintf("the %s could not process the request; check your configuration and connectivity", e.Service)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

func wrapServiceError(service string, err error) error {
	return &ExternalServiceError{Service: service, Err: err}
}
