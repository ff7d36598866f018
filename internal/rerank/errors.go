package rerank

import "fmt"

// ValidationError reports a request that fails preconditions. It is never
// retried and always surfaces immediately, before any backend call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
