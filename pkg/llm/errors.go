package llm

import (
	"fmt"
	"time"
)

// ErrorKind classifies invocation failures so callers can persist them
// as data instead of aborting a batch.
type ErrorKind string

const (
	ErrorKindNetwork   ErrorKind = "network"
	ErrorKindTimeout   ErrorKind = "timeout"
	ErrorKindAuth      ErrorKind = "auth"
	ErrorKindRateLimit ErrorKind = "rate_limit"
	ErrorKindAPI       ErrorKind = "api"
	ErrorKindMalformed ErrorKind = "malformed"
)

// InvocationError describes a failed completion call. Duration is the
// wall-clock time spent before the failure was observed.
type InvocationError struct {
	Kind     ErrorKind
	Message  string
	Duration time.Duration
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}
