package engine

import (
	"errors"
	"fmt"
	"strings"
)

// CapabilityGateError is returned when instantiation is attempted on a locked
// template. Retryable once the missing capabilities unlock.
type CapabilityGateError struct {
	TemplateID string
	Missing    []string
}

func (e CapabilityGateError) Error() string {
	return fmt.Sprintf("template %s is locked; missing capabilities: %s", e.TemplateID, strings.Join(e.Missing, ", "))
}

// InvalidTransitionError is returned for illegal lifecycle jumps. Surfaced to
// the caller, never auto-retried.
type InvalidTransitionError struct {
	Current   string
	Requested string
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid move transition %s -> %s", e.Current, e.Requested)
}

// ValidationError covers user-correctable input problems on manual move
// creation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ErrGenerationTimeout marks a recommendation pass that exceeded its latency
// budget. Callers receive whatever candidates were scored before the cutoff.
var ErrGenerationTimeout = errors.New("recommendation generation exceeded latency budget")
