package agent

import (
	"errors"
	"fmt"
)

// Common sentinel errors for orchestration.
var (
	// ErrNoProvider indicates no generation provider is configured.
	ErrNoProvider = errors.New("no provider configured")

	// ErrToolNotFound indicates a requested tool doesn't exist.
	ErrToolNotFound = errors.New("tool not found")
)

var errTranscriptTooLarge = errors.New("response text exceeds maximum size")

// LoopPhase is a distinct phase in the orchestration loop lifecycle.
type LoopPhase string

const (
	PhaseInit         LoopPhase = "init"
	PhaseStream       LoopPhase = "stream"
	PhaseExecuteTools LoopPhase = "execute_tools"
)

// LoopError carries the phase and iteration where a turn failed.
type LoopError struct {
	Phase     LoopPhase
	Iteration int
	Cause     error
}

// Error implements the error interface.
func (e *LoopError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("loop error at %s (iteration %d): %v", e.Phase, e.Iteration, e.Cause)
	}
	return fmt.Sprintf("loop error at %s (iteration %d)", e.Phase, e.Iteration)
}

// Unwrap returns the underlying error.
func (e *LoopError) Unwrap() error {
	return e.Cause
}
