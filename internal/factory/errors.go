package factory

import (
	"fmt"

	"github.com/pageforge/api/internal/model"
)

// TransitionError rejects an illegal or stale state change. The job is left
// untouched when one is returned.
type TransitionError struct {
	From  model.JobStatus
	To    model.JobStatus
	Actor model.Actor
	Stale bool
}

func (e *TransitionError) Error() string {
	if e.Stale {
		return fmt.Sprintf("stale transition %s -> %s by %s: job moved since it was observed", e.From, e.To, e.Actor)
	}
	return fmt.Sprintf("illegal transition %s -> %s by %s", e.From, e.To, e.Actor)
}

// ConflictError rejects a duplicate start or revision request against a job
// that is not in the expected status.
type ConflictError struct {
	JobID  string
	Status model.JobStatus
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("job %s is %s: %s", e.JobID, e.Status, e.Reason)
}

// Stage error kinds
type StageErrorKind string

const (
	StageErrMalformedOutput     StageErrorKind = "malformed_output"
	StageErrUpstreamUnavailable StageErrorKind = "upstream_unavailable"
	StageErrValidationFailed    StageErrorKind = "validation_failed"
)

// StageError reports a single failed stage call.
type StageError struct {
	Stage   model.StageKind
	Kind    StageErrorKind
	Message string
	Err     error
}

func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s stage %s: %s: %v", e.Stage, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s stage %s: %s", e.Stage, e.Kind, e.Message)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func malformedOutput(stage model.StageKind, message string, err error) *StageError {
	return &StageError{Stage: stage, Kind: StageErrMalformedOutput, Message: message, Err: err}
}

func upstreamUnavailable(stage model.StageKind, err error) *StageError {
	return &StageError{Stage: stage, Kind: StageErrUpstreamUnavailable, Message: "external stage call failed", Err: err}
}

func validationFailed(stage model.StageKind, message string) *StageError {
	return &StageError{Stage: stage, Kind: StageErrValidationFailed, Message: message}
}
