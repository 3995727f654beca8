package model

import "time"

// Job is the unit of work: one content submission on its way to a generated
// artifact. Status is the single authoritative lifecycle field; Version is an
// optimistic-concurrency stamp bumped on every accepted transition.
type Job struct {
	ID             string       `json:"id"`
	Status         JobStatus    `json:"status"`
	Version        int64        `json:"version"`
	Title          string       `json:"title,omitempty"`
	SourceContent  string       `json:"sourceContent"`
	PipelineResult []byte       `json:"pipelineResult,omitempty"` // last PipelineRun, stored as JSON
	FailureReason  *string      `json:"failureReason,omitempty"`
	RevisionCount  int          `json:"revisionCount"`
	Transitions    []Transition `json:"transitions,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
	ProcessingAt   *time.Time   `json:"processingAt,omitempty"`
	CompletedAt    *time.Time   `json:"completedAt,omitempty"`
}

// Transition is one audited state change.
type Transition struct {
	From  JobStatus `json:"from"`
	To    JobStatus `json:"to"`
	Actor Actor     `json:"actor"`
	Note  string    `json:"note,omitempty"`
	At    time.Time `json:"at"`
}

// PipelineRun is the outcome of one orchestrator execution for a job.
// RevisionCount is the number of quality-gate attempts the run consumed.
type PipelineRun struct {
	JobID         string         `json:"jobId"`
	Attempts      []StageAttempt `json:"attempts"`
	Passed        bool           `json:"passed"`
	RevisionCount int            `json:"revisionCount"`
	Artifact      string         `json:"artifact,omitempty"`
	Score         float64        `json:"score,omitempty"`
	Error         string         `json:"error,omitempty"`
	StartedAt     time.Time      `json:"startedAt"`
	CompletedAt   time.Time      `json:"completedAt"`
}

// StageAttempt records one quality-gate iteration.
type StageAttempt struct {
	Stage     StageKind `json:"stage"`
	Attempt   int       `json:"attempt"`
	Passed    bool      `json:"passed"`
	Score     float64   `json:"score"`
	TopIssues []string  `json:"topIssues,omitempty"`
}

// ProgressEvent describes pipeline advancement. Immutable; produced by the
// orchestrator, consumed by zero or more stream subscribers.
type ProgressEvent struct {
	Stage       StageKind `json:"stage"`
	Message     string    `json:"message"`
	Attempt     int       `json:"attempt,omitempty"`
	MaxAttempts int       `json:"maxAttempts,omitempty"`
	Score       *float64  `json:"score,omitempty"`
}
