package model

import "time"

// JobCreateRequest is the intake payload for a new submission.
type JobCreateRequest struct {
	Title         string `json:"title" validate:"omitempty,max=200"`
	SourceContent string `json:"sourceContent" validate:"required,min=20"`
}

// JobCreateResponse returns the created draft job.
type JobCreateResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// GenerateResponse acknowledges an accepted generation start.
type GenerateResponse struct {
	JobID  string    `json:"jobId"`
	Status JobStatus `json:"status"`
}

// JobStatusResponse reports a job's lifecycle state and audit trail.
type JobStatusResponse struct {
	JobID         string       `json:"jobId"`
	Status        JobStatus    `json:"status"`
	Title         string       `json:"title,omitempty"`
	FailureReason *string      `json:"failureReason,omitempty"`
	RevisionCount int          `json:"revisionCount"`
	Transitions   []Transition `json:"transitions,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	ProcessingAt  *time.Time   `json:"processingAt,omitempty"`
	CompletedAt   *time.Time   `json:"completedAt,omitempty"`
}

// ArtifactResponse returns the artifact and scorecard of the last run. The
// artifact of a failed run is still returned so it can be inspected.
type ArtifactResponse struct {
	JobID         string         `json:"jobId"`
	Status        JobStatus      `json:"status"`
	Passed        bool           `json:"passed"`
	Artifact      string         `json:"artifact"`
	Score         float64        `json:"score"`
	RevisionCount int            `json:"revisionCount"`
	Attempts      []StageAttempt `json:"attempts,omitempty"`
}

// ReviewRequest is the boss's approve/reject decision.
type ReviewRequest struct {
	Decision ReviewDecision `json:"decision" validate:"required,oneof=approve reject"`
	Note     string         `json:"note" validate:"omitempty,max=2000"`
}

// ReviewResponse acknowledges an applied review decision.
type ReviewResponse struct {
	JobID  string    `json:"jobId"`
	Status JobStatus `json:"status"`
}

// RevisionRequest carries the boss's free-text revision instructions.
type RevisionRequest struct {
	Instructions string `json:"instructions" validate:"required,min=5,max=4000"`
}

// RevisionResponse acknowledges an accepted revision request.
type RevisionResponse struct {
	JobID  string    `json:"jobId"`
	Status JobStatus `json:"status"`
}
