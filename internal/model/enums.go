package model

// Job status
type JobStatus string

const (
	JobStatusDraft          JobStatus = "draft"
	JobStatusProcessing     JobStatus = "processing"
	JobStatusReadyForReview JobStatus = "ready_for_review"
	JobStatusApproved       JobStatus = "approved"
	JobStatusRejected       JobStatus = "rejected"
	JobStatusFactoryFailed  JobStatus = "factory_failed"
)

var ValidJobStatuses = []JobStatus{
	JobStatusDraft, JobStatusProcessing, JobStatusReadyForReview,
	JobStatusApproved, JobStatusRejected, JobStatusFactoryFailed,
}

// IsTerminal reports whether the job can never move again.
// ready_for_review and factory_failed are not terminal: the boss can still
// send the job back to processing.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusApproved || s == JobStatusRejected
}

// IsRunSettled reports whether the most recent pipeline run has concluded,
// i.e. a progress subscriber should receive a terminal event immediately.
func (s JobStatus) IsRunSettled() bool {
	return s == JobStatusReadyForReview || s == JobStatusFactoryFailed ||
		s == JobStatusApproved || s == JobStatusRejected
}

// Actor identifies who initiates a transition
type Actor string

const (
	ActorBoss   Actor = "boss"
	ActorSystem Actor = "system"
	ActorAI     Actor = "ai"
)

// Pipeline stages
type StageKind string

const (
	StageNormalize StageKind = "normalize"
	StageSpecify   StageKind = "specify"
	StageRender    StageKind = "render"
	StageValidate  StageKind = "validate"
	StageRevise    StageKind = "revise"
)

var ValidStageKinds = []StageKind{
	StageNormalize, StageSpecify, StageRender, StageValidate, StageRevise,
}

// Review decisions
type ReviewDecision string

const (
	ReviewApprove ReviewDecision = "approve"
	ReviewReject  ReviewDecision = "reject"
)
