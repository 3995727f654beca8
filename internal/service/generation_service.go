package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/pageforge/api/internal/factory"
	"github.com/pageforge/api/internal/model"
	"github.com/pageforge/api/internal/registry"
)

const (
	TaskTypeGenerate = "factory:generate"
	TaskTypeRevision = "factory:revision"
)

// TaskPayload is the wire format for factory tasks. Version carries the
// stamp observed right after the start transition so the worker's terminal
// transition can be rejected as stale if the boss moved the job meanwhile.
type TaskPayload struct {
	JobID        string `json:"jobId"`
	Version      int64  `json:"version"`
	Instructions string `json:"instructions,omitempty"`
}

// TaskEnqueuer is the slice of asynq.Client the service needs; tests inject
// a fake so no Redis is required.
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// GenerationService owns the job lifecycle operations: intake, generation
// start, boss review, and revision requests. All status changes go through
// the state machine; the pipeline itself runs in the worker.
type GenerationService struct {
	registry     registry.Registry
	stateMachine *factory.StateMachine
	enqueuer     TaskEnqueuer
}

func NewGenerationService(reg registry.Registry, sm *factory.StateMachine, enqueuer TaskEnqueuer) *GenerationService {
	return &GenerationService{
		registry:     reg,
		stateMachine: sm,
		enqueuer:     enqueuer,
	}
}

// CreateJob records a new submission as a draft job.
func (s *GenerationService) CreateJob(ctx context.Context, req *model.JobCreateRequest) (*model.JobCreateResponse, error) {
	now := time.Now()
	job := &model.Job{
		ID:            uuid.New().String(),
		Status:        model.JobStatusDraft,
		Title:         req.Title,
		SourceContent: req.SourceContent,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.registry.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	return &model.JobCreateResponse{
		JobID:     job.ID,
		Status:    job.Status,
		CreatedAt: now,
	}, nil
}

// StartGeneration moves the job into processing and enqueues the pipeline.
// The start transition itself is the mutual-exclusion lock: if another caller
// already moved the job, this returns a conflict instead of a second run.
func (s *GenerationService) StartGeneration(ctx context.Context, jobID string) (*model.GenerateResponse, error) {
	job, err := s.stateMachine.Apply(ctx, factory.TransitionRequest{
		JobID:           jobID,
		To:              model.JobStatusProcessing,
		Actor:           model.ActorSystem,
		Note:            "generation started",
		ObservedVersion: -1,
		Mutate: func(j *model.Job) {
			j.RevisionCount = 0
		},
	})
	if err != nil {
		if te, ok := err.(*factory.TransitionError); ok {
			return nil, &factory.ConflictError{
				JobID:  jobID,
				Status: te.From,
				Reason: "generation cannot start from this status",
			}
		}
		return nil, err
	}

	if err := s.enqueue(TaskTypeGenerate, &TaskPayload{JobID: jobID, Version: job.Version}); err != nil {
		return nil, fmt.Errorf("failed to enqueue generation: %w", err)
	}

	return &model.GenerateResponse{JobID: jobID, Status: job.Status}, nil
}

// RequestRevision re-enters the pipeline with the boss's free-text
// instructions. Only legal from ready_for_review.
func (s *GenerationService) RequestRevision(ctx context.Context, jobID, instructions string) (*model.RevisionResponse, error) {
	job, err := s.registry.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusReadyForReview {
		return nil, &factory.ConflictError{
			JobID:  jobID,
			Status: job.Status,
			Reason: "revision can only be requested for a job awaiting review",
		}
	}

	job, err = s.stateMachine.Apply(ctx, factory.TransitionRequest{
		JobID:           jobID,
		To:              model.JobStatusProcessing,
		Actor:           model.ActorBoss,
		Note:            instructions,
		ObservedVersion: -1,
	})
	if err != nil {
		if te, ok := err.(*factory.TransitionError); ok {
			return nil, &factory.ConflictError{
				JobID:  jobID,
				Status: te.From,
				Reason: "revision can only be requested for a job awaiting review",
			}
		}
		return nil, err
	}

	if err := s.enqueue(TaskTypeRevision, &TaskPayload{
		JobID:        jobID,
		Version:      job.Version,
		Instructions: instructions,
	}); err != nil {
		return nil, fmt.Errorf("failed to enqueue revision: %w", err)
	}

	return &model.RevisionResponse{JobID: jobID, Status: job.Status}, nil
}

// Review applies the boss's approve or reject decision.
func (s *GenerationService) Review(ctx context.Context, jobID string, decision model.ReviewDecision, note string) (*model.ReviewResponse, error) {
	to := model.JobStatusApproved
	if decision == model.ReviewReject {
		to = model.JobStatusRejected
	}

	job, err := s.stateMachine.Apply(ctx, factory.TransitionRequest{
		JobID:           jobID,
		To:              to,
		Actor:           model.ActorBoss,
		Note:            note,
		ObservedVersion: -1,
	})
	if err != nil {
		return nil, err
	}

	return &model.ReviewResponse{JobID: jobID, Status: job.Status}, nil
}

// GetStatus returns the job's lifecycle state including its audit trail.
func (s *GenerationService) GetStatus(ctx context.Context, jobID string) (*model.JobStatusResponse, error) {
	job, err := s.registry.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &model.JobStatusResponse{
		JobID:         job.ID,
		Status:        job.Status,
		Title:         job.Title,
		FailureReason: job.FailureReason,
		RevisionCount: job.RevisionCount,
		Transitions:   job.Transitions,
		CreatedAt:     job.CreatedAt,
		ProcessingAt:  job.ProcessingAt,
		CompletedAt:   job.CompletedAt,
	}, nil
}

// GetArtifact returns the artifact of the last pipeline run. A failed run's
// artifact is still returned so it can be inspected.
func (s *GenerationService) GetArtifact(ctx context.Context, jobID string) (*model.ArtifactResponse, error) {
	job, err := s.registry.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if len(job.PipelineResult) == 0 {
		return nil, &factory.ConflictError{
			JobID:  jobID,
			Status: job.Status,
			Reason: "no pipeline run has produced an artifact yet",
		}
	}

	var run model.PipelineRun
	if err := json.Unmarshal(job.PipelineResult, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pipeline result: %w", err)
	}

	return &model.ArtifactResponse{
		JobID:         job.ID,
		Status:        job.Status,
		Passed:        run.Passed,
		Artifact:      run.Artifact,
		Score:         run.Score,
		RevisionCount: job.RevisionCount,
		Attempts:      run.Attempts,
	}, nil
}

func (s *GenerationService) enqueue(taskType string, payload *TaskPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.enqueuer.Enqueue(asynq.NewTask(taskType, data),
		asynq.Queue("factory"),
		asynq.MaxRetry(0),
		asynq.Retention(24*time.Hour),
	)
	return err
}
