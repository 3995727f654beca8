package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/pageforge/api/internal/factory"
	"github.com/pageforge/api/internal/model"
	"github.com/pageforge/api/internal/registry"
	"github.com/pageforge/api/internal/service"
)

// GenerationWorker executes pipeline runs dequeued from asynq. It observes
// the version stamp taken at the start transition and discards its own
// terminal result when the boss has moved the job in the meantime.
type GenerationWorker struct {
	registry     registry.Registry
	stateMachine *factory.StateMachine
	orchestrator *factory.Orchestrator
}

func NewGenerationWorker(reg registry.Registry, sm *factory.StateMachine, orch *factory.Orchestrator) *GenerationWorker {
	return &GenerationWorker{
		registry:     reg,
		stateMachine: sm,
		orchestrator: orch,
	}
}

// ProcessGenerate handles a full pipeline task.
func (w *GenerationWorker) ProcessGenerate(ctx context.Context, t *asynq.Task) error {
	payload, job, err := w.loadTask(ctx, t)
	if err != nil || job == nil {
		return err
	}

	log.Printf("Starting generation for job %s", job.ID)
	run := w.orchestrator.Run(ctx, job, w.authorityCheck(job.ID, payload.Version))

	to := model.JobStatusReadyForReview
	note := fmt.Sprintf("quality gate passed with score %.0f", run.Score)
	if !run.Passed {
		to = model.JobStatusFactoryFailed
		note = run.Error
	}

	w.finish(ctx, job.ID, payload.Version, to, note, run)
	return nil
}

// ProcessRevision handles a boss revision task: one revise call, no quality
// gate. The result always goes back to review unless the revise call failed.
func (w *GenerationWorker) ProcessRevision(ctx context.Context, t *asynq.Task) error {
	payload, job, err := w.loadTask(ctx, t)
	if err != nil || job == nil {
		return err
	}

	var prior *model.PipelineRun
	if len(job.PipelineResult) > 0 {
		prior = &model.PipelineRun{}
		if err := json.Unmarshal(job.PipelineResult, prior); err != nil {
			log.Printf("Job %s has an unreadable pipeline result: %v", job.ID, err)
			prior = nil
		}
	}

	log.Printf("Starting requested revision for job %s", job.ID)
	run := w.orchestrator.RunRevision(ctx, job, prior, payload.Instructions)

	to := model.JobStatusReadyForReview
	note := "requested revision applied"
	if !run.Passed {
		to = model.JobStatusFactoryFailed
		note = run.Error
	}

	w.finish(ctx, job.ID, payload.Version, to, note, run)
	return nil
}

// loadTask decodes the payload and fetches the job, skipping work that is no
// longer current. A nil job with nil error means the task should be dropped.
func (w *GenerationWorker) loadTask(ctx context.Context, t *asynq.Task) (*service.TaskPayload, *model.Job, error) {
	var payload service.TaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	job, err := w.registry.Get(ctx, payload.JobID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			log.Printf("Dropping task for unknown job %s", payload.JobID)
			return nil, nil, nil
		}
		return nil, nil, err
	}

	if job.Status != model.JobStatusProcessing || job.Version != payload.Version {
		log.Printf("Dropping stale task for job %s (status %s, version %d, expected %d)",
			job.ID, job.Status, job.Version, payload.Version)
		return nil, nil, nil
	}
	return &payload, job, nil
}

// finish applies the run's terminal transition. A stale rejection means the
// boss superseded this run; the result is discarded, never written over.
func (w *GenerationWorker) finish(ctx context.Context, jobID string, observedVersion int64, to model.JobStatus, note string, run *model.PipelineRun) {
	resultBytes, err := json.Marshal(run)
	if err != nil {
		log.Printf("Failed to marshal pipeline run for job %s: %v", jobID, err)
		return
	}

	_, err = w.stateMachine.Apply(ctx, factory.TransitionRequest{
		JobID:           jobID,
		To:              to,
		Actor:           model.ActorSystem,
		Note:            note,
		ObservedVersion: observedVersion,
		Mutate: func(j *model.Job) {
			j.PipelineResult = resultBytes
			j.RevisionCount = run.RevisionCount
			if to == model.JobStatusFactoryFailed {
				reason := run.Error
				j.FailureReason = &reason
			}
		},
	})
	if err != nil {
		var te *factory.TransitionError
		if errors.As(err, &te) && te.Stale {
			log.Printf("Discarding stale result for job %s: superseded while running", jobID)
			return
		}
		log.Printf("Failed to apply terminal transition for job %s: %v", jobID, err)
		return
	}
	log.Printf("Job %s finished as %s", jobID, to)
}

// authorityCheck lets the orchestrator stop at the next stage boundary once
// this run is no longer the authoritative run for the job.
func (w *GenerationWorker) authorityCheck(jobID string, version int64) factory.AuthorityCheck {
	return func(ctx context.Context) bool {
		job, err := w.registry.Get(ctx, jobID)
		if err != nil {
			return false
		}
		return job.Status == model.JobStatusProcessing && job.Version == version
	}
}
