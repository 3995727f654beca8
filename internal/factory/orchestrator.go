package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/pageforge/api/internal/model"
)

// StageInvoker abstracts the invoker so tests can script stage outcomes.
type StageInvoker interface {
	Invoke(ctx context.Context, kind model.StageKind, in *model.StageInput) (*StageOutput, error)
}

// ProgressSink receives pipeline advancement events. The orchestrator does
// not know whether zero or many consumers are listening.
type ProgressSink interface {
	Progress(jobID string, ev model.ProgressEvent)
	Complete(jobID string, run *model.PipelineRun)
	Failed(jobID string, run *model.PipelineRun)
}

// AuthorityCheck reports whether this run is still the authoritative run for
// its job. The orchestrator consults it at stage boundaries so a superseded
// run stops cooperatively instead of finishing behind the boss's back.
type AuthorityCheck func(ctx context.Context) bool

// Orchestrator drives a job's source content through the fixed stage order
// Normalize -> Specify -> Render -> Validate -> (Revise), owns the bounded
// quality-gate retry loop, and reports progress. Terminal status changes
// belong to the caller; the orchestrator only returns the run.
type Orchestrator struct {
	invoker StageInvoker
	sink    ProgressSink
	gate    GateConfig
}

func NewOrchestrator(invoker StageInvoker, sink ProgressSink, gate GateConfig) *Orchestrator {
	return &Orchestrator{invoker: invoker, sink: sink, gate: gate.withDefaults()}
}

var upstreamStages = []model.StageKind{model.StageNormalize, model.StageSpecify, model.StageRender}

// Run executes the full pipeline for a job and returns the run outcome.
// Upstream stage errors are fatal; validate/revise errors are absorbed into
// the retry loop as failed attempts. The last artifact produced is retained
// even when the run fails, so a human can still inspect it.
func (o *Orchestrator) Run(ctx context.Context, job *model.Job, authoritative AuthorityCheck) *model.PipelineRun {
	run := &model.PipelineRun{JobID: job.ID, StartedAt: time.Now()}
	in := &model.StageInput{SourceContent: job.SourceContent}

	for _, stage := range upstreamStages {
		if !o.stillAuthoritative(ctx, authoritative) {
			return o.fail(job.ID, run, "run superseded by a manual transition")
		}

		o.sink.Progress(job.ID, model.ProgressEvent{Stage: stage, Message: stageStartMessage(stage)})
		out, err := o.invoker.Invoke(ctx, stage, in)
		if err != nil {
			return o.fail(job.ID, run, err.Error())
		}
		o.sink.Progress(job.ID, model.ProgressEvent{Stage: stage, Message: stageDoneMessage(stage)})

		switch stage {
		case model.StageNormalize:
			in.Normalized = out.Normalized
		case model.StageSpecify:
			in.Spec = out.Spec
		case model.StageRender:
			in.Artifact = out.Artifact
			run.Artifact = out.Artifact
		}
	}

	gate := newQualityGate(o.gate)
	var lastErr error

	for {
		if !o.stillAuthoritative(ctx, authoritative) {
			run.RevisionCount = gate.attempt
			return o.fail(job.ID, run, "run superseded by a manual transition")
		}

		attempt := gate.begin()
		o.sink.Progress(job.ID, model.ProgressEvent{
			Stage:       model.StageValidate,
			Message:     fmt.Sprintf("Scoring artifact (attempt %d of %d)...", attempt, o.gate.MaxAttempts),
			Attempt:     attempt,
			MaxAttempts: o.gate.MaxAttempts,
		})

		out, err := o.invoker.Invoke(ctx, model.StageValidate, in)
		passed := false
		if err != nil {
			// Transient validate errors consume a retry slot rather than
			// aborting the whole run.
			lastErr = err
			run.Attempts = append(run.Attempts, model.StageAttempt{
				Stage:     model.StageValidate,
				Attempt:   attempt,
				TopIssues: []string{err.Error()},
			})
		} else {
			lastErr = nil
			sc := out.Scorecard
			in.Scorecard = sc
			passed = gate.meets(sc)
			run.Score = sc.Overall
			run.Attempts = append(run.Attempts, model.StageAttempt{
				Stage:     model.StageValidate,
				Attempt:   attempt,
				Passed:    passed,
				Score:     sc.Overall,
				TopIssues: sc.TopIssues(3),
			})
			score := sc.Overall
			o.sink.Progress(job.ID, model.ProgressEvent{
				Stage:       model.StageValidate,
				Message:     fmt.Sprintf("Scored %.0f", sc.Overall),
				Attempt:     attempt,
				MaxAttempts: o.gate.MaxAttempts,
				Score:       &score,
			})
		}

		switch gate.observe(passed) {
		case gatePassed:
			run.Passed = true
			run.RevisionCount = gate.attempt
			run.CompletedAt = time.Now()
			o.sink.Complete(job.ID, run)
			return run

		case gateExhausted:
			run.RevisionCount = gate.attempt
			reason := fmt.Sprintf("quality gate not passed after %d attempts", gate.attempt)
			if lastErr != nil {
				reason = lastErr.Error()
			}
			return o.fail(job.ID, run, reason)

		case gateRevising:
			o.sink.Progress(job.ID, model.ProgressEvent{
				Stage:       model.StageRevise,
				Message:     "Revising artifact...",
				Attempt:     attempt,
				MaxAttempts: o.gate.MaxAttempts,
			})
			rout, rerr := o.invoker.Invoke(ctx, model.StageRevise, in)
			if rerr != nil {
				// Keep the current artifact; the slot is consumed by the
				// next validate attempt.
				lastErr = rerr
				run.Attempts = append(run.Attempts, model.StageAttempt{
					Stage:     model.StageRevise,
					Attempt:   attempt,
					TopIssues: []string{rerr.Error()},
				})
				continue
			}
			in.Artifact = rout.Artifact
			run.Artifact = rout.Artifact
		}
	}
}

// RunRevision is the human revision path: one revise call driven by the
// boss's free-text instructions, no validate, no retry loop. The prior run
// supplies the artifact being revised and the score carried forward.
func (o *Orchestrator) RunRevision(ctx context.Context, job *model.Job, prior *model.PipelineRun, instructions string) *model.PipelineRun {
	run := &model.PipelineRun{JobID: job.ID, StartedAt: time.Now()}
	in := &model.StageInput{
		SourceContent: job.SourceContent,
		Instructions:  instructions,
	}
	if prior != nil {
		in.Artifact = prior.Artifact
		run.Score = prior.Score
	}

	o.sink.Progress(job.ID, model.ProgressEvent{
		Stage:   model.StageRevise,
		Message: "Applying requested revision...",
	})

	out, err := o.invoker.Invoke(ctx, model.StageRevise, in)
	if err != nil {
		if prior != nil {
			run.Artifact = prior.Artifact
		}
		return o.fail(job.ID, run, err.Error())
	}

	run.Passed = true
	run.Artifact = out.Artifact
	run.CompletedAt = time.Now()
	o.sink.Complete(job.ID, run)
	return run
}

func (o *Orchestrator) stillAuthoritative(ctx context.Context, check AuthorityCheck) bool {
	if ctx.Err() != nil {
		return false
	}
	return check == nil || check(ctx)
}

func (o *Orchestrator) fail(jobID string, run *model.PipelineRun, reason string) *model.PipelineRun {
	run.Passed = false
	run.Error = reason
	run.CompletedAt = time.Now()
	o.sink.Failed(jobID, run)
	return run
}

func stageStartMessage(stage model.StageKind) string {
	switch stage {
	case model.StageNormalize:
		return "Normalizing submission..."
	case model.StageSpecify:
		return "Planning page structure..."
	case model.StageRender:
		return "Rendering artifact..."
	default:
		return fmt.Sprintf("Running %s...", stage)
	}
}

func stageDoneMessage(stage model.StageKind) string {
	switch stage {
	case model.StageNormalize:
		return "Submission normalized"
	case model.StageSpecify:
		return "Page structure planned"
	case model.StageRender:
		return "Artifact rendered"
	default:
		return fmt.Sprintf("%s finished", stage)
	}
}
