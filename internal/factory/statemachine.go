package factory

import (
	"context"
	"errors"
	"time"

	"github.com/pageforge/api/internal/model"
	"github.com/pageforge/api/internal/registry"
)

// transitionTable lists every legal (from, to) pair for automated actors and
// documents the usual boss paths. Automated triples not present here are
// rejected. Boss transitions are exempt: the boss's word is law and is
// applied exactly as requested, which is what lets a boss action pull a job
// out of processing while a run is still in flight.
var transitionTable = map[model.JobStatus]map[model.JobStatus][]model.Actor{
	model.JobStatusDraft: {
		model.JobStatusProcessing: {model.ActorSystem},
	},
	model.JobStatusProcessing: {
		model.JobStatusReadyForReview: {model.ActorSystem},
		model.JobStatusFactoryFailed:  {model.ActorSystem},
	},
	model.JobStatusReadyForReview: {
		model.JobStatusApproved:   {model.ActorBoss},
		model.JobStatusProcessing: {model.ActorBoss},
		model.JobStatusRejected:   {model.ActorBoss},
	},
	model.JobStatusFactoryFailed: {
		model.JobStatusProcessing: {model.ActorBoss, model.ActorSystem},
	},
}

// Allowed reports whether the triple may be applied.
func Allowed(from, to model.JobStatus, actor model.Actor) bool {
	if actor == model.ActorBoss {
		return from != to
	}
	actors, ok := transitionTable[from][to]
	if !ok {
		return false
	}
	for _, a := range actors {
		if a == actor {
			return true
		}
	}
	return false
}

// TransitionRequest describes one attempted state change.
//
// ObservedVersion is the optimistic-concurrency stamp: a system or ai actor
// that set it (>= 0) is rejected as stale when the job has moved since the
// version was observed. Boss transitions never carry a stamp check and always
// bump the version, unconditionally superseding any in-flight automated run.
type TransitionRequest struct {
	JobID           string
	To              model.JobStatus
	Actor           model.Actor
	Note            string
	ObservedVersion int64
	Mutate          func(*model.Job)
}

// StateMachine is the authoritative arbiter of job lifecycle changes. It
// decides legality and applies accepted transitions through the registry's
// compare-and-swap write; it never persists anything else.
type StateMachine struct {
	registry registry.Registry
}

func NewStateMachine(reg registry.Registry) *StateMachine {
	return &StateMachine{registry: reg}
}

// bossRetries bounds the reload loop when a boss write races another writer.
const bossRetries = 5

// Apply validates and applies one transition. On rejection the job is
// unchanged and the returned error is *TransitionError; registry misses
// surface as registry.ErrNotFound.
func (sm *StateMachine) Apply(ctx context.Context, req TransitionRequest) (*model.Job, error) {
	attempts := 1
	if req.Actor == model.ActorBoss {
		attempts = bossRetries
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		job, err := sm.registry.Get(ctx, req.JobID)
		if err != nil {
			return nil, err
		}

		if !Allowed(job.Status, req.To, req.Actor) {
			return nil, &TransitionError{From: job.Status, To: req.To, Actor: req.Actor}
		}

		if req.Actor != model.ActorBoss && req.ObservedVersion >= 0 && job.Version != req.ObservedVersion {
			return nil, &TransitionError{From: job.Status, To: req.To, Actor: req.Actor, Stale: true}
		}

		from := job.Status
		now := time.Now()
		job.Status = req.To
		job.Version++
		job.UpdatedAt = now
		job.Transitions = append(job.Transitions, model.Transition{
			From:  from,
			To:    req.To,
			Actor: req.Actor,
			Note:  req.Note,
			At:    now,
		})

		switch {
		case req.To == model.JobStatusProcessing:
			job.ProcessingAt = &now
			job.CompletedAt = nil
			job.FailureReason = nil
		case req.To.IsRunSettled():
			job.CompletedAt = &now
		}

		if req.Mutate != nil {
			req.Mutate(job)
		}

		err = sm.registry.Update(ctx, job)
		if err == nil {
			return job, nil
		}
		if !errors.Is(err, registry.ErrConflict) {
			return nil, err
		}

		// Lost the CAS race. The boss reloads and tries again; an automated
		// actor backs off so it cannot overwrite whoever won.
		lastErr = &TransitionError{From: from, To: req.To, Actor: req.Actor, Stale: true}
	}

	return nil, lastErr
}
