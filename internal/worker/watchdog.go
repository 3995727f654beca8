package worker

import (
	"context"
	"log"
	"time"

	"github.com/pageforge/api/internal/factory"
	"github.com/pageforge/api/internal/model"
	"github.com/pageforge/api/internal/registry"
)

// Watchdog expires jobs stuck in processing, e.g. after a crash mid-run.
// An expired job fails with a recoverable reason; the boss or the system can
// retry it from factory_failed.
type Watchdog struct {
	registry     registry.Registry
	stateMachine *factory.StateMachine
	timeout      time.Duration
	interval     time.Duration
}

func NewWatchdog(reg registry.Registry, sm *factory.StateMachine, timeout, interval time.Duration) *Watchdog {
	return &Watchdog{
		registry:     reg,
		stateMachine: sm,
		timeout:      timeout,
		interval:     interval,
	}
}

// Run sweeps until the context is cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep fails every processing job whose run started longer ago than the
// timeout. The version stamp makes the expiry safe against a run that
// finishes concurrently: whoever writes first wins, the other is stale.
func (w *Watchdog) Sweep(ctx context.Context) {
	ids, err := w.registry.ListByStatus(ctx, model.JobStatusProcessing)
	if err != nil {
		log.Printf("Watchdog failed to list processing jobs: %v", err)
		return
	}

	for _, id := range ids {
		job, err := w.registry.Get(ctx, id)
		if err != nil {
			continue
		}
		if job.Status != model.JobStatusProcessing || job.ProcessingAt == nil {
			continue
		}
		if time.Since(*job.ProcessingAt) < w.timeout {
			continue
		}

		reason := "processing timed out"
		_, err = w.stateMachine.Apply(ctx, factory.TransitionRequest{
			JobID:           id,
			To:              model.JobStatusFactoryFailed,
			Actor:           model.ActorSystem,
			Note:            reason,
			ObservedVersion: job.Version,
			Mutate: func(j *model.Job) {
				j.FailureReason = &reason
			},
		})
		if err != nil {
			log.Printf("Watchdog could not expire job %s: %v", id, err)
			continue
		}
		log.Printf("Watchdog expired job %s after %s in processing", id, w.timeout)
	}
}
