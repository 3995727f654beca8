package registry

import (
	"context"
	"errors"

	"github.com/pageforge/api/internal/model"
)

var (
	// ErrNotFound means no job record exists for the id.
	ErrNotFound = errors.New("job not found")
	// ErrConflict means the record changed since it was read; the caller's
	// version stamp is stale and the write was not applied.
	ErrConflict = errors.New("job version conflict")
	// ErrExists means a job with the id has already been created.
	ErrExists = errors.New("job already exists")
)

// Registry is the narrow persistence surface the factory core talks to.
// Update is compare-and-swap: the caller bumps job.Version before writing and
// the write only lands if the stored record still carries the prior version.
type Registry interface {
	Create(ctx context.Context, job *model.Job) error
	Get(ctx context.Context, id string) (*model.Job, error)
	Update(ctx context.Context, job *model.Job) error
	ListByStatus(ctx context.Context, status model.JobStatus) ([]string, error)
}
