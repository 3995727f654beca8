package registry

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pageforge/api/internal/model"
)

// MemoryRegistry is an in-process Registry used by tests and by local runs
// without Redis. Same CAS semantics as the Redis implementation.
type MemoryRegistry struct {
	mu   sync.Mutex
	jobs map[string][]byte
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{jobs: make(map[string][]byte)}
}

func (r *MemoryRegistry) Create(ctx context.Context, job *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[job.ID]; ok {
		return ErrExists
	}
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	r.jobs[job.ID] = data
	return nil
}

func (r *MemoryRegistry) Get(ctx context.Context, id string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(id)
}

func (r *MemoryRegistry) getLocked(id string) (*model.Job, error) {
	data, ok := r.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *MemoryRegistry) Update(ctx context.Context, job *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.getLocked(job.ID)
	if err != nil {
		return err
	}
	if stored.Version != job.Version-1 {
		return ErrConflict
	}

	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	r.jobs[job.ID] = data
	return nil
}

func (r *MemoryRegistry) ListByStatus(ctx context.Context, status model.JobStatus) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id := range r.jobs {
		job, err := r.getLocked(id)
		if err != nil {
			continue
		}
		if job.Status == status {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
