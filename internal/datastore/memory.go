package datastore

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/tphakala/vidguard/internal/moderation"
)

// MemoryStore keeps jobs in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*moderation.Job
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*moderation.Job)}
}

func (m *MemoryStore) Create(ctx context.Context, job *moderation.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; ok {
		return jobExists(job.ID)
	}
	m.jobs[job.ID] = job.Clone()
	return nil
}

func (m *MemoryStore) Save(ctx context.Context, job *moderation.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return jobNotFound(job.ID)
	}
	m.jobs[job.ID] = job.Clone()
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*moderation.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, jobNotFound(id)
	}
	return job.Clone(), nil
}

func (m *MemoryStore) List(ctx context.Context, filter Filter) ([]*moderation.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filter = filter.Normalize()

	m.mu.RLock()
	matched := make([]*moderation.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		if filter.Matches(job) {
			matched = append(matched, job)
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(matched, newestFirst)
	if filter.Offset >= len(matched) {
		return []*moderation.Job{}, nil
	}
	matched = matched[filter.Offset:]
	if len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	out := make([]*moderation.Job, len(matched))
	for i, job := range matched {
		out[i] = job.Clone()
	}
	return out, nil
}

func (m *MemoryStore) Pending(ctx context.Context) ([]*moderation.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*moderation.Job
	for _, job := range m.jobs {
		if !job.State.Terminal() {
			out = append(out, job.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *moderation.Job) int { return -newestFirst(a, b) })
	return out, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return jobNotFound(id)
	}
	delete(m.jobs, id)
	return nil
}

func (m *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := newSummary()
	for _, job := range m.jobs {
		s.add(job.State, verdictOf(job), triggeredChecks(job), job.ProcessingTime())
	}
	return s.result(), nil
}

func (m *MemoryStore) Close() error { return nil }

// newestFirst orders by creation time descending, then id for stability.
func newestFirst(a, b *moderation.Job) int {
	return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(a.ID, b.ID))
}
