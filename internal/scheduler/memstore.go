package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps jobs in memory. It backs unit tests and local
// development; production uses the Redis store.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]Job)}
}

func (m *MemoryStore) Put(_ context.Context, job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.Key] = job
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.jobs[key]
	delete(m.jobs, key)
	return ok, nil
}

func (m *MemoryStore) RemoveAt(_ context.Context, key string, fireAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[key]
	if !ok || !job.FireAt.Equal(fireAt) {
		return false, nil
	}
	delete(m.jobs, key)
	return true, nil
}

func (m *MemoryStore) Due(_ context.Context, now time.Time, limit int) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []Job
	for _, job := range m.jobs {
		if !job.FireAt.After(now) {
			due = append(due, job)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].FireAt.Before(due[j].FireAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// Len reports the number of pending jobs.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}
