package solverapi

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"turnstile-solver/solver"
)

// Task status values.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Finished reports whether s is terminal.
func (s Status) Finished() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task is one queued solve.
type Task struct {
	ID          string         `json:"task_id"`
	Request     solver.Request `json:"request"`
	Status      Status         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Result      *solver.Result `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
}

func newTask(req solver.Request) *Task {
	return &Task{
		ID:        uuid.New().String(),
		Request:   req,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
}

// setStatus moves t to status and stamps the matching timestamp.
func (t *Task) setStatus(status Status) {
	now := time.Now()
	t.Status = status
	switch {
	case status == StatusRunning:
		t.StartedAt = &now
	case status.Finished():
		t.CompletedAt = &now
	}
}

var ErrTaskNotFound = errors.New("task not found")

// Store persists tasks. Implementations are safe for concurrent use.
type Store interface {
	Create(ctx context.Context, req solver.Request) (*Task, error)
	Get(ctx context.Context, id string) (*Task, error)
	Save(ctx context.Context, task *Task) error
	// Cleanup drops finished tasks completed more than maxAge ago.
	Cleanup(ctx context.Context, maxAge time.Duration) error
}

// MemoryStore keeps tasks in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: make(map[string]*Task),
	}
}

func (s *MemoryStore) Create(ctx context.Context, req solver.Request) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := newTask(req)
	s.tasks[task.ID] = task
	cp := *task
	return &cp, nil
}

// Get returns a copy, so callers never race with workers.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	cp := *task
	return &cp, nil
}

func (s *MemoryStore) Save(ctx context.Context, task *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; !ok {
		return ErrTaskNotFound
	}
	cp := *task
	s.tasks[task.ID] = &cp
	return nil
}

func (s *MemoryStore) Cleanup(ctx context.Context, maxAge time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for id, task := range s.tasks {
		if task.CompletedAt != nil && task.CompletedAt.Before(cutoff) {
			delete(s.tasks, id)
		}
	}
	return nil
}

// Len returns the number of stored tasks.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}
