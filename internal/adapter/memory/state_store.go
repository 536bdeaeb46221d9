// Package memory provides the default in-process state store.
package memory

import (
	"context"
	"sync"

	"github.com/mattcl/task-streamer/internal/domain"
)

// StateStore keeps the task list and topic in memory. Values are copied on
// the way in and out so callers never share backing arrays with the store.
type StateStore struct {
	mu    sync.RWMutex
	tasks []domain.Task
	topic domain.Topic
}

func NewStateStore() *StateStore {
	return &StateStore{tasks: []domain.Task{}}
}

func (s *StateStore) Tasks(_ context.Context) ([]domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneTasks(s.tasks), nil
}

func (s *StateStore) ReplaceTasks(_ context.Context, tasks []domain.Task) error {
	copied := cloneTasks(tasks)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = copied
	return nil
}

func (s *StateStore) Topic(_ context.Context) (domain.Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.topic, nil
}

func (s *StateStore) ReplaceTopic(_ context.Context, topic domain.Topic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topic = topic
	return nil
}

func cloneTasks(tasks []domain.Task) []domain.Task {
	out := make([]domain.Task, len(tasks))
	copy(out, tasks)
	return out
}
