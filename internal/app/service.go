package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mattcl/task-streamer/internal/domain"
	"golang.org/x/sync/singleflight"
)

const (
	tasksKey = "tasks"
	topicKey = "topic"
)

// Service is the only component that references both the state store and
// the notifier.
type Service struct {
	store    domain.StateStore
	notifier domain.Notifier
	reads    singleflight.Group
}

func NewService(store domain.StateStore, notifier domain.Notifier) *Service {
	return &Service{store: store, notifier: notifier}
}

// Tasks returns the current task list. Concurrent callers share one store
// read, so the returned slice must not be modified.
func (s *Service) Tasks(ctx context.Context) ([]domain.Task, error) {
	v, err, _ := s.reads.Do(tasksKey, func() (any, error) {
		return s.store.Tasks(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("read tasks: %w", err)
	}
	return v.([]domain.Task), nil
}

// Topic returns the current topic.
func (s *Service) Topic(ctx context.Context) (domain.Topic, error) {
	v, err, _ := s.reads.Do(topicKey, func() (any, error) {
		return s.store.Topic(ctx)
	})
	if err != nil {
		return domain.Topic{}, fmt.Errorf("read topic: %w", err)
	}
	return v.(domain.Topic), nil
}

// ReplaceTasks validates and stores tasks, then notifies viewers with
// tasks-updated. Nothing is sent when validation or the store fails.
func (s *Service) ReplaceTasks(ctx context.Context, tasks []domain.Task) error {
	if err := domain.ValidateTasks(tasks); err != nil {
		return err
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}

	if err := s.store.ReplaceTasks(ctx, tasks); err != nil {
		return fmt.Errorf("replace tasks: %w", err)
	}
	s.reads.Forget(tasksKey)

	slog.Info("Tasks replaced", "tasks", len(tasks))
	s.notifier.Notify(domain.EventTasksUpdated)
	return nil
}

// ReplaceTopic validates and stores topic, then notifies viewers with
// topic-updated. Nothing is sent when validation or the store fails.
func (s *Service) ReplaceTopic(ctx context.Context, topic domain.Topic) error {
	if err := topic.Validate(); err != nil {
		return err
	}

	if err := s.store.ReplaceTopic(ctx, topic); err != nil {
		return fmt.Errorf("replace topic: %w", err)
	}
	s.reads.Forget(topicKey)

	slog.Info("Topic replaced", "title", topic.Title)
	s.notifier.Notify(domain.EventTopicUpdated)
	return nil
}
