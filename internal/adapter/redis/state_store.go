package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattcl/task-streamer/internal/adapter/metrics"
	"github.com/mattcl/task-streamer/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const (
	tasksKey = "task-streamer:tasks"
	topicKey = "task-streamer:topic"
)

// StateStore keeps the task list and topic as JSON documents under two keys.
// A SET replaces a document in one step, so readers never see a partial
// list.
type StateStore struct {
	rdb     *goredis.Client
	metrics *metrics.StoreMetrics
}

func NewStateStore(rdb *goredis.Client, m *metrics.StoreMetrics) *StateStore {
	return &StateStore{rdb: rdb, metrics: m}
}

func (s *StateStore) Tasks(ctx context.Context) ([]domain.Task, error) {
	tasks := []domain.Task{}
	found, err := s.get(ctx, "get_tasks", tasksKey, &tasks)
	if err != nil {
		return nil, err
	}
	if !found {
		return []domain.Task{}, nil
	}
	return tasks, nil
}

func (s *StateStore) ReplaceTasks(ctx context.Context, tasks []domain.Task) error {
	return s.set(ctx, "replace_tasks", tasksKey, tasks)
}

func (s *StateStore) Topic(ctx context.Context) (domain.Topic, error) {
	var topic domain.Topic
	if _, err := s.get(ctx, "get_topic", topicKey, &topic); err != nil {
		return domain.Topic{}, err
	}
	return topic, nil
}

func (s *StateStore) ReplaceTopic(ctx context.Context, topic domain.Topic) error {
	return s.set(ctx, "replace_topic", topicKey, topic)
}

// Ping reports whether Redis is reachable, for the readiness check.
func (s *StateStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *StateStore) get(ctx context.Context, op, key string, dst any) (bool, error) {
	defer s.observe(op, time.Now())

	data, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		s.metrics.Operations.WithLabelValues(op, "miss").Inc()
		return false, nil
	}
	if err != nil {
		s.metrics.Operations.WithLabelValues(op, "error").Inc()
		return false, fmt.Errorf("%w: get %s: %v", domain.ErrStoreUnavailable, key, err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		s.metrics.Operations.WithLabelValues(op, "error").Inc()
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	s.metrics.Operations.WithLabelValues(op, "ok").Inc()
	return true, nil
}

func (s *StateStore) set(ctx context.Context, op, key string, value any) error {
	defer s.observe(op, time.Now())

	data, err := json.Marshal(value)
	if err != nil {
		s.metrics.Operations.WithLabelValues(op, "error").Inc()
		return fmt.Errorf("encode %s: %w", key, err)
	}

	if err := s.rdb.Set(ctx, key, data, 0).Err(); err != nil {
		s.metrics.Operations.WithLabelValues(op, "error").Inc()
		return fmt.Errorf("%w: set %s: %v", domain.ErrStoreUnavailable, key, err)
	}
	s.metrics.Operations.WithLabelValues(op, "ok").Inc()
	return nil
}

func (s *StateStore) observe(op string, start time.Time) {
	s.metrics.Duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
