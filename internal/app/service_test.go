package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mattcl/task-streamer/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockStore struct {
	tasksFn        func(ctx context.Context) ([]domain.Task, error)
	replaceTasksFn func(ctx context.Context, tasks []domain.Task) error
	topicFn        func(ctx context.Context) (domain.Topic, error)
	replaceTopicFn func(ctx context.Context, topic domain.Topic) error
}

func (m *mockStore) Tasks(ctx context.Context) ([]domain.Task, error) {
	if m.tasksFn != nil {
		return m.tasksFn(ctx)
	}
	return []domain.Task{}, nil
}

func (m *mockStore) ReplaceTasks(ctx context.Context, tasks []domain.Task) error {
	if m.replaceTasksFn != nil {
		return m.replaceTasksFn(ctx, tasks)
	}
	return nil
}

func (m *mockStore) Topic(ctx context.Context) (domain.Topic, error) {
	if m.topicFn != nil {
		return m.topicFn(ctx)
	}
	return domain.Topic{}, nil
}

func (m *mockStore) ReplaceTopic(ctx context.Context, topic domain.Topic) error {
	if m.replaceTopicFn != nil {
		return m.replaceTopicFn(ctx, topic)
	}
	return nil
}

type mockNotifier struct {
	mu     sync.Mutex
	events []domain.Event
}

func (m *mockNotifier) Notify(event domain.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *mockNotifier) notified() []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Event(nil), m.events...)
}

var validTask = domain.Task{
	UUID:        "d3c2052f-31b5-4544-94bc-af3ef1b10c4b",
	Description: "figure out frontend static asset storage/serving",
	Status:      domain.TaskPending,
}

// --- Tests ---

func TestReplaceTasks_StoresThenNotifies(t *testing.T) {
	var stored []domain.Task
	notifier := &mockNotifier{}
	store := &mockStore{replaceTasksFn: func(_ context.Context, tasks []domain.Task) error {
		assert.Empty(t, notifier.notified(), "notified before the store call returned")
		stored = tasks
		return nil
	}}
	svc := NewService(store, notifier)

	require.NoError(t, svc.ReplaceTasks(context.Background(), []domain.Task{validTask}))

	assert.Equal(t, []domain.Task{validTask}, stored)
	assert.Equal(t, []domain.Event{domain.EventTasksUpdated}, notifier.notified())
}

func TestReplaceTasks_EmptyListIsValid(t *testing.T) {
	var stored []domain.Task
	notifier := &mockNotifier{}
	store := &mockStore{replaceTasksFn: func(_ context.Context, tasks []domain.Task) error {
		stored = tasks
		return nil
	}}
	svc := NewService(store, notifier)

	require.NoError(t, svc.ReplaceTasks(context.Background(), nil))

	assert.NotNil(t, stored)
	assert.Empty(t, stored)
	assert.Equal(t, []domain.Event{domain.EventTasksUpdated}, notifier.notified())
}

func TestReplaceTasks_InvalidTaskDoesNotNotify(t *testing.T) {
	notifier := &mockNotifier{}
	store := &mockStore{replaceTasksFn: func(context.Context, []domain.Task) error {
		t.Fatal("store must not be called for invalid tasks")
		return nil
	}}
	svc := NewService(store, notifier)

	bad := validTask
	bad.Description = ""
	err := svc.ReplaceTasks(context.Background(), []domain.Task{validTask, bad})

	assert.ErrorIs(t, err, domain.ErrInvalidTask)
	assert.Empty(t, notifier.notified())
}

func TestReplaceTasks_StoreFailureDoesNotNotify(t *testing.T) {
	notifier := &mockNotifier{}
	store := &mockStore{replaceTasksFn: func(context.Context, []domain.Task) error {
		return domain.ErrStoreUnavailable
	}}
	svc := NewService(store, notifier)

	err := svc.ReplaceTasks(context.Background(), []domain.Task{validTask})

	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Empty(t, notifier.notified())
}

func TestReplaceTopic(t *testing.T) {
	var stored domain.Topic
	notifier := &mockNotifier{}
	store := &mockStore{replaceTopicFn: func(_ context.Context, topic domain.Topic) error {
		stored = topic
		return nil
	}}
	svc := NewService(store, notifier)

	topic := domain.Topic{Title: "herp", Description: "derp"}
	require.NoError(t, svc.ReplaceTopic(context.Background(), topic))

	assert.Equal(t, topic, stored)
	assert.Equal(t, []domain.Event{domain.EventTopicUpdated}, notifier.notified())
}

func TestReplaceTopic_Failures(t *testing.T) {
	tests := []struct {
		name    string
		topic   domain.Topic
		storeFn func(context.Context, domain.Topic) error
		wantErr error
	}{
		{
			name:    "missing title",
			topic:   domain.Topic{Description: "derp"},
			wantErr: domain.ErrInvalidTopic,
		},
		{
			name:    "store failure",
			topic:   domain.Topic{Title: "herp"},
			storeFn: func(context.Context, domain.Topic) error { return domain.ErrStoreUnavailable },
			wantErr: domain.ErrStoreUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier := &mockNotifier{}
			svc := NewService(&mockStore{replaceTopicFn: tt.storeFn}, notifier)

			err := svc.ReplaceTopic(context.Background(), tt.topic)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, notifier.notified())
		})
	}
}

func TestReads(t *testing.T) {
	store := &mockStore{
		tasksFn: func(context.Context) ([]domain.Task, error) { return []domain.Task{validTask}, nil },
		topicFn: func(context.Context) (domain.Topic, error) { return domain.Topic{Title: "herp"}, nil },
	}
	svc := NewService(store, &mockNotifier{})

	tasks, err := svc.Tasks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.Task{validTask}, tasks)

	topic, err := svc.Topic(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "herp", topic.Title)
}

func TestReads_StoreError(t *testing.T) {
	store := &mockStore{
		tasksFn: func(context.Context) ([]domain.Task, error) { return nil, errors.New("boom") },
		topicFn: func(context.Context) (domain.Topic, error) { return domain.Topic{}, errors.New("boom") },
	}
	svc := NewService(store, &mockNotifier{})

	_, err := svc.Tasks(context.Background())
	assert.ErrorContains(t, err, "read tasks")
	_, err = svc.Topic(context.Background())
	assert.ErrorContains(t, err, "read topic")
}

func TestTasks_ConcurrentReadsShareOneStoreCall(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	store := &mockStore{tasksFn: func(context.Context) ([]domain.Task, error) {
		calls.Add(1)
		<-release
		return []domain.Task{validTask}, nil
	}}
	svc := NewService(store, &mockNotifier{})

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tasks, err := svc.Tasks(context.Background())
			assert.NoError(t, err)
			assert.Len(t, tasks, 1)
		}()
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(10))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}
