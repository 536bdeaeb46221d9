package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/mattcl/task-streamer/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateStore_InitiallyEmpty(t *testing.T) {
	s := NewStateStore()

	tasks, err := s.Tasks(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, tasks)
	assert.Empty(t, tasks)

	topic, err := s.Topic(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Topic{}, topic)
}

func TestStateStore_ReplaceIsVisibleAndIsolated(t *testing.T) {
	s := NewStateStore()
	ctx := context.Background()

	in := []domain.Task{{UUID: "d3c2052f-31b5-4544-94bc-af3ef1b10c4b", Description: "one", Status: domain.TaskPending}}
	require.NoError(t, s.ReplaceTasks(ctx, in))
	in[0].Description = "mutated by caller"

	out, err := s.Tasks(ctx)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "one", out[0].Description)

	out[0].Description = "mutated by reader"
	again, err := s.Tasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, "one", again[0].Description)

	require.NoError(t, s.ReplaceTopic(ctx, domain.Topic{Title: "herp", Description: "derp"}))
	topic, err := s.Topic(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Topic{Title: "herp", Description: "derp"}, topic)
}

func TestStateStore_ConcurrentAccess(t *testing.T) {
	s := NewStateStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.ReplaceTasks(ctx, make([]domain.Task, i))
		}()
		go func() {
			defer wg.Done()
			tasks, err := s.Tasks(ctx)
			assert.NoError(t, err)
			assert.LessOrEqual(t, len(tasks), 19)
		}()
	}
	wg.Wait()
}
