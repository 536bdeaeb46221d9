package domain

import "context"

// StateStore holds the single authoritative copy of the task list and topic.
// Replacements must be atomic with respect to readers and visible to every
// subsequent read once the call returns.
type StateStore interface {
	Tasks(ctx context.Context) ([]Task, error)
	ReplaceTasks(ctx context.Context, tasks []Task) error
	Topic(ctx context.Context) (Topic, error)
	ReplaceTopic(ctx context.Context, topic Topic) error
}
