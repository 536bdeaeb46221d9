package domain

// Event is an opaque notification tag pushed to every live viewer session.
// It carries no payload: viewers re-fetch the named resource over REST.
type Event string

const (
	EventTasksUpdated Event = "tasks-updated"
	EventTopicUpdated Event = "topic-updated"
)

func (e Event) String() string { return string(e) }

// Notifier fans an event out to connected viewers. Implementations must not
// block the caller on slow or dead viewers.
type Notifier interface {
	Notify(event Event)
}
