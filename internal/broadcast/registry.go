package broadcast

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/mattcl/task-streamer/internal/adapter/metrics"
	"github.com/mattcl/task-streamer/internal/domain"
)

const commandBufferSize = 256

var ErrRegistryStopped = errors.New("registry stopped")

// Sender hands an event to a session. It must not block; the registry
// calls it from its own goroutine.
type Sender func(event domain.Event) error

type registryCmd interface{ isRegistryCmd() }

type baseRegistryCmd struct{}

func (baseRegistryCmd) isRegistryCmd() {}

type registerCmd struct {
	baseRegistryCmd
	send  Sender
	reply chan string
}

type deregisterCmd struct {
	baseRegistryCmd
	id string
}

type notifyCmd struct {
	baseRegistryCmd
	event domain.Event
}

type countCmd struct {
	baseRegistryCmd
	reply chan int
}

type containsCmd struct {
	baseRegistryCmd
	id    string
	reply chan bool
}

// Registry is the broadcast coordinator: it assigns session ids, holds the
// Sender of every live session and fans notifications out to them.
type Registry struct {
	cmdCh    chan registryCmd
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	sessions map[string]Sender
	newID    func() string
	metrics  *metrics.BroadcastMetrics
}

// NewRegistry starts the registry goroutine. Call Stop to release it.
func NewRegistry(m *metrics.BroadcastMetrics) *Registry {
	r := &Registry{
		cmdCh:    make(chan registryCmd, commandBufferSize),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
		sessions: make(map[string]Sender),
		newID:    func() string { return uuid.New().String() },
		metrics:  m,
	}
	go r.run()
	return r
}

// Register stores send under a fresh session id and returns the id.
// It fails only once the registry has been stopped.
func (r *Registry) Register(send Sender) (string, error) {
	reply := make(chan string, 1)
	if !r.submit(registerCmd{send: send, reply: reply}) {
		return "", ErrRegistryStopped
	}

	select {
	case id := <-reply:
		return id, nil
	case <-r.done:
		select {
		case id := <-reply:
			return id, nil
		default:
			return "", ErrRegistryStopped
		}
	}
}

// Deregister removes the session with the given id. Unknown ids are ignored.
func (r *Registry) Deregister(id string) {
	r.submit(deregisterCmd{id: id})
}

// Notify delivers event to every registered session without waiting for
// the fan-out to happen. Failed deliveries are logged and counted only.
func (r *Registry) Notify(event domain.Event) {
	r.submit(notifyCmd{event: event})
}

// Count returns the number of registered sessions, or 0 after Stop.
func (r *Registry) Count() int {
	reply := make(chan int, 1)
	if !r.submit(countCmd{reply: reply}) {
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-r.done:
		return 0
	}
}

// Contains reports whether id is currently registered.
func (r *Registry) Contains(id string) bool {
	reply := make(chan bool, 1)
	if !r.submit(containsCmd{id: id, reply: reply}) {
		return false
	}
	select {
	case ok := <-reply:
		return ok
	case <-r.done:
		return false
	}
}

// Stop shuts the registry goroutine down and waits for it to exit. Commands
// still queued are dropped. Stop is safe to call more than once.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.done
}

// Stopped reports whether the registry goroutine has exited.
func (r *Registry) Stopped() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *Registry) submit(cmd registryCmd) bool {
	select {
	case <-r.done:
		return false
	default:
	}

	select {
	case r.cmdCh <- cmd:
		return true
	case <-r.done:
		return false
	}
}

func (r *Registry) run() {
	defer close(r.done)

	for {
		select {
		case <-r.stopCh:
			slog.Info("Registry stopped", "sessions", len(r.sessions))
			return
		case cmd := <-r.cmdCh:
			switch c := cmd.(type) {
			case registerCmd:
				c.reply <- r.handleRegister(c.send)
			case deregisterCmd:
				r.handleDeregister(c.id)
			case notifyCmd:
				r.handleNotify(c.event)
			case countCmd:
				c.reply <- len(r.sessions)
			case containsCmd:
				_, ok := r.sessions[c.id]
				c.reply <- ok
			default:
				slog.Warn("Registry received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		}
	}
}

func (r *Registry) handleRegister(send Sender) string {
	id := r.newID()
	for {
		if _, taken := r.sessions[id]; !taken {
			break
		}
		slog.Warn("Session id collision, regenerating", "session_id", id)
		id = r.newID()
	}

	r.sessions[id] = send
	r.metrics.ActiveSessions.Set(float64(len(r.sessions)))
	slog.Debug("Session registered", "session_id", id, "sessions", len(r.sessions))
	return id
}

func (r *Registry) handleDeregister(id string) {
	if _, ok := r.sessions[id]; !ok {
		return
	}
	delete(r.sessions, id)
	r.metrics.ActiveSessions.Set(float64(len(r.sessions)))
	slog.Debug("Session deregistered", "session_id", id, "sessions", len(r.sessions))
}

func (r *Registry) handleNotify(event domain.Event) {
	r.metrics.Notifications.WithLabelValues(event.String()).Inc()

	failed := 0
	for id, send := range r.sessions {
		if err := safeSend(send, event); err != nil {
			failed++
			r.metrics.DeliveryFailures.WithLabelValues(event.String()).Inc()
			slog.Warn("Notification delivery failed", "session_id", id, "event", event.String(), "error", err)
		}
	}

	slog.Debug("Notification fanned out", "event", event.String(), "sessions", len(r.sessions), "failed", failed)
}

func safeSend(send Sender, event domain.Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("sender panicked: %v", rec)
		}
	}()
	return send(event)
}
