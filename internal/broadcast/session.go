package broadcast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mattcl/task-streamer/internal/adapter/metrics"
	"github.com/mattcl/task-streamer/internal/domain"
)

const (
	// HeartbeatInterval is how often a session pings its peer and checks
	// for silence.
	HeartbeatInterval = 5 * time.Second
	// ClientTimeout is how long a peer may stay silent before the session
	// closes.
	ClientTimeout = 20 * time.Second

	writeWait      = 5 * time.Second
	sendBufferSize = 16
	maxMessageSize = 4096
)

var (
	ErrSessionClosed  = errors.New("session closed")
	ErrSendBufferFull = errors.New("session send buffer full")
)

type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// CloseReason is recorded on the session_closes_total metric and in logs.
type CloseReason string

const (
	ReasonRegisterFailed    CloseReason = "register_failed"
	ReasonHeartbeatTimeout  CloseReason = "heartbeat_timeout"
	ReasonPeerClose         CloseReason = "peer_close"
	ReasonTransportError    CloseReason = "transport_error"
	ReasonProtocolViolation CloseReason = "protocol_violation"
	ReasonServerShutdown    CloseReason = "server_shutdown"
)

// Registrar is the part of the Registry a session needs.
type Registrar interface {
	Register(send Sender) (string, error)
	Deregister(id string)
}

// Session is the server side of one viewer websocket.
type Session struct {
	conn     *websocket.Conn
	registry Registrar
	clock    clockwork.Clock
	metrics  *metrics.BroadcastMetrics

	id       string
	state    atomic.Int32
	outbound chan domain.Event
	done     chan struct{}
	wg       sync.WaitGroup

	lastSeenMu sync.Mutex
	lastSeen   time.Time
}

func NewSession(conn *websocket.Conn, registry Registrar, clock clockwork.Clock, m *metrics.BroadcastMetrics) *Session {
	return &Session{
		conn:     conn,
		registry: registry,
		clock:    clock,
		metrics:  m,
		outbound: make(chan domain.Event, sendBufferSize),
		done:     make(chan struct{}),
		lastSeen: clock.Now(),
	}
}

// ID returns the id assigned at registration, empty before that.
func (s *Session) ID() string { return s.id }

func (s *Session) State() State { return State(s.state.Load()) }

// Done is closed once the session reached StateClosed.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) LastSeen() time.Time {
	s.lastSeenMu.Lock()
	defer s.lastSeenMu.Unlock()
	return s.lastSeen
}

// Run registers the session and serves the connection until it closes.
// Cancelling ctx closes the session with a going-away close frame. The
// connection is always closed when Run returns.
func (s *Session) Run(ctx context.Context) error {
	id, err := s.registry.Register(s.deliver)
	if err != nil {
		s.metrics.RegisterFailures.Inc()
		s.metrics.SessionCloses.WithLabelValues(string(ReasonRegisterFailed)).Inc()
		_ = s.conn.Close()
		s.setState(StateClosed)
		close(s.done)
		return fmt.Errorf("register session: %w", err)
	}
	s.id = id
	s.setState(StateActive)
	slog.Info("Viewer session started", "session_id", id, "remote_addr", s.conn.RemoteAddr().String())

	readDone := make(chan CloseReason, 1)
	s.wg.Add(1)
	go s.readPump(readDone)

	reason := s.loop(ctx, readDone)
	s.shutdown(reason)
	return nil
}

func (s *Session) loop(ctx context.Context, readDone <-chan CloseReason) CloseReason {
	ticker := s.clock.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			if s.clock.Since(s.LastSeen()) > ClientTimeout {
				return ReasonHeartbeatTimeout
			}
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				slog.Debug("Ping failed", "session_id", s.id, "error", err)
				return ReasonTransportError
			}
		case event := <-s.outbound:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, []byte(event)); err != nil {
				slog.Debug("Write failed", "session_id", s.id, "event", event.String(), "error", err)
				return ReasonTransportError
			}
		case reason := <-readDone:
			return reason
		case <-ctx.Done():
			return ReasonServerShutdown
		}
	}
}

// readPump is the only reader of the connection. Control frames are
// handled by the gorilla handlers installed here.
func (s *Session) readPump(done chan<- CloseReason) {
	defer s.wg.Done()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetPingHandler(func(data string) error {
		s.touch()
		err := s.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if err == nil || errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil
		}
		return err
	})
	s.conn.SetPongHandler(func(string) error {
		s.touch()
		return nil
	})
	s.conn.SetCloseHandler(func(code int, _ string) error {
		msg := websocket.FormatCloseMessage(code, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		return nil
	})

	for {
		messageType, r, err := s.conn.NextReader()
		if err != nil {
			done <- classifyReadError(err)
			return
		}
		// the read limit only applies while the body is consumed
		if _, err := io.Copy(io.Discard, r); err != nil {
			done <- classifyReadError(err)
			return
		}
		if messageType == websocket.BinaryMessage {
			slog.Warn("Ignoring binary frame from viewer", "session_id", s.id)
		}
	}
}

func (s *Session) shutdown(reason CloseReason) {
	s.setState(StateClosing)
	s.registry.Deregister(s.id)

	switch reason {
	case ReasonServerShutdown:
		s.writeClose(websocket.CloseGoingAway, "server shutting down")
	case ReasonHeartbeatTimeout:
		s.metrics.HeartbeatTimeouts.Inc()
		s.writeClose(websocket.CloseGoingAway, "heartbeat timeout")
	}

	_ = s.conn.Close()
	s.wg.Wait()

	s.setState(StateClosed)
	s.metrics.SessionCloses.WithLabelValues(string(reason)).Inc()
	close(s.done)
	slog.Info("Viewer session closed", "session_id", s.id, "reason", string(reason))
}

func (s *Session) writeClose(code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// deliver is the session's Sender.
func (s *Session) deliver(event domain.Event) error {
	switch s.State() {
	case StateClosing, StateClosed:
		return ErrSessionClosed
	}

	select {
	case s.outbound <- event:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (s *Session) touch() {
	s.lastSeenMu.Lock()
	defer s.lastSeenMu.Unlock()
	s.lastSeen = s.clock.Now()
}

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
}

// classifyReadError maps a read error to a close reason. Anything that is
// neither a close frame nor an I/O failure is a frame gorilla rejected.
// gorilla reports a dropped connection as close code 1006, which no peer
// ever sends.
func classifyReadError(err error) CloseReason {
	if errors.Is(err, websocket.ErrReadLimit) {
		return ReasonProtocolViolation
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		if closeErr.Code == websocket.CloseAbnormalClosure {
			return ReasonTransportError
		}
		return ReasonPeerClose
	}

	var netErr net.Error
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) || errors.As(err, &netErr) {
		return ReasonTransportError
	}
	return ReasonProtocolViolation
}
