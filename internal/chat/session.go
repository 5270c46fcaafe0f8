package chat

import (
	"sync"

	"github.com/google/uuid"
)

// sendBuffer bounds each session's outbound queue. A session that falls this
// far behind is considered failed and gets detached by the actor.
const sendBuffer = 64

// Conn is the duplex transport a session writes to. *websocket.Conn
// satisfies it; tests substitute in-memory fakes.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Session is one live duplex connection attached to a conversation actor.
// Frames are enqueued by the actor and drained by the session's own writer
// goroutine, so one slow connection can never delay delivery to another.
type Session struct {
	ID     uuid.UUID
	UserID uuid.UUID

	conn Conn
	out  chan any

	closeOnce sync.Once
	done      chan struct{}
}

// NewSession wraps conn and starts its writer goroutine.
func NewSession(userID uuid.UUID, conn Conn) *Session {
	s := &Session{
		ID:     uuid.New(),
		UserID: userID,
		conn:   conn,
		out:    make(chan any, sendBuffer),
		done:   make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

func (s *Session) writeLoop() {
	for {
		select {
		case frame := <-s.out:
			if err := s.conn.WriteJSON(frame); err != nil {
				s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}

// trySend enqueues a frame without blocking. It reports false when the
// session is closed or its buffer is full; the caller treats that as a send
// failure local to this session.
func (s *Session) trySend(frame any) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- frame:
		return true
	default:
		return false
	}
}

// Notify enqueues a frame addressed to this session alone, outside the
// actor's broadcast path. Used for per-command error frames. Best-effort: a
// full buffer or closed session drops the frame.
func (s *Session) Notify(frame any) bool {
	return s.trySend(frame)
}

// Close shuts the session down. Idempotent; pending undelivered frames are
// dropped.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// Done is closed once the session has been closed from either side.
func (s *Session) Done() <-chan struct{} {
	return s.done
}
