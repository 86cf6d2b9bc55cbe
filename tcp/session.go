package tcp

import "github.com/google/uuid"

// SessionState tracks one server-side connection's position in the
// handshake/serve state machine that server.go's serve loop drives. Exactly one
// goroutine ever owns a Session, so the state needs no synchronization of
// its own — it plays the role the teacher's single-goroutine-per-task
// ownership model plays elsewhere in this port, just scoped to one TCP
// connection instead of one WorkItem.
type SessionState int

const (
	StateConnected SessionState = iota
	StateHandshake
	StateIdle
	StateServing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnected:
		return "CONNECTED"
	case StateHandshake:
		return "HANDSHAKE"
	case StateIdle:
		return "IDLE"
	case StateServing:
		return "SERVING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// session tracks one connection's state for logging/metrics; the serve
// loop in server.go advances it directly. A CmdPing received while state is
// StateServing is a protocol error (SPEC_FULL.md's resolution of the
// corresponding open question): the keepalive probe is only valid at
// StateConnected or StateIdle, never interleaved with an in-flight
// GETDATA/COMPUTE/RESULT exchange.
type session struct {
	id    uuid.UUID
	state SessionState
	addr  string
}

func newSession(addr string) *session {
	return &session{id: uuid.New(), state: StateConnected, addr: addr}
}

func (s *session) allowsPing() bool {
	return s.state == StateConnected || s.state == StateIdle
}
