package syncclient

import (
	"sync"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "syncclient")

// sessionTransitions enumerates the legal SessionState edges, mirroring
// the fixed state table implied by the teacher's Applier pipeline
// (Connect -> preflight -> execute -> done), generalized to a
// long-lived connection instead of a one-shot command.
var sessionTransitions = map[SessionState][]SessionState{
	SessionConnecting:   {SessionBound, SessionError, SessionDisconnected},
	SessionBound:        {SessionActive, SessionError, SessionDisconnected},
	SessionActive:       {SessionPaused, SessionError, SessionDisconnected},
	SessionPaused:       {SessionActive, SessionDisconnected},
	SessionError:        {SessionConnecting, SessionDisconnected},
	SessionDisconnected: {SessionConnecting},
}

// Session tracks one sync connection's lifecycle state, with a
// listener hook so a caller can react to transitions (mirroring the
// notify package's delivery model, but for connectivity rather than
// object changes).
type Session struct {
	mu       sync.Mutex
	state    SessionState
	listener func(from, to SessionState)
}

// NewSession returns a Session starting in SessionDisconnected.
func NewSession() *Session {
	return &Session{state: SessionDisconnected}
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnTransition installs a callback fired after every successful
// transition.
func (s *Session) OnTransition(fn func(from, to SessionState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = fn
}

func (s *Session) transition(to SessionState) error {
	s.mu.Lock()
	from := s.state
	allowed := false
	for _, next := range sessionTransitions[from] {
		if next == to {
			allowed = true
			break
		}
	}
	if !allowed {
		s.mu.Unlock()
		return &ErrInvalidTransition{From: from, To: to}
	}
	s.state = to
	listener := s.listener
	s.mu.Unlock()

	log.WithField("from", from).WithField("to", to).Debug("session transition")
	if listener != nil {
		listener(from, to)
	}
	return nil
}

func (s *Session) Connect() error      { return s.transition(SessionConnecting) }
func (s *Session) Bind() error         { return s.transition(SessionBound) }
func (s *Session) Activate() error     { return s.transition(SessionActive) }
func (s *Session) Pause() error        { return s.transition(SessionPaused) }
func (s *Session) Resume() error       { return s.transition(SessionActive) }
func (s *Session) Fail() error         { return s.transition(SessionError) }
func (s *Session) Disconnect() error   { return s.transition(SessionDisconnected) }
