package panel

import (
	"sync"

	"relaybot/internal/selection"
)

// InputMode says what the next plain text message from the operator means.
type InputMode int

const (
	InputNone InputMode = iota
	InputInterval
	InputFixedMessage
)

// Session is the operator's in-memory state: the chat picker and the
// pending text input. It is created once at startup and passed to handlers.
type Session struct {
	Picker *selection.Machine

	mu    sync.Mutex
	input InputMode
}

func NewSession() *Session {
	return &Session{Picker: selection.New()}
}

func (s *Session) Input() InputMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

func (s *Session) SetInput(m InputMode) {
	s.mu.Lock()
	s.input = m
	s.mu.Unlock()
}

// TakeInput returns the pending input mode and clears it.
func (s *Session) TakeInput() InputMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.input
	s.input = InputNone
	return m
}

// Reset abandons picking and pending input.
func (s *Session) Reset() {
	s.Picker.Reset()
	s.SetInput(InputNone)
}
