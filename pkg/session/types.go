package session

import (
	"context"
	"errors"
	"fmt"

	"voiceassistant/pkg/credentials"
)

// State is the lifecycle position of a controller's session.
type State int

const (
	Idle State = iota
	Starting
	Active
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Active:
		return "active"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Speaker attributes a transcript line.
type Speaker int

const (
	Agent Speaker = iota
	User
	System
)

func (s Speaker) String() string {
	switch s {
	case Agent:
		return "Agent"
	case User:
		return "User"
	case System:
		return "System"
	default:
		return fmt.Sprintf("speaker(%d)", int(s))
	}
}

// TranscriptEvent is one attributed utterance or system notice.
type TranscriptEvent struct {
	Speaker Speaker
	Text    string
}

// Sink displays transcript events. Implementations are called in event
// order, possibly from a goroutine other than the one that started the
// session.
type Sink interface {
	OnAgentUtterance(text string)
	OnUserUtterance(text string)
	OnSystemMessage(text string)
}

// Deliver routes ev to the sink method matching its speaker.
func Deliver(s Sink, ev TranscriptEvent) {
	switch ev.Speaker {
	case Agent:
		s.OnAgentUtterance(ev.Text)
	case User:
		s.OnUserUtterance(ev.Text)
	default:
		s.OnSystemMessage(ev.Text)
	}
}

// Listener receives events from a running conversation.
type Listener interface {
	OnReady()
	OnAgentResponse(text string)
	OnUserTranscript(text string)
}

// Conversation is the external conversational client.
type Conversation interface {
	// StartSession blocks until the conversation ends, fails or ctx is done.
	StartSession(ctx context.Context) error
	// EndSession asks a running StartSession to return.
	EndSession()
}

// Dialer builds a conversation bound to l.
type Dialer func(creds credentials.Credentials, l Listener) (Conversation, error)

var (
	// ErrAlreadyActive is returned by Start while a session is not Idle.
	ErrAlreadyActive = errors.New("session already active")

	// ErrSessionFailure marks errors raised while connecting or running.
	ErrSessionFailure = errors.New("session failure")
)

// SessionError wraps a failure of the external client.
type SessionError struct {
	Op  string // "dial", "run"
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session %s failed: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

func (e *SessionError) Is(target error) bool {
	return target == ErrSessionFailure
}
