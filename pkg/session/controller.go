// Package session runs at most one conversation at a time and relays its
// transcript to a Sink.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"voiceassistant/pkg/credentials"
	"voiceassistant/pkg/logging"
)

var logger = logging.New("session")

// closed is returned by Done while Idle.
var closed = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Config holds controller dependencies.
type Config struct {
	Dial Dialer
	Sink Sink

	// OnStateChange is called once per transition, in order, without the
	// controller lock held. It may call State, Done and Err but must not
	// call Start or Stop.
	OnStateChange func(State)
}

// Controller owns the single session of a process or window.
type Controller struct {
	dial    Dialer
	sink    Sink
	onState func(State)

	mu     sync.Mutex
	state  State
	conv   Conversation
	cancel context.CancelFunc
	done   chan struct{}
	err    error

	// pending holds transitions not yet reported. notifyMu serializes
	// delivery and is never acquired while mu is held.
	pending  []State
	notifyMu sync.Mutex
}

// NewController creates an Idle controller.
func NewController(cfg Config) *Controller {
	sink := cfg.Sink
	if sink == nil {
		sink = discard{}
	}
	return &Controller{
		dial:    cfg.Dial,
		sink:    sink,
		onState: cfg.OnStateChange,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done returns a channel closed when the current session is back to Idle.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Idle {
		return closed
	}
	return c.done
}

// Err returns the failure that ended the last session, or nil if it was
// stopped or ended cleanly.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Start dials and runs a conversation on a goroutine owned by the
// controller. It returns ErrAlreadyActive unless the controller is Idle.
func (c *Controller) Start(creds credentials.Credentials) error {
	if c.dial == nil {
		return errors.New("session: no dialer configured")
	}

	c.mu.Lock()
	if c.state != Idle {
		c.mu.Unlock()
		return ErrAlreadyActive
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.conv = nil
	c.err = nil
	c.transitionLocked(Starting)

	logger.Infof("Starting session for agent %s", creds.AgentID)
	go c.run(ctx, creds, done)
	return nil
}

// Stop ends the current session and waits for its teardown. It is a no-op
// while Idle and may be called from any goroutine, any number of times.
func (c *Controller) Stop() {
	c.mu.Lock()
	switch c.state {
	case Idle:
		c.mu.Unlock()
		return
	case Stopping:
		done := c.done
		c.mu.Unlock()
		<-done
		return
	}

	conv, cancel, done := c.conv, c.cancel, c.done
	c.transitionLocked(Stopping)

	logger.Infof("Stopping session")
	if conv != nil {
		endSession(conv)
	}
	cancel()
	<-done
	logger.Infof("Session stopped")
}

// transitionLocked sets the state, releases mu and reports the change.
// It returns once every transition queued so far has been reported.
func (c *Controller) transitionLocked(s State) {
	c.state = s
	c.pending = append(c.pending, s)
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) notify() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	for {
		c.mu.Lock()
		if len(c.pending) == 0 {
			c.mu.Unlock()
			return
		}
		s := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()

		logger.Debugf("State -> %s", s)
		if c.onState != nil {
			c.onState(s)
		}
	}
}

func (c *Controller) run(ctx context.Context, creds credentials.Credentials, done chan struct{}) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = &SessionError{Op: "run", Err: fmt.Errorf("panic: %v", r)}
		}
		c.finish(err, done)
	}()

	conv, dialErr := c.dial(creds, &relay{c: c, done: done})
	if dialErr != nil {
		err = &SessionError{Op: "dial", Err: dialErr}
		return
	}

	c.mu.Lock()
	if c.state == Stopping {
		c.mu.Unlock()
		return
	}
	c.conv = conv
	c.mu.Unlock()

	if runErr := conv.StartSession(ctx); runErr != nil {
		err = &SessionError{Op: "run", Err: runErr}
	}
}

func (c *Controller) finish(err error, done chan struct{}) {
	c.mu.Lock()
	stopping := c.state == Stopping
	c.mu.Unlock()

	switch {
	case err != nil && stopping:
		logger.Debugf("Ignoring error during teardown: %v", err)
	case err != nil:
		logger.Errorf("%v", err)
		c.sink.OnSystemMessage("Error: " + err.Error())
	case !stopping:
		logger.Infof("Conversation ended by the remote side")
		c.sink.OnSystemMessage("Conversation ended")
	}

	c.mu.Lock()
	if !stopping {
		c.err = err
	}
	cancel := c.cancel
	c.conv = nil
	c.cancel = nil
	c.transitionLocked(Idle)

	if cancel != nil {
		cancel()
	}
	close(done)
}

func endSession(conv Conversation) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("EndSession panicked: %v", r)
		}
	}()
	conv.EndSession()
}

// relay forwards conversation callbacks for one session.
type relay struct {
	c    *Controller
	done chan struct{}
}

func (r *relay) OnReady() {
	c := r.c
	c.mu.Lock()
	if c.done != r.done || c.state != Starting {
		c.mu.Unlock()
		return
	}
	c.transitionLocked(Active)
	logger.Infof("Session active")
}

func (r *relay) OnAgentResponse(text string) {
	r.c.sink.OnAgentUtterance(text)
}

func (r *relay) OnUserTranscript(text string) {
	r.c.sink.OnUserUtterance(text)
}

type discard struct{}

func (discard) OnAgentUtterance(string) {}
func (discard) OnUserUtterance(string)  {}
func (discard) OnSystemMessage(string)  {}
