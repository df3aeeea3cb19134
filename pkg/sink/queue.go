// Package sink holds the presentation targets for transcript events.
package sink

import (
	"sync"

	"voiceassistant/pkg/session"
)

// Queue hands transcript events to a single consumer, typically a UI loop
// that owns its widgets. Producers block while the consumer is behind, so
// events are never reordered or dropped.
type Queue struct {
	events chan session.TranscriptEvent
	done   chan struct{}
	once   sync.Once
}

// NewQueue creates a queue holding up to size pending events.
func NewQueue(size int) *Queue {
	return &Queue{
		events: make(chan session.TranscriptEvent, size),
		done:   make(chan struct{}),
	}
}

// Events is drained by the consumer.
func (q *Queue) Events() <-chan session.TranscriptEvent {
	return q.events
}

// Close releases blocked producers; later events are discarded.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.done) })
}

func (q *Queue) OnAgentUtterance(text string) { q.push(session.Agent, text) }
func (q *Queue) OnUserUtterance(text string)  { q.push(session.User, text) }
func (q *Queue) OnSystemMessage(text string)  { q.push(session.System, text) }

func (q *Queue) push(sp session.Speaker, text string) {
	select {
	case <-q.done:
		return
	default:
	}
	select {
	case q.events <- session.TranscriptEvent{Speaker: sp, Text: text}:
	case <-q.done:
	}
}
