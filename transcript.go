package main

import (
	"strings"

	"voiceassistant/pkg/session"
)

const (
	transcriptLines = 8
	maxLineRunes    = 72
)

// transcript keeps the latest lines shown in the tray menu. It is owned by
// the UI loop.
type transcript struct {
	lines     []session.TranscriptEvent
	lastReply string
}

func (t *transcript) add(ev session.TranscriptEvent) {
	ev.Text = strings.TrimSpace(ev.Text)
	t.lines = append(t.lines, ev)
	if len(t.lines) > transcriptLines {
		t.lines = t.lines[len(t.lines)-transcriptLines:]
	}
	if ev.Speaker == session.Agent {
		t.lastReply = ev.Text
	}
}

// titles returns the menu titles, oldest first.
func (t *transcript) titles() []string {
	out := make([]string, len(t.lines))
	for i, ev := range t.lines {
		out[i] = truncate(ev.Speaker.String()+": "+ev.Text, maxLineRunes)
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func statusTitle(s session.State) string {
	switch s {
	case session.Starting:
		return "Connecting..."
	case session.Active:
		return "Listening"
	case session.Stopping:
		return "Closing..."
	default:
		return "Ready"
	}
}
