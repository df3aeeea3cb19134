package sink

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"voiceassistant/pkg/session"
)

var (
	agentStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0071E3"))
	userStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#34C759"))
	systemStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF3B30"))
)

// Console prints transcript lines as "Speaker: text".
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole writes to out.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) OnAgentUtterance(text string) { c.print(session.Agent, text) }
func (c *Console) OnUserUtterance(text string)  { c.print(session.User, text) }
func (c *Console) OnSystemMessage(text string)  { c.print(session.System, text) }

func (c *Console) print(sp session.Speaker, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "%s %s\n", Label(sp), strings.TrimSpace(text))
}

// Label renders the styled "Speaker:" prefix.
func Label(sp session.Speaker) string {
	label := sp.String() + ":"
	switch sp {
	case session.Agent:
		return agentStyle.Render(label)
	case session.User:
		return userStyle.Render(label)
	default:
		return systemStyle.Render(label)
	}
}
