// Package console renders a conversation transcript to a terminal as it
// changes.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/user/pdfchat/internal/transcript"
	"github.com/user/pdfchat/internal/types"
)

// Printer writes assistant messages to w, streaming reply fragments as they
// arrive. Subscribe Observe to a transcript to use it.
type Printer struct {
	w io.Writer

	label  lipgloss.Style
	notice lipgloss.Style
	refs   lipgloss.Style
	failed lipgloss.Style

	mu      sync.Mutex
	open    types.MessageID
	written string
}

// NewPrinter creates a Printer that styles output for w's terminal.
func NewPrinter(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:      w,
		label:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("#06B6D4")),
		notice: r.NewStyle().Faint(true),
		refs:   r.NewStyle().Foreground(lipgloss.Color("#A78BFA")),
		failed: r.NewStyle().Foreground(lipgloss.Color("#EF4444")),
	}
}

// Prompt returns the styled input prompt.
func (p *Printer) Prompt() string {
	return p.label.Render("you ›") + " "
}

// Observe renders one transcript change.
func (p *Printer) Observe(c transcript.Change) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, m := range c.Messages {
		if m.Role != types.RoleAssistant {
			continue
		}
		switch c.Kind {
		case transcript.ChangeAppended:
			p.begin(m)
		case transcript.ChangeUpdated:
			p.update(m, c.Delta)
		case transcript.ChangeFinalized:
			if m.ID == p.open {
				fmt.Fprintln(p.w)
				p.open = ""
				p.written = ""
			}
		}
	}
}

func (p *Printer) begin(m types.Message) {
	switch m.Kind {
	case types.KindNotice, types.KindGuidance:
		fmt.Fprint(p.w, render(p.notice, m.Content))
	case types.KindReferences:
		fmt.Fprint(p.w, "\n"+render(p.refs, m.Content))
	default:
		fmt.Fprint(p.w, p.label.Render("pdfchat ›")+" "+m.Content)
	}
	p.open = m.ID
	p.written = m.Content
}

func (p *Printer) update(m types.Message, delta string) {
	if m.ID != p.open {
		return
	}
	if delta != "" {
		fmt.Fprint(p.w, delta)
		p.written += delta
		return
	}
	// Content was replaced rather than extended.
	if m.Content == p.written {
		return
	}
	if p.written != "" {
		fmt.Fprintln(p.w)
	}
	fmt.Fprint(p.w, render(p.failed, m.Content))
	p.written = m.Content
}

// render styles each line on its own so multi-line text is not padded to a
// block.
func render(style lipgloss.Style, text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = style.Render(line)
		}
	}
	return strings.Join(lines, "\n")
}
