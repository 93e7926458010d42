// Package console prints the launcher's user-facing progress lines.
// Colours are applied only when the destination is a terminal.
package console

import (
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

const (
	markInfo    = "•"
	markSuccess = "✓"
	markWarn    = "!"
	markError   = "✗"
)

type Printer struct {
	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer

	title   lipgloss.Style
	info    lipgloss.Style
	success lipgloss.Style
	warn    lipgloss.Style
	fail    lipgloss.Style
	hint    lipgloss.Style
	url     lipgloss.Style
}

func New(out, errOut io.Writer, noColor bool) *Printer {
	p := &Printer{out: out, errOut: errOut}
	if noColor {
		plain := lipgloss.NewStyle()
		p.title, p.info, p.success, p.warn, p.fail, p.hint, p.url = plain, plain, plain, plain, plain, plain, plain
		return p
	}
	r := lipgloss.NewRenderer(out)
	re := lipgloss.NewRenderer(errOut)
	p.title = r.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	p.info = r.NewStyle().Foreground(lipgloss.Color("12"))
	p.success = r.NewStyle().Foreground(lipgloss.Color("10"))
	p.warn = re.NewStyle().Foreground(lipgloss.Color("11"))
	p.fail = re.NewStyle().Foreground(lipgloss.Color("9"))
	p.hint = r.NewStyle().Faint(true)
	p.url = r.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
	return p
}

func (p *Printer) Title(msg string)   { p.print(p.out, p.title, "", msg) }
func (p *Printer) Info(msg string)    { p.print(p.out, p.info, markInfo, msg) }
func (p *Printer) Success(msg string) { p.print(p.out, p.success, markSuccess, msg) }
func (p *Printer) Warn(msg string)    { p.print(p.errOut, p.warn, markWarn, msg) }
func (p *Printer) Error(msg string)   { p.print(p.errOut, p.fail, markError, msg) }

// Hint prints indented secondary text, one output line per input line.
func (p *Printer) Hint(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, line := range strings.Split(msg, "\n") {
		if line == "" {
			_, _ = io.WriteString(p.out, "\n")
			continue
		}
		_, _ = io.WriteString(p.out, "  "+p.hint.Render(line)+"\n")
	}
}

// URL prints a label followed by a highlighted address.
func (p *Printer) URL(label, url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = io.WriteString(p.out, markInfo+" "+label+" "+p.url.Render(url)+"\n")
}

// Line relays one line of the external process's stdout unchanged.
func (p *Printer) Line(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = io.WriteString(p.out, line+"\n")
}

// ErrLine relays one line of the external process's stderr unchanged.
func (p *Printer) ErrLine(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = io.WriteString(p.errOut, line+"\n")
}

// Stdout and Stderr expose the raw streams for commands whose output is
// copied through as-is.
func (p *Printer) Stdout() io.Writer { return lockedWriter{p: p, w: p.out} }
func (p *Printer) Stderr() io.Writer { return lockedWriter{p: p, w: p.errOut} }

func (p *Printer) print(w io.Writer, style lipgloss.Style, mark, msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, line := range strings.Split(msg, "\n") {
		switch {
		case i > 0 && mark != "":
			line = "  " + line
		case mark != "":
			line = mark + " " + line
		}
		_, _ = io.WriteString(w, style.Render(line)+"\n")
	}
}

type lockedWriter struct {
	p *Printer
	w io.Writer
}

func (l lockedWriter) Write(b []byte) (int, error) {
	l.p.mu.Lock()
	defer l.p.mu.Unlock()
	return l.w.Write(b)
}
