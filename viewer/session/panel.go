package session

import (
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LineKind classifies a log panel line
type LineKind string

const (
	LineInfo  LineKind = "info"
	LineReply LineKind = "reply"
	LineSent  LineKind = "sent"
	LineError LineKind = "error"
)

// Line is one entry of the log panel
type Line struct {
	At   time.Time `json:"at"`
	Kind LineKind  `json:"kind"`
	Text string    `json:"text"`
}

// String formats the line with its arrival time.
func (l Line) String() string {
	return fmt.Sprintf("%s %s", l.At.Format("15:04:05"), l.Text)
}

// Panel is the append-only, user facing log of a session
type Panel struct {
	mu     sync.RWMutex
	lines  []Line
	sink   io.Writer
	logger *zap.Logger
	now    func() time.Time
}

// NewPanel creates an empty panel. Every appended line is also logged.
func NewPanel(logger *zap.Logger) *Panel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Panel{logger: logger, now: time.Now}
}

// SetSink makes the panel print every new line to w. A nil w disables it.
func (p *Panel) SetSink(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sink = w
}

// Append adds a line.
func (p *Panel) Append(kind LineKind, text string) Line {
	p.mu.Lock()
	line := Line{At: p.now(), Kind: kind, Text: text}
	p.lines = append(p.lines, line)
	if p.sink != nil {
		fmt.Fprintln(p.sink, line.String())
	}
	p.mu.Unlock()

	if kind == LineError {
		p.logger.Warn(text, zap.String("line", string(kind)))
	} else {
		p.logger.Debug(text, zap.String("line", string(kind)))
	}
	return line
}

// Appendf adds a formatted line.
func (p *Panel) Appendf(kind LineKind, format string, args ...interface{}) Line {
	return p.Append(kind, fmt.Sprintf(format, args...))
}

// Lines returns a copy of every line in arrival order.
func (p *Panel) Lines() []Line {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Line, len(p.lines))
	copy(out, p.lines)
	return out
}

// Tail returns a copy of the last n lines.
func (p *Panel) Tail(n int) []Line {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	start := len(p.lines) - n
	if start < 0 {
		start = 0
	}
	out := make([]Line, len(p.lines)-start)
	copy(out, p.lines[start:])
	return out
}

// Len returns the number of lines.
func (p *Panel) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.lines)
}

// Count returns how many lines of kind the panel holds.
func (p *Panel) Count(kind LineKind) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, l := range p.lines {
		if l.Kind == kind {
			n++
		}
	}
	return n
}
