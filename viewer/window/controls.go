package window

import (
	"errors"
	"fmt"
	"image/color"

	"github.com/wricardo/gridworld-viewer/viewer/session"
)

// ErrNoWindow is returned by Run in builds without the ebiten tag.
var ErrNoWindow = errors.New("window mode requires building with the 'ebiten' tag")

const (
	lineHeight   = 16
	panelPadding = 8
	statusHeight = 24
	// DebugPrint glyphs are 6px wide
	glyphWidth = 6
)

// Action is a user intent decoded from the keyboard
type Action int

const (
	ActionNone Action = iota
	ActionStartStepping
	ActionStopStepping
	ActionStep
	ActionQuit
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionStartStepping:
		return "start stepping"
	case ActionStopStepping:
		return "stop stepping"
	case ActionStep:
		return "step"
	case ActionQuit:
		return "quit"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Controller is the part of a session the keyboard drives
type Controller interface {
	StartStepping() error
	StopStepping() error
	Step() error
}

// Apply performs action on c. A session reports its own failures on its log
// panel, so callers usually only log the returned error.
func Apply(c Controller, action Action) error {
	switch action {
	case ActionStartStepping:
		return c.StartStepping()
	case ActionStopStepping:
		return c.StopStepping()
	case ActionStep:
		return c.Step()
	default:
		return nil
	}
}

// PanelHeight is the height of the area below the grid for tail log lines.
func PanelHeight(tail int) int {
	if tail < 0 {
		tail = 0
	}
	return statusHeight + tail*lineHeight + panelPadding
}

// StatusColor is the indicator color for a connection state.
func StatusColor(status session.Status) color.RGBA {
	switch status {
	case session.Connecting:
		return color.RGBA{240, 200, 60, 255}
	case session.Open:
		return color.RGBA{80, 200, 90, 255}
	case session.Closed:
		return color.RGBA{220, 70, 60, 255}
	default:
		return color.RGBA{140, 140, 140, 255}
	}
}

// StatusText is the one-line header drawn next to the indicator.
func StatusText(uri string, stats session.Stats) string {
	stepping := "idle"
	if stats.Stepping {
		stepping = "stepping"
	}
	return fmt.Sprintf("%s  %s  %s  snapshots:%d entities:%d", stats.Status, uri, stepping, stats.Received, stats.Entities)
}

// PanelText formats log lines for a panel width pixels wide, cutting lines
// that would overflow.
func PanelText(lines []session.Line, width int) []string {
	maxChars := (width - 2*panelPadding) / glyphWidth
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		text := line.String()
		if maxChars > 3 && len(text) > maxChars {
			text = text[:maxChars-3] + "..."
		}
		out = append(out, text)
	}
	return out
}
