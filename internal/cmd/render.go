package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"golang.org/x/term"

	"github.com/Iron-Ham/piper/internal/event"
	"github.com/Iron-Ham/piper/internal/pipeline"
)

var (
	primaryColor = lipgloss.Color("#A78BFA") // Purple
	successColor = lipgloss.Color("#10B981") // Green
	warningColor = lipgloss.Color("#F59E0B") // Amber
	errorColor   = lipgloss.Color("#F87171") // Red
	mutedColor   = lipgloss.Color("#9CA3AF") // Gray
)

// styles holds the lipgloss styles used for CLI diagnostics.
type styles struct {
	header  lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
	muted   lipgloss.Style
}

func newStyles(color bool) styles {
	if !color {
		plain := lipgloss.NewStyle()
		return styles{header: plain, success: plain, warning: plain, failure: plain, muted: plain}
	}
	return styles{
		header:  lipgloss.NewStyle().Bold(true).Foreground(primaryColor),
		success: lipgloss.NewStyle().Foreground(successColor),
		warning: lipgloss.NewStyle().Foreground(warningColor),
		failure: lipgloss.NewStyle().Foreground(errorColor),
		muted:   lipgloss.NewStyle().Foreground(mutedColor),
	}
}

func (s styles) forState(state pipeline.State, info pipeline.StageInfo) lipgloss.Style {
	switch {
	case state == pipeline.StateFailed:
		return s.failure
	case state == pipeline.StateExited && info.Exit.Success():
		return s.success
	case state == pipeline.StateExited:
		return s.warning
	default:
		return s.muted
	}
}

// isTerminal reports whether w is a terminal.
func isTerminal(w any) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// terminalWidth returns the column count of w, or 0 when w is not a
// terminal.
func terminalWidth(w any) int {
	f, ok := w.(*os.File)
	if !ok {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}

// truncate shortens s to maxWidth visible columns, keeping escape sequences
// intact. A non-positive maxWidth leaves s unchanged.
func truncate(s string, maxWidth int) string {
	if maxWidth <= 0 || lipgloss.Width(s) <= maxWidth {
		return s
	}
	if maxWidth <= 3 {
		return "..."
	}
	return ansi.Truncate(s, maxWidth, "...")
}

// syncWriter serializes writes from the copy goroutines and event handlers.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// renderEvent formats a lifecycle event as one diagnostic line.
func (s styles) renderEvent(e event.Event) string {
	var msg string
	switch ev := e.(type) {
	case event.PipelineStartedEvent:
		msg = fmt.Sprintf("pipeline %s started with %d stages", shortID(ev.PipelineID), ev.Stages)
	case event.StageSpawnedEvent:
		msg = fmt.Sprintf("stage %d %s spawned (pid %d)", ev.Stage, ev.Command, ev.PID)
	case event.StageFailedEvent:
		return s.failure.Render(fmt.Sprintf("▸ stage %d %s failed: %v", ev.Stage, ev.Command, ev.Err))
	case event.StageExitedEvent:
		msg = fmt.Sprintf("stage %d %s exited with code %d", ev.Stage, ev.Command, ev.ExitCode)
		if ev.Signal != "" {
			msg = fmt.Sprintf("stage %d %s killed by %s", ev.Stage, ev.Command, ev.Signal)
		}
	case event.LinkUnwiredEvent:
		msg = fmt.Sprintf("link %d→%d unwired by %s exit", ev.Upstream, ev.Downstream, ev.Trigger)
	case event.PipelineCompletedEvent:
		msg = fmt.Sprintf("pipeline %s completed in %s", shortID(ev.PipelineID), ev.Duration.Round(time.Millisecond))
	default:
		msg = e.EventType()
	}
	return s.muted.Render("▸ " + msg)
}

// renderSummary formats one row per stage. Rows are cut to width columns
// when width is positive.
func (s styles) renderSummary(stages []pipeline.StageInfo, width int) string {
	nameWidth := len("command")
	for _, st := range stages {
		nameWidth = max(nameWidth, len(st.Command))
	}
	nameCol := lipgloss.NewStyle().Width(nameWidth + 2)
	stateCol := lipgloss.NewStyle().Width(12)

	var b strings.Builder
	b.WriteString(s.header.Render("Pipeline summary"))
	b.WriteString("\n")
	for _, st := range stages {
		var detail string
		switch st.State {
		case pipeline.StateFailed:
			detail = st.Err.Error()
		case pipeline.StateExited:
			detail = fmt.Sprintf("pid %d, %s", st.Pid, st.Exit)
		default:
			detail = fmt.Sprintf("pid %d", st.Pid)
		}
		row := fmt.Sprintf("  %d. %s%s%s",
			st.Index,
			nameCol.Render(st.Command),
			stateCol.Inherit(s.forState(st.State, st)).Render(st.State.String()),
			s.muted.Render(detail))
		b.WriteString(truncate(row, width))
		b.WriteString("\n")
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
