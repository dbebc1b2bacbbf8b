// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package components provides reusable widgets for the copilot TUI.
package components

import (
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/copilot-engine/internal/ui/styles"
)

// =============================================================================
// SPINNER MODEL
// =============================================================================

// Spinner shows that an assistant reply is on its way.
type Spinner struct {
	spinner spinner.Model

	style     SpinnerStyle
	message   string
	startTime time.Time

	isActive  bool
	showTimer bool
}

// SpinnerStyle defines the animation frames.
type SpinnerStyle int

const (
	SpinnerLine  SpinnerStyle = iota // Line rotation (default)
	SpinnerDots                      // Typing dots
	SpinnerPulse                     // Pulsing circle
)

// NewSpinner creates a spinner with ASCII-compatible frames.
func NewSpinner() Spinner {
	s := Spinner{
		spinner:   spinner.New(),
		message:   "Loading",
		showTimer: true,
	}
	s.SetStyle(SpinnerLine)
	return s
}

// NewTypingSpinner creates the "Assistant is typing" indicator.
func NewTypingSpinner() Spinner {
	s := NewSpinner()
	s.SetStyle(SpinnerDots)
	s.message = "Assistant is typing"
	s.showTimer = false
	return s
}

// SetStyle changes the spinner animation style.
func (s *Spinner) SetStyle(style SpinnerStyle) {
	s.style = style

	switch style {
	case SpinnerDots:
		s.spinner.Spinner = spinner.Spinner{
			Frames: []string{".  ", ".. ", "...", " ..", "  .", "   "},
			FPS:    time.Second / 6,
		}
	case SpinnerPulse:
		s.spinner.Spinner = spinner.Spinner{
			Frames: []string{"( )", "(o)", "(O)", "(o)"},
			FPS:    time.Second / 8,
		}
	default:
		s.spinner.Spinner = spinner.Spinner{
			Frames: []string{"|", "/", "-", "\\"},
			FPS:    time.Second / 10,
		}
	}
}

// SetMessage sets the text displayed next to the spinner.
func (s *Spinner) SetMessage(msg string) {
	s.message = msg
}

// SetShowTimer enables or disables the elapsed time display.
func (s *Spinner) SetShowTimer(show bool) {
	s.showTimer = show
}

// =============================================================================
// STATE MANAGEMENT
// =============================================================================

// Start activates the spinner. It returns nil if it is already running so
// only one tick loop exists.
func (s *Spinner) Start() tea.Cmd {
	if s.isActive {
		return nil
	}
	s.isActive = true
	s.startTime = time.Now()
	return s.spinner.Tick
}

// Stop deactivates the spinner.
func (s *Spinner) Stop() {
	s.isActive = false
}

// IsActive returns whether the spinner is currently running.
func (s *Spinner) IsActive() bool {
	return s.isActive
}

// Elapsed returns the duration since the spinner started.
func (s *Spinner) Elapsed() time.Duration {
	if s.startTime.IsZero() {
		return 0
	}
	return time.Since(s.startTime)
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Update advances the animation. Ticks stop once the spinner is inactive.
func (s Spinner) Update(msg tea.Msg) (Spinner, tea.Cmd) {
	if !s.isActive {
		return s, nil
	}
	var cmd tea.Cmd
	s.spinner, cmd = s.spinner.Update(msg)
	return s, cmd
}

// View renders the spinner, or nothing when inactive.
func (s Spinner) View() string {
	if !s.isActive {
		return ""
	}

	result := lipgloss.NewStyle().Foreground(styles.Purple).Render(s.spinner.View()) +
		" " + lipgloss.NewStyle().Foreground(styles.TextSecondary).Render(s.message)

	if s.showTimer && !s.startTime.IsZero() {
		result += lipgloss.NewStyle().
			Foreground(styles.TextMuted).
			Render(" (" + formatElapsed(time.Since(s.startTime)) + ")")
	}
	return result
}

// formatElapsed formats a duration as "12s" or "1m 5s".
func formatElapsed(d time.Duration) string {
	seconds := int(d.Seconds())
	if seconds < 60 {
		return strconv.Itoa(seconds) + "s"
	}
	return strconv.Itoa(seconds/60) + "m " + strconv.Itoa(seconds%60) + "s"
}
