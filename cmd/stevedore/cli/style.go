// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Styles holds the render styles for human-facing output. On a
// non-terminal stdout every style renders as plain text so piped
// output stays clean.
type Styles struct {
	// Step renders build step banner lines.
	Step lipgloss.Style
	// Detail renders secondary information (layer ids, sizes).
	Detail lipgloss.Style
	// Success renders completion messages.
	Success lipgloss.Style
	// Error renders failure messages.
	Error lipgloss.Style
}

// NewStyles builds the style set, styled only when stdout is a
// terminal.
func NewStyles() Styles {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		plain := lipgloss.NewStyle()
		return Styles{Step: plain, Detail: plain, Success: plain, Error: plain}
	}
	return Styles{
		Step:    lipgloss.NewStyle().Bold(true),
		Detail:  lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
	}
}
