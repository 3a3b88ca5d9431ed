// Package ui provides console output helpers for prism-sidecar
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Styles for consistent UI
var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
)

// UI writes human-facing command output. Logs go elsewhere.
type UI struct {
	out io.Writer
	err io.Writer
}

// New creates a UI on stdout and stderr
func New() *UI {
	return NewWithWriters(os.Stdout, os.Stderr)
}

// NewWithWriters creates a UI on the given writers
func NewWithWriters(out, err io.Writer) *UI {
	return &UI{out: out, err: err}
}

// Success prints a success message
func (ui *UI) Success(msg string) {
	fmt.Fprintln(ui.out, successStyle.Render("✓ "+msg))
}

// Error prints an error message
func (ui *UI) Error(msg string) {
	fmt.Fprintln(ui.err, errorStyle.Render("✗ "+msg))
}

// Warning prints a warning message
func (ui *UI) Warning(msg string) {
	fmt.Fprintln(ui.out, warningStyle.Render("⚠ "+msg))
}

// Header prints a section header
func (ui *UI) Header(title string) {
	fmt.Fprintln(ui.out, headerStyle.Render(title))
}

// KeyValue prints an indented key-value pair
func (ui *UI) KeyValue(key, value string) {
	fmt.Fprintf(ui.out, "  %s: %s\n", subtleStyle.Render(key), value)
}

// Hint prints a multi-line suggestion, one muted line each
func (ui *UI) Hint(text string) {
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		fmt.Fprintln(ui.err, subtleStyle.Render("  "+line))
	}
}

// Raw prints msg unstyled; machine-readable output such as a bare port number
func (ui *UI) Raw(msg string) {
	fmt.Fprintln(ui.out, msg)
}

// Out returns the writer used for regular output
func (ui *UI) Out() io.Writer {
	return ui.out
}
