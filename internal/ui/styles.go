// Package ui renders terminal output for the restaurants CLI.
//
// Styling is applied only when stdout is a terminal and NO_COLOR is unset.
package ui

import (
	"os"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"
)

var colorEnabled atomic.Bool

func init() {
	colorEnabled.Store(IsTerminal(os.Stdout) && os.Getenv("NO_COLOR") == "")
}

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	boldStyle   = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// SetColor forces styling on or off.
func SetColor(enabled bool) {
	colorEnabled.Store(enabled)
}

// ColorEnabled reports whether output is styled.
func ColorEnabled() bool {
	return colorEnabled.Load()
}

func render(style lipgloss.Style, s string) string {
	if !colorEnabled.Load() {
		return s
	}
	return style.Render(s)
}

// RenderPass styles a success marker.
func RenderPass(s string) string { return render(passStyle, s) }

// RenderWarn styles a warning marker.
func RenderWarn(s string) string { return render(warnStyle, s) }

// RenderFail styles an error marker.
func RenderFail(s string) string { return render(failStyle, s) }

// RenderAccent styles highlighted text.
func RenderAccent(s string) string { return render(accentStyle, s) }

// RenderMuted styles secondary text.
func RenderMuted(s string) string { return render(mutedStyle, s) }

// RenderBold styles headings.
func RenderBold(s string) string { return render(boldStyle, s) }

// Table renders rows under headers with a rounded border.
func Table(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers(headers...).
		Rows(rows...)

	if colorEnabled.Load() {
		t = t.StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	} else {
		t = t.StyleFunc(func(row, col int) lipgloss.Style {
			return lipgloss.NewStyle().Padding(0, 1)
		})
	}
	return t.String()
}

// Stars renders a 0-5 rating as filled and empty stars.
func Stars(rating int) string {
	rating = min(max(rating, 0), 5)
	return strings.Repeat("★", rating) + strings.Repeat("☆", 5-rating)
}
