package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"stockbrief/internal/action"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// Colors follow the popup status banner: green for success, red for errors,
// blue for information.
var (
	successColor = lipgloss.Color("#8BC34A")
	errorColor   = lipgloss.Color("#e53935")
	infoColor    = lipgloss.Color("#2196F3")
	mutedColor   = lipgloss.Color("#8a94a6")

	successStyle = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(infoColor)
	labelStyle   = lipgloss.NewStyle().Foreground(mutedColor).Width(16)
	headerStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
)

func kindStyle(k action.Kind) lipgloss.Style {
	switch k {
	case action.KindSuccess:
		return successStyle
	case action.KindError:
		return errorStyle
	}
	return infoStyle
}

// printStatus writes the banner line for st, followed by missing fields on
// extraction failures. With --json the whole status is printed instead.
func printStatus(w io.Writer, st action.Status) {
	if jsonOut {
		printJSON(w, st)
		return
	}
	fmt.Fprintln(w, kindStyle(st.Kind).Render(st.Message))
	if len(st.Missing) > 0 {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("missing"), strings.Join(st.Missing, ", "))
	}
}

// statusError turns a failed status into the command error so the exit code
// reflects it. The message was already printed.
func statusError(st action.Status) error {
	if st.OK() {
		return nil
	}
	if st.Err != nil {
		return st.Err
	}
	return fmt.Errorf("%s", st.Message)
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func printField(w io.Writer, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render(label), value)
}

// renderYAML renders text as a fenced YAML block for the terminal. Plain
// text is returned when stdout is not a terminal or rendering fails.
func renderYAML(text string) string {
	if fi, err := os.Stdout.Stat(); err != nil || fi.Mode()&os.ModeCharDevice == 0 {
		return text
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(0),
	)
	if err != nil {
		return text
	}
	out, err := r.Render("```yaml\n" + text + "\n```\n")
	if err != nil {
		return text
	}
	return out
}
