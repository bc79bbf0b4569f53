// Package render prints a history snapshot for the terminal.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/go-go-golems/rephrase/pkg/history"
	"github.com/go-go-golems/rephrase/pkg/journal"
)

type Renderer struct {
	out   io.Writer
	width int

	userHeader      lipgloss.Style
	assistantHeader lipgloss.Style
	body            lipgloss.Style
	errorBody       lipgloss.Style
	meta            lipgloss.Style
}

// New returns a renderer for out. Colors are only emitted when out is a
// color-capable terminal.
func New(out io.Writer, width int) *Renderer {
	r := lipgloss.NewRenderer(out)
	if width <= 0 {
		width = 80
	}
	return &Renderer{
		out:             out,
		width:           width,
		userHeader:      r.NewStyle().Bold(true).Foreground(lipgloss.Color("#AFAFAF")),
		assistantHeader: r.NewStyle().Bold(true).Foreground(lipgloss.Color("62")),
		body:            r.NewStyle().MarginLeft(2).Width(width - 2),
		errorBody:       r.NewStyle().MarginLeft(2).Width(width - 2).Foreground(lipgloss.Color("#FF5F5F")),
		meta:            r.NewStyle().MarginLeft(2).Foreground(lipgloss.Color("#888888")),
	}
}

func (r *Renderer) Turn(t history.Turn) string {
	var b strings.Builder
	if t.Role == history.RoleUser {
		b.WriteString(r.userHeader.Render("you"))
		b.WriteString("\n")
		b.WriteString(r.body.Render(t.Content))
		return b.String()
	}

	header := t.Style
	if header == "" {
		header = "assistant"
	}
	if t.Model != "" {
		header += " · " + t.Model
	}
	b.WriteString(r.assistantHeader.Render(header))
	b.WriteString("\n")
	if t.Status == history.StatusError {
		b.WriteString(r.errorBody.Render(t.Content))
	} else {
		b.WriteString(r.body.Render(t.Content))
	}
	if meta := Timing(t.Status, t.TimeToFirstToken, t.TotalTime); meta != "" {
		b.WriteString("\n")
		b.WriteString(r.meta.Render(meta))
	}
	return b.String()
}

// History writes every turn, separated by blank lines.
func (r *Renderer) History(turns []history.Turn) error {
	parts := make([]string, 0, len(turns))
	for _, t := range turns {
		parts = append(parts, r.Turn(t))
	}
	_, err := fmt.Fprintln(r.out, strings.Join(parts, "\n\n"))
	return err
}

// Timing formats the status and latency line of an assistant turn.
func Timing(status history.Status, ttft, total *int64) string {
	var parts []string
	if status == history.StatusStreaming {
		parts = append(parts, "streaming…")
	}
	if ttft != nil {
		parts = append(parts, fmt.Sprintf("first token %dms", *ttft))
	}
	if total != nil {
		parts = append(parts, fmt.Sprintf("total %dms", *total))
	}
	return strings.Join(parts, " · ")
}

// Cycles writes a table of journal records.
func (r *Renderer) Cycles(recs []journal.CycleRecord) error {
	header := r.assistantHeader.Render(fmt.Sprintf("%-36s  %-8s  %-24s  %8s  %8s  %s", "cycle", "outcome", "model", "ttft", "total", "styles"))
	if _, err := fmt.Fprintln(r.out, header); err != nil {
		return err
	}
	for _, c := range recs {
		line := fmt.Sprintf("%-36s  %-8s  %-24s  %8s  %8s  %s",
			c.CycleID, c.Outcome, c.Model, ms(c.TimeToFirstTokenMs), ms(c.TotalTimeMs), strings.Join(c.Styles, ","))
		if c.Outcome == journal.OutcomeError {
			line = r.errorBody.UnsetMarginLeft().UnsetWidth().Render(line)
		}
		if _, err := fmt.Fprintln(r.out, line); err != nil {
			return err
		}
	}
	return nil
}

func ms(v *int64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%dms", *v)
}
