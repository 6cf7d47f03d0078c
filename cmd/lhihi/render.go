package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"lhihi/internal/types"
)

var (
	accentColor = lipgloss.Color("#8BC34A")
	mutedColor  = lipgloss.Color("#7a8699")
	errorColor  = lipgloss.Color("#e53935")

	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	mutedStyle     = lipgloss.NewStyle().Foreground(mutedColor)
	errorStyle     = lipgloss.NewStyle().Foreground(errorColor)
	userLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2196F3"))
	botLabelStyle  = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	inputBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(mutedColor).Padding(0, 1)
)

// newRenderer builds a markdown renderer for the given width. A nil renderer
// means plain text.
func newRenderer(width int) *glamour.TermRenderer {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	return r
}

func renderMarkdown(r *glamour.TermRenderer, text string) string {
	if r == nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

// renderSegments turns rich segments into markdown: images and videos become
// links, pending images a placeholder line.
func renderSegments(segs []types.Segment) string {
	var sb strings.Builder
	for _, s := range segs {
		switch s.Kind {
		case types.SegmentText:
			sb.WriteString(s.Text)
		case types.SegmentImage:
			fmt.Fprintf(&sb, "\n![image](%s)\n", s.URL)
		case types.SegmentVideo:
			title := s.Title
			if title == "" {
				title = "video"
			}
			fmt.Fprintf(&sb, "\n[▶ %s](%s)\n", title, s.URL)
		case types.SegmentPendingImage:
			sb.WriteString("\n_(image is still generating)_\n")
		}
	}
	return sb.String()
}

// renderResult formats a generation result for the terminal.
func renderResult(r *glamour.TermRenderer, res *types.GenerationResult, showThinking bool) string {
	var sb strings.Builder
	if showThinking && res.Thinking != "" {
		sb.WriteString(mutedStyle.Render("Thinking:\n" + res.Thinking))
		sb.WriteString("\n\n")
	}

	body := res.Response
	if len(res.Segments) > 0 {
		body = renderSegments(res.Segments)
	}
	sb.WriteString(renderMarkdown(r, body))

	if len(res.Sources) > 0 {
		sb.WriteString("\n\n" + titleStyle.Render("Sources"))
		for i, s := range res.Sources {
			fmt.Fprintf(&sb, "\n  %d. %s", i+1, s)
		}
	}
	if len(res.RelatedQueries) > 0 {
		sb.WriteString("\n\n" + titleStyle.Render("Related"))
		for _, q := range res.RelatedQueries {
			sb.WriteString("\n  • " + q)
		}
	}

	meta := fmt.Sprintf("%s via %s", res.Route, res.BackendID)
	if res.Model != "" {
		meta += " (" + res.Model + ")"
	}
	if res.Fallback {
		meta += " [fallback]"
	}
	if res.Degraded {
		meta = errorStyle.Render(meta + " [degraded]")
	} else {
		meta = mutedStyle.Render(meta)
	}
	sb.WriteString("\n\n" + meta)
	return sb.String()
}
