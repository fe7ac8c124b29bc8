package tui

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"studio/internal/analytics"
	"studio/internal/citation"
	"studio/internal/domain"
	"studio/internal/library"
)

const barCells = 30

var markerRe = regexp.MustCompile(`\[\d+\]`)

// View renders the active tab under the tab strip.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.tabStrip())
	b.WriteString("\n\n")

	switch m.active {
	case tabHome:
		b.WriteString(m.homePage())
	case tabUpload:
		b.WriteString(m.uploadPage())
	case tabLibrary:
		b.WriteString(m.libraryPage())
	case tabChat:
		b.WriteString(m.chatPage())
	case tabAnalytics:
		b.WriteString(m.analyticsPage())
	}

	b.WriteString("\n")
	b.WriteString(m.statusLine())
	return b.String()
}

func (m Model) tabStrip() string {
	tabs := make([]string, len(tabNames))
	for i, name := range tabNames {
		if tab(i) == m.active {
			tabs[i] = activeTabStyle.Render(name)
		} else {
			tabs[i] = inactiveTabStyle.Render(name)
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m Model) statusLine() string {
	if n, ok := m.notices.Latest(); ok {
		if n.Success {
			return successStyle.Render(n.Text)
		}
		return errorStyle.Render(n.Text)
	}
	return mutedStyle.Render("tab: switch • ctrl+r: refresh • ctrl+c: quit")
}

func (m Model) homePage() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Research library"))
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("Backend: " + m.app.Client.BaseURL()))
	b.WriteString("\n\n")
	b.WriteString(renderCards(m.app.Analytics.Overview()))
	b.WriteString("\n")
	if e := m.app.Analytics.Err(); e != "" {
		b.WriteString(errorStyle.Render(e))
		b.WriteString("\n")
	}
	b.WriteString("\nUpload a PDF, browse the library, or ask questions in Chat.\n")
	return b.String()
}

func (m Model) uploadPage() string {
	task := m.app.Upload.Task()
	var b strings.Builder
	b.WriteString(titleStyle.Render("Upload a paper"))
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("Enter a path to select a PDF, then Enter on an empty line to upload."))
	b.WriteString("\n")
	b.WriteString(inputStyle.Render(m.pathInput.View()))
	b.WriteString("\n")

	if f := task.File; f != nil {
		b.WriteString(fmt.Sprintf("Selected: %s (%s", highlightStyle.Render(f.Name), humanSize(f.Size)))
		if f.Pages > 0 {
			b.WriteString(fmt.Sprintf(", %d pages", f.Pages))
		}
		b.WriteString(")\n")
	}

	switch task.Status {
	case domain.UploadSelected:
		b.WriteString(mutedStyle.Render("Ready to upload."))
		b.WriteString("\n")
	case domain.UploadUploading:
		b.WriteString(fmt.Sprintf("Uploading %s %3d%%\n", renderBar(task.Progress), task.Progress))
	case domain.UploadSucceeded:
		b.WriteString(fmt.Sprintf("%s %3d%%\n", renderBar(task.Progress), task.Progress))
	case domain.UploadFailed:
		b.WriteString(errorStyle.Render(task.Error))
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render("Press Enter to retry."))
		b.WriteString("\n")
	}
	if m.uploadErr != "" {
		b.WriteString(errorStyle.Render(m.uploadErr))
		b.WriteString("\n")
	}
	if r := m.lastUpload; r != nil {
		b.WriteString("\n")
		b.WriteString(boxStyle.Render(strings.Join(resultLines(*r), "\n")))
		b.WriteString("\n")
	}
	return b.String()
}

func resultLines(r domain.UploadResult) []string {
	lines := []string{
		successStyle.Render("Ingested " + r.FileName),
		"Paper ID:     " + r.PaperID,
		"Embedding ID: " + r.EmbeddingID,
		fmt.Sprintf("Chunks:       %d", r.Chunks),
	}
	if r.Summary != "" {
		lines = append(lines, "", r.Summary)
	}
	return lines
}

func (m Model) libraryPage() string {
	lib := m.app.Library
	var b strings.Builder
	b.WriteString(titleStyle.Render("Library"))
	b.WriteString("\n")
	b.WriteString(inputStyle.Render(m.searchInput.View()))
	b.WriteString("\n")
	if e := lib.Err(); e != "" {
		b.WriteString(errorStyle.Render(e))
		b.WriteString("\n")
	}
	switch {
	case !lib.Loaded() && lib.Loading():
		b.WriteString(mutedStyle.Render("Loading library..."))
		b.WriteString("\n")
	case lib.Loaded() && len(lib.All()) == 0:
		b.WriteString(library.EmptyText)
		b.WriteString("\n")
	default:
		visible := lib.Visible()
		if len(visible) == 0 && lib.Query() != "" {
			b.WriteString(mutedStyle.Render(fmt.Sprintf("No papers match %q.", lib.Query())))
			b.WriteString("\n")
		}
		for _, e := range visible {
			b.WriteString(libraryRow(e))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func libraryRow(e domain.LibraryEntry) string {
	meta := []string{library.Year(e)}
	if e.Authors != "" {
		meta = append(meta, e.Authors)
	}
	if e.Source != "" {
		meta = append(meta, e.Source)
	}
	row := highlightStyle.Render(e.Title) + "  " + mutedStyle.Render(strings.Join(meta, " · "))
	if len(e.Tags) > 0 {
		row += "  " + mutedStyle.Render("#"+strings.Join(e.Tags, " #"))
	}
	return row
}

func (m Model) chatPage() string {
	var b strings.Builder
	b.WriteString(boxStyle.Render(m.chatView.View()))
	b.WriteString("\n")
	b.WriteString(inputStyle.Render(m.chatInput.View()))
	if m.chatErr != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(m.chatErr))
	}
	return b.String()
}

// renderTranscript formats chat turns for the viewport. The pending turn
// shows the spinner frame next to its text.
func renderTranscript(turns []domain.ChatTurn, spinnerFrame string, width int) string {
	wrap := lipgloss.NewStyle().Width(max(10, width-2))
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteString("\n")
		}
		switch {
		case t.Pending:
			b.WriteString(assistantStyle.Render("Assistant"))
			b.WriteString("\n")
			b.WriteString(spinnerFrame + " " + mutedStyle.Render(t.Content))
		case t.Role == domain.RoleUser:
			b.WriteString(userStyle.Render("You"))
			b.WriteString("\n")
			b.WriteString(wrap.Render(t.Content))
		default:
			b.WriteString(assistantStyle.Render("Assistant"))
			b.WriteString("\n")
			b.WriteString(highlightMarkers(wrap.Render(t.Content)))
			if lines := citation.Lines(t.Citations); len(lines) > 0 {
				b.WriteString("\n")
				b.WriteString(mutedStyle.Render(strings.Join(lines, "\n")))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// highlightMarkers emphasises inline citation markers such as "[2]".
func highlightMarkers(s string) string {
	return markerRe.ReplaceAllStringFunc(s, func(mk string) string {
		return highlightStyle.Render(mk)
	})
}

func (m Model) analyticsPage() string {
	a := m.app.Analytics
	var b strings.Builder
	b.WriteString(titleStyle.Render("Insights"))
	if a.Loading() {
		b.WriteString(mutedStyle.Render("  refreshing..."))
	}
	b.WriteString("\n")
	if e := a.Err(); e != "" {
		b.WriteString(errorStyle.Render(e))
		b.WriteString("\n")
	}
	b.WriteString(renderCards(a.Insights()))
	b.WriteString("\n\n")
	b.WriteString(titleStyle.Render("Topics"))
	b.WriteString("\n")
	b.WriteString(renderBars(a.TopicBars()))
	b.WriteString("\n")
	b.WriteString(titleStyle.Render("Sources"))
	b.WriteString("\n")
	b.WriteString(renderBars(a.SourceBars()))
	return b.String()
}

func renderCards(cards []analytics.Card) string {
	boxes := make([]string, len(cards))
	for i, c := range cards {
		boxes[i] = cardStyle.Render(mutedStyle.Render(c.Title) + "\n" + titleStyle.Render(c.Value) + "\n" + mutedStyle.Render(c.Hint))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, boxes...)
}

func renderBars(bars []analytics.Bar) string {
	if len(bars) == 0 {
		return mutedStyle.Render("No data yet.") + "\n"
	}
	labelWidth := 0
	for _, bar := range bars {
		labelWidth = max(labelWidth, lipgloss.Width(bar.Label))
	}
	var b strings.Builder
	for _, bar := range bars {
		fmt.Fprintf(&b, "%-*s %s %d\n", labelWidth, bar.Label, renderBar(bar.Width), bar.Value)
	}
	return b.String()
}

// renderBar draws a percentage as a fixed width bar.
func renderBar(pct int) string {
	filled := pct * barCells / 100
	filled = min(max(filled, 0), barCells)
	return barStyle.Render(strings.Repeat("█", filled)) + mutedStyle.Render(strings.Repeat("░", barCells-filled))
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
