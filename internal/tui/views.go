package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/shopcompare/internal/live"
)

// View renders the viewer.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	sections := []string{m.renderHeader(), ""}
	if m.ready {
		sections = append(sections, m.renderRows())
	} else {
		sections = append(sections, m.theme.Meta.Render(m.spinner.View()+" Loading…"))
	}

	if footer := m.renderFooter(); footer != "" {
		sections = append(sections, "", footer)
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeader() string {
	title := m.theme.Title.Render(m.config.Title)
	count := m.theme.Subtitle.Render(fmt.Sprintf("%d items", len(m.snapshot.Rows)))
	return lipgloss.JoinHorizontal(lipgloss.Center, title, "  ", m.renderBadge(), "  ", count)
}

// renderBadge shows the connection state of the feed.
func (m Model) renderBadge() string {
	switch m.snapshot.State {
	case live.StateLive:
		return m.theme.BadgeLive.Render("● LIVE")
	case live.StateDegraded:
		return m.theme.BadgeWarn.Render("DEGRADED")
	case live.StateSubscribing:
		return m.theme.BadgeWarn.Render(m.spinner.View() + " CONNECTING")
	case live.StateClosed:
		return m.theme.BadgeOff.Render("CLOSED")
	default:
		return m.theme.BadgeOff.Render("OFFLINE")
	}
}

func (m Model) renderRows() string {
	rows := m.snapshot.Rows
	if len(rows) == 0 {
		return m.theme.Meta.Render("Nothing here yet.")
	}

	width := max(20, m.width-4)
	end := min(len(rows), m.offset+m.pageSize())

	var b strings.Builder
	for i := m.offset; i < end; i++ {
		if i > m.offset {
			b.WriteString("\n")
		}
		b.WriteString(m.renderRow(rows[i], i == m.cursor, width))
	}
	return b.String()
}

func (m Model) renderRow(row Row, selected bool, width int) string {
	marker := "  "
	if selected {
		marker = m.theme.Selected.Render("▌") + " "
	}

	head := row.Title
	if head == "" {
		head = row.Body
	}
	head = truncate(head, width)

	body := ""
	if row.Title != "" {
		body = truncate(row.Body, width)
	}

	meta := row.Meta
	switch {
	case row.Pending:
		meta += "  sending…"
	case row.Recent:
		meta += "  new"
	}

	style := m.theme.Normal
	switch {
	case row.Pending:
		style = m.theme.Pending
	case row.Recent:
		style = m.theme.Recent
	}

	lines := []string{marker + style.Render(head)}
	if body != "" {
		lines = append(lines, "  "+style.Render(body))
	}
	lines = append(lines, "  "+m.theme.Meta.Render(meta))
	return strings.Join(lines, "\n")
}

func (m Model) renderFooter() string {
	var parts []string

	if m.composing {
		parts = append(parts, m.theme.RoundedBox.Render(m.input.View()))
	}
	if m.lastError != nil {
		parts = append(parts, m.theme.StatusError.Render("✗ "+m.lastError.Error()))
	}
	if m.notice != "" {
		parts = append(parts, m.theme.StatusInfo.Render(m.notice))
	}
	if m.config.ShowHelp {
		parts = append(parts, m.help.View(m.keymap))
	}
	return strings.Join(parts, "\n")
}

func truncate(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes))+1 > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "…"
}
