package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

const submitTimeout = 15 * time.Second

// waitForSnapshot blocks until the feed publishes again.
func waitForSnapshot(updates <-chan Snapshot) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-updates
		if !ok {
			return updatesClosedMsg{}
		}
		return snapshotMsg{snapshot: s}
	}
}

// submit posts text to the source. The typed text travels back in the
// result so a failed submission can be restored into the editor.
func (m Model) submit(text string) tea.Cmd {
	src := m.source
	parent := m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, submitTimeout)
		defer cancel()
		return submitResultMsg{err: src.Submit(ctx, text), text: text}
	}
}

// setOnline runs the connectivity transition off the update loop.
func (m Model) setOnline(online bool) tea.Cmd {
	src := m.source
	return func() tea.Msg {
		src.SetOnline(online)
		return nil
	}
}

// offer hands s to the update loop without blocking, replacing a snapshot
// that has not been consumed yet.
func offer(updates chan Snapshot, s Snapshot) {
	for {
		select {
		case updates <- s:
			return
		default:
		}
		select {
		case <-updates:
		default:
		}
	}
}
