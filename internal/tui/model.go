package tui

import (
	"context"
	"errors"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Veraticus/shopcompare/internal/common"
	"github.com/Veraticus/shopcompare/internal/live"
	"github.com/Veraticus/shopcompare/internal/tui/themes"
)

// Model holds the viewer state.
type Model struct {
	ctx       context.Context
	source    Source
	lastError error
	updates   <-chan Snapshot
	theme     themes.Theme
	notice    string
	snapshot  Snapshot
	config    Config
	keymap    KeyMap
	help      help.Model
	input     textinput.Model
	spinner   spinner.Model
	width     int
	height    int
	cursor    int
	offset    int
	composing bool
	ready     bool
	quitting  bool
}

// newModel creates a new model with the given configuration.
func newModel(ctx context.Context, cfg Config, src Source, updates <-chan Snapshot) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	input := textinput.New()
	input.Placeholder = "Write something…"
	input.CharLimit = 500

	return Model{
		ctx:      ctx,
		source:   src,
		updates:  updates,
		config:   cfg,
		theme:    cfg.Theme,
		keymap:   DefaultKeyMap(),
		help:     help.New(),
		input:    input,
		spinner:  sp,
		width:    cfg.Width,
		height:   cfg.Height,
		snapshot: Snapshot{State: live.StateSubscribing},
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForSnapshot(m.updates))
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.input.Width = max(10, msg.Width-6)
		m.clampCursor()
		return m, nil

	case snapshotMsg:
		m.snapshot = msg.snapshot
		m.ready = true
		m.clampCursor()
		return m, waitForSnapshot(m.updates)

	case updatesClosedMsg:
		return m, nil

	case submitResultMsg:
		return m.handleSubmitResult(msg), nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.composing {
			return m.handleComposeKeys(msg)
		}
		return m.handleKeys(msg)
	}

	return m, nil
}

func (m Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.ForceQuit), key.Matches(msg, m.keymap.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keymap.Up):
		m.moveCursor(-1)
	case key.Matches(msg, m.keymap.Down):
		m.moveCursor(1)
	case key.Matches(msg, m.keymap.PageUp):
		m.moveCursor(-m.pageSize())
	case key.Matches(msg, m.keymap.PageDown):
		m.moveCursor(m.pageSize())
	case key.Matches(msg, m.keymap.Home):
		m.moveCursor(-len(m.snapshot.Rows))
	case key.Matches(msg, m.keymap.End):
		m.moveCursor(len(m.snapshot.Rows))
	case key.Matches(msg, m.keymap.Compose):
		if !m.source.CanCompose() {
			m.notice = "This feed is read-only"
			return m, nil
		}
		m.composing = true
		m.lastError = nil
		m.notice = ""
		return m, m.input.Focus()
	case key.Matches(msg, m.keymap.ToggleOnline):
		return m, m.setOnline(!m.snapshot.IsOnline)
	}
	return m, nil
}

func (m Model) handleComposeKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.ForceQuit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keymap.Cancel):
		m.composing = false
		m.input.Blur()
		return m, nil
	case key.Matches(msg, m.keymap.Submit):
		text := m.input.Value()
		if text == "" {
			return m, nil
		}
		m.composing = false
		m.input.Blur()
		m.input.Reset()
		m.notice = "Sending…"
		return m, m.submit(text)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleSubmitResult(msg submitResultMsg) Model {
	if msg.err == nil {
		m.notice = "Sent"
		m.lastError = nil
		return m
	}

	m.lastError = msg.err
	m.notice = ""

	var userErr *common.UserError
	var draftErr *common.DraftError
	switch {
	case errors.As(msg.err, &draftErr):
		m.notice = "Not sent. Your draft is back in the editor."
	case errors.As(msg.err, &userErr):
		m.lastError = errors.New(userErr.UserMessage)
	}

	m.input.SetValue(msg.text)
	m.input.CursorEnd()
	m.composing = true
	m.input.Focus()
	return m
}

func (m *Model) moveCursor(delta int) {
	m.cursor += delta
	m.clampCursor()
}

func (m *Model) clampCursor() {
	n := len(m.snapshot.Rows)
	m.cursor = max(0, min(m.cursor, n-1))

	page := m.pageSize()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+page {
		m.offset = m.cursor - page + 1
	}
	m.offset = max(0, min(m.offset, max(0, n-page)))
}

// pageSize is how many rows fit between the header and the footer. Each row
// takes three lines.
func (m Model) pageSize() int {
	return max(1, (m.height-8)/3)
}
