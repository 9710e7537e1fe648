package tui

import (
	"context"
	"errors"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/shopcompare/internal/common"
	"github.com/Veraticus/shopcompare/internal/live"
)

type fakeSource struct {
	submitErr error
	listener  func(Snapshot)
	submitted []string
	online    []bool
	mu        sync.Mutex
	readOnly  bool
	started   bool
	closed    bool
}

func (s *fakeSource) OnChange(fn func(Snapshot)) { s.listener = fn }
func (s *fakeSource) Start(context.Context)      { s.started = true }
func (s *fakeSource) Close()                     { s.closed = true }
func (s *fakeSource) CanCompose() bool           { return !s.readOnly }

func (s *fakeSource) SetOnline(online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online = append(s.online, online)
}

func (s *fakeSource) Submit(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitted = append(s.submitted, text)
	return s.submitErr
}

func newTestModel(src Source) Model {
	cfg := defaultConfig()
	cfg.ShowHelp = false
	return newModel(context.Background(), cfg, src, make(chan Snapshot, 1))
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

func liveSnapshot(rows ...Row) Snapshot {
	return Snapshot{Rows: rows, State: live.StateLive, IsLive: true, IsOnline: true}
}

func TestModel_RendersSnapshot(t *testing.T) {
	m := newTestModel(&fakeSource{})
	assert.Contains(t, m.View(), "Loading")

	m, cmd := update(t, m, snapshotMsg{snapshot: liveSnapshot(
		Row{ID: "temp-1", Title: "Best oat milk?", Meta: "ana", Pending: true},
		Row{ID: "p1", Title: "Cheap coffee", Body: "Any tips?", Meta: "ben", Recent: true},
		Row{ID: "p2", Body: "plain comment"},
	)})
	assert.NotNil(t, cmd, "keeps listening for updates")

	view := m.View()
	assert.Contains(t, view, "LIVE")
	assert.Contains(t, view, "3 items")
	assert.Contains(t, view, "Best oat milk?")
	assert.Contains(t, view, "sending…")
	assert.Contains(t, view, "new")
	assert.Contains(t, view, "plain comment")
}

func TestModel_Badges(t *testing.T) {
	tests := []struct {
		want  string
		state live.State
	}{
		{"LIVE", live.StateLive},
		{"DEGRADED", live.StateDegraded},
		{"CONNECTING", live.StateSubscribing},
		{"OFFLINE", live.StateOffline},
		{"CLOSED", live.StateClosed},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			m := newTestModel(&fakeSource{})
			m.snapshot.State = tt.state
			assert.Contains(t, m.renderBadge(), tt.want)
		})
	}
}

func TestModel_ComposeAndSubmit(t *testing.T) {
	src := &fakeSource{}
	m := newTestModel(src)
	m, _ = update(t, m, snapshotMsg{snapshot: liveSnapshot()})

	m, _ = update(t, m, runes("n"))
	require.True(t, m.composing)

	m, _ = update(t, m, runes("hello"))
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.False(t, m.composing)
	assert.Empty(t, m.input.Value())

	msg := cmd()
	result, ok := msg.(submitResultMsg)
	require.True(t, ok)
	assert.Equal(t, []string{"hello"}, src.submitted)

	m, _ = update(t, m, result)
	assert.Equal(t, "Sent", m.notice)
	assert.False(t, m.composing)
}

func TestModel_FailedSubmitRestoresDraft(t *testing.T) {
	src := &fakeSource{submitErr: &common.DraftError{
		Err:   common.ErrWriteFailed,
		Draft: "hello",
	}}
	m := newTestModel(src)

	result, ok := m.submit("hello")().(submitResultMsg)
	require.True(t, ok)

	m, _ = update(t, m, result)
	assert.True(t, m.composing)
	assert.Equal(t, "hello", m.input.Value())
	assert.Contains(t, m.notice, "draft is back")
	assert.ErrorIs(t, m.lastError, common.ErrWriteFailed)
}

func TestModel_UserErrorShowsFriendlyMessage(t *testing.T) {
	m := newTestModel(&fakeSource{})
	m, _ = update(t, m, submitResultMsg{
		err:  common.NewUserError("pick a rating from 1 to 5", errors.New("rating 9")),
		text: "9 wow",
	})
	assert.EqualError(t, m.lastError, "pick a rating from 1 to 5")
	assert.Equal(t, "9 wow", m.input.Value())
}

func TestModel_ReadOnlySource(t *testing.T) {
	m := newTestModel(&fakeSource{readOnly: true})
	m, _ = update(t, m, runes("n"))
	assert.False(t, m.composing)
	assert.Contains(t, m.notice, "read-only")
}

func TestModel_ToggleOnline(t *testing.T) {
	src := &fakeSource{}
	m := newTestModel(src)
	m, _ = update(t, m, snapshotMsg{snapshot: liveSnapshot()})

	_, cmd := update(t, m, runes("o"))
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, []bool{false}, src.online)
}

func TestModel_CursorStaysInBounds(t *testing.T) {
	m := newTestModel(&fakeSource{})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 14})
	m, _ = update(t, m, snapshotMsg{snapshot: liveSnapshot(
		Row{ID: "1", Body: "a"}, Row{ID: "2", Body: "b"}, Row{ID: "3", Body: "c"}, Row{ID: "4", Body: "d"},
	)})
	require.Equal(t, 2, m.pageSize())

	m, _ = update(t, m, runes("k"))
	assert.Equal(t, 0, m.cursor)

	m, _ = update(t, m, runes("G"))
	assert.Equal(t, 3, m.cursor)
	assert.Equal(t, 2, m.offset)

	// A shrinking feed pulls the cursor back.
	m, _ = update(t, m, snapshotMsg{snapshot: liveSnapshot(Row{ID: "1", Body: "a"})})
	assert.Equal(t, 0, m.cursor)
	assert.Equal(t, 0, m.offset)
}

func TestModel_Quit(t *testing.T) {
	m := newTestModel(&fakeSource{})
	m, cmd := update(t, m, runes("q"))
	require.NotNil(t, cmd)
	assert.True(t, m.quitting)
	assert.Empty(t, m.View())
}

func TestOffer_KeepsLatest(t *testing.T) {
	updates := make(chan Snapshot, 1)
	offer(updates, Snapshot{Rows: []Row{{ID: "old"}}})
	offer(updates, Snapshot{Rows: []Row{{ID: "new"}}})

	got := <-updates
	assert.Equal(t, "new", got.Rows[0].ID)
	assert.Empty(t, updates)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a b", truncate("a\nb", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
