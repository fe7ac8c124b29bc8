package tui

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"studio/internal/apiclient"
	"studio/internal/app"
	"studio/internal/config"
	"studio/internal/domain"
	"studio/internal/upload"
)

type fakeBackend struct {
	upload    apiclient.Result[domain.UploadResult]
	reply     apiclient.Result[apiclient.ChatReply]
	entries   apiclient.Result[[]domain.LibraryEntry]
	snapshot  apiclient.Result[domain.AnalyticsSnapshot]
	questions []string
}

func (f *fakeBackend) Upload(_ context.Context, _ domain.FileCandidate, progress apiclient.ProgressFunc) apiclient.Result[domain.UploadResult] {
	if progress != nil {
		progress(50, 100)
		progress(100, 100)
	}
	return f.upload
}

func (f *fakeBackend) Chat(_ context.Context, msg string) apiclient.Result[apiclient.ChatReply] {
	f.questions = append(f.questions, msg)
	return f.reply
}

func (f *fakeBackend) Library(context.Context) apiclient.Result[[]domain.LibraryEntry] {
	return f.entries
}

func (f *fakeBackend) Analytics(context.Context) apiclient.Result[domain.AnalyticsSnapshot] {
	return f.snapshot
}

func newModel(t *testing.T, b *fakeBackend) (Model, *app.App) {
	t.Helper()
	cfg := config.Default()
	cfg.Analytics.RefreshSchedule = ""
	notices := &Notices{}
	a, err := app.New(cfg, nil, notices)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return New(context.Background(), a, b, notices), a
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	require.True(t, ok)
	return nm, cmd
}

// run executes cmd and flattens batches into their messages.
func run(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, run(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

func goTo(t *testing.T, m Model, target tab) Model {
	t.Helper()
	for m.active != target {
		m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	}
	return m
}

func typeText(t *testing.T, m Model, s string) Model {
	t.Helper()
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return m
}

func TestTabs_Cycle(t *testing.T) {
	m, _ := newModel(t, &fakeBackend{})
	require.Equal(t, tabHome, m.active)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	require.Equal(t, tabUpload, m.active)
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyShiftTab})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyShiftTab})
	require.Equal(t, tabAnalytics, m.active)
	require.Contains(t, m.View(), "Insights")
}

func TestChat_SendAndSettle(t *testing.T) {
	b := &fakeBackend{reply: apiclient.Ok(apiclient.ChatReply{
		Answer:    "Attention weighs tokens [1].",
		Citations: []domain.Citation{{Index: 1, SourceID: "emb_0", Snippet: "attention weights"}},
	})}
	m, a := newModel(t, b)
	m = goTo(t, m, tabChat)

	m = typeText(t, m, "What is attention?")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.True(t, a.Chat.Pending())
	require.Equal(t, 2, a.Chat.Len(), "user turn is recorded before the reply")
	require.Empty(t, m.chatInput.Value())
	require.Contains(t, m.View(), "Thinking...")

	var settled bool
	for _, msg := range run(cmd) {
		if reply, ok := msg.(chatReplyMsg); ok {
			m, _ = update(t, m, reply)
			settled = true
		}
	}
	require.True(t, settled)
	require.Equal(t, []string{"What is attention?"}, b.questions)
	require.False(t, a.Chat.Pending())
	require.Equal(t, 3, a.Chat.Len())

	view := m.View()
	require.Contains(t, view, "Attention weighs tokens")
	require.Contains(t, view, "[1] emb_0")
	require.NotContains(t, view, "Thinking...")
}

func TestChat_BlankMessageIgnored(t *testing.T) {
	m, a := newModel(t, &fakeBackend{})
	m = goTo(t, m, tabChat)
	m = typeText(t, m, "   ")
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Nil(t, cmd)
	require.Equal(t, 1, a.Chat.Len())
}

func TestUpload_SelectAndTransfer(t *testing.T) {
	b := &fakeBackend{upload: apiclient.Ok(domain.UploadResult{PaperID: "42", EmbeddingID: "7", Chunks: 18, FileName: "paper.pdf"})}
	m, a := newModel(t, b)
	a.Cache.Add("library", []domain.LibraryEntry{{ID: "1", Title: "Old"}})

	path := filepath.Join(t.TempDir(), "paper.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4\n%âãÏÓ\n1 0 obj\n<<>>\nendobj\n"), 0o644))

	m = goTo(t, m, tabUpload)
	m = typeText(t, m, "'"+path+"'")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Empty(t, m.uploadErr)
	require.Equal(t, domain.UploadSelected, a.Upload.Task().Status)
	require.Contains(t, m.View(), "paper.pdf")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, domain.UploadUploading, a.Upload.Task().Status)

	var gen int
	for {
		msg, ok := cmd().(uploadEventMsg)
		require.True(t, ok)
		m, cmd = update(t, m, msg)
		if msg.ev.Done {
			gen = msg.ev.Generation
			break
		}
	}

	task := a.Upload.Task()
	require.Equal(t, domain.UploadSucceeded, task.Status)
	require.Equal(t, 100, task.Progress)
	notice, ok := m.notices.Latest()
	require.True(t, ok)
	require.True(t, notice.Success)
	_, cached := a.Cache.Get("library")
	require.False(t, cached, "a new paper invalidates the cached listing")

	m, _ = update(t, m, uploadResetMsg{generation: gen})
	require.Equal(t, domain.UploadIdle, a.Upload.Task().Status)
	view := m.View()
	require.Contains(t, view, "Paper ID:     42")
	require.Contains(t, view, "Chunks:       18")
}

func TestUpload_RejectsNonPDF(t *testing.T) {
	m, a := newModel(t, &fakeBackend{})
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("just some notes\n"), 0o644))

	m = goTo(t, m, tabUpload)
	m = typeText(t, m, path)
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Contains(t, m.uploadErr, "only PDF files are supported")
	require.Equal(t, domain.UploadIdle, a.Upload.Task().Status)

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Nil(t, cmd)
	require.Equal(t, upload.ErrNoFile.Error(), m.uploadErr)
}

func TestUpload_FailureShownInStatus(t *testing.T) {
	b := &fakeBackend{upload: apiclient.Fail[domain.UploadResult](&apiclient.Error{Kind: apiclient.KindServer, Status: 400, Detail: "Only PDF files are supported"})}
	m, a := newModel(t, b)
	path := filepath.Join(t.TempDir(), "paper.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4\n"), 0o644))

	m = goTo(t, m, tabUpload)
	m = typeText(t, m, path)
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	for {
		msg := cmd().(uploadEventMsg)
		m, cmd = update(t, m, msg)
		if msg.ev.Done {
			break
		}
	}
	require.Equal(t, domain.UploadFailed, a.Upload.Task().Status)
	require.Contains(t, m.View(), "Only PDF files are supported")
	require.Contains(t, m.View(), "Press Enter to retry.")
}

func TestLibrary_LoadAndSearch(t *testing.T) {
	b := &fakeBackend{entries: apiclient.Ok([]domain.LibraryEntry{
		{ID: "1", Title: "Attention Is All You Need", Year: 2017, Source: "arXiv"},
		{ID: "2", Title: "Deep Residual Learning", Year: 2015, Source: "CVPR"},
	})}
	m, a := newModel(t, b)
	m = goTo(t, m, tabLibrary)

	msg := m.refreshLibrary(true)()
	m, _ = update(t, m, msg)
	require.True(t, a.Library.Loaded())
	require.Contains(t, m.View(), "Deep Residual Learning")

	m = typeText(t, m, "ATTENTION")
	require.Equal(t, "ATTENTION", a.Library.Query())
	view := m.View()
	require.Contains(t, view, "Attention Is All You Need")
	require.NotContains(t, view, "Deep Residual Learning")

	require.Nil(t, m.refreshLibrary(false), "cached listing needs no fetch")
}

func TestLibrary_Empty(t *testing.T) {
	m, _ := newModel(t, &fakeBackend{entries: apiclient.Ok([]domain.LibraryEntry{})})
	m = goTo(t, m, tabLibrary)
	m, _ = update(t, m, m.refreshLibrary(true)())
	require.Contains(t, m.View(), "No papers yet")
}

func TestAnalytics_LatestRefreshWins(t *testing.T) {
	size := func(n int) apiclient.Result[domain.AnalyticsSnapshot] {
		return apiclient.Ok(domain.AnalyticsSnapshot{LibrarySize: &n, TopKeyword: "attention"})
	}
	m, a := newModel(t, &fakeBackend{})
	older := a.Analytics.Begin()
	newer := a.Analytics.Begin()

	m, _ = update(t, m, analyticsMsg{ticket: newer, res: size(5)})
	m, _ = update(t, m, analyticsMsg{ticket: older, res: size(1)})

	snap, ok := a.Analytics.Snapshot()
	require.True(t, ok)
	require.Equal(t, 5, *snap.LibrarySize)
	require.Contains(t, m.View(), "5")

	m = goTo(t, m, tabAnalytics)
	require.Contains(t, m.View(), "attention")
}

func TestAnalytics_FailureKeepsFigures(t *testing.T) {
	n := 3
	m, a := newModel(t, &fakeBackend{})
	m, _ = update(t, m, analyticsMsg{ticket: a.Analytics.Begin(), res: apiclient.Ok(domain.AnalyticsSnapshot{LibrarySize: &n})})
	m, _ = update(t, m, analyticsMsg{ticket: a.Analytics.Begin(), res: apiclient.Fail[domain.AnalyticsSnapshot](&apiclient.Error{Kind: apiclient.KindNetwork})})

	view := m.View()
	require.Contains(t, view, "server unreachable")
	snap, _ := a.Analytics.Snapshot()
	require.Equal(t, 3, *snap.LibrarySize)
}

func TestQuitKeys(t *testing.T) {
	m, _ := newModel(t, &fakeBackend{})
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.IsType(t, tea.QuitMsg{}, cmd())
}

func TestHighlightMarkers(t *testing.T) {
	require.Equal(t, "no markers here", highlightMarkers("no markers here"))
	require.Contains(t, highlightMarkers("see [12]"), "[12]")
}

func TestRenderBar_Clamped(t *testing.T) {
	require.Equal(t, renderBar(0), renderBar(-5))
	require.Equal(t, renderBar(100), renderBar(250))
}
