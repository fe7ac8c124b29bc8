// Package tui is the terminal front end. The bubbletea program loop is the
// single thread that mutates session state; network calls run as commands
// and come back as messages.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"studio/internal/analytics"
	"studio/internal/apiclient"
	"studio/internal/app"
	"studio/internal/chat"
	"studio/internal/domain"
	"studio/internal/latest"
	"studio/internal/library"
	"studio/internal/upload"
)

// Backend is everything the screens fetch from.
type Backend interface {
	upload.Uploader
	chat.Sender
	library.Lister
	analytics.Fetcher
}

// Notices records upload notices for the status line. It is the upload
// orchestrator's Notifier and is only touched from the program loop.
type Notices struct {
	last upload.Notice
	set  bool
}

func (n *Notices) Notify(x upload.Notice) { n.last, n.set = x, true }

// Latest returns the most recent notice.
func (n *Notices) Latest() (upload.Notice, bool) { return n.last, n.set }

type tab int

const (
	tabHome tab = iota
	tabUpload
	tabLibrary
	tabChat
	tabAnalytics
)

var tabNames = []string{"Home", "Upload", "Library", "Chat", "Analytics"}

type (
	uploadEventMsg struct {
		ev upload.Event
		ch <-chan upload.Event
	}
	uploadResetMsg struct{ generation int }
	chatReplyMsg   struct {
		req chat.Request
		res apiclient.Result[apiclient.ChatReply]
	}
	libraryMsg struct {
		ticket latest.Ticket
		res    apiclient.Result[[]domain.LibraryEntry]
	}
	analyticsMsg struct {
		ticket latest.Ticket
		res    apiclient.Result[domain.AnalyticsSnapshot]
	}
	analyticsTickMsg struct{}
)

// Model is the Bubble Tea model for the whole application.
type Model struct {
	ctx        context.Context
	app        *app.App
	backend    Backend
	notices    *Notices
	schedule   cron.Schedule
	resetDelay time.Duration

	active      tab
	pathInput   textinput.Model
	searchInput textinput.Model
	chatInput   textinput.Model
	chatView    viewport.Model
	spin        spinner.Model

	uploadErr  string
	lastUpload *domain.UploadResult
	chatErr    string
}

// New creates the model. notices must be the Notifier the app's upload
// orchestrator was built with.
func New(ctx context.Context, a *app.App, backend Backend, notices *Notices) Model {
	if notices == nil {
		notices = &Notices{}
	}
	schedule, err := a.Config.Analytics.Schedule()
	if err != nil {
		a.Log.Warn("analytics refresh schedule ignored", zap.Error(err))
		schedule = nil
	}

	path := textinput.New()
	path.Prompt = "file> "
	path.Placeholder = "Paste or drop a PDF path, Enter to select"
	path.CharLimit = 0

	search := textinput.New()
	search.Prompt = "search> "
	search.Placeholder = "Filter by title or source"

	input := textinput.New()
	input.Prompt = "> "
	input.Placeholder = "Ask about your papers and press Enter"
	input.CharLimit = 0

	m := Model{
		ctx:         ctx,
		app:         a,
		backend:     backend,
		notices:     notices,
		schedule:    schedule,
		resetDelay:  a.Config.Upload.ResetDelay(),
		pathInput:   path,
		searchInput: search,
		chatInput:   input,
		chatView:    viewport.New(80, 10),
		spin:        spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
	m.syncChat()
	return m
}

// Init loads the home page figures and starts the refresh schedule.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.refreshAnalytics(), m.nextAnalyticsTick())
}

// Update handles input and settled requests.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		_, frameH := boxStyle.GetFrameSize()
		_, inputH := inputStyle.GetFrameSize()
		reserved := 2 + 1 + 1 + inputH + frameH + 1 // tabs+spacer, input, status, frames
		m.chatView.Width = max(20, msg.Width-4)
		m.chatView.Height = max(3, msg.Height-reserved)
		m.syncChat()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d":
			return m, tea.Quit
		case "tab":
			return m.switchTab((m.active + 1) % tab(len(tabNames)))
		case "shift+tab":
			return m.switchTab((m.active + tab(len(tabNames)) - 1) % tab(len(tabNames)))
		case "ctrl+r":
			return m, m.refreshActive()
		}
		switch m.active {
		case tabUpload:
			return m.updateUpload(msg)
		case tabLibrary:
			return m.updateLibrary(msg)
		case tabChat:
			return m.updateChat(msg)
		}
		return m, nil

	case uploadEventMsg:
		m.app.Upload.Apply(msg.ev)
		if !msg.ev.Done {
			return m, waitUpload(msg.ch)
		}
		task := m.app.Upload.Task()
		var cmds []tea.Cmd
		if task.Status == domain.UploadSucceeded {
			m.lastUpload = task.Result
			m.app.Library.Invalidate()
			cmds = append(cmds, m.refreshAnalytics())
			if m.active == tabLibrary {
				cmds = append(cmds, m.refreshLibrary(true))
			}
		}
		gen := msg.ev.Generation
		cmds = append(cmds, tea.Tick(m.resetDelay, func(time.Time) tea.Msg { return uploadResetMsg{generation: gen} }))
		return m, tea.Batch(cmds...)

	case uploadResetMsg:
		m.app.Upload.ResetAfterDisplay(msg.generation)
		return m, nil

	case chatReplyMsg:
		m.app.Chat.Settle(msg.req, msg.res)
		m.syncChat()
		return m, nil

	case libraryMsg:
		m.app.Library.Settle(msg.ticket, msg.res)
		return m, nil

	case analyticsMsg:
		m.app.Analytics.Settle(msg.ticket, msg.res)
		return m, nil

	case analyticsTickMsg:
		return m, tea.Batch(m.refreshAnalytics(), m.nextAnalyticsTick())

	case spinner.TickMsg:
		if !m.app.Chat.Pending() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		m.syncChat()
		return m, cmd
	}

	var cmd tea.Cmd
	switch m.active {
	case tabUpload:
		m.pathInput, cmd = m.pathInput.Update(msg)
	case tabLibrary:
		m.searchInput, cmd = m.searchInput.Update(msg)
	case tabChat:
		m.chatInput, cmd = m.chatInput.Update(msg)
	}
	return m, cmd
}

func (m Model) switchTab(t tab) (tea.Model, tea.Cmd) {
	m.active = t
	m.pathInput.Blur()
	m.searchInput.Blur()
	m.chatInput.Blur()
	var cmd tea.Cmd
	switch t {
	case tabUpload:
		cmd = m.pathInput.Focus()
	case tabLibrary:
		cmd = tea.Batch(m.searchInput.Focus(), m.refreshLibrary(false))
	case tabChat:
		cmd = m.chatInput.Focus()
	case tabHome, tabAnalytics:
		cmd = m.refreshAnalytics()
	}
	return m, cmd
}

func (m Model) refreshActive() tea.Cmd {
	switch m.active {
	case tabLibrary:
		return m.refreshLibrary(true)
	case tabHome, tabAnalytics:
		return m.refreshAnalytics()
	}
	return nil
}

func (m Model) updateUpload(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type != tea.KeyEnter {
		var cmd tea.Cmd
		m.pathInput, cmd = m.pathInput.Update(msg)
		return m, cmd
	}
	if raw := m.pathInput.Value(); strings.TrimSpace(raw) != "" {
		m.pathInput.SetValue("")
		m.uploadErr = m.selectPath(raw)
		return m, nil
	}
	job, err := m.app.Upload.Begin()
	if err != nil {
		m.uploadErr = err.Error()
		return m, nil
	}
	m.uploadErr = ""
	return m, waitUpload(upload.Transfer(m.ctx, m.backend, job))
}

// selectPath inspects a typed or dropped path and returns a validation
// message, or "" when the file was selected.
func (m *Model) selectPath(raw string) string {
	path := upload.NormalizePath(raw)
	c, err := upload.Inspect(path)
	if err != nil {
		return "Cannot use file: " + err.Error()
	}
	if err := m.app.Upload.SelectFile(c); err != nil {
		if errors.Is(err, upload.ErrUnsupportedType) {
			return fmt.Sprintf("%s is %s; only PDF files are supported", c.Name, c.MIMEType)
		}
		return err.Error()
	}
	m.lastUpload = nil
	return ""
}

func (m Model) updateLibrary(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	m.app.Library.SetQuery(m.searchInput.Value())
	return m, cmd
}

func (m Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		req, err := m.app.Chat.Send(m.chatInput.Value())
		if errors.Is(err, chat.ErrEmptyMessage) {
			return m, nil
		}
		if err != nil {
			m.chatErr = err.Error()
			return m, nil
		}
		m.chatErr = ""
		m.chatInput.SetValue("")
		m.syncChat()
		ctx, b := m.ctx, m.backend
		return m, tea.Batch(m.spin.Tick, func() tea.Msg {
			return chatReplyMsg{req: req, res: b.Chat(ctx, req.Message)}
		})
	case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
		var cmd tea.Cmd
		m.chatView, cmd = m.chatView.Update(msg)
		return m, cmd
	}
	var cmd tea.Cmd
	m.chatInput, cmd = m.chatInput.Update(msg)
	return m, cmd
}

// syncChat re-renders the transcript into the viewport, pinned to the end.
func (m *Model) syncChat() {
	m.chatView.SetContent(renderTranscript(m.app.Chat.View(), m.spin.View(), m.chatView.Width))
	m.chatView.GotoBottom()
}

func (m Model) refreshAnalytics() tea.Cmd {
	t := m.app.Analytics.Begin()
	ctx, b := m.ctx, m.backend
	return func() tea.Msg {
		return analyticsMsg{ticket: t, res: b.Analytics(ctx)}
	}
}

// refreshLibrary fetches the library unless a cached listing can be shown
// and force is false.
func (m Model) refreshLibrary(force bool) tea.Cmd {
	if !force && m.app.Library.FromCache() {
		return nil
	}
	t := m.app.Library.Begin()
	ctx, b := m.ctx, m.backend
	return func() tea.Msg {
		return libraryMsg{ticket: t, res: b.Library(ctx)}
	}
}

func (m Model) nextAnalyticsTick() tea.Cmd {
	if m.schedule == nil {
		return nil
	}
	now := time.Now()
	return tea.Tick(m.schedule.Next(now).Sub(now), func(time.Time) tea.Msg { return analyticsTickMsg{} })
}

func waitUpload(ch <-chan upload.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return uploadEventMsg{ev: ev, ch: ch}
	}
}
