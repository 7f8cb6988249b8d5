// Package tui is the interactive chat interface of the document assistant.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"document-qa/internal/models"
	"document-qa/internal/session"
)

// Service is the subset of a session the chat needs
type Service interface {
	Load(ctx context.Context, path string) (models.BuildStatus, error)
	Ask(ctx context.Context, question string) (*models.PromptResponse, error)
	History(ctx context.Context) ([]models.QAExchange, error)
	ClearHistory(ctx context.Context) error
	Reset(ctx context.Context) error
	Status() models.BuildStatus
}

type (
	loadedMsg struct {
		status models.BuildStatus
		err    error
	}
	answerMsg struct {
		resp *models.PromptResponse
		err  error
	}
	historyMsg struct {
		exchanges []models.QAExchange
		err       error
	}
	resetMsg struct {
		err error
	}
	fileChangedMsg struct {
		path string
	}
)

const historyItems = 8

// Model is the Bubble Tea model of the chat
type Model struct {
	ctx     context.Context
	service Service
	changes <-chan string
	initial string

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	status  models.BuildStatus
	history []models.QAExchange
	answer  *models.PromptResponse
	notice  string
	busy    bool
	ready   bool
	width   int
}

// New creates the chat. path, when set, is loaded on start. changes delivers
// paths of documents modified on disk and may be nil.
func New(ctx context.Context, service Service, path string, changes <-chan string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question, or :load <file>, :show <n>, :clear, :reset, :quit"
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		ctx:      ctx,
		service:  service,
		changes:  changes,
		initial:  path,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		status:   service.Status(),
		busy:     path != "",
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.waitForChange()}
	if m.initial != "" {
		cmds = append(cmds, m.spinner.Tick, m.load(m.initial))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		_, fh := answerBoxStyle.GetFrameSize()
		reserved := 4 + historyItems + 3 // header and status, history, input
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-fh)
		m.viewport.SetContent(m.renderAnswer())
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		}

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case loadedMsg:
		m.busy = false
		m.status = msg.status
		m.answer = nil
		if msg.err != nil {
			m.notice = "Error: " + msg.err.Error()
		} else {
			m.notice = ""
		}
		m.viewport.SetContent(m.renderAnswer())
		return m, m.fetchHistory()

	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.notice = "Error: " + msg.err.Error()
			return m, nil
		}
		m.notice = ""
		m.answer = msg.resp
		m.viewport.SetContent(m.renderAnswer())
		m.viewport.GotoTop()
		return m, m.fetchHistory()

	case historyMsg:
		if msg.err != nil {
			m.notice = "Error: " + msg.err.Error()
			return m, nil
		}
		m.history = msg.exchanges
		return m, nil

	case resetMsg:
		m.busy = false
		m.answer = nil
		m.history = nil
		m.status = m.service.Status()
		if msg.err != nil {
			m.notice = "Error: " + msg.err.Error()
		}
		m.viewport.SetContent(m.renderAnswer())
		return m, nil

	case fileChangedMsg:
		m.notice = "Document changed on disk, reloading"
		m.busy = true
		return m, tea.Batch(m.load(msg.path), m.spinner.Tick, m.waitForChange())
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.busy {
		return m, nil
	}
	m.input.SetValue("")

	command, arg, _ := strings.Cut(text, " ")
	switch command {
	case ":quit", ":q":
		return m, tea.Quit
	case ":load":
		arg = strings.TrimSpace(arg)
		if arg == "" {
			m.notice = "Usage: :load <file>"
			return m, nil
		}
		m.busy = true
		m.notice = ""
		m.status = models.BuildStatus{State: models.StateBuilding, Message: "Processing " + arg + "..."}
		return m, tea.Batch(m.load(arg), m.spinner.Tick)
	case ":show":
		return m.show(strings.TrimSpace(arg)), nil
	case ":clear":
		return m, m.clearHistory()
	case ":reset":
		m.busy = true
		return m, m.reset()
	}

	m.busy = true
	m.notice = ""
	return m, tea.Batch(m.ask(text), m.spinner.Tick)
}

// show puts history entry n, counted from the newest, in the answer pane
func (m Model) show(arg string) Model {
	n, err := strconv.Atoi(arg)
	if err != nil {
		m.notice = "Usage: :show <n>"
		return m
	}
	if n < 1 || n > len(m.history) {
		m.notice = fmt.Sprintf("No history entry %d", n)
		return m
	}
	ex := m.history[n-1]
	m.notice = ""
	m.answer = &models.PromptResponse{Query: ex.Question, Content: ex.Answer}
	m.viewport.SetContent(m.renderAnswer())
	m.viewport.GotoTop()
	return m
}

func (m Model) load(path string) tea.Cmd {
	return func() tea.Msg {
		status, err := m.service.Load(m.ctx, path)
		return loadedMsg{status: status, err: err}
	}
}

func (m Model) ask(question string) tea.Cmd {
	return func() tea.Msg {
		resp, err := m.service.Ask(m.ctx, question)
		return answerMsg{resp: resp, err: err}
	}
}

func (m Model) fetchHistory() tea.Cmd {
	return func() tea.Msg {
		exchanges, err := m.service.History(m.ctx)
		return historyMsg{exchanges: exchanges, err: err}
	}
}

func (m Model) clearHistory() tea.Cmd {
	return func() tea.Msg {
		if err := m.service.ClearHistory(m.ctx); err != nil {
			return historyMsg{err: err}
		}
		return historyMsg{}
	}
}

func (m Model) reset() tea.Cmd {
	return func() tea.Msg {
		return resetMsg{err: m.service.Reset(m.ctx)}
	}
}

func (m Model) waitForChange() tea.Cmd {
	if m.changes == nil {
		return nil
	}
	return func() tea.Msg {
		path, ok := <-m.changes
		if !ok {
			return nil
		}
		return fileChangedMsg{path: path}
	}
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("📄 Document Assistant"))
	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	b.WriteString(answerBoxStyle.Width(max(20, m.width-2)).Render(m.viewport.View()))
	b.WriteString("\n")
	b.WriteString(m.renderHistory())
	b.WriteString("\n")
	b.WriteString(inputBoxStyle.Render(m.input.View()))
	if m.notice != "" {
		b.WriteString("\n")
		b.WriteString(noticeStyle.Render(m.notice))
	}
	return b.String()
}

func (m Model) renderStatus() string {
	text := m.status.Message
	if text == "" {
		text = m.status.State.String()
	}
	switch {
	case m.busy:
		return busyStyle.Render(m.spinner.View() + " " + text)
	case m.status.State == models.StateReady:
		return readyStyle.Render("✓ " + text)
	case m.status.State == models.StateFailed:
		return errorStyle.Render("✗ " + text)
	default:
		return mutedStyle.Render(text)
	}
}

func (m Model) renderAnswer() string {
	if m.answer == nil {
		switch m.status.State {
		case models.StateReady:
			return mutedStyle.Render("Ask a question about " + m.status.Document.Name + ".")
		default:
			return mutedStyle.Render("Load a document with :load <file> to get started.")
		}
	}

	var b strings.Builder
	b.WriteString(questionStyle.Render("Q: " + m.answer.Query))
	b.WriteString("\n\n")
	b.WriteString(m.answer.Content)
	if m.answer.Source != "" {
		b.WriteString("\n\n")
		b.WriteString(mutedStyle.Render("Sources:\n" + m.answer.Source))
	}
	return lipgloss.NewStyle().Width(max(20, m.viewport.Width)).Render(b.String())
}

// renderHistory lists past questions, newest first
func (m Model) renderHistory() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("History (%d)", len(m.history))))
	if len(m.history) == 0 {
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render("No queries yet."))
		return b.String()
	}
	for i, ex := range m.history {
		if i == historyItems {
			b.WriteString("\n")
			b.WriteString(mutedStyle.Render(fmt.Sprintf("… %d more", len(m.history)-historyItems)))
			break
		}
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("%d. Q: %s", i+1, session.Summarize(ex.Question)))
	}
	return b.String()
}

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headerStyle    = lipgloss.NewStyle().Bold(true)
	questionStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	readyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	busyStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	noticeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	answerBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)
