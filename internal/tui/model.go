// Package tui is the interactive chat front end.
package tui

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"wikirag/internal/domain"
	"wikirag/internal/service"
)

// RAGPort is the TUI-facing subset of the RAG service.
type RAGPort interface {
	AnswerDetailed(ctx context.Context, prompt string, useRetrieval bool) (service.Result, error)
}

// answerMsg carries a finished generation back into Update.
type answerMsg struct {
	result service.Result
	err    error
}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	service  RAGPort
	timeout  time.Duration
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	history  History
	useRAG   bool
	busy     bool
	status   string
	sources  []domain.ScoredHit
	ready    bool
}

// New creates the chat model. timeout bounds each question; 0 means none.
func New(svc RAGPort, useRAG bool, timeout time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		service:  svc,
		timeout:  timeout,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		useRAG:   useRAG,
		status:   "ctrl+r toggles RAG, ctrl+l clears the chat, ctrl+c quits.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := historyBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header, toggle line, status, input box
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.viewport.SetContent(m.renderHistory())
		return m, nil
	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + userMessage(msg.err)
			m.sources = nil
			return m, nil
		}
		m.history.Add(msg.result.Prompt, msg.result.Answer)
		m.sources = msg.result.Context.Passages
		m.status = fmt.Sprintf("Answered in %s.", msg.result.Elapsed.Round(time.Millisecond))
		m.input.Reset()
		m.viewport.SetContent(m.renderHistory())
		m.viewport.GotoTop()
		return m, nil
	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			return m, tea.Quit
		case tea.KeyCtrlR:
			m.useRAG = !m.useRAG
			return m, nil
		case tea.KeyCtrlL:
			m.history.Clear()
			m.sources = nil
			m.viewport.SetContent(m.renderHistory())
			return m, nil
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case tea.KeyEnter:
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			m.busy = true
			m.status = "Thinking..."
			return m, tea.Batch(m.spinner.Tick, m.ask(q, m.useRAG))
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(prompt string, useRAG bool) tea.Cmd {
	svc, timeout := m.service, m.timeout
	return func() tea.Msg {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		res, err := svc.AnswerDetailed(ctx, prompt, useRAG)
		return answerMsg{result: res, err: err}
	}
}

// View renders the chat layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Chat with the Wikipedia corpus")
	toggle := "[ ] RAG assist"
	if m.useRAG {
		toggle = "[x] RAG assist"
	}
	toggle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Render(toggle)
	input := queryBoxStyle.Render(m.input.View())
	status := m.status
	if m.busy {
		status = m.spinner.View() + " " + status
	} else if len(m.sources) > 0 {
		status += " Sources: " + renderSources(m.sources)
	}
	status = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(status)
	history := historyBoxStyle.Render(m.viewport.View())
	return header + "\n" + toggle + "\n" + input + "\n" + history + "\n" + status
}

func (m Model) renderHistory() string {
	if m.history.Empty() {
		return "No questions yet."
	}
	return highlightPrompts(m.history.String())
}

func renderSources(passages []domain.ScoredHit) string {
	parts := make([]string, len(passages))
	for i, p := range passages {
		parts[i] = fmt.Sprintf("%s (%.2f)", p.Hit.ID, p.Score)
	}
	return strings.Join(parts, ", ")
}

var (
	historyBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	promptStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	promptRe        = regexp.MustCompile(`(?m)(?:\A|^` + Separator + `\n\n)([^\n]+)`)
)

// highlightPrompts renders the first line of every exchange in bold.
func highlightPrompts(text string) string {
	return promptRe.ReplaceAllStringFunc(text, func(s string) string {
		prefix := ""
		if strings.HasPrefix(s, Separator) {
			prefix = Separator + "\n\n"
			s = strings.TrimPrefix(s, prefix)
		}
		return prefix + promptStyle.Render(s)
	})
}

// userMessage turns known failures into short readable text.
func userMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrIndexNotFound):
		return "the document index does not exist; run `wikirag index` first or disable RAG"
	case errors.Is(err, context.DeadlineExceeded):
		return "the model took too long to answer"
	default:
		return err.Error()
	}
}
