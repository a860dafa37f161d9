package tui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ragchat/internal/domain"
)

// ProcessingStatus is shown while a turn is running.
const ProcessingStatus = "Determining the best possible answer!"

// ChatPort is the TUI-facing subset of a conversation session.
type ChatPort interface {
	Ask(ctx context.Context, text string) (domain.Answer, error)
	Messages() []domain.Message
}

// answerMsg carries the outcome of a turn back into the update loop.
type answerMsg struct {
	answer domain.Answer
	err    error
}

// Model is the Bubble Tea model for the chat application.
type Model struct {
	session     ChatPort
	input       textinput.Model
	viewport    viewport.Model
	spinner     spinner.Model
	status      string
	processing  bool
	ready       bool
	turnTimeout time.Duration
}

// New creates a new chat model. A zero turnTimeout leaves turns unbounded.
func New(session ChatPort, turnTimeout time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return Model{
		session:     session,
		input:       ti,
		viewport:    vp,
		spinner:     sp,
		status:      "Ready. Ask a question.",
		turnTimeout: turnTimeout,
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and turn events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around history and input boxes
		_, hh := historyBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		reserved := 1 + 1 + ih + 1 // header, status, spacer
		vh := msg.Height - reserved
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, vh-hh)
		m.refresh()
		return m, nil
	case answerMsg:
		m.processing = false
		switch {
		case msg.err == nil:
			m.status = "Ready."
		case errors.Is(msg.err, domain.ErrEmptyQuery):
			m.status = "Please type a question."
		default:
			m.status = "Error: " + msg.err.Error()
		}
		m.refresh()
		return m, nil
	case spinner.TickMsg:
		if !m.processing {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		// Global quits
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if m.processing {
			// Input is ignored until the running turn completes.
			return m, nil
		}
		switch msg.Type {
		case tea.KeyEnter:
			q := strings.TrimSpace(m.input.Value())
			if q == "" {
				return m, nil
			}
			m.input.Reset()
			m.processing = true
			m.status = ProcessingStatus
			cmd := m.ask(q)
			// Show the question right away; the session appends it at turn start.
			m.viewport.SetContent(m.renderHistory(q))
			m.viewport.GotoBottom()
			return m, tea.Batch(m.spinner.Tick, cmd)
		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(q string) tea.Cmd {
	session, timeout := m.session, m.turnTimeout
	return func() tea.Msg {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		answer, err := session.Ask(ctx, q)
		return answerMsg{answer: answer, err: err}
	}
}

// View renders the chat layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("RAG Chat")
	history := historyBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	if m.processing {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" + history + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderHistory(""))
	m.viewport.GotoBottom()
}

// renderHistory renders the session log, plus pending when the session has
// not appended it yet.
func (m Model) renderHistory(pending string) string {
	msgs := m.session.Messages()
	if pending != "" && (len(msgs) == 0 || msgs[len(msgs)-1].Role != domain.RoleUser || msgs[len(msgs)-1].Content != pending) {
		msgs = append(msgs, domain.Message{Role: domain.RoleUser, Content: pending})
	}
	if len(msgs) == 0 {
		return "No messages yet."
	}
	width := max(20, m.viewport.Width)
	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(renderMessage(msg, width))
	}
	return b.String()
}

func renderMessage(msg domain.Message, width int) string {
	body := lipgloss.NewStyle().Width(width).Render(msg.Content)
	if msg.Role == domain.RoleUser {
		return userStyle.Render("You") + "\n" + body
	}
	out := assistantStyle.Render("Assistant") + "\n" + body
	if msg.ImageURL != "" {
		out += "\n" + linkStyle.Render("Image: "+msg.ImageURL)
	}
	return out
}

var (
	historyBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	linkStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Underline(true)
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)
