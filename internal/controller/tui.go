package controller

import (
	"context"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/nao1215/toxguard/internal/transport"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#f8fafc")).
			Background(lipgloss.Color("#334155")).Padding(0, 1)
	stateStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#38bdf8"))
	hitsStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ef4444"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#94a3b8"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ef4444")).Bold(true)
)

type (
	viewMsg struct {
		view View
		err  error
	}
	broadcastMsg struct {
		msg transport.Message
	}
	disconnectedMsg struct{}
)

// Model is the terminal popup. It renders the active tab's status and maps
// keys to controller requests.
type Model struct {
	ctrl       *Controller
	broadcasts <-chan transport.Message
	bar        progress.Model

	view         View
	err          error
	disconnected bool
}

// NewModel creates the popup for ctrl. broadcasts may be nil when the
// popup should only refresh on key presses.
func NewModel(ctrl *Controller, broadcasts <-chan transport.Message) Model {
	return Model{
		ctrl:       ctrl,
		broadcasts: broadcasts,
		bar:        progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		view:       ctrl.View(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.do(m.ctrl.Refresh), m.listen())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.key(msg)

	case tea.WindowSizeMsg:
		w := msg.Width - 4
		if w < 10 {
			w = 10
		}
		m.bar.Width = w
		return m, nil

	case viewMsg:
		m.view = msg.view
		m.err = msg.err
		return m, nil

	case broadcastMsg:
		observe := func() tea.Msg {
			v, _, err := m.ctrl.Observe(context.Background(), msg.msg)
			return viewMsg{view: v, err: err}
		}
		return m, tea.Batch(observe, m.listen())

	case disconnectedMsg:
		m.disconnected = true
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) key(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch s := msg.String(); s {
	case "q", "esc", "ctrl+c":
		return m, tea.Quit
	case "r":
		m.view.State = StateStarting
		return m, m.do(m.ctrl.Run)
	case "c":
		return m, func() tea.Msg {
			err := m.ctrl.Cancel(context.Background())
			return viewMsg{view: m.ctrl.View(), err: err}
		}
	case "right", "n", "l":
		return m, m.do(m.ctrl.Next)
	case "left", "p", "h":
		return m, m.do(m.ctrl.Prev)
	case "g", "f5":
		return m, m.do(m.ctrl.Refresh)
	default:
		if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= 9 {
			return m, func() tea.Msg {
				v, err := m.ctrl.Goto(context.Background(), n-1)
				return viewMsg{view: v, err: err}
			}
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("toxguard"))
	sb.WriteString("  ")
	sb.WriteString(stateStyle.Render(m.view.State))
	sb.WriteString("\n\n")

	sb.WriteString(m.bar.ViewAs(float64(m.view.Percent()) / 100))
	sb.WriteString("\n")
	sb.WriteString(m.view.Counts())
	sb.WriteString("   ")
	sb.WriteString(hitsStyle.Render(m.view.Hits()))
	sb.WriteString("   ")
	sb.WriteString(mutedStyle.Render("match " + m.view.Position()))
	sb.WriteString("\n")

	if m.view.Note != "" {
		sb.WriteString(mutedStyle.Render(m.view.Note))
		sb.WriteString("\n")
	}
	if e := m.view.Error(); e != "" {
		sb.WriteString(errorStyle.Render("scan failed: " + e))
		sb.WriteString("\n")
	}
	if m.err != nil {
		sb.WriteString(errorStyle.Render(m.err.Error()))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(mutedStyle.Render("r run · c cancel · ←/→ matches · 1-9 go to · g refresh · q quit"))
	sb.WriteString("\n")
	return sb.String()
}

// Disconnected reports whether the popup quit because the broadcast
// stream ended.
func (m Model) Disconnected() bool {
	return m.disconnected
}

func (m Model) do(fn func(context.Context) (View, error)) tea.Cmd {
	return func() tea.Msg {
		v, err := fn(context.Background())
		return viewMsg{view: v, err: err}
	}
}

func (m Model) listen() tea.Cmd {
	if m.broadcasts == nil {
		return nil
	}
	ch := m.broadcasts
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return disconnectedMsg{}
		}
		return broadcastMsg{msg: msg}
	}
}
