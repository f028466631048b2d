package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/common-nighthawk/go-figure"

	"github.com/quillchat/quill/internal/mirror"
)

const defaultTopic = "general"

var (
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	inputStyle  = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderTop(true)
)

type storeChangedMsg struct{}

type sendResultMsg struct{ err error }

// App implements the bubbletea tea.Model interface for the terminal client.
// It drives exactly one live account store.
type App struct {
	store   *mirror.LiveStore
	list    *MessageList
	changes chan struct{}

	viewport viewport.Model
	input    textinput.Model
	width    int
	height   int
	ready    bool
	status   string
	banner   string
}

// NewApp wires a fresh message list view into the store and returns the
// model. The caller owns the store's lifetime.
func NewApp(store *mirror.LiveStore) *App {
	changes := make(chan struct{}, 1)
	ping := func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	}

	list := NewMessageList("", ping)
	store.RegisterView(list)
	store.OnChange(ping)

	input := textinput.New()
	input.Placeholder = fmt.Sprintf("message #%s (topic: text, or just text)", defaultTopic)
	input.Focus()

	return &App{
		store:   store,
		list:    list,
		changes: changes,
		input:   input,
		banner:  figure.NewFigure("quill", "", true).String(),
	}
}

// Init is part of the tea.Model interface.
func (a *App) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, a.waitForChange())
}

// Update handles user input and store notifications.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.resize(msg.Width, msg.Height)
		return a, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return a, tea.Quit
		case tea.KeyEnter:
			return a, a.submit()
		case tea.KeyPgUp:
			a.viewport.HalfViewUp()
			return a, nil
		case tea.KeyPgDown:
			a.viewport.HalfViewDown()
			return a, nil
		}

	case storeChangedMsg:
		a.refreshContent()
		return a, a.waitForChange()

	case sendResultMsg:
		if msg.err != nil {
			a.status = errorStyle.Render(fmt.Sprintf("send failed: %v", msg.err))
		} else {
			a.status = ""
		}
		return a, nil
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	cmds = append(cmds, cmd)
	a.viewport, cmd = a.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return a, tea.Batch(cmds...)
}

// View renders the message list above the status bar and input line.
func (a *App) View() string {
	if !a.ready {
		return "connecting..."
	}
	return a.viewport.View() + "\n" + a.statusLine() + "\n" + inputStyle.Render(a.input.View())
}

func (a *App) waitForChange() tea.Cmd {
	return func() tea.Msg {
		<-a.changes
		return storeChangedMsg{}
	}
}

// submit parses "topic: text" out of the input and sends the message. The
// send is fire-and-confirm; the message only appears once it returns through
// the event stream.
func (a *App) submit() tea.Cmd {
	text := strings.TrimSpace(a.input.Value())
	if text == "" {
		return nil
	}
	a.input.Reset()

	topic := defaultTopic
	if head, rest, found := strings.Cut(text, ":"); found && !strings.ContainsAny(head, " \t") && strings.TrimSpace(rest) != "" {
		topic = strings.TrimSpace(head)
		text = strings.TrimSpace(rest)
	}

	store := a.store
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return sendResultMsg{err: store.SendMessage(ctx, topic, text)}
	}
}

func (a *App) resize(width, height int) {
	a.width, a.height = width, height
	inputHeight := 3 // status line + bordered input
	if !a.ready {
		a.viewport = viewport.New(width, height-inputHeight)
		a.ready = true
	} else {
		a.viewport.Width = width
		a.viewport.Height = height - inputHeight
	}
	a.input.Width = width - 4
	a.refreshContent()
}

func (a *App) refreshContent() {
	if !a.ready {
		return
	}
	atBottom := a.viewport.AtBottom()

	lines := a.list.Lines()
	if len(lines) == 0 {
		a.viewport.SetContent(a.banner + "\nNo messages yet. Say something below.")
	} else {
		a.viewport.SetContent(strings.Join(lines, "\n"))
	}
	if atBottom {
		a.viewport.GotoBottom()
	}
}

func (a *App) statusLine() string {
	account := a.store.Account()
	if err := a.store.Err(); err != nil {
		return errorStyle.Render(fmt.Sprintf("sync stopped: %v", err))
	}
	if a.status != "" {
		return a.status
	}
	return statusStyle.Render(fmt.Sprintf("%s · %s · %d streams · event %d",
		account.Email, a.store.ServerVersion(), len(a.store.Subscriptions()), a.store.LastEventID()))
}
