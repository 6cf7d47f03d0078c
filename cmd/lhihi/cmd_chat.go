package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"lhihi/internal/session"
	"lhihi/internal/store"
	"lhihi/internal/types"
)

var (
	chatModelHint    string
	chatConversation string
)

// chatCmd starts an interactive terminal conversation
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat in the terminal",
	Long: `Opens a stored conversation in a terminal UI.

Keys:
  enter    send
  ctrl+r   regenerate the last answer
  esc      quit

Type "/model <id>" to switch the model hint for the following messages.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatModelHint, "model", "m", "", "Model hint")
	chatCmd.Flags().StringVar(&chatConversation, "conversation", "", "Resume a stored conversation by id")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, appOptions{withStore: true})
	if err != nil {
		return err
	}
	defer a.Close()

	var conv *types.Conversation
	var turns []types.ConversationTurn
	if chatConversation != "" {
		if conv, err = a.store.GetConversation(ctx, chatConversation); err != nil {
			return err
		}
		if turns, err = a.store.ListTurns(ctx, conv.ID); err != nil {
			return err
		}
	} else if conv, err = a.store.CreateConversation(ctx, store.DefaultTitle); err != nil {
		return err
	}

	m := newChatModel(ctx, a.sessions, conv.ID, chatModelHint, turns)
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

// chatSession is the part of session.Service the chat UI drives.
type chatSession interface {
	Send(ctx context.Context, conversationID, text, hint string, attachments ...types.Attachment) (*session.Reply, error)
	Regenerate(ctx context.Context, conversationID, hint string) (*session.Reply, error)
}

type chatEntry struct {
	role   types.Role
	text   string
	result *types.GenerationResult
}

type replyMsg struct {
	reply       *session.Reply
	regenerated bool
}

type chatErrMsg struct{ err error }

type chatModel struct {
	ctx            context.Context
	sessions       chatSession
	conversationID string
	hint           string

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	entries []chatEntry
	waiting bool
	err     error
	ready   bool
}

func newChatModel(ctx context.Context, s chatSession, conversationID, hint string, turns []types.ConversationTurn) chatModel {
	in := textinput.New()
	in.Placeholder = "Ask me anything... (enter to send, ctrl+r to regenerate, esc to quit)"
	in.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = mutedStyle

	m := chatModel{
		ctx:            ctx,
		sessions:       s,
		conversationID: conversationID,
		hint:           hint,
		input:          in,
		spinner:        sp,
		viewport:       viewport.New(80, 20),
	}
	for _, t := range turns {
		m.entries = append(m.entries, chatEntry{role: t.Role, text: t.Text})
	}
	return m
}

func (m chatModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-5, 3)
		m.input.Width = max(msg.Width-6, 10)
		m.renderer = newRenderer(msg.Width - 4)
		m.ready = true
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyCtrlR:
			if m.waiting || len(m.entries) == 0 {
				return m, nil
			}
			m.waiting = true
			m.err = nil
			return m, tea.Batch(m.spinner.Tick, m.regenerate())
		case tea.KeyEnter:
			if m.waiting {
				return m, nil
			}
			text := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if text == "" {
				return m, nil
			}
			if hint, ok := strings.CutPrefix(text, "/model"); ok {
				m.hint = strings.TrimSpace(hint)
				m.refresh()
				return m, nil
			}
			m.entries = append(m.entries, chatEntry{role: types.RoleUser, text: text})
			m.waiting = true
			m.err = nil
			m.refresh()
			return m, tea.Batch(m.spinner.Tick, m.send(text))
		}

	case replyMsg:
		m.waiting = false
		if msg.regenerated {
			m.dropLastAnswer()
		}
		m.entries = append(m.entries, chatEntry{
			role:   types.RoleAssistant,
			text:   msg.reply.Assistant.Text,
			result: msg.reply.Result,
		})
		m.refresh()
		return m, nil

	case chatErrMsg:
		m.waiting = false
		m.err = msg.err
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.waiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m chatModel) View() string {
	if !m.ready {
		return "Starting..."
	}
	status := mutedStyle.Render(fmt.Sprintf("conversation %s", m.conversationID))
	if m.hint != "" {
		status += mutedStyle.Render("  model " + m.hint)
	}
	if m.waiting {
		status = m.spinner.View() + " thinking..."
	}
	if m.err != nil {
		status = errorStyle.Render("error: " + m.err.Error())
	}
	return m.viewport.View() + "\n" + inputBoxStyle.Render(m.input.View()) + "\n" + status
}

func (m chatModel) send(text string) tea.Cmd {
	return func() tea.Msg {
		reply, err := m.sessions.Send(m.ctx, m.conversationID, text, m.hint)
		if err != nil {
			return chatErrMsg{err}
		}
		return replyMsg{reply: reply}
	}
}

func (m chatModel) regenerate() tea.Cmd {
	return func() tea.Msg {
		reply, err := m.sessions.Regenerate(m.ctx, m.conversationID, m.hint)
		if err != nil {
			return chatErrMsg{err}
		}
		return replyMsg{reply: reply, regenerated: true}
	}
}

// dropLastAnswer removes the entries after the last user message.
func (m *chatModel) dropLastAnswer() {
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].role == types.RoleUser {
			m.entries = m.entries[:i+1]
			return
		}
	}
}

func (m *chatModel) refresh() {
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}

func (m chatModel) renderHistory() string {
	if len(m.entries) == 0 {
		return titleStyle.Render("Lhihi AI") + "\n" + mutedStyle.Render("Search, images, videos, temp mail or just a chat.")
	}
	var sb strings.Builder
	for i, e := range m.entries {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		if e.role == types.RoleUser {
			sb.WriteString(userLabelStyle.Render("You") + "\n" + e.text)
			continue
		}
		sb.WriteString(botLabelStyle.Render("Lhihi") + "\n")
		if e.result != nil {
			sb.WriteString(renderResult(m.renderer, e.result, false))
		} else {
			sb.WriteString(renderMarkdown(m.renderer, e.text))
		}
	}
	return sb.String()
}
