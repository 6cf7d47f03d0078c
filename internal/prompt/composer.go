// Package prompt builds the message sequences sent to chat backends.
package prompt

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"lhihi/internal/types"
)

// Mode selects which rule sections the system message carries.
type Mode string

const (
	ModeChat     Mode = "chat"
	ModeTools    Mode = "tools"
	ModeThinking Mode = "thinking"
)

// NonceFunc produces the display-only token of the image placeholder.
type NonceFunc func() string

// Composer assembles system, history and user messages.
// The zero value is not usable; call NewComposer.
type Composer struct {
	sections []Section
	nonce    NonceFunc
}

// NewComposer returns a composer with the built-in sections and uuid nonces.
func NewComposer() *Composer {
	return &Composer{
		sections: defaultSections(),
		nonce:    uuid.NewString,
	}
}

// WithNonce replaces the nonce source. Tests use it to make output deterministic.
func (c *Composer) WithNonce(fn NonceFunc) *Composer {
	if fn != nil {
		c.nonce = fn
	}
	return c
}

// Compose returns one system message, the flattened history as a single user
// message when non-empty, and the user input as the final user message.
func (c *Composer) Compose(history, userInput string, mode Mode) []types.Message {
	msgs := make([]types.Message, 0, 3)
	msgs = append(msgs, types.Message{Role: types.RoleSystem, Content: c.SystemPrompt(mode)})
	if strings.TrimSpace(history) != "" {
		msgs = append(msgs, types.Message{Role: types.RoleUser, Content: history})
	}
	msgs = append(msgs, types.Message{Role: types.RoleUser, Content: userInput})
	return msgs
}

// SystemPrompt renders the sections that apply to mode as <tag> blocks.
func (c *Composer) SystemPrompt(mode Mode) string {
	var sb strings.Builder
	for _, s := range c.sections {
		if !s.appliesTo(mode) {
			continue
		}
		body := s.Body
		if s.Tag == "planning_rules" {
			body = fmt.Sprintf(body, c.nonce())
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "<%s>\n%s\n</%s>", s.Tag, body, s.Tag)
	}
	return sb.String()
}

var defaultComposer = NewComposer()

// Compose uses the package default composer.
func Compose(history, userInput string, mode Mode) []types.Message {
	return defaultComposer.Compose(history, userInput, mode)
}

// FlattenHistory renders turns as "role: text" lines joined by newlines.
func FlattenHistory(turns []types.ConversationTurn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, fmt.Sprintf("%s: %s", t.Role, t.Text))
	}
	return strings.Join(lines, "\n")
}

// ContextSummaryPrompt builds the single-turn prompt used to summarize a conversation.
func ContextSummaryPrompt(history, currentInput string) []types.Message {
	return []types.Message{
		{
			Role:    types.RoleSystem,
			Content: "You are an AI assistant that analyzes the context of a conversation. Summarize the conversation history and current input to understand the context and provide a context summary. Reply with the summary only.",
		},
		{
			Role:    types.RoleUser,
			Content: fmt.Sprintf("Conversation History: %s\n\nCurrent Input: %s\n\nContext Summary:", history, currentInput),
		},
	}
}
