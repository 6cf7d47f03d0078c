// Package session runs conversation turns: it persists the user message,
// routes it, and persists the answer.
//
//	Send:       append user turn → flatten prior turns → route → append assistant turn
//	Edit:       truncate from the edited turn → Send
//	Regenerate: drop turns after the last user turn → route again → append assistant turn
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lhihi/internal/logging"
	"lhihi/internal/prompt"
	"lhihi/internal/store"
	"lhihi/internal/types"
)

// TitleLength is the number of runes of the first message used as the title.
const TitleLength = 30

var (
	// ErrEmptyMessage is returned for a message with neither text nor attachments.
	ErrEmptyMessage = errors.New("message or attachment cannot be empty")

	// ErrNotUserTurn is returned when editing a turn the user did not write.
	ErrNotUserTurn = errors.New("only user turns can be edited")

	// ErrNothingToRegenerate is returned when a conversation has no user turn.
	ErrNothingToRegenerate = errors.New("could not find a user message to regenerate")
)

// Generator produces one answer. *router.Router implements it.
type Generator interface {
	Generate(ctx context.Context, req types.GenerationRequest) *types.GenerationResult
}

// ConversationStore is the persistence the service needs. *store.Store implements it.
type ConversationStore interface {
	GetConversation(ctx context.Context, id string) (*types.Conversation, error)
	RenameConversation(ctx context.Context, id, title string) error
	AppendTurn(ctx context.Context, t *types.ConversationTurn) error
	ListTurns(ctx context.Context, conversationID string) ([]types.ConversationTurn, error)
	GetTurn(ctx context.Context, conversationID, turnID string) (*types.ConversationTurn, error)
	TruncateFrom(ctx context.Context, conversationID, turnID string) (int64, error)
}

// Reply is the outcome of one turn.
type Reply struct {
	User      *types.ConversationTurn `json:"user,omitempty"`
	Assistant *types.ConversationTurn `json:"assistant"`
	Result    *types.GenerationResult `json:"result"`
}

// Service coordinates the store and the router.
type Service struct {
	store     ConversationStore
	generator Generator
}

// NewService creates a session service.
func NewService(s ConversationStore, g Generator) *Service {
	return &Service{store: s, generator: g}
}

// Send appends a user message to a conversation and answers it.
func (s *Service) Send(ctx context.Context, conversationID, text, hint string, attachments ...types.Attachment) (*Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" && len(attachments) == 0 {
		return nil, ErrEmptyMessage
	}

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	prior, err := s.store.ListTurns(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	user := &types.ConversationTurn{
		ConversationID: conversationID,
		Role:           types.RoleUser,
		Text:           text,
		Attachments:    attachments,
	}
	if err := s.store.AppendTurn(ctx, user); err != nil {
		return nil, fmt.Errorf("save user message: %w", err)
	}

	if len(prior) == 0 && conv.Title == store.DefaultTitle {
		if title := titleFor(text, attachments); title != "" {
			if err := s.store.RenameConversation(ctx, conversationID, title); err != nil {
				logging.Get(logging.CategorySession).Warn("Failed to title conversation %s: %v", conversationID, err)
			}
		}
	}

	assistant, result, err := s.answer(ctx, conversationID, prior, user, hint)
	if err != nil {
		// Drop the unanswered user turn so the conversation ends on an answer.
		if _, terr := s.store.TruncateFrom(context.WithoutCancel(ctx), conversationID, user.ID); terr != nil {
			logging.Get(logging.CategorySession).Warn("Failed to drop unanswered turn %s/%s: %v", conversationID, user.ID, terr)
		}
		return nil, err
	}
	return &Reply{User: user, Assistant: assistant, Result: result}, nil
}

// Edit replaces a user turn: the turn and everything after it are discarded
// and the new text is sent in its place.
func (s *Service) Edit(ctx context.Context, conversationID, turnID, text, hint string) (*Reply, error) {
	turn, err := s.store.GetTurn(ctx, conversationID, turnID)
	if err != nil {
		return nil, err
	}
	if turn.Role != types.RoleUser {
		return nil, ErrNotUserTurn
	}
	if strings.TrimSpace(text) == "" && len(turn.Attachments) == 0 {
		return nil, ErrEmptyMessage
	}

	removed, err := s.store.TruncateFrom(ctx, conversationID, turnID)
	if err != nil {
		return nil, err
	}
	logging.SessionDebug("Edit %s/%s discarded %d turns", conversationID, turnID, removed)
	return s.Send(ctx, conversationID, text, hint, turn.Attachments...)
}

// Regenerate discards the answer to the last user turn and asks again.
// A failed save leaves that user turn in place so Regenerate can be retried.
func (s *Service) Regenerate(ctx context.Context, conversationID, hint string) (*Reply, error) {
	turns, err := s.store.ListTurns(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	last := -1
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == types.RoleUser {
			last = i
			break
		}
	}
	if last < 0 {
		return nil, ErrNothingToRegenerate
	}
	if last+1 < len(turns) {
		if _, err := s.store.TruncateFrom(ctx, conversationID, turns[last+1].ID); err != nil {
			return nil, err
		}
	}

	user := turns[last]
	assistant, result, err := s.answer(ctx, conversationID, turns[:last], &user, hint)
	if err != nil {
		return nil, err
	}
	return &Reply{User: &user, Assistant: assistant, Result: result}, nil
}

// answer routes the user turn with the given prior turns as history and
// stores the assistant turn.
func (s *Service) answer(ctx context.Context, conversationID string, prior []types.ConversationTurn, user *types.ConversationTurn, hint string) (*types.ConversationTurn, *types.GenerationResult, error) {
	start := time.Now()
	audit := logging.AuditFrom(ctx)
	audit.TurnStart(conversationID, user.Seq, len(user.Text))

	result := s.generator.Generate(ctx, types.GenerationRequest{
		ConversationHistory: prompt.FlattenHistory(prior),
		UserInput:           user.Text,
		ModelHint:           hint,
	})

	assistant := &types.ConversationTurn{
		ConversationID: conversationID,
		Role:           types.RoleAssistant,
		Text:           result.Response,
		RelatedQueries: result.RelatedQueries,
		Sources:        result.Sources,
		Thinking:       result.Thinking,
	}
	if err := s.store.AppendTurn(ctx, assistant); err != nil {
		return nil, nil, fmt.Errorf("save assistant message: %w", err)
	}

	audit.TurnEnd(conversationID, assistant.Seq, time.Since(start), result.Degraded)
	logging.Session("Turn %s/%d answered by %s in %v (degraded=%v)",
		conversationID, assistant.Seq, result.BackendID, time.Since(start), result.Degraded)
	return assistant, result, nil
}

// titleFor derives a conversation title from the first message.
func titleFor(text string, attachments []types.Attachment) string {
	if text == "" && len(attachments) > 0 {
		text = attachments[0].Name
	}
	runes := []rune(strings.TrimSpace(text))
	if len(runes) > TitleLength {
		runes = runes[:TitleLength]
	}
	return strings.TrimSpace(string(runes))
}
