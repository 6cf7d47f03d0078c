// Package types provides shared type definitions used across lhihi packages.
// This package exists to break import cycles between router, perception, tools and store.
// Types in this package should be foundational data structures with no complex dependencies.
package types

import (
	"strings"
	"time"
)

// =============================================================================
// CONVERSATION TYPES
// =============================================================================

// Role identifies the author of a message or turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	}
	return false
}

// Attachment describes a file the user attached to a turn.
type Attachment struct {
	Name     string `json:"name"`
	MIMEType string `json:"type"`
	Size     int64  `json:"size"`
	Preview  string `json:"preview,omitempty"`
}

// ConversationTurn is one stored message of a conversation.
// Turns are append-only; an edit discards the edited turn and everything after it.
type ConversationTurn struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversationId"`
	Seq            int          `json:"seq"`
	Role           Role         `json:"role"`
	Text           string       `json:"content"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	RelatedQueries []string     `json:"relatedQueries,omitempty"`
	Sources        []string     `json:"sources,omitempty"`
	Thinking       string       `json:"thinking,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// Conversation is the header record for a list of turns.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Message is one entry of the message sequence sent to a backend.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// =============================================================================
// GENERATION TYPES
// =============================================================================

// Route names the path chosen by the router.
type Route string

const (
	RouteTools     Route = "tools"
	RouteReasoning Route = "reasoning"
	RouteDefault   Route = "default"
	RouteFallback  Route = "fallback"
)

// RouteDecision is derived from the latest user utterance and the model hint.
// It is never persisted.
type RouteDecision struct {
	UseTools      bool   `json:"useTools"`
	UseReasoning  bool   `json:"useReasoning"`
	Route         Route  `json:"route"`
	BackendID     string `json:"backendId"`
	Model         string `json:"model"`
	PolicyVersion string `json:"policyVersion"`
}

// GenerationRequest is the immutable input of one router call.
type GenerationRequest struct {
	ConversationHistory string `json:"conversationHistory"`
	UserInput           string `json:"userInput"`
	ModelHint           string `json:"model,omitempty"`
}

// GenerationResult is produced once per request and only ever appended to the store.
type GenerationResult struct {
	Response       string    `json:"response"`
	RelatedQueries []string  `json:"relatedQueries,omitempty"`
	Sources        []string  `json:"sources,omitempty"`
	Thinking       string    `json:"thinking,omitempty"`
	Segments       []Segment `json:"segments,omitempty"`

	BackendID     string `json:"backendId,omitempty"`
	Model         string `json:"modelId,omitempty"`
	Route         Route  `json:"route,omitempty"`
	Fallback      bool   `json:"fallback,omitempty"`
	Degraded      bool   `json:"degraded,omitempty"`
	PolicyVersion string `json:"policyVersion,omitempty"`
}

// =============================================================================
// SEGMENTS
// =============================================================================

// SegmentKind discriminates the Segment union.
type SegmentKind string

const (
	SegmentText         SegmentKind = "text"
	SegmentImage        SegmentKind = "image"
	SegmentVideo        SegmentKind = "video"
	SegmentPendingImage SegmentKind = "pending_image"
)

// Segment is one ordered piece of a response: plain text or a rich element.
// Only the fields belonging to Kind are set.
type Segment struct {
	Kind         SegmentKind `json:"kind"`
	Text         string      `json:"text,omitempty"`
	URL          string      `json:"url,omitempty"`
	Title        string      `json:"title,omitempty"`
	ThumbnailURL string      `json:"thumbnailUrl,omitempty"`
	Token        string      `json:"token,omitempty"`
}

// TextOnly concatenates the text segments, dropping rich elements.
func TextOnly(segs []Segment) string {
	var sb strings.Builder
	for _, s := range segs {
		if s.Kind == SegmentText {
			sb.WriteString(s.Text)
		}
	}
	return sb.String()
}
