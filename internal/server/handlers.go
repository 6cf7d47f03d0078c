package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"lhihi/internal/intent"
	"lhihi/internal/policy"
	"lhihi/internal/store"
	"lhihi/internal/types"
)

type handlers struct {
	deps Deps
}

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version,omitempty"`
	PolicyVersion string `json:"policyVersion"`
	Store         string `json:"store,omitempty"`
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		Version:       h.deps.Version,
		PolicyVersion: h.deps.Router.Policy().Version,
	}
	status := http.StatusOK
	if h.deps.Store != nil {
		resp.Store = "ok"
		if err := h.deps.Store.Ping(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Store = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}

func (h *handlers) models(w http.ResponseWriter, r *http.Request) {
	tbl := h.deps.Router.Policy()
	hints := tbl.Hints
	if hints == nil {
		hints = []policy.Hint{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"policyVersion": tbl.Version,
		"models":        hints,
	})
}

func (h *handlers) generate(w http.ResponseWriter, r *http.Request) {
	var req types.GenerationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.UserInput) == "" {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "userInput is required", nil)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Router.Generate(r.Context(), req))
}

type classifyRequest struct {
	UserInput string `json:"userInput"`
	ModelHint string `json:"model,omitempty"`
}

type classifyResponse struct {
	intent.Classification
	Decision types.RouteDecision `json:"decision"`
}

func (h *handlers) classify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, classifyResponse{
		Classification: h.deps.Router.Classify(req.UserInput),
		Decision:       h.deps.Router.Decide(types.GenerationRequest{UserInput: req.UserInput, ModelHint: req.ModelHint}),
	})
}

type analyzeRequest struct {
	ConversationHistory string `json:"conversationHistory"`
	CurrentInput        string `json:"currentInput"`
}

type analyzeResponse struct {
	ContextSummary string `json:"contextSummary"`
}

func (h *handlers) analyzeContext(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	summary, err := h.deps.Router.AnalyzeContext(r.Context(), req.ConversationHistory, req.CurrentInput)
	if err != nil {
		writeError(w, r, http.StatusBadGateway, codeUpstream, "context analysis failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, analyzeResponse{ContextSummary: summary})
}

func (h *handlers) listConversations(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, codeBadRequest, "limit must be a non-negative integer", nil)
			return
		}
		limit = n
	}
	convs, err := h.deps.Store.ListConversations(r.Context(), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if convs == nil {
		convs = []types.Conversation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

type createConversationRequest struct {
	Title string `json:"title"`
}

func (h *handlers) createConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = store.DefaultTitle
	}
	conv, err := h.deps.Store.CreateConversation(r.Context(), title)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

type conversationResponse struct {
	*types.Conversation
	Turns []types.ConversationTurn `json:"turns"`
}

func (h *handlers) getConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	conv, err := h.deps.Store.GetConversation(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	turns, err := h.deps.Store.ListTurns(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if turns == nil {
		turns = []types.ConversationTurn{}
	}
	writeJSON(w, http.StatusOK, conversationResponse{Conversation: conv, Turns: turns})
}

func (h *handlers) deleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Store.DeleteConversation(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type messageRequest struct {
	Content     string             `json:"content"`
	ModelHint   string             `json:"model,omitempty"`
	Attachments []types.Attachment `json:"attachments,omitempty"`
}

func (h *handlers) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	reply, err := h.deps.Sessions.Send(r.Context(), chi.URLParam(r, "id"), req.Content, req.ModelHint, req.Attachments...)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

type regenerateRequest struct {
	ModelHint string `json:"model,omitempty"`
}

func (h *handlers) regenerate(w http.ResponseWriter, r *http.Request) {
	var req regenerateRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	reply, err := h.deps.Sessions.Regenerate(r.Context(), chi.URLParam(r, "id"), req.ModelHint)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

type editRequest struct {
	Content   string `json:"content"`
	ModelHint string `json:"model,omitempty"`
}

func (h *handlers) editTurn(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if !decodeBody(w, r, &req) {
		return
	}
	reply, err := h.deps.Sessions.Edit(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "turn_id"), req.Content, req.ModelHint)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}
