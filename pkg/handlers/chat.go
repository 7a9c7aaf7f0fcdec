package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/datachat-engine/pkg/apperrors"
	"github.com/ekaya-inc/datachat-engine/pkg/assistant"
	"github.com/ekaya-inc/datachat-engine/pkg/models"
	"github.com/ekaya-inc/datachat-engine/pkg/repositories"
)

// ChatHandler handles chat threads and the ask endpoints.
type ChatHandler struct {
	projects     repositories.ProjectRepository
	chats        repositories.ChatRepository
	registry     *assistant.Registry
	historyLimit int
	logger       *zap.Logger
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(
	projects repositories.ProjectRepository,
	chats repositories.ChatRepository,
	registry *assistant.Registry,
	historyLimit int,
	logger *zap.Logger,
) *ChatHandler {
	return &ChatHandler{
		projects:     projects,
		chats:        chats,
		registry:     registry,
		historyLimit: historyLimit,
		logger:       logger,
	}
}

// RegisterRoutes registers the chat handler's routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/projects/{pid}/chats", h.CreateChat)
	mux.HandleFunc("GET /api/projects/{pid}/chats/{cid}/messages", h.ListMessages)
	mux.HandleFunc("POST /api/projects/{pid}/chats/{cid}/ask", h.Ask)
	mux.HandleFunc("POST /api/projects/{pid}/chats/{cid}/ask/stream", h.AskStream)
}

// CreateChatRequest is the body for creating a chat thread.
type CreateChatRequest struct {
	Title string `json:"title"`
}

// AskRequest is the body for both ask endpoints.
type AskRequest struct {
	Question string `json:"question"`
}

// AskResponse is the buffered ask reply.
type AskResponse struct {
	Answer string `json:"answer"`
}

// CreateChat handles POST /api/projects/{pid}/chats.
func (h *ChatHandler) CreateChat(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var req CreateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	if _, err := h.projects.GetByID(r.Context(), projectID); err != nil {
		h.writeRepoError(w, err, "project")
		return
	}

	chat := &models.Chat{ProjectID: projectID, Title: req.Title}
	if err := h.chats.CreateChat(r.Context(), chat); err != nil {
		h.logger.Error("Failed to create chat", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "create_failed", "Failed to create chat")
		return
	}

	if err := WriteJSON(w, http.StatusCreated, chat); err != nil {
		h.logger.Error("Failed to encode chat response", zap.Error(err))
	}
}

// ListMessages handles GET /api/projects/{pid}/chats/{cid}/messages.
func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	_, chatID, ok := h.parseChatPath(w, r)
	if !ok {
		return
	}

	messages, err := h.chats.GetMessages(r.Context(), chatID, 0)
	if err != nil {
		h.logger.Error("Failed to list messages", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "list_failed", "Failed to list messages")
		return
	}
	if messages == nil {
		messages = []*models.ChatMessage{}
	}

	if err := WriteJSON(w, http.StatusOK, messages); err != nil {
		h.logger.Error("Failed to encode messages response", zap.Error(err))
	}
}

// Ask handles POST /api/projects/{pid}/chats/{cid}/ask. Returns the final
// answer text once the pipeline completes.
func (h *ChatHandler) Ask(w http.ResponseWriter, r *http.Request) {
	run, ok := h.prepareRun(w, r)
	if !ok {
		return
	}
	defer h.registry.Release(run.project.ID)

	answer := run.assistant.Ask(r.Context(), run.request)
	h.storeAnswer(r.Context(), run, answer)

	if err := WriteJSON(w, http.StatusOK, AskResponse{Answer: answer}); err != nil {
		h.logger.Error("Failed to encode ask response", zap.Error(err))
	}
}

// AskStream handles POST /api/projects/{pid}/chats/{cid}/ask/stream. Events
// are forwarded verbatim as server-sent events, one JSON object per frame.
func (h *ChatHandler) AskStream(w http.ResponseWriter, r *http.Request) {
	run, ok := h.prepareRun(w, r)
	if !ok {
		return
	}
	defer h.registry.Release(run.project.ID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("SSE not supported")
		if err := ErrorResponse(w, http.StatusInternalServerError, "sse_unsupported", "SSE not supported"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	var answer strings.Builder
	for event := range run.assistant.AskStream(r.Context(), run.request) {
		if event.Type == models.StreamEventContent {
			answer.WriteString(event.Content)
		}

		data, err := json.Marshal(event)
		if err != nil {
			h.logger.Error("Failed to marshal event", zap.Error(err))
			continue
		}

		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()

		if event.IsTerminal() {
			break
		}
	}

	h.storeAnswer(r.Context(), run, answer.String())
}

// chatRun is the prepared state shared by both ask endpoints.
type chatRun struct {
	project   *models.Project
	chatID    uuid.UUID
	assistant *assistant.Assistant
	request   *assistant.AskRequest
}

// prepareRun validates the path, loads the project and history, records the
// user message and pins an assistant instance. On failure the error response
// has already been written.
func (h *ChatHandler) prepareRun(w http.ResponseWriter, r *http.Request) (*chatRun, bool) {
	projectID, chatID, ok := h.parseChatPath(w, r)
	if !ok {
		return nil, false
	}

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Question) == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Request must carry a non-empty question")
		return nil, false
	}

	project, err := h.projects.GetByID(r.Context(), projectID)
	if err != nil {
		h.writeRepoError(w, err, "project")
		return nil, false
	}

	chat, err := h.chats.GetChat(r.Context(), chatID)
	if err != nil {
		h.writeRepoError(w, err, "chat")
		return nil, false
	}
	if chat.ProjectID != projectID {
		h.writeError(w, http.StatusNotFound, "chat_not_found", "Chat not found")
		return nil, false
	}

	// History is everything stored before this question.
	messages, err := h.chats.GetMessages(r.Context(), chatID, h.historyLimit)
	if err != nil {
		h.logger.Error("Failed to load chat history", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "history_failed", "Failed to load chat history")
		return nil, false
	}

	if _, err := h.chats.AppendMessage(r.Context(), chatID, models.ChatRoleUser, req.Question); err != nil {
		h.logger.Error("Failed to store question", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "store_failed", "Failed to store question")
		return nil, false
	}

	instance, err := h.registry.Acquire(r.Context(), project)
	if err != nil {
		h.logger.Error("Failed to acquire assistant",
			zap.String("project_id", projectID.String()), zap.Error(err))
		h.writeError(w, http.StatusBadGateway, "assistant_unavailable", "Could not reach the project datasource")
		return nil, false
	}

	return &chatRun{
		project:   project,
		chatID:    chatID,
		assistant: instance,
		request: &assistant.AskRequest{
			ChatID:   &chatID,
			Question: req.Question,
			History:  models.FormatHistory(messages),
		},
	}, true
}

// storeAnswer persists the assistant's reply. A detached context is used so
// a dropped streaming client still gets its transcript entry.
func (h *ChatHandler) storeAnswer(ctx context.Context, run *chatRun, answer string) {
	if answer == "" {
		return
	}
	if _, err := h.chats.AppendMessage(context.WithoutCancel(ctx), run.chatID, models.ChatRoleAssistant, answer); err != nil {
		h.logger.Error("Failed to store answer",
			zap.String("chat_id", run.chatID.String()), zap.Error(err))
	}
}

func (h *ChatHandler) parseChatPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	chatID, ok := ParseChatID(w, r, h.logger)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	return projectID, chatID, true
}

func (h *ChatHandler) writeRepoError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, apperrors.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, what+"_not_found", "Not found")
		return
	}
	h.logger.Error("Repository error", zap.Error(err))
	h.writeError(w, http.StatusInternalServerError, "internal_error", "Internal error")
}

func (h *ChatHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
