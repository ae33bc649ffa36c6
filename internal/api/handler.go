// Package api exposes the chat service over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xaenox/taskmate/internal/chat"
	"github.com/xaenox/taskmate/internal/models"
)

const defaultPageSize = 50

type Handler struct {
	svc    *chat.Service
	logger *zap.Logger
}

// NewRouter wires the chat endpoints under /api/v1.
func NewRouter(svc *chat.Service, logger *zap.Logger) http.Handler {
	h := &Handler{svc: svc, logger: logger.Named("api")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(h.logger))

	r.Get("/healthz", h.healthz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(RequireUser)

		r.Post("/chat", h.sendMessage)
		r.Get("/chat/sessions", h.listSessions)
		r.Get("/chat/session/{sessionID}/messages", h.listMessages)
		r.Get("/tools", h.listTools)
	})

	return r
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

type chatResponse struct {
	Response   string                   `json:"response"`
	SessionID  string                   `json:"session_id"`
	Intent     string                   `json:"intent"`
	Entities   []models.ExtractedEntity `json:"entities"`
	ToolUsed   *string                  `json:"tool_used"`
	ToolResult *models.ToolOutcome      `json:"tool_result"`
}

type sessionResponse struct {
	ID        string               `json:"id"`
	Title     string               `json:"title"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
	Status    models.SessionStatus `json:"status"`
}

type toolResponse struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	InputSchema  json.RawMessage `json:"input_schema"`
	OutputSchema json.RawMessage `json:"output_schema"`
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id := identityFrom(r.Context())
	res, err := h.svc.ProcessMessage(r.Context(), chat.ProcessRequest{
		UserID:    id.UserID,
		SessionID: req.SessionID,
		Message:   req.Message,
		AuthToken: id.Token,
	})
	if err != nil {
		h.handleError(w, err)
		return
	}

	resp := chatResponse{
		Response:   res.Response,
		SessionID:  res.SessionID,
		Intent:     res.Intent,
		Entities:   res.Entities,
		ToolResult: res.ToolResult,
	}
	if resp.Entities == nil {
		resp.Entities = []models.ExtractedEntity{}
	}
	if res.ToolUsed != "" {
		resp.ToolUsed = &res.ToolUsed
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.svc.ListSessions(r.Context(), identityFrom(r.Context()).UserID)
	if err != nil {
		h.handleError(w, err)
		return
	}

	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionResponse{
			ID:        s.ID,
			Title:     s.Title,
			CreatedAt: s.CreatedAt,
			UpdatedAt: s.UpdatedAt,
			Status:    s.Status,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	msgs, err := h.svc.GetSessionMessages(r.Context(),
		identityFrom(r.Context()).UserID, chi.URLParam(r, "sessionID"), limit, offset)
	if err != nil {
		h.handleError(w, err)
		return
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (h *Handler) listTools(w http.ResponseWriter, r *http.Request) {
	defs, err := h.svc.ListTools(r.Context())
	if err != nil {
		h.handleError(w, err)
		return
	}

	out := make([]toolResponse, 0, len(defs))
	for _, d := range defs {
		out = append(out, toolResponse{
			Name:         d.Name,
			Description:  d.Description,
			InputSchema:  d.InputSchema,
			OutputSchema: d.OutputSchema,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": out})
}

func (h *Handler) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "chat session not found")
	case errors.Is(err, chat.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "message is required")
	default:
		h.logger.Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("invalid integer")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
