package handler

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/smart-daily/dailychat/internal/middleware"
	"github.com/smart-daily/dailychat/internal/model"
	"github.com/smart-daily/dailychat/internal/service"
	"github.com/smart-daily/dailychat/pkg/logger"
)

// SessionHandler handles chat session endpoints.
type SessionHandler struct {
	service *service.SessionService
	logger  *logger.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(svc *service.SessionService, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		service: svc,
		logger:  logger.OrNop(log),
	}
}

// Create handles POST /api/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.CreateSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateTitle(req.Title); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	info, err := h.service.Create(ctx, middleware.GetUserID(ctx), req.Title)
	if err != nil {
		h.logger.Error("failed to create session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "创建会话失败")
		return
	}

	writeJSON(w, http.StatusCreated, info)
}

// List handles GET /api/sessions
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessions, err := h.service.List(ctx, middleware.GetUserID(ctx))
	if err != nil {
		h.logger.Error("failed to list sessions", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "加载会话失败")
		return
	}

	writeJSON(w, http.StatusOK, sessions)
}

// Delete handles DELETE /api/sessions/{id}
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := sessionParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	if err := h.service.Delete(ctx, middleware.GetUserID(ctx), id); err != nil {
		h.respondError(w, id, "删除会话失败", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Messages handles GET /api/sessions/{id}/messages
func (h *SessionHandler) Messages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := sessionParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	rows, err := h.service.Messages(ctx, middleware.GetUserID(ctx), id)
	if err != nil {
		h.respondError(w, id, "加载消息失败", err)
		return
	}

	writeJSON(w, http.StatusOK, rows)
}

func (h *SessionHandler) respondError(w http.ResponseWriter, id model.SessionID, message string, err error) {
	if errors.Is(err, service.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "会话不存在")
		return
	}
	h.logger.WithSession(int64(id)).Error(message, zap.Error(err))
	writeError(w, http.StatusInternalServerError, message)
}
