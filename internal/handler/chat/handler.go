package chat

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	chatModel "github.com/zhouzirui/z-haven/backend/internal/model/chat"
	"github.com/zhouzirui/z-haven/backend/internal/service/pipeline"
	"github.com/zhouzirui/z-haven/backend/internal/service/safety"
	"github.com/zhouzirui/z-haven/backend/pkg/utils"
)

// Handler 聊天管线的HTTP处理器
type Handler struct {
	orchestrator *pipeline.Orchestrator
}

// New 创建聊天处理器
func New(orchestrator *pipeline.Orchestrator) *Handler {
	return &Handler{orchestrator: orchestrator}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
}

// handleChat runs one pipeline turn. Validation failures map to 400,
// the escalation invariant to 500; everything else is a complete 200.
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatModel.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.orchestrator.Run(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrEmptyMessage):
			utils.RespondError(w, http.StatusBadRequest, "message is required")
		case errors.Is(err, safety.ErrEscalationInvariant):
			log.Printf("[handler] refusing to serve unsafe response: %v", err)
			utils.RespondError(w, http.StatusInternalServerError, "safety evaluation failed")
		default:
			log.Printf("[handler] chat pipeline error: %v", err)
			utils.RespondError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	utils.RespondJSON(w, http.StatusOK, resp)
}
