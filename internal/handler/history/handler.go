package history

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	historySvc "github.com/zhouzirui/z-haven/backend/internal/service/history"
	"github.com/zhouzirui/z-haven/backend/pkg/utils"
)

// Handler 对话历史查询的HTTP处理器
type Handler struct {
	store *historySvc.Store
}

func New(store *historySvc.Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes 注册历史查询路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/history/{userID}", h.handleHistory)
}

// handleHistory returns the most recent turns for a user, newest first.
// An unknown user yields an empty list, not a 404.
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		utils.RespondError(w, http.StatusBadRequest, "userID is required")
		return
	}

	limit := historySvc.MaxRecent
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			utils.RespondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	turns := h.store.Recent(r.Context(), userID, limit)
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"turns":   turns,
	})
}
