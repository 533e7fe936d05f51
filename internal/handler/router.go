package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/z-haven/backend/internal/capability"
	chatHandler "github.com/zhouzirui/z-haven/backend/internal/handler/chat"
	historyHandler "github.com/zhouzirui/z-haven/backend/internal/handler/history"
	middlewarePkg "github.com/zhouzirui/z-haven/backend/internal/middleware"
	historyService "github.com/zhouzirui/z-haven/backend/internal/service/history"
	"github.com/zhouzirui/z-haven/backend/internal/service/pipeline"
	"github.com/zhouzirui/z-haven/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(orchestrator *pipeline.Orchestrator, histStore *historyService.Store, registry *capability.Registry) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Route("/api/v1", func(api chi.Router) {
		chatHandler.New(orchestrator).RegisterRoutes(api)
		historyHandler.New(histStore).RegisterRoutes(api)

		// 健康检查同时暴露降级状态，便于运维确认哪些能力在走回退。
		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			payload := map[string]any{
				"status": "ok",
			}
			if registry != nil {
				payload["degradations"] = registry.Degradations()
			}
			utils.RespondJSON(w, http.StatusOK, payload)
		})
	})

	return r
}
