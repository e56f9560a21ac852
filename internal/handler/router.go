package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/z-helpdesk/backend/internal/handler/chat"
	"github.com/zhouzirui/z-helpdesk/backend/internal/handler/live"
	middlewarePkg "github.com/zhouzirui/z-helpdesk/backend/internal/middleware"
	chatService "github.com/zhouzirui/z-helpdesk/backend/internal/service/chat"
	"github.com/zhouzirui/z-helpdesk/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(chatSvc *chatService.Service, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	chatHandler := chat.New(chatSvc)
	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
	})

	// Live channel, addressed by session id
	live.NewWebSocketHandler(chatSvc, logger).RegisterWebSocketRoutes(r)

	return r
}
