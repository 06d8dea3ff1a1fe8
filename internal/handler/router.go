package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/serene/backend/internal/auth"
	"github.com/zhouzirui/serene/backend/internal/handler/chat"
	"github.com/zhouzirui/serene/backend/internal/handler/goal"
	"github.com/zhouzirui/serene/backend/internal/handler/journal"
	"github.com/zhouzirui/serene/backend/internal/handler/mood"
	"github.com/zhouzirui/serene/backend/internal/handler/user"
	"github.com/zhouzirui/serene/backend/internal/middleware"
	chatService "github.com/zhouzirui/serene/backend/internal/service/chat"
	"github.com/zhouzirui/serene/backend/internal/service/upload"
	"github.com/zhouzirui/serene/backend/internal/store"
	"github.com/zhouzirui/serene/backend/pkg/utils"
)

// Deps 汇总路由需要的服务
type Deps struct {
	Auth       auth.Provider
	Store      store.Store
	Chat       *chatService.Service
	Classifier chatService.Classifier
	Stats      user.StatsService
	Uploads    *upload.Service
	// Origins 允许跨域与 WebSocket 连接的前端地址
	Origins []string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORS(deps.Origins))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.RespondError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{
			"status":  "success",
			"message": "Mental Wellness API is running",
		})
	})
	r.Handle(upload.PublicPrefix+"*", deps.Uploads.FileServer())

	chatHandler := chat.New(deps.Chat, deps.Classifier, deps.Store)
	wsHandler := chat.NewWebSocketHandler(deps.Chat, deps.Classifier, deps.Auth, deps.Origins)
	moodHandler := mood.New(deps.Store)
	journalHandler := journal.New(deps.Store)
	goalHandler := goal.New(deps.Store)
	userHandler := user.New(deps.Auth, deps.Store, deps.Stats, deps.Uploads)

	r.Route("/api", func(api chi.Router) {
		// 无需登录的调试接口
		chatHandler.RegisterPublicRoutes(api)
		// WebSocket 在握手时自行校验令牌
		wsHandler.RegisterWebSocketRoutes(api)

		api.Group(func(authed chi.Router) {
			authed.Use(auth.Middleware(deps.Auth))

			chatHandler.RegisterRoutes(authed)
			moodHandler.RegisterRoutes(authed)
			journalHandler.RegisterRoutes(authed)
			goalHandler.RegisterRoutes(authed)
			userHandler.RegisterRoutes(authed)
		})
	})

	return r
}
