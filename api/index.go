package handler

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"atelier-backend/pkg/config"
	"atelier-backend/pkg/database"
	"atelier-backend/pkg/handlers"
	"atelier-backend/pkg/logger"
	customMiddleware "atelier-backend/pkg/middleware"
	"atelier-backend/pkg/ratelimit"
	"atelier-backend/pkg/utils"
)

// warm实例间复用的组件（每次冷启动初始化一次）
var (
	limiterOnce sync.Once
	limiter     ratelimit.Store
)

// getLimiter 选择限流后端：配置了Redis时跨实例共享计数，
// 否则退回单实例内存限流（见ratelimit包说明）。
func getLimiter(cfg *config.Config) ratelimit.Store {
	limiterOnce.Do(func() {
		if cfg.RedisURL != "" {
			store, err := ratelimit.NewRedisStoreFromURL(cfg.RedisURL, ratelimit.DefaultConfig())
			if err == nil {
				limiter = store
				return
			}
			logger.WithField("error", err.Error()).Warn("invalid REDIS_URL, falling back to memory limiter")
		}
		limiter = ratelimit.NewMemoryStore(ratelimit.DefaultConfig())
	})
	return limiter
}

// Handler 是Vercel函数的入口点
// 单体路由模式：所有API端点集中在一个Chi路由器中管理
func Handler(w http.ResponseWriter, r *http.Request) {
	// 加载配置
	cfg := config.GetCached()

	// 验证配置
	if err := cfg.Validate(); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Configuration error: "+err.Error())
		return
	}

	// 获取数据库连接（warm实例间复用）
	db := database.GetDatabase(database.DatabaseConfig{
		PostgresDSN: cfg.PostgresDSN,
		SupabaseURL: cfg.SupabaseURL,
		SupabaseKey: cfg.SupabaseKey,
		Debug:       cfg.Debug,
	})
	// 注意：连接由连接池管理，无需手动关闭

	// 创建Chi路由器
	router := chi.NewRouter()

	setupMiddleware(router, cfg)
	setupRoutes(router, cfg, db)

	router.ServeHTTP(w, r)
}

// setupMiddleware 设置全局中间件
func setupMiddleware(router *chi.Mux, cfg *config.Config) {
	// 基础中间件
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	// Normalize path and restore scheme/host before logging and routing
	router.Use(customMiddleware.Normalize())
	router.Use(customMiddleware.Logger(cfg))
	router.Use(customMiddleware.Recovery(cfg))

	// CORS中间件
	router.Use(customMiddleware.CORS(cfg))

	// 超时中间件（Vercel函数有时间限制）
	router.Use(chimiddleware.Timeout(25 * time.Second)) // 留5秒缓冲

	// 压缩中间件
	router.Use(chimiddleware.Compress(5))

	// 请求体上限
	router.Use(customMiddleware.MaxBodySize(1 << 20)) // 1MB

	// 开发环境额外中间件
	if cfg.IsDevelopment() {
		router.Use(chimiddleware.Heartbeat("/ping"))
	}
}

// setupRoutes 设置所有API路由
func setupRoutes(router *chi.Mux, cfg *config.Config, db database.DatabaseInterface) {
	adminTokens := utils.NewAdminTokenService(cfg.AdminJWTSecret)
	mailer := utils.NewEmailSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)

	usersHandler := handlers.NewUsersHandler(cfg, db)
	workspacesHandler := handlers.NewWorkspacesHandler(cfg, db, mailer)
	projectsHandler := handlers.NewProjectsHandler(cfg, db)
	adminAuthHandler := handlers.NewAdminAuthHandler(cfg, db, adminTokens, getLimiter(cfg), mailer)
	adminMgmtHandler := handlers.NewAdminManagementHandler(cfg, db)

	// 健康检查端点
	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		if err := db.HealthCheck(); err != nil {
			status = "degraded"
		}
		utils.WriteSuccessResponse(w, map[string]string{
			"service": "atelier-backend",
			"status":  status,
		})
	})

	// API路由组
	router.Route("/api", func(r chi.Router) {
		r.Use(customMiddleware.ContentTypeJSON)

		// 公开路由（不需要认证）
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", usersHandler.Register)
			r.Post("/login", usersHandler.Login)
			r.Post("/refresh", usersHandler.Refresh)
		})

		// 管理员认证（公开入口，独立于用户会话）
		r.Route("/admin/auth", func(r chi.Router) {
			r.Post("/login", adminAuthHandler.Login)
			r.Post("/refresh", adminAuthHandler.Refresh)
			r.Post("/reset-password", adminAuthHandler.ResetPassword)
			r.Post("/reset-confirm", adminAuthHandler.ResetConfirm)

			// 改密需要通过门禁
			r.Group(func(r chi.Router) {
				r.Use(customMiddleware.AdminAuthMiddleware(adminTokens, db))
				r.Post("/change-password", adminAuthHandler.ChangePassword)
			})
		})

		// 管理操作（每个请求都实时核对授权）
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.AdminAuthMiddleware(adminTokens, db))
			r.Post("/admin/manage", adminMgmtHandler.Dispatch)
		})

		// 需要用户认证的路由
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.AuthMiddleware(cfg))

			r.Route("/workspaces", func(r chi.Router) {
				r.Get("/", workspacesHandler.List)
				r.Post("/", workspacesHandler.Create)
				r.Route("/{workspaceID}", func(r chi.Router) {
					r.Get("/", workspacesHandler.Get)
					r.Delete("/", workspacesHandler.Delete)
					r.Get("/members", workspacesHandler.ListMembers)
					r.Put("/members/{userID}", workspacesHandler.UpdateMemberRole)
					r.Delete("/members/{userID}", workspacesHandler.RemoveMember)
					r.Post("/invites", workspacesHandler.Invite)

					r.Get("/projects", projectsHandler.ListProjects)
					r.Post("/projects", projectsHandler.CreateProject)
					r.Get("/clients", projectsHandler.ListClients)
					r.Post("/clients", projectsHandler.CreateClient)
				})
			})

			r.Post("/invites/accept", workspacesHandler.AcceptInvite)

			r.Route("/projects/{projectID}", func(r chi.Router) {
				r.Get("/", projectsHandler.GetProject)
				r.Put("/", projectsHandler.UpdateProject)
				r.Delete("/", projectsHandler.DeleteProject)
			})
		})
	})

	// 404处理
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteNotFoundResponse(w, fmt.Sprintf("Route not found: %s %s", r.Method, r.URL.Path))
	})

	// 405处理
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteErrorResponseWithCode(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			fmt.Sprintf("Method %s not allowed for %s", r.Method, r.URL.Path), "")
	})
}
