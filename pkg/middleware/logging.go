package middleware

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"atelier-backend/pkg/config"
	"atelier-backend/pkg/logger"
)

// Logger 请求日志中间件。每个请求产出一条结构化日志，认证路径上的
// 字段（user、admin）由下游中间件注入后在这里读取。
func Logger(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// 包装ResponseWriter捕获状态码
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			fields := map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   ww.Status(),
				"duration": time.Since(start).String(),
				"ip":       getClientIP(r),
			}
			if user, ok := GetUserFromContext(r.Context()); ok && user != nil {
				fields["user"] = user.Email
			}
			if actor, ok := GetAdminFromContext(r.Context()); ok && actor != nil {
				fields["admin"] = actor.Email
			}

			entry := logger.WithFields(fields)
			switch {
			case ww.Status() >= 500:
				entry.Error("request failed")
			case ww.Status() >= 400:
				entry.Warn("request rejected")
			default:
				entry.Info("request completed")
			}
		})
	}
}

// getClientIP 获取客户端IP地址
func getClientIP(r *http.Request) string {
	// 检查X-Forwarded-For头（代理/负载均衡器）
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}

	// 检查X-Real-IP头
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	return r.RemoteAddr
}
