package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"atelier-backend/pkg/config"
	"atelier-backend/pkg/logger"
	"atelier-backend/pkg/utils"
)

// Recovery 恢复中间件，处理panic并返回友好的错误信息
func Recovery(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					stack := debug.Stack()
					logger.WithFields(map[string]interface{}{
						"panic": fmt.Sprintf("%v", err),
						"path":  r.URL.Path,
						"stack": string(stack),
					}).Error("recovered from panic")

					if cfg.IsDevelopment() {
						// 开发环境：返回详细错误信息
						utils.WriteErrorResponseWithCode(w, http.StatusInternalServerError,
							utils.CodeInternalError,
							fmt.Sprintf("Internal server error: %v", err),
							string(stack))
					} else {
						// 生产环境：隐藏细节
						utils.WriteInternalServerErrorResponse(w, "Internal server error occurred")
					}
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
