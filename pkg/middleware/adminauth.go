package middleware

import (
	"context"
	"fmt"
	"net/http"

	"atelier-backend/pkg/database"
	"atelier-backend/pkg/logger"
	"atelier-backend/pkg/models"
	"atelier-backend/pkg/utils"
)

const (
	AdminContextKey ContextKey = "admin"
)

// AdminActor 通过管理员门禁后注入context的主体：令牌声明加上本次请求
// 实时查到的平台授权。
type AdminActor struct {
	UserID string
	Email  string
	Role   models.PlatformRole
}

// AdminAuthMiddleware 管理员门禁。两段检查，每个请求都完整执行：
//  1. 令牌有效（签名、type=admin、未过期）→ 否则401 TOKEN_INVALID
//  2. 授权仍然存在（实时查platform_admins，不信任令牌签发时刻的状态）
//     → 否则403 FORBIDDEN
//
// 第二段保证撤销授权在一个请求内生效：令牌还没过期也没用。
func AdminAuthMiddleware(tokens *utils.AdminTokenService, db database.DatabaseInterface) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				utils.WriteUnauthorizedResponse(w, utils.CodeTokenInvalid, "Missing or malformed authorization header")
				return
			}

			claims, err := tokens.Verify(tokenString)
			if err != nil {
				utils.WriteUnauthorizedResponse(w, utils.CodeTokenInvalid, "Invalid or expired token")
				return
			}

			grant, err := db.GetPlatformAdminByUserID(claims.UserID)
			if err != nil {
				// 授权已被撤销（或从未存在）
				logger.WithFields(map[string]interface{}{
					"user_id": claims.UserID,
					"path":    r.URL.Path,
				}).Warn("admin request rejected: no live platform grant")
				utils.WriteForbiddenResponse(w, utils.CodeForbidden, "Admin access revoked")
				return
			}

			actor := &AdminActor{
				UserID: claims.UserID,
				Email:  claims.Email,
				Role:   grant.Role,
			}

			ctx := context.WithValue(r.Context(), AdminContextKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAdminFromContext 从context中获取管理员主体
func GetAdminFromContext(ctx context.Context) (*AdminActor, bool) {
	actor, ok := ctx.Value(AdminContextKey).(*AdminActor)
	return actor, ok
}

// RequireAdmin 要求管理员必须已通过门禁的辅助函数
func RequireAdmin(ctx context.Context) (*AdminActor, error) {
	actor, ok := GetAdminFromContext(ctx)
	if !ok || actor == nil {
		return nil, fmt.Errorf("admin not authenticated")
	}
	return actor, nil
}
