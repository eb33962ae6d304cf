package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"atelier-backend/pkg/config"
	"atelier-backend/pkg/database"
	"atelier-backend/pkg/logger"
	"atelier-backend/pkg/middleware"
	"atelier-backend/pkg/models"
	"atelier-backend/pkg/ratelimit"
	"atelier-backend/pkg/utils"
)

// ResetTokenTTL 重置链接有效期
const ResetTokenTTL = 1 * time.Hour

// AdminAuthHandler 管理员认证处理器：登录、续期、改密、重置。
// 管理员凭据与普通用户登录完全隔离（见models.AdminCredential）。
type AdminAuthHandler struct {
	config  *config.Config
	db      database.DatabaseInterface
	tokens  *utils.AdminTokenService
	limiter ratelimit.Store
	mailer  *utils.EmailSender
}

// NewAdminAuthHandler 创建管理员认证处理器
func NewAdminAuthHandler(cfg *config.Config, db database.DatabaseInterface, tokens *utils.AdminTokenService, limiter ratelimit.Store, mailer *utils.EmailSender) *AdminAuthHandler {
	return &AdminAuthHandler{
		config:  cfg,
		db:      db,
		tokens:  tokens,
		limiter: limiter,
		mailer:  mailer,
	}
}

// Login POST /api/admin/auth/login
//
// 顺序是安全语义的一部分：
//  1. 限流检查在凭据验证之前（超限的尝试完全不触碰凭据存储）；
//     窗口以首次尝试为锚点，成功登录也计数，到期前不会提前结束
//  2. 邮箱不存在与密码错误返回同一个401 INVALID_CREDENTIALS（反枚举）
//  3. 凭据正确但授权已撤销 → 403 NOT_AUTHORIZED（与凭据错误可区分：
//     此时调用者已证明身份，不存在枚举风险）
func (h *AdminAuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.AdminLoginRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		utils.WriteBadRequestResponse(w, "Email and password are required")
		return
	}

	// 限流按提交的邮箱计数（包括不存在的邮箱）
	result, err := h.limiter.Hit(r.Context(), strings.ToLower(req.Email))
	if err != nil {
		// 限流后端故障：放行但记录（fail open，见ratelimit包说明）
		logger.WithField("error", err.Error()).Warn("rate limiter unavailable, allowing attempt")
	}
	if !result.Allowed {
		logger.WithField("email", req.Email).Warn("admin login rate limited")
		utils.WriteRateLimitedResponse(w, int(result.RetryAfter.Seconds()))
		return
	}

	cred, err := h.db.GetAdminCredentialByEmail(req.Email)
	if err != nil {
		// 与密码错误不可区分
		utils.WriteUnauthorizedResponse(w, utils.CodeInvalidCredentials, "Invalid email or password")
		return
	}

	if err := utils.CheckPassword(cred.PasswordHash, req.Password); err != nil {
		utils.WriteUnauthorizedResponse(w, utils.CodeInvalidCredentials, "Invalid email or password")
		return
	}

	// 凭据正确还不够：授权必须当前存在
	grant, err := h.db.GetPlatformAdminByUserID(cred.UserID)
	if err != nil {
		logger.WithField("user_id", cred.UserID).Warn("admin login with valid credentials but no live grant")
		utils.WriteForbiddenResponse(w, utils.CodeNotAuthorized, "Not authorized for admin access")
		return
	}

	token, err := h.tokens.Issue(cred.UserID, cred.AdminEmail)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to issue token")
		return
	}

	logger.WithFields(map[string]interface{}{
		"user_id": cred.UserID,
		"role":    grant.Role,
	}).Info("admin login")

	utils.WriteSuccessResponse(w, models.AdminLoginResponse{
		Token:      token,
		FirstLogin: cred.FirstLogin,
		Role:       grant.Role,
	})
}

// Refresh POST /api/admin/auth/refresh
// 用仍然有效的令牌换取新的30分钟令牌；过期令牌只能重新登录。
// 续期同样实时核对授权：被撤销的管理员拿不到新令牌。
func (h *AdminAuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if authHeader == "" || tokenString == authHeader {
		utils.WriteUnauthorizedResponse(w, utils.CodeTokenInvalid, "Missing or malformed authorization header")
		return
	}

	claims, err := h.tokens.Verify(tokenString)
	if err != nil {
		utils.WriteUnauthorizedResponse(w, utils.CodeTokenInvalid, "Invalid or expired token")
		return
	}

	if _, err := h.db.GetPlatformAdminByUserID(claims.UserID); err != nil {
		utils.WriteForbiddenResponse(w, utils.CodeForbidden, "Admin access revoked")
		return
	}

	token, err := h.tokens.Issue(claims.UserID, claims.Email)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to issue token")
		return
	}

	utils.WriteSuccessResponse(w, map[string]string{"token": token})
}

// ChangePassword POST /api/admin/auth/change-password（需通过管理员门禁）
// 必须提供当前密码；改密后first_login清零。已签发的令牌在剩余有效期内
// 仍然可用，撤销访问走授权移除。
func (h *AdminAuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.RequireAdmin(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, utils.CodeTokenInvalid, "Authentication required")
		return
	}

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	if len(req.NewPassword) < utils.MinPasswordLength {
		utils.WriteValidationErrorResponse(w,
			fmt.Sprintf("Password must be at least %d characters", utils.MinPasswordLength), "")
		return
	}

	cred, err := h.db.GetAdminCredentialByUserID(actor.UserID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			utils.WriteNotFoundResponse(w, "Admin credentials not found")
			return
		}
		utils.WriteInternalServerErrorResponse(w, "Failed to load credentials")
		return
	}

	if err := utils.CheckPassword(cred.PasswordHash, req.CurrentPassword); err != nil {
		utils.WriteUnauthorizedResponse(w, utils.CodeInvalidCredentials, "Current password is incorrect")
		return
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to hash password")
		return
	}

	if err := h.db.UpdateAdminPassword(actor.UserID, hash, false); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to update password")
		return
	}

	logger.WithField("user_id", actor.UserID).Info("admin password changed")
	utils.WriteSuccessResponse(w, map[string]string{"message": "Password updated"})
}

// ResetPassword POST /api/admin/auth/reset-password
// 反枚举：无论邮箱是否存在都返回同一个200。存在时生成一次性、1小时
// 有效的重置token并通过邮件发出，绝不在响应中返回。
func (h *AdminAuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		utils.WriteBadRequestResponse(w, "Email is required")
		return
	}

	genericResponse := map[string]string{
		"message": "If the account exists, a reset link has been sent",
	}

	cred, err := h.db.GetAdminCredentialByEmail(req.Email)
	if err != nil {
		utils.WriteSuccessResponse(w, genericResponse)
		return
	}

	token, err := utils.GenerateURLToken(32)
	if err != nil {
		utils.WriteSuccessResponse(w, genericResponse)
		return
	}

	reset := &models.AdminPasswordReset{
		Token:     token,
		UserID:    cred.UserID,
		ExpiresAt: time.Now().Add(ResetTokenTTL),
	}
	if err := h.db.CreatePasswordReset(reset); err != nil {
		logger.WithField("error", err.Error()).Error("failed to store password reset")
		utils.WriteSuccessResponse(w, genericResponse)
		return
	}

	if h.mailer.Configured() {
		resetURL := fmt.Sprintf("%s/admin/reset?token=%s", h.config.AppBaseURL, token)
		if err := h.mailer.SendPasswordResetEmail(cred.AdminEmail, resetURL); err != nil {
			logger.WithField("error", err.Error()).Error("failed to send reset email")
		}
	} else {
		logger.WithField("user_id", cred.UserID).Warn("SMTP not configured, reset email skipped")
	}

	utils.WriteSuccessResponse(w, genericResponse)
}

// ResetConfirm POST /api/admin/auth/reset-confirm
// 消费重置token并设置新密码。token一次性：已用或过期的token统一返回401。
func (h *AdminAuthHandler) ResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	if req.Token == "" {
		utils.WriteBadRequestResponse(w, "Token is required")
		return
	}
	if len(req.NewPassword) < utils.MinPasswordLength {
		utils.WriteValidationErrorResponse(w,
			fmt.Sprintf("Password must be at least %d characters", utils.MinPasswordLength), "")
		return
	}

	reset, err := h.db.ConsumePasswordReset(req.Token)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			utils.WriteUnauthorizedResponse(w, utils.CodeTokenInvalid, "Invalid or expired reset token")
			return
		}
		utils.WriteInternalServerErrorResponse(w, "Failed to verify reset token")
		return
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to hash password")
		return
	}

	if err := h.db.UpdateAdminPassword(reset.UserID, hash, false); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to update password")
		return
	}

	logger.WithField("user_id", reset.UserID).Info("admin password reset completed")
	utils.WriteSuccessResponse(w, map[string]string{"message": "Password updated"})
}
