package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"atelier-backend/pkg/config"
	"atelier-backend/pkg/database"
	"atelier-backend/pkg/logger"
	"atelier-backend/pkg/models"
	"atelier-backend/pkg/utils"
)

// UsersHandler 普通用户注册与会话（与管理员认证完全独立的入口）
type UsersHandler struct {
	config *config.Config
	db     database.DatabaseInterface
	jwt    *utils.JWTService
}

// NewUsersHandler 创建用户处理器
func NewUsersHandler(cfg *config.Config, db database.DatabaseInterface) *UsersHandler {
	return &UsersHandler{
		config: cfg,
		db:     db,
		jwt:    utils.NewJWTService(cfg.JWTSecret),
	}
}

// Register POST /api/auth/register
func (h *UsersHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.UserRegisterRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		utils.WriteValidationErrorResponse(w, "A valid email is required", "")
		return
	}
	if len(req.Password) < utils.MinPasswordLength {
		utils.WriteValidationErrorResponse(w,
			fmt.Sprintf("Password must be at least %d characters", utils.MinPasswordLength), "")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to hash password")
		return
	}

	user := &models.User{
		Email:    req.Email,
		Password: hash,
		Name:     strings.TrimSpace(req.Name),
	}
	if err := h.db.CreateUser(user); err != nil {
		if errors.Is(err, database.ErrAlreadyExists) {
			utils.WriteConflictResponse(w, utils.CodeAlreadyExists, "Email already registered")
			return
		}
		utils.WriteInternalServerErrorResponse(w, "Failed to create user")
		return
	}

	logger.WithField("user_id", user.ID).Info("user registered")
	utils.WriteCreatedResponse(w, user)
}

// Login POST /api/auth/login
// 邮箱不存在与密码错误返回同一个401（反枚举）
func (h *UsersHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.UserLoginRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		utils.WriteBadRequestResponse(w, "Email and password are required")
		return
	}

	user, err := h.db.GetUserByEmail(req.Email)
	if err != nil {
		utils.WriteUnauthorizedResponse(w, utils.CodeInvalidCredentials, "Invalid email or password")
		return
	}

	if err := utils.CheckPassword(user.Password, req.Password); err != nil {
		utils.WriteUnauthorizedResponse(w, utils.CodeInvalidCredentials, "Invalid email or password")
		return
	}

	accessToken, refreshToken, expiresIn, err := h.jwt.GenerateTokenPair(user.ID, user.Email)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to generate tokens")
		return
	}

	utils.WriteSuccessResponse(w, models.UserLoginResponse{
		User:         *user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
	})
}

// Refresh POST /api/auth/refresh
func (h *UsersHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshTokenRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if req.RefreshToken == "" {
		utils.WriteBadRequestResponse(w, "refresh_token is required")
		return
	}

	accessToken, expiresIn, err := h.jwt.RefreshAccessToken(req.RefreshToken)
	if err != nil {
		utils.WriteUnauthorizedResponse(w, utils.CodeTokenInvalid, "Invalid refresh token")
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"access_token": accessToken,
		"expires_in":   expiresIn,
	})
}
