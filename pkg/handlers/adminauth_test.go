package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atelier-backend/pkg/config"
	"atelier-backend/pkg/database"
	"atelier-backend/pkg/middleware"
	"atelier-backend/pkg/models"
	"atelier-backend/pkg/ratelimit"
	"atelier-backend/pkg/utils"
)

const testAdminPassword = "initial-password-1"

// adminFixture 管理员端到端测试夹具：内存库 + 内存限流 + 真实令牌服务
type adminFixture struct {
	db      *database.MemoryDatabase
	tokens  *utils.AdminTokenService
	limiter *ratelimit.MemoryStore
	auth    *AdminAuthHandler
	mgmt    *AdminManagementHandler
	cfg     *config.Config
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	cfg := &config.Config{
		Environment:    "development",
		JWTSecret:      "test-user-secret",
		AdminJWTSecret: "test-admin-secret",
		AppBaseURL:     "http://localhost:3000",
	}
	db := database.NewMemoryDatabase()
	tokens := utils.NewAdminTokenService(cfg.AdminJWTSecret)
	limiter := ratelimit.NewMemoryStore(ratelimit.DefaultConfig())
	mailer := utils.NewEmailSender("", "", "", "") // 未配置：邮件静默跳过

	return &adminFixture{
		db:      db,
		tokens:  tokens,
		limiter: limiter,
		auth:    NewAdminAuthHandler(cfg, db, tokens, limiter, mailer),
		mgmt:    NewAdminManagementHandler(cfg, db),
		cfg:     cfg,
	}
}

// seedAdmin 注册用户并授予平台管理员（带独立凭据）
func (f *adminFixture) seedAdmin(t *testing.T, userID, adminEmail string, role models.PlatformRole) {
	t.Helper()
	require.NoError(t, f.db.CreateUser(&models.User{
		ID: userID, Email: userID + "@example.com", Password: "irrelevant",
	}))
	hash, err := utils.HashPassword(testAdminPassword)
	require.NoError(t, err)
	require.NoError(t, f.db.CreateAdminCredential(&models.AdminCredential{
		UserID: userID, AdminEmail: adminEmail, PasswordHash: hash, FirstLogin: true,
	}))
	require.NoError(t, f.db.AddPlatformAdmin(&models.PlatformAdmin{
		UserID: userID, Role: role,
	}))
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func postJSON(t *testing.T, h http.HandlerFunc, path string, body interface{}, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

func TestAdminLoginSuccess(t *testing.T) {
	f := newAdminFixture(t)
	f.seedAdmin(t, "admin-1", "ops@example.com", models.PlatformSuperAdmin)

	w, env := postJSON(t, f.auth.Login, "/api/admin/auth/login",
		models.AdminLoginRequest{Email: "ops@example.com", Password: testAdminPassword}, nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.AdminLoginResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.True(t, resp.FirstLogin)
	assert.Equal(t, models.PlatformSuperAdmin, resp.Role)

	claims, err := f.tokens.Verify(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", claims.UserID)
}

func TestAdminLoginInvalidCredentialsIndistinguishable(t *testing.T) {
	f := newAdminFixture(t)
	f.seedAdmin(t, "admin-1", "ops@example.com", models.PlatformSupport)

	// 密码错误
	w1, env1 := postJSON(t, f.auth.Login, "/api/admin/auth/login",
		models.AdminLoginRequest{Email: "ops@example.com", Password: "wrong"}, nil)
	// 邮箱不存在
	w2, env2 := postJSON(t, f.auth.Login, "/api/admin/auth/login",
		models.AdminLoginRequest{Email: "ghost@example.com", Password: "wrong"}, nil)

	// 两种失败的状态码与错误码完全一致（反枚举）
	assert.Equal(t, http.StatusUnauthorized, w1.Code)
	assert.Equal(t, http.StatusUnauthorized, w2.Code)
	require.NotNil(t, env1.Error)
	require.NotNil(t, env2.Error)
	assert.Equal(t, utils.CodeInvalidCredentials, env1.Error.Code)
	assert.Equal(t, env1.Error.Code, env2.Error.Code)
	assert.Equal(t, env1.Error.Message, env2.Error.Message)
}

func TestAdminLoginRevokedGrant(t *testing.T) {
	f := newAdminFixture(t)
	f.seedAdmin(t, "admin-1", "ops@example.com", models.PlatformSupport)
	require.NoError(t, f.db.RemovePlatformAdmin("admin-1"))

	// 凭据正确但授权已撤销：403，与401可区分
	w, env := postJSON(t, f.auth.Login, "/api/admin/auth/login",
		models.AdminLoginRequest{Email: "ops@example.com", Password: testAdminPassword}, nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, utils.CodeNotAuthorized, env.Error.Code)
}

func TestAdminLoginRateLimited(t *testing.T) {
	f := newAdminFixture(t)
	f.seedAdmin(t, "admin-1", "ops@example.com", models.PlatformSupport)

	for i := 0; i < 5; i++ {
		w, _ := postJSON(t, f.auth.Login, "/api/admin/auth/login",
			models.AdminLoginRequest{Email: "ops@example.com", Password: "wrong"}, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "attempt %d", i+1)
	}

	// 第6次：即使密码正确也被拒绝，凭据根本不被评估
	w, env := postJSON(t, f.auth.Login, "/api/admin/auth/login",
		models.AdminLoginRequest{Email: "ops@example.com", Password: testAdminPassword}, nil)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, utils.CodeRateLimited, env.Error.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// 其他邮箱不受影响
	w2, _ := postJSON(t, f.auth.Login, "/api/admin/auth/login",
		models.AdminLoginRequest{Email: "other@example.com", Password: "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w2.Code)
}

func TestAdminLoginSuccessDoesNotResetWindow(t *testing.T) {
	f := newAdminFixture(t)
	f.seedAdmin(t, "admin-1", "ops@example.com", models.PlatformSupport)

	for i := 0; i < 4; i++ {
		postJSON(t, f.auth.Login, "/api/admin/auth/login",
			models.AdminLoginRequest{Email: "ops@example.com", Password: "wrong"}, nil)
	}

	// 第5次成功：正常放行，但同样计入窗口
	w, _ := postJSON(t, f.auth.Login, "/api/admin/auth/login",
		models.AdminLoginRequest{Email: "ops@example.com", Password: testAdminPassword}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// 第6次：窗口未因成功登录而清空，凭据正确与否都被拒
	w, env := postJSON(t, f.auth.Login, "/api/admin/auth/login",
		models.AdminLoginRequest{Email: "ops@example.com", Password: testAdminPassword}, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, utils.CodeRateLimited, env.Error.Code)
}

func TestAdminRefresh(t *testing.T) {
	f := newAdminFixture(t)
	f.seedAdmin(t, "admin-1", "ops@example.com", models.PlatformSupport)

	token, err := f.tokens.Issue("admin-1", "ops@example.com")
	require.NoError(t, err)

	w, env := postJSON(t, f.auth.Refresh, "/api/admin/auth/refresh", map[string]string{},
		map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	claims, err := f.tokens.Verify(resp["token"])
	require.NoError(t, err)
	assert.Equal(t, "admin-1", claims.UserID)
}

func TestAdminRefreshRevoked(t *testing.T) {
	f := newAdminFixture(t)
	f.seedAdmin(t, "admin-1", "ops@example.com", models.PlatformSupport)

	token, err := f.tokens.Issue("admin-1", "ops@example.com")
	require.NoError(t, err)
	require.NoError(t, f.db.RemovePlatformAdmin("admin-1"))

	// 被撤销的管理员拿不到新令牌
	w, _ := postJSON(t, f.auth.Refresh, "/api/admin/auth/refresh", map[string]string{},
		map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

// gatedChangePassword 经过门禁中间件的改密端点（与路由装配一致）
func (f *adminFixture) gatedChangePassword() http.HandlerFunc {
	gate := middleware.AdminAuthMiddleware(f.tokens, f.db)
	h := gate(http.HandlerFunc(f.auth.ChangePassword))
	return h.ServeHTTP
}

func TestAdminChangePassword(t *testing.T) {
	f := newAdminFixture(t)
	f.seedAdmin(t, "admin-1", "ops@example.com", models.PlatformSupport)

	token, err := f.tokens.Issue("admin-1", "ops@example.com")
	require.NoError(t, err)

	w, _ := postJSON(t, f.gatedChangePassword(), "/api/admin/auth/change-password",
		map[string]string{
			"current_password": testAdminPassword,
			"new_password":     "a-brand-new-password",
		},
		map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, w.Code)

	// 旧密码登录失败，新密码成功且first_login已清零
	w, _ = postJSON(t, f.auth.Login, "/api/admin/auth/login",
		models.AdminLoginRequest{Email: "ops@example.com", Password: testAdminPassword}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env := postJSON(t, f.auth.Login, "/api/admin/auth/login",
		models.AdminLoginRequest{Email: "ops@example.com", Password: "a-brand-new-password"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp models.AdminLoginResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.False(t, resp.FirstLogin)
}

func TestAdminChangePasswordWrongCurrent(t *testing.T) {
	f := newAdminFixture(t)
	f.seedAdmin(t, "admin-1", "ops@example.com", models.PlatformSupport)

	token, err := f.tokens.Issue("admin-1", "ops@example.com")
	require.NoError(t, err)

	w, env := postJSON(t, f.gatedChangePassword(), "/api/admin/auth/change-password",
		map[string]string{
			"current_password": "not-the-password",
			"new_password":     "a-brand-new-password",
		},
		map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, utils.CodeInvalidCredentials, env.Error.Code)
}

func TestAdminChangePasswordMissingCredential(t *testing.T) {
	f := newAdminFixture(t)
	// 授权存在但凭据行缺失（例如数据被直接操作过）
	require.NoError(t, f.db.CreateUser(&models.User{ID: "admin-1", Email: "a1@example.com", Password: "x"}))
	require.NoError(t, f.db.AddPlatformAdmin(&models.PlatformAdmin{UserID: "admin-1", Role: models.PlatformSupport}))

	token, err := f.tokens.Issue("admin-1", "ops@example.com")
	require.NoError(t, err)

	w, env := postJSON(t, f.gatedChangePassword(), "/api/admin/auth/change-password",
		map[string]string{
			"current_password": "whatever",
			"new_password":     "long-enough-pass",
		},
		map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, utils.CodeNotFound, env.Error.Code)
}

func TestTokenSurvivesPasswordRotation(t *testing.T) {
	f := newAdminFixture(t)
	f.seedAdmin(t, "admin-1", "ops@example.com", models.PlatformSupport)

	token, err := f.tokens.Issue("admin-1", "ops@example.com")
	require.NoError(t, err)

	// 轮换密码
	hash, err := utils.HashPassword("rotated-password-9")
	require.NoError(t, err)
	require.NoError(t, f.db.UpdateAdminPassword("admin-1", hash, false))

	// 已签发的令牌在剩余有效期内仍可通过门禁（撤销访问走授权移除）
	w, _ := postJSON(t, f.gatedChangePassword(), "/api/admin/auth/change-password",
		map[string]string{
			"current_password": "rotated-password-9",
			"new_password":     "yet-another-password",
		},
		map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminResetPasswordAntiEnumeration(t *testing.T) {
	f := newAdminFixture(t)
	f.seedAdmin(t, "admin-1", "ops@example.com", models.PlatformSupport)

	// 已知与未知邮箱返回完全相同的响应
	w1, env1 := postJSON(t, f.auth.ResetPassword, "/api/admin/auth/reset-password",
		map[string]string{"email": "ops@example.com"}, nil)
	w2, env2 := postJSON(t, f.auth.ResetPassword, "/api/admin/auth/reset-password",
		map[string]string{"email": "ghost@example.com"}, nil)

	assert.Equal(t, http.StatusOK, w1.Code)
	assert.Equal(t, http.StatusOK, w2.Code)
	assert.Equal(t, string(env1.Data), string(env2.Data))
}

func TestAdminResetConfirmFlow(t *testing.T) {
	f := newAdminFixture(t)
	f.seedAdmin(t, "admin-1", "ops@example.com", models.PlatformSupport)

	require.NoError(t, f.db.CreatePasswordReset(&models.AdminPasswordReset{
		Token: "reset-token-1", UserID: "admin-1", ExpiresAt: time.Now().Add(time.Hour),
	}))

	w, _ := postJSON(t, f.auth.ResetConfirm, "/api/admin/auth/reset-confirm",
		map[string]string{"token": "reset-token-1", "new_password": "password-after-reset"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// 新密码生效
	w, _ = postJSON(t, f.auth.Login, "/api/admin/auth/login",
		models.AdminLoginRequest{Email: "ops@example.com", Password: "password-after-reset"}, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// token一次性：重放失败
	w, env := postJSON(t, f.auth.ResetConfirm, "/api/admin/auth/reset-confirm",
		map[string]string{"token": "reset-token-1", "new_password": "another-password"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, utils.CodeTokenInvalid, env.Error.Code)
}

func TestAdminResetConfirmShortPassword(t *testing.T) {
	f := newAdminFixture(t)
	w, _ := postJSON(t, f.auth.ResetConfirm, "/api/admin/auth/reset-confirm",
		map[string]string{"token": "whatever", "new_password": "short"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
