package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atelier-backend/pkg/middleware"
	"atelier-backend/pkg/models"
	"atelier-backend/pkg/utils"
)

// gatedManage 经过门禁中间件的管理端点（与路由装配一致）
func (f *adminFixture) gatedManage() http.HandlerFunc {
	gate := middleware.AdminAuthMiddleware(f.tokens, f.db)
	h := gate(http.HandlerFunc(f.mgmt.Dispatch))
	return h.ServeHTTP
}

func (f *adminFixture) issueToken(t *testing.T, userID, email string) string {
	t.Helper()
	token, err := f.tokens.Issue(userID, email)
	require.NoError(t, err)
	return token
}

func TestAdminGateRejectsBadTokens(t *testing.T) {
	f := newAdminFixture(t)
	f.seedAdmin(t, "admin-1", "ops@example.com", models.PlatformSuperAdmin)

	cases := map[string]map[string]string{
		"missing header":   nil,
		"malformed header": {"Authorization": "Token abc"},
		"garbage token":    {"Authorization": "Bearer not-a-jwt"},
	}
	for name, headers := range cases {
		w, env := postJSON(t, f.gatedManage(), "/api/admin/manage",
			map[string]string{"action": "list"}, headers)
		assert.Equal(t, http.StatusUnauthorized, w.Code, name)
		require.NotNil(t, env.Error, name)
		assert.Equal(t, utils.CodeTokenInvalid, env.Error.Code, name)
	}
}

func TestRevocationTakesEffectNextRequest(t *testing.T) {
	f := newAdminFixture(t)
	f.seedAdmin(t, "admin-1", "ops@example.com", models.PlatformSuperAdmin)
	token := f.issueToken(t, "admin-1", "ops@example.com")
	headers := map[string]string{"Authorization": "Bearer " + token}

	// 撤销前正常
	w, _ := postJSON(t, f.gatedManage(), "/api/admin/manage",
		map[string]string{"action": "list"}, headers)
	require.Equal(t, http.StatusOK, w.Code)

	// 撤销授权：同一枚未过期令牌下一个请求即被拒
	require.NoError(t, f.db.RemovePlatformAdmin("admin-1"))

	w, env := postJSON(t, f.gatedManage(), "/api/admin/manage",
		map[string]string{"action": "list"}, headers)
	assert.Equal(t, http.StatusForbidden, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, utils.CodeForbidden, env.Error.Code)
}

func TestAddAdminAndDuplicate(t *testing.T) {
	f := newAdminFixture(t)
	f.seedAdmin(t, "admin-1", "ops@example.com", models.PlatformSuperAdmin)
	require.NoError(t, f.db.CreateUser(&models.User{ID: "u-new", Email: "new@example.com", Password: "x"}))
	headers := map[string]string{"Authorization": "Bearer " + f.issueToken(t, "admin-1", "ops@example.com")}

	body := map[string]string{
		"action":      "add",
		"user_id":     "u-new",
		"admin_email": "new-admin@example.com",
		"password":    "initial-admin-pass",
		"role":        "support",
	}
	w, _ := postJSON(t, f.gatedManage(), "/api/admin/manage", body, headers)
	require.Equal(t, http.StatusCreated, w.Code)

	// granted_by落操作者
	grant, err := f.db.GetPlatformAdminByUserID("u-new")
	require.NoError(t, err)
	assert.Equal(t, "admin-1", grant.GrantedBy)
	assert.Equal(t, models.PlatformSupport, grant.Role)

	// 新管理员凭据强制首登改密
	cred, err := f.db.GetAdminCredentialByUserID("u-new")
	require.NoError(t, err)
	assert.True(t, cred.FirstLogin)

	// 重复授权：409
	w, env := postJSON(t, f.gatedManage(), "/api/admin/manage", body, headers)
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, utils.CodeAlreadyExists, env.Error.Code)
}

func TestReAddAdminAfterRevocation(t *testing.T) {
	f := newAdminFixture(t)
	f.seedAdmin(t, "admin-1", "ops@example.com", models.PlatformSuperAdmin)
	require.NoError(t, f.db.CreateUser(&models.User{ID: "u-x", Email: "ux@example.com", Password: "x"}))
	headers := map[string]string{"Authorization": "Bearer " + f.issueToken(t, "admin-1", "ops@example.com")}

	body := map[string]string{
		"action":      "add",
		"user_id":     "u-x",
		"admin_email": "ux-admin@example.com",
		"password":    "first-grant-pass",
		"role":        "support",
	}
	w, _ := postJSON(t, f.gatedManage(), "/api/admin/manage", body, headers)
	require.Equal(t, http.StatusCreated, w.Code)

	w, _ = postJSON(t, f.gatedManage(), "/api/admin/manage",
		map[string]string{"action": "remove", "user_id": "u-x"}, headers)
	require.Equal(t, http.StatusOK, w.Code)

	// 撤销后重新授予：遗留的凭据行不构成冲突
	body["password"] = "second-grant-pass"
	body["role"] = "analyst"
	w, _ = postJSON(t, f.gatedManage(), "/api/admin/manage", body, headers)
	require.Equal(t, http.StatusCreated, w.Code)

	grant, err := f.db.GetPlatformAdminByUserID("u-x")
	require.NoError(t, err)
	assert.Equal(t, models.PlatformAnalyst, grant.Role)

	// 旧密码作废，新密码可登录且再次要求首登改密
	cred, err := f.db.GetAdminCredentialByUserID("u-x")
	require.NoError(t, err)
	assert.True(t, cred.FirstLogin)
	assert.Error(t, utils.CheckPassword(cred.PasswordHash, "first-grant-pass"))
	assert.NoError(t, utils.CheckPassword(cred.PasswordHash, "second-grant-pass"))
}

func TestAddAdminRejectsUnknownRole(t *testing.T) {
	f := newAdminFixture(t)
	f.seedAdmin(t, "admin-1", "ops@example.com", models.PlatformSuperAdmin)
	require.NoError(t, f.db.CreateUser(&models.User{ID: "u-new", Email: "new@example.com", Password: "x"}))
	headers := map[string]string{"Authorization": "Bearer " + f.issueToken(t, "admin-1", "ops@example.com")}

	w, _ := postJSON(t, f.gatedManage(), "/api/admin/manage", map[string]string{
		"action":      "add",
		"user_id":     "u-new",
		"admin_email": "new-admin@example.com",
		"password":    "initial-admin-pass",
		"role":        "godmode",
	}, headers)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateRoleIdempotent(t *testing.T) {
	f := newAdminFixture(t)
	f.seedAdmin(t, "admin-1", "ops@example.com", models.PlatformSuperAdmin)
	f.seedAdmin(t, "admin-2", "ops2@example.com", models.PlatformAnalyst)
	headers := map[string]string{"Authorization": "Bearer " + f.issueToken(t, "admin-1", "ops@example.com")}

	body := map[string]string{"action": "update_role", "user_id": "admin-2", "role": "support"}

	// 同一目标角色执行两次，两次都成功
	for i := 0; i < 2; i++ {
		w, _ := postJSON(t, f.gatedManage(), "/api/admin/manage", body, headers)
		assert.Equal(t, http.StatusOK, w.Code, "attempt %d", i+1)
	}
	grant, err := f.db.GetPlatformAdminByUserID("admin-2")
	require.NoError(t, err)
	assert.Equal(t, models.PlatformSupport, grant.Role)
}

func TestMutatingActionsRequireSuperAdmin(t *testing.T) {
	f := newAdminFixture(t)
	f.seedAdmin(t, "admin-1", "ops@example.com", models.PlatformSupport)
	headers := map[string]string{"Authorization": "Bearer " + f.issueToken(t, "admin-1", "ops@example.com")}

	// list对所有管理员开放
	w, _ := postJSON(t, f.gatedManage(), "/api/admin/manage",
		map[string]string{"action": "list"}, headers)
	assert.Equal(t, http.StatusOK, w.Code)

	// 变更性操作需要super_admin
	for _, action := range []string{"add", "remove", "update_role", "delete_workspace", "delete_user"} {
		w, env := postJSON(t, f.gatedManage(), "/api/admin/manage",
			map[string]string{"action": action, "user_id": "whoever"}, headers)
		assert.Equal(t, http.StatusForbidden, w.Code, action)
		require.NotNil(t, env.Error, action)
		assert.Equal(t, utils.CodeForbidden, env.Error.Code, action)
	}
}

func TestRemoveLastAdminAllowed(t *testing.T) {
	f := newAdminFixture(t)
	f.seedAdmin(t, "admin-1", "ops@example.com", models.PlatformSuperAdmin)
	headers := map[string]string{"Authorization": "Bearer " + f.issueToken(t, "admin-1", "ops@example.com")}

	// 自我移除也是最后一位管理员的移除：允许（告警在日志里）
	w, _ := postJSON(t, f.gatedManage(), "/api/admin/manage",
		map[string]string{"action": "remove", "user_id": "admin-1"}, headers)
	require.Equal(t, http.StatusOK, w.Code)

	admins, err := f.db.ListPlatformAdmins()
	require.NoError(t, err)
	assert.Empty(t, admins)

	// 下一个请求立即被门禁拒绝
	w, _ = postJSON(t, f.gatedManage(), "/api/admin/manage",
		map[string]string{"action": "list"}, headers)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestChangePlanAcrossTenants(t *testing.T) {
	f := newAdminFixture(t)
	f.seedAdmin(t, "admin-1", "ops@example.com", models.PlatformSupport)
	headers := map[string]string{"Authorization": "Bearer " + f.issueToken(t, "admin-1", "ops@example.com")}

	require.NoError(t, f.db.CreateUser(&models.User{ID: "owner-1", Email: "o@example.com", Password: "x"}))
	ws := &models.Workspace{Name: "Atelier", Slug: "atelier", OwnerID: "owner-1"}
	require.NoError(t, f.db.CreateWorkspace(ws))

	w, _ := postJSON(t, f.gatedManage(), "/api/admin/manage",
		map[string]string{"action": "change_plan", "workspace_id": ws.ID, "plan": "studio"}, headers)
	require.Equal(t, http.StatusOK, w.Code)

	got, err := f.db.GetWorkspace(ws.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PlanStudio, got.Plan)

	// 未知套餐
	w, _ = postJSON(t, f.gatedManage(), "/api/admin/manage",
		map[string]string{"action": "change_plan", "workspace_id": ws.ID, "plan": "diamond"}, headers)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 未知工作区
	w, _ = postJSON(t, f.gatedManage(), "/api/admin/manage",
		map[string]string{"action": "change_plan", "workspace_id": "nope", "plan": "free"}, headers)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUnknownAction(t *testing.T) {
	f := newAdminFixture(t)
	f.seedAdmin(t, "admin-1", "ops@example.com", models.PlatformSuperAdmin)
	headers := map[string]string{"Authorization": "Bearer " + f.issueToken(t, "admin-1", "ops@example.com")}

	w, _ := postJSON(t, f.gatedManage(), "/api/admin/manage",
		map[string]string{"action": "explode"}, headers)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
