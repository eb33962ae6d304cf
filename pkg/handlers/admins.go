package handlers

import (
	"errors"
	"net/http"
	"strings"

	"atelier-backend/pkg/config"
	"atelier-backend/pkg/database"
	"atelier-backend/pkg/logger"
	"atelier-backend/pkg/middleware"
	"atelier-backend/pkg/models"
	"atelier-backend/pkg/utils"
)

// AdminManagementHandler 平台管理员管理与跨租户特权操作。
// 单一入口按action分发（管理前端只发一个端点）。
type AdminManagementHandler struct {
	config *config.Config
	db     database.DatabaseInterface
}

// NewAdminManagementHandler 创建管理处理器
func NewAdminManagementHandler(cfg *config.Config, db database.DatabaseInterface) *AdminManagementHandler {
	return &AdminManagementHandler{config: cfg, db: db}
}

// adminActionRequest 管理操作统一请求体
type adminActionRequest struct {
	Action string `json:"action"`

	// admin管理字段
	UserID     string `json:"user_id,omitempty"`
	AdminEmail string `json:"admin_email,omitempty"`
	Password   string `json:"password,omitempty"`
	Role       string `json:"role,omitempty"`

	// 跨租户特权操作字段
	WorkspaceID string `json:"workspace_id,omitempty"`
	Plan        string `json:"plan,omitempty"`
}

// Dispatch POST /api/admin/manage（需通过管理员门禁）
func (h *AdminManagementHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.RequireAdmin(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, utils.CodeTokenInvalid, "Authentication required")
		return
	}

	var req adminActionRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	switch req.Action {
	case "list":
		h.listAdmins(w)
	case "add":
		h.addAdmin(w, actor, &req)
	case "remove":
		h.removeAdmin(w, actor, &req)
	case "update_role":
		h.updateAdminRole(w, actor, &req)
	case "change_plan":
		h.changePlan(w, actor, &req)
	case "delete_workspace":
		h.deleteWorkspace(w, actor, &req)
	case "delete_user":
		h.deleteUser(w, actor, &req)
	default:
		utils.WriteBadRequestResponse(w, "Unknown action: "+req.Action)
	}
}

// requireSuperAdmin 变更性管理操作仅限super_admin
func requireSuperAdmin(w http.ResponseWriter, actor *middleware.AdminActor) bool {
	if actor.Role != models.PlatformSuperAdmin {
		utils.WriteForbiddenResponse(w, utils.CodeForbidden, "Super admin privileges required")
		return false
	}
	return true
}

func (h *AdminManagementHandler) listAdmins(w http.ResponseWriter) {
	admins, err := h.db.ListPlatformAdmins()
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to list admins")
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"admins": admins})
}

// addAdmin 授予平台管理员：创建独立凭据（first_login=true，强制首登改密）
// 并写入授权记录，granted_by落操作者。
func (h *AdminManagementHandler) addAdmin(w http.ResponseWriter, actor *middleware.AdminActor, req *adminActionRequest) {
	if !requireSuperAdmin(w, actor) {
		return
	}

	req.AdminEmail = strings.TrimSpace(req.AdminEmail)
	if req.UserID == "" || req.AdminEmail == "" || req.Password == "" {
		utils.WriteBadRequestResponse(w, "user_id, admin_email and password are required")
		return
	}
	role, err := models.ParsePlatformRole(req.Role)
	if err != nil {
		utils.WriteValidationErrorResponse(w, "Invalid role", err.Error())
		return
	}
	if len(req.Password) < utils.MinPasswordLength {
		utils.WriteValidationErrorResponse(w, "Password too short", "")
		return
	}

	// 被授权者必须是已注册用户
	if _, err := h.db.GetUserByID(req.UserID); err != nil {
		utils.WriteNotFoundResponse(w, "User not found")
		return
	}

	// 重复与否只看授权本身：撤销后遗留的凭据不阻止重新授予
	if _, err := h.db.GetPlatformAdminByUserID(req.UserID); err == nil {
		utils.WriteConflictResponse(w, utils.CodeAlreadyExists, "User is already a platform admin")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to hash password")
		return
	}

	cred := &models.AdminCredential{
		UserID:       req.UserID,
		AdminEmail:   req.AdminEmail,
		PasswordHash: hash,
		FirstLogin:   true,
	}
	if err := h.db.CreateAdminCredential(cred); err != nil {
		if errors.Is(err, database.ErrAlreadyExists) {
			// 此前撤销时保留的旧凭据行：重置密码并再次强制首登改密。
			// 凭据属于其他用户（admin_email冲突）时更新失败，按冲突处理。
			if err := h.db.UpdateAdminPassword(req.UserID, hash, true); err != nil {
				utils.WriteConflictResponse(w, utils.CodeAlreadyExists, "Admin email already in use")
				return
			}
		} else {
			utils.WriteInternalServerErrorResponse(w, "Failed to create credential")
			return
		}
	}

	grant := &models.PlatformAdmin{
		UserID:    req.UserID,
		Role:      role,
		GrantedBy: actor.UserID,
	}
	if err := h.db.AddPlatformAdmin(grant); err != nil {
		if errors.Is(err, database.ErrAlreadyExists) {
			utils.WriteConflictResponse(w, utils.CodeAlreadyExists, "User is already a platform admin")
			return
		}
		utils.WriteInternalServerErrorResponse(w, "Failed to grant admin access")
		return
	}

	logger.WithFields(map[string]interface{}{
		"user_id":    req.UserID,
		"role":       role,
		"granted_by": actor.UserID,
	}).Info("platform admin granted")

	grant.AdminEmail = req.AdminEmail
	utils.WriteCreatedResponse(w, grant)
}

// removeAdmin 撤销授权。下一个请求起门禁即拒绝（实时核对）。
// 允许移除最后一位管理员，但记录告警：恢复需要直接操作数据库。
func (h *AdminManagementHandler) removeAdmin(w http.ResponseWriter, actor *middleware.AdminActor, req *adminActionRequest) {
	if !requireSuperAdmin(w, actor) {
		return
	}
	if req.UserID == "" {
		utils.WriteBadRequestResponse(w, "user_id is required")
		return
	}

	admins, err := h.db.ListPlatformAdmins()
	if err == nil && len(admins) == 1 && admins[0].UserID == req.UserID {
		logger.WithFields(map[string]interface{}{
			"user_id":    req.UserID,
			"removed_by": actor.UserID,
		}).Warn("removing the last platform admin")
	}

	if err := h.db.RemovePlatformAdmin(req.UserID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			utils.WriteNotFoundResponse(w, "Platform admin not found")
			return
		}
		utils.WriteInternalServerErrorResponse(w, "Failed to remove admin")
		return
	}

	logger.WithFields(map[string]interface{}{
		"user_id":    req.UserID,
		"removed_by": actor.UserID,
	}).Info("platform admin revoked")
	utils.WriteSuccessResponse(w, map[string]string{"message": "Admin access revoked"})
}

// updateAdminRole 修改角色；目标角色与现角色相同时为幂等成功。
func (h *AdminManagementHandler) updateAdminRole(w http.ResponseWriter, actor *middleware.AdminActor, req *adminActionRequest) {
	if !requireSuperAdmin(w, actor) {
		return
	}
	if req.UserID == "" {
		utils.WriteBadRequestResponse(w, "user_id is required")
		return
	}
	role, err := models.ParsePlatformRole(req.Role)
	if err != nil {
		utils.WriteValidationErrorResponse(w, "Invalid role", err.Error())
		return
	}

	if err := h.db.UpdatePlatformAdminRole(req.UserID, role); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			utils.WriteNotFoundResponse(w, "Platform admin not found")
			return
		}
		utils.WriteInternalServerErrorResponse(w, "Failed to update role")
		return
	}

	logger.WithFields(map[string]interface{}{
		"user_id":    req.UserID,
		"role":       role,
		"updated_by": actor.UserID,
	}).Info("platform admin role updated")
	utils.WriteSuccessResponse(w, map[string]string{"message": "Role updated"})
}

// changePlan 跨租户修改工作区套餐
func (h *AdminManagementHandler) changePlan(w http.ResponseWriter, actor *middleware.AdminActor, req *adminActionRequest) {
	if req.WorkspaceID == "" {
		utils.WriteBadRequestResponse(w, "workspace_id is required")
		return
	}
	plan, err := models.ParseWorkspacePlan(req.Plan)
	if err != nil {
		utils.WriteValidationErrorResponse(w, "Invalid plan", err.Error())
		return
	}

	if err := h.db.UpdateWorkspacePlan(req.WorkspaceID, plan); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			utils.WriteNotFoundResponse(w, "Workspace not found")
			return
		}
		utils.WriteInternalServerErrorResponse(w, "Failed to update plan")
		return
	}

	logger.WithFields(map[string]interface{}{
		"workspace_id": req.WorkspaceID,
		"plan":         plan,
		"admin":        actor.UserID,
	}).Info("workspace plan changed by platform admin")
	utils.WriteSuccessResponse(w, map[string]string{"message": "Plan updated"})
}

// deleteWorkspace 跨租户删除整个工作区（级联删除租户数据），仅限super_admin
func (h *AdminManagementHandler) deleteWorkspace(w http.ResponseWriter, actor *middleware.AdminActor, req *adminActionRequest) {
	if !requireSuperAdmin(w, actor) {
		return
	}
	if req.WorkspaceID == "" {
		utils.WriteBadRequestResponse(w, "workspace_id is required")
		return
	}

	if err := h.db.DeleteWorkspace(req.WorkspaceID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			utils.WriteNotFoundResponse(w, "Workspace not found")
			return
		}
		utils.WriteInternalServerErrorResponse(w, "Failed to delete workspace")
		return
	}

	logger.WithFields(map[string]interface{}{
		"workspace_id": req.WorkspaceID,
		"admin":        actor.UserID,
	}).Warn("workspace deleted by platform admin")
	utils.WriteSuccessResponse(w, map[string]string{"message": "Workspace deleted"})
}

// deleteUser 删除用户账号（成员关系级联），仅限super_admin
func (h *AdminManagementHandler) deleteUser(w http.ResponseWriter, actor *middleware.AdminActor, req *adminActionRequest) {
	if !requireSuperAdmin(w, actor) {
		return
	}
	if req.UserID == "" {
		utils.WriteBadRequestResponse(w, "user_id is required")
		return
	}

	if err := h.db.DeleteUser(req.UserID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			utils.WriteNotFoundResponse(w, "User not found")
			return
		}
		utils.WriteInternalServerErrorResponse(w, "Failed to delete user")
		return
	}

	logger.WithFields(map[string]interface{}{
		"user_id": req.UserID,
		"admin":   actor.UserID,
	}).Warn("user deleted by platform admin")
	utils.WriteSuccessResponse(w, map[string]string{"message": "User deleted"})
}
