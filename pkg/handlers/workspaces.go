package handlers

import (
	"errors"
	"net/http"
	"regexp"
	"strings"

	chiRoute "github.com/go-chi/chi/v5"

	"atelier-backend/pkg/config"
	"atelier-backend/pkg/database"
	"atelier-backend/pkg/logger"
	"atelier-backend/pkg/middleware"
	"atelier-backend/pkg/models"
	"atelier-backend/pkg/policy"
	"atelier-backend/pkg/utils"
)

// WorkspacesHandler 工作区、成员与邀请
type WorkspacesHandler struct {
	config *config.Config
	db     database.DatabaseInterface
	mailer *utils.EmailSender
}

// NewWorkspacesHandler 创建工作区处理器
func NewWorkspacesHandler(cfg *config.Config, db database.DatabaseInterface, mailer *utils.EmailSender) *WorkspacesHandler {
	return &WorkspacesHandler{config: cfg, db: db, mailer: mailer}
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// slugify 从名称生成URL安全的slug
func slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = slugPattern.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Create POST /api/workspaces
func (h *WorkspacesHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, utils.CodeTokenInvalid, "Authentication required")
		return
	}

	var req struct {
		Name string `json:"name"`
		Slug string `json:"slug,omitempty"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		utils.WriteValidationErrorResponse(w, "Name is required", "")
		return
	}

	slug := req.Slug
	if slug == "" {
		slug = slugify(req.Name)
	}
	if slug == "" {
		utils.WriteValidationErrorResponse(w, "Cannot derive a slug from the name", "")
		return
	}

	ws := &models.Workspace{
		Name:    strings.TrimSpace(req.Name),
		Slug:    slug,
		Plan:    models.PlanFree,
		OwnerID: user.ID,
	}
	if err := h.db.CreateWorkspace(ws); err != nil {
		if errors.Is(err, database.ErrAlreadyExists) {
			utils.WriteConflictResponse(w, utils.CodeAlreadyExists, "Slug already in use")
			return
		}
		utils.WriteInternalServerErrorResponse(w, "Failed to create workspace")
		return
	}

	logger.WithFields(map[string]interface{}{
		"workspace_id": ws.ID,
		"owner_id":     user.ID,
	}).Info("workspace created")
	utils.WriteCreatedResponse(w, ws)
}

// List GET /api/workspaces — 只返回调用者所属的工作区
func (h *WorkspacesHandler) List(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, utils.CodeTokenInvalid, "Authentication required")
		return
	}

	workspaces, err := h.db.ListUserWorkspaces(user.ID)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to list workspaces")
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"workspaces": workspaces})
}

// Get GET /api/workspaces/{workspaceID}
// 非成员访问与不存在不可区分（都是404）
func (h *WorkspacesHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, utils.CodeTokenInvalid, "Authentication required")
		return
	}
	workspaceID := chiRoute.URLParam(r, "workspaceID")

	if !policy.CanRead(h.db, user.ID, workspaceID) {
		utils.WriteNotFoundResponse(w, "Workspace not found")
		return
	}

	ws, err := h.db.GetWorkspace(workspaceID)
	if err != nil {
		utils.WriteNotFoundResponse(w, "Workspace not found")
		return
	}
	utils.WriteSuccessResponse(w, ws)
}

// Delete DELETE /api/workspaces/{workspaceID} — 仅owner
func (h *WorkspacesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, utils.CodeTokenInvalid, "Authentication required")
		return
	}
	workspaceID := chiRoute.URLParam(r, "workspaceID")

	if !policy.HasWorkspaceRole(h.db, user.ID, workspaceID, models.RoleOwner) {
		utils.WriteForbiddenResponse(w, utils.CodeForbidden, "Owner privileges required")
		return
	}

	if err := h.db.DeleteWorkspace(workspaceID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			utils.WriteNotFoundResponse(w, "Workspace not found")
			return
		}
		utils.WriteInternalServerErrorResponse(w, "Failed to delete workspace")
		return
	}

	logger.WithFields(map[string]interface{}{
		"workspace_id": workspaceID,
		"deleted_by":   user.ID,
	}).Warn("workspace deleted")
	utils.WriteSuccessResponse(w, map[string]string{"message": "Workspace deleted"})
}

// ListMembers GET /api/workspaces/{workspaceID}/members
func (h *WorkspacesHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, utils.CodeTokenInvalid, "Authentication required")
		return
	}
	workspaceID := chiRoute.URLParam(r, "workspaceID")

	if !policy.CanRead(h.db, user.ID, workspaceID) {
		utils.WriteNotFoundResponse(w, "Workspace not found")
		return
	}

	members, err := h.db.ListWorkspaceMembers(workspaceID)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to list members")
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"members": members})
}

// UpdateMemberRole PUT /api/workspaces/{workspaceID}/members/{userID}
// 需要admin以上角色；把最后一个owner降级会失败
func (h *WorkspacesHandler) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, utils.CodeTokenInvalid, "Authentication required")
		return
	}
	workspaceID := chiRoute.URLParam(r, "workspaceID")
	targetID := chiRoute.URLParam(r, "userID")

	if !policy.CanMutateDestructively(h.db, user.ID, workspaceID) {
		utils.WriteForbiddenResponse(w, utils.CodeForbidden, "Admin privileges required")
		return
	}

	var req struct {
		Role string `json:"role"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	role, err := models.ParseWorkspaceRole(req.Role)
	if err != nil {
		utils.WriteValidationErrorResponse(w, "Invalid role", err.Error())
		return
	}

	if err := h.db.UpdateMemberRole(workspaceID, targetID, role); err != nil {
		switch {
		case errors.Is(err, database.ErrLastOwner):
			utils.WriteConflictResponse(w, utils.CodeBadRequest, "Workspace must keep at least one owner")
		case errors.Is(err, database.ErrNotFound):
			utils.WriteNotFoundResponse(w, "Membership not found")
		default:
			utils.WriteInternalServerErrorResponse(w, "Failed to update role")
		}
		return
	}

	utils.WriteSuccessResponse(w, map[string]string{"message": "Role updated"})
}

// RemoveMember DELETE /api/workspaces/{workspaceID}/members/{userID}
// admin以上角色可移除他人；成员可自行退出；最后一个owner无法被移除
func (h *WorkspacesHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, utils.CodeTokenInvalid, "Authentication required")
		return
	}
	workspaceID := chiRoute.URLParam(r, "workspaceID")
	targetID := chiRoute.URLParam(r, "userID")

	selfLeave := targetID == user.ID
	if !selfLeave && !policy.CanMutateDestructively(h.db, user.ID, workspaceID) {
		utils.WriteForbiddenResponse(w, utils.CodeForbidden, "Admin privileges required")
		return
	}

	if err := h.db.RemoveWorkspaceMember(workspaceID, targetID); err != nil {
		switch {
		case errors.Is(err, database.ErrLastOwner):
			utils.WriteConflictResponse(w, utils.CodeBadRequest, "Workspace must keep at least one owner")
		case errors.Is(err, database.ErrNotFound):
			utils.WriteNotFoundResponse(w, "Membership not found")
		default:
			utils.WriteInternalServerErrorResponse(w, "Failed to remove member")
		}
		return
	}

	logger.WithFields(map[string]interface{}{
		"workspace_id": workspaceID,
		"user_id":      targetID,
		"removed_by":   user.ID,
	}).Info("workspace member removed")
	utils.WriteSuccessResponse(w, map[string]string{"message": "Member removed"})
}

// Invite POST /api/workspaces/{workspaceID}/invites — admin以上角色
func (h *WorkspacesHandler) Invite(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, utils.CodeTokenInvalid, "Authentication required")
		return
	}
	workspaceID := chiRoute.URLParam(r, "workspaceID")

	if !policy.CanMutateDestructively(h.db, user.ID, workspaceID) {
		utils.WriteForbiddenResponse(w, utils.CodeForbidden, "Admin privileges required")
		return
	}

	var req struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" {
		utils.WriteValidationErrorResponse(w, "Email is required", "")
		return
	}
	if req.Role == "" {
		req.Role = string(models.RoleMember)
	}
	role, err := models.ParseWorkspaceRole(req.Role)
	if err != nil {
		utils.WriteValidationErrorResponse(w, "Invalid role", err.Error())
		return
	}
	// 邀请不能直接授予owner
	if role == models.RoleOwner {
		utils.WriteValidationErrorResponse(w, "Cannot invite as owner", "")
		return
	}

	token, err := utils.GenerateURLToken(24)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to generate invite token")
		return
	}

	inv := &models.WorkspaceInvite{
		WorkspaceID: workspaceID,
		Email:       req.Email,
		Role:        role,
		InviterID:   user.ID,
		Token:       token,
	}
	if err := h.db.CreateInvite(inv); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to create invite")
		return
	}

	if h.mailer.Configured() {
		ws, err := h.db.GetWorkspace(workspaceID)
		name := workspaceID
		if err == nil {
			name = ws.Name
		}
		inviteURL := h.config.AppBaseURL + "/invites/accept?token=" + token
		if err := h.mailer.SendInviteEmail(req.Email, name, inviteURL); err != nil {
			logger.WithField("error", err.Error()).Error("failed to send invite email")
		}
	}

	utils.WriteCreatedResponse(w, inv)
}

// AcceptInvite POST /api/invites/accept
// token一次性消费：已用、过期分别返回明确错误
func (h *WorkspacesHandler) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, utils.CodeTokenInvalid, "Authentication required")
		return
	}

	var req struct {
		Token string `json:"token"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if req.Token == "" {
		utils.WriteBadRequestResponse(w, "Token is required")
		return
	}

	m, err := h.db.AcceptInvite(req.Token, user.ID)
	if err != nil {
		switch {
		case errors.Is(err, database.ErrInviteUsed):
			utils.WriteConflictResponse(w, utils.CodeAlreadyExists, "Invite already used")
		case errors.Is(err, database.ErrInviteExpired):
			utils.WriteErrorResponseWithCode(w, http.StatusGone, utils.CodeBadRequest, "Invite expired", "")
		case errors.Is(err, database.ErrAlreadyExists):
			utils.WriteConflictResponse(w, utils.CodeAlreadyExists, "Already a member of this workspace")
		case errors.Is(err, database.ErrNotFound):
			utils.WriteNotFoundResponse(w, "Invite not found")
		default:
			utils.WriteInternalServerErrorResponse(w, "Failed to accept invite")
		}
		return
	}

	logger.WithFields(map[string]interface{}{
		"workspace_id": m.WorkspaceID,
		"user_id":      user.ID,
	}).Info("invite accepted")
	utils.WriteSuccessResponse(w, m)
}
