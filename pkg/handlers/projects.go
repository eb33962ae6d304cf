package handlers

import (
	"errors"
	"net/http"
	"strings"

	chiRoute "github.com/go-chi/chi/v5"

	"atelier-backend/pkg/config"
	"atelier-backend/pkg/database"
	"atelier-backend/pkg/middleware"
	"atelier-backend/pkg/models"
	"atelier-backend/pkg/policy"
	"atelier-backend/pkg/utils"
)

// ProjectsHandler 租户内业务数据：项目与客户。
// 每条读写都经过隔离策略；跨租户访问与不存在不可区分。
type ProjectsHandler struct {
	config *config.Config
	db     database.DatabaseInterface
}

// NewProjectsHandler 创建项目处理器
func NewProjectsHandler(cfg *config.Config, db database.DatabaseInterface) *ProjectsHandler {
	return &ProjectsHandler{config: cfg, db: db}
}

// CreateProject POST /api/workspaces/{workspaceID}/projects
func (h *ProjectsHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, utils.CodeTokenInvalid, "Authentication required")
		return
	}
	workspaceID := chiRoute.URLParam(r, "workspaceID")

	if !policy.CanWrite(h.db, user.ID, workspaceID) {
		utils.WriteNotFoundResponse(w, "Workspace not found")
		return
	}

	var req struct {
		Name        string  `json:"name"`
		ClientID    *string `json:"client_id,omitempty"`
		Status      string  `json:"status,omitempty"`
		BudgetCents int64   `json:"budget_cents,omitempty"`
		Currency    string  `json:"currency,omitempty"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		utils.WriteValidationErrorResponse(w, "Name is required", "")
		return
	}

	status := models.ProjectDraft
	if req.Status != "" {
		status = models.ProjectStatus(req.Status)
		switch status {
		case models.ProjectDraft, models.ProjectActive, models.ProjectOnHold, models.ProjectCompleted:
		default:
			utils.WriteValidationErrorResponse(w, "Invalid status", "")
			return
		}
	}

	p := &models.Project{
		WorkspaceID: workspaceID,
		ClientID:    req.ClientID,
		Name:        strings.TrimSpace(req.Name),
		Status:      status,
		BudgetCents: req.BudgetCents,
		Currency:    req.Currency,
	}
	if err := h.db.CreateProject(p); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to create project")
		return
	}

	utils.WriteCreatedResponse(w, p)
}

// ListProjects GET /api/workspaces/{workspaceID}/projects
func (h *ProjectsHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, utils.CodeTokenInvalid, "Authentication required")
		return
	}
	workspaceID := chiRoute.URLParam(r, "workspaceID")

	projects, err := h.db.ListProjectsForUser(workspaceID, user.ID)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to list projects")
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"projects": projects})
}

// GetProject GET /api/projects/{projectID}
func (h *ProjectsHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, utils.CodeTokenInvalid, "Authentication required")
		return
	}
	projectID := chiRoute.URLParam(r, "projectID")

	p, err := h.db.GetProjectForUser(projectID, user.ID)
	if err != nil {
		utils.WriteNotFoundResponse(w, "Project not found")
		return
	}
	utils.WriteSuccessResponse(w, p)
}

// UpdateProject PUT /api/projects/{projectID}
// workspace_id不可变：项目不能跨租户移动
func (h *ProjectsHandler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, utils.CodeTokenInvalid, "Authentication required")
		return
	}
	projectID := chiRoute.URLParam(r, "projectID")

	// 先按隔离策略取当前行（非成员404）
	p, err := h.db.GetProjectForUser(projectID, user.ID)
	if err != nil {
		utils.WriteNotFoundResponse(w, "Project not found")
		return
	}

	var req struct {
		Name        *string `json:"name,omitempty"`
		ClientID    *string `json:"client_id,omitempty"`
		Status      *string `json:"status,omitempty"`
		BudgetCents *int64  `json:"budget_cents,omitempty"`
		Currency    *string `json:"currency,omitempty"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			utils.WriteValidationErrorResponse(w, "Name cannot be empty", "")
			return
		}
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.ClientID != nil {
		p.ClientID = req.ClientID
	}
	if req.Status != nil {
		status := models.ProjectStatus(*req.Status)
		switch status {
		case models.ProjectDraft, models.ProjectActive, models.ProjectOnHold, models.ProjectCompleted:
			p.Status = status
		default:
			utils.WriteValidationErrorResponse(w, "Invalid status", "")
			return
		}
	}
	if req.BudgetCents != nil {
		p.BudgetCents = *req.BudgetCents
	}
	if req.Currency != nil {
		p.Currency = *req.Currency
	}

	if err := h.db.UpdateProject(p); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			utils.WriteNotFoundResponse(w, "Project not found")
			return
		}
		utils.WriteInternalServerErrorResponse(w, "Failed to update project")
		return
	}

	utils.WriteSuccessResponse(w, p)
}

// DeleteProject DELETE /api/projects/{projectID}
func (h *ProjectsHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, utils.CodeTokenInvalid, "Authentication required")
		return
	}
	projectID := chiRoute.URLParam(r, "projectID")

	if err := h.db.DeleteProject(projectID, user.ID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			utils.WriteNotFoundResponse(w, "Project not found")
			return
		}
		utils.WriteInternalServerErrorResponse(w, "Failed to delete project")
		return
	}

	utils.WriteSuccessResponse(w, map[string]string{"message": "Project deleted"})
}

// CreateClient POST /api/workspaces/{workspaceID}/clients
func (h *ProjectsHandler) CreateClient(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, utils.CodeTokenInvalid, "Authentication required")
		return
	}
	workspaceID := chiRoute.URLParam(r, "workspaceID")

	if !policy.CanWrite(h.db, user.ID, workspaceID) {
		utils.WriteNotFoundResponse(w, "Workspace not found")
		return
	}

	var req struct {
		Name    string `json:"name"`
		Email   string `json:"email,omitempty"`
		Phone   string `json:"phone,omitempty"`
		Company string `json:"company,omitempty"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		utils.WriteValidationErrorResponse(w, "Name is required", "")
		return
	}

	c := &models.Client{
		WorkspaceID: workspaceID,
		Name:        strings.TrimSpace(req.Name),
		Email:       strings.TrimSpace(req.Email),
		Phone:       strings.TrimSpace(req.Phone),
		Company:     strings.TrimSpace(req.Company),
	}
	if err := h.db.CreateClient(c); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to create client")
		return
	}

	utils.WriteCreatedResponse(w, c)
}

// ListClients GET /api/workspaces/{workspaceID}/clients
func (h *ProjectsHandler) ListClients(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, utils.CodeTokenInvalid, "Authentication required")
		return
	}
	workspaceID := chiRoute.URLParam(r, "workspaceID")

	clients, err := h.db.ListClientsForUser(workspaceID, user.ID)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to list clients")
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"clients": clients})
}
