package database

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"atelier-backend/pkg/logger"
	"atelier-backend/pkg/models"
)

// SupabaseDatabase Supabase数据库实现（PostgREST HTTP客户端）
type SupabaseDatabase struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewSupabaseDatabase 创建Supabase数据库实例
func NewSupabaseDatabase(rawURL, key string) DatabaseInterface {
	// 确保URL格式正确
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "https://" + rawURL
	}

	return &SupabaseDatabase{
		baseURL: rawURL,
		apiKey:  key,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// makeRequest 发送HTTP请求到Supabase
func (db *SupabaseDatabase) makeRequest(method, endpoint string, body interface{}) ([]byte, error) {
	var reqBody io.Reader

	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	reqURL := db.baseURL + "/rest/v1" + endpoint
	req, err := http.NewRequest(method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// 设置请求头
	req.Header.Set("apikey", db.apiKey)
	req.Header.Set("Authorization", "Bearer "+db.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	resp, err := db.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusConflict {
		return nil, ErrAlreadyExists
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

func eq(value string) string {
	return "eq." + url.QueryEscape(value)
}

// ================= Users =================

func (db *SupabaseDatabase) CreateUser(user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	_, err := db.makeRequest("POST", "/users", map[string]interface{}{
		"id":            user.ID,
		"email":         user.Email,
		"password_hash": user.Password,
		"name":          user.Name,
	})
	return err
}

func (db *SupabaseDatabase) getUser(filter string) (*models.User, error) {
	data, err := db.makeRequest("GET", "/users?"+filter+"&select=*", nil)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		ID           string    `json:"id"`
		Email        string    `json:"email"`
		PasswordHash string    `json:"password_hash"`
		Name         string    `json:"name"`
		CreatedAt    time.Time `json:"created_at"`
		UpdatedAt    time.Time `json:"updated_at"`
	}
	if err := json.Unmarshal(data, &rows); err != nil || len(rows) == 0 {
		return nil, fmt.Errorf("user: %w", ErrNotFound)
	}
	r := rows[0]
	return &models.User{
		ID: r.ID, Email: r.Email, Password: r.PasswordHash, Name: r.Name,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}, nil
}

func (db *SupabaseDatabase) GetUserByEmail(email string) (*models.User, error) {
	return db.getUser("email=" + eq(email))
}

func (db *SupabaseDatabase) GetUserByID(id string) (*models.User, error) {
	return db.getUser("id=" + eq(id))
}

func (db *SupabaseDatabase) DeleteUser(id string) error {
	data, err := db.makeRequest("DELETE", "/users?id="+eq(id), nil)
	if err != nil {
		return err
	}
	var rows []json.RawMessage
	if json.Unmarshal(data, &rows) == nil && len(rows) == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return nil
}

// ================= Workspaces =================

func (db *SupabaseDatabase) CreateWorkspace(ws *models.Workspace) error {
	if ws.ID == "" {
		ws.ID = uuid.New().String()
	}
	if ws.Plan == "" {
		ws.Plan = models.PlanFree
	}
	now := time.Now()
	ws.CreatedAt = now
	ws.UpdatedAt = now
	_, err := db.makeRequest("POST", "/workspaces", map[string]interface{}{
		"id":       ws.ID,
		"name":     ws.Name,
		"slug":     ws.Slug,
		"plan":     string(ws.Plan),
		"owner_id": ws.OwnerID,
	})
	if err != nil {
		return err
	}
	// owner成员关系（PostgREST不提供事务；失败时回滚工作区行）
	_, err = db.makeRequest("POST", "/workspace_memberships", map[string]interface{}{
		"id":           uuid.New().String(),
		"workspace_id": ws.ID,
		"user_id":      ws.OwnerID,
		"role":         string(models.RoleOwner),
	})
	if err != nil {
		if _, delErr := db.makeRequest("DELETE", "/workspaces?id="+eq(ws.ID), nil); delErr != nil {
			logger.WithField("workspace_id", ws.ID).Warn("failed to roll back workspace row")
		}
		return err
	}
	return nil
}

func (db *SupabaseDatabase) getWorkspace(filter string) (*models.Workspace, error) {
	data, err := db.makeRequest("GET", "/workspaces?"+filter+"&select=*", nil)
	if err != nil {
		return nil, err
	}
	var rows []models.Workspace
	if err := json.Unmarshal(data, &rows); err != nil || len(rows) == 0 {
		return nil, fmt.Errorf("workspace: %w", ErrNotFound)
	}
	return &rows[0], nil
}

func (db *SupabaseDatabase) GetWorkspace(id string) (*models.Workspace, error) {
	return db.getWorkspace("id=" + eq(id))
}

func (db *SupabaseDatabase) GetWorkspaceBySlug(slug string) (*models.Workspace, error) {
	return db.getWorkspace("slug=" + eq(slug))
}

func (db *SupabaseDatabase) ListUserWorkspaces(userID string) ([]models.Workspace, error) {
	memData, err := db.makeRequest("GET", "/workspace_memberships?user_id="+eq(userID)+"&select=workspace_id", nil)
	if err != nil {
		return nil, err
	}
	var mems []map[string]string
	_ = json.Unmarshal(memData, &mems)

	result := []models.Workspace{}
	for _, m := range mems {
		id, ok := m["workspace_id"]
		if !ok {
			continue
		}
		if ws, err := db.GetWorkspace(id); err == nil {
			result = append(result, *ws)
		}
	}
	return result, nil
}

func (db *SupabaseDatabase) UpdateWorkspacePlan(workspaceID string, plan models.WorkspacePlan) error {
	data, err := db.makeRequest("PATCH", "/workspaces?id="+eq(workspaceID), map[string]interface{}{
		"plan":       string(plan),
		"updated_at": time.Now(),
	})
	if err != nil {
		return err
	}
	var rows []json.RawMessage
	if json.Unmarshal(data, &rows) == nil && len(rows) == 0 {
		return fmt.Errorf("workspace %s: %w", workspaceID, ErrNotFound)
	}
	return nil
}

func (db *SupabaseDatabase) DeleteWorkspace(id string) error {
	data, err := db.makeRequest("DELETE", "/workspaces?id="+eq(id), nil)
	if err != nil {
		return err
	}
	var rows []json.RawMessage
	if json.Unmarshal(data, &rows) == nil && len(rows) == 0 {
		return fmt.Errorf("workspace %s: %w", id, ErrNotFound)
	}
	return nil
}

// ================= Memberships =================

func (db *SupabaseDatabase) GetMembership(workspaceID, userID string) (*models.WorkspaceMembership, error) {
	data, err := db.makeRequest("GET",
		"/workspace_memberships?workspace_id="+eq(workspaceID)+"&user_id="+eq(userID)+"&select=*", nil)
	if err != nil {
		return nil, err
	}
	var rows []models.WorkspaceMembership
	if err := json.Unmarshal(data, &rows); err != nil || len(rows) == 0 {
		return nil, fmt.Errorf("membership: %w", ErrNotFound)
	}
	return &rows[0], nil
}

func (db *SupabaseDatabase) ListWorkspaceMembers(workspaceID string) ([]models.WorkspaceMembership, error) {
	data, err := db.makeRequest("GET",
		"/workspace_memberships?workspace_id="+eq(workspaceID)+"&select=*&order=created_at", nil)
	if err != nil {
		return nil, err
	}
	rows := []models.WorkspaceMembership{}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (db *SupabaseDatabase) AddWorkspaceMember(m *models.WorkspaceMembership) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.CreatedAt = time.Now()
	_, err := db.makeRequest("POST", "/workspace_memberships", map[string]interface{}{
		"id":           m.ID,
		"workspace_id": m.WorkspaceID,
		"user_id":      m.UserID,
		"role":         string(m.Role),
	})
	return err
}

func (db *SupabaseDatabase) countOwners(workspaceID string) (int, error) {
	data, err := db.makeRequest("GET",
		"/workspace_memberships?workspace_id="+eq(workspaceID)+"&role=eq.owner&select=id", nil)
	if err != nil {
		return 0, err
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (db *SupabaseDatabase) UpdateMemberRole(workspaceID, userID string, role models.WorkspaceRole) error {
	current, err := db.GetMembership(workspaceID, userID)
	if err != nil {
		return err
	}
	if current.Role == models.RoleOwner && role != models.RoleOwner {
		owners, err := db.countOwners(workspaceID)
		if err != nil {
			return err
		}
		if owners <= 1 {
			return ErrLastOwner
		}
	}
	_, err = db.makeRequest("PATCH",
		"/workspace_memberships?workspace_id="+eq(workspaceID)+"&user_id="+eq(userID),
		map[string]interface{}{"role": string(role)})
	return err
}

// RemoveWorkspaceMember 删除成员。PostgREST不提供事务，owner计数与删除之间
// 存在竞态窗口；需要严格保证时使用PostgresDatabase。
func (db *SupabaseDatabase) RemoveWorkspaceMember(workspaceID, userID string) error {
	current, err := db.GetMembership(workspaceID, userID)
	if err != nil {
		return err
	}
	if current.Role == models.RoleOwner {
		owners, err := db.countOwners(workspaceID)
		if err != nil {
			return err
		}
		if owners <= 1 {
			return ErrLastOwner
		}
	}
	_, err = db.makeRequest("DELETE",
		"/workspace_memberships?workspace_id="+eq(workspaceID)+"&user_id="+eq(userID), nil)
	return err
}

// ================= Invites =================

func (db *SupabaseDatabase) CreateInvite(inv *models.WorkspaceInvite) error {
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	inv.CreatedAt = time.Now()
	if inv.ExpiresAt.IsZero() {
		inv.ExpiresAt = inv.CreatedAt.Add(models.InviteTTL)
	}
	_, err := db.makeRequest("POST", "/workspace_invites", map[string]interface{}{
		"id":           inv.ID,
		"workspace_id": inv.WorkspaceID,
		"email":        inv.Email,
		"role":         string(inv.Role),
		"inviter_id":   inv.InviterID,
		"token":        inv.Token,
		"expires_at":   inv.ExpiresAt,
	})
	return err
}

func (db *SupabaseDatabase) GetInviteByToken(token string) (*models.WorkspaceInvite, error) {
	data, err := db.makeRequest("GET", "/workspace_invites?token="+eq(token)+"&select=*", nil)
	if err != nil {
		return nil, err
	}
	var rows []models.WorkspaceInvite
	if err := json.Unmarshal(data, &rows); err != nil || len(rows) == 0 {
		return nil, fmt.Errorf("invite: %w", ErrNotFound)
	}
	return &rows[0], nil
}

// AcceptInvite 原子消费邀请：条件PATCH只在accepted_at为空且未过期时命中，
// 返回零行说明token已被消费或已过期。
func (db *SupabaseDatabase) AcceptInvite(token, userID string) (*models.WorkspaceMembership, error) {
	now := time.Now().UTC()
	data, err := db.makeRequest("PATCH",
		"/workspace_invites?token="+eq(token)+
			"&accepted_at=is.null&expires_at=gt."+url.QueryEscape(now.Format(time.RFC3339)),
		map[string]interface{}{"accepted_at": now})
	if err != nil {
		return nil, err
	}
	var rows []models.WorkspaceInvite
	if err := json.Unmarshal(data, &rows); err != nil || len(rows) == 0 {
		// 区分失败原因
		inv, lookupErr := db.GetInviteByToken(token)
		if lookupErr != nil {
			return nil, fmt.Errorf("invite: %w", ErrNotFound)
		}
		if inv.Accepted() {
			return nil, ErrInviteUsed
		}
		return nil, ErrInviteExpired
	}
	inv := rows[0]

	m := &models.WorkspaceMembership{
		ID:          uuid.New().String(),
		WorkspaceID: inv.WorkspaceID,
		UserID:      userID,
		Role:        inv.Role,
	}
	if err := db.AddWorkspaceMember(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (db *SupabaseDatabase) DeleteInvite(id string) error {
	data, err := db.makeRequest("DELETE", "/workspace_invites?id="+eq(id)+"&accepted_at=is.null", nil)
	if err != nil {
		return err
	}
	var rows []json.RawMessage
	if json.Unmarshal(data, &rows) == nil && len(rows) == 0 {
		return fmt.Errorf("invite %s: %w", id, ErrNotFound)
	}
	return nil
}

// ================= Platform admins =================

func (db *SupabaseDatabase) ListPlatformAdmins() ([]models.PlatformAdmin, error) {
	data, err := db.makeRequest("GET", "/platform_admins?select=*&order=granted_at", nil)
	if err != nil {
		return nil, err
	}
	rows := []models.PlatformAdmin{}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	// admin_email从凭据表补齐
	for i := range rows {
		if cred, err := db.GetAdminCredentialByUserID(rows[i].UserID); err == nil {
			rows[i].AdminEmail = cred.AdminEmail
		}
	}
	return rows, nil
}

func (db *SupabaseDatabase) GetPlatformAdminByUserID(userID string) (*models.PlatformAdmin, error) {
	data, err := db.makeRequest("GET", "/platform_admins?user_id="+eq(userID)+"&select=*", nil)
	if err != nil {
		return nil, err
	}
	var rows []models.PlatformAdmin
	if err := json.Unmarshal(data, &rows); err != nil || len(rows) == 0 {
		return nil, fmt.Errorf("platform admin %s: %w", userID, ErrNotFound)
	}
	return &rows[0], nil
}

func (db *SupabaseDatabase) AddPlatformAdmin(a *models.PlatformAdmin) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.GrantedAt = time.Now()
	payload := map[string]interface{}{
		"id":      a.ID,
		"user_id": a.UserID,
		"role":    string(a.Role),
	}
	if a.GrantedBy != "" {
		payload["granted_by"] = a.GrantedBy
	}
	_, err := db.makeRequest("POST", "/platform_admins", payload)
	return err
}

func (db *SupabaseDatabase) UpdatePlatformAdminRole(userID string, role models.PlatformRole) error {
	data, err := db.makeRequest("PATCH", "/platform_admins?user_id="+eq(userID),
		map[string]interface{}{"role": string(role)})
	if err != nil {
		return err
	}
	var rows []json.RawMessage
	if json.Unmarshal(data, &rows) == nil && len(rows) == 0 {
		return fmt.Errorf("platform admin %s: %w", userID, ErrNotFound)
	}
	return nil
}

func (db *SupabaseDatabase) RemovePlatformAdmin(userID string) error {
	data, err := db.makeRequest("DELETE", "/platform_admins?user_id="+eq(userID), nil)
	if err != nil {
		return err
	}
	var rows []json.RawMessage
	if json.Unmarshal(data, &rows) == nil && len(rows) == 0 {
		return fmt.Errorf("platform admin %s: %w", userID, ErrNotFound)
	}
	return nil
}

// ================= Admin credentials =================

func (db *SupabaseDatabase) CreateAdminCredential(c *models.AdminCredential) error {
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	_, err := db.makeRequest("POST", "/admin_credentials", map[string]interface{}{
		"user_id":       c.UserID,
		"admin_email":   c.AdminEmail,
		"password_hash": c.PasswordHash,
		"first_login":   c.FirstLogin,
	})
	return err
}

func (db *SupabaseDatabase) getAdminCredential(filter string) (*models.AdminCredential, error) {
	data, err := db.makeRequest("GET", "/admin_credentials?"+filter+"&select=*", nil)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		UserID       string    `json:"user_id"`
		AdminEmail   string    `json:"admin_email"`
		PasswordHash string    `json:"password_hash"`
		FirstLogin   bool      `json:"first_login"`
		CreatedAt    time.Time `json:"created_at"`
		UpdatedAt    time.Time `json:"updated_at"`
	}
	if err := json.Unmarshal(data, &rows); err != nil || len(rows) == 0 {
		return nil, fmt.Errorf("admin credential: %w", ErrNotFound)
	}
	r := rows[0]
	return &models.AdminCredential{
		UserID: r.UserID, AdminEmail: r.AdminEmail, PasswordHash: r.PasswordHash,
		FirstLogin: r.FirstLogin, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}, nil
}

func (db *SupabaseDatabase) GetAdminCredentialByEmail(adminEmail string) (*models.AdminCredential, error) {
	return db.getAdminCredential("admin_email=" + eq(adminEmail))
}

func (db *SupabaseDatabase) GetAdminCredentialByUserID(userID string) (*models.AdminCredential, error) {
	return db.getAdminCredential("user_id=" + eq(userID))
}

func (db *SupabaseDatabase) UpdateAdminPassword(userID, passwordHash string, firstLogin bool) error {
	data, err := db.makeRequest("PATCH", "/admin_credentials?user_id="+eq(userID),
		map[string]interface{}{
			"password_hash": passwordHash,
			"first_login":   firstLogin,
			"updated_at":    time.Now(),
		})
	if err != nil {
		return err
	}
	var rows []json.RawMessage
	if json.Unmarshal(data, &rows) == nil && len(rows) == 0 {
		return fmt.Errorf("admin credential %s: %w", userID, ErrNotFound)
	}
	return nil
}

// ================= Password resets =================

func (db *SupabaseDatabase) CreatePasswordReset(pr *models.AdminPasswordReset) error {
	pr.CreatedAt = time.Now()
	_, err := db.makeRequest("POST", "/admin_password_resets", map[string]interface{}{
		"token":      pr.Token,
		"user_id":    pr.UserID,
		"expires_at": pr.ExpiresAt,
	})
	return err
}

func (db *SupabaseDatabase) ConsumePasswordReset(token string) (*models.AdminPasswordReset, error) {
	now := time.Now().UTC()
	data, err := db.makeRequest("PATCH",
		"/admin_password_resets?token="+eq(token)+
			"&used_at=is.null&expires_at=gt."+url.QueryEscape(now.Format(time.RFC3339)),
		map[string]interface{}{"used_at": now})
	if err != nil {
		return nil, err
	}
	var rows []models.AdminPasswordReset
	if err := json.Unmarshal(data, &rows); err != nil || len(rows) == 0 {
		return nil, fmt.Errorf("password reset: %w", ErrNotFound)
	}
	return &rows[0], nil
}

// ================= Tenant-scoped resources =================

// userCanAccess 访问策略的HTTP形式：工作区成员或平台管理员。
// 与scripts/init_db.sql中的RLS策略一致。
func (db *SupabaseDatabase) userCanAccess(workspaceID, userID string) bool {
	if _, err := db.GetMembership(workspaceID, userID); err == nil {
		return true
	}
	if _, err := db.GetPlatformAdminByUserID(userID); err == nil {
		return true
	}
	return false
}

func (db *SupabaseDatabase) CreateProject(p *models.Project) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = models.ProjectDraft
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	payload := map[string]interface{}{
		"id":           p.ID,
		"workspace_id": p.WorkspaceID,
		"name":         p.Name,
		"status":       string(p.Status),
		"budget_cents": p.BudgetCents,
	}
	if p.ClientID != nil {
		payload["client_id"] = *p.ClientID
	}
	if p.Currency != "" {
		payload["currency"] = p.Currency
	}
	if p.StartsAt != nil {
		payload["starts_at"] = p.StartsAt
	}
	if p.EndsAt != nil {
		payload["ends_at"] = p.EndsAt
	}
	_, err := db.makeRequest("POST", "/projects", payload)
	return err
}

func (db *SupabaseDatabase) GetProjectForUser(projectID, userID string) (*models.Project, error) {
	data, err := db.makeRequest("GET", "/projects?id="+eq(projectID)+"&select=*", nil)
	if err != nil {
		return nil, err
	}
	var rows []models.Project
	if err := json.Unmarshal(data, &rows); err != nil || len(rows) == 0 {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	p := rows[0]
	// 跨租户命中与不存在不可区分
	if !db.userCanAccess(p.WorkspaceID, userID) {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	return &p, nil
}

func (db *SupabaseDatabase) ListProjectsForUser(workspaceID, userID string) ([]models.Project, error) {
	if !db.userCanAccess(workspaceID, userID) {
		return []models.Project{}, nil
	}
	data, err := db.makeRequest("GET",
		"/projects?workspace_id="+eq(workspaceID)+"&select=*&order=created_at", nil)
	if err != nil {
		return nil, err
	}
	rows := []models.Project{}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (db *SupabaseDatabase) UpdateProject(p *models.Project) error {
	payload := map[string]interface{}{
		"name":         p.Name,
		"status":       string(p.Status),
		"budget_cents": p.BudgetCents,
		"updated_at":   time.Now(),
	}
	if p.ClientID != nil {
		payload["client_id"] = *p.ClientID
	}
	if p.Currency != "" {
		payload["currency"] = p.Currency
	}
	if p.StartsAt != nil {
		payload["starts_at"] = p.StartsAt
	}
	if p.EndsAt != nil {
		payload["ends_at"] = p.EndsAt
	}
	data, err := db.makeRequest("PATCH", "/projects?id="+eq(p.ID), payload)
	if err != nil {
		return err
	}
	var rows []json.RawMessage
	if json.Unmarshal(data, &rows) == nil && len(rows) == 0 {
		return fmt.Errorf("project %s: %w", p.ID, ErrNotFound)
	}
	return nil
}

func (db *SupabaseDatabase) DeleteProject(projectID, userID string) error {
	if _, err := db.GetProjectForUser(projectID, userID); err != nil {
		return err
	}
	_, err := db.makeRequest("DELETE", "/projects?id="+eq(projectID), nil)
	return err
}

func (db *SupabaseDatabase) CreateClient(c *models.Client) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	payload := map[string]interface{}{
		"id":           c.ID,
		"workspace_id": c.WorkspaceID,
		"name":         c.Name,
	}
	if c.Email != "" {
		payload["email"] = c.Email
	}
	if c.Phone != "" {
		payload["phone"] = c.Phone
	}
	if c.Company != "" {
		payload["company"] = c.Company
	}
	_, err := db.makeRequest("POST", "/clients", payload)
	return err
}

func (db *SupabaseDatabase) ListClientsForUser(workspaceID, userID string) ([]models.Client, error) {
	if !db.userCanAccess(workspaceID, userID) {
		return []models.Client{}, nil
	}
	data, err := db.makeRequest("GET",
		"/clients?workspace_id="+eq(workspaceID)+"&select=*&order=created_at", nil)
	if err != nil {
		return nil, err
	}
	rows := []models.Client{}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// HealthCheck 健康检查
func (db *SupabaseDatabase) HealthCheck() error {
	_, err := db.makeRequest("GET", "/users?select=id&limit=1", nil)
	return err
}

// Close 关闭（HTTP客户端无需清理）
func (db *SupabaseDatabase) Close() error {
	return nil
}

var _ DatabaseInterface = (*SupabaseDatabase)(nil)
