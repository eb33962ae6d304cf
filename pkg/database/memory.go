package database

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"atelier-backend/pkg/models"
	"atelier-backend/pkg/policy"
)

// MemoryDatabase 内存数据库实现（本地开发与单元测试用）。
// 与postgres实现保持相同的隔离与原子性语义。
type MemoryDatabase struct {
	mu sync.RWMutex

	users       map[string]*models.User                // by id
	workspaces  map[string]*models.Workspace           // by id
	memberships map[string]*models.WorkspaceMembership // by id
	invites     map[string]*models.WorkspaceInvite     // by id
	admins      map[string]*models.PlatformAdmin       // by user_id
	credentials map[string]*models.AdminCredential     // by user_id
	resets      map[string]*models.AdminPasswordReset  // by token
	projects    map[string]*models.Project             // by id
	clients     map[string]*models.Client              // by id
}

// NewMemoryDatabase 创建内存数据库实例
func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{
		users:       make(map[string]*models.User),
		workspaces:  make(map[string]*models.Workspace),
		memberships: make(map[string]*models.WorkspaceMembership),
		invites:     make(map[string]*models.WorkspaceInvite),
		admins:      make(map[string]*models.PlatformAdmin),
		credentials: make(map[string]*models.AdminCredential),
		resets:      make(map[string]*models.AdminPasswordReset),
		projects:    make(map[string]*models.Project),
		clients:     make(map[string]*models.Client),
	}
}

// ================= Users =================

// CreateUser 创建用户
func (db *MemoryDatabase) CreateUser(user *models.User) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.Email == user.Email {
			return fmt.Errorf("user %s: %w", user.Email, ErrAlreadyExists)
		}
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()
	cp := *user
	db.users[user.ID] = &cp
	return nil
}

// GetUserByEmail 根据邮箱获取用户
func (db *MemoryDatabase) GetUserByEmail(email string) (*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, u := range db.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
}

// GetUserByID 根据ID获取用户
func (db *MemoryDatabase) GetUserByID(id string) (*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	u, ok := db.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

// DeleteUser 删除用户及其成员关系
func (db *MemoryDatabase) DeleteUser(id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.users[id]; !ok {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	delete(db.users, id)
	for mid, m := range db.memberships {
		if m.UserID == id {
			delete(db.memberships, mid)
		}
	}
	return nil
}

// ================= Workspaces =================

// CreateWorkspace 创建工作区并原子插入owner成员关系
func (db *MemoryDatabase) CreateWorkspace(ws *models.Workspace) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, w := range db.workspaces {
		if w.Slug == ws.Slug {
			return fmt.Errorf("workspace slug %s: %w", ws.Slug, ErrAlreadyExists)
		}
	}
	if ws.ID == "" {
		ws.ID = uuid.New().String()
	}
	if ws.Plan == "" {
		ws.Plan = models.PlanFree
	}
	ws.CreatedAt = time.Now()
	ws.UpdatedAt = time.Now()
	cp := *ws
	db.workspaces[ws.ID] = &cp

	m := &models.WorkspaceMembership{
		ID:          uuid.New().String(),
		WorkspaceID: ws.ID,
		UserID:      ws.OwnerID,
		Role:        models.RoleOwner,
		CreatedAt:   time.Now(),
	}
	db.memberships[m.ID] = m
	return nil
}

// GetWorkspace 获取工作区
func (db *MemoryDatabase) GetWorkspace(id string) (*models.Workspace, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	w, ok := db.workspaces[id]
	if !ok {
		return nil, fmt.Errorf("workspace %s: %w", id, ErrNotFound)
	}
	cp := *w
	return &cp, nil
}

// GetWorkspaceBySlug 根据slug获取工作区
func (db *MemoryDatabase) GetWorkspaceBySlug(slug string) (*models.Workspace, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, w := range db.workspaces {
		if w.Slug == slug {
			cp := *w
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("workspace %s: %w", slug, ErrNotFound)
}

// ListUserWorkspaces 列出用户所属的全部工作区。
// 无任何成员关系时返回空列表，不报错。
func (db *MemoryDatabase) ListUserWorkspaces(userID string) ([]models.Workspace, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	result := []models.Workspace{}
	for _, m := range db.memberships {
		if m.UserID != userID {
			continue
		}
		if w, ok := db.workspaces[m.WorkspaceID]; ok {
			result = append(result, *w)
		}
	}
	return result, nil
}

// UpdateWorkspacePlan 修改订阅套餐
func (db *MemoryDatabase) UpdateWorkspacePlan(workspaceID string, plan models.WorkspacePlan) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	w, ok := db.workspaces[workspaceID]
	if !ok {
		return fmt.Errorf("workspace %s: %w", workspaceID, ErrNotFound)
	}
	w.Plan = plan
	w.UpdatedAt = time.Now()
	return nil
}

// DeleteWorkspace 删除工作区，级联删除全部租户数据
func (db *MemoryDatabase) DeleteWorkspace(id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.workspaces[id]; !ok {
		return fmt.Errorf("workspace %s: %w", id, ErrNotFound)
	}
	delete(db.workspaces, id)
	for mid, m := range db.memberships {
		if m.WorkspaceID == id {
			delete(db.memberships, mid)
		}
	}
	for iid, inv := range db.invites {
		if inv.WorkspaceID == id {
			delete(db.invites, iid)
		}
	}
	for pid, p := range db.projects {
		if p.WorkspaceID == id {
			delete(db.projects, pid)
		}
	}
	for cid, c := range db.clients {
		if c.WorkspaceID == id {
			delete(db.clients, cid)
		}
	}
	return nil
}

// ================= Memberships =================

// GetMembership 获取成员关系
func (db *MemoryDatabase) GetMembership(workspaceID, userID string) (*models.WorkspaceMembership, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.getMembershipLocked(workspaceID, userID)
}

func (db *MemoryDatabase) getMembershipLocked(workspaceID, userID string) (*models.WorkspaceMembership, error) {
	for _, m := range db.memberships {
		if m.WorkspaceID == workspaceID && m.UserID == userID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("membership: %w", ErrNotFound)
}

// ListWorkspaceMembers 列出工作区成员
func (db *MemoryDatabase) ListWorkspaceMembers(workspaceID string) ([]models.WorkspaceMembership, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	result := []models.WorkspaceMembership{}
	for _, m := range db.memberships {
		if m.WorkspaceID == workspaceID {
			result = append(result, *m)
		}
	}
	return result, nil
}

// AddWorkspaceMember 添加成员
func (db *MemoryDatabase) AddWorkspaceMember(m *models.WorkspaceMembership) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if existing, _ := db.getMembershipLocked(m.WorkspaceID, m.UserID); existing != nil {
		return fmt.Errorf("membership: %w", ErrAlreadyExists)
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.CreatedAt = time.Now()
	cp := *m
	db.memberships[m.ID] = &cp
	return nil
}

// UpdateMemberRole 修改成员角色；不允许将最后一个owner降级
func (db *MemoryDatabase) UpdateMemberRole(workspaceID, userID string, role models.WorkspaceRole) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	var target *models.WorkspaceMembership
	owners := 0
	for _, m := range db.memberships {
		if m.WorkspaceID != workspaceID {
			continue
		}
		if m.Role == models.RoleOwner {
			owners++
		}
		if m.UserID == userID {
			target = m
		}
	}
	if target == nil {
		return fmt.Errorf("membership: %w", ErrNotFound)
	}
	if target.Role == models.RoleOwner && role != models.RoleOwner && owners <= 1 {
		return ErrLastOwner
	}
	target.Role = role
	return nil
}

// RemoveWorkspaceMember 删除成员；工作区必须始终保留至少一个owner，
// 检查与删除在同一把锁内完成（对应SQL实现中的单事务）。
func (db *MemoryDatabase) RemoveWorkspaceMember(workspaceID, userID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	var targetID string
	var targetRole models.WorkspaceRole
	owners := 0
	for id, m := range db.memberships {
		if m.WorkspaceID != workspaceID {
			continue
		}
		if m.Role == models.RoleOwner {
			owners++
		}
		if m.UserID == userID {
			targetID = id
			targetRole = m.Role
		}
	}
	if targetID == "" {
		return fmt.Errorf("membership: %w", ErrNotFound)
	}
	if targetRole == models.RoleOwner && owners <= 1 {
		return ErrLastOwner
	}
	delete(db.memberships, targetID)
	return nil
}

// ================= Invites =================

// CreateInvite 创建邀请
func (db *MemoryDatabase) CreateInvite(inv *models.WorkspaceInvite) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	inv.CreatedAt = time.Now()
	if inv.ExpiresAt.IsZero() {
		inv.ExpiresAt = inv.CreatedAt.Add(models.InviteTTL)
	}
	cp := *inv
	db.invites[inv.ID] = &cp
	return nil
}

// GetInviteByToken 根据token获取邀请
func (db *MemoryDatabase) GetInviteByToken(token string) (*models.WorkspaceInvite, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, inv := range db.invites {
		if inv.Token == token {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("invite: %w", ErrNotFound)
}

// AcceptInvite 原子消费邀请：标记accepted_at（仅一次）并插入成员关系
func (db *MemoryDatabase) AcceptInvite(token, userID string) (*models.WorkspaceMembership, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var inv *models.WorkspaceInvite
	for _, i := range db.invites {
		if i.Token == token {
			inv = i
			break
		}
	}
	if inv == nil {
		return nil, fmt.Errorf("invite: %w", ErrNotFound)
	}
	if inv.Accepted() {
		return nil, ErrInviteUsed
	}
	if inv.Expired(time.Now()) {
		return nil, ErrInviteExpired
	}
	if existing, _ := db.getMembershipLocked(inv.WorkspaceID, userID); existing != nil {
		return nil, fmt.Errorf("membership: %w", ErrAlreadyExists)
	}

	now := time.Now()
	inv.AcceptedAt = &now
	m := &models.WorkspaceMembership{
		ID:          uuid.New().String(),
		WorkspaceID: inv.WorkspaceID,
		UserID:      userID,
		Role:        inv.Role,
		CreatedAt:   now,
	}
	db.memberships[m.ID] = m
	cp := *m
	return &cp, nil
}

// DeleteInvite 删除未接受的邀请
func (db *MemoryDatabase) DeleteInvite(id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.invites[id]; !ok {
		return fmt.Errorf("invite %s: %w", id, ErrNotFound)
	}
	delete(db.invites, id)
	return nil
}

// ================= Platform admins =================

// ListPlatformAdmins 列出全部平台管理员（带admin_email）
func (db *MemoryDatabase) ListPlatformAdmins() ([]models.PlatformAdmin, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	result := []models.PlatformAdmin{}
	for _, a := range db.admins {
		cp := *a
		if c, ok := db.credentials[a.UserID]; ok {
			cp.AdminEmail = c.AdminEmail
		}
		result = append(result, cp)
	}
	return result, nil
}

// GetPlatformAdminByUserID 获取平台管理员授权
func (db *MemoryDatabase) GetPlatformAdminByUserID(userID string) (*models.PlatformAdmin, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	a, ok := db.admins[userID]
	if !ok {
		return nil, fmt.Errorf("platform admin %s: %w", userID, ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

// AddPlatformAdmin 新增平台管理员；同一user_id重复授权返回ErrAlreadyExists
func (db *MemoryDatabase) AddPlatformAdmin(a *models.PlatformAdmin) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.admins[a.UserID]; ok {
		return fmt.Errorf("platform admin %s: %w", a.UserID, ErrAlreadyExists)
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.GrantedAt = time.Now()
	cp := *a
	db.admins[a.UserID] = &cp
	return nil
}

// UpdatePlatformAdminRole 修改角色（与现角色相同时为幂等成功）
func (db *MemoryDatabase) UpdatePlatformAdminRole(userID string, role models.PlatformRole) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	a, ok := db.admins[userID]
	if !ok {
		return fmt.Errorf("platform admin %s: %w", userID, ErrNotFound)
	}
	a.Role = role
	return nil
}

// RemovePlatformAdmin 撤销授权
func (db *MemoryDatabase) RemovePlatformAdmin(userID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.admins[userID]; !ok {
		return fmt.Errorf("platform admin %s: %w", userID, ErrNotFound)
	}
	delete(db.admins, userID)
	return nil
}

// ================= Admin credentials =================

// CreateAdminCredential 创建管理员凭据
func (db *MemoryDatabase) CreateAdminCredential(c *models.AdminCredential) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.credentials[c.UserID]; ok {
		return fmt.Errorf("admin credential %s: %w", c.UserID, ErrAlreadyExists)
	}
	c.CreatedAt = time.Now()
	c.UpdatedAt = time.Now()
	cp := *c
	db.credentials[c.UserID] = &cp
	return nil
}

// GetAdminCredentialByEmail 根据admin_email获取凭据（大小写敏感精确匹配）
func (db *MemoryDatabase) GetAdminCredentialByEmail(adminEmail string) (*models.AdminCredential, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, c := range db.credentials {
		if c.AdminEmail == adminEmail {
			cp := *c
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("admin credential: %w", ErrNotFound)
}

// GetAdminCredentialByUserID 根据user_id获取凭据
func (db *MemoryDatabase) GetAdminCredentialByUserID(userID string) (*models.AdminCredential, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	c, ok := db.credentials[userID]
	if !ok {
		return nil, fmt.Errorf("admin credential %s: %w", userID, ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

// UpdateAdminPassword 轮换密码哈希并设置first_login标记。
// 写入即对后续登录生效（read-after-write）；已签发的令牌不受影响。
func (db *MemoryDatabase) UpdateAdminPassword(userID, passwordHash string, firstLogin bool) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	c, ok := db.credentials[userID]
	if !ok {
		return fmt.Errorf("admin credential %s: %w", userID, ErrNotFound)
	}
	c.PasswordHash = passwordHash
	c.FirstLogin = firstLogin
	c.UpdatedAt = time.Now()
	return nil
}

// ================= Password resets =================

// CreatePasswordReset 创建重置token
func (db *MemoryDatabase) CreatePasswordReset(pr *models.AdminPasswordReset) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	pr.CreatedAt = time.Now()
	cp := *pr
	db.resets[pr.Token] = &cp
	return nil
}

// ConsumePasswordReset 一次性消费重置token
func (db *MemoryDatabase) ConsumePasswordReset(token string) (*models.AdminPasswordReset, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	pr, ok := db.resets[token]
	if !ok {
		return nil, fmt.Errorf("password reset: %w", ErrNotFound)
	}
	if pr.UsedAt != nil {
		return nil, fmt.Errorf("password reset: %w", ErrNotFound)
	}
	if time.Now().After(pr.ExpiresAt) {
		return nil, fmt.Errorf("password reset: %w", ErrNotFound)
	}
	now := time.Now()
	pr.UsedAt = &now
	cp := *pr
	return &cp, nil
}

// ================= Tenant-scoped resources =================

// CreateProject 创建项目（写入方必须是工作区成员）
func (db *MemoryDatabase) CreateProject(p *models.Project) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.workspaces[p.WorkspaceID]; !ok {
		return fmt.Errorf("workspace %s: %w", p.WorkspaceID, ErrNotFound)
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = models.ProjectDraft
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = time.Now()
	cp := *p
	db.projects[p.ID] = &cp
	return nil
}

// GetProjectForUser 按id读取项目，经过行隔离策略：
// 调用者不是项目所属工作区的成员且非平台管理员时，返回ErrNotFound而非数据。
func (db *MemoryDatabase) GetProjectForUser(projectID, userID string) (*models.Project, error) {
	db.mu.RLock()
	p, ok := db.projects[projectID]
	db.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	if !policy.CanRead(db, userID, p.WorkspaceID) {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

// ListProjectsForUser 列出工作区项目；无权限时返回空列表（不报错）
func (db *MemoryDatabase) ListProjectsForUser(workspaceID, userID string) ([]models.Project, error) {
	if !policy.CanRead(db, userID, workspaceID) {
		return []models.Project{}, nil
	}
	db.mu.RLock()
	defer db.mu.RUnlock()
	result := []models.Project{}
	for _, p := range db.projects {
		if p.WorkspaceID == workspaceID {
			result = append(result, *p)
		}
	}
	return result, nil
}

// UpdateProject 更新项目
func (db *MemoryDatabase) UpdateProject(p *models.Project) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	existing, ok := db.projects[p.ID]
	if !ok {
		return fmt.Errorf("project %s: %w", p.ID, ErrNotFound)
	}
	p.WorkspaceID = existing.WorkspaceID // workspace_id is immutable
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now()
	cp := *p
	db.projects[p.ID] = &cp
	return nil
}

// DeleteProject 删除项目（经过行隔离策略）。
// 校验与删除在同一把写锁内完成：成员资格在两步之间被撤销时不会漏删。
func (db *MemoryDatabase) DeleteProject(projectID, userID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	p, ok := db.projects[projectID]
	if !ok {
		return fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	if !db.canAccessLocked(p.WorkspaceID, userID) {
		return fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	delete(db.projects, projectID)
	return nil
}

// canAccessLocked 与policy.CanRead等价的持锁版本（RWMutex不可重入，
// 写锁内不能再经Store接口取读锁）。
func (db *MemoryDatabase) canAccessLocked(workspaceID, userID string) bool {
	if userID == "" || workspaceID == "" {
		return false
	}
	if _, err := db.getMembershipLocked(workspaceID, userID); err == nil {
		return true
	}
	_, ok := db.admins[userID]
	return ok
}

// CreateClient 创建客户
func (db *MemoryDatabase) CreateClient(c *models.Client) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.workspaces[c.WorkspaceID]; !ok {
		return fmt.Errorf("workspace %s: %w", c.WorkspaceID, ErrNotFound)
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.CreatedAt = time.Now()
	c.UpdatedAt = time.Now()
	cp := *c
	db.clients[c.ID] = &cp
	return nil
}

// ListClientsForUser 列出工作区客户；无权限时返回空列表
func (db *MemoryDatabase) ListClientsForUser(workspaceID, userID string) ([]models.Client, error) {
	if !policy.CanRead(db, userID, workspaceID) {
		return []models.Client{}, nil
	}
	db.mu.RLock()
	defer db.mu.RUnlock()
	result := []models.Client{}
	for _, c := range db.clients {
		if c.WorkspaceID == workspaceID {
			result = append(result, *c)
		}
	}
	return result, nil
}

// HealthCheck 健康检查
func (db *MemoryDatabase) HealthCheck() error {
	return nil
}

// Close 关闭连接
func (db *MemoryDatabase) Close() error {
	return nil
}

var _ DatabaseInterface = (*MemoryDatabase)(nil)
