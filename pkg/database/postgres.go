package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"atelier-backend/pkg/logger"
	"atelier-backend/pkg/models"
)

// PostgresDatabase PostgreSQL数据库实现
type PostgresDatabase struct {
	db *sql.DB
}

// NewPostgresDatabase 创建PostgreSQL数据库实例
func NewPostgresDatabase(dsn string) DatabaseInterface {
	// 尝试多种连接策略来解决serverless环境的连接问题
	// Sanitize DSN to avoid stray CR/LF from env values
	dsn = strings.TrimSpace(dsn)
	strategies := []string{
		addConnectionParams(dsn, "prefer_simple_protocol=true"),
		addConnectionParams(dsn, "prefer_simple_protocol=true&connect_timeout=10"),
		addConnectionParams(dsn, "sslmode=require&prefer_simple_protocol=true"),
		dsn, // 最后尝试原始DSN
	}

	var db *sql.DB
	var err error

	for i, strategy := range strategies {
		logger.WithField("strategy", i+1).Debug("trying postgres connection strategy")

		db, err = sql.Open("postgres", strategy)
		if err != nil {
			continue
		}

		// 设置连接池参数，适合无服务器环境
		db.SetMaxOpenConns(5)                  // 限制最大连接数
		db.SetMaxIdleConns(2)                  // 限制空闲连接数
		db.SetConnMaxLifetime(5 * time.Minute) // 连接最大生命周期

		// 测试连接
		if err = db.Ping(); err != nil {
			db.Close()
			continue
		}

		logger.WithField("strategy", i+1).Info("postgres connection established")
		return &PostgresDatabase{db: db}
	}

	// 所有策略都失败了
	panic(fmt.Sprintf("Failed to connect to PostgreSQL with all strategies. Last error: %v", err))
}

// addConnectionParams 添加连接参数到DSN
func addConnectionParams(dsn, params string) string {
	if params == "" {
		return dsn
	}

	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}

	return dsn + separator + params
}

// isUniqueViolation 判断是否为唯一约束冲突
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// ================= Users =================

// CreateUser 创建用户
func (db *PostgresDatabase) CreateUser(user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.db.Exec(`
		INSERT INTO users (id, email, password_hash, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Email, user.Password, user.Name, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", user.Email, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByEmail 根据邮箱获取用户
func (db *PostgresDatabase) GetUserByEmail(email string) (*models.User, error) {
	user := &models.User{}
	err := db.db.QueryRow(`
		SELECT id, email, password_hash, COALESCE(name, ''), created_at, updated_at
		FROM users WHERE email = $1`, email).
		Scan(&user.ID, &user.Email, &user.Password, &user.Name, &user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUserByID 根据ID获取用户
func (db *PostgresDatabase) GetUserByID(id string) (*models.User, error) {
	user := &models.User{}
	err := db.db.QueryRow(`
		SELECT id, email, password_hash, COALESCE(name, ''), created_at, updated_at
		FROM users WHERE id = $1`, id).
		Scan(&user.ID, &user.Email, &user.Password, &user.Name, &user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// DeleteUser 删除用户（成员关系级联删除）
func (db *PostgresDatabase) DeleteUser(id string) error {
	res, err := db.db.Exec(`DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return nil
}

// ================= Workspaces =================

// CreateWorkspace 创建工作区并在同一事务中插入owner成员关系
func (db *PostgresDatabase) CreateWorkspace(ws *models.Workspace) error {
	if ws.ID == "" {
		ws.ID = uuid.New().String()
	}
	if ws.Plan == "" {
		ws.Plan = models.PlanFree
	}
	now := time.Now()
	ws.CreatedAt = now
	ws.UpdatedAt = now

	tx, err := db.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO workspaces (id, name, slug, plan, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ws.ID, ws.Name, ws.Slug, ws.Plan, ws.OwnerID, ws.CreatedAt, ws.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("workspace slug %s: %w", ws.Slug, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create workspace: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO workspace_memberships (id, workspace_id, user_id, role, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), ws.ID, ws.OwnerID, models.RoleOwner, now)
	if err != nil {
		return fmt.Errorf("failed to create owner membership: %w", err)
	}

	return tx.Commit()
}

// GetWorkspace 获取工作区
func (db *PostgresDatabase) GetWorkspace(id string) (*models.Workspace, error) {
	ws := &models.Workspace{}
	err := db.db.QueryRow(`
		SELECT id, name, slug, plan, owner_id, created_at, updated_at
		FROM workspaces WHERE id = $1`, id).
		Scan(&ws.ID, &ws.Name, &ws.Slug, &ws.Plan, &ws.OwnerID, &ws.CreatedAt, &ws.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("workspace %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}
	return ws, nil
}

// GetWorkspaceBySlug 根据slug获取工作区
func (db *PostgresDatabase) GetWorkspaceBySlug(slug string) (*models.Workspace, error) {
	ws := &models.Workspace{}
	err := db.db.QueryRow(`
		SELECT id, name, slug, plan, owner_id, created_at, updated_at
		FROM workspaces WHERE slug = $1`, slug).
		Scan(&ws.ID, &ws.Name, &ws.Slug, &ws.Plan, &ws.OwnerID, &ws.CreatedAt, &ws.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("workspace %s: %w", slug, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}
	return ws, nil
}

// ListUserWorkspaces 列出用户所属的全部工作区（无成员关系时返回空列表）
func (db *PostgresDatabase) ListUserWorkspaces(userID string) ([]models.Workspace, error) {
	rows, err := db.db.Query(`
		SELECT w.id, w.name, w.slug, w.plan, w.owner_id, w.created_at, w.updated_at
		FROM workspaces w
		JOIN workspace_memberships m ON m.workspace_id = w.id
		WHERE m.user_id = $1
		ORDER BY w.created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer rows.Close()

	result := []models.Workspace{}
	for rows.Next() {
		var ws models.Workspace
		if err := rows.Scan(&ws.ID, &ws.Name, &ws.Slug, &ws.Plan, &ws.OwnerID, &ws.CreatedAt, &ws.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan workspace: %w", err)
		}
		result = append(result, ws)
	}
	return result, rows.Err()
}

// UpdateWorkspacePlan 修改订阅套餐
func (db *PostgresDatabase) UpdateWorkspacePlan(workspaceID string, plan models.WorkspacePlan) error {
	res, err := db.db.Exec(`
		UPDATE workspaces SET plan = $1, updated_at = NOW() WHERE id = $2`,
		plan, workspaceID)
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("workspace %s: %w", workspaceID, ErrNotFound)
	}
	return nil
}

// DeleteWorkspace 删除工作区（租户数据由外键级联删除）
func (db *PostgresDatabase) DeleteWorkspace(id string) error {
	res, err := db.db.Exec(`DELETE FROM workspaces WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete workspace: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("workspace %s: %w", id, ErrNotFound)
	}
	return nil
}

// ================= Memberships =================

// GetMembership 获取成员关系
func (db *PostgresDatabase) GetMembership(workspaceID, userID string) (*models.WorkspaceMembership, error) {
	m := &models.WorkspaceMembership{}
	err := db.db.QueryRow(`
		SELECT id, workspace_id, user_id, role, created_at
		FROM workspace_memberships WHERE workspace_id = $1 AND user_id = $2`,
		workspaceID, userID).
		Scan(&m.ID, &m.WorkspaceID, &m.UserID, &m.Role, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("membership: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return m, nil
}

// ListWorkspaceMembers 列出工作区成员
func (db *PostgresDatabase) ListWorkspaceMembers(workspaceID string) ([]models.WorkspaceMembership, error) {
	rows, err := db.db.Query(`
		SELECT id, workspace_id, user_id, role, created_at
		FROM workspace_memberships WHERE workspace_id = $1
		ORDER BY created_at`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	result := []models.WorkspaceMembership{}
	for rows.Next() {
		var m models.WorkspaceMembership
		if err := rows.Scan(&m.ID, &m.WorkspaceID, &m.UserID, &m.Role, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// AddWorkspaceMember 添加成员
func (db *PostgresDatabase) AddWorkspaceMember(m *models.WorkspaceMembership) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.CreatedAt = time.Now()
	_, err := db.db.Exec(`
		INSERT INTO workspace_memberships (id, workspace_id, user_id, role, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.WorkspaceID, m.UserID, m.Role, m.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("membership: %w", ErrAlreadyExists)
		}
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

// UpdateMemberRole 修改成员角色；不允许将最后一个owner降级
func (db *PostgresDatabase) UpdateMemberRole(workspaceID, userID string, role models.WorkspaceRole) error {
	tx, err := db.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	var current models.WorkspaceRole
	err = tx.QueryRow(`
		SELECT role FROM workspace_memberships
		WHERE workspace_id = $1 AND user_id = $2 FOR UPDATE`,
		workspaceID, userID).Scan(&current)
	if err == sql.ErrNoRows {
		return fmt.Errorf("membership: %w", ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to load membership: %w", err)
	}

	if current == models.RoleOwner && role != models.RoleOwner {
		var owners int
		if err := tx.QueryRow(`
			SELECT COUNT(*) FROM workspace_memberships
			WHERE workspace_id = $1 AND role = $2`,
			workspaceID, models.RoleOwner).Scan(&owners); err != nil {
			return fmt.Errorf("failed to count owners: %w", err)
		}
		if owners <= 1 {
			return ErrLastOwner
		}
	}

	if _, err := tx.Exec(`
		UPDATE workspace_memberships SET role = $1
		WHERE workspace_id = $2 AND user_id = $3`,
		role, workspaceID, userID); err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}

	return tx.Commit()
}

// RemoveWorkspaceMember 删除成员。检查“至少保留一个owner”与删除在同一
// 事务中完成，避免并发请求把最后一个owner删掉。
func (db *PostgresDatabase) RemoveWorkspaceMember(workspaceID, userID string) error {
	tx, err := db.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	var role models.WorkspaceRole
	err = tx.QueryRow(`
		SELECT role FROM workspace_memberships
		WHERE workspace_id = $1 AND user_id = $2 FOR UPDATE`,
		workspaceID, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return fmt.Errorf("membership: %w", ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to load membership: %w", err)
	}

	if role == models.RoleOwner {
		var owners int
		if err := tx.QueryRow(`
			SELECT COUNT(*) FROM workspace_memberships
			WHERE workspace_id = $1 AND role = $2`,
			workspaceID, models.RoleOwner).Scan(&owners); err != nil {
			return fmt.Errorf("failed to count owners: %w", err)
		}
		if owners <= 1 {
			return ErrLastOwner
		}
	}

	if _, err := tx.Exec(`
		DELETE FROM workspace_memberships
		WHERE workspace_id = $1 AND user_id = $2`,
		workspaceID, userID); err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	return tx.Commit()
}

// ================= Invites =================

// CreateInvite 创建邀请
func (db *PostgresDatabase) CreateInvite(inv *models.WorkspaceInvite) error {
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	inv.CreatedAt = time.Now()
	if inv.ExpiresAt.IsZero() {
		inv.ExpiresAt = inv.CreatedAt.Add(models.InviteTTL)
	}
	_, err := db.db.Exec(`
		INSERT INTO workspace_invites (id, workspace_id, email, role, inviter_id, token, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		inv.ID, inv.WorkspaceID, inv.Email, inv.Role, inv.InviterID, inv.Token, inv.ExpiresAt, inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create invite: %w", err)
	}
	return nil
}

// GetInviteByToken 根据token获取邀请
func (db *PostgresDatabase) GetInviteByToken(token string) (*models.WorkspaceInvite, error) {
	inv := &models.WorkspaceInvite{}
	err := db.db.QueryRow(`
		SELECT id, workspace_id, email, role, inviter_id, token, expires_at, accepted_at, created_at
		FROM workspace_invites WHERE token = $1`, token).
		Scan(&inv.ID, &inv.WorkspaceID, &inv.Email, &inv.Role, &inv.InviterID, &inv.Token,
			&inv.ExpiresAt, &inv.AcceptedAt, &inv.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("invite: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invite: %w", err)
	}
	return inv, nil
}

// AcceptInvite 原子消费邀请：仅当accepted_at为空且未过期时标记接受，
// 并在同一事务内插入成员关系。条件UPDATE保证token只能被消费一次。
func (db *PostgresDatabase) AcceptInvite(token, userID string) (*models.WorkspaceMembership, error) {
	tx, err := db.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	var workspaceID string
	var role models.WorkspaceRole
	err = tx.QueryRow(`
		UPDATE workspace_invites SET accepted_at = NOW()
		WHERE token = $1 AND accepted_at IS NULL AND expires_at > NOW()
		RETURNING workspace_id, role`, token).
		Scan(&workspaceID, &role)
	if err == sql.ErrNoRows {
		// 区分失败原因：已消费 / 已过期 / 不存在
		inv, lookupErr := db.GetInviteByToken(token)
		if lookupErr != nil {
			return nil, fmt.Errorf("invite: %w", ErrNotFound)
		}
		if inv.Accepted() {
			return nil, ErrInviteUsed
		}
		return nil, ErrInviteExpired
	}
	if err != nil {
		return nil, fmt.Errorf("failed to accept invite: %w", err)
	}

	m := &models.WorkspaceMembership{
		ID:          uuid.New().String(),
		WorkspaceID: workspaceID,
		UserID:      userID,
		Role:        role,
		CreatedAt:   time.Now(),
	}
	if _, err := tx.Exec(`
		INSERT INTO workspace_memberships (id, workspace_id, user_id, role, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.WorkspaceID, m.UserID, m.Role, m.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("membership: %w", ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to insert membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return m, nil
}

// DeleteInvite 删除未接受的邀请
func (db *PostgresDatabase) DeleteInvite(id string) error {
	res, err := db.db.Exec(`DELETE FROM workspace_invites WHERE id = $1 AND accepted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to delete invite: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("invite %s: %w", id, ErrNotFound)
	}
	return nil
}

// ================= Platform admins =================

// ListPlatformAdmins 列出全部平台管理员（左联凭据表取admin_email）
func (db *PostgresDatabase) ListPlatformAdmins() ([]models.PlatformAdmin, error) {
	rows, err := db.db.Query(`
		SELECT a.id, a.user_id, a.role, COALESCE(a.granted_by, ''), a.granted_at,
		       COALESCE(c.admin_email, '')
		FROM platform_admins a
		LEFT JOIN admin_credentials c ON c.user_id = a.user_id
		ORDER BY a.granted_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list platform admins: %w", err)
	}
	defer rows.Close()

	result := []models.PlatformAdmin{}
	for rows.Next() {
		var a models.PlatformAdmin
		if err := rows.Scan(&a.ID, &a.UserID, &a.Role, &a.GrantedBy, &a.GrantedAt, &a.AdminEmail); err != nil {
			return nil, fmt.Errorf("failed to scan platform admin: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// GetPlatformAdminByUserID 获取平台管理员授权
func (db *PostgresDatabase) GetPlatformAdminByUserID(userID string) (*models.PlatformAdmin, error) {
	a := &models.PlatformAdmin{}
	err := db.db.QueryRow(`
		SELECT id, user_id, role, COALESCE(granted_by, ''), granted_at
		FROM platform_admins WHERE user_id = $1`, userID).
		Scan(&a.ID, &a.UserID, &a.Role, &a.GrantedBy, &a.GrantedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("platform admin %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get platform admin: %w", err)
	}
	return a, nil
}

// AddPlatformAdmin 新增平台管理员；user_id唯一约束保证不会重复授权
func (db *PostgresDatabase) AddPlatformAdmin(a *models.PlatformAdmin) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.GrantedAt = time.Now()
	_, err := db.db.Exec(`
		INSERT INTO platform_admins (id, user_id, role, granted_by, granted_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)`,
		a.ID, a.UserID, a.Role, a.GrantedBy, a.GrantedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("platform admin %s: %w", a.UserID, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to add platform admin: %w", err)
	}
	return nil
}

// UpdatePlatformAdminRole 修改角色（与现角色相同时为幂等成功）
func (db *PostgresDatabase) UpdatePlatformAdminRole(userID string, role models.PlatformRole) error {
	res, err := db.db.Exec(`
		UPDATE platform_admins SET role = $1 WHERE user_id = $2`,
		role, userID)
	if err != nil {
		return fmt.Errorf("failed to update platform admin role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("platform admin %s: %w", userID, ErrNotFound)
	}
	return nil
}

// RemovePlatformAdmin 撤销授权
func (db *PostgresDatabase) RemovePlatformAdmin(userID string) error {
	res, err := db.db.Exec(`DELETE FROM platform_admins WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to remove platform admin: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("platform admin %s: %w", userID, ErrNotFound)
	}
	return nil
}

// ================= Admin credentials =================

// CreateAdminCredential 创建管理员凭据
func (db *PostgresDatabase) CreateAdminCredential(c *models.AdminCredential) error {
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	_, err := db.db.Exec(`
		INSERT INTO admin_credentials (user_id, admin_email, password_hash, first_login, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.UserID, c.AdminEmail, c.PasswordHash, c.FirstLogin, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("admin credential %s: %w", c.UserID, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create admin credential: %w", err)
	}
	return nil
}

// GetAdminCredentialByEmail 根据admin_email获取凭据（大小写敏感精确匹配）
func (db *PostgresDatabase) GetAdminCredentialByEmail(adminEmail string) (*models.AdminCredential, error) {
	c := &models.AdminCredential{}
	err := db.db.QueryRow(`
		SELECT user_id, admin_email, password_hash, first_login, created_at, updated_at
		FROM admin_credentials WHERE admin_email = $1`, adminEmail).
		Scan(&c.UserID, &c.AdminEmail, &c.PasswordHash, &c.FirstLogin, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("admin credential: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get admin credential: %w", err)
	}
	return c, nil
}

// GetAdminCredentialByUserID 根据user_id获取凭据
func (db *PostgresDatabase) GetAdminCredentialByUserID(userID string) (*models.AdminCredential, error) {
	c := &models.AdminCredential{}
	err := db.db.QueryRow(`
		SELECT user_id, admin_email, password_hash, first_login, created_at, updated_at
		FROM admin_credentials WHERE user_id = $1`, userID).
		Scan(&c.UserID, &c.AdminEmail, &c.PasswordHash, &c.FirstLogin, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("admin credential %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get admin credential: %w", err)
	}
	return c, nil
}

// UpdateAdminPassword 轮换密码哈希并设置first_login标记
func (db *PostgresDatabase) UpdateAdminPassword(userID, passwordHash string, firstLogin bool) error {
	res, err := db.db.Exec(`
		UPDATE admin_credentials SET password_hash = $1, first_login = $2, updated_at = NOW()
		WHERE user_id = $3`,
		passwordHash, firstLogin, userID)
	if err != nil {
		return fmt.Errorf("failed to update admin password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("admin credential %s: %w", userID, ErrNotFound)
	}
	return nil
}

// ================= Password resets =================

// CreatePasswordReset 创建重置token
func (db *PostgresDatabase) CreatePasswordReset(pr *models.AdminPasswordReset) error {
	pr.CreatedAt = time.Now()
	_, err := db.db.Exec(`
		INSERT INTO admin_password_resets (token, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)`,
		pr.Token, pr.UserID, pr.ExpiresAt, pr.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create password reset: %w", err)
	}
	return nil
}

// ConsumePasswordReset 条件UPDATE保证token只能被消费一次且必须未过期
func (db *PostgresDatabase) ConsumePasswordReset(token string) (*models.AdminPasswordReset, error) {
	pr := &models.AdminPasswordReset{Token: token}
	err := db.db.QueryRow(`
		UPDATE admin_password_resets SET used_at = NOW()
		WHERE token = $1 AND used_at IS NULL AND expires_at > NOW()
		RETURNING user_id, expires_at, used_at, created_at`, token).
		Scan(&pr.UserID, &pr.ExpiresAt, &pr.UsedAt, &pr.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("password reset: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume password reset: %w", err)
	}
	return pr, nil
}

// ================= Tenant-scoped resources =================

// tenantScope 是行隔离策略的SQL形式，与scripts/init_db.sql中的RLS策略一致：
// 调用者必须是该行所属工作区的成员，或持有平台管理员授权。
const tenantScope = `(
	EXISTS (SELECT 1 FROM workspace_memberships m
	        WHERE m.workspace_id = %s AND m.user_id = $%d)
	OR EXISTS (SELECT 1 FROM platform_admins a WHERE a.user_id = $%d)
)`

// CreateProject 创建项目
func (db *PostgresDatabase) CreateProject(p *models.Project) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = models.ProjectDraft
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	_, err := db.db.Exec(`
		INSERT INTO projects (id, workspace_id, client_id, name, status, budget_cents, currency, starts_at, ends_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10, $11)`,
		p.ID, p.WorkspaceID, p.ClientID, p.Name, p.Status, p.BudgetCents, p.Currency,
		p.StartsAt, p.EndsAt, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// GetProjectForUser 按id读取项目。隔离条件直接写进WHERE：
// 跨租户的id命中返回零行（ErrNotFound），绝不返回他人数据。
func (db *PostgresDatabase) GetProjectForUser(projectID, userID string) (*models.Project, error) {
	p := &models.Project{}
	scope := fmt.Sprintf(tenantScope, "p.workspace_id", 2, 2)
	err := db.db.QueryRow(`
		SELECT p.id, p.workspace_id, p.client_id, p.name, p.status, p.budget_cents,
		       COALESCE(p.currency, ''), p.starts_at, p.ends_at, p.created_at, p.updated_at
		FROM projects p
		WHERE p.id = $1 AND `+scope, projectID, userID).
		Scan(&p.ID, &p.WorkspaceID, &p.ClientID, &p.Name, &p.Status, &p.BudgetCents,
			&p.Currency, &p.StartsAt, &p.EndsAt, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// ListProjectsForUser 列出工作区项目；调用者无权限时返回空列表
func (db *PostgresDatabase) ListProjectsForUser(workspaceID, userID string) ([]models.Project, error) {
	scope := fmt.Sprintf(tenantScope, "p.workspace_id", 2, 2)
	rows, err := db.db.Query(`
		SELECT p.id, p.workspace_id, p.client_id, p.name, p.status, p.budget_cents,
		       COALESCE(p.currency, ''), p.starts_at, p.ends_at, p.created_at, p.updated_at
		FROM projects p
		WHERE p.workspace_id = $1 AND `+scope+`
		ORDER BY p.created_at`, workspaceID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	result := []models.Project{}
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.WorkspaceID, &p.ClientID, &p.Name, &p.Status, &p.BudgetCents,
			&p.Currency, &p.StartsAt, &p.EndsAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// UpdateProject 更新项目（workspace_id不可变）
func (db *PostgresDatabase) UpdateProject(p *models.Project) error {
	res, err := db.db.Exec(`
		UPDATE projects SET client_id = $1, name = $2, status = $3, budget_cents = $4,
		       currency = NULLIF($5, ''), starts_at = $6, ends_at = $7, updated_at = NOW()
		WHERE id = $8`,
		p.ClientID, p.Name, p.Status, p.BudgetCents, p.Currency, p.StartsAt, p.EndsAt, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("project %s: %w", p.ID, ErrNotFound)
	}
	return nil
}

// DeleteProject 删除项目（带隔离条件）
func (db *PostgresDatabase) DeleteProject(projectID, userID string) error {
	scope := fmt.Sprintf(tenantScope, "projects.workspace_id", 2, 2)
	res, err := db.db.Exec(`
		DELETE FROM projects WHERE id = $1 AND `+scope, projectID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	return nil
}

// CreateClient 创建客户
func (db *PostgresDatabase) CreateClient(c *models.Client) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	_, err := db.db.Exec(`
		INSERT INTO clients (id, workspace_id, name, email, phone, company, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, $8)`,
		c.ID, c.WorkspaceID, c.Name, c.Email, c.Phone, c.Company, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

// ListClientsForUser 列出工作区客户；调用者无权限时返回空列表
func (db *PostgresDatabase) ListClientsForUser(workspaceID, userID string) ([]models.Client, error) {
	scope := fmt.Sprintf(tenantScope, "c.workspace_id", 2, 2)
	rows, err := db.db.Query(`
		SELECT c.id, c.workspace_id, c.name, COALESCE(c.email, ''), COALESCE(c.phone, ''),
		       COALESCE(c.company, ''), c.created_at, c.updated_at
		FROM clients c
		WHERE c.workspace_id = $1 AND `+scope+`
		ORDER BY c.created_at`, workspaceID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	result := []models.Client{}
	for rows.Next() {
		var c models.Client
		if err := rows.Scan(&c.ID, &c.WorkspaceID, &c.Name, &c.Email, &c.Phone, &c.Company,
			&c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// HealthCheck 健康检查
func (db *PostgresDatabase) HealthCheck() error {
	return db.db.Ping()
}

// Close 关闭连接
func (db *PostgresDatabase) Close() error {
	return db.db.Close()
}

var _ DatabaseInterface = (*PostgresDatabase)(nil)
