package database

import (
	"errors"

	"atelier-backend/pkg/models"
)

// 存储层哨兵错误：处理器据此映射到错误分类码
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrLastOwner     = errors.New("workspace must keep at least one owner")
	ErrInviteUsed    = errors.New("invite already accepted")
	ErrInviteExpired = errors.New("invite expired")
)

// DatabaseInterface 定义数据库访问接口。
// 所有以ForUser结尾的方法在存储层内应用租户隔离：调用者不是该行所属
// 工作区的成员（且不是平台管理员）时，返回空结果或ErrNotFound，绝不返回
// 其他租户的数据。
type DatabaseInterface interface {
	// 用户管理
	CreateUser(user *models.User) error
	GetUserByEmail(email string) (*models.User, error)
	GetUserByID(id string) (*models.User, error)
	DeleteUser(id string) error

	// Workspaces & memberships
	// CreateWorkspace atomically inserts the workspace and its owner membership.
	CreateWorkspace(ws *models.Workspace) error
	GetWorkspace(id string) (*models.Workspace, error)
	GetWorkspaceBySlug(slug string) (*models.Workspace, error)
	ListUserWorkspaces(userID string) ([]models.Workspace, error)
	UpdateWorkspacePlan(workspaceID string, plan models.WorkspacePlan) error
	DeleteWorkspace(id string) error

	GetMembership(workspaceID, userID string) (*models.WorkspaceMembership, error)
	ListWorkspaceMembers(workspaceID string) ([]models.WorkspaceMembership, error)
	AddWorkspaceMember(m *models.WorkspaceMembership) error
	UpdateMemberRole(workspaceID, userID string, role models.WorkspaceRole) error
	// RemoveWorkspaceMember deletes a membership; removing the last owner
	// fails with ErrLastOwner (check-and-delete is atomic).
	RemoveWorkspaceMember(workspaceID, userID string) error

	// Invites
	CreateInvite(inv *models.WorkspaceInvite) error
	GetInviteByToken(token string) (*models.WorkspaceInvite, error)
	// AcceptInvite consumes the token exactly once: marks accepted_at and
	// inserts the membership in a single atomic operation.
	AcceptInvite(token, userID string) (*models.WorkspaceMembership, error)
	DeleteInvite(id string) error

	// Platform admins（跨租户授权，独立于工作区成员关系）
	ListPlatformAdmins() ([]models.PlatformAdmin, error)
	GetPlatformAdminByUserID(userID string) (*models.PlatformAdmin, error)
	AddPlatformAdmin(a *models.PlatformAdmin) error
	UpdatePlatformAdminRole(userID string, role models.PlatformRole) error
	RemovePlatformAdmin(userID string) error

	// Admin credentials（独立密钥集，仅通过user_id与用户关联）
	CreateAdminCredential(c *models.AdminCredential) error
	GetAdminCredentialByEmail(adminEmail string) (*models.AdminCredential, error)
	GetAdminCredentialByUserID(userID string) (*models.AdminCredential, error)
	UpdateAdminPassword(userID, passwordHash string, firstLogin bool) error

	// Admin password resets（1小时有效、一次性）
	CreatePasswordReset(pr *models.AdminPasswordReset) error
	// ConsumePasswordReset marks the token used exactly once; expired or
	// already-used tokens fail.
	ConsumePasswordReset(token string) (*models.AdminPasswordReset, error)

	// 租户内业务数据（读写均经过隔离策略）
	CreateProject(p *models.Project) error
	GetProjectForUser(projectID, userID string) (*models.Project, error)
	ListProjectsForUser(workspaceID, userID string) ([]models.Project, error)
	UpdateProject(p *models.Project) error
	DeleteProject(projectID, userID string) error
	CreateClient(c *models.Client) error
	ListClientsForUser(workspaceID, userID string) ([]models.Client, error)

	// 健康检查
	HealthCheck() error

	// 关闭连接
	Close() error
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	PostgresDSN string
	SupabaseURL string
	SupabaseKey string
	Debug       bool
}

// NewDatabase 根据配置选择数据库实现：优先直连PostgreSQL，
// 其次Supabase REST，两者都未配置时退回内存实现（仅用于本地开发）。
func NewDatabase(config DatabaseConfig) DatabaseInterface {
	if config.PostgresDSN != "" {
		return NewPostgresDatabase(config.PostgresDSN)
	}
	if config.SupabaseURL != "" && config.SupabaseKey != "" {
		return NewSupabaseDatabase(config.SupabaseURL, config.SupabaseKey)
	}
	return NewMemoryDatabase()
}
