package models

import (
	"fmt"
	"time"
)

// WorkspacePlan 工作区订阅套餐
type WorkspacePlan string

const (
	PlanFree     WorkspacePlan = "free"
	PlanStudio   WorkspacePlan = "studio"
	PlanPractice WorkspacePlan = "practice"
)

// ParseWorkspacePlan validates a plan string at the boundary.
func ParseWorkspacePlan(s string) (WorkspacePlan, error) {
	switch WorkspacePlan(s) {
	case PlanFree, PlanStudio, PlanPractice:
		return WorkspacePlan(s), nil
	}
	return "", fmt.Errorf("unknown workspace plan: %q", s)
}

// Workspace is the tenant: every business row belongs to exactly one workspace.
type Workspace struct {
	ID        string        `json:"id" db:"id"`
	Name      string        `json:"name" db:"name"`
	Slug      string        `json:"slug" db:"slug"`
	Plan      WorkspacePlan `json:"plan" db:"plan"`
	OwnerID   string        `json:"owner_id" db:"owner_id"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt time.Time     `json:"updated_at" db:"updated_at"`
}

// WorkspaceRole 工作区成员角色（封闭枚举）
type WorkspaceRole string

const (
	RoleOwner  WorkspaceRole = "owner"
	RoleAdmin  WorkspaceRole = "admin"
	RoleMember WorkspaceRole = "member"
)

// ParseWorkspaceRole rejects unknown role strings instead of falling back.
func ParseWorkspaceRole(s string) (WorkspaceRole, error) {
	switch WorkspaceRole(s) {
	case RoleOwner, RoleAdmin, RoleMember:
		return WorkspaceRole(s), nil
	}
	return "", fmt.Errorf("unknown workspace role: %q", s)
}

// Seniority defines the total order owner > admin > member.
// Higher value means more privilege.
func (r WorkspaceRole) Seniority() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleAdmin:
		return 2
	case RoleMember:
		return 1
	}
	return 0
}

// AtLeast reports whether r is equal to or senior than min.
func (r WorkspaceRole) AtLeast(min WorkspaceRole) bool {
	return r.Seniority() >= min.Seniority() && r.Seniority() > 0
}

// Label returns the human-readable label; exhaustive over the enum.
func (r WorkspaceRole) Label() string {
	switch r {
	case RoleOwner:
		return "Owner"
	case RoleAdmin:
		return "Admin"
	case RoleMember:
		return "Member"
	}
	return "Unknown"
}

// WorkspaceMembership relates users to workspaces with a role
type WorkspaceMembership struct {
	ID          string        `json:"id" db:"id"`
	WorkspaceID string        `json:"workspace_id" db:"workspace_id"`
	UserID      string        `json:"user_id" db:"user_id"`
	Role        WorkspaceRole `json:"role" db:"role"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
}
