// Package policy is the row-isolation engine: every tenant-scoped read or
// write is restricted to members of the row's workspace, or to holders of a
// live platform-admin grant. Store implementations evaluate these predicates
// on each access; scripts/init_db.sql carries the equivalent SQL RLS policies
// for deployments where Postgres enforces them natively.
package policy

import (
	"atelier-backend/pkg/models"
)

// Store is the narrow read surface the predicates need. Satisfied by
// database.DatabaseInterface.
type Store interface {
	GetMembership(workspaceID, userID string) (*models.WorkspaceMembership, error)
	GetPlatformAdminByUserID(userID string) (*models.PlatformAdmin, error)
}

// IsWorkspaceMember reports whether a membership row exists for (user, workspace).
// Lookup failures count as "not a member": the predicate fails closed.
func IsWorkspaceMember(s Store, userID, workspaceID string) bool {
	if userID == "" || workspaceID == "" {
		return false
	}
	m, err := s.GetMembership(workspaceID, userID)
	return err == nil && m != nil
}

// HasWorkspaceRole reports whether the user holds a role equal to or senior
// than min in the workspace (owner > admin > member).
func HasWorkspaceRole(s Store, userID, workspaceID string, min models.WorkspaceRole) bool {
	if userID == "" || workspaceID == "" {
		return false
	}
	m, err := s.GetMembership(workspaceID, userID)
	if err != nil || m == nil {
		return false
	}
	return m.Role.AtLeast(min)
}

// IsPlatformAdmin reports whether the user holds a live cross-tenant grant.
func IsPlatformAdmin(s Store, userID string) bool {
	if userID == "" {
		return false
	}
	a, err := s.GetPlatformAdminByUserID(userID)
	return err == nil && a != nil
}

// CanRead is the access policy for every tenant-scoped table:
// workspace member OR platform admin.
func CanRead(s Store, userID, workspaceID string) bool {
	return IsWorkspaceMember(s, userID, workspaceID) || IsPlatformAdmin(s, userID)
}

// CanWrite covers ordinary mutations (create/update of business rows):
// any member may write, platform admins may too.
func CanWrite(s Store, userID, workspaceID string) bool {
	return IsWorkspaceMember(s, userID, workspaceID) || IsPlatformAdmin(s, userID)
}

// CanMutateDestructively covers destructive operations (delete workspace,
// remove member, change plan): role >= admin, or a platform admin.
func CanMutateDestructively(s Store, userID, workspaceID string) bool {
	return HasWorkspaceRole(s, userID, workspaceID, models.RoleAdmin) || IsPlatformAdmin(s, userID)
}
