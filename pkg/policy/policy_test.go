package policy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atelier-backend/pkg/database"
	"atelier-backend/pkg/models"
	"atelier-backend/pkg/policy"
)

func seedWorkspace(t *testing.T, db database.DatabaseInterface, owner string) *models.Workspace {
	t.Helper()
	require.NoError(t, db.CreateUser(&models.User{ID: owner, Email: owner + "@example.com", Password: "x"}))
	ws := &models.Workspace{Name: "Studio " + owner, Slug: "studio-" + owner, OwnerID: owner}
	require.NoError(t, db.CreateWorkspace(ws))
	return ws
}

func TestMembershipPredicates(t *testing.T) {
	db := database.NewMemoryDatabase()
	ws := seedWorkspace(t, db, "alice")

	require.NoError(t, db.CreateUser(&models.User{ID: "bob", Email: "bob@example.com", Password: "x"}))
	require.NoError(t, db.AddWorkspaceMember(&models.WorkspaceMembership{
		WorkspaceID: ws.ID, UserID: "bob", Role: models.RoleMember,
	}))

	assert.True(t, policy.IsWorkspaceMember(db, "alice", ws.ID))
	assert.True(t, policy.IsWorkspaceMember(db, "bob", ws.ID))
	assert.False(t, policy.IsWorkspaceMember(db, "mallory", ws.ID))

	// 空ID一律失败（fail closed）
	assert.False(t, policy.IsWorkspaceMember(db, "", ws.ID))
	assert.False(t, policy.IsWorkspaceMember(db, "alice", ""))
}

func TestRoleSeniority(t *testing.T) {
	db := database.NewMemoryDatabase()
	ws := seedWorkspace(t, db, "alice")

	require.NoError(t, db.CreateUser(&models.User{ID: "bob", Email: "bob@example.com", Password: "x"}))
	require.NoError(t, db.AddWorkspaceMember(&models.WorkspaceMembership{
		WorkspaceID: ws.ID, UserID: "bob", Role: models.RoleMember,
	}))

	// owner满足所有角色要求
	assert.True(t, policy.HasWorkspaceRole(db, "alice", ws.ID, models.RoleMember))
	assert.True(t, policy.HasWorkspaceRole(db, "alice", ws.ID, models.RoleAdmin))
	assert.True(t, policy.HasWorkspaceRole(db, "alice", ws.ID, models.RoleOwner))

	// member只满足member
	assert.True(t, policy.HasWorkspaceRole(db, "bob", ws.ID, models.RoleMember))
	assert.False(t, policy.HasWorkspaceRole(db, "bob", ws.ID, models.RoleAdmin))
}

func TestPlatformAdminBypassesMembership(t *testing.T) {
	db := database.NewMemoryDatabase()
	ws := seedWorkspace(t, db, "alice")

	require.NoError(t, db.CreateUser(&models.User{ID: "support", Email: "s@example.com", Password: "x"}))
	require.NoError(t, db.AddPlatformAdmin(&models.PlatformAdmin{
		UserID: "support", Role: models.PlatformSupport,
	}))

	// 平台管理员不是成员，但可以读写任何工作区
	assert.False(t, policy.IsWorkspaceMember(db, "support", ws.ID))
	assert.True(t, policy.IsPlatformAdmin(db, "support"))
	assert.True(t, policy.CanRead(db, "support", ws.ID))
	assert.True(t, policy.CanWrite(db, "support", ws.ID))
	assert.True(t, policy.CanMutateDestructively(db, "support", ws.ID))
}

func TestRevokedAdminLosesAccessImmediately(t *testing.T) {
	db := database.NewMemoryDatabase()
	ws := seedWorkspace(t, db, "alice")

	require.NoError(t, db.CreateUser(&models.User{ID: "temp", Email: "t@example.com", Password: "x"}))
	require.NoError(t, db.AddPlatformAdmin(&models.PlatformAdmin{
		UserID: "temp", Role: models.PlatformSuperAdmin,
	}))
	require.True(t, policy.CanRead(db, "temp", ws.ID))

	require.NoError(t, db.RemovePlatformAdmin("temp"))

	// 谓词每次都实时查询，撤销立即生效
	assert.False(t, policy.IsPlatformAdmin(db, "temp"))
	assert.False(t, policy.CanRead(db, "temp", ws.ID))
}

func TestDestructiveMutationsRequireAdminRole(t *testing.T) {
	db := database.NewMemoryDatabase()
	ws := seedWorkspace(t, db, "alice")

	for id, role := range map[string]models.WorkspaceRole{
		"wadmin":  models.RoleAdmin,
		"wmember": models.RoleMember,
	} {
		require.NoError(t, db.CreateUser(&models.User{ID: id, Email: id + "@example.com", Password: "x"}))
		require.NoError(t, db.AddWorkspaceMember(&models.WorkspaceMembership{
			WorkspaceID: ws.ID, UserID: id, Role: role,
		}))
	}

	assert.True(t, policy.CanMutateDestructively(db, "alice", ws.ID))
	assert.True(t, policy.CanMutateDestructively(db, "wadmin", ws.ID))
	assert.False(t, policy.CanMutateDestructively(db, "wmember", ws.ID))

	// 普通写任何成员都可以
	assert.True(t, policy.CanWrite(db, "wmember", ws.ID))
}
