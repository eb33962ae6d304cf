package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atelier-backend/pkg/models"
)

func newWorkspaceFixture(t *testing.T) (*MemoryDatabase, *models.Workspace) {
	t.Helper()
	db := NewMemoryDatabase()
	require.NoError(t, db.CreateUser(&models.User{ID: "owner-1", Email: "owner@example.com", Password: "x"}))
	ws := &models.Workspace{Name: "Atelier Nord", Slug: "atelier-nord", OwnerID: "owner-1"}
	require.NoError(t, db.CreateWorkspace(ws))
	return db, ws
}

func addUserAsMember(t *testing.T, db *MemoryDatabase, ws *models.Workspace, userID string, role models.WorkspaceRole) {
	t.Helper()
	require.NoError(t, db.CreateUser(&models.User{ID: userID, Email: userID + "@example.com", Password: "x"}))
	require.NoError(t, db.AddWorkspaceMember(&models.WorkspaceMembership{
		WorkspaceID: ws.ID, UserID: userID, Role: role,
	}))
}

func TestCreateWorkspaceInsertsOwnerMembership(t *testing.T) {
	db, ws := newWorkspaceFixture(t)

	m, err := db.GetMembership(ws.ID, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleOwner, m.Role)

	list, err := db.ListUserWorkspaces("owner-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ws.ID, list[0].ID)
}

func TestDuplicateMembershipRejected(t *testing.T) {
	db, ws := newWorkspaceFixture(t)
	addUserAsMember(t, db, ws, "bob", models.RoleMember)

	err := db.AddWorkspaceMember(&models.WorkspaceMembership{
		WorkspaceID: ws.ID, UserID: "bob", Role: models.RoleAdmin,
	})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestLastOwnerCannotBeRemovedOrDemoted(t *testing.T) {
	db, ws := newWorkspaceFixture(t)
	addUserAsMember(t, db, ws, "bob", models.RoleMember)

	// 唯一的owner既不能移除也不能降级
	assert.ErrorIs(t, db.RemoveWorkspaceMember(ws.ID, "owner-1"), ErrLastOwner)
	assert.ErrorIs(t, db.UpdateMemberRole(ws.ID, "owner-1", models.RoleMember), ErrLastOwner)

	// 提升第二个owner后即可移除原owner
	require.NoError(t, db.UpdateMemberRole(ws.ID, "bob", models.RoleOwner))
	assert.NoError(t, db.RemoveWorkspaceMember(ws.ID, "owner-1"))

	// bob现在是最后的owner
	assert.ErrorIs(t, db.RemoveWorkspaceMember(ws.ID, "bob"), ErrLastOwner)
}

func TestInviteSingleUse(t *testing.T) {
	db, ws := newWorkspaceFixture(t)
	require.NoError(t, db.CreateUser(&models.User{ID: "carol", Email: "carol@example.com", Password: "x"}))
	require.NoError(t, db.CreateUser(&models.User{ID: "dave", Email: "dave@example.com", Password: "x"}))

	inv := &models.WorkspaceInvite{
		WorkspaceID: ws.ID, Email: "carol@example.com",
		Role: models.RoleMember, InviterID: "owner-1", Token: "tok-1",
	}
	require.NoError(t, db.CreateInvite(inv))
	// TTL默认7天
	assert.WithinDuration(t, time.Now().Add(models.InviteTTL), inv.ExpiresAt, time.Minute)

	m, err := db.AcceptInvite("tok-1", "carol")
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, m.Role)

	// token只能被消费一次，换人也不行
	_, err = db.AcceptInvite("tok-1", "dave")
	assert.ErrorIs(t, err, ErrInviteUsed)
}

func TestInviteExpired(t *testing.T) {
	db, ws := newWorkspaceFixture(t)
	require.NoError(t, db.CreateUser(&models.User{ID: "carol", Email: "carol@example.com", Password: "x"}))

	inv := &models.WorkspaceInvite{
		WorkspaceID: ws.ID, Email: "carol@example.com",
		Role: models.RoleMember, InviterID: "owner-1", Token: "tok-old",
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, db.CreateInvite(inv))

	_, err := db.AcceptInvite("tok-old", "carol")
	assert.ErrorIs(t, err, ErrInviteExpired)
}

func TestInviteExistingMember(t *testing.T) {
	db, ws := newWorkspaceFixture(t)
	addUserAsMember(t, db, ws, "bob", models.RoleMember)

	inv := &models.WorkspaceInvite{
		WorkspaceID: ws.ID, Email: "bob@example.com",
		Role: models.RoleAdmin, InviterID: "owner-1", Token: "tok-2",
	}
	require.NoError(t, db.CreateInvite(inv))

	_, err := db.AcceptInvite("tok-2", "bob")
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestUnknownInviteToken(t *testing.T) {
	db, _ := newWorkspaceFixture(t)
	_, err := db.AcceptInvite("no-such-token", "owner-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTenantIsolationOnProjects(t *testing.T) {
	db, ws := newWorkspaceFixture(t)

	// 第二个租户
	require.NoError(t, db.CreateUser(&models.User{ID: "owner-2", Email: "o2@example.com", Password: "x"}))
	ws2 := &models.Workspace{Name: "Studio Sud", Slug: "studio-sud", OwnerID: "owner-2"}
	require.NoError(t, db.CreateWorkspace(ws2))

	p := &models.Project{WorkspaceID: ws.ID, Name: "Loft renovation"}
	require.NoError(t, db.CreateProject(p))

	// 成员可读
	got, err := db.GetProjectForUser(p.ID, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "Loft renovation", got.Name)

	// 跨租户按id读取与不存在不可区分
	_, err = db.GetProjectForUser(p.ID, "owner-2")
	assert.ErrorIs(t, err, ErrNotFound)

	// 跨租户列表为空而不是报错
	list, err := db.ListProjectsForUser(ws.ID, "owner-2")
	require.NoError(t, err)
	assert.Empty(t, list)

	// 跨租户删除同样404
	assert.ErrorIs(t, db.DeleteProject(p.ID, "owner-2"), ErrNotFound)
}

func TestDeleteProjectAfterMembershipRevoked(t *testing.T) {
	db, ws := newWorkspaceFixture(t)
	addUserAsMember(t, db, ws, "bob", models.RoleMember)

	p := &models.Project{WorkspaceID: ws.ID, Name: "Pavilion study"}
	require.NoError(t, db.CreateProject(p))
	require.NoError(t, db.RemoveWorkspaceMember(ws.ID, "bob"))

	// 成员资格撤销后删除与不存在不可区分，行保留
	assert.ErrorIs(t, db.DeleteProject(p.ID, "bob"), ErrNotFound)
	_, err := db.GetProjectForUser(p.ID, "owner-1")
	assert.NoError(t, err)

	// 仍在籍的成员可以删除
	assert.NoError(t, db.DeleteProject(p.ID, "owner-1"))
}

func TestPlatformAdminReadsAcrossTenants(t *testing.T) {
	db, ws := newWorkspaceFixture(t)
	p := &models.Project{WorkspaceID: ws.ID, Name: "Gallery fit-out"}
	require.NoError(t, db.CreateProject(p))

	require.NoError(t, db.CreateUser(&models.User{ID: "support", Email: "s@example.com", Password: "x"}))
	require.NoError(t, db.AddPlatformAdmin(&models.PlatformAdmin{UserID: "support", Role: models.PlatformSupport}))

	got, err := db.GetProjectForUser(p.ID, "support")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	list, err := db.ListProjectsForUser(ws.ID, "support")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestDoublePlatformAdminGrant(t *testing.T) {
	db := NewMemoryDatabase()
	require.NoError(t, db.CreateUser(&models.User{ID: "u1", Email: "u1@example.com", Password: "x"}))

	require.NoError(t, db.AddPlatformAdmin(&models.PlatformAdmin{UserID: "u1", Role: models.PlatformAnalyst}))
	err := db.AddPlatformAdmin(&models.PlatformAdmin{UserID: "u1", Role: models.PlatformSupport})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	// 已有授权的角色不受失败的重复授权影响
	a, err := db.GetPlatformAdminByUserID("u1")
	require.NoError(t, err)
	assert.Equal(t, models.PlatformAnalyst, a.Role)
}

func TestPasswordResetSingleUse(t *testing.T) {
	db := NewMemoryDatabase()
	require.NoError(t, db.CreatePasswordReset(&models.AdminPasswordReset{
		Token: "reset-1", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour),
	}))

	pr, err := db.ConsumePasswordReset("reset-1")
	require.NoError(t, err)
	assert.Equal(t, "u1", pr.UserID)

	_, err = db.ConsumePasswordReset("reset-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPasswordResetExpired(t *testing.T) {
	db := NewMemoryDatabase()
	require.NoError(t, db.CreatePasswordReset(&models.AdminPasswordReset{
		Token: "reset-2", UserID: "u1", ExpiresAt: time.Now().Add(-time.Minute),
	}))

	_, err := db.ConsumePasswordReset("reset-2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteWorkspaceCascades(t *testing.T) {
	db, ws := newWorkspaceFixture(t)
	require.NoError(t, db.CreateProject(&models.Project{WorkspaceID: ws.ID, Name: "P1"}))
	require.NoError(t, db.CreateClient(&models.Client{WorkspaceID: ws.ID, Name: "C1"}))

	require.NoError(t, db.DeleteWorkspace(ws.ID))

	_, err := db.GetWorkspace(ws.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = db.GetMembership(ws.ID, "owner-1")
	assert.ErrorIs(t, err, ErrNotFound)

	projects, err := db.ListProjectsForUser(ws.ID, "owner-1")
	require.NoError(t, err)
	assert.Empty(t, projects)
}
