package models

import "time"

// InviteTTL 邀请有效期：创建后7天过期
const InviteTTL = 7 * 24 * time.Hour

// WorkspaceInvite is a single-use invitation to join a workspace.
// AcceptedAt is set exactly once by the atomic accept flow.
type WorkspaceInvite struct {
	ID          string        `json:"id" db:"id"`
	WorkspaceID string        `json:"workspace_id" db:"workspace_id"`
	Email       string        `json:"email" db:"email"`
	Role        WorkspaceRole `json:"role" db:"role"`
	InviterID   string        `json:"inviter_id" db:"inviter_id"`
	Token       string        `json:"token" db:"token"`
	ExpiresAt   time.Time     `json:"expires_at" db:"expires_at"`
	AcceptedAt  *time.Time    `json:"accepted_at,omitempty" db:"accepted_at"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
}

// Expired reports whether the invite can no longer be accepted.
func (i *WorkspaceInvite) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// Accepted reports whether the invite was already consumed.
func (i *WorkspaceInvite) Accepted() bool {
	return i.AcceptedAt != nil
}
