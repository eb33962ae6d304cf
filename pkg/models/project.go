package models

import "time"

// ProjectStatus 项目状态
type ProjectStatus string

const (
	ProjectDraft     ProjectStatus = "draft"
	ProjectActive    ProjectStatus = "active"
	ProjectOnHold    ProjectStatus = "on_hold"
	ProjectCompleted ProjectStatus = "completed"
)

// Project is a tenant-scoped resource: WorkspaceID is non-null and cascades
// with its owning workspace. Reads and writes go through the isolation policy.
type Project struct {
	ID          string        `json:"id" db:"id"`
	WorkspaceID string        `json:"workspace_id" db:"workspace_id"`
	ClientID    *string       `json:"client_id,omitempty" db:"client_id"`
	Name        string        `json:"name" db:"name"`
	Status      ProjectStatus `json:"status" db:"status"`
	BudgetCents int64         `json:"budget_cents" db:"budget_cents"`
	Currency    string        `json:"currency,omitempty" db:"currency"`
	StartsAt    *time.Time    `json:"starts_at,omitempty" db:"starts_at"`
	EndsAt      *time.Time    `json:"ends_at,omitempty" db:"ends_at"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at" db:"updated_at"`
}

// Client 客户（租户内业务实体）
type Client struct {
	ID          string    `json:"id" db:"id"`
	WorkspaceID string    `json:"workspace_id" db:"workspace_id"`
	Name        string    `json:"name" db:"name"`
	Email       string    `json:"email,omitempty" db:"email"`
	Phone       string    `json:"phone,omitempty" db:"phone"`
	Company     string    `json:"company,omitempty" db:"company"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
