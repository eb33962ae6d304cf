package models

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// PlatformRole 平台管理员角色（跨租户，封闭枚举）
type PlatformRole string

const (
	PlatformSuperAdmin PlatformRole = "super_admin"
	PlatformSupport    PlatformRole = "support"
	PlatformAnalyst    PlatformRole = "analyst"
)

// ParsePlatformRole rejects unknown role strings at the boundary.
func ParsePlatformRole(s string) (PlatformRole, error) {
	switch PlatformRole(s) {
	case PlatformSuperAdmin, PlatformSupport, PlatformAnalyst:
		return PlatformRole(s), nil
	}
	return "", fmt.Errorf("unknown platform role: %q", s)
}

// Seniority defines the total order super_admin > support > analyst.
func (r PlatformRole) Seniority() int {
	switch r {
	case PlatformSuperAdmin:
		return 3
	case PlatformSupport:
		return 2
	case PlatformAnalyst:
		return 1
	}
	return 0
}

// Label returns the human-readable label; exhaustive over the enum.
func (r PlatformRole) Label() string {
	switch r {
	case PlatformSuperAdmin:
		return "Super Admin"
	case PlatformSupport:
		return "Support"
	case PlatformAnalyst:
		return "Analyst"
	}
	return "Unknown"
}

// PlatformAdmin grants cross-tenant privilege to a user. Independent of any
// workspace membership: a platform admin need not belong to any workspace.
type PlatformAdmin struct {
	ID        string       `json:"id" db:"id"`
	UserID    string       `json:"user_id" db:"user_id"`
	Role      PlatformRole `json:"role" db:"role"`
	GrantedBy string       `json:"granted_by,omitempty" db:"granted_by"`
	GrantedAt time.Time    `json:"granted_at" db:"granted_at"`

	// AdminEmail is joined from admin_credentials for list views (not a column
	// of platform_admins itself).
	AdminEmail string `json:"admin_email,omitempty" db:"-"`
}

// AdminCredential 管理员凭据（与普通用户认证完全隔离的密钥集）
// 泄露普通登录不应波及管理入口，反之亦然；两者仅通过 user_id 关联。
type AdminCredential struct {
	UserID       string    `json:"user_id" db:"user_id"`
	AdminEmail   string    `json:"admin_email" db:"admin_email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	FirstLogin   bool      `json:"first_login" db:"first_login"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// AdminPasswordReset is a single-use, 1-hour reset token delivered out of band.
type AdminPasswordReset struct {
	Token     string     `json:"token" db:"token"`
	UserID    string     `json:"user_id" db:"user_id"`
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty" db:"used_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// AdminTokenType is the only claim type accepted by the admin gate.
const AdminTokenType = "admin"

// AdminTokenClaims 管理员令牌声明。与普通用户的 TokenClaims 使用不同的签名密钥，
// type 必须为 "admin"，有效期30分钟。
type AdminTokenClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Type   string `json:"type"` // must be "admin"
	Exp    int64  `json:"exp"`
	Iat    int64  `json:"iat"`
}

// GetExpirationTime implements jwt.Claims interface
func (c *AdminTokenClaims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Exp, 0)), nil
}

// GetIssuedAt implements jwt.Claims interface
func (c *AdminTokenClaims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Iat, 0)), nil
}

// GetNotBefore implements jwt.Claims interface
func (c *AdminTokenClaims) GetNotBefore() (*jwt.NumericDate, error) {
	return nil, nil
}

// GetIssuer implements jwt.Claims interface
func (c *AdminTokenClaims) GetIssuer() (string, error) {
	return "", nil
}

// GetSubject implements jwt.Claims interface
func (c *AdminTokenClaims) GetSubject() (string, error) {
	return c.UserID, nil
}

// GetAudience implements jwt.Claims interface
func (c *AdminTokenClaims) GetAudience() (jwt.ClaimStrings, error) {
	return nil, nil
}

// AdminLoginRequest 管理员登录请求
type AdminLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AdminLoginResponse 管理员登录响应
type AdminLoginResponse struct {
	Token      string       `json:"token"`
	FirstLogin bool         `json:"firstLogin"`
	Role       PlatformRole `json:"role"`
}
