package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atelier-backend/pkg/models"
)

func TestAdminTokenIssueVerify(t *testing.T) {
	svc := NewAdminTokenService("test-secret")

	token, err := svc.Issue("user-1", "admin@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "admin@example.com", claims.Email)
	assert.Equal(t, models.AdminTokenType, claims.Type)

	// 有效期30分钟
	assert.InDelta(t, time.Now().Add(AdminTokenTTL).Unix(), claims.Exp, 5)
}

func TestAdminTokenVerifyWrongSecret(t *testing.T) {
	token, err := NewAdminTokenService("secret-a").Issue("user-1", "a@example.com")
	require.NoError(t, err)

	_, err = NewAdminTokenService("secret-b").Verify(token)
	assert.Error(t, err)
}

func TestAdminTokenVerifyExpired(t *testing.T) {
	secret := "test-secret"
	now := time.Now()
	claims := &models.AdminTokenClaims{
		UserID: "user-1",
		Email:  "a@example.com",
		Type:   models.AdminTokenType,
		Exp:    now.Add(-1 * time.Minute).Unix(),
		Iat:    now.Add(-31 * time.Minute).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)

	_, err = NewAdminTokenService(secret).Verify(token)
	assert.Error(t, err)
}

func TestAdminTokenExpiryBoundary(t *testing.T) {
	secret := "test-secret"
	svc := NewAdminTokenService(secret)
	now := time.Now()

	sign := func(exp time.Time) string {
		t.Helper()
		claims := &models.AdminTokenClaims{
			UserID: "user-1",
			Email:  "a@example.com",
			Type:   models.AdminTokenType,
			Exp:    exp.Unix(),
			Iat:    now.Add(-AdminTokenTTL).Unix(),
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return token
	}

	// exp仍在未来（哪怕只剩几秒）：验证通过
	_, err := svc.Verify(sign(now.Add(3 * time.Second)))
	assert.NoError(t, err)

	// exp刚刚过去：验证失败
	_, err = svc.Verify(sign(now.Add(-3 * time.Second)))
	assert.Error(t, err)
}

func TestAdminTokenVerifyRejectsWrongType(t *testing.T) {
	secret := "test-secret"
	now := time.Now()
	// 用同一密钥签一个type=access的令牌：门禁必须拒绝
	claims := &models.AdminTokenClaims{
		UserID: "user-1",
		Email:  "a@example.com",
		Type:   "access",
		Exp:    now.Add(30 * time.Minute).Unix(),
		Iat:    now.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)

	_, err = NewAdminTokenService(secret).Verify(token)
	assert.Error(t, err)
}

func TestAdminTokenVerifyGarbage(t *testing.T) {
	svc := NewAdminTokenService("test-secret")
	for _, input := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := svc.Verify(input)
		assert.Error(t, err, "input %q should fail", input)
	}
}

func TestAdminTokenRefresh(t *testing.T) {
	svc := NewAdminTokenService("test-secret")

	token, err := svc.Issue("user-1", "a@example.com")
	require.NoError(t, err)

	refreshed, err := svc.Refresh(token)
	require.NoError(t, err)

	claims, err := svc.Verify(refreshed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
}

func TestAdminTokenRefreshExpiredFails(t *testing.T) {
	secret := "test-secret"
	now := time.Now()
	claims := &models.AdminTokenClaims{
		UserID: "user-1",
		Email:  "a@example.com",
		Type:   models.AdminTokenType,
		Exp:    now.Add(-1 * time.Minute).Unix(),
		Iat:    now.Add(-31 * time.Minute).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)

	// 过期令牌不能续期，只能重新登录
	_, err = NewAdminTokenService(secret).Refresh(token)
	assert.Error(t, err)
}

func TestUserTokenPair(t *testing.T) {
	svc := NewJWTService("user-secret")

	access, refresh, _, err := svc.GenerateTokenPair("user-1", "u@example.com")
	require.NoError(t, err)

	accessClaims, err := svc.ValidateToken(access)
	require.NoError(t, err)
	assert.Equal(t, "access", accessClaims.Type)

	refreshClaims, err := svc.ValidateToken(refresh)
	require.NoError(t, err)
	assert.Equal(t, "refresh", refreshClaims.Type)

	// access token不能用来刷新
	_, _, err = svc.RefreshAccessToken(access)
	assert.Error(t, err)

	newAccess, _, err := svc.RefreshAccessToken(refresh)
	require.NoError(t, err)
	claims, err := svc.ValidateToken(newAccess)
	require.NoError(t, err)
	assert.Equal(t, "access", claims.Type)
}

func TestAdminAndUserSecretsAreNotInterchangeable(t *testing.T) {
	userSvc := NewJWTService("user-secret")
	adminSvc := NewAdminTokenService("admin-secret")

	access, _, _, err := userSvc.GenerateTokenPair("user-1", "u@example.com")
	require.NoError(t, err)

	// 用户令牌在管理员门禁前无效（密钥和type都不同）
	_, err = adminSvc.Verify(access)
	assert.Error(t, err)
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	require.NoError(t, err)
	require.NotEqual(t, "correct horse battery", hash)

	assert.NoError(t, CheckPassword(hash, "correct horse battery"))
	assert.Error(t, CheckPassword(hash, "wrong password"))
}
