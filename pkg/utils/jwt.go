package utils

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"atelier-backend/pkg/models"
)

// AdminTokenTTL 管理员令牌有效期
const AdminTokenTTL = 30 * time.Minute

// AdminTokenService 管理员令牌服务：签发、验证、续期。
// 令牌为HS256签名的JWT，对客户端而言是不透明的bearer值。
// 验证失败一律收敛为错误返回（fail closed），绝不向上抛出panic。
type AdminTokenService struct {
	secretKey []byte
}

// NewAdminTokenService 创建管理员令牌服务
func NewAdminTokenService(secretKey string) *AdminTokenService {
	return &AdminTokenService{
		secretKey: []byte(secretKey),
	}
}

// Issue 签发30分钟有效期的管理员令牌
func (s *AdminTokenService) Issue(userID, email string) (string, error) {
	now := time.Now()
	claims := &models.AdminTokenClaims{
		UserID: userID,
		Email:  email,
		Type:   models.AdminTokenType,
		Exp:    now.Add(AdminTokenTTL).Unix(),
		Iat:    now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign admin token: %w", err)
	}
	return signed, nil
}

// Verify 验证管理员令牌。任何解码错误、签名/算法不符、type不为"admin"、
// 或已过期，都返回错误；调用方据此返回401，不区分具体原因。
func (s *AdminTokenService) Verify(tokenString string) (*models.AdminTokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.AdminTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		// 验证签名方法
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse admin token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid admin token")
	}

	claims, ok := token.Claims.(*models.AdminTokenClaims)
	if !ok {
		return nil, fmt.Errorf("invalid admin token claims")
	}

	if claims.Type != models.AdminTokenType {
		return nil, fmt.Errorf("invalid token type: expected %s, got %s", models.AdminTokenType, claims.Type)
	}

	// 过期检查（jwt库已校验exp，此处显式兜底）
	if time.Now().Unix() > claims.Exp {
		return nil, fmt.Errorf("admin token expired")
	}

	return claims, nil
}

// Refresh 用仍然有效的令牌换取一枚新的30分钟令牌。
// 过期令牌无法续期，只能重新登录。
func (s *AdminTokenService) Refresh(tokenString string) (string, error) {
	claims, err := s.Verify(tokenString)
	if err != nil {
		return "", fmt.Errorf("cannot refresh: %w", err)
	}
	return s.Issue(claims.UserID, claims.Email)
}

// JWTService 普通用户会话的JWT服务（access/refresh对）
type JWTService struct {
	secretKey []byte
}

// NewJWTService 创建用户JWT服务
func NewJWTService(secretKey string) *JWTService {
	return &JWTService{
		secretKey: []byte(secretKey),
	}
}

// GenerateTokenPair 生成访问令牌和刷新令牌对
func (j *JWTService) GenerateTokenPair(userID, email string) (accessToken, refreshToken string, expiresIn int64, err error) {
	now := time.Now()

	// 访问令牌（15分钟有效期）
	accessExpiry := now.Add(15 * time.Minute)
	accessClaims := &models.TokenClaims{
		UserID: userID,
		Email:  email,
		Type:   "access",
		Exp:    accessExpiry.Unix(),
		Iat:    now.Unix(),
	}

	accessTokenObj := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims)
	accessToken, err = accessTokenObj.SignedString(j.secretKey)
	if err != nil {
		return "", "", 0, fmt.Errorf("failed to generate access token: %w", err)
	}

	// 刷新令牌（7天有效期）
	refreshExpiry := now.Add(7 * 24 * time.Hour)
	refreshClaims := &models.TokenClaims{
		UserID: userID,
		Email:  email,
		Type:   "refresh",
		Exp:    refreshExpiry.Unix(),
		Iat:    now.Unix(),
	}

	refreshTokenObj := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims)
	refreshToken, err = refreshTokenObj.SignedString(j.secretKey)
	if err != nil {
		return "", "", 0, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return accessToken, refreshToken, accessExpiry.Unix(), nil
}

// ValidateToken 验证令牌
func (j *JWTService) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		// 验证签名方法
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(*models.TokenClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	// 检查是否过期
	if time.Now().Unix() > claims.Exp {
		return nil, fmt.Errorf("token expired")
	}

	return claims, nil
}

// RefreshAccessToken 使用刷新令牌生成新的访问令牌
func (j *JWTService) RefreshAccessToken(refreshToken string) (string, int64, error) {
	claims, err := j.ValidateToken(refreshToken)
	if err != nil {
		return "", 0, fmt.Errorf("invalid refresh token: %w", err)
	}
	if claims.Type != "refresh" {
		return "", 0, fmt.Errorf("invalid token type: expected refresh, got %s", claims.Type)
	}

	now := time.Now()
	expiry := now.Add(15 * time.Minute)
	accessClaims := &models.TokenClaims{
		UserID: claims.UserID,
		Email:  claims.Email,
		Type:   "access",
		Exp:    expiry.Unix(),
		Iat:    now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims)
	tokenString, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", 0, fmt.Errorf("failed to generate access token: %w", err)
	}
	return tokenString, expiry.Unix(), nil
}
