package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// Config 应用配置结构
type Config struct {
	// 环境配置
	Environment string
	Port        string

	// 数据库配置
	PostgresDSN string
	SupabaseURL string
	SupabaseKey string

	// JWT配置：用户会话与管理员令牌使用不同的密钥
	JWTSecret      string
	AdminJWTSecret string

	// 限流配置（管理员登录防爆破）
	RedisURL string

	// SMTP配置（重置链接、邀请邮件）
	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPassword string

	// 前端基础URL，用于构建重置/邀请链接
	AppBaseURL string

	// CORS配置
	AllowedOrigins []string

	// 日志配置
	LogLevel string

	// 调试配置
	Debug bool
}

// LoadConfig 加载配置（支持本地和Vercel环境）
func LoadConfig() *Config {
	// 根据环境加载对应的 .env 文件（已存在的环境变量优先）
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development" // 默认开发环境
	}

	switch env {
	case "production":
		_ = godotenv.Load(".env.production")
	default:
		_ = godotenv.Load(".env.local")
	}

	config := &Config{
		Environment: getEnvWithDefault("ENVIRONMENT", "development"),
		Port:        getEnvWithDefault("PORT", "3000"),
		JWTSecret:   getEnvWithDefault("JWT_SECRET", "dev-user-secret-change-in-production"),
		LogLevel:    getEnvWithDefault("LOG_LEVEL", "info"),
		Debug:       getEnvBool("DEBUG", false),
	}

	// 数据库配置
	// Trim whitespace to avoid trailing spaces/newlines from env sources
	config.PostgresDSN = strings.TrimSpace(os.Getenv("POSTGRES_DSN"))
	config.SupabaseURL = strings.TrimSpace(os.Getenv("SUPABASE_URL"))
	config.SupabaseKey = strings.TrimSpace(os.Getenv("SUPABASE_SERVICE_KEY"))

	// 管理员令牌密钥必须独立于用户会话密钥
	config.AdminJWTSecret = strings.TrimSpace(getEnvWithDefault("ADMIN_JWT_SECRET", "dev-admin-secret-change-in-production"))

	// 限流后端（为空时使用单实例内存限流）
	config.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))

	// SMTP配置
	config.SMTPHost = strings.TrimSpace(os.Getenv("SMTP_HOST"))
	config.SMTPPort = getEnvWithDefault("SMTP_PORT", "587")
	config.SMTPUser = strings.TrimSpace(os.Getenv("SMTP_USER"))
	config.SMTPPassword = os.Getenv("SMTP_PASSWORD")

	config.AppBaseURL = strings.TrimSpace(getEnvWithDefault("APP_BASE_URL", "http://localhost:3000"))

	// CORS配置
	allowedOrigins := getEnvWithDefault("ALLOWED_ORIGINS", "*")
	if allowedOrigins == "*" {
		config.AllowedOrigins = []string{"*"}
	} else {
		config.AllowedOrigins = strings.Split(allowedOrigins, ",")
	}

	// 生产环境关闭调试
	if config.Environment == "production" {
		config.Debug = false
	}

	return config
}

// Cached config (initialized once per cold start)
var (
	cachedConfig *Config
	configOnce   sync.Once
)

// GetCached returns the process-wide cached Config.
// On serverless, it initializes once per cold start and reuses it across warm
// invocations, avoiding per-request parsing.
func GetCached() *Config {
	configOnce.Do(func() {
		cachedConfig = LoadConfig()
	})
	return cachedConfig
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	// 验证JWT密钥
	if c.IsProduction() {
		if c.JWTSecret == "" || strings.HasPrefix(c.JWTSecret, "dev-") {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		if c.AdminJWTSecret == "" || strings.HasPrefix(c.AdminJWTSecret, "dev-") {
			return fmt.Errorf("ADMIN_JWT_SECRET must be set in production")
		}
		if c.AdminJWTSecret == c.JWTSecret {
			return fmt.Errorf("ADMIN_JWT_SECRET must differ from JWT_SECRET")
		}
	}

	// 验证数据库配置
	if c.PostgresDSN == "" && (c.SupabaseURL == "" || c.SupabaseKey == "") {
		return fmt.Errorf("database not configured: set POSTGRES_DSN or SUPABASE_URL+SUPABASE_SERVICE_KEY")
	}

	return nil
}

// IsProduction 检查是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment 检查是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// 辅助函数

// getEnvWithDefault 获取环境变量，如果不存在则使用默认值
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool 获取布尔类型的环境变量
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
