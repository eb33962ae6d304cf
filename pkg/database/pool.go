package database

import (
	"sync"
	"time"

	"atelier-backend/pkg/logger"
)

// DatabasePool 数据库连接池（warm实例间复用单例连接）
type DatabasePool struct {
	instance DatabaseInterface
	config   DatabaseConfig
	mu       sync.RWMutex
	lastUsed time.Time
}

var (
	globalPool *DatabasePool
	poolMutex  sync.Mutex
)

// maxIdleBeforeReconnect 空闲超过该时长后重建连接（serverless实例可能被冻结）
const maxIdleBeforeReconnect = 10 * time.Minute

// GetDatabase 获取数据库连接（单例模式 + 冷启动时创建）
func GetDatabase(config DatabaseConfig) DatabaseInterface {
	poolMutex.Lock()
	defer poolMutex.Unlock()

	if globalPool == nil || shouldRecreateConnection(globalPool, config) {
		logger.Get().Debug("creating new database connection pool")

		// 关闭旧连接（如果存在）
		if globalPool != nil && globalPool.instance != nil {
			globalPool.instance.Close()
		}

		instance := NewDatabase(config)
		globalPool = &DatabasePool{
			instance: instance,
			config:   config,
			lastUsed: time.Now(),
		}
	} else {
		// 更新最后使用时间
		globalPool.mu.Lock()
		globalPool.lastUsed = time.Now()
		globalPool.mu.Unlock()
	}

	return globalPool.instance
}

// shouldRecreateConnection 判断是否需要重新创建连接
func shouldRecreateConnection(pool *DatabasePool, newConfig DatabaseConfig) bool {
	if pool == nil || pool.instance == nil {
		return true
	}

	// 配置变化时重建
	if pool.config != newConfig {
		return true
	}

	// 长时间空闲后连接可能已被对端关闭
	pool.mu.RLock()
	idle := time.Since(pool.lastUsed)
	pool.mu.RUnlock()
	if idle > maxIdleBeforeReconnect {
		return true
	}

	// 健康检查失败则重建
	if err := pool.instance.HealthCheck(); err != nil {
		logger.WithField("error", err).Warn("database health check failed, reconnecting")
		return true
	}

	return false
}

// ResetPool 重置连接池（测试用）
func ResetPool() {
	poolMutex.Lock()
	defer poolMutex.Unlock()
	if globalPool != nil && globalPool.instance != nil {
		globalPool.instance.Close()
	}
	globalPool = nil
}
