package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "a11y"
)

// Ключи для Sets (состояние)
const (
	RedisKeyDeniedHosts     = RedisNamespace + ":hosts:denied"
	RedisKeyLockDeniedHosts = RedisNamespace + ":lock:seed:denied_hosts"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanAuditRun: сюда внешний слой публикует id аудита в статусе Pending.
	RedisChanAuditRun    = RedisNamespace + ":audits:run"
	RedisChanDeniedHosts = RedisNamespace + ":hosts:denied-signal"
)

// GetAuditLockKey ключ распределенной блокировки прогона конкретного аудита
func GetAuditLockKey(auditID string) string {
	return fmt.Sprintf("%s:lock:audit:%s", RedisNamespace, auditID)
}
