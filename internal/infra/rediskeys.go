package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "focus"
)

// Ключи для Sets (состояние)
const (
	RedisKeyActiveAgreements = RedisNamespace + ":agreements:active_set"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanExtend — канал одобренных пользователем продлений ("id:seconds").
	RedisChanExtend = RedisNamespace + ":agreements:extend-signal"
	// RedisChanRevoke — канал досрочных отзывов договора ("id:off").
	RedisChanRevoke = RedisNamespace + ":agreements:revoke-signal"
)

// GetWarmupLockKey Генератор ключей для блокировок (если нужны динамические)
func GetWarmupLockKey(resource string) string {
	return fmt.Sprintf("%s:lock:warmup:%s", RedisNamespace, resource)
}
