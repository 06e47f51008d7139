package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/xela07ax/a11y-auditor/internal/infra"
)

// Снимаем блокировку, только если она все еще наша (TTL мог истечь и ключ занял другой инстанс).
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RunLock: распределенная блокировка прогона аудита (SetNX с TTL).
// Два инстанса воркера не должны вести один аудит одновременно.
type RunLock struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRunLock(rdb *redis.Client, ttl time.Duration) *RunLock {
	return &RunLock{rdb: rdb, ttl: ttl}
}

// Acquire возвращает ok=false, если аудит уже ведет кто-то другой.
func (l *RunLock) Acquire(ctx context.Context, auditID string) (release func(), ok bool, err error) {
	key := infra.GetAuditLockKey(auditID)
	token := uuid.New().String()

	ok, err = l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis: acquire audit lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release = func() {
		// контекст аудита к этому моменту может быть отменен
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.rdb, []string{key}, token).Err()
	}
	return release, true, nil
}
