package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/a11y-auditor/internal/infra"
)

const seedLockTTL = 30 * time.Second

// HostDenylist: хосты, которые оператор запретил аудировать.
// L1, map в памяти (проверка на каждом аудите), L2, множество в Redis (общее для инстансов),
// изменения приходят сигналом в канал.
type HostDenylist struct {
	rdb    *redis.Client
	logger *zap.Logger
	seed   []string

	mu    sync.RWMutex
	hosts map[string]struct{}
}

func NewHostDenylist(rdb *redis.Client, seed []string, logger *zap.Logger) *HostDenylist {
	return &HostDenylist{
		rdb:    rdb,
		logger: logger.Named("denylist"),
		seed:   normalizeHosts(seed),
		hosts:  make(map[string]struct{}),
	}
}

// Init загружает состояние из Redis и, если множество пусто, заливает туда хосты из конфигурации.
func (d *HostDenylist) Init(ctx context.Context) error {
	members, err := d.rdb.SMembers(ctx, infra.RedisKeyDeniedHosts).Result()
	if err != nil {
		return fmt.Errorf("redis: load denied hosts: %w", err)
	}

	// L1 собираем заново: удаления, пропущенные без подписки, тоже должны примениться
	fresh := make(map[string]struct{}, len(members)+len(d.seed))
	for _, h := range normalizeHosts(members) {
		fresh[h] = struct{}{}
	}
	d.mu.Lock()
	d.hosts = fresh
	d.mu.Unlock()

	// Хосты из конфигурации действуют всегда, даже если Redis их не примет
	d.add(d.seed)
	return d.seedShared(ctx)
}

// seedShared переносит хосты из конфигурации в пустое общее множество.
// Заливает один инстанс, взявший seedLock; непустое множество не трогаем,
// операторские Allow важнее конфигурации.
func (d *HostDenylist) seedShared(ctx context.Context) error {
	if len(d.seed) == 0 {
		return nil
	}
	owner, err := d.rdb.SetNX(ctx, infra.RedisKeyLockDeniedHosts, "seeding", seedLockTTL).Result()
	if err != nil {
		d.logger.Warn("denylist seed lock unavailable", zap.Error(err))
		return nil
	}
	if !owner {
		return nil
	}
	defer d.rdb.Del(context.WithoutCancel(ctx), infra.RedisKeyLockDeniedHosts)

	size, err := d.rdb.SCard(ctx, infra.RedisKeyDeniedHosts).Result()
	if err != nil {
		return fmt.Errorf("redis: size of denied hosts: %w", err)
	}
	if size > 0 {
		return nil
	}

	members := make([]any, len(d.seed))
	for i, h := range d.seed {
		members[i] = h
	}
	if err := d.rdb.SAdd(ctx, infra.RedisKeyDeniedHosts, members...).Err(); err != nil {
		return fmt.Errorf("redis: seed denied hosts: %w", err)
	}
	d.logger.Info("denylist seeded from config", zap.Int("hosts", len(d.seed)))
	return nil
}

// StartListener подписывается на изменения списка в реальном времени.
func (d *HostDenylist) StartListener(ctx context.Context) {
	ListenResilient(ctx, d.rdb, d.logger, infra.RedisChanDeniedHosts,
		d.Init, // переподключение
		func(payload string) {
			host, on, ok := ParseToggle(payload)
			if !ok {
				d.logger.Error("invalid signal format", zap.String("payload", payload))
				return
			}
			if on {
				d.add([]string{host})
			} else {
				d.remove(host)
			}
			d.logger.Info("denylist updated", zap.String("host", host), zap.Bool("denied", on))
		},
	)
}

// IsDenied: проверка в горячем пути валидатора.
func (d *HostDenylist) IsDenied(host string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.hosts[normalizeHost(host)]
	return ok
}

// Deny добавляет хост в общий список и оповещает остальные инстансы.
func (d *HostDenylist) Deny(ctx context.Context, host string) error {
	return d.toggle(ctx, host, true)
}

// Allow убирает хост из общего списка.
func (d *HostDenylist) Allow(ctx context.Context, host string) error {
	return d.toggle(ctx, host, false)
}

// Hosts возвращает текущее состояние L1.
func (d *HostDenylist) Hosts() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.hosts))
	for h := range d.hosts {
		out = append(out, h)
	}
	return out
}

func (d *HostDenylist) toggle(ctx context.Context, host string, on bool) error {
	host = normalizeHost(host)
	if host == "" {
		return fmt.Errorf("denylist: empty host")
	}

	state := "off"
	pipe := d.rdb.TxPipeline()
	if on {
		state = "on"
		pipe.SAdd(ctx, infra.RedisKeyDeniedHosts, host)
	} else {
		pipe.SRem(ctx, infra.RedisKeyDeniedHosts, host)
	}
	pipe.Publish(ctx, infra.RedisChanDeniedHosts, host+":"+state)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: update denied hosts: %w", err)
	}

	// свой L1 обновляем сразу, не дожидаясь собственного сигнала
	if on {
		d.add([]string{host})
	} else {
		d.remove(host)
	}
	return nil
}

func (d *HostDenylist) add(hosts []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, h := range normalizeHosts(hosts) {
		d.hosts[h] = struct{}{}
	}
}

func (d *HostDenylist) remove(host string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.hosts, normalizeHost(host))
}

func normalizeHost(h string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(h)), ".")
}

func normalizeHosts(hosts []string) []string {
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		if h = normalizeHost(h); h != "" {
			out = append(out, h)
		}
	}
	return out
}
