package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/a11y-auditor/internal/infra"
)

// TriggerMessage: сообщение в канале запуска аудитов. Внешний слой может публиковать
// и просто id аудита строкой.
type TriggerMessage struct {
	AuditID string `json:"audit_id"`
	TraceID string `json:"trace_id,omitempty"`
}

// ParseTrigger принимает JSON TriggerMessage или голый id.
func ParseTrigger(payload string) (TriggerMessage, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "{") {
		var m TriggerMessage
		if err := json.Unmarshal([]byte(payload), &m); err != nil {
			return TriggerMessage{}, fmt.Errorf("engine: decode trigger: %w", err)
		}
		m.AuditID = strings.TrimSpace(m.AuditID)
		if m.AuditID == "" {
			return TriggerMessage{}, fmt.Errorf("engine: trigger without audit_id")
		}
		return m, nil
	}
	if payload == "" {
		return TriggerMessage{}, fmt.Errorf("engine: empty trigger")
	}
	return TriggerMessage{AuditID: payload}, nil
}

// PendingLister: источник истины для досылки пропущенных триггеров.
type PendingLister interface {
	ListPending(ctx context.Context, limit int) ([]string, error)
}

// TriggerListener слушает канал запуска аудитов. При каждой (пере)подписке добирает
// из БД все Pending: триггеры, опубликованные без подписчика, в Redis не сохраняются.
type TriggerListener struct {
	rdb        *redis.Client
	store      PendingLister
	dispatcher *Dispatcher
	sweepLimit int
	logger     *zap.Logger
}

func NewTriggerListener(rdb *redis.Client, store PendingLister, d *Dispatcher, sweepLimit int, logger *zap.Logger) *TriggerListener {
	return &TriggerListener{
		rdb:        rdb,
		store:      store,
		dispatcher: d,
		sweepLimit: sweepLimit,
		logger:     logger.Named("trigger"),
	}
}

// Start блокируется до отмены ctx.
func (l *TriggerListener) Start(ctx context.Context) {
	ListenResilient(ctx, l.rdb, l.logger, infra.RedisChanAuditRun, l.Sweep, func(payload string) {
		msg, err := ParseTrigger(payload)
		if err != nil {
			l.logger.Error("invalid trigger", zap.String("payload", payload), zap.Error(err))
			return
		}
		tctx := ctx
		if msg.TraceID != "" {
			tctx = WithTraceID(ctx, msg.TraceID)
		}
		l.dispatcher.Dispatch(tctx, msg.AuditID)
	})
}

// Sweep ставит в работу все Pending аудиты из БД.
func (l *TriggerListener) Sweep(ctx context.Context) error {
	ids, err := l.store.ListPending(ctx, l.sweepLimit)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		l.logger.Info("dispatching pending audits", zap.Int("count", len(ids)))
	}
	for _, id := range ids {
		l.dispatcher.Dispatch(ctx, id)
	}
	return nil
}

// Publish отправляет триггер в канал (используется HTTP-слоем).
func Publish(ctx context.Context, rdb *redis.Client, msg TriggerMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := rdb.Publish(ctx, infra.RedisChanAuditRun, body).Err(); err != nil {
		return fmt.Errorf("redis: publish trigger: %w", err)
	}
	return nil
}
