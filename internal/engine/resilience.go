package engine

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ListenResilient: универсальный цикл "живучей" подписки на канал Redis.
// После каждой успешной (пере)подписки вызывает onReconnect: всё, что было опубликовано,
// пока подписки не было, нужно досинхронизировать из источника истины.
func ListenResilient(
	ctx context.Context,
	rdb *redis.Client,
	logger *zap.Logger,
	channel string,
	onReconnect func(ctx context.Context) error, // синхронизация при переподключении
	onMessage func(payload string), // обработка сообщения
) {
	for {
		pubsub := rdb.Subscribe(ctx, channel)

		// Проверка успешности подписки
		if _, err := pubsub.Receive(ctx); err != nil {
			pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			logger.Error("failed to subscribe", zap.String("chan", channel), zap.Error(err))
			if !sleepCtx(ctx, 5*time.Second) {
				return
			}
			continue
		}

		if err := onReconnect(ctx); err != nil {
			logger.Error("sync failed on reconnect", zap.String("chan", channel), zap.Error(err))
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // канал закрыт, идем на переподключение
				}
				onMessage(msg.Payload)
			}
		}

		pubsub.Close()
		logger.Warn("subscription lost, reconnecting", zap.String("chan", channel))
		if !sleepCtx(ctx, time.Second) {
			return
		}
	}
}

// ParseToggle разбирает сигнал вида "<id>:on" / "<id>:off" (также true/false).
// Берется последнее двоеточие, поэтому id может содержать ':' (IPv6).
func ParseToggle(payload string) (id string, on bool, ok bool) {
	i := strings.LastIndexByte(payload, ':')
	if i <= 0 {
		return "", false, false
	}
	id, state := payload[:i], strings.ToLower(payload[i+1:])
	switch state {
	case "on", "true":
		return id, true, true
	case "off", "false":
		return id, false, true
	}
	return "", false, false
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
