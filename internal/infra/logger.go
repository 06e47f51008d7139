package infra

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// NewLogger собирает корневой zap логгер из LoggerConfig. Уровень возвращается отдельно,
// чтобы его можно было менять на лету (см. WatchLogLevel).
func NewLogger(cfg LoggerConfig) (*zap.Logger, zap.AtomicLevel, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, level, fmt.Errorf("logger: %w", err)
	}

	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level

	logger, err := zc.Build()
	if err != nil {
		return nil, level, fmt.Errorf("logger: %w", err)
	}
	return logger, level, nil
}

// WatchLogLevel следит за файлом конфигурации и применяет новый logger.level без рестарта.
// Без файла (только ENV и дефолты) ничего не делает.
func (c *Config) WatchLogLevel(level zap.AtomicLevel, logger *zap.Logger) {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return
	}
	logger = logger.Named("config")

	c.v.OnConfigChange(func(e fsnotify.Event) {
		raw := c.v.GetString("logger.level")
		if err := level.UnmarshalText([]byte(raw)); err != nil {
			logger.Warn("ignoring invalid log level", zap.String("file", e.Name), zap.String("level", raw))
			return
		}
		logger.Info("log level changed", zap.String("level", level.String()))
	})
	c.v.WatchConfig()
}
