// Package journal: асинхронный журнал этапов аудита.
//
// Пайплайн пишет события без блокировки: они копятся в буферизованном канале
// и уходят в хранилище пачками по таймеру или по достижении размера пачки.
// Stop закрывает вход и дожидается финального сброса буфера.
package journal

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultBufferSize    = 10000
	defaultBatchSize     = 100
	defaultFlushInterval = 500 * time.Millisecond
)

// Storage: куда физически сохраняются события.
type Storage interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []Event) error
}

// Recorder: то, что нужно пайплайну от журнала.
type Recorder interface {
	Record(event Event)
}

type Journal struct {
	ch     chan Event
	repo   Storage
	logger *zap.Logger
	wg     sync.WaitGroup

	// RLock в Record, Lock в Stop: запись в закрытый канал невозможна
	mu     sync.RWMutex
	closed bool

	batchSize     int
	flushInterval time.Duration
	onBuffer      func(n int)
}

func New(repo Storage, logger *zap.Logger) *Journal {
	return &Journal{
		ch:            make(chan Event, defaultBufferSize),
		repo:          repo,
		logger:        logger.Named("journal"),
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
	}
}

// WithBufferGauge подключает наблюдателя заполненности буфера (backpressure).
func (j *Journal) WithBufferGauge(fn func(n int)) *Journal {
	j.onBuffer = fn
	return j
}

func (j *Journal) Start() {
	j.wg.Add(1)
	go j.worker()
}

// Stop запирает вход и ждет, пока воркер всё допишет. Повторный вызов безопасен.
func (j *Journal) Stop() {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return
	}
	j.closed = true
	j.logger.Info("stopping journal: closing channel and flushing buffer...")
	close(j.ch)
	j.mu.Unlock()

	j.wg.Wait()
	j.logger.Info("journal stopped gracefully")
}

// Record не блокирует: при переполнении событие уходит только в лог.
func (j *Journal) Record(event Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		j.logger.Warn("journal event dropped: journal is stopping",
			zap.String("audit_id", event.AuditID),
			zap.String("stage", string(event.Stage)),
		)
		return
	}

	select {
	case j.ch <- event:
	default:
		j.logger.Error("journal_buffer_overflow",
			zap.String("audit_id", event.AuditID),
			zap.String("stage", string(event.Stage)),
			zap.String("error", event.Error),
		)
	}
}

func (j *Journal) worker() {
	defer j.wg.Done()

	batch := make([]Event, 0, j.batchSize)
	ticker := time.NewTicker(j.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if j.onBuffer != nil {
			j.onBuffer(len(j.ch))
		}
		if len(batch) == 0 {
			return
		}
		// Background: контекст вызывающего к этому моменту может быть уже закрыт
		if err := j.repo.WriteBatch(context.Background(), batch); err != nil {
			j.logger.Error("journal flush failed", zap.Int("events", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case event, ok := <-j.ch:
			if !ok {
				// канал закрыт в Stop: всё, что было в очереди, уже вычитано
				flush()
				return
			}
			batch = append(batch, event)
			if len(batch) >= j.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// Nop: журнал для тестов и утилит, которым аудит-трейл не нужен.
type Nop struct{}

func (Nop) Record(Event) {}
