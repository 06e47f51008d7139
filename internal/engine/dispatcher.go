package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/xela07ax/a11y-auditor/internal/domain"
)

// Runner: один прогон аудита.
type Runner interface {
	Run(ctx context.Context, auditID string) error
}

// Locker: распределенная блокировка прогона (см. RunLock).
type Locker interface {
	Acquire(ctx context.Context, auditID string) (release func(), ok bool, err error)
}

// Dispatcher запускает аудиты с ограниченной параллельностью. Аудиты независимы:
// общего состояния между ними нет, кроме хранилища.
type Dispatcher struct {
	runner Runner
	lock   Locker
	pool   *pool.Pool
	logger *zap.Logger

	// отмена всех прогонов при принудительной остановке
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewDispatcher(runner Runner, lock Locker, concurrency int, logger *zap.Logger) *Dispatcher {
	if concurrency < 1 {
		concurrency = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		ctx:      ctx,
		cancel:   cancel,
		runner:   runner,
		lock:     lock,
		pool:     pool.New().WithMaxGoroutines(concurrency),
		logger:   logger.Named("dispatcher"),
		inflight: make(map[string]struct{}),
	}
}

// Dispatch ставит аудит в работу. Блокируется, пока заняты все слоты (backpressure).
// Повторный триггер для аудита, который уже выполняется в этом процессе, игнорируется.
// Отмена ctx (останов подписки) не обрывает начатые аудиты, но новые после нее не стартуют,
// в том числе те, что ждали свободного слота.
func (d *Dispatcher) Dispatch(ctx context.Context, auditID string) {
	if ctx.Err() != nil {
		d.logger.Debug("audit not dispatched: listener stopped", zap.String("audit_id", auditID))
		return
	}
	if !d.claim(auditID) {
		d.logger.Debug("audit already in flight", zap.String("audit_id", auditID))
		return
	}

	d.pool.Go(func() {
		defer d.unclaim(auditID)
		if ctx.Err() != nil {
			d.logger.Info("audit skipped: listener stopped while waiting for a slot", zap.String("audit_id", auditID))
			return
		}

		rctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()
		stop := context.AfterFunc(d.ctx, cancel)
		defer stop()

		d.run(rctx, auditID)
	})
}

// Wait дожидается завершения всех запущенных аудитов. После Wait диспетчер не используется.
func (d *Dispatcher) Wait() {
	d.pool.Wait()
	d.cancel()
}

// Shutdown дает запущенным аудитам завершиться; по истечении ctx отменяет их
// (аудиты уходят в Failed) и ждет выхода.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.logger.Warn("drain timeout, cancelling running audits")
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) run(ctx context.Context, auditID string) {
	logger := d.logger.With(zap.String("audit_id", auditID))
	if ctx.Err() != nil {
		logger.Warn("audit skipped: shutting down")
		return
	}

	release, ok, err := d.lock.Acquire(ctx, auditID)
	if err != nil {
		logger.Error("audit lock unavailable", zap.Error(err))
		return
	}
	if !ok {
		logger.Info("audit is run by another worker")
		return
	}
	defer release()

	err = d.runner.Run(ctx, auditID)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotPending), errors.Is(err, domain.ErrAuditNotFound):
		logger.Info("audit trigger ignored", zap.Error(err))
	default:
		// аудит уже в Failed (или не смог туда попасть), подробности залогировал оркестратор
		logger.Debug("audit run finished with error", zap.Error(err))
	}
}

func (d *Dispatcher) claim(auditID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.inflight[auditID]; ok {
		return false
	}
	d.inflight[auditID] = struct{}{}
	return true
}

func (d *Dispatcher) unclaim(auditID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inflight, auditID)
}
