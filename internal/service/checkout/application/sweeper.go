// internal/service/checkout/application/sweeper.go
package application

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"vertex/internal/pkg/logger"
	"vertex/internal/service/checkout/domain"
	"vertex/internal/service/checkout/metrics"
)

// LeaderLock 是清扫任务的领导者锁抽象，ZooKeeper 适配器实现它。
// 为 nil 时每个实例都会清扫——取消迁移本身幂等，只是会有重复扫描。
type LeaderLock interface {
	TryLock() (bool, error)
	Unlock() error
}

// Sweeper 周期性地把超出 TTL 仍未支付的预订单置为 CANCELLED。
// 这是整个引擎里唯一的自主恢复动作。
type Sweeper struct {
	store    domain.ReservationStore
	lock     LeaderLock
	tracer   trace.Tracer
	interval time.Duration
	batch    int
}

func NewSweeper(store domain.ReservationStore, lock LeaderLock, tracer trace.Tracer, interval time.Duration, batch int) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	return &Sweeper{store: store, lock: lock, tracer: tracer, interval: interval, batch: batch}
}

// Run 阻塞运行清扫循环，直到 ctx 取消。
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer s.release()

	logger.Logger.Info().
		Dur("interval", s.interval).
		Int("batch", s.batch).
		Msg("reservation ttl sweeper started")

	for {
		select {
		case <-ticker.C:
			s.sweepOnce(ctx)
		case <-ctx.Done():
			logger.Logger.Info().Msg("reservation ttl sweeper stopped")
			return nil
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	if s.lock != nil {
		held, err := s.lock.TryLock()
		if err != nil {
			logger.Logger.Warn().Err(err).Msg("sweeper leader lock unavailable, skipping cycle")
			return
		}
		if !held {
			return
		}
	}

	ctx, span := s.tracer.Start(ctx, "sweeper.ExpireDue")
	defer span.End()

	cancelled, err := s.store.ExpireDue(ctx, time.Now(), s.batch)
	if err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Error().Err(err).Msg("reservation sweep failed")
		return
	}
	if len(cancelled) == 0 {
		return
	}

	metrics.ReservationsExpired.Add(float64(len(cancelled)))
	for _, ref := range cancelled {
		logger.Ctx(ctx).Info().Str("intent_id", ref).Msg("reservation expired and cancelled")
	}
}

func (s *Sweeper) release() {
	if s.lock == nil {
		return
	}
	if err := s.lock.Unlock(); err != nil {
		logger.Logger.Warn().Err(err).Msg("failed to release sweeper leader lock")
	}
}
