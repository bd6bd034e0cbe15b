// Package sweeper периодически удаляет истёкшие записи из бэкендов,
// которые не умеют вытеснять их сами.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/scan-gate/internal/lib/sl"
)

// Purger удаляет истёкшие записи и возвращает их количество.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Service запускает очистку по таймеру.
type Service struct {
	purger   Purger
	interval time.Duration
	log      *slog.Logger
}

// NewService создает новый экземпляр Service.
func NewService(purger Purger, interval time.Duration, log *slog.Logger) *Service {
	return &Service{
		purger:   purger,
		interval: interval,
		log:      log,
	}
}

// Run выполняет очистку сразу и затем каждые interval до отмены ctx.
func (s *Service) Run(ctx context.Context) {
	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Service) runOnce(ctx context.Context) {
	const op = "sweeper.runOnce"
	n, err := s.purger.PurgeExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error("failed to purge expired entries", sl.Op(op), sl.Err(err))
		}
		return
	}
	if n > 0 {
		s.log.Info("expired entries purged", sl.Op(op), slog.Int64("count", n))
	}
}
