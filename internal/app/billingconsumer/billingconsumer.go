// Package billingconsumer приложение, применяющее платёжные события из очереди
// к аккаунтам и анонимным записям использования.
package billingconsumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/scan-gate/internal/app/backend"
	"github.com/magabrotheeeer/scan-gate/internal/config"
	"github.com/magabrotheeeer/scan-gate/internal/lib/metrics"
	"github.com/magabrotheeeer/scan-gate/internal/lib/sl"
	"github.com/magabrotheeeer/scan-gate/internal/rabbitmq"
	"github.com/magabrotheeeer/scan-gate/internal/services/billing"
	usagesvc "github.com/magabrotheeeer/scan-gate/internal/services/usage"
)

// ErrSharedStoreRequired потребитель запущен с in-memory хранилищем, которое
// не видит процесс гейта.
var ErrSharedStoreRequired = errors.New("billing consumer requires a shared storage backend (redis or postgres)")

// App потребитель очереди платёжных событий.
type App struct {
	handler *billing.Handler
	backend *backend.Backend
	conn    *amqp.Connection
	ch      *amqp.Channel
	queue   string
	workers int
	logger  *slog.Logger
}

// New открывает хранилище, подключается к брокеру и объявляет очередь.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "billingconsumer.New"

	if cfg.Backend == config.BackendMemory {
		logger.Error("refusing to start with process-local storage", sl.Op(op), slog.String("backend", cfg.Backend))
		return nil, fmt.Errorf("%s: %w", op, ErrSharedStoreRequired)
	}

	b, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	conn, err := rabbitmq.Connect(ctx, cfg.RabbitMQ.URL, cfg.Retries, cfg.RetryDelay)
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("%s: failed to connect RabbitMQ: %w", op, err)
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.Topology{
		Exchange:   cfg.Exchange,
		Queue:      cfg.Queue,
		RoutingKey: cfg.RoutingKey,
		Prefetch:   cfg.Prefetch,
	})
	if err != nil {
		closeResources(nil, conn, logger)
		_ = b.Close()
		return nil, fmt.Errorf("%s: failed to setup RabbitMQ channel: %w", op, err)
	}

	ledger := usagesvc.New(b.Store, logger, cfg.FreeLimit, cfg.LinkBonus)
	service := billing.NewService(b.Store, ledger, logger)

	return &App{
		handler: billing.NewHandler(logger, service, metrics.New(prometheus.DefaultRegisterer)),
		backend: b,
		conn:    conn,
		ch:      ch,
		queue:   cfg.Queue,
		workers: cfg.Prefetch,
		logger:  logger,
	}, nil
}

// Run обрабатывает сообщения до отмены ctx или потери канала.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	a.logger.Info("billing consumer started", slog.String("queue", a.queue), slog.Int("workers", a.workers))
	if err := rabbitmq.ConsumerMessage(ctx, a.logger, a.ch, a.queue, a.workers, a.handler.HandleMessage); err != nil {
		return err
	}
	if ctx.Err() == nil {
		return fmt.Errorf("billingconsumer.Run: delivery channel closed")
	}
	return nil
}

func (a *App) close() {
	closeResources(a.ch, a.conn, a.logger)
	if err := a.backend.Close(); err != nil {
		a.logger.Error("failed to close store", sl.Err(err))
	}
}

func closeResources(ch *amqp.Channel, conn *amqp.Connection, logger *slog.Logger) {
	if ch != nil {
		if err := ch.Close(); err != nil {
			logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close connection", sl.Err(err))
		}
	}
}
