// Package sender собирает процесс, который читает очереди уведомлений
// и рассылает письма.
package sender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"
	"golang.org/x/sync/errgroup"

	"github.com/magabrotheeeer/learnhub/internal/config"
	"github.com/magabrotheeeer/learnhub/internal/lib/sl"
	"github.com/magabrotheeeer/learnhub/internal/lib/smtp"
	"github.com/magabrotheeeer/learnhub/internal/rabbitmq"
	senderservice "github.com/magabrotheeeer/learnhub/internal/services/sender"
)

// App представляет приложение рассылки.
type App struct {
	conn          *amqp.Connection
	ch            *amqp.Channel
	senderService *senderservice.Service
	workers       int
	logger        *slog.Logger
}

// New подключается к брокеру и объявляет очереди уведомлений.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg.RabbitMQ.URL == "" {
		return nil, errors.New("sender requires rabbitmq url")
	}
	if cfg.SMTP.Host == "" {
		return nil, errors.New("sender requires smtp host")
	}

	conn, err := rabbitmq.Connect(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.MaxRetries, cfg.RabbitMQ.RetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.NotificationQueues())
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	transport := smtp.NewTransport(cfg.SMTP, logger)

	return &App{
		conn:          conn,
		ch:            ch,
		senderService: senderservice.New(transport, logger),
		workers:       cfg.SMTP.Concurrency,
		logger:        logger,
	}, nil
}

// Run читает обе очереди до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	handlers := map[string]func([]byte) error{
		rabbitmq.QueueTrialExpiring:        a.senderService.HandleTrialExpiring,
		rabbitmq.QueueSubscriptionExtended: a.senderService.HandleSubscriptionExtended,
	}

	g, gctx := errgroup.WithContext(ctx)
	for queue, handler := range handlers {
		g.Go(func() error {
			a.logger.Info("consumer started", slog.String("queue", queue))
			return rabbitmq.ConsumeMessages(gctx, a.ch, queue, a.workers, handler, a.logger)
		})
	}
	err := g.Wait()

	a.logger.Info("sender service shutting down gracefully")
	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", sl.Err(err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", sl.Err(err))
	}
	return err
}
