// Package scheduler собирает процесс, который рассылает предупреждения
// об окончании пробного периода.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/learnhub/internal/config"
	"github.com/magabrotheeeer/learnhub/internal/lib/clock"
	"github.com/magabrotheeeer/learnhub/internal/lib/sl"
	"github.com/magabrotheeeer/learnhub/internal/rabbitmq"
	schedulerservice "github.com/magabrotheeeer/learnhub/internal/services/scheduler"
	"github.com/magabrotheeeer/learnhub/internal/storage/repository"
)

const (
	dbReadyAttempts = 10
	dbReadyDelay    = 3 * time.Second
)

// App представляет приложение планировщика.
type App struct {
	schedulerService *schedulerservice.Service
	db               *repository.Storage
	conn             *amqp.Connection
	ch               *amqp.Channel
	logger           *slog.Logger
}

// waitForDB ждет, пока основное приложение применит миграции.
func waitForDB(ctx context.Context, db *repository.Storage) error {
	var err error
	for range dbReadyAttempts {
		if err = repository.CheckDatabaseReady(ctx, db); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(dbReadyDelay):
		}
	}
	return fmt.Errorf("database not ready after retries: %w", err)
}

// New создает новый экземпляр приложения планировщика.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg.RabbitMQ.URL == "" {
		return nil, errors.New("scheduler requires rabbitmq url")
	}

	conn, err := rabbitmq.Connect(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.MaxRetries, cfg.RabbitMQ.RetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.NotificationQueues())
	if err != nil {
		closeResources(nil, conn, logger)
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		closeResources(ch, conn, logger)
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}

	if err := waitForDB(ctx, db); err != nil {
		_ = db.Close()
		closeResources(ch, conn, logger)
		return nil, err
	}

	schedulerService := schedulerservice.New(
		db,
		rabbitmq.NewPublisher(ch),
		clock.Real{},
		cfg.Scheduler.Interval,
		cfg.Scheduler.Lookahead,
		logger,
	)

	return &App{
		schedulerService: schedulerService,
		db:               db,
		conn:             conn,
		ch:               ch,
		logger:           logger,
	}, nil
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

// Run запускает планировщик и блокируется до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	a.schedulerService.Run(ctx)

	a.logger.Info("shutting down scheduler service")
	closeResources(a.ch, a.conn, a.logger)
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
	return nil
}
