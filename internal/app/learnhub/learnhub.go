// Package learnhub собирает HTTP API платформы: хранилище, кэш каталога,
// проверку доступа, продление подписок и gRPC health.
package learnhub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	"github.com/magabrotheeeer/learnhub/internal/access"
	"github.com/magabrotheeeer/learnhub/internal/cache"
	"github.com/magabrotheeeer/learnhub/internal/config"
	grpcserver "github.com/magabrotheeeer/learnhub/internal/grpc/server"
	"github.com/magabrotheeeer/learnhub/internal/ledger"
	"github.com/magabrotheeeer/learnhub/internal/lib/clock"
	"github.com/magabrotheeeer/learnhub/internal/lib/jwt"
	"github.com/magabrotheeeer/learnhub/internal/lib/sl"
	"github.com/magabrotheeeer/learnhub/internal/migrations"
	"github.com/magabrotheeeer/learnhub/internal/rabbitmq"
	authservice "github.com/magabrotheeeer/learnhub/internal/services/auth"
	"github.com/magabrotheeeer/learnhub/internal/services/catalog"
	"github.com/magabrotheeeer/learnhub/internal/storage/repository"
)

const shutdownTimeout = 15 * time.Second

// App объединяет HTTP- и gRPC-серверы платформы.
type App struct {
	cfg     *config.Config
	server  *http.Server
	health  *grpcserver.HealthServer
	logger  *slog.Logger
	db      *repository.Storage
	memory  *cache.Ephemeral
	closers []func() error
}

// New подключает зависимости и собирает маршруты. Миграции применяются
// до старта, администратор из конфига создается, если его еще нет.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "learnhub.New"

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	app := &App{cfg: cfg, logger: logger, db: db}
	app.closers = append(app.closers, db.Close)

	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		app.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	clk := clock.Real{}
	jwtMaker := jwt.NewJWTMaker(cfg.JWTToken.JWTSecretKey, cfg.JWTToken.TokenTTL)
	authService := authservice.New(db, jwtMaker, clk, logger)

	if cfg.Admin.Email != "" {
		if err = authService.EnsureAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password); err != nil {
			app.close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	catalogCache, err := app.newCache(ctx, clk)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var publisher ledger.Publisher
	if cfg.RabbitMQ.URL != "" {
		pub, err := app.newPublisher(ctx)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		publisher = pub
	} else {
		logger.Warn("rabbitmq url is empty, subscription events are disabled")
	}

	services := Services{
		Gate:   access.New(jwtMaker, db, clk, cfg.PaymentInfo),
		Auth:   authService,
		Ledger: ledger.New(db, clk, publisher, logger),
		Catalog: catalog.New(db, catalogCache, catalog.TTL{
			Lessons: cfg.Cache.LessonsTTL,
			Rewards: cfg.Cache.RewardsTTL,
		}, clk, logger),
		DB:    db,
		Clock: clk,
	}

	router := chi.NewRouter()
	RegisterRoutes(router, logger, services, cfg.HTTPServer)

	app.server = &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}
	app.health = grpcserver.NewHealthServer(db, 0, logger)

	return app, nil
}

func (a *App) newCache(ctx context.Context, clk clock.Clock) (catalog.Cache, error) {
	switch a.cfg.Cache.Backend {
	case "redis":
		c, err := cache.InitServer(ctx, a.cfg.RedisConnection)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, c.Close)
		a.logger.Info("catalog cache backend", slog.String("backend", "redis"))
		return c, nil
	case "", "memory":
		a.memory = cache.NewEphemeral(clk)
		a.logger.Info("catalog cache backend", slog.String("backend", "memory"))
		return a.memory, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", a.cfg.Cache.Backend)
	}
}

func (a *App) newPublisher(ctx context.Context) (*rabbitmq.Publisher, error) {
	conn, err := rabbitmq.Connect(ctx, a.cfg.RabbitMQ.URL, a.cfg.RabbitMQ.MaxRetries, a.cfg.RabbitMQ.RetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.NotificationQueues())
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}
	a.closers = append(a.closers, ch.Close, conn.Close)
	return rabbitmq.NewPublisher(ch), nil
}

// Run обслуживает HTTP и gRPC health до отмены ctx, затем корректно
// останавливает серверы и закрывает ресурсы.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.memory != nil {
		go a.memory.RunJanitor(runCtx, a.cfg.Cache.JanitorInterval)
	}

	grpcErr := make(chan error, 1)
	go func() {
		grpcErr <- a.health.Serve(runCtx, a.cfg.GRPCHealthAddress)
	}()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case runErr = <-errCh:
	case runErr = <-grpcErr:
		if runErr == nil {
			runErr = errors.New("gRPC health server stopped unexpectedly")
		}
	case <-ctx.Done():
	}

	cancel()
	timeoutCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	a.logger.Info("shutting down HTTP server gracefully")
	if err := a.server.Shutdown(timeoutCtx); err != nil && runErr == nil {
		runErr = err
	}
	a.close()
	return runErr
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("failed to close resource", sl.Err(err))
		}
	}
	a.closers = nil
}
