// Package scheduler предупреждает преподавателей о скором окончании
// пробного периода.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/magabrotheeeer/learnhub/internal/entitlement"
	"github.com/magabrotheeeer/learnhub/internal/lib/clock"
	"github.com/magabrotheeeer/learnhub/internal/lib/sl"
	"github.com/magabrotheeeer/learnhub/internal/models"
)

// AccountRepository ищет учетные записи на пробном периоде.
type AccountRepository interface {
	FindTrialsStartedBetween(ctx context.Context, from, to time.Time) ([]*models.Account, error)
}

// Publisher публикует уведомления.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message any) error
}

// Service периодически публикует trial.expiring для пробных периодов,
// которые заканчиваются в ближайшие lookahead.
//
// Каждый запуск обрабатывает только окончания, попавшие в окно с момента
// прошлого запуска, поэтому в пределах процесса уведомление уходит один раз.
type Service struct {
	repo      AccountRepository
	pub       Publisher
	clock     clock.Clock
	interval  time.Duration
	lookahead time.Duration
	log       *slog.Logger

	mu     sync.Mutex
	cursor time.Time
}

// New создает Service.
func New(repo AccountRepository, pub Publisher, clk clock.Clock, interval, lookahead time.Duration, log *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		pub:       pub,
		clock:     clk,
		interval:  interval,
		lookahead: lookahead,
		log:       log,
	}
}

// Run выполняет проверку сразу и затем раз в interval, пока не отменен ctx.
func (s *Service) Run(ctx context.Context) {
	const op = "scheduler.Run"
	log := s.log.With(slog.String("op", op))
	log.Info("scheduler started", slog.Duration("interval", s.interval), slog.Duration("lookahead", s.lookahead))

	s.tick(ctx, log)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx, log)
		}
	}
}

func (s *Service) tick(ctx context.Context, log *slog.Logger) {
	sent, err := s.NotifyExpiringTrials(ctx)
	if err != nil {
		log.Error("failed to notify expiring trials", sl.Err(err))
		return
	}
	log.Info("expiring trials processed", slog.Int("sent", sent))
}

// NotifyExpiringTrials публикует уведомления и возвращает число отправленных.
// Ошибка публикации отдельного уведомления логируется и не прерывает обход.
func (s *Service) NotifyExpiringTrials(ctx context.Context) (int, error) {
	const op = "scheduler.NotifyExpiringTrials"

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	from := s.cursor
	if from.IsZero() || from.Before(now) {
		from = now
	}
	to := now.Add(s.lookahead)
	if !to.After(from) {
		return 0, nil
	}

	// окончание пробного периода = начало + TrialPeriod
	accounts, err := s.repo.FindTrialsStartedBetween(ctx, from.Add(-entitlement.TrialPeriod), to.Add(-entitlement.TrialPeriod))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	sent := 0
	for _, acc := range accounts {
		end := entitlement.TrialEndDate(*acc)
		msg := models.Notification{
			Type:          models.NotificationTrialExpiring,
			AccountUID:    acc.UID,
			Email:         acc.Email,
			EndsAt:        end,
			DaysRemaining: entitlement.DaysUntil(end, now),
		}
		if err := s.pub.Publish(ctx, models.NotificationTrialExpiring, msg); err != nil {
			s.log.Error("failed to publish message", slog.String("uid", acc.UID), sl.Err(err))
			continue
		}
		sent++
	}

	s.cursor = to
	return sent, nil
}
