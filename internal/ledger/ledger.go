// Package ledger отвечает за изменение оплаченного периода учетной записи.
//
// Продление добавляется к текущей дате окончания, если подписка активна и еще
// не истекла; иначе новый период отсчитывается от текущего момента.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/learnhub/internal/entitlement"
	"github.com/magabrotheeeer/learnhub/internal/lib/clock"
	"github.com/magabrotheeeer/learnhub/internal/lib/sl"
	"github.com/magabrotheeeer/learnhub/internal/metrics"
	"github.com/magabrotheeeer/learnhub/internal/models"
)

const maxAttempts = 3

// MaxDays ограничивает одно продление сотней лет.
const MaxDays = 36500

var (
	// ErrValidation объединяет ошибки входных данных.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidDays: число дней должно быть положительным.
	ErrInvalidDays = fmt.Errorf("%w: days must be a positive integer", ErrValidation)
	// ErrTooManyDays: продление длиннее MaxDays.
	ErrTooManyDays = fmt.Errorf("%w: days must not exceed %d", ErrValidation, MaxDays)
	// ErrAccountIDRequired: не указан идентификатор учетной записи.
	ErrAccountIDRequired = fmt.Errorf("%w: account id is required", ErrValidation)
	// ErrAdminAccount: подписку администратора продлевать нельзя.
	ErrAdminAccount = errors.New("admin accounts are not subject to subscription bookkeeping")
	// ErrConcurrentUpdate: запись постоянно меняется параллельными запросами.
	ErrConcurrentUpdate = errors.New("subscription was modified concurrently")
)

// AccountRepository описывает хранилище учетных записей.
type AccountRepository interface {
	GetAccount(ctx context.Context, uid string) (*models.Account, error)
	ExtendSubscription(ctx context.Context, uid string, expectedEnd *time.Time, newEnd, paidAt time.Time) (bool, error)
}

// Publisher публикует события для сервиса уведомлений.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message any) error
}

// Ledger продлевает подписки.
type Ledger struct {
	repo  AccountRepository
	clock clock.Clock
	pub   Publisher
	log   *slog.Logger
	locks *keyLock
}

// New создает Ledger. pub может быть nil, тогда события не публикуются.
func New(repo AccountRepository, clk clock.Clock, pub Publisher, log *slog.Logger) *Ledger {
	return &Ledger{
		repo:  repo,
		clock: clk,
		pub:   pub,
		log:   log,
		locks: newKeyLock(),
	}
}

// NextEndDate вычисляет новую дату окончания подписки после продления на days дней.
func NextEndDate(acc models.Account, days int, now time.Time) time.Time {
	end := acc.SubscriptionEndDate
	if acc.SubscriptionStatus == models.StatusActive && end != nil && end.After(now) {
		return end.AddDate(0, 0, days)
	}
	return now.AddDate(0, 0, days)
}

// Extend продлевает подписку учетной записи на days дней и возвращает новую
// дату окончания. Изменения одной учетной записи выполняются последовательно,
// а запись в хранилище условна: она применяется, только если дата окончания
// не изменилась с момента чтения.
func (l *Ledger) Extend(ctx context.Context, accountUID string, days int) (time.Time, error) {
	const op = "ledger.Extend"

	if accountUID == "" {
		return time.Time{}, ErrAccountIDRequired
	}
	if days < 1 {
		return time.Time{}, ErrInvalidDays
	}
	if days > MaxDays {
		return time.Time{}, ErrTooManyDays
	}

	log := l.log.With(slog.String("op", op), slog.String("account_uid", accountUID))

	unlock := l.locks.Lock(accountUID)
	defer unlock()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		acc, err := l.repo.GetAccount(ctx, accountUID)
		if err != nil {
			metrics.LedgerExtension("error")
			return time.Time{}, fmt.Errorf("%s: %w", op, err)
		}
		if acc.IsAdmin() {
			metrics.LedgerExtension("rejected")
			return time.Time{}, ErrAdminAccount
		}

		now := l.clock.Now()
		newEnd := NextEndDate(*acc, days, now)

		ok, err := l.repo.ExtendSubscription(ctx, accountUID, acc.SubscriptionEndDate, newEnd, now)
		if err != nil {
			metrics.LedgerExtension("error")
			return time.Time{}, fmt.Errorf("%s: %w", op, err)
		}
		if !ok {
			log.Warn("subscription changed concurrently, retrying", slog.Int("attempt", attempt))
			continue
		}

		metrics.LedgerExtension("ok")
		log.Info("subscription extended",
			slog.Int("days", days),
			slog.String("previous_status", acc.SubscriptionStatus),
			slog.Time("end_date", newEnd))
		l.notify(ctx, log, acc, newEnd, now)
		return newEnd, nil
	}

	metrics.LedgerExtension("conflict")
	return time.Time{}, fmt.Errorf("%s: %w", op, ErrConcurrentUpdate)
}

func (l *Ledger) notify(ctx context.Context, log *slog.Logger, acc *models.Account, end, now time.Time) {
	if l.pub == nil {
		return
	}
	msg := models.Notification{
		Type:          models.NotificationSubscriptionExtended,
		AccountUID:    acc.UID,
		Email:         acc.Email,
		EndsAt:        end,
		DaysRemaining: entitlement.DaysUntil(end, now),
	}
	if err := l.pub.Publish(ctx, models.NotificationSubscriptionExtended, msg); err != nil {
		log.Warn("failed to publish extension event", sl.Err(err))
	}
}
