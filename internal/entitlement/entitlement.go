// Package entitlement вычисляет, есть ли у учетной записи доступ к платному
// функционалу прямо сейчас, и сколько дней доступа осталось.
//
// Все функции пакета чистые: состояние не хранится, время передается явно.
package entitlement

import (
	"time"

	"github.com/magabrotheeeer/learnhub/internal/models"
)

const (
	// TrialPeriod задает длительность пробного периода от даты создания учетной записи.
	TrialPeriod = 7 * 24 * time.Hour
	// AdminDaysRemaining задает остаток дней, который сообщается для администраторов.
	AdminDaysRemaining = 999

	// StatusAdmin: статус доступа администратора.
	StatusAdmin = "admin"
	// StatusNone: у учетной записи нет распознаваемого статуса подписки.
	StatusNone = "none"

	day = 24 * time.Hour
)

// Result содержит итог проверки доступа.
type Result struct {
	IsEntitled    bool   `json:"is_entitled"`
	Status        string `json:"status"`
	DaysRemaining int    `json:"days_remaining"`
}

// Evaluate определяет доступ учетной записи на момент now.
//
// Администратор имеет доступ всегда. Пробный период длится TrialPeriod от
// TrialStartDate. Активная подписка действует до SubscriptionEndDate.
// Нулевые или отсутствующие даты считаются отсутствием даты окончания.
func Evaluate(acc models.Account, now time.Time) Result {
	if acc.IsAdmin() {
		return Result{IsEntitled: true, Status: StatusAdmin, DaysRemaining: AdminDaysRemaining}
	}

	switch acc.SubscriptionStatus {
	case models.StatusTrial:
		if acc.TrialStartDate.IsZero() {
			return Result{Status: models.StatusTrial}
		}
		return window(models.StatusTrial, TrialEndDate(acc), now)
	case models.StatusActive:
		if acc.SubscriptionEndDate == nil || acc.SubscriptionEndDate.IsZero() {
			return Result{Status: models.StatusActive}
		}
		return window(models.StatusActive, *acc.SubscriptionEndDate, now)
	default:
		return Result{Status: StatusNone}
	}
}

// TrialEndDate возвращает момент окончания пробного периода.
func TrialEndDate(acc models.Account) time.Time {
	return acc.TrialStartDate.Add(TrialPeriod)
}

// DaysUntil возвращает число дней до end, округленное вверх по миллисекундам.
// Любой положительный остаток дает как минимум 1 день, истекший срок дает 0.
func DaysUntil(end, now time.Time) int {
	ms := end.Sub(now).Milliseconds()
	if ms <= 0 {
		return 0
	}
	dayMs := day.Milliseconds()
	return int((ms + dayMs - 1) / dayMs)
}

func window(status string, end, now time.Time) Result {
	return Result{
		IsEntitled:    now.Before(end),
		Status:        status,
		DaysRemaining: DaysUntil(end, now),
	}
}
