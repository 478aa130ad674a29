package models

import "time"

const (
	// NotificationTrialExpiring: пробный период скоро закончится.
	NotificationTrialExpiring = "trial.expiring"
	// NotificationSubscriptionExtended: подписка продлена.
	NotificationSubscriptionExtended = "subscription.extended"
)

// Notification описывает сообщение, публикуемое в брокер для сервиса рассылок.
type Notification struct {
	Type          string    `json:"type"`
	AccountUID    string    `json:"account_uid"`
	Email         string    `json:"email"`
	EndsAt        time.Time `json:"ends_at"`
	DaysRemaining int       `json:"days_remaining"`
}
