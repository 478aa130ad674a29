// Package models содержит доменные структуры платформы: учетную запись
// преподавателя, уроки, награды и служебные типы для уведомлений и оплаты.
package models

import "time"

const (
	// RoleAdmin: администратор, всегда имеет доступ.
	RoleAdmin = "admin"
	// RoleTeacher: обычная учетная запись преподавателя.
	RoleTeacher = "teacher"
)

const (
	// StatusTrial: пробный период.
	StatusTrial = "trial"
	// StatusActive: оплаченная подписка.
	StatusActive = "active"
)

// Account представляет учетную запись пользователя платформы.
// SubscriptionEndDate имеет смысл только при статусе active,
// LastPaymentDate носит справочный характер.
type Account struct {
	UID                 string     `json:"uid"`
	Email               string     `json:"email"`
	Name                string     `json:"name"`
	PasswordHash        string     `json:"-"`
	Role                string     `json:"role"`
	SubscriptionStatus  string     `json:"subscription_status"`
	TrialStartDate      time.Time  `json:"trial_start_date"`
	SubscriptionEndDate *time.Time `json:"subscription_end_date,omitempty"`
	LastPaymentDate     *time.Time `json:"last_payment_date,omitempty"`
	IsActive            bool       `json:"is_active"`
	CreatedAt           time.Time  `json:"created_at"`
}

// IsAdmin сообщает, является ли учетная запись администраторской.
func (a Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// PaymentInfo содержит реквизиты для продления подписки, которые получает клиент
// при отказе в доступе.
type PaymentInfo struct {
	Price    int    `json:"price" yaml:"price" env:"PAYMENT_PRICE"`
	Currency string `json:"currency" yaml:"currency" env:"PAYMENT_CURRENCY"`
	Phone    string `json:"phone" yaml:"phone" env:"PAYMENT_PHONE"`
	Card     string `json:"card,omitempty" yaml:"card" env:"PAYMENT_CARD"`
	Message  string `json:"message" yaml:"message" env:"PAYMENT_MESSAGE"`
}
