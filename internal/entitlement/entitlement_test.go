package entitlement_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/magabrotheeeer/learnhub/internal/entitlement"
	"github.com/magabrotheeeer/learnhub/internal/models"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func ptr(t time.Time) *time.Time { return &t }

func TestEvaluate_Admin(t *testing.T) {
	past := t0.AddDate(-1, 0, 0)
	tests := []struct {
		name string
		acc  models.Account
	}{
		{name: "no subscription fields", acc: models.Account{Role: models.RoleAdmin}},
		{name: "expired trial", acc: models.Account{Role: models.RoleAdmin, SubscriptionStatus: models.StatusTrial, TrialStartDate: past}},
		{name: "expired active", acc: models.Account{Role: models.RoleAdmin, SubscriptionStatus: models.StatusActive, SubscriptionEndDate: ptr(past)}},
		{name: "unknown status", acc: models.Account{Role: models.RoleAdmin, SubscriptionStatus: "canceled"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := entitlement.Evaluate(tt.acc, t0)
			assert.True(t, res.IsEntitled)
			assert.Equal(t, entitlement.StatusAdmin, res.Status)
			assert.Equal(t, entitlement.AdminDaysRemaining, res.DaysRemaining)
		})
	}
}

func TestEvaluate_Trial(t *testing.T) {
	acc := models.Account{Role: models.RoleTeacher, SubscriptionStatus: models.StatusTrial, TrialStartDate: t0}

	tests := []struct {
		name         string
		now          time.Time
		wantEntitled bool
		wantDays     int
	}{
		{name: "just created", now: t0, wantEntitled: true, wantDays: 7},
		{name: "one minute in", now: t0.Add(time.Minute), wantEntitled: true, wantDays: 7},
		{name: "six days 23 hours", now: t0.Add(6*24*time.Hour + 23*time.Hour), wantEntitled: true, wantDays: 1},
		{name: "one millisecond left", now: t0.Add(entitlement.TrialPeriod - time.Millisecond), wantEntitled: true, wantDays: 1},
		{name: "exactly seven days", now: t0.Add(entitlement.TrialPeriod), wantEntitled: false, wantDays: 0},
		{name: "long expired", now: t0.AddDate(0, 1, 0), wantEntitled: false, wantDays: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := entitlement.Evaluate(acc, tt.now)
			assert.Equal(t, tt.wantEntitled, res.IsEntitled)
			assert.Equal(t, tt.wantDays, res.DaysRemaining)
			assert.Equal(t, models.StatusTrial, res.Status)
		})
	}
}

func TestEvaluate_TrialIgnoresEndDate(t *testing.T) {
	acc := models.Account{
		Role:                models.RoleTeacher,
		SubscriptionStatus:  models.StatusTrial,
		TrialStartDate:      t0,
		SubscriptionEndDate: ptr(t0.AddDate(1, 0, 0)),
	}
	res := entitlement.Evaluate(acc, t0.AddDate(0, 0, 10))
	assert.False(t, res.IsEntitled)
	assert.Equal(t, 0, res.DaysRemaining)
}

func TestEvaluate_Active(t *testing.T) {
	end := t0.AddDate(0, 0, 30)
	acc := models.Account{Role: models.RoleTeacher, SubscriptionStatus: models.StatusActive, SubscriptionEndDate: &end}

	res := entitlement.Evaluate(acc, end.Add(-time.Millisecond))
	assert.True(t, res.IsEntitled)
	assert.Equal(t, 1, res.DaysRemaining)

	res = entitlement.Evaluate(acc, end)
	assert.False(t, res.IsEntitled)
	assert.Equal(t, 0, res.DaysRemaining)
	assert.Equal(t, models.StatusActive, res.Status)

	res = entitlement.Evaluate(acc, t0)
	assert.True(t, res.IsEntitled)
	assert.Equal(t, 30, res.DaysRemaining)
}

func TestEvaluate_NotEntitled(t *testing.T) {
	tests := []struct {
		name       string
		acc        models.Account
		wantStatus string
	}{
		{name: "empty status", acc: models.Account{Role: models.RoleTeacher}, wantStatus: entitlement.StatusNone},
		{name: "unknown status", acc: models.Account{Role: models.RoleTeacher, SubscriptionStatus: "expired"}, wantStatus: entitlement.StatusNone},
		{name: "active without end date", acc: models.Account{Role: models.RoleTeacher, SubscriptionStatus: models.StatusActive}, wantStatus: models.StatusActive},
		{name: "active with zero end date", acc: models.Account{Role: models.RoleTeacher, SubscriptionStatus: models.StatusActive, SubscriptionEndDate: &time.Time{}}, wantStatus: models.StatusActive},
		{name: "trial without start date", acc: models.Account{Role: models.RoleTeacher, SubscriptionStatus: models.StatusTrial}, wantStatus: models.StatusTrial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := entitlement.Evaluate(tt.acc, t0)
			assert.False(t, res.IsEntitled)
			assert.Equal(t, 0, res.DaysRemaining)
			assert.Equal(t, tt.wantStatus, res.Status)
		})
	}
}

func TestDaysUntil(t *testing.T) {
	assert.Equal(t, 0, entitlement.DaysUntil(t0, t0))
	assert.Equal(t, 0, entitlement.DaysUntil(t0, t0.Add(time.Hour)))
	assert.Equal(t, 1, entitlement.DaysUntil(t0.Add(5*time.Minute), t0))
	assert.Equal(t, 1, entitlement.DaysUntil(t0.Add(24*time.Hour), t0))
	assert.Equal(t, 2, entitlement.DaysUntil(t0.Add(24*time.Hour+time.Millisecond), t0))
	// меньше миллисекунды не считается остатком
	assert.Equal(t, 0, entitlement.DaysUntil(t0.Add(time.Microsecond), t0))
}
