// Package middlewarectx содержит HTTP middleware проверки доступа и
// помещает проверенную учетную запись в контекст запроса.
package middlewarectx

import (
	"context"

	"github.com/magabrotheeeer/learnhub/internal/access"
	"github.com/magabrotheeeer/learnhub/internal/entitlement"
	"github.com/magabrotheeeer/learnhub/internal/models"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

// DecisionKey хранит ключ результата аутентификации в контексте.
const DecisionKey Key = "access_decision"

// WithDecision кладет результат аутентификации в контекст.
func WithDecision(ctx context.Context, d *access.Decision) context.Context {
	return context.WithValue(ctx, DecisionKey, d)
}

func decisionFromContext(ctx context.Context) (*access.Decision, bool) {
	d, ok := ctx.Value(DecisionKey).(*access.Decision)
	return d, ok && d != nil && d.Account != nil
}

// AccountFromContext возвращает аутентифицированную учетную запись.
func AccountFromContext(ctx context.Context) (*models.Account, bool) {
	d, ok := decisionFromContext(ctx)
	if !ok {
		return nil, false
	}
	return d.Account, true
}

// EntitlementFromContext возвращает доступ учетной записи на момент запроса.
func EntitlementFromContext(ctx context.Context) (entitlement.Result, bool) {
	d, ok := decisionFromContext(ctx)
	if !ok {
		return entitlement.Result{}, false
	}
	return d.Entitlement, true
}
