// Package access решает, можно ли пропустить запрос к защищенной операции.
//
// Проверка выполняется заново на каждом запросе: токен, учетная запись,
// флаг is_active, затем роль и доступ по подписке. Состояние между
// запросами не хранится, учетная запись не изменяется.
package access

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/magabrotheeeer/learnhub/internal/entitlement"
	"github.com/magabrotheeeer/learnhub/internal/lib/clock"
	"github.com/magabrotheeeer/learnhub/internal/lib/jwt"
	"github.com/magabrotheeeer/learnhub/internal/metrics"
	"github.com/magabrotheeeer/learnhub/internal/models"
	"github.com/magabrotheeeer/learnhub/internal/storage/repository"
)

var (
	// ErrUnauthenticated: в запросе нет bearer-токена.
	ErrUnauthenticated = errors.New("access: missing bearer token")
	// ErrTokenInvalid: токен не прошел проверку подписи или срока.
	ErrTokenInvalid = errors.New("access: invalid token")
	// ErrAccountMissing: учетная запись из токена не найдена.
	ErrAccountMissing = errors.New("access: account not found")
	// ErrAccountDeactivated: учетная запись отключена.
	ErrAccountDeactivated = errors.New("access: account deactivated")
	// ErrInsufficientRole: роль не входит в список разрешенных.
	ErrInsufficientRole = errors.New("access: insufficient role")
)

// Исходы проверки для метрик.
const (
	OutcomeUnauthenticated    = "unauthenticated"
	OutcomeTokenInvalid       = "token_invalid"
	OutcomeAccountMissing     = "account_missing"
	OutcomeAccountDeactivated = "account_deactivated"
	OutcomeInsufficientRole   = "insufficient_role"
	OutcomeNotEntitled        = "not_entitled"
	OutcomeAllowed            = "allowed"
	OutcomeAdminBypass        = "admin_bypass"
	OutcomeStoreError         = "store_error"
)

// EntitlementError возвращается на запрос к платной операции без действующего доступа.
// Содержит все, что нужно клиенту для предложения продления.
type EntitlementError struct {
	Result      entitlement.Result
	PaymentInfo models.PaymentInfo
}

func (e *EntitlementError) Error() string {
	return fmt.Sprintf("access: not entitled (status %s, %d days remaining)", e.Result.Status, e.Result.DaysRemaining)
}

// TokenParser проверяет токен и возвращает его claims.
type TokenParser interface {
	ParseToken(tokenStr string) (*jwt.Claims, error)
}

// AccountGetter загружает учетную запись по идентификатору.
type AccountGetter interface {
	GetAccount(ctx context.Context, uid string) (*models.Account, error)
}

// Decision хранит результат аутентификации.
type Decision struct {
	Account     *models.Account
	Entitlement entitlement.Result
}

// Requirement описывает ограничения маршрута. Пустой Roles разрешает любую роль.
type Requirement struct {
	Roles    []string
	Entitled bool
}

// Gate проверяет запросы.
type Gate struct {
	tokens   TokenParser
	accounts AccountGetter
	clock    clock.Clock
	payment  models.PaymentInfo
}

// New создает Gate.
func New(tokens TokenParser, accounts AccountGetter, clk clock.Clock, payment models.PaymentInfo) *Gate {
	return &Gate{
		tokens:   tokens,
		accounts: accounts,
		clock:    clk,
		payment:  payment,
	}
}

// PaymentInfo возвращает реквизиты продления подписки.
func (g *Gate) PaymentInfo() models.PaymentInfo {
	return g.payment
}

// Authenticate проверяет заголовок Authorization, загружает учетную запись
// и вычисляет ее доступ на текущий момент.
func (g *Gate) Authenticate(ctx context.Context, authHeader string) (*Decision, error) {
	const op = "access.Authenticate"

	token, ok := bearerToken(authHeader)
	if !ok {
		metrics.GateDecision(OutcomeUnauthenticated)
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthenticated)
	}

	claims, err := g.tokens.ParseToken(token)
	if err != nil {
		metrics.GateDecision(OutcomeTokenInvalid)
		return nil, fmt.Errorf("%s: %w: %w", op, ErrTokenInvalid, err)
	}

	acc, err := g.accounts.GetAccount(ctx, claims.AccountUID)
	if errors.Is(err, repository.ErrAccountNotFound) {
		metrics.GateDecision(OutcomeAccountMissing)
		return nil, fmt.Errorf("%s: %w", op, ErrAccountMissing)
	}
	if err != nil {
		metrics.GateDecision(OutcomeStoreError)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !acc.IsActive {
		metrics.GateDecision(OutcomeAccountDeactivated)
		return nil, fmt.Errorf("%s: %w", op, ErrAccountDeactivated)
	}

	return &Decision{
		Account:     acc,
		Entitlement: entitlement.Evaluate(*acc, g.clock.Now()),
	}, nil
}

// Authorize проверяет требования маршрута к уже аутентифицированному запросу.
// Роль проверяется раньше подписки.
func (g *Gate) Authorize(d *Decision, req Requirement) error {
	const op = "access.Authorize"

	if len(req.Roles) > 0 && !slices.Contains(req.Roles, d.Account.Role) {
		metrics.GateDecision(OutcomeInsufficientRole)
		return fmt.Errorf("%s: %w", op, ErrInsufficientRole)
	}

	if req.Entitled && !d.Entitlement.IsEntitled {
		metrics.GateDecision(OutcomeNotEntitled)
		return &EntitlementError{Result: d.Entitlement, PaymentInfo: g.payment}
	}

	if d.Account.IsAdmin() {
		metrics.GateDecision(OutcomeAdminBypass)
	} else {
		metrics.GateDecision(OutcomeAllowed)
	}
	return nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
