package middlewarectx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/learnhub/internal/access"
	"github.com/magabrotheeeer/learnhub/internal/entitlement"
	"github.com/magabrotheeeer/learnhub/internal/http/response"
	"github.com/magabrotheeeer/learnhub/internal/lib/sl"
	"github.com/magabrotheeeer/learnhub/internal/models"
)

// Gate выполняет проверку доступа для middleware.
type Gate interface {
	Authenticate(ctx context.Context, authHeader string) (*access.Decision, error)
	Authorize(d *access.Decision, req access.Requirement) error
}

// PaymentRequired описывает тело ответа 402.
type PaymentRequired struct {
	Status        string             `json:"status"`
	DaysRemaining int                `json:"days_remaining"`
	PaymentInfo   models.PaymentInfo `json:"payment_info"`
}

// Authenticate проверяет токен и учетную запись и кладет результат в контекст.
func Authenticate(log *slog.Logger, gate Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.Authenticate"
			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			d, err := gate.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				WriteAccessError(w, r, log, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithDecision(r.Context(), d)))
		})
	}
}

// Require пропускает запрос, только если он удовлетворяет req.
// Должен стоять после Authenticate.
func Require(log *slog.Logger, gate Gate, req access.Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.Require"
			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			d, ok := decisionFromContext(r.Context())
			if !ok {
				WriteAccessError(w, r, log, access.ErrUnauthenticated)
				return
			}
			if err := gate.Authorize(d, req); err != nil {
				WriteAccessError(w, r, log, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole пропускает только перечисленные роли.
func RequireRole(log *slog.Logger, gate Gate, roles ...string) func(http.Handler) http.Handler {
	return Require(log, gate, access.Requirement{Roles: roles})
}

// RequireEntitlement пропускает перечисленные роли с действующим доступом.
func RequireEntitlement(log *slog.Logger, gate Gate, roles ...string) func(http.Handler) http.Handler {
	return Require(log, gate, access.Requirement{Roles: roles, Entitled: true})
}

// WriteAccessError переводит ошибку проверки доступа в HTTP-ответ.
// Причина отказа в аутентификации клиенту не раскрывается.
func WriteAccessError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	var entErr *access.EntitlementError
	switch {
	case errors.Is(err, access.ErrUnauthenticated), errors.Is(err, access.ErrTokenInvalid):
		log.Info("request not authenticated", sl.Err(err))
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
	case errors.Is(err, access.ErrAccountMissing):
		log.Info("account not found", sl.Err(err))
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("account not found"))
	case errors.Is(err, access.ErrAccountDeactivated):
		log.Info("account deactivated", sl.Err(err))
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, response.Error("account deactivated"))
	case errors.Is(err, access.ErrInsufficientRole):
		log.Info("insufficient role", sl.Err(err))
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, response.Error("insufficient role"))
	case errors.As(err, &entErr):
		log.Info("subscription required",
			slog.String("status", entErr.Result.Status),
			slog.Int("days_remaining", entErr.Result.DaysRemaining))
		render.Status(r, http.StatusPaymentRequired)
		render.JSON(w, r, response.ErrorWithData("subscription required", paymentRequired(entErr.Result, entErr.PaymentInfo)))
	default:
		log.Error("failed to check access", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
	}
}

func paymentRequired(res entitlement.Result, info models.PaymentInfo) PaymentRequired {
	return PaymentRequired{
		Status:        res.Status,
		DaysRemaining: res.DaysRemaining,
		PaymentInfo:   info,
	}
}
