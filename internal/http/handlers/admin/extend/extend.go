// Package extend реализует продление подписки администратором.
package extend

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"
	"github.com/google/uuid"

	"github.com/magabrotheeeer/learnhub/internal/entitlement"
	"github.com/magabrotheeeer/learnhub/internal/http/response"
	"github.com/magabrotheeeer/learnhub/internal/ledger"
	"github.com/magabrotheeeer/learnhub/internal/lib/clock"
	"github.com/magabrotheeeer/learnhub/internal/lib/sl"
	"github.com/magabrotheeeer/learnhub/internal/storage/repository"
)

// Request задает, на сколько дней продлить подписку.
type Request struct {
	Days int `json:"days" validate:"required,min=1,max=36500"`
}

// Result содержит новую дату окончания подписки.
type Result struct {
	AccountUID          string    `json:"uid"`
	SubscriptionEndDate time.Time `json:"subscription_end_date"`
	DaysRemaining       int       `json:"days_remaining"`
}

// Ledger продлевает подписки.
type Ledger interface {
	Extend(ctx context.Context, accountUID string, days int) (time.Time, error)
}

// Handler обрабатывает продление.
type Handler struct {
	log      *slog.Logger
	ledger   Ledger
	clock    clock.Clock
	validate *validator.Validate
}

// New создает Handler.
func New(log *slog.Logger, l Ledger, clk clock.Clock) *Handler {
	return &Handler{
		log:      log,
		ledger:   l,
		clock:    clk,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Продлить подписку
// @Description Продлевает подписку преподавателя на days дней. Неистекшая подписка продлевается от текущей даты окончания, иначе от текущего момента.
// @Tags Admin
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param uid path string true "UID учетной записи"
// @Param request body Request true "Число дней"
// @Success 200 {object} response.Response "Новая дата окончания"
// @Failure 400 {object} response.ErrorResponse "Некорректный запрос"
// @Failure 403 {object} response.ErrorResponse "Недостаточно прав"
// @Failure 404 {object} response.ErrorResponse "Учетная запись не найдена"
// @Failure 409 {object} response.ErrorResponse "Учетная запись администратора или конфликт обновления"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /admin/accounts/{uid}/extend [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.extend"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	uid, err := uuid.Parse(chi.URLParam(r, "uid"))
	if err != nil {
		log.Info("invalid account uid", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid account uid"))
		return
	}

	var req Request
	if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Info("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err = h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			log.Info("validation failed", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationError(verrs))
			return
		}
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	end, err := h.ledger.Extend(r.Context(), uid.String(), req.Days)
	switch {
	case err == nil:
	case errors.Is(err, ledger.ErrValidation):
		log.Info("extension rejected", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error(err.Error()))
		return
	case errors.Is(err, repository.ErrAccountNotFound):
		log.Info("account not found", slog.String("uid", uid.String()))
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("account not found"))
		return
	case errors.Is(err, ledger.ErrAdminAccount):
		log.Info("attempt to extend admin account", slog.String("uid", uid.String()))
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, response.Error("admin accounts have no subscription"))
		return
	case errors.Is(err, ledger.ErrConcurrentUpdate):
		log.Warn("extension lost to concurrent updates", sl.Err(err))
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, response.Error("subscription was modified concurrently, retry"))
		return
	default:
		log.Error("failed to extend subscription", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to extend subscription"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(Result{
		AccountUID:          uid.String(),
		SubscriptionEndDate: end,
		DaysRemaining:       entitlement.DaysUntil(end, h.clock.Now()),
	}))
}
