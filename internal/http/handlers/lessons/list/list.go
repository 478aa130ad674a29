// Package list отдает уроки текущего преподавателя.
package list

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/learnhub/internal/http/middlewarectx"
	"github.com/magabrotheeeer/learnhub/internal/http/response"
	"github.com/magabrotheeeer/learnhub/internal/lib/sl"
	"github.com/magabrotheeeer/learnhub/internal/models"
)

// Service описывает чтение уроков.
type Service interface {
	ListLessons(ctx context.Context, ownerUID string, onlyActive bool) ([]*models.Lesson, error)
}

// Handler обрабатывает запрос списка уроков.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Список уроков
// @Tags Lessons
// @Produce  json
// @Security BearerAuth
// @Param active query bool false "Только опубликованные"
// @Success 200 {object} response.Response "Уроки"
// @Failure 400 {object} response.ErrorResponse "Некорректный параметр"
// @Failure 401 {object} response.ErrorResponse "Не авторизован"
// @Failure 402 {object} response.Response "Нужна подписка"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /lessons [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.lessons.list"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	acc, ok := middlewarectx.AccountFromContext(r.Context())
	if !ok {
		log.Error("account not found in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	onlyActive := false
	if v := r.URL.Query().Get("active"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			log.Info("invalid active parameter", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("invalid active parameter"))
			return
		}
		onlyActive = parsed
	}

	lessons, err := h.service.ListLessons(r.Context(), acc.UID, onlyActive)
	if err != nil {
		log.Error("failed to list lessons", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to list lessons"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(lessons))
}
