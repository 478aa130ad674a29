package remove

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/learnhub/internal/http/middlewarectx"
	"github.com/magabrotheeeer/learnhub/internal/http/response"
	"github.com/magabrotheeeer/learnhub/internal/lib/sl"
	"github.com/magabrotheeeer/learnhub/internal/storage/repository"
)

type Handler struct {
	log     *slog.Logger
	service Service
}

type Service interface {
	RemoveLesson(ctx context.Context, ownerUID string, id int) error
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Удалить урок
// @Tags Lessons
// @Produce  json
// @Security BearerAuth
// @Param id path int true "ID урока"
// @Success 200 {object} response.Response "Урок удален"
// @Failure 400 {object} response.ErrorResponse "Некорректный ID"
// @Failure 404 {object} response.ErrorResponse "Урок не найден"
// @Router /lessons/{id} [delete]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.lessons.remove"

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

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		log.Info("invalid id format", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid id"))
		return
	}

	err = h.service.RemoveLesson(r.Context(), acc.UID, id)
	if errors.Is(err, repository.ErrNotFound) {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("lesson not found"))
		return
	}
	if err != nil {
		log.Error("failed to delete lesson", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to delete lesson"))
		return
	}

	log.Info("lesson deleted", slog.Int("id", id))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"deleted_id": id,
	}))
}
