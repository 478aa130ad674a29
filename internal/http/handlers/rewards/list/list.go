package list

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/learnhub/internal/http/middlewarectx"
	"github.com/magabrotheeeer/learnhub/internal/http/response"
	"github.com/magabrotheeeer/learnhub/internal/lib/sl"
	"github.com/magabrotheeeer/learnhub/internal/models"
)

type Service interface {
	ListRewards(ctx context.Context, ownerUID string) ([]*models.Reward, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Список наград
// @Tags Rewards
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} response.Response "Награды"
// @Failure 401 {object} response.ErrorResponse "Не авторизован"
// @Failure 402 {object} response.Response "Нужна подписка"
// @Router /rewards [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.rewards.list"

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

	rewards, err := h.service.ListRewards(r.Context(), acc.UID)
	if err != nil {
		log.Error("failed to list rewards", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to list rewards"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(rewards))
}
