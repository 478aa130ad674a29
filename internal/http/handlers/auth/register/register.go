// Package register реализует HTTP-обработчик регистрации преподавателя.
package register

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/learnhub/internal/http/response"
	"github.com/magabrotheeeer/learnhub/internal/lib/sl"
	"github.com/magabrotheeeer/learnhub/internal/models"
	"github.com/magabrotheeeer/learnhub/internal/storage/repository"
)

// Request — входные данные для регистрации.
type Request struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,max=100"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// Service описывает регистрацию учетной записи.
type Service interface {
	Register(ctx context.Context, email, name, password string) (*models.Account, error)
}

// Handler обрабатывает регистрацию.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Регистрация преподавателя
// @Description Создает учетную запись преподавателя с пробным периодом на 7 дней.
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param request body Request true "Данные учетной записи"
// @Success 201 {object} response.Response "Учетная запись создана"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 409 {object} response.ErrorResponse "Email уже зарегистрирован"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /register [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.register"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			log.Info("validation failed", sl.Err(err))
			render.Status(r, http.StatusUnprocessableEntity)
			render.JSON(w, r, response.ValidationError(verrs))
			return
		}
		log.Error("failed to validate request", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	acc, err := h.service.Register(r.Context(), req.Email, req.Name, req.Password)
	if errors.Is(err, repository.ErrEmailTaken) {
		log.Info("email already registered")
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, response.Error("email already registered"))
		return
	}
	if err != nil {
		log.Error("registration failed", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to register account"))
		return
	}

	log.Info("account registered", slog.String("uid", acc.UID))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.StatusOKWithData(acc))
}
