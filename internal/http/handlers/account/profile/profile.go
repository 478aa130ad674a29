// Package profile отдает учетную запись текущего пользователя вместе с ее доступом.
package profile

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/learnhub/internal/entitlement"
	"github.com/magabrotheeeer/learnhub/internal/http/middlewarectx"
	"github.com/magabrotheeeer/learnhub/internal/http/response"
	"github.com/magabrotheeeer/learnhub/internal/models"
)

// Profile описывает тело ответа. PaymentInfo заполняется только без действующего доступа.
type Profile struct {
	Account     *models.Account     `json:"account"`
	Entitlement entitlement.Result  `json:"entitlement"`
	PaymentInfo *models.PaymentInfo `json:"payment_info,omitempty"`
}

// Handler обрабатывает запрос профиля.
type Handler struct {
	log     *slog.Logger
	payment models.PaymentInfo
}

// New создает Handler.
func New(log *slog.Logger, payment models.PaymentInfo) *Handler {
	return &Handler{
		log:     log,
		payment: payment,
	}
}

// ServeHTTP godoc
// @Summary Профиль
// @Description Возвращает учетную запись и состояние подписки. Доступен и без оплаченной подписки.
// @Tags Account
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} response.Response "Профиль"
// @Failure 401 {object} response.ErrorResponse "Не авторизован"
// @Router /profile [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.account.profile"

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
	res, _ := middlewarectx.EntitlementFromContext(r.Context())

	p := Profile{Account: acc, Entitlement: res}
	if !res.IsEntitled {
		info := h.payment
		p.PaymentInfo = &info
	}
	render.JSON(w, r, response.StatusOKWithData(p))
}
