package learnhub

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/learnhub/internal/access"
	"github.com/magabrotheeeer/learnhub/internal/config"
	// Регистрация описания API для swagger UI.
	_ "github.com/magabrotheeeer/learnhub/internal/docs"
	"github.com/magabrotheeeer/learnhub/internal/http/handlers/account/profile"
	"github.com/magabrotheeeer/learnhub/internal/http/handlers/admin/extend"
	"github.com/magabrotheeeer/learnhub/internal/http/handlers/auth/login"
	"github.com/magabrotheeeer/learnhub/internal/http/handlers/auth/register"
	"github.com/magabrotheeeer/learnhub/internal/http/handlers/health"
	lessoncreate "github.com/magabrotheeeer/learnhub/internal/http/handlers/lessons/create"
	lessonlist "github.com/magabrotheeeer/learnhub/internal/http/handlers/lessons/list"
	lessonremove "github.com/magabrotheeeer/learnhub/internal/http/handlers/lessons/remove"
	rewardcreate "github.com/magabrotheeeer/learnhub/internal/http/handlers/rewards/create"
	rewardlist "github.com/magabrotheeeer/learnhub/internal/http/handlers/rewards/list"
	rewardremove "github.com/magabrotheeeer/learnhub/internal/http/handlers/rewards/remove"
	"github.com/magabrotheeeer/learnhub/internal/http/middlewarectx"
	"github.com/magabrotheeeer/learnhub/internal/ledger"
	"github.com/magabrotheeeer/learnhub/internal/lib/clock"
	"github.com/magabrotheeeer/learnhub/internal/metrics"
	"github.com/magabrotheeeer/learnhub/internal/models"
	authservice "github.com/magabrotheeeer/learnhub/internal/services/auth"
	"github.com/magabrotheeeer/learnhub/internal/services/catalog"
)

// Services собирает зависимости HTTP-слоя.
type Services struct {
	Gate    *access.Gate
	Auth    *authservice.Service
	Catalog *catalog.Service
	Ledger  *ledger.Ledger
	DB      health.Pinger
	Clock   clock.Clock
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, svc Services, httpCfg config.HTTPServer) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
		metrics.InstrumentHandler,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Post("/register", register.New(logger, svc.Auth).ServeHTTP)
		r.Post("/login", login.New(logger, svc.Auth).ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.Authenticate(logger, svc.Gate))
			r.Use(middlewarectx.RateLimitMiddleware(logger, httpCfg.RateLimit, httpCfg.RateBurst))

			// Профиль доступен и без подписки.
			r.Get("/profile", profile.New(logger, svc.Gate.PaymentInfo()).ServeHTTP)

			r.Group(func(r chi.Router) {
				r.Use(middlewarectx.RequireEntitlement(logger, svc.Gate, models.RoleTeacher, models.RoleAdmin))

				r.Get("/lessons", lessonlist.New(logger, svc.Catalog).ServeHTTP)
				r.Post("/lessons", lessoncreate.New(logger, svc.Catalog).ServeHTTP)
				r.Delete("/lessons/{id}", lessonremove.New(logger, svc.Catalog).ServeHTTP)

				r.Get("/rewards", rewardlist.New(logger, svc.Catalog).ServeHTTP)
				r.Post("/rewards", rewardcreate.New(logger, svc.Catalog).ServeHTTP)
				r.Delete("/rewards/{id}", rewardremove.New(logger, svc.Catalog).ServeHTTP)
			})

			r.Group(func(r chi.Router) {
				r.Use(middlewarectx.RequireRole(logger, svc.Gate, models.RoleAdmin))
				r.Post("/admin/accounts/{uid}/extend", extend.New(logger, svc.Ledger, svc.Clock).ServeHTTP)
			})
		})
	})

	r.Get("/health", health.New(logger, svc.DB).ServeHTTP)
	r.Handle("/metrics", metrics.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
