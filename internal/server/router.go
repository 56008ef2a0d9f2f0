package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/mlm-platform/internal/common"
	"serotonyl.ru/mlm-platform/internal/features/accounts"
	"serotonyl.ru/mlm-platform/internal/features/binary"
	"serotonyl.ru/mlm-platform/internal/features/commission"
	"serotonyl.ru/mlm-platform/internal/features/investments"
	"serotonyl.ru/mlm-platform/internal/features/ledger"
	"serotonyl.ru/mlm-platform/internal/features/settings"
	"serotonyl.ru/mlm-platform/internal/metrics"
)

// Pinger: проверка живости хранилища для /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers: обработчики всех фич.
type Handlers struct {
	Accounts    *accounts.Handler
	Investments *investments.Handler
	Binary      *binary.Handler
	Ledger      *ledger.Handler
	Settings    *settings.Handler
	Commission  *commission.Handler
}

// Options: всё, что роутеру нужно кроме обработчиков.
type Options struct {
	CORSOrigins []string
	// AdminAuth закрывает /admin/*; nil: без проверки (только для тестов)
	AdminAuth func(http.Handler) http.Handler
	// Limiter ограничивает событийные маршруты; nil: без лимита
	Limiter *RateLimiter
	DB      Pinger
}

// NewRouter собирает chi-роутер со всеми маршрутами.
func NewRouter(h Handlers, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Admin-Password"},
		MaxAge:         300,
	}))

	r.Get("/healthz", healthz(opts.DB))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	events := func(next http.Handler) http.Handler { return next }
	if opts.Limiter != nil {
		events = opts.Limiter.Middleware
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/users", h.Accounts.HandleRegister)
		r.Get("/users/{id}", h.Accounts.HandleGet)
		r.Get("/users/{id}/ledger", h.Ledger.HandleHistory)
		r.Get("/users/{id}/minting", h.Investments.HandleListMinting)
		r.Get("/users/{id}/placement", h.Binary.HandleGet)

		r.Get("/packages", h.Investments.HandleListPackages)
		r.Post("/placements", h.Binary.HandlePlace)

		r.Group(func(r chi.Router) {
			r.Use(events)
			r.Post("/purchases", h.Commission.HandlePurchase)
			r.Post("/minting", h.Investments.HandleStartMinting)
			r.Post("/minting/click", h.Commission.HandleClick)
			r.Post("/minting/{id}/switch", h.Investments.HandleSwitch)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		if opts.AdminAuth != nil {
			r.Use(opts.AdminAuth)
		}
		r.Post("/packages", h.Investments.HandleCreatePackage)
		r.Get("/settings", h.Settings.HandleList)
		r.Put("/settings/{name}", h.Settings.HandlePut)
		r.Post("/users/{id}/adjust", h.Accounts.HandleAdjust)
		r.Post("/users/{id}/lock", h.Accounts.HandleLock)
		r.Post("/users/{id}/unlock", h.Accounts.HandleUnlock)
		r.Post("/deposits/approved", h.Commission.HandleDepositApproved)
		r.Get("/events/{eventID}", h.Ledger.HandleEvent)
	})

	return r
}

func healthz(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				log.WithError(err).Warn("Healthcheck: база недоступна")
				common.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "db unavailable"})
				return
			}
		}
		common.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
