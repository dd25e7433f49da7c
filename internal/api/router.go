package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-booking/internal/notify"
)

type RouterConfig struct {
	Service    AppointmentService
	ResetCodes ResetCodeStore
	Users      UserFinder
	Notifier   notify.Sink
	Postgres   Checker
	Redis      Checker
	Logger     *zap.Logger
	Env        string
	Version    string
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", createAppointmentHandler(cfg.Service, logger))
		r.Get("/", listAppointmentsHandler(cfg.Service, logger))
		r.Get("/{id}", getAppointmentHandler(cfg.Service, logger))
		r.Post("/{id}/assign", assignAppointmentHandler(cfg.Service, logger))
		r.Post("/{id}/cancel", cancelAppointmentHandler(cfg.Service, logger))
		r.Post("/{id}/close", closeAppointmentHandler(cfg.Service, logger))
	})

	r.Get("/doctors/{id}/slots", availableSlotsHandler(cfg.Service, logger))
	r.Get("/doctors/{id}/slots/taken", slotTakenHandler(cfg.Service, logger))

	r.Post("/auth/password-reset/codes", issueResetCodeHandler(cfg.ResetCodes, cfg.Users, cfg.Notifier, logger))
	r.Post("/auth/password-reset/verify", verifyResetCodeHandler(cfg.ResetCodes, logger))

	return r
}
