package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/tour-booking-dashboard/internal/idempotency"
	"github.com/robertarktes/tour-booking-dashboard/internal/observability"
	"github.com/robertarktes/tour-booking-dashboard/internal/rateLimit"
)

// SetupRouter mounts the API. rl and idemp are optional; both need redis.
func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter, idemp *idempotency.Idempotency) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/v1/views", func(r chi.Router) {
		if rl != nil {
			r.Use(RateLimitMiddleware(rl))
		}
		if idemp != nil {
			r.With(IdempotencyMiddleware(idemp)).Post("/", h.OpenView)
		} else {
			r.Post("/", h.OpenView)
		}

		r.Route("/{id}", func(r chi.Router) {
			r.Delete("/", h.CloseView)
			r.Get("/dashboard", h.GetDashboard)
			r.Put("/dashboard/year", h.SetYear)
			r.Post("/bookings/reload", h.ReloadBookings)
			r.Post("/bookings/filter", h.FilterBookings)
			r.Post("/bookings/search", h.SearchBookings)
			r.Get("/bookings", h.ListBookings)
			r.Get("/bookings/{bookingID}", h.GetBooking)
		})
	})

	return r
}
