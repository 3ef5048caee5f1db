package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/clinic-reconciler/internal/appointment"
	"github.com/hackgods/clinic-reconciler/internal/calendar"
)

// AppointmentService is the reconciliation surface the handlers drive.
type AppointmentService interface {
	Refresh(ctx context.Context) error
	Snapshot(ctx context.Context) (appointment.Snapshot, error)
	Buckets(ctx context.Context) (appointment.Buckets, appointment.Snapshot, error)
	Calendars(ctx context.Context) ([]calendar.CalendarListEntry, error)
	Create(ctx context.Context, req appointment.CreateRequest) (string, error)
	Reschedule(ctx context.Context, id string, start, end time.Time) error
	Cancel(ctx context.Context, id string) error
	Reactivate(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string) error
	RecordPayment(ctx context.Context, id string, amount float64, isInsurance bool) (bool, error)
}

type RouterConfig struct {
	Service      AppointmentService
	Health       *HealthHandler
	CalendarName string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}

	r.Group(func(r chi.Router) {
		r.Use(SessionMiddleware)

		r.Post("/refresh", refreshHandler(cfg.Service))
		r.Get("/calendars", listCalendarsHandler(cfg.Service))

		r.Get("/appointments", listAppointmentsHandler(cfg.Service))
		r.Get("/appointments/buckets", bucketsHandler(cfg.Service))
		r.Get("/appointments.ics", icsFeedHandler(cfg.Service, cfg.CalendarName))
		r.Post("/appointments", createAppointmentHandler(cfg.Service))

		r.Route("/appointments/{id}", func(r chi.Router) {
			r.Post("/reschedule", rescheduleHandler(cfg.Service))
			r.Post("/cancel", statusHandler(cfg.Service.Cancel))
			r.Post("/reactivate", statusHandler(cfg.Service.Reactivate))
			r.Post("/complete", statusHandler(cfg.Service.MarkCompleted))
			r.Post("/payments", paymentHandler(cfg.Service))
		})
	})

	return r
}
