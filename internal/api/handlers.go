package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/clinic-reconciler/internal/appointment"
	redisclient "github.com/hackgods/clinic-reconciler/internal/redis"
	"github.com/hackgods/clinic-reconciler/internal/session"
)

// refreshHandler requires a full session: a refresh without a calendar
// credential would reset the user's published collection.
func refreshHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sess, _ := session.FromContext(r.Context()); !sess.Valid() {
			handleServiceError(w, appointment.ErrNotAuthenticated)
			return
		}

		if err := svc.Refresh(r.Context()); err != nil {
			handleServiceError(w, err)
			return
		}

		snap, err := svc.Snapshot(r.Context())
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newAppointmentsResponse(snap, snap.Appointments))
	}
}

func listAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := svc.Snapshot(r.Context())
		if err != nil {
			handleServiceError(w, err)
			return
		}

		appts := snap.Appointments
		if calID := r.URL.Query().Get("calendar_id"); calID != "" {
			appts = filterByCalendar(appts, calID)
		}
		if status := r.URL.Query().Get("status"); status != "" {
			s := appointment.AppointmentStatus(status)
			if !s.Valid() {
				writeError(w, http.StatusBadRequest, "invalid_status", "status must be scheduled, completed or cancelled")
				return
			}
			appts = filterByStatus(appts, s)
		}

		writeJSON(w, http.StatusOK, newAppointmentsResponse(snap, appts))
	}
}

func bucketsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, snap, err := svc.Buckets(r.Context())
		if err != nil {
			handleServiceError(w, err)
			return
		}

		if calID := r.URL.Query().Get("calendar_id"); calID != "" {
			b = appointment.Buckets{
				Today:     filterByCalendar(b.Today, calID),
				Upcoming:  filterByCalendar(b.Upcoming, calID),
				Past:      filterByCalendar(b.Past, calID),
				Completed: filterByCalendar(b.Completed, calID),
				Cancelled: filterByCalendar(b.Cancelled, calID),
			}
		}

		writeJSON(w, http.StatusOK, BucketsResponse{
			Buckets:     b,
			LastError:   snap.LastError,
			ErrorKind:   snap.ErrorKind,
			RefreshedAt: refreshedAt(snap),
		})
	}
}

func icsFeedHandler(svc AppointmentService, name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := svc.Snapshot(r.Context())
		if err != nil {
			handleServiceError(w, err)
			return
		}

		appts := snap.Appointments
		if calID := r.URL.Query().Get("calendar_id"); calID != "" {
			appts = filterByCalendar(appts, calID)
		}

		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(appointment.ExportICS(appts, name, time.Now()))); err != nil {
			log.Printf("failed to write ics feed: %v", err)
		}
	}
}

func listCalendarsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cals, err := svc.Calendars(r.Context())
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]CalendarResponse, 0, len(cals))
		for _, c := range cals {
			resp = append(resp, CalendarResponse{ID: c.ID, Summary: c.Summary})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func createAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.Start.IsZero() || req.End.IsZero() {
			writeError(w, http.StatusBadRequest, "invalid_schedule", "start and end are required RFC3339 timestamps")
			return
		}

		id, err := svc.Create(r.Context(), appointment.CreateRequest{
			CalendarID:   req.CalendarID,
			PatientName:  req.PatientName,
			PatientEmail: strings.TrimSpace(req.PatientEmail),
			PatientPhone: strings.TrimSpace(req.PatientPhone),
			Type:         appointment.AppointmentType(req.Type),
			Start:        req.Start,
			End:          req.End,
			Notes:        req.Notes,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, CreateAppointmentResponse{ID: id})
	}
}

func rescheduleHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.Start.IsZero() || req.End.IsZero() {
			writeError(w, http.StatusBadRequest, "invalid_schedule", "start and end are required RFC3339 timestamps")
			return
		}

		if err := svc.Reschedule(r.Context(), id, req.Start, req.End); err != nil {
			handleServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// statusHandler serves the body-less status transitions: cancel, reactivate
// and complete.
func statusHandler(op func(ctx context.Context, id string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := op(r.Context(), chi.URLParam(r, "id")); err != nil {
			handleServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func paymentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req PaymentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		already, err := svc.RecordPayment(r.Context(), id, req.Amount, req.IsInsurance)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		status := http.StatusCreated
		if already {
			status = http.StatusOK
		}
		writeJSON(w, status, PaymentResponse{AppointmentID: id, AlreadyCompleted: already})
	}
}

// handleServiceError maps sentinel errors first, then the classified kind.
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, "not_authenticated", "Authorization bearer token and X-User-ID are required")
		return
	case errors.Is(err, appointment.ErrInvalidSchedule):
		writeError(w, http.StatusBadRequest, "invalid_schedule", err.Error())
		return
	case errors.Is(err, appointment.ErrInvalidPayment):
		writeError(w, http.StatusBadRequest, "invalid_payment", err.Error())
		return
	case errors.Is(err, appointment.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "invalid_request", unwrapMessage(err))
		return
	case errors.Is(err, appointment.ErrMissingCalendarID):
		writeError(w, http.StatusBadRequest, "missing_calendar_id", err.Error())
		return
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", "appointment has not been synced yet")
		return
	case errors.Is(err, appointment.ErrEventNotFound):
		writeError(w, http.StatusNotFound, "event_not_found", err.Error())
		return
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "appointment_busy", "appointment is being changed, please retry shortly")
		return
	}

	var ue *appointment.UserError
	if !errors.As(err, &ue) {
		log.Printf("unclassified service error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	switch ue.Kind {
	case appointment.KindAuth:
		writeError(w, http.StatusUnauthorized, "session_expired", ue.Message)
	case appointment.KindPermission:
		writeError(w, http.StatusForbidden, "permission_denied", ue.Message)
	case appointment.KindConfiguration:
		writeError(w, http.StatusUnprocessableEntity, "configuration_error", ue.Message)
	default:
		writeError(w, http.StatusBadGateway, "calendar_error", ue.Message)
	}
}

// unwrapMessage drops the UserError wrapper so validation details survive.
func unwrapMessage(err error) string {
	var ue *appointment.UserError
	if errors.As(err, &ue) && ue.Err != nil {
		return ue.Err.Error()
	}
	return err.Error()
}

func newAppointmentsResponse(snap appointment.Snapshot, appts []appointment.Appointment) AppointmentsResponse {
	if appts == nil {
		appts = []appointment.Appointment{}
	}
	return AppointmentsResponse{
		Appointments: appts,
		LastError:    snap.LastError,
		ErrorKind:    snap.ErrorKind,
		RefreshedAt:  refreshedAt(snap),
	}
}

func refreshedAt(snap appointment.Snapshot) *time.Time {
	if snap.RefreshedAt.IsZero() {
		return nil
	}
	t := snap.RefreshedAt
	return &t
}

func filterByCalendar(appts []appointment.Appointment, calendarID string) []appointment.Appointment {
	out := make([]appointment.Appointment, 0, len(appts))
	for _, a := range appts {
		if a.Doctor.CalendarID == calendarID {
			out = append(out, a)
		}
	}
	return out
}

func filterByStatus(appts []appointment.Appointment, status appointment.AppointmentStatus) []appointment.Appointment {
	out := make([]appointment.Appointment, 0, len(appts))
	for _, a := range appts {
		if a.Status == status {
			out = append(out, a)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
