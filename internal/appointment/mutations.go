package appointment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hackgods/clinic-reconciler/internal/calendar"
	"github.com/hackgods/clinic-reconciler/internal/session"
)

// Each mutation applies its external side effect, then the ledger update,
// then re-runs the refresh cycle. A failing re-run is reported through the
// snapshot's error slot, not to the mutation's caller.

func (s *Service) Reschedule(ctx context.Context, id string, start, end time.Time) error {
	if !start.Before(end) {
		return ClassifyError(ErrInvalidSchedule)
	}

	return s.mutate(ctx, id, func(ctx context.Context, sess session.Session) error {
		calID, err := s.locateEvent(ctx, sess.AccessToken, id)
		if err != nil {
			return err
		}

		patch := calendar.EventPatch{
			Start: calendar.NewEventDateTime(start, s.cfg.Location),
			End:   calendar.NewEventDateTime(end, s.cfg.Location),
		}
		if err := s.source.PatchEvent(ctx, sess.AccessToken, calID, id, patch); err != nil {
			return err
		}

		if err := s.ledger.UpdateSchedule(ctx, sess.UserID, id, start, end); err != nil {
			if err := tolerateMissingRow(err, id); err != nil {
				return err
			}
		}

		s.logEvent(ctx, sess.UserID, id, EventAppointmentRescheduled, map[string]any{
			"calendar_id": calID,
			"start":       start,
			"end":         end,
		})
		return nil
	})
}

func (s *Service) Cancel(ctx context.Context, id string) error {
	return s.setExternalStatus(ctx, id, calendar.EventCancelled, StatusCancelled, EventAppointmentCancelled)
}

func (s *Service) Reactivate(ctx context.Context, id string) error {
	return s.setExternalStatus(ctx, id, calendar.EventConfirmed, StatusScheduled, EventAppointmentReactivated)
}

func (s *Service) setExternalStatus(ctx context.Context, id, external string, local AppointmentStatus, eventType string) error {
	return s.mutate(ctx, id, func(ctx context.Context, sess session.Session) error {
		calID, err := s.locateEvent(ctx, sess.AccessToken, id)
		if err != nil {
			return err
		}

		if err := s.source.PatchEvent(ctx, sess.AccessToken, calID, id, calendar.EventPatch{Status: external}); err != nil {
			return err
		}

		if err := s.ledger.UpdateStatus(ctx, sess.UserID, id, local); err != nil {
			if err := tolerateMissingRow(err, id); err != nil {
				return err
			}
		}

		s.logEvent(ctx, sess.UserID, id, eventType, map[string]any{"calendar_id": calID})
		return nil
	})
}

// MarkCompleted is local only; the external event is left untouched.
func (s *Service) MarkCompleted(ctx context.Context, id string) error {
	return s.mutate(ctx, id, func(ctx context.Context, sess session.Session) error {
		if err := s.ledger.UpdateStatus(ctx, sess.UserID, id, StatusCompleted); err != nil {
			return err
		}
		s.logEvent(ctx, sess.UserID, id, EventAppointmentCompleted, map[string]any{})
		return nil
	})
}

// RecordPayment stores a payment and completes the appointment. A second
// payment for the same appointment is not an error: it reports
// alreadyCompleted and leaves the first payment in place.
func (s *Service) RecordPayment(ctx context.Context, id string, amount float64, isInsurance bool) (alreadyCompleted bool, err error) {
	if amount < 0 {
		return false, ClassifyError(ErrInvalidPayment)
	}

	err = s.mutate(ctx, id, func(ctx context.Context, sess session.Session) error {
		known, err := s.ledger.Statuses(ctx, sess.UserID, []string{id})
		if err != nil {
			return err
		}
		if _, ok := known[id]; !ok {
			return ErrAppointmentNotFound
		}

		p := Payment{
			UserID:        sess.UserID,
			AppointmentID: id,
			Amount:        amount,
			IsInsurance:   isInsurance,
		}
		if err := s.payments.InsertPayment(ctx, p); err != nil {
			if !errors.Is(err, ErrDuplicatePayment) {
				return err
			}
			log.Printf("payment already recorded for appointment %s, treating as completed", id)
			alreadyCompleted = true
		}

		if err := s.ledger.UpdateStatus(ctx, sess.UserID, id, StatusCompleted); err != nil {
			return err
		}
		if !alreadyCompleted {
			if err := s.ledger.SetBillingType(ctx, sess.UserID, id, p.BillingType()); err != nil {
				return err
			}
			s.logEvent(ctx, sess.UserID, id, EventAppointmentPaid, map[string]any{
				"amount":       amount,
				"is_insurance": isInsurance,
			})
		}
		return nil
	})
	return alreadyCompleted, err
}

// Create places a new event on the caller's chosen calendar. The ledger row
// appears on the next normalization pass.
func (s *Service) Create(ctx context.Context, req CreateRequest) (string, error) {
	if strings.TrimSpace(req.CalendarID) == "" {
		return "", ClassifyError(ErrMissingCalendarID)
	}
	if strings.TrimSpace(req.PatientName) == "" {
		return "", ClassifyError(fmt.Errorf("%w: patient name is required", ErrInvalidRequest))
	}
	if req.Type == "" {
		req.Type = TypeConsultation
	}
	if !req.Type.Valid() {
		return "", ClassifyError(fmt.Errorf("%w: unknown type %q", ErrInvalidRequest, req.Type))
	}
	if !req.Start.Before(req.End) {
		return "", ClassifyError(ErrInvalidSchedule)
	}

	sess, err := s.requireSession(ctx)
	if err != nil {
		return "", ClassifyError(err)
	}

	ev := BuildEvent(req, s.cfg.Location)
	id, err := s.source.CreateEvent(ctx, sess.AccessToken, req.CalendarID, ev)
	if err != nil {
		return "", ClassifyError(err)
	}

	s.logEvent(ctx, sess.UserID, id, EventAppointmentCreated, map[string]any{
		"calendar_id": req.CalendarID,
		"start":       req.Start,
		"end":         req.End,
	})

	s.rerun(ctx)
	return id, nil
}

// BuildEvent renders a CreateRequest as an external event payload whose
// title and description round trip through Normalize.
func BuildEvent(req CreateRequest, loc *time.Location) calendar.Event {
	name := strings.TrimSpace(req.PatientName)

	var desc strings.Builder
	fmt.Fprintf(&desc, "Paciente: %s\n", name)
	if req.PatientEmail != "" {
		fmt.Fprintf(&desc, "Email: %s\n", req.PatientEmail)
	}
	if req.PatientPhone != "" {
		fmt.Fprintf(&desc, "Telefone: %s\n", req.PatientPhone)
	}
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		desc.WriteString("\n")
		desc.WriteString(notes)
	}

	ev := calendar.Event{
		Summary:     fmt.Sprintf("%s - %s", req.Type.Label(), name),
		Description: strings.TrimRight(desc.String(), "\n"),
		Start:       calendar.NewEventDateTime(req.Start, loc),
		End:         calendar.NewEventDateTime(req.End, loc),
		Status:      calendar.EventConfirmed,
	}
	if req.PatientEmail != "" {
		ev.Attendees = []calendar.Attendee{{Email: req.PatientEmail, DisplayName: name}}
	}
	return ev
}

// mutate runs fn under a per appointment guard, then re-runs the cycle.
func (s *Service) mutate(ctx context.Context, id string, fn func(ctx context.Context, sess session.Session) error) error {
	if strings.TrimSpace(id) == "" {
		return ClassifyError(fmt.Errorf("%w: appointment id is required", ErrInvalidRequest))
	}

	sess, err := s.requireSession(ctx)
	if err != nil {
		return ClassifyError(err)
	}

	key := "appointment:" + sess.UserID + ":" + id
	err = s.locker.WithLock(ctx, key, s.cfg.MutationLockTTL, func(lockCtx context.Context) error {
		return fn(lockCtx, sess)
	})
	if err != nil {
		return ClassifyError(err)
	}

	s.rerun(ctx)
	return nil
}

// rerun runs a cycle that starts after the mutation's writes, so the
// published snapshot reflects them.
func (s *Service) rerun(ctx context.Context) {
	if err := s.refresh(ctx, true); err != nil {
		log.Printf("post-mutation refresh failed: %v", err)
	}
}

// locateEvent probes every clinical calendar for the event and returns the
// first calendar, in list order, that holds it.
func (s *Service) locateEvent(ctx context.Context, token, eventID string) (string, error) {
	clinical, err := s.clinicalCalendars(ctx, token)
	if err != nil {
		return "", err
	}

	found := make([]bool, len(clinical))

	g, gctx := errgroup.WithContext(ctx)
	for i, cal := range clinical {
		g.Go(func() error {
			_, err := s.source.GetEvent(gctx, token, cal.ID, eventID)
			if errors.Is(err, calendar.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			found[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	for i, ok := range found {
		if ok {
			return clinical[i].ID, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
}

func tolerateMissingRow(err error, id string) error {
	if errors.Is(err, ErrAppointmentNotFound) {
		log.Printf("ledger row missing for appointment %s, next refresh will create it", id)
		return nil
	}
	return err
}
