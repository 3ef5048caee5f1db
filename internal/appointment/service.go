package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hackgods/clinic-reconciler/internal/calendar"
	"github.com/hackgods/clinic-reconciler/internal/config"
	redisclient "github.com/hackgods/clinic-reconciler/internal/redis"
	"github.com/hackgods/clinic-reconciler/internal/session"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentReactivated = "APPOINTMENT_REACTIVATED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventAppointmentPaid        = "APPOINTMENT_PAID"
)

type Dependencies struct {
	Source    calendar.Source
	Ledger    Ledger
	Payments  Payments
	Snapshots SnapshotStore
	Locker    redisclient.Locker
	Sessions  session.Provider
}

// Service is the reconciliation core: it owns the refresh cycle and the
// mutation operations that feed back into it.
type Service struct {
	source    calendar.Source
	ledger    Ledger
	payments  Payments
	snapshots SnapshotStore
	locker    redisclient.Locker
	sessions  session.Provider
	cfg       config.Config

	cycles    *cycleTracker
	lockRetry time.Duration
	now       func() time.Time
}

func NewService(deps Dependencies, cfg config.Config) *Service {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
		cfg.Location = loc
	}

	return &Service{
		source:    deps.Source,
		ledger:    deps.Ledger,
		payments:  deps.Payments,
		snapshots: deps.Snapshots,
		locker:    deps.Locker,
		sessions:  deps.Sessions,
		cfg:       cfg,
		cycles:    newCycleTracker(),
		lockRetry: 500 * time.Millisecond,
		now:       func() time.Time { return time.Now().In(loc) },
	}
}

type cycleStats struct {
	calendars int
	events    int
	dropped   int
	dupes     int
}

// Refresh runs one reconciliation cycle for the current session. Without a
// valid session the user's collection is reset and nil is returned.
// Concurrent calls for the same user in this process share one cycle; a
// cycle already running in another process causes the call to be ignored.
func (s *Service) Refresh(ctx context.Context) error {
	return s.refresh(ctx, false)
}

// refresh with fresh set waits for a cycle that starts after the call, in
// this process and across processes, instead of joining or skipping one
// that is already running.
func (s *Service) refresh(ctx context.Context, fresh bool) error {
	sess, err := s.sessions.Current(ctx)
	if err != nil && !errors.Is(err, session.ErrNoSession) {
		return fmt.Errorf("resolve session: %w", err)
	}

	if !sess.Valid() {
		if sess.UserID != "" {
			if err := s.snapshots.Publish(ctx, Snapshot{UserID: sess.UserID, Appointments: []Appointment{}}); err != nil {
				return fmt.Errorf("reset snapshot: %w", err)
			}
		}
		return nil
	}

	run, prev, owner := s.cycles.join(sess.UserID, fresh)
	if !owner {
		log.Printf("refresh joined in-process cycle user=%s fresh=%t", sess.UserID, fresh)
		return wait(ctx, run)
	}

	if prev != nil {
		select {
		case <-prev.done:
		case <-ctx.Done():
			s.cycles.finish(sess.UserID, run, ctx.Err())
			return ctx.Err()
		}
	}

	err = s.refreshGuarded(ctx, sess, fresh)
	s.cycles.finish(sess.UserID, run, err)
	return err
}

func (s *Service) refreshGuarded(ctx context.Context, sess session.Session, fresh bool) error {
	key := "refresh:" + sess.UserID
	deadline := time.Now().Add(s.cfg.RefreshLockTTL)

	for {
		err := s.locker.WithLock(ctx, key, s.cfg.RefreshLockTTL, func(lockCtx context.Context) error {
			return s.runCycle(lockCtx, sess)
		})
		if !errors.Is(err, redisclient.ErrLockNotAcquired) {
			return err
		}
		if !fresh {
			log.Printf("refresh skipped user=%s: cycle already running elsewhere", sess.UserID)
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("refresh for user %s still held elsewhere after %s: %w", sess.UserID, s.cfg.RefreshLockTTL, err)
		}

		log.Printf("refresh queued user=%s: waiting for cycle running elsewhere", sess.UserID)
		select {
		case <-time.After(s.lockRetry):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Service) runCycle(ctx context.Context, sess session.Session) error {
	started := time.Now()

	appts, stats, err := s.reconcile(ctx, sess)
	if err != nil {
		ue := ClassifyError(err)
		log.Printf("refresh failed user=%s kind=%s: %v", sess.UserID, ue.Kind, err)
		if recErr := s.recordError(ctx, sess.UserID, ue); recErr != nil {
			log.Printf("failed to record refresh error for user=%s: %v", sess.UserID, recErr)
		}
		return ue
	}

	snap := Snapshot{
		UserID:       sess.UserID,
		Appointments: appts,
		RefreshedAt:  s.now(),
	}
	if err := s.snapshots.Publish(ctx, snap); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}

	log.Printf(
		"refresh complete user=%s calendars=%d events=%d appointments=%d dropped=%d duplicates=%d duration=%s",
		sess.UserID, stats.calendars, stats.events, len(appts), stats.dropped, stats.dupes, time.Since(started),
	)
	return nil
}

// reconcile is the fetch, normalize and merge pipeline. Nothing is
// published until every step has succeeded.
func (s *Service) reconcile(ctx context.Context, sess session.Session) ([]Appointment, cycleStats, error) {
	var stats cycleStats

	clinical, err := s.clinicalCalendars(ctx, sess.AccessToken)
	if err != nil {
		return nil, stats, err
	}
	stats.calendars = len(clinical)

	events, err := s.fetchEvents(ctx, sess.AccessToken, clinical)
	if err != nil {
		return nil, stats, err
	}
	stats.events = len(events)

	appts := s.normalizeAll(events, &stats)

	merged, err := s.mergeLedger(ctx, sess.UserID, appts)
	if err != nil {
		return nil, stats, err
	}

	SortCanonical(merged)
	return merged, stats, nil
}

func (s *Service) clinicalCalendars(ctx context.Context, token string) ([]calendar.CalendarListEntry, error) {
	entries, err := s.source.ListCalendars(ctx, token)
	if err != nil {
		return nil, err
	}

	clinical := calendar.SelectClinical(entries)
	if len(clinical) == 0 {
		return nil, ErrNoClinicalCalendars
	}
	return clinical, nil
}

// fetchEvents lists events from every calendar concurrently. Any failure
// fails the whole fetch. Output keeps calendar order.
func (s *Service) fetchEvents(ctx context.Context, token string, cals []calendar.CalendarListEntry) ([]calendar.Event, error) {
	now := s.now()
	opts := calendar.ListOptions{
		TimeMin: now.Add(-s.cfg.SyncLookback),
	}
	if s.cfg.SyncLookahead > 0 {
		opts.TimeMax = now.Add(s.cfg.SyncLookahead)
	}

	perCalendar := make([][]calendar.Event, len(cals))

	g, gctx := errgroup.WithContext(ctx)
	for i, cal := range cals {
		g.Go(func() error {
			events, err := s.source.ListEvents(gctx, token, cal.ID, opts)
			if err != nil {
				return err
			}
			for j := range events {
				events[j].CalendarID = cal.ID
				events[j].CalendarSummary = cal.Summary
			}
			perCalendar[i] = events
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []calendar.Event
	for _, events := range perCalendar {
		all = append(all, events...)
	}
	return all, nil
}

// normalizeAll drops events with unusable times and keeps the first
// occurrence of any id seen in more than one calendar.
func (s *Service) normalizeAll(events []calendar.Event, stats *cycleStats) []Appointment {
	appts := make([]Appointment, 0, len(events))
	seen := make(map[string]string, len(events))

	for _, ev := range events {
		if ev.ID == "" {
			stats.dropped++
			log.Printf("dropped event calendar=%s reason=missing_id", ev.CalendarID)
			continue
		}

		a := Normalize(ev, ClinicianEmail(ev.CalendarID))
		if !a.HasValidTimes() {
			stats.dropped++
			log.Printf("dropped event id=%s calendar=%s reason=invalid_time", ev.ID, ev.CalendarID)
			continue
		}

		if first, dup := seen[a.ID]; dup {
			stats.dupes++
			log.Printf("duplicate event id=%s calendar=%s first_seen=%s, keeping first", a.ID, ev.CalendarID, first)
			continue
		}
		seen[a.ID] = ev.CalendarID

		appts = append(appts, a)
	}

	return appts
}

func (s *Service) recordError(ctx context.Context, userID string, ue *UserError) error {
	snap, err := s.snapshots.Load(ctx, userID)
	if err != nil {
		return err
	}
	snap.UserID = userID
	snap.LastError = ue.Message
	snap.ErrorKind = ue.Kind
	return s.snapshots.Publish(ctx, snap)
}

// Snapshot returns the last published result for the current session.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	sess, err := s.sessions.Current(ctx)
	if err != nil && !errors.Is(err, session.ErrNoSession) {
		return Snapshot{}, fmt.Errorf("resolve session: %w", err)
	}
	if sess.UserID == "" {
		return Snapshot{Appointments: []Appointment{}}, nil
	}

	snap, err := s.snapshots.Load(ctx, sess.UserID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	if snap.Appointments == nil {
		snap.Appointments = []Appointment{}
	}
	return snap, nil
}

// Buckets classifies the last published collection against the current time.
func (s *Service) Buckets(ctx context.Context) (Buckets, Snapshot, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return Buckets{}, Snapshot{}, err
	}
	return Classify(snap.Appointments, s.now()), snap, nil
}

// LastError is the classified message of the most recent failed cycle, or
// empty once a cycle succeeds.
func (s *Service) LastError(ctx context.Context) (string, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	return snap.LastError, nil
}

// Calendars lists the clinical calendars available to the current session.
func (s *Service) Calendars(ctx context.Context) ([]calendar.CalendarListEntry, error) {
	sess, err := s.requireSession(ctx)
	if err != nil {
		return nil, err
	}

	clinical, err := s.clinicalCalendars(ctx, sess.AccessToken)
	if err != nil {
		return nil, ClassifyError(err)
	}
	return clinical, nil
}

// CleanupCancelled removes cancelled ledger rows that have not changed
// within the retention window.
func (s *Service) CleanupCancelled(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.cfg.CancelledRetention)
	n, err := s.ledger.DeleteCancelledBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup cancelled appointments: %w", err)
	}
	return n, nil
}

func (s *Service) requireSession(ctx context.Context) (session.Session, error) {
	sess, err := s.sessions.Current(ctx)
	if err != nil || !sess.Valid() {
		return session.Session{}, ErrNotAuthenticated
	}
	return sess, nil
}

func (s *Service) logEvent(ctx context.Context, userID, appointmentID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal event payload for %s: %v", eventType, err)
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		UserID:        userID,
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.ledger.InsertEvent(ctx, ev); err != nil {
		log.Printf("failed to insert event log %s for appointment %s: %v", eventType, appointmentID, err)
	}
}
