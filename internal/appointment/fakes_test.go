package appointment

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/hackgods/clinic-reconciler/internal/calendar"
	"github.com/hackgods/clinic-reconciler/internal/config"
	redisclient "github.com/hackgods/clinic-reconciler/internal/redis"
	"github.com/hackgods/clinic-reconciler/internal/session"
)

// fixedNow is Friday 2026-10-16 12:00 UTC.
var fixedNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func at(day, hour, minute int) time.Time {
	return time.Date(2026, 10, day, hour, minute, 0, 0, time.UTC)
}

func dt(t time.Time) *calendar.EventDateTime {
	return &calendar.EventDateTime{DateTime: t.Format(time.RFC3339)}
}

type fakeSource struct {
	mu        sync.Mutex
	calendars []calendar.CalendarListEntry
	events    map[string][]calendar.Event
	listErr   error
	eventsErr map[string]error
	nextID    int
	patches   []calendar.EventPatch
}

func newFakeSource(cals ...calendar.CalendarListEntry) *fakeSource {
	return &fakeSource{
		calendars: cals,
		events:    make(map[string][]calendar.Event),
		eventsErr: make(map[string]error),
	}
}

func (f *fakeSource) add(calendarID string, ev calendar.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[calendarID] = append(f.events[calendarID], ev)
}

func (f *fakeSource) ListCalendars(context.Context, string) ([]calendar.CalendarListEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]calendar.CalendarListEntry(nil), f.calendars...), nil
}

func (f *fakeSource) ListEvents(_ context.Context, _ string, calendarID string, _ calendar.ListOptions) ([]calendar.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.eventsErr[calendarID]; err != nil {
		return nil, err
	}
	return append([]calendar.Event(nil), f.events[calendarID]...), nil
}

func (f *fakeSource) find(calendarID, eventID string) (int, bool) {
	for i, ev := range f.events[calendarID] {
		if ev.ID == eventID {
			return i, true
		}
	}
	return 0, false
}

func (f *fakeSource) GetEvent(_ context.Context, _ string, calendarID, eventID string) (*calendar.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.find(calendarID, eventID)
	if !ok {
		return nil, &calendar.APIError{StatusCode: http.StatusNotFound, Message: "Not Found"}
	}
	ev := f.events[calendarID][i]
	return &ev, nil
}

func (f *fakeSource) CreateEvent(_ context.Context, _ string, calendarID string, ev calendar.Event) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	ev.ID = fmt.Sprintf("created-%d", f.nextID)
	f.events[calendarID] = append(f.events[calendarID], ev)
	return ev.ID, nil
}

func (f *fakeSource) PatchEvent(_ context.Context, _ string, calendarID, eventID string, patch calendar.EventPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.find(calendarID, eventID)
	if !ok {
		return &calendar.APIError{StatusCode: http.StatusNotFound, Message: "Not Found"}
	}
	ev := &f.events[calendarID][i]
	if patch.Start != nil {
		ev.Start = patch.Start
	}
	if patch.End != nil {
		ev.End = patch.End
	}
	if patch.Status != "" {
		ev.Status = patch.Status
	}
	f.patches = append(f.patches, patch)
	return nil
}

func (f *fakeSource) DeleteEvent(_ context.Context, _ string, calendarID, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.find(calendarID, eventID)
	if !ok {
		return &calendar.APIError{StatusCode: http.StatusNotFound, Message: "Not Found"}
	}
	f.events[calendarID] = append(f.events[calendarID][:i], f.events[calendarID][i+1:]...)
	return nil
}

func (f *fakeSource) eventStatus(calendarID, eventID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.find(calendarID, eventID)
	if !ok {
		return ""
	}
	return f.events[calendarID][i].Status
}

type ledgerKey struct {
	userID string
	id     string
}

type ledgerRow struct {
	appt      Appointment
	status    AppointmentStatus
	billing   BillingType
	updatedAt time.Time
}

type memLedger struct {
	mu     sync.Mutex
	rows   map[ledgerKey]*ledgerRow
	events []EventLog
	now    func() time.Time
	calls  []string
}

func newMemLedger() *memLedger {
	return &memLedger{rows: make(map[ledgerKey]*ledgerRow), now: func() time.Time { return fixedNow }}
}

func (l *memLedger) UpsertAppointments(_ context.Context, userID string, appts []Appointment) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, "upsert")
	for _, a := range appts {
		key := ledgerKey{userID, a.ID}
		row, ok := l.rows[key]
		if !ok {
			l.rows[key] = &ledgerRow{appt: a, status: a.Status, updatedAt: l.now()}
			continue
		}
		row.appt = a
	}
	return nil
}

func (l *memLedger) ForceCompleted(_ context.Context, userID string, ids []string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, "force_completed")
	var n int64
	for _, id := range ids {
		row, ok := l.rows[ledgerKey{userID, id}]
		if !ok || row.status == StatusCompleted {
			continue
		}
		row.status = StatusCompleted
		row.updatedAt = l.now()
		n++
	}
	return n, nil
}

func (l *memLedger) Statuses(_ context.Context, userID string, ids []string) (map[string]AppointmentStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]AppointmentStatus)
	for _, id := range ids {
		if row, ok := l.rows[ledgerKey{userID, id}]; ok {
			out[id] = row.status
		}
	}
	return out, nil
}

func (l *memLedger) row(userID, id string) (*ledgerRow, error) {
	row, ok := l.rows[ledgerKey{userID, id}]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return row, nil
}

func (l *memLedger) UpdateStatus(_ context.Context, userID, id string, status AppointmentStatus) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	row, err := l.row(userID, id)
	if err != nil {
		return err
	}
	row.status = status
	row.updatedAt = l.now()
	return nil
}

func (l *memLedger) UpdateSchedule(_ context.Context, userID, id string, start, end time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	row, err := l.row(userID, id)
	if err != nil {
		return err
	}
	row.appt.Start, row.appt.End = start, end
	row.updatedAt = l.now()
	return nil
}

func (l *memLedger) SetBillingType(_ context.Context, userID, id string, billing BillingType) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	row, err := l.row(userID, id)
	if err != nil {
		return err
	}
	row.billing = billing
	return nil
}

func (l *memLedger) DeleteCancelledBefore(_ context.Context, cutoff time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for key, row := range l.rows {
		if row.status == StatusCancelled && row.updatedAt.Before(cutoff) {
			delete(l.rows, key)
			n++
		}
	}
	return n, nil
}

func (l *memLedger) InsertEvent(_ context.Context, ev EventLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

// status returns the ledger status testUser holds for id.
func (l *memLedger) status(id string) AppointmentStatus {
	return l.statusFor(testUser, id)
}

func (l *memLedger) statusFor(userID, id string) AppointmentStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	if row, ok := l.rows[ledgerKey{userID, id}]; ok {
		return row.status
	}
	return ""
}

func (l *memLedger) put(userID, id string, row *ledgerRow) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows[ledgerKey{userID, id}] = row
}

func (l *memLedger) has(userID, id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.rows[ledgerKey{userID, id}]
	return ok
}

type memPayments struct {
	mu       sync.Mutex
	payments map[ledgerKey]Payment
}

func newMemPayments() *memPayments {
	return &memPayments{payments: make(map[ledgerKey]Payment)}
}

func (p *memPayments) InsertPayment(_ context.Context, pay Payment) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := ledgerKey{pay.UserID, pay.AppointmentID}
	if _, ok := p.payments[key]; ok {
		return ErrDuplicatePayment
	}
	p.payments[key] = pay
	return nil
}

func (p *memPayments) PaidAppointmentIDs(_ context.Context, userID string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var ids []string
	for key := range p.payments {
		if key.userID == userID {
			ids = append(ids, key.id)
		}
	}
	return ids, nil
}

type fakeLocker struct {
	mu   sync.Mutex
	busy map[string]bool
	keys []string

	// busyFor holds a key for the given number of further attempts.
	busyFor map[string]int
}

func (l *fakeLocker) WithLock(ctx context.Context, key string, _ time.Duration, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	l.keys = append(l.keys, key)
	busy := l.busy[key]
	if l.busyFor[key] > 0 {
		l.busyFor[key]--
		busy = true
	}
	l.mu.Unlock()
	if busy {
		return redisclient.ErrLockNotAcquired
	}
	return fn(ctx)
}

type harness struct {
	svc       *Service
	source    *fakeSource
	ledger    *memLedger
	payments  *memPayments
	snapshots *MemorySnapshots
	locker    *fakeLocker
	cfg       config.Config
}

const testUser = "user-1"

func newHarness(t *testing.T, source *fakeSource) *harness {
	t.Helper()

	h := &harness{
		source:    source,
		ledger:    newMemLedger(),
		payments:  newMemPayments(),
		snapshots: NewMemorySnapshots(),
		locker:    &fakeLocker{busy: make(map[string]bool), busyFor: make(map[string]int)},
	}

	h.cfg = config.Config{
		Location:           time.UTC,
		SyncLookback:       30 * 24 * time.Hour,
		SyncLookahead:      90 * 24 * time.Hour,
		RefreshLockTTL:     time.Minute,
		MutationLockTTL:    10 * time.Second,
		CancelledRetention: 30 * 24 * time.Hour,
	}

	h.svc = h.serviceFor(testUser)
	return h
}

// serviceFor builds a service for userID over the harness's shared stores.
func (h *harness) serviceFor(userID string) *Service {
	svc := NewService(Dependencies{
		Source:    h.source,
		Ledger:    h.ledger,
		Payments:  h.payments,
		Snapshots: h.snapshots,
		Locker:    h.locker,
		Sessions:  session.Static{AccessToken: "tok", UserID: userID},
	}, h.cfg)
	svc.now = func() time.Time { return fixedNow }
	svc.lockRetry = time.Millisecond
	return svc
}

func clinicSource() *fakeSource {
	return newFakeSource(
		calendar.CalendarListEntry{ID: "owner@clinic.com", Summary: "owner@clinic.com", Primary: true},
		calendar.CalendarListEntry{ID: "pt.br#holiday@group.v.calendar.google.com", Summary: "Holidays in Brazil"},
		calendar.CalendarListEntry{ID: "dr.souza@clinic.com", Summary: "Dr. Souza"},
		calendar.CalendarListEntry{ID: "dr.lima@clinic.com", Summary: "Dr. Lima"},
	)
}

func ids(appts []Appointment) []string {
	out := make([]string, len(appts))
	for i, a := range appts {
		out[i] = a.ID
	}
	return out
}

// gatedSnapshots holds the first Publish until release is closed.
type gatedSnapshots struct {
	SnapshotStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedSnapshots(inner SnapshotStore) *gatedSnapshots {
	return &gatedSnapshots{SnapshotStore: inner, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedSnapshots) Publish(ctx context.Context, snap Snapshot) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.SnapshotStore.Publish(ctx, snap)
}

type failingSessions struct {
	err error
}

func (f failingSessions) Current(context.Context) (session.Session, error) {
	return session.Session{}, f.err
}
