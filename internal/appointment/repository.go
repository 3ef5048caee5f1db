package appointment

import (
	"context"
	"errors"
	"time"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrDuplicatePayment    = errors.New("payment already recorded for appointment")
)

// Ledger is the local status store. Every call is scoped by the owning user.
type Ledger interface {
	// UpsertAppointments writes the schedule fields of every appointment.
	// Existing rows keep their status; new rows take the appointment's status.
	UpsertAppointments(ctx context.Context, userID string, appts []Appointment) error

	// ForceCompleted sets status completed for the given ids whose status is
	// not already completed. Returns the number of rows changed.
	ForceCompleted(ctx context.Context, userID string, ids []string) (int64, error)

	// Statuses reads back the status column for the given ids. Ids without a
	// row are absent from the result.
	Statuses(ctx context.Context, userID string, ids []string) (map[string]AppointmentStatus, error)

	UpdateStatus(ctx context.Context, userID, id string, status AppointmentStatus) error
	UpdateSchedule(ctx context.Context, userID, id string, start, end time.Time) error
	SetBillingType(ctx context.Context, userID, id string, billing BillingType) error

	// DeleteCancelledBefore removes cancelled rows last updated before cutoff.
	DeleteCancelledBefore(ctx context.Context, cutoff time.Time) (int64, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}

// Payments is the append only payment store, unique per appointment.
type Payments interface {
	// InsertPayment returns ErrDuplicatePayment when the appointment already
	// has a payment.
	InsertPayment(ctx context.Context, p Payment) error
	PaidAppointmentIDs(ctx context.Context, userID string) ([]string, error)
}

// SnapshotStore holds the last published reconciliation result per user.
// Publish replaces the whole snapshot atomically.
type SnapshotStore interface {
	Load(ctx context.Context, userID string) (Snapshot, error)
	Publish(ctx context.Context, snap Snapshot) error
}
