package appointment

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type AppointmentType string

const (
	TypeConsultation AppointmentType = "consultation"
	TypeProcedure    AppointmentType = "procedure"
	TypeFollowUp     AppointmentType = "follow-up"
)

func (t AppointmentType) Valid() bool {
	switch t {
	case TypeConsultation, TypeProcedure, TypeFollowUp:
		return true
	}
	return false
}

// Label is the title prefix used for events created by this service.
func (t AppointmentType) Label() string {
	switch t {
	case TypeProcedure:
		return "Procedimento"
	case TypeFollowUp:
		return "Retorno"
	default:
		return "Consulta"
	}
}

// BillingType is only set when a payment is recorded.
type BillingType string

const (
	BillingPrivate   BillingType = "private"
	BillingInsurance BillingType = "insurance"
)

type Patient struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type Doctor struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	CalendarID string `json:"calendar_id,omitempty"`
}

// Appointment is the canonical record shared by the calendar, the ledger and
// the payment store. ID is the join key across all three.
type Appointment struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Start       time.Time         `json:"start"`
	End         time.Time         `json:"end"`
	Description string            `json:"description,omitempty"`
	Patient     Patient           `json:"patient"`
	Doctor      Doctor            `json:"doctor"`
	Status      AppointmentStatus `json:"status"`
	Type        AppointmentType   `json:"type"`
	BillingType BillingType       `json:"billing_type,omitempty"`
}

// HasValidTimes reports whether both instants parsed and start precedes end.
func (a Appointment) HasValidTimes() bool {
	return !a.Start.IsZero() && !a.End.IsZero() && a.Start.Before(a.End)
}

// LedgerRecord is the status row persisted per appointment and user.
type LedgerRecord struct {
	ID        string
	UserID    string
	Status    AppointmentStatus
	UpdatedAt time.Time
}

type Payment struct {
	ID            uuid.UUID
	UserID        string
	AppointmentID string
	Amount        float64
	IsInsurance   bool
	CreatedAt     time.Time
}

func (p Payment) BillingType() BillingType {
	if p.IsInsurance {
		return BillingInsurance
	}
	return BillingPrivate
}

type EventLog struct {
	ID            int64
	UserID        string
	EventType     string
	AppointmentID *string
	Payload       []byte
	CreatedAt     time.Time
}

// CreateRequest describes a new appointment to be placed on a clinical calendar.
type CreateRequest struct {
	CalendarID   string
	PatientName  string
	PatientEmail string
	PatientPhone string
	Type         AppointmentType
	Start        time.Time
	End          time.Time
	Notes        string
}

// Snapshot is one published reconciliation result for a user.
type Snapshot struct {
	UserID       string        `json:"user_id"`
	Appointments []Appointment `json:"appointments"`
	LastError    string        `json:"last_error,omitempty"`
	ErrorKind    ErrorKind     `json:"error_kind,omitempty"`
	RefreshedAt  time.Time     `json:"refreshed_at"`
}
