package api

import (
	"time"

	"github.com/hackgods/clinic-reconciler/internal/appointment"
)

type CreateAppointmentRequest struct {
	CalendarID   string    `json:"calendar_id"`
	PatientName  string    `json:"patient_name"`
	PatientEmail string    `json:"patient_email,omitempty"`
	PatientPhone string    `json:"patient_phone,omitempty"`
	Type         string    `json:"type,omitempty"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Notes        string    `json:"notes,omitempty"`
}

type CreateAppointmentResponse struct {
	ID string `json:"id"`
}

type RescheduleRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type PaymentRequest struct {
	Amount      float64 `json:"amount"`
	IsInsurance bool    `json:"is_insurance"`
}

type PaymentResponse struct {
	AppointmentID    string `json:"appointment_id"`
	AlreadyCompleted bool   `json:"already_completed"`
}

type AppointmentsResponse struct {
	Appointments []appointment.Appointment `json:"appointments"`
	LastError    string                    `json:"last_error,omitempty"`
	ErrorKind    appointment.ErrorKind     `json:"error_kind,omitempty"`
	RefreshedAt  *time.Time                `json:"refreshed_at,omitempty"`
}

type BucketsResponse struct {
	appointment.Buckets
	LastError   string                `json:"last_error,omitempty"`
	ErrorKind   appointment.ErrorKind `json:"error_kind,omitempty"`
	RefreshedAt *time.Time            `json:"refreshed_at,omitempty"`
}

type CalendarResponse struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
