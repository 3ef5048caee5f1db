package appointment

import (
	"regexp"
	"strings"
	"time"

	"github.com/hackgods/clinic-reconciler/internal/calendar"
)

var (
	labeledNamePattern = regexp.MustCompile(`^\s*[^-]+?\s+-\s+(.+?)\s*$`)
	phonePattern       = regexp.MustCompile(`(?i)\b(?:telefone|celular|contato|phone|cell|tel)\b\.?\s*[:\-]?[ \t]*(\+?[\d \t().\-]{8,})`)
)

// Normalize maps one external event onto the canonical Appointment. It never
// fails: unparsable times are left zero and the caller must drop the record
// (see HasValidTimes). Status is derived from the external source only.
func Normalize(ev calendar.Event, clinicianEmail string) Appointment {
	a := Appointment{
		ID:          ev.ID,
		Title:       ev.Summary,
		Description: ev.Description,
		Start:       parseEventTime(ev.Start),
		End:         parseEventTime(ev.End),
		Patient: Patient{
			Name:  patientName(ev.Summary),
			Email: patientEmail(ev.Attendees, clinicianEmail),
			Phone: patientPhone(ev.Description),
		},
		Doctor: Doctor{
			Name:       ev.CalendarSummary,
			Email:      clinicianEmail,
			CalendarID: ev.CalendarID,
		},
		Type:   classifyType(ev.Summary),
		Status: externalStatus(ev.Status),
	}
	return a
}

// ClinicianEmail derives the clinician address from a calendar id. Shared
// clinician calendars are addressed by the owner's email.
func ClinicianEmail(calendarID string) string {
	if strings.Contains(calendarID, "@") && !strings.HasSuffix(calendarID, "calendar.google.com") {
		return calendarID
	}
	return ""
}

func parseEventTime(dt *calendar.EventDateTime) time.Time {
	if dt == nil || dt.DateTime == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, dt.DateTime)
	if err != nil {
		return time.Time{}
	}
	return t
}

func patientName(summary string) string {
	if m := labeledNamePattern.FindStringSubmatch(summary); m != nil {
		return m[1]
	}
	return summary
}

func patientEmail(attendees []calendar.Attendee, clinicianEmail string) string {
	for _, att := range attendees {
		if att.Email == "" {
			continue
		}
		if !strings.EqualFold(att.Email, clinicianEmail) {
			return att.Email
		}
	}
	return ""
}

func patientPhone(description string) string {
	m := phonePattern.FindStringSubmatch(description)
	if m == nil {
		return ""
	}
	phone := strings.TrimSpace(m[1])
	if len(phone) < 8 {
		return ""
	}
	return phone
}

func classifyType(summary string) AppointmentType {
	lower := strings.ToLower(summary)
	switch {
	case strings.Contains(lower, "retorno"), strings.Contains(lower, "follow"):
		return TypeFollowUp
	case strings.Contains(lower, "procedimento"), strings.Contains(lower, "cirurgia"):
		return TypeProcedure
	default:
		return TypeConsultation
	}
}

func externalStatus(status string) AppointmentStatus {
	if status == calendar.EventCancelled {
		return StatusCancelled
	}
	return StatusScheduled
}
