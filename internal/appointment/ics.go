package appointment

import (
	"time"

	ics "github.com/arran4/golang-ical"
)

// ExportICS renders the reconciled collection as an iCalendar feed.
func ExportICS(appts []Appointment, name string, stamp time.Time) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//hackgods//clinic-reconciler//EN")
	if name != "" {
		cal.SetXWRCalName(name)
	}

	for _, a := range appts {
		ev := cal.AddEvent(a.ID)
		ev.SetDtStampTime(stamp)
		ev.SetStartAt(a.Start)
		ev.SetEndAt(a.End)
		ev.SetSummary(a.Title)
		if a.Description != "" {
			ev.SetDescription(a.Description)
		}
		ev.SetStatus(icsStatus(a.Status))
		if a.Doctor.Email != "" {
			ev.SetOrganizer("mailto:"+a.Doctor.Email, ics.WithCN(a.Doctor.Name))
		}
		if a.Patient.Email != "" {
			ev.AddAttendee("mailto:"+a.Patient.Email, ics.WithCN(a.Patient.Name))
		}
		ev.AddProperty(ics.ComponentProperty("X-CLINIC-STATUS"), string(a.Status))
		ev.AddProperty(ics.ComponentProperty("X-CLINIC-TYPE"), string(a.Type))
	}

	return cal.Serialize()
}

func icsStatus(s AppointmentStatus) ics.ObjectStatus {
	if s == StatusCancelled {
		return ics.ObjectStatusCancelled
	}
	return ics.ObjectStatusConfirmed
}
