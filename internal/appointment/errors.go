package appointment

import (
	"errors"
	"strings"

	"github.com/hackgods/clinic-reconciler/internal/calendar"
)

var (
	ErrNoClinicalCalendars = errors.New("no clinical calendars found")
	ErrMissingCalendarID   = errors.New("calendar id is required")
	ErrEventNotFound       = errors.New("event not found in any clinical calendar")
	ErrInvalidSchedule     = errors.New("start must be before end")
	ErrInvalidPayment      = errors.New("payment amount must not be negative")
	ErrInvalidRequest      = errors.New("invalid appointment request")
	ErrNotAuthenticated    = errors.New("calendar credential and user are required")
)

type ErrorKind string

const (
	KindConfiguration ErrorKind = "configuration"
	KindAuth          ErrorKind = "auth"
	KindPermission    ErrorKind = "permission"
	KindDrift         ErrorKind = "drift"
	KindUnknown       ErrorKind = "unknown"
)

// UserError is the classified, user facing form of a cycle or mutation error.
type UserError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *UserError) Error() string { return e.Message }

func (e *UserError) Unwrap() error { return e.Err }

const (
	msgSessionExpired = "Your calendar session has expired. Please sign in again."
	msgPermission     = "Permission denied by the calendar provider. Check that the clinical calendars are shared with this account."
	msgNoCalendars    = "No clinical calendars were found. Share at least one clinician calendar with this account."
	msgMissingID      = "A calendar must be selected for this appointment."
	msgDrift          = "This appointment was not found in any clinical calendar. Refresh and try again."
)

// ClassifyError maps err onto the user facing taxonomy. Calendar API status
// codes are checked first; the error text is inspected as a fallback for
// collaborators that only surface a message.
func ClassifyError(err error) *UserError {
	if err == nil {
		return nil
	}

	var ue *UserError
	if errors.As(err, &ue) {
		return ue
	}

	switch {
	case errors.Is(err, ErrNoClinicalCalendars):
		return &UserError{Kind: KindConfiguration, Message: msgNoCalendars, Err: err}
	case errors.Is(err, ErrMissingCalendarID):
		return &UserError{Kind: KindConfiguration, Message: msgMissingID, Err: err}
	case errors.Is(err, ErrEventNotFound):
		return &UserError{Kind: KindDrift, Message: msgDrift, Err: err}
	case calendar.IsUnauthorized(err):
		return &UserError{Kind: KindAuth, Message: msgSessionExpired, Err: err}
	case calendar.IsForbidden(err):
		return &UserError{Kind: KindPermission, Message: msgPermission, Err: err}
	}

	text := err.Error()
	switch {
	case strings.Contains(text, "401"), strings.Contains(text, "Invalid Credentials"):
		return &UserError{Kind: KindAuth, Message: msgSessionExpired, Err: err}
	case strings.Contains(text, "403"):
		return &UserError{Kind: KindPermission, Message: msgPermission, Err: err}
	}

	return &UserError{Kind: KindUnknown, Message: text, Err: err}
}
