package appointment

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/hackgods/clinic-reconciler/internal/calendar"
)

func TestClassifyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		kind ErrorKind
		msg  string
	}{
		{name: "no_calendars", err: ErrNoClinicalCalendars, kind: KindConfiguration, msg: msgNoCalendars},
		{name: "missing_calendar_id", err: ErrMissingCalendarID, kind: KindConfiguration, msg: msgMissingID},
		{name: "drift_wrapped", err: fmt.Errorf("%w: e1", ErrEventNotFound), kind: KindDrift, msg: msgDrift},
		{name: "api_401", err: &calendar.APIError{StatusCode: http.StatusUnauthorized, Message: "Invalid Credentials"}, kind: KindAuth, msg: msgSessionExpired},
		{name: "api_403_wrapped", err: fmt.Errorf("list events: %w", &calendar.APIError{StatusCode: http.StatusForbidden}), kind: KindPermission, msg: msgPermission},
		{name: "text_invalid_credentials", err: errors.New("oauth2: Invalid Credentials"), kind: KindAuth, msg: msgSessionExpired},
		{name: "text_403", err: errors.New("googleapi: Error 403: forbidden"), kind: KindPermission, msg: msgPermission},
		{name: "unknown", err: errors.New("boom"), kind: KindUnknown, msg: "boom"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ue := ClassifyError(tc.err)
			if ue.Kind != tc.kind || ue.Message != tc.msg {
				t.Fatalf("ClassifyError = (%s, %q), want (%s, %q)", ue.Kind, ue.Message, tc.kind, tc.msg)
			}
			if !errors.Is(ue, tc.err) {
				t.Fatalf("classified error lost its cause")
			}
		})
	}
}

func TestClassifyError_Idempotent(t *testing.T) {
	t.Parallel()

	if ClassifyError(nil) != nil {
		t.Fatalf("nil error must classify to nil")
	}

	first := ClassifyError(ErrEventNotFound)
	second := ClassifyError(fmt.Errorf("mutate: %w", first))
	if second != first {
		t.Fatalf("already classified error was reclassified: %+v", second)
	}
}
