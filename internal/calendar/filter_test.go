package calendar

import "testing"

func TestSelectClinical(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		entries []CalendarListEntry
		want    []string
	}{
		{
			name: "excludes primary and holidays",
			entries: []CalendarListEntry{
				{ID: "me@clinic.com", Summary: "me@clinic.com", Primary: true},
				{ID: "dr.souza@clinic.com", Summary: "Dr. Souza"},
				{ID: "pt.br#holiday", Summary: "Holidays in Brazil"},
				{ID: "feriados", Summary: "Feriados Municipais"},
				{ID: "dr.lima@clinic.com", Summary: "Dr. Lima"},
			},
			want: []string{"dr.souza@clinic.com", "dr.lima@clinic.com"},
		},
		{
			name: "holiday match is case insensitive",
			entries: []CalendarListEntry{
				{ID: "a", Summary: "HOLIDAY calendar"},
				{ID: "b", Summary: "Sala 2"},
			},
			want: []string{"b"},
		},
		{
			name: "only primary and holidays yields empty",
			entries: []CalendarListEntry{
				{ID: "me", Summary: "me", Primary: true},
				{ID: "hol", Summary: "Holidays in Brazil"},
			},
			want: nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := SelectClinical(tc.entries)
			if len(got) != len(tc.want) {
				t.Fatalf("expected %d calendars, got %d (%+v)", len(tc.want), len(got), got)
			}
			for i, id := range tc.want {
				if got[i].ID != id {
					t.Fatalf("calendar %d = %q, want %q", i, got[i].ID, id)
				}
			}
		})
	}
}
