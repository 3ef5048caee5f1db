package appointment

import (
	"reflect"
	"testing"
	"time"
)

func appt(id string, start time.Time, status AppointmentStatus) Appointment {
	return Appointment{ID: id, Start: start, End: start.Add(time.Hour), Status: status}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	appts := []Appointment{
		appt("today-morning", at(16, 9, 0), StatusScheduled),
		appt("today-evening", at(16, 18, 0), StatusScheduled),
		appt("tomorrow", at(17, 0, 0), StatusScheduled),
		appt("next-week", at(23, 10, 0), StatusScheduled),
		appt("yesterday", at(15, 10, 0), StatusScheduled),
		appt("last-week", at(9, 10, 0), StatusScheduled),
		appt("done-old", at(2, 10, 0), StatusCompleted),
		appt("done-new", at(14, 10, 0), StatusCompleted),
		appt("cancelled-future", at(25, 10, 0), StatusCancelled),
		appt("cancelled-today", at(16, 15, 0), StatusCancelled),
	}

	b := Classify(appts, fixedNow)

	tests := []struct {
		name string
		got  []Appointment
		want []string
	}{
		{name: "today", got: b.Today, want: []string{"today-morning", "today-evening"}},
		{name: "upcoming", got: b.Upcoming, want: []string{"tomorrow", "next-week"}},
		{name: "past", got: b.Past, want: []string{"today-morning", "yesterday", "last-week"}},
		{name: "completed", got: b.Completed, want: []string{"done-new", "done-old"}},
		{name: "cancelled", got: b.Cancelled, want: []string{"cancelled-future", "cancelled-today"}},
	}

	for _, tc := range tests {
		if !reflect.DeepEqual(ids(tc.got), tc.want) {
			t.Fatalf("%s = %v, want %v", tc.name, ids(tc.got), tc.want)
		}
	}
}

func TestClassify_EndOfDayBoundary(t *testing.T) {
	t.Parallel()

	late := appt("late", time.Date(2026, 10, 16, 23, 59, 59, 0, time.UTC), StatusScheduled)

	before := Classify([]Appointment{late}, time.Date(2026, 10, 16, 23, 59, 58, 0, time.UTC))
	if len(before.Today) != 1 || len(before.Past) != 0 || len(before.Upcoming) != 0 {
		t.Fatalf("before start: %+v", before)
	}

	after := Classify([]Appointment{late}, time.Date(2026, 10, 16, 23, 59, 59, 500, time.UTC))
	if len(after.Today) != 1 || len(after.Past) != 1 || len(after.Upcoming) != 0 {
		t.Fatalf("after start: %+v", after)
	}
}

func TestClassify_UsesClockLocation(t *testing.T) {
	t.Parallel()

	brt := time.FixedZone("BRT", -3*60*60)
	// 01:30 UTC on the 17th is still the evening of the 16th in BRT.
	evening := appt("evening", time.Date(2026, 10, 17, 1, 30, 0, 0, time.UTC), StatusScheduled)
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, brt)

	b := Classify([]Appointment{evening}, now)
	if len(b.Today) != 1 || len(b.Upcoming) != 0 {
		t.Fatalf("BRT clock: %+v", b)
	}

	b = Classify([]Appointment{evening}, now.UTC())
	if len(b.Today) != 0 || len(b.Upcoming) != 1 {
		t.Fatalf("UTC clock: %+v", b)
	}
}

func TestClassify_StableForEqualStarts(t *testing.T) {
	t.Parallel()

	start := at(20, 9, 0)
	appts := []Appointment{
		appt("first", start, StatusScheduled),
		appt("second", start, StatusScheduled),
		appt("third", start, StatusScheduled),
	}

	b := Classify(appts, fixedNow)
	if !reflect.DeepEqual(ids(b.Upcoming), []string{"first", "second", "third"}) {
		t.Fatalf("unstable ordering: %v", ids(b.Upcoming))
	}
}

func TestClassify_EmptyBucketsAreNotNil(t *testing.T) {
	t.Parallel()

	b := Classify(nil, fixedNow)
	for name, bucket := range map[string][]Appointment{
		"today": b.Today, "upcoming": b.Upcoming, "past": b.Past,
		"completed": b.Completed, "cancelled": b.Cancelled,
	} {
		if bucket == nil {
			t.Fatalf("%s bucket is nil", name)
		}
	}
}

func TestClassify_DoesNotReorderInput(t *testing.T) {
	t.Parallel()

	appts := []Appointment{
		appt("b", at(20, 9, 0), StatusScheduled),
		appt("a", at(18, 9, 0), StatusScheduled),
	}
	Classify(appts, fixedNow)
	if !reflect.DeepEqual(ids(appts), []string{"b", "a"}) {
		t.Fatalf("input reordered: %v", ids(appts))
	}
}
