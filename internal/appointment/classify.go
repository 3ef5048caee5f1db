package appointment

import (
	"sort"
	"time"
)

// Buckets are the operational views over a reconciled collection. A
// scheduled appointment may sit in both Today and Past once its time has
// elapsed; cancelled and completed ones only ever appear in their own bucket.
type Buckets struct {
	Today     []Appointment `json:"today"`
	Upcoming  []Appointment `json:"upcoming"`
	Past      []Appointment `json:"past"`
	Completed []Appointment `json:"completed"`
	Cancelled []Appointment `json:"cancelled"`
}

// Classify partitions appts relative to now. Calendar days are evaluated in
// now's location, so callers should pass a clock in the clinic's timezone.
func Classify(appts []Appointment, now time.Time) Buckets {
	loc := now.Location()
	y, m, d := now.Date()
	startOfTomorrow := time.Date(y, m, d+1, 0, 0, 0, 0, loc)

	b := Buckets{
		Today:     []Appointment{},
		Upcoming:  []Appointment{},
		Past:      []Appointment{},
		Completed: []Appointment{},
		Cancelled: []Appointment{},
	}

	for _, a := range appts {
		switch a.Status {
		case StatusCompleted:
			b.Completed = append(b.Completed, a)
			continue
		case StatusCancelled:
			b.Cancelled = append(b.Cancelled, a)
			continue
		case StatusScheduled:
		default:
			continue
		}

		if sameDay(a.Start.In(loc), y, m, d) {
			b.Today = append(b.Today, a)
		}
		if !a.Start.Before(startOfTomorrow) {
			b.Upcoming = append(b.Upcoming, a)
		}
		if a.Start.Before(now) {
			b.Past = append(b.Past, a)
		}
	}

	sortByStart(b.Upcoming, true)
	sortByStart(b.Past, false)
	sortByStart(b.Completed, false)
	sortByStart(b.Cancelled, false)

	return b
}

// SortCanonical orders the published collection ascending by start.
func SortCanonical(appts []Appointment) {
	sortByStart(appts, true)
}

func sameDay(t time.Time, y int, m time.Month, d int) bool {
	ty, tm, td := t.Date()
	return ty == y && tm == m && td == d
}

func sortByStart(appts []Appointment, ascending bool) {
	sort.SliceStable(appts, func(i, j int) bool {
		if ascending {
			return appts[i].Start.Before(appts[j].Start)
		}
		return appts[i].Start.After(appts[j].Start)
	})
}
