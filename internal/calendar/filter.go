package calendar

import "strings"

var holidayKeywords = []string{"holiday", "feriado", "holidays in brazil", "feriados"}

// SelectClinical returns the calendars that represent clinical resources:
// everything except the account's primary calendar and holiday calendars.
// Input order is preserved.
func SelectClinical(entries []CalendarListEntry) []CalendarListEntry {
	selected := make([]CalendarListEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Primary || isHoliday(entry.Summary) {
			continue
		}
		selected = append(selected, entry)
	}
	return selected
}

func isHoliday(summary string) bool {
	lower := strings.ToLower(summary)
	for _, kw := range holidayKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
