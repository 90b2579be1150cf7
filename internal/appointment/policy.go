package appointment

import "time"

// DefaultCancellationNotice is how far ahead of the start a customer may
// still cancel or reschedule.
const DefaultCancellationNotice = 24 * time.Hour

// CanCancel reports whether a customer may cancel or reschedule appt at now:
// it must still be confirmed and start strictly more than notice from now.
// The start is interpreted in now's location.
func CanCancel(appt Appointment, now time.Time, notice time.Duration) bool {
	if appt.Status != StatusConfirmed {
		return false
	}
	return appt.StartsAt(now.Location()).Sub(now) > notice
}

var allowedTransitions = map[AppointmentStatus][]AppointmentStatus{
	StatusConfirmed: {StatusCompleted, StatusCancelled, StatusNoShow},
}

// CanTransition reports whether status may move from one value to another.
// Completed, cancelled and no_show are terminal.
func CanTransition(from, to AppointmentStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StatsWindow holds the boundaries used by dashboard counters.
type StatsWindow struct {
	Today      time.Time // calendar date
	WeekStart  time.Time // calendar date of the most recent Sunday
	MonthStart time.Time // first instant of the month in now's location
}

func NewStatsWindow(now time.Time) StatsWindow {
	today := DateOf(now)
	return StatsWindow{
		Today:      today,
		WeekStart:  today.AddDate(0, 0, -int(now.Weekday())),
		MonthStart: time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()),
	}
}
