package appointment

import "sort"

// SlotOptions tunes how bookings consume candidate slots.
type SlotOptions struct {
	// DurationAware blocks every candidate whose [t, t+step) range overlaps
	// a booking's [start, start+duration). When false a booking only removes
	// the candidate with the exact same start time, so services longer than
	// the window step can be double booked on the adjacent slots.
	DurationAware bool
}

// CandidateSlots walks one window from start to end in steps of the
// window's slot duration. Every returned point t satisfies start <= t < end.
func CandidateSlots(w AvailabilityWindow) []ClockTime {
	step := w.SlotDurationMinutes
	if step <= 0 || w.EndTime <= w.StartTime {
		return nil
	}

	out := make([]ClockTime, 0, (int(w.EndTime-w.StartTime)+step-1)/step)
	for t := w.StartTime; t < w.EndTime; t = t.Add(step) {
		out = append(out, t)
	}
	return out
}

// ComputeSlots merges the candidates of all available windows, removes the
// ones consumed by bookings and returns the remainder sorted and unique.
func ComputeSlots(windows []AvailabilityWindow, booked []BookedTime, opts SlotOptions) []ClockTime {
	exact := make(map[ClockTime]struct{}, len(booked))
	for _, b := range booked {
		exact[b.Time] = struct{}{}
	}

	seen := make(map[ClockTime]struct{})
	result := []ClockTime{}
	for _, w := range windows {
		if !w.IsAvailable {
			continue
		}
		for _, t := range CandidateSlots(w) {
			if _, dup := seen[t]; dup {
				continue
			}
			if _, taken := exact[t]; taken {
				continue
			}
			if opts.DurationAware && overlapsAny(t, w.SlotDurationMinutes, booked) {
				continue
			}
			seen[t] = struct{}{}
			result = append(result, t)
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// Half-open ranges: [t, t+step) overlaps [b, b+d) iff t < b+d && b < t+step.
func overlapsAny(t ClockTime, step int, booked []BookedTime) bool {
	for _, b := range booked {
		d := b.DurationMinutes
		if d <= 0 {
			continue
		}
		if t < b.Time.Add(d) && b.Time < t.Add(step) {
			return true
		}
	}
	return false
}

// fallbackGrid is shown when availability cannot be looked up, so customers
// can still pick a time instead of facing an error.
var fallbackGrid = []ClockTime{
	MustClock("09:00"), MustClock("09:30"), MustClock("10:00"),
	MustClock("10:30"), MustClock("11:00"), MustClock("11:30"),
	MustClock("14:00"), MustClock("14:30"), MustClock("15:00"),
	MustClock("15:30"), MustClock("16:00"), MustClock("16:30"),
}

// FallbackSlots returns a copy of the fixed default grid.
func FallbackSlots() []ClockTime {
	out := make([]ClockTime, len(fallbackGrid))
	copy(out, fallbackGrid)
	return out
}

// DefaultWindows is the schedule a new business starts with:
// Monday to Friday 09:00-17:00 in 30 minute slots.
func DefaultWindows() []AvailabilityWindow {
	windows := make([]AvailabilityWindow, 0, 5)
	for day := 1; day <= 5; day++ {
		windows = append(windows, AvailabilityWindow{
			DayOfWeek:           day,
			StartTime:           MustClock("09:00"),
			EndTime:             MustClock("17:00"),
			SlotDurationMinutes: 30,
			IsAvailable:         true,
		})
	}
	return windows
}
