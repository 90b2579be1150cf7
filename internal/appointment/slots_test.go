package appointment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func window(day int, start, end string, step int) AvailabilityWindow {
	return AvailabilityWindow{
		DayOfWeek:           day,
		StartTime:           MustClock(start),
		EndTime:             MustClock(end),
		SlotDurationMinutes: step,
		IsAvailable:         true,
	}
}

func clocks(ss ...string) []ClockTime {
	out := make([]ClockTime, 0, len(ss))
	for _, s := range ss {
		out = append(out, MustClock(s))
	}
	return out
}

func TestCandidateSlots(t *testing.T) {
	tests := []struct {
		name  string
		w     AvailabilityWindow
		count int
		last  string
	}{
		{"even split", window(1, "09:00", "10:00", 30), 2, "09:30"},
		{"ragged end", window(1, "09:00", "10:00", 25), 3, "09:50"},
		{"step longer than window", window(1, "09:00", "09:20", 30), 1, "09:00"},
		{"full day", window(1, "00:00", "24:00", 60), 24, "23:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CandidateSlots(tt.w)
			require.Len(t, got, tt.count)
			assert.Equal(t, tt.w.StartTime, got[0])
			assert.Equal(t, MustClock(tt.last), got[len(got)-1])
			for _, c := range got {
				assert.True(t, c >= tt.w.StartTime && c < tt.w.EndTime, "slot %s out of range", c)
			}
		})
	}
}

func TestCandidateSlotsDegenerate(t *testing.T) {
	assert.Empty(t, CandidateSlots(window(1, "09:00", "10:00", 0)))
	assert.Empty(t, CandidateSlots(window(1, "10:00", "10:00", 30)))
	assert.Empty(t, CandidateSlots(window(1, "11:00", "10:00", 30)))
}

func TestComputeSlotsExactMatchBlocking(t *testing.T) {
	windows := []AvailabilityWindow{window(1, "09:00", "10:00", 30)}
	booked := []BookedTime{{Time: MustClock("09:30"), DurationMinutes: 60}}

	got := ComputeSlots(windows, booked, SlotOptions{})
	assert.Equal(t, clocks("09:00"), got)
}

func TestComputeSlotsMergesWindowsSortedAndUnique(t *testing.T) {
	windows := []AvailabilityWindow{
		window(1, "14:00", "15:00", 30),
		window(1, "09:00", "10:00", 30),
		window(1, "09:30", "10:30", 30),
	}

	got := ComputeSlots(windows, nil, SlotOptions{})
	assert.Equal(t, clocks("09:00", "09:30", "10:00", "14:00", "14:30"), got)
}

func TestComputeSlotsSkipsUnavailableWindows(t *testing.T) {
	closed := window(1, "09:00", "10:00", 30)
	closed.IsAvailable = false

	got := ComputeSlots([]AvailabilityWindow{closed}, nil, SlotOptions{})
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestComputeSlotsDurationAware(t *testing.T) {
	windows := []AvailabilityWindow{window(1, "09:00", "11:00", 30)}
	booked := []BookedTime{{Time: MustClock("09:00"), DurationMinutes: 60}}

	got := ComputeSlots(windows, booked, SlotOptions{DurationAware: true})
	assert.Equal(t, clocks("10:00", "10:30"), got)

	// Unknown duration only blocks its own start time.
	got = ComputeSlots(windows, []BookedTime{{Time: MustClock("09:30")}}, SlotOptions{DurationAware: true})
	assert.Equal(t, clocks("09:00", "10:00", "10:30"), got)
}

func TestFallbackSlots(t *testing.T) {
	got := FallbackSlots()
	require.Len(t, got, 12)
	assert.Equal(t, MustClock("09:00"), got[0])
	assert.Equal(t, MustClock("16:30"), got[11])

	got[0] = MustClock("23:00")
	assert.Equal(t, MustClock("09:00"), FallbackSlots()[0], "callers must not mutate the shared grid")
}

func TestDefaultWindows(t *testing.T) {
	ws := DefaultWindows()
	require.Len(t, ws, 5)
	for i, w := range ws {
		assert.Equal(t, i+1, w.DayOfWeek)
		assert.Len(t, CandidateSlots(w), 16)
	}
}
