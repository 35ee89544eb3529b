package bars

import (
	"context"
	"time"

	"github.com/thewatergategroups/llama/internal/types"
)

// ExpectedTimestamps enumerates every bar timestamp a complete store would
// hold for the timeframe between start and end inclusive. The start is
// aligned onto the timeframe's grid; the end is only rounded to the minute,
// since aligning it would collapse a minute range onto midnight and drop the
// final day's session entirely. Weekends are excluded for weekday-only
// frames and minute bars are limited to the trading session hours.
func ExpectedTimestamps(timeframe types.Timeframe, start, end time.Time) []time.Time {
	start = timeframe.Align(start)
	end = end.UTC().Round(time.Minute)
	step := timeframe.Step()

	sessionStart, sessionEnd, hasSession := timeframe.SessionHours()

	var expected []time.Time
	for ts := start; !ts.After(end); ts = ts.Add(step) {
		if timeframe.WeekdaysOnly() && isWeekend(ts) {
			continue
		}
		if hasSession && (ts.Hour() < sessionStart || ts.Hour() > sessionEnd) {
			continue
		}
		expected = append(expected, ts)
	}

	return expected
}

// MissingRanges compares the expected timestamp series against the existing
// set (keyed by Unix seconds) and returns the contiguous runs of missing
// timestamps wide enough to be worth fetching. A run in the middle of the
// span is reported only when it spans more than one timestamp and exceeds
// the timeframe's allowed gap; the trailing run only needs to exceed the
// allowed gap.
func MissingRanges(timeframe types.Timeframe, start, end time.Time, existing map[int64]struct{}) []types.TimeRange {
	step := timeframe.Step()
	allowed := timeframe.AllowedGap()

	var missing []time.Time
	for _, ts := range ExpectedTimestamps(timeframe, start, end) {
		if _, ok := existing[ts.Unix()]; !ok {
			missing = append(missing, ts)
		}
	}

	if len(missing) == 0 {
		return nil
	}

	var ranges []types.TimeRange
	runStart := missing[0]
	for i := 0; i < len(missing)-1; i++ {
		if missing[i+1].Sub(missing[i]) > step {
			runEnd := missing[i]
			if !runStart.Equal(runEnd) && runEnd.Sub(runStart) > allowed {
				ranges = append(ranges, types.TimeRange{From: runStart, To: runEnd})
			}
			runStart = missing[i+1]
		}
	}

	last := missing[len(missing)-1]
	if last.Sub(runStart) > allowed {
		ranges = append(ranges, types.TimeRange{From: runStart, To: last})
	}

	return ranges
}

// Detector finds missing bar ranges by comparing a store snapshot against
// the expected timestamp series.
type Detector struct {
	store *Store
}

// NewDetector creates a Detector backed by the given store.
func NewDetector(store *Store) *Detector {
	return &Detector{store: store}
}

// MissingRanges reports the fetchable gaps for one symbol between start and
// end. The result reflects the store contents at query time.
func (d *Detector) MissingRanges(ctx context.Context, symbol string, timeframe types.Timeframe, start, end time.Time) ([]types.TimeRange, error) {
	existing, err := d.store.Timestamps(ctx, symbol, timeframe, timeframe.Align(start), end.UTC().Round(time.Minute))
	if err != nil {
		return nil, err
	}

	return MissingRanges(timeframe, start, end, existing), nil
}

func isWeekend(ts time.Time) bool {
	day := ts.Weekday()

	return day == time.Saturday || day == time.Sunday
}
