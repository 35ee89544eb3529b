package types

import (
	"time"

	"github.com/thewatergategroups/llama/pkg/errors"
)

// Timeframe represents the sampling interval of a bar series.
type Timeframe string

const (
	TimeframeMinute Timeframe = "1Min"
	TimeframeHour   Timeframe = "1Hour"
	TimeframeDay    Timeframe = "1Day"
	TimeframeWeek   Timeframe = "1Week"
	TimeframeMonth  Timeframe = "1Month"
)

// Step returns the spacing between consecutive bars of this timeframe.
// Months are approximated as four weeks.
func (t Timeframe) Step() time.Duration {
	switch t {
	case TimeframeMinute:
		return time.Minute
	case TimeframeHour:
		return time.Hour
	case TimeframeDay:
		return 24 * time.Hour
	case TimeframeWeek:
		return 7 * 24 * time.Hour
	case TimeframeMonth:
		return 4 * 7 * 24 * time.Hour
	default:
		return 0
	}
}

// AllowedGap returns the largest spacing between adjacent bars that is not
// treated as missing data. Gaps wider than this become fetch candidates.
func (t Timeframe) AllowedGap() time.Duration {
	switch t {
	case TimeframeMinute:
		return 60 * time.Minute
	case TimeframeHour:
		return time.Hour
	case TimeframeDay:
		return 24 * time.Hour
	case TimeframeWeek:
		return 7 * 24 * time.Hour
	case TimeframeMonth:
		return 4 * 7 * 24 * time.Hour
	default:
		return 0
	}
}

// WeekdaysOnly reports whether bars of this timeframe only exist on trading
// weekdays. Saturdays and Sundays are never expected for these frames.
func (t Timeframe) WeekdaysOnly() bool {
	return t == TimeframeMinute || t == TimeframeDay
}

// SessionHours returns the inclusive UTC hour range within which minute bars
// are expected, and whether the restriction applies to this timeframe.
func (t Timeframe) SessionHours() (start, end int, ok bool) {
	if t == TimeframeMinute {
		return 13, 19, true
	}

	return 0, 0, false
}

// Align normalizes a raw timestamp onto this timeframe's grid:
//   - day bars anchor at 04:00 UTC, rolling back a day for times before 04:00
//   - minute bars anchor ranges at midnight
//   - everything rounds to the nearest whole minute
func (t Timeframe) Align(ts time.Time) time.Time {
	ts = ts.UTC()

	switch t {
	case TimeframeDay:
		if ts.Hour() < 4 {
			ts = ts.AddDate(0, 0, -1)
		}
		ts = time.Date(ts.Year(), ts.Month(), ts.Day(), 4, 0, 0, 0, time.UTC)
	case TimeframeMinute:
		ts = time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	}

	return ts.Round(time.Minute)
}

// Validate returns an error if the timeframe is not a known value.
func (t Timeframe) Validate() error {
	switch t {
	case TimeframeMinute, TimeframeHour, TimeframeDay, TimeframeWeek, TimeframeMonth:
		return nil
	default:
		return errors.Newf(errors.ErrCodeInvalidTimeframe, "unknown timeframe: %s", string(t))
	}
}
