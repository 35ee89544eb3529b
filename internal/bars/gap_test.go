package bars

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/thewatergategroups/llama/internal/types"
)

type GapTestSuite struct {
	suite.Suite
}

func TestGapSuite(t *testing.T) {
	suite.Run(t, new(GapTestSuite))
}

// 2024-03-11 is a Monday.
func (suite *GapTestSuite) monday() time.Time {
	return time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
}

func (suite *GapTestSuite) TestExpectedMinuteTimestampsRespectSession() {
	day := suite.monday()
	expected := ExpectedTimestamps(types.TimeframeMinute, day, day.Add(24*time.Hour-time.Minute))

	// 7 session hours (13..19 inclusive) x 60 minutes
	suite.Len(expected, 7*60)
	for _, ts := range expected {
		suite.GreaterOrEqual(ts.Hour(), 13)
		suite.LessOrEqual(ts.Hour(), 19)
	}
}

func (suite *GapTestSuite) TestExpectedDayTimestampsSkipWeekends() {
	// Friday 2024-03-08 through Monday 2024-03-11
	start := time.Date(2024, 3, 8, 4, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 11, 4, 0, 0, 0, time.UTC)
	expected := ExpectedTimestamps(types.TimeframeDay, start, end)

	suite.Len(expected, 2)
	suite.Equal(time.Friday, expected[0].Weekday())
	suite.Equal(time.Monday, expected[1].Weekday())
}

func (suite *GapTestSuite) TestExpectedHourTimestampsHaveNoFilters() {
	start := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC) // a Saturday
	expected := ExpectedTimestamps(types.TimeframeHour, start, start.Add(23*time.Hour))

	suite.Len(expected, 24)
}

func (suite *GapTestSuite) TestMissingRangesEmptyStore() {
	day := suite.monday()
	end := day.Add(24*time.Hour - time.Minute)

	ranges := MissingRanges(types.TimeframeMinute, day, end, map[int64]struct{}{})

	// With nothing stored the whole session is one run
	suite.Len(ranges, 1)
	suite.Equal(time.Date(2024, 3, 11, 13, 0, 0, 0, time.UTC), ranges[0].From)
	suite.Equal(time.Date(2024, 3, 11, 19, 59, 0, 0, time.UTC), ranges[0].To)
}

func (suite *GapTestSuite) TestMissingRangesFullStore() {
	day := suite.monday()
	end := day.Add(24*time.Hour - time.Minute)

	existing := make(map[int64]struct{})
	for _, ts := range ExpectedTimestamps(types.TimeframeMinute, day, end) {
		existing[ts.Unix()] = struct{}{}
	}

	suite.Empty(MissingRanges(types.TimeframeMinute, day, end, existing))
}

func (suite *GapTestSuite) TestMissingRangesShortRunBelowAllowedGapIgnored() {
	day := suite.monday()
	end := day.Add(24*time.Hour - time.Minute)

	// Everything present except a 30 minute hole, shorter than the 60
	// minute allowed gap
	holeStart := time.Date(2024, 3, 11, 15, 0, 0, 0, time.UTC)
	existing := make(map[int64]struct{})
	for _, ts := range ExpectedTimestamps(types.TimeframeMinute, day, end) {
		if !ts.Before(holeStart) && ts.Before(holeStart.Add(30*time.Minute)) {
			continue
		}
		existing[ts.Unix()] = struct{}{}
	}

	suite.Empty(MissingRanges(types.TimeframeMinute, day, end, existing))
}

func (suite *GapTestSuite) TestMissingRangesWideHoleReported() {
	day := suite.monday()
	end := day.Add(24*time.Hour - time.Minute)

	// A two hour hole in the middle of the session
	holeStart := time.Date(2024, 3, 11, 14, 0, 0, 0, time.UTC)
	holeEnd := holeStart.Add(2 * time.Hour)
	existing := make(map[int64]struct{})
	for _, ts := range ExpectedTimestamps(types.TimeframeMinute, day, end) {
		if !ts.Before(holeStart) && ts.Before(holeEnd) {
			continue
		}
		existing[ts.Unix()] = struct{}{}
	}

	ranges := MissingRanges(types.TimeframeMinute, day, end, existing)
	suite.Len(ranges, 1)
	suite.Equal(holeStart, ranges[0].From)
	suite.Equal(holeEnd.Add(-time.Minute), ranges[0].To)
}

func (suite *GapTestSuite) TestMissingRangesMultipleHoles() {
	day := suite.monday()
	end := day.Add(24*time.Hour - time.Minute)

	holeA := types.TimeRange{
		From: time.Date(2024, 3, 11, 13, 30, 0, 0, time.UTC),
		To:   time.Date(2024, 3, 11, 15, 0, 0, 0, time.UTC),
	}
	holeB := types.TimeRange{
		From: time.Date(2024, 3, 11, 17, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 3, 11, 19, 0, 0, 0, time.UTC),
	}
	existing := make(map[int64]struct{})
	for _, ts := range ExpectedTimestamps(types.TimeframeMinute, day, end) {
		inA := !ts.Before(holeA.From) && ts.Before(holeA.To)
		inB := !ts.Before(holeB.From) && ts.Before(holeB.To)
		if inA || inB {
			continue
		}
		existing[ts.Unix()] = struct{}{}
	}

	ranges := MissingRanges(types.TimeframeMinute, day, end, existing)
	suite.Len(ranges, 2)
	suite.Equal(holeA.From, ranges[0].From)
	suite.Equal(holeA.To.Add(-time.Minute), ranges[0].To)
	suite.Equal(holeB.From, ranges[1].From)
	suite.Equal(holeB.To.Add(-time.Minute), ranges[1].To)
}

func (suite *GapTestSuite) TestMinuteRangeWithinOneDay() {
	// A request that starts and ends on the same day must still cover that
	// day's session, not collapse onto midnight and produce nothing.
	start := suite.monday().Add(9 * time.Hour)
	end := suite.monday().Add(16*time.Hour + 30*time.Minute)

	expected := ExpectedTimestamps(types.TimeframeMinute, start, end)
	suite.Require().NotEmpty(expected)
	suite.Equal(time.Date(2024, 3, 11, 13, 0, 0, 0, time.UTC), expected[0])
	suite.Equal(time.Date(2024, 3, 11, 16, 30, 0, 0, time.UTC), expected[len(expected)-1])
	// 13:00 through 16:30 inclusive
	suite.Len(expected, 3*60+31)

	ranges := MissingRanges(types.TimeframeMinute, start, end, map[int64]struct{}{})
	suite.Len(ranges, 1)
	suite.Equal(expected[0], ranges[0].From)
	suite.Equal(expected[len(expected)-1], ranges[0].To)
}

func (suite *GapTestSuite) TestMissingRangesDeterministic() {
	day := suite.monday()
	end := day.Add(24*time.Hour - time.Minute)

	first := MissingRanges(types.TimeframeMinute, day, end, map[int64]struct{}{})
	second := MissingRanges(types.TimeframeMinute, day, end, map[int64]struct{}{})

	suite.Equal(first, second)
}
