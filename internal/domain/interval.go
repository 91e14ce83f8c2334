package domain

import (
	"fmt"
	"time"
)

// DateLayout is the date format used for collection date filters.
const DateLayout = "2006-01-02"

// DateInterval is a half-open acquisition window [Start, End).
type DateInterval struct {
	Start time.Time
	End   time.Time
}

// AnnualInterval returns the acquisition window for a sensor and year.
// The window starts on January 1st and covers one calendar year, or two
// when the sensor spec sets TwoYearWindow.
func AnnualInterval(spec SensorSpec, year int) DateInterval {
	years := 1
	if spec.TwoYearWindow {
		years = 2
	}
	return DateInterval{
		Start: time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(year+years, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
}

// CalendarYear returns [year-01-01, year+1-01-01) for any sensor.
func CalendarYear(year int) DateInterval {
	return AnnualInterval(SensorSpec{}, year)
}

// StartDate returns the formatted start date.
func (d DateInterval) StartDate() string {
	return d.Start.Format(DateLayout)
}

// EndDate returns the formatted (exclusive) end date.
func (d DateInterval) EndDate() string {
	return d.End.Format(DateLayout)
}

// Contains reports whether t falls inside the interval.
func (d DateInterval) Contains(t time.Time) bool {
	return !t.Before(d.Start) && t.Before(d.End)
}

// Years returns the number of calendar years covered.
func (d DateInterval) Years() int {
	return d.End.Year() - d.Start.Year()
}

// String returns a string representation of the interval.
func (d DateInterval) String() string {
	return fmt.Sprintf("[%s, %s)", d.StartDate(), d.EndDate())
}

// ValidateYear checks that a year is plausible for satellite archives.
func ValidateYear(year int) error {
	if year < 1972 || year > 9998 {
		return &ValidationError{
			Field:      "year",
			Value:      year,
			Constraint: "[1972, 9998]",
			Message:    "year must be within the satellite archive range",
		}
	}
	return nil
}
