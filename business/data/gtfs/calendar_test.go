package gtfs

import (
	"testing"
	"time"

	"github.com/matryer/is"
)

func testCalendars(location *time.Location) []Calendar {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, location)
	end := time.Date(2023, 12, 31, 0, 0, 0, 0, location)
	return []Calendar{
		{ServiceId: "WEEKDAY", Monday: true, Tuesday: true, Wednesday: true,
			Thursday: true, Friday: true, StartDate: start, EndDate: end},
		{ServiceId: "SAT", Saturday: true, StartDate: start, EndDate: end},
		{ServiceId: "SUN", Sunday: true, StartDate: start, EndDate: end},
	}
}

func TestActiveServiceIds(t *testing.T) {
	is := is.New(t)
	location, err := time.LoadLocation("America/Los_Angeles")
	is.NoErr(err)

	dates := []CalendarDate{
		{ServiceId: "SPECIAL", Date: time.Date(2023, 6, 7, 0, 0, 0, 0, location), ExceptionType: ServiceAdded},
		{ServiceId: "WEEKDAY", Date: time.Date(2023, 6, 8, 0, 0, 0, 0, location), ExceptionType: ServiceRemoved},
	}
	sc := NewServiceCalendar(testCalendars(location), dates, false)

	tests := []struct {
		name string
		date time.Time
		want []string
	}{
		{"monday", time.Date(2023, 6, 5, 0, 0, 0, 0, location), []string{"WEEKDAY"}},
		{"saturday", time.Date(2023, 6, 10, 0, 0, 0, 0, location), []string{"SAT"}},
		{"sunday", time.Date(2023, 6, 11, 0, 0, 0, 0, location), []string{"SUN"}},
		{"added service", time.Date(2023, 6, 7, 0, 0, 0, 0, location), []string{"SPECIAL", "WEEKDAY"}},
		{"removed service", time.Date(2023, 6, 8, 0, 0, 0, 0, location), []string{}},
		{"outside range", time.Date(2024, 6, 5, 0, 0, 0, 0, location), []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sc.ActiveServiceIds(tt.date)
			if len(got) != len(tt.want) {
				t.Fatalf("ActiveServiceIds(%v) = %v, want %v", tt.date, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ActiveServiceIds(%v) = %v, want %v", tt.date, got, tt.want)
				}
			}
		})
	}
}

func TestActiveServiceIdsHolidaySubstitution(t *testing.T) {
	is := is.New(t)
	location, err := time.LoadLocation("America/Los_Angeles")
	is.NoErr(err)
	sc := NewServiceCalendar(testCalendars(location), nil, true)

	// July 4th 2023 is a Tuesday, Sunday service runs instead
	ids := sc.ActiveServiceIds(time.Date(2023, 7, 4, 0, 0, 0, 0, location))
	is.Equal(ids, []string{"SUN"})

	// the following Tuesday is a regular weekday
	ids = sc.ActiveServiceIds(time.Date(2023, 7, 11, 0, 0, 0, 0, location))
	is.Equal(ids, []string{"WEEKDAY"})
}
