package gtfs

import (
	"sort"
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/us"
)

// Calendar is a gtfs calendar row: the weekdays and date range a service id
// runs on.
type Calendar struct {
	ServiceId string    `db:"service_id"`
	DataSetId int64     `db:"data_set_id"`
	Monday    bool      `db:"monday"`
	Tuesday   bool      `db:"tuesday"`
	Wednesday bool      `db:"wednesday"`
	Thursday  bool      `db:"thursday"`
	Friday    bool      `db:"friday"`
	Saturday  bool      `db:"saturday"`
	Sunday    bool      `db:"sunday"`
	StartDate time.Time `db:"start_date"`
	EndDate   time.Time `db:"end_date"`
}

const (
	ServiceAdded   = 1
	ServiceRemoved = 2
)

// CalendarDate is a gtfs calendar_dates row, an exception to a Calendar.
type CalendarDate struct {
	ServiceId     string    `db:"service_id"`
	DataSetId     int64     `db:"data_set_id"`
	Date          time.Time `db:"date"`
	ExceptionType int       `db:"exception_type"`
}

// ServiceCalendar answers which service ids run on a given date, applying
// calendar_dates exceptions and, when enabled, observed US holidays. A
// holiday that lands on a weekday runs the Sunday service instead.
type ServiceCalendar struct {
	calendars []Calendar
	added     map[string][]string
	removed   map[string]map[string]bool
	holidays  *cal.BusinessCalendar
}

// NewServiceCalendar builds a ServiceCalendar. observeHolidays substitutes
// Sunday service on observed US holidays.
func NewServiceCalendar(calendars []Calendar, dates []CalendarDate, observeHolidays bool) *ServiceCalendar {
	sc := ServiceCalendar{
		calendars: calendars,
		added:     make(map[string][]string),
		removed:   make(map[string]map[string]bool),
	}
	for _, cd := range dates {
		key := dateKey(cd.Date)
		switch cd.ExceptionType {
		case ServiceAdded:
			sc.added[key] = append(sc.added[key], cd.ServiceId)
		case ServiceRemoved:
			if sc.removed[key] == nil {
				sc.removed[key] = make(map[string]bool)
			}
			sc.removed[key][cd.ServiceId] = true
		}
	}
	if observeHolidays {
		sc.holidays = cal.NewBusinessCalendar()
		sc.holidays.AddHoliday(us.Holidays...)
	}
	return &sc
}

func dateKey(date time.Time) string {
	return date.Format("20060102")
}

// ActiveServiceIds produces the sorted service ids running on date.
func (sc *ServiceCalendar) ActiveServiceIds(date time.Time) []string {
	key := dateKey(date)
	weekday := date.Weekday()
	if sc.holidays != nil && weekday >= time.Monday && weekday <= time.Friday {
		if _, observed, _ := sc.holidays.IsHoliday(date); observed {
			weekday = time.Sunday
		}
	}

	present := make(map[string]bool)
	for _, c := range sc.calendars {
		if date.Before(Get12AmTime(c.StartDate)) || date.After(c.EndDate.AddDate(0, 0, 1)) {
			continue
		}
		if c.runsOn(weekday) {
			present[c.ServiceId] = true
		}
	}
	for _, serviceId := range sc.added[key] {
		present[serviceId] = true
	}
	for serviceId := range sc.removed[key] {
		delete(present, serviceId)
	}

	result := make([]string, 0, len(present))
	for serviceId := range present {
		result = append(result, serviceId)
	}
	sort.Strings(result)
	return result
}

func (c *Calendar) runsOn(weekday time.Weekday) bool {
	switch weekday {
	case time.Monday:
		return c.Monday
	case time.Tuesday:
		return c.Tuesday
	case time.Wednesday:
		return c.Wednesday
	case time.Thursday:
		return c.Thursday
	case time.Friday:
		return c.Friday
	case time.Saturday:
		return c.Saturday
	default:
		return c.Sunday
	}
}
