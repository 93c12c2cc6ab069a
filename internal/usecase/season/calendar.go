package season

import (
	"time"

	"guest-messaging/internal/domain"
)

type holidayPeriod struct {
	name       string
	startMonth time.Month
	startDay   int
	endMonth   time.Month
	endDay     int
}

// schoolHolidays — школьные каникулы (зона C), включая переход через новый год.
var schoolHolidays = []holidayPeriod{
	{name: "toussaint", startMonth: time.October, startDay: 19, endMonth: time.November, endDay: 3},
	{name: "noel", startMonth: time.December, startDay: 21, endMonth: time.January, endDay: 5},
	{name: "hiver", startMonth: time.February, startDay: 15, endMonth: time.March, endDay: 2},
	{name: "printemps", startMonth: time.April, startDay: 12, endMonth: time.April, endDay: 27},
	{name: "ete", startMonth: time.July, startDay: 5, endMonth: time.September, endDay: 1},
}

// extendedSummer — расширенный летний сезон.
var extendedSummer = holidayPeriod{name: "haute_saison", startMonth: time.June, startDay: 15, endMonth: time.September, endDay: 15}

type monthDay struct {
	month time.Month
	day   int
}

// publicHolidays — праздники с фиксированной датой.
var publicHolidays = []monthDay{
	{time.January, 1},
	{time.May, 1},
	{time.May, 8},
	{time.July, 14},
	{time.August, 15},
	{time.November, 1},
	{time.November, 11},
	{time.December, 25},
}

func (p holidayPeriod) contains(month time.Month, day int) bool {
	if p.startMonth == p.endMonth {
		return month == p.startMonth && day >= p.startDay && day <= p.endDay
	}
	if month == p.startMonth {
		return day >= p.startDay
	}
	if month == p.endMonth {
		return day <= p.endDay
	}
	if p.startMonth < p.endMonth {
		return month > p.startMonth && month < p.endMonth
	}
	// интервал через новый год
	return month > p.startMonth || month < p.endMonth
}

// IsSchoolHoliday сообщает, попадает ли дата в школьные каникулы. Нулевая дата даёт false.
func IsSchoolHoliday(date time.Time) bool {
	_, ok := SchoolHolidayName(date)
	return ok
}

// SchoolHolidayName возвращает название каникул, в которые попадает дата.
func SchoolHolidayName(date time.Time) (string, bool) {
	if date.IsZero() {
		return "", false
	}
	month, day := date.Month(), date.Day()
	for _, period := range schoolHolidays {
		if period.contains(month, day) {
			return period.name, true
		}
	}
	return "", false
}

// IsVacationPeriod учитывает каникулы, высокий летний сезон, выходные и праздники.
func IsVacationPeriod(date time.Time) bool {
	if date.IsZero() {
		return false
	}
	if IsSchoolHoliday(date) {
		return true
	}
	month, day := date.Month(), date.Day()
	if extendedSummer.contains(month, day) {
		return true
	}
	if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return true
	}
	for _, h := range publicHolidays {
		if h.month == month && h.day == day {
			return true
		}
	}
	return false
}

// Calendar реализует domain.SeasonCalendar на статических таблицах.
type Calendar struct{}

var _ domain.SeasonCalendar = Calendar{}

// IsSchoolHoliday реализует domain.SeasonCalendar.
func (Calendar) IsSchoolHoliday(date time.Time) bool { return IsSchoolHoliday(date) }

// IsVacationPeriod реализует domain.SeasonCalendar.
func (Calendar) IsVacationPeriod(date time.Time) bool { return IsVacationPeriod(date) }
