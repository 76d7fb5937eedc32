package coreskills

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	kerrors "github.com/jllopis/semkernel/pkg/errors"
	"github.com/jllopis/semkernel/pkg/orchestration"
)

const (
	dateLayout = "Monday, 02 January, 2006"
	nowLayout  = "Monday, January 02, 2006 03:04 PM"
)

// Time returns clock and calendar values. Now defaults to time.Now.
//
//	{{time.today}} => Sunday, 12 January, 2031
//	{{time.daysAgo 3}} => Thursday, 09 January, 2031
type Time struct {
	Now func() time.Time
}

func (t Time) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func (t Time) layout(layout string) func() string {
	return func() string { return t.now().Format(layout) }
}

// NativeFunctions implements kernel.NativeSkill.
func (t Time) NativeFunctions() []orchestration.NativeDefinition {
	return []orchestration.NativeDefinition{
		{Name: "date", Description: "Get the current date", Fn: t.layout(dateLayout)},
		{Name: "today", Description: "Get the current date", Fn: t.layout(dateLayout)},
		{Name: "now", Description: "Get the current date and time in the local time zone", Fn: t.layout(nowLayout)},
		{Name: "utcNow", Description: "Get the current date and time in UTC", Fn: func() string {
			return t.now().UTC().Format(nowLayout)
		}},
		{Name: "time", Description: "Get the current time", Fn: t.layout("03:04:05 PM")},
		{Name: "year", Description: "Get the current year", Fn: t.layout("2006")},
		{Name: "month", Description: "Get the current month name", Fn: t.layout("January")},
		{Name: "monthNumber", Description: "Get the current month number", Fn: t.layout("01")},
		{Name: "day", Description: "Get the current day of the month", Fn: t.layout("02")},
		{Name: "dayOfWeek", Description: "Get the current day of the week", Fn: t.layout("Monday")},
		{Name: "hour", Description: "Get the current clock hour", Fn: t.layout("03 PM")},
		{Name: "hourNumber", Description: "Get the current clock 24-hour number", Fn: t.layout("15")},
		{Name: "minute", Description: "Get the minutes on the current hour", Fn: t.layout("04")},
		{Name: "second", Description: "Get the seconds on the current minute", Fn: t.layout("05")},
		{Name: "timeZoneOffset", Description: "Get the local time zone offset", Fn: t.layout("-0700")},
		{Name: "timeZoneName", Description: "Get the local time zone name", Fn: t.layout("MST")},
		{
			Name:        "daysAgo",
			Description: "Get the date offset by a provided number of days from today",
			Input:       &orchestration.ParameterView{Name: "input", Description: "The number of days to offset from today"},
			Fn:          t.daysAgo,
		},
		{
			Name:        "dateMatchingLastDayName",
			Description: "Get the date of the last day matching the supplied week day name",
			Input:       &orchestration.ParameterView{Name: "input", Description: "The day name to match"},
			Fn:          t.dateMatchingLastDayName,
		},
	}
}

func (t Time) daysAgo(input string) (string, error) {
	days, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil {
		return "", kerrors.New(kerrors.CodeInvalidInput, fmt.Sprintf("days must be an integer: %q", input), err)
	}
	return t.now().AddDate(0, 0, -days).Format(dateLayout), nil
}

func (t Time) dateMatchingLastDayName(input string) (string, error) {
	name := strings.TrimSpace(input)
	now := t.now()
	for i := 1; i <= 7; i++ {
		d := now.AddDate(0, 0, -i)
		if strings.EqualFold(d.Weekday().String(), name) {
			return d.Format(dateLayout), nil
		}
	}
	return "", kerrors.New(kerrors.CodeInvalidInput, fmt.Sprintf("unknown day name %q", input), nil)
}
