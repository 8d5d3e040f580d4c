// Package timeplugin provides date and time tools for the model.
package timeplugin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harun/aoichat/pkg/tools"
)

const (
	dateLayout     = "Monday, January 2, 2006"
	timeLayout     = "03:04:05 PM"
	dateTimeLayout = "Monday, January 2, 2006 3:04 PM"
)

// Clock returns the current time
type Clock func() time.Time

// Options configures the time tools
type Options struct {
	Clock Clock
}

// Register adds all time tools to the registry
func Register(registry *tools.Registry, opts Options) error {
	if registry == nil {
		return errors.New("tool registry is required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	for _, def := range Definitions(clock) {
		if err := registry.Register(def); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", def.Name, err)
		}
	}
	return nil
}

// Definitions returns the time tool definitions bound to clock
func Definitions(clock Clock) []tools.Definition {
	return []tools.Definition{
		simple("date", "Get the current date", func(now time.Time) string { return now.Format(dateLayout) }, clock),
		simple("today", "Get the current date", func(now time.Time) string { return now.Format(dateLayout) }, clock),
		simple("now", "Get the current date and time in the local time zone", func(now time.Time) string { return now.Format(dateTimeLayout) }, clock),
		simple("utc_now", "Get the current UTC date and time", func(now time.Time) string { return now.UTC().Format(dateTimeLayout) }, clock),
		simple("time", "Get the current time", func(now time.Time) string { return now.Format(timeLayout) }, clock),
		simple("year", "Get the current year", func(now time.Time) string { return now.Format("2006") }, clock),
		simple("month", "Get the current month name", func(now time.Time) string { return now.Month().String() }, clock),
		simple("month_number", "Get the current month number", func(now time.Time) string { return now.Format("01") }, clock),
		simple("day", "Get the current day of the month", func(now time.Time) string { return now.Format("02") }, clock),
		simple("day_of_week", "Get the current day of the week", func(now time.Time) string { return now.Weekday().String() }, clock),
		simple("hour", "Get the current clock hour", func(now time.Time) string { return now.Format("3 PM") }, clock),
		simple("hour_number", "Get the current clock 24-hour number", func(now time.Time) string { return now.Format("15") }, clock),
		simple("minute", "Get the minutes on the current hour", func(now time.Time) string { return now.Format("04") }, clock),
		simple("second", "Get the seconds on the current minute", func(now time.Time) string { return now.Format("05") }, clock),
		simple("time_zone_offset", "Get the local time zone offset from UTC", func(now time.Time) string { return now.Format("-07:00") }, clock),
		simple("time_zone_name", "Get the local time zone name", func(now time.Time) string {
			name, _ := now.Zone()
			return name
		}, clock),
		daysAgoTool(clock),
		lastDayNameTool(clock),
	}
}

func simple(name, description string, format func(time.Time) string, clock Clock) tools.Definition {
	return tools.Definition{
		Name:        name,
		Description: description,
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			return format(clock()), nil
		},
	}
}

func daysAgoTool(clock Clock) tools.Definition {
	return tools.Definition{
		Name:        "days_ago",
		Description: "Get the date offset by a provided number of days from today",
		Parameters: []tools.Parameter{
			{Name: "days", Type: "number", Description: "The number of days to offset from today", Required: true},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			days, ok := params["days"].(float64)
			if !ok {
				return nil, fmt.Errorf("days must be a number")
			}
			return clock().AddDate(0, 0, -int(days)).Format(dateLayout), nil
		},
	}
}

func lastDayNameTool(clock Clock) tools.Definition {
	return tools.Definition{
		Name:        "date_matching_last_day_name",
		Description: "Get the date of the last day matching the supplied week day name",
		Parameters: []tools.Parameter{
			{Name: "day_name", Type: "string", Description: "The day name to match, e.g. Monday", Required: true},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			name, _ := params["day_name"].(string)
			weekday, err := parseWeekday(name)
			if err != nil {
				return nil, err
			}
			return DateMatchingLastDayName(clock(), weekday).Format(dateLayout), nil
		},
	}
}

// DateMatchingLastDayName returns the most recent day strictly before now that falls on weekday
func DateMatchingLastDayName(now time.Time, weekday time.Weekday) time.Time {
	for i := 1; i <= 7; i++ {
		candidate := now.AddDate(0, 0, -i)
		if candidate.Weekday() == weekday {
			return candidate
		}
	}
	return now.AddDate(0, 0, -7)
}

func parseWeekday(name string) (time.Weekday, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || (len(name) >= 3 && strings.HasPrefix(full, name)) {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown day name: %q", name)
}
