// Package maintenance decides whether disruptive work may run now.
package maintenance

import (
	"time"

	"github.com/robfig/cron/v3"

	operatorerrors "github.com/dc-tec/stream-operator/internal/errors"
)

// Parser accepts standard 5-field cron expressions: minute, hour, day-of-month,
// month, day-of-week.
var Parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Windows is a parsed set of maintenance windows. The zero value allows
// everything.
type Windows struct {
	exprs     []string
	schedules []cron.Schedule
}

// Parse compiles the given cron expressions. An invalid expression is a
// configuration error.
func Parse(exprs []string) (Windows, error) {
	w := Windows{}
	for _, expr := range exprs {
		schedule, err := Parser.Parse(expr)
		if err != nil {
			return Windows{}, operatorerrors.Configurationf("invalid maintenance window %q: %v", expr, err)
		}
		w.exprs = append(w.exprs, expr)
		w.schedules = append(w.schedules, schedule)
	}
	return w, nil
}

// Len returns the number of configured windows.
func (w Windows) Len() int {
	return len(w.schedules)
}

// Contains reports whether now lies inside a window, meaning one of the
// expressions fires during the minute containing now. Without windows every
// instant is inside.
func (w Windows) Contains(now time.Time) bool {
	if len(w.schedules) == 0 {
		return true
	}
	minute := now.Truncate(time.Minute)
	for _, schedule := range w.schedules {
		if schedule.Next(minute.Add(-time.Second)).Equal(minute) {
			return true
		}
	}
	return false
}

// Next returns the earliest time after now at which a window opens, or the
// zero time when no windows are configured.
func (w Windows) Next(now time.Time) time.Time {
	var next time.Time
	for _, schedule := range w.schedules {
		t := schedule.Next(now)
		if next.IsZero() || t.Before(next) {
			next = t
		}
	}
	return next
}

// String lists the source expressions.
func (w Windows) String() string {
	if len(w.exprs) == 0 {
		return "always"
	}
	out := w.exprs[0]
	for _, e := range w.exprs[1:] {
		out += "; " + e
	}
	return out
}
