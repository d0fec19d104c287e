// Package store – schedule.go holds the type-specific scheduling rule
// shared by task creation and scheduler reschedules.
package store

import "time"

// NextRunAfter computes a task's next evaluation time from its type.
// Price monitors get a fast first check; reports follow their configured
// interval; unknown types fall back to a conservative default.
func NextRunAfter(now time.Time, taskType string, cfg TaskConfig) time.Time {
	switch taskType {
	case TaskPriceMonitor:
		return now.Add(1 * time.Minute)
	case TaskScheduledReport:
		interval := cfg.Interval
		if interval <= 0 {
			interval = 60
		}
		return now.Add(time.Duration(interval) * time.Minute)
	default:
		return now.Add(5 * time.Minute)
	}
}
