package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidLogLevels lists the zap levels accepted in logging.level
var ValidLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

// ValidPriorities lists ntfy message priorities
var ValidPriorities = map[string]bool{
	"min": true, "low": true, "default": true, "high": true, "urgent": true,
}

// ValidSeverities lists alert severities usable as notify.min_severity
var ValidSeverities = map[string]int{
	"INFO": 0, "WARNING": 1, "CRITICAL": 2,
}

// ValidCalendars lists exchange calendars for holiday roll-back
var ValidCalendars = map[string]bool{
	"none": true, "XNYS": true, "XBOM": true,
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

// ParseWeekday accepts full English weekday names, case-insensitively
func ParseWeekday(s string) (time.Weekday, error) {
	d, ok := weekdays[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown weekday %q", s)
	}
	return d, nil
}

// ParseCutoff parses an HH:MM wall-clock time
func ParseCutoff(s string) (int, int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid cutoff %q (want HH:MM): %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}
