package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	// ErrInvalidSchedule is returned when a schedule cannot be parsed.
	ErrInvalidSchedule = errors.New("invalid schedule configuration")

	// standard 5-field cron plus descriptors such as @hourly or @every 5m
	scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
)

// ParseSchedule parses the cron expression of s in its timezone (UTC when empty).
func ParseSchedule(s ScheduleConfig) (cron.Schedule, error) {
	spec := strings.TrimSpace(s.Cron)
	if spec == "" {
		return nil, fmt.Errorf("%w: empty cron expression", ErrInvalidSchedule)
	}

	if strings.HasPrefix(spec, "TZ=") || strings.HasPrefix(spec, "CRON_TZ=") {
		return nil, fmt.Errorf("%w: use the timezone field instead of an inline TZ prefix", ErrInvalidSchedule)
	}

	timezone := s.Timezone
	if timezone == "" {
		timezone = "UTC"
	}

	if _, err := time.LoadLocation(timezone); err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %w", ErrInvalidSchedule, timezone, err)
	}

	spec = "CRON_TZ=" + timezone + " " + spec

	schedule, err := scheduleParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidSchedule, s.Cron, err)
	}

	return schedule, nil
}

// NextRun returns the first activation of s strictly after from.
func NextRun(s ScheduleConfig, from time.Time) (time.Time, error) {
	schedule, err := ParseSchedule(s)
	if err != nil {
		return time.Time{}, err
	}

	return schedule.Next(from), nil
}
