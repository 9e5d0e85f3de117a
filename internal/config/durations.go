package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ParseDuration parses an optional non-negative Go duration. Empty means 0.
// path names the config key in errors.
func ParseDuration(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: %q is not a duration (e.g. \"30s\", \"5m\")", path, raw)
	case d < 0:
		return 0, fmt.Errorf("%s: negative duration %q", path, raw)
	}
	return d, nil
}

// DurationOrDefault is ParseDuration with zero replaced by def.
func DurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDuration(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParseInterval parses a fixed poll interval.
//
// Supported forms:
//   - Go duration: "20m", "1h30m"
//   - HH:MM: "00:20" (20 minutes), "02:30"
//   - cron descriptor: "@every 20m"
//
// Calendar cron expressions ("*/5 * * * *", "@hourly") are rejected: the loop
// sleeps a fixed duration between cycles and never aligns to wall-clock.
func ParseInterval(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("%s: interval required", path)
	}

	if strings.HasPrefix(s, "@") {
		sched, err := cron.ParseStandard(s)
		if err != nil {
			return 0, fmt.Errorf("%s: invalid schedule %q: %w", path, raw, err)
		}
		every, ok := sched.(cron.ConstantDelaySchedule)
		if !ok {
			return 0, fmt.Errorf("%s: %q is not a fixed interval (use \"@every <duration>\")", path, raw)
		}
		return every.Delay, nil
	}

	if m := reHHMM.FindStringSubmatch(s); len(m) == 3 {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return 0, fmt.Errorf("%s: invalid minutes in %q", path, raw)
		}
		d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
		if d <= 0 {
			return 0, fmt.Errorf("%s: interval must be > 0", path)
		}
		return d, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid interval %q (use '20m', '00:20' or '@every 20m')", path, raw)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: interval must be > 0", path)
	}
	return d, nil
}
