package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	logx "hwbot/pkg/logx"
)

// ErrMissingRequired reports that a credential needed to start is absent.
// The process must not enter the poll loop when Validate returns it.
var ErrMissingRequired = errors.New("missing required configuration")

// Validate checks the whole config. All problems are reported at once.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	var errs []error

	var missing []string
	if strings.TrimSpace(cfg.Homework.Token) == "" {
		missing = append(missing, "homework.token ("+EnvHomeworkToken+")")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		missing = append(missing, "telegram.token ("+EnvTelegramToken+")")
	}
	if cfg.Telegram.ChatID == 0 {
		missing = append(missing, "telegram.chat_id ("+EnvTelegramChatID+")")
	}
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("%w: %s", ErrMissingRequired, strings.Join(missing, ", ")))
	}

	if err := ValidateRuntime(cfg); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ValidateRuntime checks everything except credentials. Used for hot reload,
// where credentials are not re-applied anyway.
func ValidateRuntime(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	var errs []error

	if ep := strings.TrimSpace(cfg.Homework.Endpoint); ep != "" {
		u, err := url.Parse(ep)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("homework.endpoint: invalid url %q", ep))
		}
	}
	if _, err := ParseDuration("homework.request_timeout", cfg.Homework.RequestTimeout); err != nil {
		errs = append(errs, err)
	}

	if strings.TrimSpace(cfg.Poll.Interval) != "" {
		if _, err := ParseInterval("poll.interval", cfg.Poll.Interval); err != nil {
			errs = append(errs, err)
		}
	}
	if strings.TrimSpace(cfg.Poll.RecoveryInterval) != "" {
		if _, err := ParseInterval("poll.recovery_interval", cfg.Poll.RecoveryInterval); err != nil {
			errs = append(errs, err)
		}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Poll.StartFrom)) {
	case "", StartFromNow, StartFromZero:
	default:
		errs = append(errs, fmt.Errorf("poll.start_from: must be %q or %q, got %q", StartFromNow, StartFromZero, cfg.Poll.StartFrom))
	}

	if _, err := ParseDuration("telegram.timeout", cfg.Telegram.Timeout); err != nil {
		errs = append(errs, err)
	}

	if n := cfg.Notifier; n != nil {
		if n.RatePerSec < 0 {
			errs = append(errs, fmt.Errorf("notifier.rate_per_sec must be >= 0"))
		}
		if n.HistorySize < 0 {
			errs = append(errs, fmt.Errorf("notifier.history_size must be >= 0"))
		}
		if _, err := ParseDuration("notifier.send_timeout", n.SendTimeout); err != nil {
			errs = append(errs, err)
		}
		if _, err := ParseDuration("notifier.dedup_window", n.DedupWindow); err != nil {
			errs = append(errs, err)
		}
	}

	if lvl := strings.TrimSpace(cfg.Logging.Level); lvl != "" {
		if _, ok := logx.ParseLevel(lvl); !ok {
			errs = append(errs, fmt.Errorf("logging.level: unknown level %q", lvl))
		}
	}
	if cfg.Logging.File.MaxSizeMB < 0 || cfg.Logging.File.MaxBackups < 0 || cfg.Logging.File.MaxAgeDays < 0 {
		errs = append(errs, fmt.Errorf("logging.file: rotation limits must be >= 0"))
	}

	return errors.Join(errs...)
}
