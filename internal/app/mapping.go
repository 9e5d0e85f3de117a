package app

import (
	"fmt"
	"strings"
	"time"

	"hwbot/internal/config"
	"hwbot/internal/homework"
	"hwbot/internal/notifier"
	"hwbot/internal/poller"
	kit "hwbot/internal/transport"
	telegram "hwbot/internal/transport/telegram/adapter"
	logx "hwbot/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled:    cfg.Logging.File.Enabled,
			Path:       cfg.Logging.File.Path,
			MaxSizeMB:  cfg.Logging.File.MaxSizeMB,
			MaxBackups: cfg.Logging.File.MaxBackups,
			MaxAgeDays: cfg.Logging.File.MaxAgeDays,
			Compress:   cfg.Logging.File.Compress,
		},
	}
}

func mapFetcherConfig(cfg *config.Config) (homework.Config, error) {
	timeout, err := config.DurationOrDefault("homework.request_timeout", cfg.Homework.RequestTimeout, 30*time.Second)
	if err != nil {
		return homework.Config{}, err
	}
	ep := strings.TrimSpace(cfg.Homework.Endpoint)
	if ep == "" {
		ep = config.DefaultEndpoint
	}
	return homework.Config{Endpoint: ep, Token: cfg.Homework.Token, Timeout: timeout}, nil
}

func mapAdapterConfig(cfg *config.Config) (telegram.Config, error) {
	timeout, err := config.DurationOrDefault("telegram.timeout", cfg.Telegram.Timeout, 15*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{Token: cfg.Telegram.Token, APIURL: cfg.Telegram.APIURL, Timeout: timeout}, nil
}

func mapPollConfig(cfg *config.Config) (poller.Config, error) {
	pc := poller.Config{
		Interval:         poller.DefaultInterval,
		RecoveryInterval: poller.DefaultRecoveryInterval,
	}
	if raw := strings.TrimSpace(cfg.Poll.Interval); raw != "" {
		d, err := config.ParseInterval("poll.interval", raw)
		if err != nil {
			return poller.Config{}, err
		}
		pc.Interval = d
	}
	if raw := strings.TrimSpace(cfg.Poll.RecoveryInterval); raw != "" {
		d, err := config.ParseInterval("poll.recovery_interval", raw)
		if err != nil {
			return poller.Config{}, err
		}
		pc.RecoveryInterval = d
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Poll.StartFrom)) {
	case "", config.StartFromNow:
	case config.StartFromZero:
		pc.StartFromZero = true
	default:
		return poller.Config{}, fmt.Errorf("poll.start_from: unknown value %q", cfg.Poll.StartFrom)
	}
	return pc, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	nc := notifier.Config{
		Target:         kit.ChatTarget{ChatID: cfg.Telegram.ChatID, ThreadID: cfg.Telegram.ThreadID},
		DisablePreview: true,
	}
	n := cfg.Notifier
	if n == nil {
		return nc, nil
	}
	if n.RatePerSec < 0 {
		return notifier.Config{}, fmt.Errorf("notifier.rate_per_sec must be >= 0")
	}
	if n.HistorySize < 0 {
		return notifier.Config{}, fmt.Errorf("notifier.history_size must be >= 0")
	}
	sendTimeout, err := config.ParseDuration("notifier.send_timeout", n.SendTimeout)
	if err != nil {
		return notifier.Config{}, err
	}
	dedup, err := config.ParseDuration("notifier.dedup_window", n.DedupWindow)
	if err != nil {
		return notifier.Config{}, err
	}
	nc.RatePerSec = n.RatePerSec
	nc.SendTimeout = sendTimeout
	nc.DedupWindow = dedup
	nc.HistorySize = n.HistorySize
	return nc, nil
}
