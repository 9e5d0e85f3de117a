package config

import (
	"strings"

	logx "hwbot/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections,
// (2) safe structured attrs for logging (never includes tokens), and
// (3) the changed sections that only take effect after a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 12)
	var restart []string

	oh, nh := oldCfg.Homework, newCfg.Homework
	if strings.TrimSpace(oh.Endpoint) != strings.TrimSpace(nh.Endpoint) ||
		strings.TrimSpace(oh.RequestTimeout) != strings.TrimSpace(nh.RequestTimeout) ||
		oh.Token != nh.Token {
		changed = append(changed, "homework")
		restart = append(restart, "homework")
		attrs = append(attrs,
			logx.String("homework.endpoint", strings.TrimSpace(nh.Endpoint)),
			logx.String("homework.request_timeout", strings.TrimSpace(nh.RequestTimeout)),
			logx.Bool("homework.token_changed", oh.Token != nh.Token),
		)
	}

	if oldCfg.Poll != newCfg.Poll {
		changed = append(changed, "poll")
		restart = append(restart, "poll")
		attrs = append(attrs,
			logx.String("poll.interval", newCfg.Poll.Interval),
			logx.String("poll.recovery_interval", newCfg.Poll.RecoveryInterval),
		)
	}

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot != nt {
		changed = append(changed, "telegram")
		restart = append(restart, "telegram")
		attrs = append(attrs,
			logx.Int64("telegram.chat_id", nt.ChatID),
			logx.Int("telegram.thread_id", nt.ThreadID),
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
		)
	}

	on, nn := derefNotifier(oldCfg.Notifier), derefNotifier(newCfg.Notifier)
	if on != nn {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Int("notifier.rate_per_sec", nn.RatePerSec),
			logx.String("notifier.dedup_window", nn.DedupWindow),
			logx.String("notifier.send_timeout", nn.SendTimeout),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	return changed, attrs, restart
}

func derefNotifier(n *NotifierConfig) NotifierConfig {
	if n == nil {
		return NotifierConfig{}
	}
	return *n
}
