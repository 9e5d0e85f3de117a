package config

// Config is the on-disk configuration (JSON or YAML).
//
// Credentials are usually supplied via environment (or a .env file) rather
// than the file itself; see ApplyEnv.
type Config struct {
	Homework HomeworkConfig  `json:"homework"`
	Poll     PollConfig      `json:"poll"`
	Telegram TelegramConfig  `json:"telegram"`
	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Logging  LoggingConfig   `json:"logging"`
}

// HomeworkConfig describes the remote status endpoint.
//
// Defaults (when fields are omitted/zero):
//   - endpoint: DefaultEndpoint
//   - request_timeout: "30s"
type HomeworkConfig struct {
	Endpoint string `json:"endpoint,omitempty"`
	// Token is sent as "Authorization: OAuth <token>" (do not log).
	Token          string `json:"token,omitempty"`
	RequestTimeout string `json:"request_timeout,omitempty"`
}

// PollConfig controls the poll cadence.
//
// Interval values accept a Go duration ("20m"), HH:MM ("00:20") or
// "@every 20m".
//
// Defaults:
//   - interval: "20m"
//   - recovery_interval: "10m"
//   - start_from: "now"
type PollConfig struct {
	Interval         string `json:"interval,omitempty"`
	RecoveryInterval string `json:"recovery_interval,omitempty"`
	// StartFrom selects the initial cursor: "now" or "zero".
	StartFrom string `json:"start_from,omitempty"`
}

type TelegramConfig struct {
	Token    string `json:"token,omitempty"`
	ChatID   int64  `json:"chat_id,omitempty"`
	ThreadID int    `json:"thread_id,omitempty"`
	// APIURL overrides the Bot API base URL (self-hosted bot API server).
	APIURL string `json:"api_url,omitempty"`
	// Timeout is a Go duration string for the Bot API HTTP client.
	Timeout string `json:"timeout,omitempty"`
}

// NotifierConfig controls delivery to the destination chat.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// If the whole section is omitted, defaults apply.
type NotifierConfig struct {
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	SendTimeout string `json:"send_timeout,omitempty"`
	// DedupWindow suppresses identical messages sent within the window.
	// "0s" (default) disables dedup.
	DedupWindow string `json:"dedup_window,omitempty"`
	HistorySize int    `json:"history_size,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty"`
}

const (
	DefaultEndpoint = "https://praktikum.yandex.ru/api/user_api/homework_statuses/"

	StartFromNow  = "now"
	StartFromZero = "zero"
)

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Homework: HomeworkConfig{
			Endpoint:       DefaultEndpoint,
			RequestTimeout: "30s",
		},
		Poll: PollConfig{
			Interval:         "20m",
			RecoveryInterval: "10m",
			StartFrom:        StartFromNow,
		},
		Logging: LoggingConfig{
			Level:   "debug",
			Console: true,
			File: LoggingFile{
				Enabled:    true,
				Path:       "./hwbot.log",
				MaxSizeMB:  50,
				MaxBackups: 5,
			},
		},
	}
}
