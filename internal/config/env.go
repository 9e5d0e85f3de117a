package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override file values.
const (
	EnvHomeworkToken  = "PRAKTIKUM_TOKEN"
	EnvTelegramToken  = "TELEGRAM_TOKEN"
	EnvTelegramChatID = "TELEGRAM_CHAT_ID"
	EnvLogLevel       = "HWBOT_LOG_LEVEL"
)

// LoadDotEnv loads KEY=VALUE files into the process environment.
// Variables already set are not overwritten; missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overlays credentials and the log level from the environment.
// lookup is usually os.LookupEnv. Empty values are ignored.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if cfg == nil || lookup == nil {
		return nil
	}
	get := func(k string) (string, bool) {
		v, ok := lookup(k)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvHomeworkToken); ok {
		cfg.Homework.Token = v
	}
	if v, ok := get(EnvTelegramToken); ok {
		cfg.Telegram.Token = v
	}
	if v, ok := get(EnvTelegramChatID); ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: invalid chat id %q: %w", EnvTelegramChatID, v, err)
		}
		cfg.Telegram.ChatID = id
	}
	if v, ok := get(EnvLogLevel); ok {
		cfg.Logging.Level = v
	}
	return nil
}
