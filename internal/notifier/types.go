package notifier

import (
	"errors"
	"time"

	kit "hwbot/internal/transport"
)

var ErrEmptyText = errors.New("notification text is empty")

// Config controls delivery to the fixed destination.
type Config struct {
	Target         kit.ChatTarget
	DisablePreview bool

	RatePerSec  int
	SendTimeout time.Duration
	// DedupWindow suppresses an identical text sent again within the window.
	// Zero disables dedup.
	DedupWindow     time.Duration
	DedupMaxEntries int
	HistorySize     int
}

type HistoryItem struct {
	At         time.Time
	Text       string
	Suppressed bool
	Err        string
}

// DeliveryError reports a failed send. The notifier never retries; the
// caller decides what to do.
type DeliveryError struct {
	Target kit.ChatTarget
	Err    error
}

func (e *DeliveryError) Error() string {
	return "notification delivery failed: " + e.Err.Error()
}

func (e *DeliveryError) Unwrap() error { return e.Err }
