package app

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"hwbot/internal/homework"
	"hwbot/internal/poller"
)

// formatStatus renders the one-line systemd STATUS for a finished cycle.
// lastSent is the time of the latest delivered message (zero if none).
func formatStatus(out poller.Outcome, lastSent, now time.Time) string {
	next := humanize.RelTime(out.At.Add(out.Sleep), now, "ago", "from now")
	if out.FetchErr != nil {
		return fmt.Sprintf("status endpoint unavailable (%s, %d in a row); retry %s",
			homework.KindName(out.FetchErr), out.ConsecutiveFailures, next)
	}
	state := "idle"
	switch {
	case out.Notified:
		state = "notified"
	case out.DeliveryErr != nil:
		state = "delivery failed"
	}
	line := fmt.Sprintf("%s; cursor %s; next poll %s",
		state, humanize.RelTime(time.Unix(out.CursorAfter, 0), now, "ago", "from now"), next)
	if !out.Notified && !lastSent.IsZero() {
		line += "; last message " + humanize.RelTime(lastSent, now, "ago", "from now")
	}
	return line
}
