// Package systemd reports service state to the systemd manager via sd_notify.
// Every call is a no-op when the process was not started by systemd.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Ready tells systemd that startup finished (Type=notify units).
func Ready() (bool, error) { return daemon.SdNotify(false, daemon.SdNotifyReady) }

// Stopping tells systemd that shutdown has begun.
func Stopping() (bool, error) { return daemon.SdNotify(false, daemon.SdNotifyStopping) }

// Status sets the free-form status line shown by `systemctl status`.
func Status(msg string) (bool, error) { return daemon.SdNotify(false, "STATUS="+msg) }

// Watchdog pings the service watchdog at half of WatchdogSec until ctx is
// done. It returns immediately when the watchdog is not enabled for this
// process, and returns an error only when the watchdog environment is
// malformed. A failed ping is passed to onErr (if non-nil) and pinging
// continues.
func Watchdog(ctx context.Context, onErr func(error)) error {
	every, err := daemon.SdWatchdogEnabled(false)
	if err != nil || every <= 0 {
		return err
	}
	t := time.NewTicker(every / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil && onErr != nil {
				onErr(err)
			}
		}
	}
}
