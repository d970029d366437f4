package app

import (
	"context"
	"time"

	logx "reportd/pkg/logx"

	"github.com/coreos/go-systemd/v22/daemon"
)

// sdNotify reports a state change to the service manager. It is a no-op
// unless the process runs under systemd with NOTIFY_SOCKET set.
func (a *App) sdNotify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		a.log.Warn("systemd notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		a.log.Debug("systemd notified", logx.String("state", state))
	}
}

// startWatchdog pings the systemd watchdog at half the configured interval
// for as long as the supervisor runs.
func (a *App) startWatchdog() {
	every, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		a.log.Warn("systemd watchdog settings unreadable", logx.Err(err))
		return
	}
	if every <= 0 {
		return
	}
	every /= 2
	a.log.Info("systemd watchdog enabled", logx.Duration("every", every))
	a.sup.Go0("systemd.watchdog", func(ctx context.Context) {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				a.sdNotify(daemon.SdNotifyWatchdog)
			}
		}
	})
}
