// Main, unattended mode of operation.
package run

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AlexTransit/kiosk/cmd/kiosk/subcmd"
	"github.com/AlexTransit/kiosk/internal/state"
	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
)

var Mod = subcmd.Mod{Name: "run", Main: Main}

const (
	reportInterval   = 5 * time.Minute
	shutdownPoll     = 200 * time.Millisecond
	shutdownMaxDelay = 2 * time.Minute
)

func Main(ctx context.Context, args ...[]string) error {
	g := state.GetGlobal(ctx)
	if err := g.Init(ctx); err != nil {
		return errors.Annotate(err, "run init")
	}
	defer g.Stop()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	subcmd.SdNotify(daemon.SdNotifyReady)
	g.Log.Debugf("run init complete")

	report := time.NewTicker(reportInterval)
	defer report.Stop()
	var watchdog <-chan time.Time
	if d := subcmd.SdWatchdogInterval(); d > 0 {
		t := time.NewTicker(d)
		defer t.Stop()
		watchdog = t.C
	}

	for {
		select {
		case <-report.C:
			if err := g.Tele.Report(ctx); err != nil {
				g.Log.Errorf("tele report %v", err)
			}
		case <-watchdog:
			subcmd.SdNotify(daemon.SdNotifyWatchdog)
		case sig := <-sigs:
			g.Log.Infof("system signal - %v", sig)
			subcmd.SdNotify(daemon.SdNotifyStopping)
			waitIdle(g, shutdownMaxDelay)
			return nil
		case <-ctx.Done():
			waitIdle(g, shutdownMaxDelay)
			return nil
		}
	}
}

// waitIdle lets pending dispense finish before devices go down.
func waitIdle(g *state.Global, limit time.Duration) {
	deadline := time.Now().Add(limit)
	for !g.Money.CanShutdown() {
		if time.Now().After(deadline) {
			g.Log.Errorf("shutdown with dispense pending after %v", limit)
			return
		}
		time.Sleep(shutdownPoll)
	}
}
