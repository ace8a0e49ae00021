// Package subcmd is the command line mode registry.
package subcmd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
)

type Mod struct {
	Name string
	Main func(ctx context.Context, args ...[]string) error
}

func Parse(arg string, mods []Mod) (Mod, error) {
	if arg == "" {
		return Mod{}, errors.NotValidf("command empty")
	}
	for _, m := range mods {
		if m.Name == arg {
			return m, nil
		}
	}
	return Mod{}, errors.NotFoundf("command=%s", arg)
}

// SdNotify is true only when running under systemd with notify socket.
func SdNotify(s string) bool {
	ok, _ := daemon.SdNotify(false, s)
	return ok
}

// SdWatchdogInterval is half of systemd watchdog timeout, zero when watchdog is off.
func SdWatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0
	}
	return d / 2
}
