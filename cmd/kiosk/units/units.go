// Offline look at dispenser ledgers, devices stay untouched.
package units

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/AlexTransit/kiosk/cmd/kiosk/subcmd"
	"github.com/AlexTransit/kiosk/hardware/device"
	"github.com/AlexTransit/kiosk/hardware/money"
	money_core "github.com/AlexTransit/kiosk/internal/money"
	"github.com/AlexTransit/kiosk/internal/state"
	"github.com/AlexTransit/kiosk/internal/store"
	"github.com/juju/errors"
	"github.com/shopspring/decimal"
)

var Mod = subcmd.Mod{Name: "units", Main: Main}

func Main(ctx context.Context, args ...[]string) error {
	g := state.GetGlobal(ctx)
	if err := g.OpenStore(); err != nil {
		return errors.Annotate(err, "units")
	}
	defer g.Store.Close()
	return Print(os.Stdout, g)
}

// Print writes persisted cash units and total of every configured dispenser.
func Print(w io.Writer, g *state.Global) error {
	for _, name := range g.Config.DeviceNames() {
		dc := g.Config.Hardware.Devices[name]
		if dc.Kind != string(device.KindDispenser) {
			continue
		}
		s, ok, err := g.Store.GetDeviceParam(name, store.KeyCashUnits)
		if err != nil {
			return errors.Annotatef(err, "dispenser=%s", name)
		}
		if !ok {
			fmt.Fprintf(w, "%s no ledger\n", name)
			continue
		}
		units, err := money_core.ParseUnits(s)
		if err != nil {
			return errors.Annotatef(err, "dispenser=%s", name)
		}
		fmt.Fprintf(w, "%s %s total=%s\n", name, money_core.FormatUnits(units), total(units).StringFixed(2))
	}
	return nil
}

func total(units []money.CashUnit) decimal.Decimal {
	sum := decimal.Zero
	for _, u := range units {
		sum = sum.Add(u.Amount())
	}
	return sum
}
