// Package hardware builds cash devices from configuration and registers them.
package hardware

import (
	"github.com/AlexTransit/kiosk/currency"
	"github.com/AlexTransit/kiosk/hardware/acceptor"
	"github.com/AlexTransit/kiosk/hardware/device"
	"github.com/AlexTransit/kiosk/hardware/dispenser"
	"github.com/AlexTransit/kiosk/hardware/money"
	"github.com/AlexTransit/kiosk/helpers"
	config_global "github.com/AlexTransit/kiosk/internal/config"
	money_core "github.com/AlexTransit/kiosk/internal/money"
	"github.com/AlexTransit/kiosk/internal/store"
	"github.com/AlexTransit/kiosk/log2"
	"github.com/juju/errors"
)

type runner interface {
	device.Device
	Run()
	Stop()
}

// Devices are drivers created from configuration, in name order.
type Devices struct {
	Acceptors  map[string]*acceptor.Virtual
	Dispensers map[string]*dispenser.Virtual

	all []runner
}

// InitDevices registers every enabled configured device. A broken device
// block is reported and skipped, others are still registered.
func InitDevices(c *config_global.Config, service *device.Service, params store.ParamStore, log *log2.Log) (*Devices, error) {
	ds := &Devices{
		Acceptors:  make(map[string]*acceptor.Virtual),
		Dispensers: make(map[string]*dispenser.Virtual),
	}
	errs := make([]error, 0)
	for _, name := range c.DeviceNames() {
		dc := c.Hardware.Devices[name]
		devConf, err := dc.Device(c.Money.Currency)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if devConf.Disabled {
			log.Debugf("hardware device=%s disabled", name)
			continue
		}
		devLog := log
		if c.Hardware.LogDebug {
			devLog = log.Clone(log2.LDebug, "")
		}

		var dev runner
		switch {
		case devConf.Kind.Acceptor():
			v := acceptor.NewVirtual(acceptor.VirtualConfig{
				Name:           name,
				Kind:           devConf.Kind,
				CurrencyID:     c.Money.CurrencyID,
				NotesPerEscrow: dc.NotesPerEscrow,
			}, devLog)
			ds.Acceptors[name] = v
			dev = v
		case devConf.Kind == device.KindDispenser:
			if err := seedCashUnits(params, devConf, log); err != nil {
				errs = append(errs, err)
			}
			v := dispenser.NewVirtual(dispenser.VirtualConfig{
				Name:         name,
				Units:        devConf.Units,
				JammedItem:   dc.JammedItem,
				NearEndCount: dc.NearEndCount,
				ItemDelay:    dc.ItemDelay(),
				RejectOne:    dc.RejectOne,
			}, devLog)
			ds.Dispensers[name] = v
			dev = v
		}
		if err := service.Register(devConf, dev); err != nil {
			errs = append(errs, errors.Annotatef(err, "hardware device=%s", name))
			continue
		}
		ds.all = append(ds.all, dev)
	}
	return ds, helpers.FoldErrors(errs)
}

// seedCashUnits writes configured cassette load for dispenser that has no ledger yet.
func seedCashUnits(params store.ParamStore, dc device.Config, log *log2.Log) error {
	if len(dc.Nominals) == 0 {
		return nil
	}
	_, ok, err := params.GetDeviceParam(dc.Name, store.KeyCashUnits)
	if err != nil {
		return errors.Annotatef(err, "hardware device=%s seed cash units", dc.Name)
	}
	if ok {
		return nil
	}
	units := make([]money.CashUnit, len(dc.Nominals))
	for i, n := range dc.Nominals {
		units[i] = money.CashUnit{Currency: dc.Currency, Nominal: currency.Nominal(n)}
		if i < len(dc.Counts) {
			units[i].Count = dc.Counts[i]
		}
	}
	value := money_core.FormatUnits(units)
	log.Infof("hardware device=%s seed cash units=%s", dc.Name, value)
	return errors.Annotatef(params.SetDeviceParam(dc.Name, store.KeyCashUnits, value), "hardware device=%s seed cash units", dc.Name)
}
