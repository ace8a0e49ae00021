// Package dispenser incapsulates work with cash dispensers (hoppers, bill recyclers).
package dispenser

import (
	"context"

	"github.com/AlexTransit/kiosk/hardware/device"
	"github.com/AlexTransit/kiosk/hardware/money"
	"github.com/juju/errors"
)

// Dispensed is reported by device after physical dispense or reject of items from unit.
type Dispensed struct {
	Unit  int
	Items int
}

type Dispenser interface {
	device.Device
	Units() int
	UnitReady(unit int) bool
	// push ledger counts down to device
	SetUnitList(units []money.CashUnit)
	// Dispense only starts operation, result comes with OnDispensed
	Dispense(ctx context.Context, unit, items int) error

	OnDispensed(func(Dispensed)) device.Subscription
	OnRejected(func(Dispensed)) device.Subscription
	OnUnitEmpty(func(unit int)) device.Subscription
	OnUnitsDefined(func(units int)) device.Subscription
}

var _ Dispenser = Stub{}
var _ Dispenser = &Virtual{}

type Stub struct{ DeviceName string }

func (s Stub) Name() string                 { return s.DeviceName }
func (Stub) Kind() device.Kind              { return device.KindDispenser }
func (Stub) Ready() bool                    { return false }
func (Stub) State() device.State            { return device.State{Model: "stub"} }
func (Stub) Units() int                     { return 0 }
func (Stub) UnitReady(int) bool             { return false }
func (Stub) SetUnitList([]money.CashUnit)   {}
func (Stub) Dispense(context.Context, int, int) error {
	return errors.NotSupportedf("dispenser.Stub.Dispense")
}

func (Stub) OnStatus(func(money.StatusEvent)) device.Subscription { return device.Subscription{} }
func (Stub) OnDispensed(func(Dispensed)) device.Subscription      { return device.Subscription{} }
func (Stub) OnRejected(func(Dispensed)) device.Subscription       { return device.Subscription{} }
func (Stub) OnUnitEmpty(func(int)) device.Subscription            { return device.Subscription{} }
func (Stub) OnUnitsDefined(func(int)) device.Subscription         { return device.Subscription{} }
