// Package acceptor incapsulates work with cash validators: bill and coin acceptors.
package acceptor

import (
	"context"

	"github.com/AlexTransit/kiosk/hardware/device"
	"github.com/AlexTransit/kiosk/hardware/money"
	"github.com/juju/errors"
)

type CashAcceptor interface {
	device.Device
	Receiver() money.Receiver

	SetEnable(ctx context.Context, enable bool) error
	Stack(ctx context.Context) error
	Reject(ctx context.Context) error
	// working par list, nominals outside of it are rejected by device itself
	SetParList(ctx context.Context, pars money.ParList) error

	OnEscrow(func(money.Par)) device.Subscription
	OnStacked(func([]money.Par)) device.Subscription
}

var _ CashAcceptor = Stub{}
var _ CashAcceptor = &Virtual{}

// Stub is used in place of configured device which failed to init.
type Stub struct{ DeviceName string }

func (s Stub) Name() string                { return s.DeviceName }
func (Stub) Kind() device.Kind             { return device.KindBillAcceptor }
func (Stub) Ready() bool                   { return false }
func (Stub) State() device.State           { return device.State{Model: "stub"} }
func (Stub) Receiver() money.Receiver      { return money.ReceiverBill }
func (Stub) SetEnable(context.Context, bool) error {
	return errors.NotSupportedf("acceptor.Stub.SetEnable")
}
func (Stub) Stack(context.Context) error  { return errors.NotSupportedf("acceptor.Stub.Stack") }
func (Stub) Reject(context.Context) error { return errors.NotSupportedf("acceptor.Stub.Reject") }
func (Stub) SetParList(context.Context, money.ParList) error { return nil }

func (Stub) OnStatus(func(money.StatusEvent)) device.Subscription { return device.Subscription{} }
func (Stub) OnEscrow(func(money.Par)) device.Subscription         { return device.Subscription{} }
func (Stub) OnStacked(func([]money.Par)) device.Subscription      { return device.Subscription{} }
