package money

import (
	"context"
	"sync"
	"testing"

	"github.com/AlexTransit/kiosk/currency"
	"github.com/AlexTransit/kiosk/hardware/acceptor"
	"github.com/AlexTransit/kiosk/hardware/device"
	"github.com/AlexTransit/kiosk/hardware/dispenser"
	"github.com/AlexTransit/kiosk/hardware/money"
	"github.com/AlexTransit/kiosk/internal/payment"
	"github.com/AlexTransit/kiosk/internal/store/memory"
	"github.com/AlexTransit/kiosk/internal/types"
	"github.com/AlexTransit/kiosk/log2"
	"github.com/juju/errors"
	"github.com/stretchr/testify/require"
)

// fakeAcceptor records commands, test drives callbacks explicitly.
type fakeAcceptor struct {
	name      string
	kind      device.Kind
	lk        sync.Mutex
	ready     bool
	enabled   bool
	enableErr error
	calls     []string

	escrowSig  device.Signal[money.Par]
	stackedSig device.Signal[[]money.Par]
	statusSig  device.Signal[money.StatusEvent]
}

var _ acceptor.CashAcceptor = &fakeAcceptor{}
var _ dispenser.Dispenser = &fakeDispenser{}

func newFakeAcceptor(name string) *fakeAcceptor {
	return &fakeAcceptor{name: name, kind: device.KindBillAcceptor, ready: true}
}

func (f *fakeAcceptor) Name() string      { return f.name }
func (f *fakeAcceptor) Kind() device.Kind { return f.kind }
func (f *fakeAcceptor) Ready() bool {
	f.lk.Lock()
	defer f.lk.Unlock()
	return f.ready
}
func (f *fakeAcceptor) State() device.State {
	return device.State{Model: "fake", Serial: f.name, Firmware: "0"}
}
func (f *fakeAcceptor) Receiver() money.Receiver { return money.ReceiverBill }
func (f *fakeAcceptor) OnStatus(fn func(money.StatusEvent)) device.Subscription {
	return f.statusSig.Subscribe(fn)
}
func (f *fakeAcceptor) OnEscrow(fn func(money.Par)) device.Subscription {
	return f.escrowSig.Subscribe(fn)
}
func (f *fakeAcceptor) OnStacked(fn func([]money.Par)) device.Subscription {
	return f.stackedSig.Subscribe(fn)
}

func (f *fakeAcceptor) record(call string) {
	f.lk.Lock()
	f.calls = append(f.calls, call)
	f.lk.Unlock()
}

func (f *fakeAcceptor) Calls() []string {
	f.lk.Lock()
	defer f.lk.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAcceptor) SetEnable(_ context.Context, enable bool) error {
	if enable {
		f.record("enable")
	} else {
		f.record("disable")
	}
	f.lk.Lock()
	defer f.lk.Unlock()
	if f.enableErr != nil {
		return f.enableErr
	}
	f.enabled = enable
	return nil
}
func (f *fakeAcceptor) Stack(context.Context) error  { f.record("stack"); return nil }
func (f *fakeAcceptor) Reject(context.Context) error { f.record("reject"); return nil }
func (f *fakeAcceptor) SetParList(context.Context, money.ParList) error {
	f.record("par_list")
	return nil
}

func (f *fakeAcceptor) escrow(n currency.Nominal) {
	f.escrowSig.Emit(money.Par{Nominal: n, Receiver: money.ReceiverBill})
}
func (f *fakeAcceptor) stacked(ns ...currency.Nominal) {
	pars := make([]money.Par, len(ns))
	for i, n := range ns {
		pars[i] = money.Par{Nominal: n, Receiver: money.ReceiverBill}
	}
	f.stackedSig.Emit(pars)
}
func (f *fakeAcceptor) status(raw int) { f.statusSig.Emit(money.NewStatusEvent(raw)) }

type dispenseCall struct{ unit, items int }

type fakeDispenser struct {
	name        string
	lk          sync.Mutex
	units       int
	notReady    map[int]bool
	dispenseErr error
	calls       []dispenseCall
	unitLists   [][]money.CashUnit

	dispensedSig device.Signal[dispenser.Dispensed]
	rejectedSig  device.Signal[dispenser.Dispensed]
	emptySig     device.Signal[int]
	definedSig   device.Signal[int]
	statusSig    device.Signal[money.StatusEvent]
}

func newFakeDispenser(name string, units int) *fakeDispenser {
	return &fakeDispenser{name: name, units: units, notReady: make(map[int]bool)}
}

func (f *fakeDispenser) Name() string      { return f.name }
func (f *fakeDispenser) Kind() device.Kind { return device.KindDispenser }
func (f *fakeDispenser) Ready() bool       { return true }
func (f *fakeDispenser) State() device.State {
	return device.State{Model: "fake dispenser", Serial: f.name}
}
func (f *fakeDispenser) Units() int {
	f.lk.Lock()
	defer f.lk.Unlock()
	return f.units
}
func (f *fakeDispenser) UnitReady(unit int) bool {
	f.lk.Lock()
	defer f.lk.Unlock()
	return unit < f.units && !f.notReady[unit]
}
func (f *fakeDispenser) SetUnitList(units []money.CashUnit) {
	f.lk.Lock()
	defer f.lk.Unlock()
	f.unitLists = append(f.unitLists, append([]money.CashUnit(nil), units...))
}
func (f *fakeDispenser) Dispense(_ context.Context, unit, items int) error {
	f.lk.Lock()
	defer f.lk.Unlock()
	f.calls = append(f.calls, dispenseCall{unit, items})
	return f.dispenseErr
}
func (f *fakeDispenser) Calls() []dispenseCall {
	f.lk.Lock()
	defer f.lk.Unlock()
	return append([]dispenseCall(nil), f.calls...)
}
func (f *fakeDispenser) LastUnitList() []money.CashUnit {
	f.lk.Lock()
	defer f.lk.Unlock()
	if len(f.unitLists) == 0 {
		return nil
	}
	return f.unitLists[len(f.unitLists)-1]
}

func (f *fakeDispenser) OnStatus(fn func(money.StatusEvent)) device.Subscription {
	return f.statusSig.Subscribe(fn)
}
func (f *fakeDispenser) OnDispensed(fn func(dispenser.Dispensed)) device.Subscription {
	return f.dispensedSig.Subscribe(fn)
}
func (f *fakeDispenser) OnRejected(fn func(dispenser.Dispensed)) device.Subscription {
	return f.rejectedSig.Subscribe(fn)
}
func (f *fakeDispenser) OnUnitEmpty(fn func(int)) device.Subscription { return f.emptySig.Subscribe(fn) }
func (f *fakeDispenser) OnUnitsDefined(fn func(int)) device.Subscription {
	return f.definedSig.Subscribe(fn)
}

func (f *fakeDispenser) dispensed(unit, items int) {
	f.dispensedSig.Emit(dispenser.Dispensed{Unit: unit, Items: items})
}
func (f *fakeDispenser) status(raw int) { f.statusSig.Emit(money.NewStatusEvent(raw)) }

// eventLog collects outward events in delivery order.
type eventLog struct {
	lk     sync.Mutex
	events []types.Event
}

func (el *eventLog) add(e types.Event) {
	el.lk.Lock()
	el.events = append(el.events, e)
	el.lk.Unlock()
}

func (el *eventLog) All() []types.Event {
	el.lk.Lock()
	defer el.lk.Unlock()
	return append([]types.Event(nil), el.events...)
}

func (el *eventLog) Kind(k types.EventKind) []types.Event {
	result := []types.Event{}
	for _, e := range el.All() {
		if e.Kind == k {
			result = append(result, e)
		}
	}
	return result
}

func (el *eventLog) Reset() {
	el.lk.Lock()
	el.events = nil
	el.lk.Unlock()
}

type testEnv struct {
	log     *log2.Log
	devices *device.Service
	store   *memory.Memory
	book    *payment.Book
	events  *eventLog
	config  Config
	system  *MoneySystem
	gift    *GiftProvider
}

func newTestEnv(t testing.TB) *testEnv {
	log := log2.NewTest(t, log2.LDebug)
	env := &testEnv{
		log:     log,
		devices: device.NewService(log),
		store:   memory.New(),
		book:    payment.NewBook(),
		events:  &eventLog{},
		config: Config{
			Currency:              "USD",
			CurrencyID:            840,
			DisableAmountOverflow: true,
		},
	}
	env.gift = NewGiftProvider(env.config.CurrencyID, log)
	return env
}

func (env *testEnv) register(t testing.TB, dev device.Device) {
	require.NoError(t, env.devices.Register(device.Config{Name: dev.Name(), Kind: dev.Kind()}, dev))
}

func (env *testEnv) setUnits(t testing.TB, name, value string) {
	require.NoError(t, env.store.SetDeviceParam(name, "CashUnits", value))
}

func (env *testEnv) init(t testing.TB) *MoneySystem {
	ms := NewMoneySystem(env.config, Deps{
		Devices:   env.devices,
		Params:    env.store,
		Notes:     env.store,
		Payments:  env.book,
		Providers: []ChargeProvider{env.gift},
	}, env.log)
	ms.Subscribe(env.events.add)
	require.NoError(t, ms.Init())
	t.Cleanup(ms.Shutdown)
	env.system = ms
	return ms
}

func requireErrorIs(t testing.TB, err, target error) {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.Is(err, target), err.Error())
}
