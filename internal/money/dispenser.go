package money

import (
	"context"
	"sync"
	"time"

	"github.com/AlexTransit/kiosk/currency"
	"github.com/AlexTransit/kiosk/hardware/device"
	"github.com/AlexTransit/kiosk/hardware/dispenser"
	"github.com/AlexTransit/kiosk/hardware/money"
	"github.com/AlexTransit/kiosk/internal/payment"
	"github.com/AlexTransit/kiosk/internal/store"
	"github.com/AlexTransit/kiosk/internal/types"
	"github.com/AlexTransit/kiosk/log2"
	"github.com/juju/errors"
	"github.com/shopspring/decimal"
)

const messageDispenseTimeout = "dispense timeout"

type DispenserConfig struct {
	Currency        string
	CommandTimeout  time.Duration
	DispenseTimeout time.Duration
}

// pendingDispense is zero when idle.
type pendingDispense struct {
	toDispense decimal.Decimal
	dispensed  decimal.Decimal
	// devices that gave nothing during this request
	skip map[string]bool
}

func (p pendingDispense) idle() bool { return p.toDispense.IsZero() && p.dispensed.IsZero() }

// DispenserManager gives out change one device command at a time,
// next step is driven by dispensed callback.
type DispenserManager struct {
	Log *log2.Log

	lk       sync.Mutex
	config   DispenserConfig
	devices  *device.Service
	notes    store.NoteStore
	payments payment.Service
	out      *outbox

	ledger     *Ledger
	planner    *Planner
	dispensers map[string]dispenser.Dispenser
	faulty     map[string]bool
	subs       []device.Subscription
	configSub  device.Subscription

	pending    pendingDispense
	timer      *time.Timer
	generation uint64
}

func NewDispenserManager(config DispenserConfig, deps Deps, out *outbox, log *log2.Log) *DispenserManager {
	if config.CommandTimeout <= 0 {
		config.CommandTimeout = DefaultCommandTimeout
	}
	if config.DispenseTimeout <= 0 {
		config.DispenseTimeout = DefaultDispenseTimeout
	}
	dm := &DispenserManager{
		Log:        log,
		config:     config,
		devices:    deps.Devices,
		notes:      deps.Notes,
		payments:   deps.Payments,
		out:        out,
		ledger:     NewLedger(deps.Params, config.Currency, log),
		dispensers: make(map[string]dispenser.Dispenser),
		faulty:     make(map[string]bool),
	}
	dm.planner = &Planner{Ledger: dm.ledger, Dispensers: dm.dispensers, Faulty: dm.faulty}
	return dm
}

func (dm *DispenserManager) unlockFlush() {
	dm.lk.Unlock()
	dm.out.flush()
}

// Init acquires dispensers, loads their ledgers and pushes counts down to devices.
// Ledger load errors are returned, devices with good ledgers still work.
func (dm *DispenserManager) Init() error {
	dm.lk.Lock()
	err := dm.locked_updateHardwareConfiguration()
	dm.unlockFlush()

	dm.configSub = dm.devices.OnConfigurationUpdated(func(name string) {
		if cfg, err := dm.devices.Config(name); err == nil && cfg.Kind != device.KindDispenser {
			return
		}
		if err := dm.UpdateHardwareConfiguration(); err != nil {
			dm.Log.Error(err)
		}
	})
	return err
}

func (dm *DispenserManager) UpdateHardwareConfiguration() error {
	dm.lk.Lock()
	defer dm.unlockFlush()
	return dm.locked_updateHardwareConfiguration()
}

func (dm *DispenserManager) locked_updateHardwareConfiguration() error {
	dm.locked_releaseDevices()
	names := make([]string, 0)
	for _, name := range dm.devices.Names(device.KindDispenser) {
		dev, err := dm.devices.Acquire(name)
		if err != nil {
			dm.Log.Errorf("failed to acquire dispenser=%s err=%v", name, err)
			continue
		}
		d, ok := dev.(dispenser.Dispenser)
		if !ok {
			dm.Log.Errorf("device=%s is not dispenser", name)
			dm.devices.Release(dev)
			continue
		}
		dm.dispensers[name] = d
		dm.locked_subscribe(name, d)
		names = append(names, name)
	}

	// ledger of unconfigured dispensers stays persisted, just not shown
	for name := range dm.ledger.State() {
		if _, ok := dm.dispensers[name]; !ok {
			dm.ledger.Forget(name)
		}
	}
	err := dm.ledger.LoadAll(names)
	for _, name := range names {
		d := dm.dispensers[name]
		dm.ledger.Reconcile(name, d.Units())
		d.SetUnitList(dm.ledger.Units(name))
		dm.Log.Infof("dispenser=%s units=%s", name, FormatUnits(dm.ledger.Units(name)))
	}
	return errors.Annotate(err, "dispensers init")
}

func (dm *DispenserManager) locked_subscribe(name string, d dispenser.Dispenser) {
	dm.subs = append(dm.subs,
		d.OnDispensed(func(e dispenser.Dispensed) { dm.onDispensed(name, e) }),
		d.OnRejected(func(e dispenser.Dispensed) { dm.onRejected(name, e) }),
		d.OnUnitEmpty(func(unit int) { dm.onUnitEmpty(name, unit) }),
		d.OnUnitsDefined(func(units int) { dm.onUnitsDefined(name, units) }),
		d.OnStatus(func(e money.StatusEvent) { dm.onStatus(name, e) }),
	)
}

func (dm *DispenserManager) locked_releaseDevices() {
	for _, sub := range dm.subs {
		sub.Cancel()
	}
	dm.subs = nil
	for name, d := range dm.dispensers {
		dm.devices.Release(d)
		delete(dm.dispensers, name)
	}
	for name := range dm.faulty {
		delete(dm.faulty, name)
	}
}

func (dm *DispenserManager) Shutdown() {
	dm.configSub.Cancel()
	dm.lk.Lock()
	defer dm.unlockFlush()
	dm.locked_stopTimer()
	for name := range dm.ledger.State() {
		_ = dm.ledger.Save(name)
	}
	dm.locked_releaseDevices()
}

func (dm *DispenserManager) Busy() bool {
	dm.lk.Lock()
	defer dm.lk.Unlock()
	return !dm.pending.idle()
}

func (dm *DispenserManager) CanDispense(amount decimal.Decimal) decimal.Decimal {
	dm.lk.Lock()
	defer dm.lk.Unlock()
	return dm.planner.CanDispense(amount)
}

func (dm *DispenserManager) Plan(amount decimal.Decimal) *currency.NominalGroup {
	dm.lk.Lock()
	defer dm.lk.Unlock()
	return dm.planner.Plan(amount)
}

func (dm *DispenserManager) Faulty(name string) bool {
	dm.lk.Lock()
	defer dm.lk.Unlock()
	return dm.faulty[name]
}

// Dispense starts giving out amount. Result is reported with Dispensed event,
// zero when nothing could be given.
func (dm *DispenserManager) Dispense(amount decimal.Decimal) error {
	const tag = "money.dispense"
	if amount.Sign() <= 0 {
		return errors.NotValidf("%s amount=%s", tag, currency.Format(amount))
	}
	dm.lk.Lock()
	defer dm.unlockFlush()
	if !dm.pending.idle() {
		return errors.Annotatef(ErrDispenseBusy, "%s amount=%s pending=%s", tag, currency.Format(amount), currency.Format(dm.pending.toDispense))
	}
	dm.pending.toDispense = amount
	dm.Log.Infof("%s amount=%s plan=%s", tag, currency.Format(amount), dm.planner.Plan(amount))
	dm.locked_dispenseNext()
	return nil
}

// locked_dispenseNext issues single command for remaining amount.
func (dm *DispenserManager) locked_dispenseNext() {
	remaining := dm.pending.toDispense
	c := dm.locked_candidates(remaining)
	n, ok := c.Pick(remaining)
	if !ok {
		dm.locked_finish(dm.pending.dispensed)
		return
	}
	opt := c[n][0]
	items := currency.Floor(remaining, n)
	if opt.Count < items {
		items = opt.Count
	}
	d := dm.dispensers[opt.Device]

	ctx, cancel := context.WithTimeout(context.Background(), dm.config.CommandTimeout)
	err := d.Dispense(ctx, opt.Unit, items)
	cancel()
	if err != nil {
		err = errors.Annotatef(err, "dispenser=%s unit=%d items=%d", opt.Device, opt.Unit, items)
		dm.Log.Error(err)
		dm.out.push(types.Event{Kind: types.EventError, PaymentID: types.NoPayment, Message: err.Error()})
		dm.locked_finish(dm.pending.dispensed)
		return
	}
	dm.Log.Debugf("dispenser=%s unit=%d nominal=%d items=%d", opt.Device, opt.Unit, n, items)
	dm.locked_armTimeout()
}

func (dm *DispenserManager) locked_candidates(amount decimal.Decimal) Candidates {
	c := dm.planner.Candidates(amount)
	c.Exclude(dm.pending.skip)
	return c
}

func (dm *DispenserManager) locked_finish(total decimal.Decimal) {
	dm.locked_stopTimer()
	dm.pending = pendingDispense{}
	dm.Log.Infof("money.dispense finished total=%s", currency.Format(total))
	dm.out.push(types.Event{Kind: types.EventDispensed, PaymentID: types.NoPayment, Amount: total})
}

func (dm *DispenserManager) locked_armTimeout() {
	dm.locked_stopTimer()
	dm.generation++
	gen := dm.generation
	dm.timer = time.AfterFunc(dm.config.DispenseTimeout, func() { dm.onTimeout(gen) })
}

func (dm *DispenserManager) locked_stopTimer() {
	if dm.timer != nil {
		dm.timer.Stop()
		dm.timer = nil
	}
	dm.generation++
}

func (dm *DispenserManager) onTimeout(gen uint64) {
	dm.lk.Lock()
	defer dm.unlockFlush()
	if gen != dm.generation || dm.pending.idle() {
		return
	}
	dm.Log.Errorf("money.dispense no answer from dispenser in %v, dispensed=%s", dm.config.DispenseTimeout, currency.Format(dm.pending.dispensed))
	dm.out.push(types.Event{Kind: types.EventError, PaymentID: types.NoPayment, Message: messageDispenseTimeout})
	dm.locked_finish(dm.pending.dispensed)
}

func (dm *DispenserManager) onDispensed(name string, e dispenser.Dispensed) {
	dm.lk.Lock()
	defer dm.unlockFlush()
	dm.locked_stopTimer()

	nominal, _, err := dm.ledger.Decrement(name, e.Unit, e.Items)
	if err != nil {
		dm.Log.Errorf("dispenser=%s dispensed unit=%d items=%d err=%v", name, e.Unit, e.Items, err)
		dm.locked_finish(decimal.Zero)
		return
	}
	amount := currency.Times(nominal, e.Items)
	if e.Items > 0 {
		notes := make([]store.Note, e.Items)
		for i := range notes {
			notes[i] = store.Note{Type: store.NoteBill, Nominal: nominal.Amount()}
		}
		if err := dm.notes.AddChangeNote(dm.payments.ChangeSessionRef(), notes); err != nil {
			dm.Log.Errorf("dispenser=%s add change notes err=%v", name, err)
		}
	}
	dm.locked_pushDownIfEmpty(name, e.Unit)

	if dm.pending.idle() {
		dm.Log.Warningf("dispenser=%s unsolicited dispense unit=%d items=%d", name, e.Unit, e.Items)
		dm.out.push(types.Event{Kind: types.EventDispensed, PaymentID: types.NoPayment, Amount: amount})
		return
	}
	dm.pending.dispensed = dm.pending.dispensed.Add(amount)
	dm.pending.toDispense = dm.pending.toDispense.Sub(amount)
	if dm.pending.toDispense.Sign() < 0 {
		dm.pending.toDispense = decimal.Zero
	}

	// device gave nothing: not asked again during this request
	if e.Items == 0 {
		dm.Log.Warningf("dispenser=%s unit=%d gave nothing, replan without it", name, e.Unit)
		if dm.pending.skip == nil {
			dm.pending.skip = make(map[string]bool)
		}
		dm.pending.skip[name] = true
	}
	remaining := dm.pending.toDispense
	if _, ok := dm.locked_candidates(remaining).Pick(remaining); !ok {
		dm.locked_finish(dm.pending.dispensed)
		return
	}
	dm.out.push(types.Event{Kind: types.EventActivity, PaymentID: types.NoPayment})
	dm.locked_dispenseNext()
}

func (dm *DispenserManager) onRejected(name string, e dispenser.Dispensed) {
	dm.lk.Lock()
	defer dm.unlockFlush()
	if _, _, err := dm.ledger.Decrement(name, e.Unit, e.Items); err != nil {
		dm.Log.Errorf("dispenser=%s rejected unit=%d items=%d err=%v", name, e.Unit, e.Items, err)
		return
	}
	dm.locked_pushDownIfEmpty(name, e.Unit)
}

func (dm *DispenserManager) onUnitEmpty(name string, unit int) {
	dm.lk.Lock()
	defer dm.unlockFlush()
	if err := dm.ledger.SetUnitCount(name, unit, 0); err != nil {
		dm.Log.Errorf("dispenser=%s unit empty err=%v", name, err)
		return
	}
	dm.locked_pushDown(name)
}

func (dm *DispenserManager) onUnitsDefined(name string, units int) {
	dm.lk.Lock()
	defer dm.unlockFlush()
	if dm.ledger.Reconcile(name, units) {
		dm.locked_pushDown(name)
	}
}

func (dm *DispenserManager) onStatus(name string, e money.StatusEvent) {
	dm.lk.Lock()
	defer dm.unlockFlush()
	if e.Level() == money.LevelError {
		dm.Log.Errorf("dispenser=%s %s", name, e)
		dm.faulty[name] = true
		dm.out.push(types.Event{Kind: types.EventError, PaymentID: types.NoPayment, Message: e.Text})
		return
	}
	if dm.faulty[name] {
		dm.Log.Infof("dispenser=%s recovered %s", name, e)
	}
	delete(dm.faulty, name)
	dm.out.push(types.Event{Kind: types.EventActivity, PaymentID: types.NoPayment})
}

func (dm *DispenserManager) locked_pushDownIfEmpty(name string, unit int) {
	if u, ok := dm.ledger.Unit(name, unit); ok && u.Count == 0 {
		dm.locked_pushDown(name)
	}
}

func (dm *DispenserManager) locked_pushDown(name string) {
	if d, ok := dm.dispensers[name]; ok {
		d.SetUnitList(dm.ledger.Units(name))
	}
}

// SetCashUnitsState is operator reload of device units, list length must match.
func (dm *DispenserManager) SetCashUnitsState(name string, units []money.CashUnit) error {
	dm.lk.Lock()
	defer dm.unlockFlush()
	if err := dm.ledger.ReplaceAll(name, units); err != nil {
		return errors.Annotate(err, "set cash units")
	}
	dm.locked_pushDown(name)
	dm.Log.Infof("dispenser=%s units set %s", name, FormatUnits(units))
	return nil
}

func (dm *DispenserManager) CashUnitsState() map[string][]money.CashUnit {
	dm.lk.Lock()
	defer dm.lk.Unlock()
	return dm.ledger.State()
}
