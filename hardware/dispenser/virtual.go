package dispenser

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AlexTransit/kiosk/hardware/device"
	"github.com/AlexTransit/kiosk/hardware/money"
	"github.com/AlexTransit/kiosk/log2"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/atomic_clock"
)

const eventQueueSize = 64

type VirtualConfig struct {
	Name  string
	Units int
	// jam after this many items in one dispense, 0 never
	JammedItem int
	// unit with count at or below is reported near empty in log
	NearEndCount int
	ItemDelay    time.Duration
	// after dispense one more item goes to reject bin, while unit is not empty
	RejectOne bool
}

type Virtual struct {
	Log    *log2.Log
	LastOk *atomic_clock.Clock

	config  VirtualConfig
	alive   *alive.Alive
	cmds    chan request
	events  chan func()
	started atomic.Bool
	jammed  atomic.Bool

	lk     sync.Mutex
	counts []int

	dispensedSig device.Signal[Dispensed]
	rejectedSig  device.Signal[Dispensed]
	emptySig     device.Signal[int]
	definedSig   device.Signal[int]
	statusSig    device.Signal[money.StatusEvent]
}

// unit<0 is status change
type request struct {
	unit  int
	items int
	raw   int
}

func NewVirtual(config VirtualConfig, log *log2.Log) *Virtual {
	return &Virtual{
		Log:    log,
		LastOk: atomic_clock.New(),
		config: config,
		alive:  alive.NewAlive(),
		cmds:   make(chan request),
		events: make(chan func(), eventQueueSize),
		counts: make([]int, config.Units),
	}
}

func (v *Virtual) Name() string      { return v.config.Name }
func (v *Virtual) Kind() device.Kind { return device.KindDispenser }
func (v *Virtual) Ready() bool {
	return v.started.Load() && v.alive.IsRunning() && !v.jammed.Load()
}
func (v *Virtual) State() device.State {
	return device.State{Model: "virtual dispenser", Serial: v.config.Name, Firmware: "1.0"}
}

func (v *Virtual) Units() int {
	v.lk.Lock()
	defer v.lk.Unlock()
	return len(v.counts)
}

func (v *Virtual) UnitReady(unit int) bool {
	return v.Ready() && unit >= 0 && unit < v.Units()
}

func (v *Virtual) Counts() []int {
	v.lk.Lock()
	defer v.lk.Unlock()
	return append([]int(nil), v.counts...)
}

func (v *Virtual) SetUnitList(units []money.CashUnit) {
	v.lk.Lock()
	defer v.lk.Unlock()
	for i := range v.counts {
		if i < len(units) {
			v.counts[i] = units[i].Count
		} else {
			v.counts[i] = 0
		}
	}
	v.Log.Debugf("%s unit list applied %v", v.config.Name, v.counts)
}

func (v *Virtual) OnStatus(f func(money.StatusEvent)) device.Subscription {
	return v.statusSig.Subscribe(f)
}
func (v *Virtual) OnDispensed(f func(Dispensed)) device.Subscription {
	return v.dispensedSig.Subscribe(f)
}
func (v *Virtual) OnRejected(f func(Dispensed)) device.Subscription {
	return v.rejectedSig.Subscribe(f)
}
func (v *Virtual) OnUnitEmpty(f func(int)) device.Subscription    { return v.emptySig.Subscribe(f) }
func (v *Virtual) OnUnitsDefined(f func(int)) device.Subscription { return v.definedSig.Subscribe(f) }

// Run starts device and reports its unit count.
func (v *Virtual) Run() {
	if !v.started.CompareAndSwap(false, true) {
		return
	}
	v.alive.Add(2)
	v.LastOk.SetNow()
	go v.loop()
	go v.dispatch()
	units := v.Units()
	v.emit(func() { v.definedSig.Emit(units) })
}

func (v *Virtual) Stop() {
	v.alive.Stop()
	v.alive.Wait()
}

func (v *Virtual) Dispense(ctx context.Context, unit, items int) error {
	tag := fmt.Sprintf("%s.dispense unit=%d items=%d", v.config.Name, unit, items)
	if unit < 0 || unit >= v.Units() {
		return errors.Annotate(money.ErrUnitInvalid, tag)
	}
	if items <= 0 {
		return errors.NotValidf("%s", tag)
	}
	return errors.Annotate(v.send(ctx, request{unit: unit, items: items}), tag)
}

// SetStatus simulates device reporting raw status code. Error level jams device.
func (v *Virtual) SetStatus(ctx context.Context, raw int) error {
	return v.send(ctx, request{unit: -1, raw: raw})
}

// DefineUnits simulates device reporting another unit count, like cassette replaced.
func (v *Virtual) DefineUnits(n int) {
	v.lk.Lock()
	if n < len(v.counts) {
		v.counts = v.counts[:n]
	} else {
		v.counts = append(v.counts, make([]int, n-len(v.counts))...)
	}
	v.lk.Unlock()
	v.emit(func() { v.definedSig.Emit(n) })
}

func (v *Virtual) send(ctx context.Context, r request) error {
	select {
	case v.cmds <- r:
		return nil
	case <-v.alive.StopChan():
		return money.ErrDisabled
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (v *Virtual) loop() {
	defer v.alive.Done()
	stopch := v.alive.StopChan()
	for {
		select {
		case r := <-v.cmds:
			if r.unit < 0 {
				v.status(r.raw)
			} else {
				v.perform(r.unit, r.items)
			}
		case <-stopch:
			return
		}
	}
}

func (v *Virtual) dispatch() {
	defer v.alive.Done()
	stopch := v.alive.StopChan()
	for {
		select {
		case f := <-v.events:
			f()
		case <-stopch:
			for {
				select {
				case f := <-v.events:
					f()
				default:
					return
				}
			}
		}
	}
}

func (v *Virtual) emit(f func()) {
	select {
	case v.events <- f:
	case <-v.alive.StopChan():
	}
}

func (v *Virtual) status(raw int) {
	e := money.NewStatusEvent(raw)
	switch e.Level() {
	case money.LevelError:
		v.jammed.Store(true)
	case money.LevelOK:
		v.jammed.Store(false)
	}
	v.emit(func() { v.statusSig.Emit(e) })
}

func (v *Virtual) perform(unit, items int) {
	v.lk.Lock()
	if unit >= len(v.counts) {
		v.lk.Unlock()
		v.Log.Errorf("%s dispense unit=%d out of range", v.config.Name, unit)
		v.emit(func() { v.dispensedSig.Emit(Dispensed{Unit: unit}) })
		return
	}
	dispensed := 0
	jam := false
	if !v.jammed.Load() {
		dispensed = items
		if dispensed > v.counts[unit] {
			dispensed = v.counts[unit]
		}
		if v.config.JammedItem != 0 && dispensed >= v.config.JammedItem {
			jam = true
			dispensed = v.config.JammedItem - 1
		}
		v.counts[unit] -= dispensed
	}
	v.lk.Unlock()

	if d := v.config.ItemDelay * time.Duration(dispensed); d > 0 {
		select {
		case <-time.After(d):
		case <-v.alive.StopChan():
		}
	}

	v.lk.Lock()
	rejected := false
	left := 0
	if unit < len(v.counts) {
		if v.config.RejectOne && v.counts[unit] != 0 {
			v.counts[unit]--
			rejected = true
		}
		left = v.counts[unit]
	}
	v.lk.Unlock()

	if rejected {
		v.Log.Warningf("%s rejected 1 item from unit=%d", v.config.Name, unit)
		v.emit(func() { v.rejectedSig.Emit(Dispensed{Unit: unit, Items: 1}) })
	}
	if left == 0 {
		v.Log.Warningf("%s unit=%d emptied", v.config.Name, unit)
		v.emit(func() { v.emptySig.Emit(unit) })
	} else if left <= v.config.NearEndCount {
		v.Log.Infof("%s unit=%d near empty count=%d", v.config.Name, unit, left)
	}
	// fault goes first, so next step is not planned on jammed device
	if jam {
		v.status(money.RawJam)
	} else {
		v.LastOk.SetNow()
	}
	v.Log.Infof("%s dispensed %d item(s) from unit=%d", v.config.Name, dispensed, unit)
	v.emit(func() { v.dispensedSig.Emit(Dispensed{Unit: unit, Items: dispensed}) })
}
