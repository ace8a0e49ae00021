package acceptor

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/AlexTransit/kiosk/currency"
	"github.com/AlexTransit/kiosk/hardware/device"
	"github.com/AlexTransit/kiosk/hardware/money"
	"github.com/AlexTransit/kiosk/log2"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/atomic_clock"
)

const eventQueueSize = 64

type VirtualConfig struct {
	Name           string
	Kind           device.Kind
	CurrencyID     int
	NotesPerEscrow int
}

// Virtual acceptor. Commands are executed by run loop one by one,
// callbacks are delivered from separate dispatch goroutine.
type Virtual struct {
	Log    *log2.Log
	LastOk *atomic_clock.Clock

	config VirtualConfig
	alive  *alive.Alive
	cmds   chan command
	events chan func()
	ready   atomic.Bool
	started atomic.Bool

	// owned by run loop
	enabled bool
	escrow  []money.Par
	pars    money.ParList

	escrowSig  device.Signal[money.Par]
	stackedSig device.Signal[[]money.Par]
	statusSig  device.Signal[money.StatusEvent]
}

type cmdKind byte

const (
	cmdEnable cmdKind = iota + 1
	cmdDisable
	cmdStack
	cmdReject
	cmdParList
	cmdInsert
	cmdTestStack
	cmdStatus
)

func (k cmdKind) String() string {
	switch k {
	case cmdEnable:
		return "enable"
	case cmdDisable:
		return "disable"
	case cmdStack:
		return "stack"
	case cmdReject:
		return "reject"
	case cmdParList:
		return "par_list"
	case cmdInsert:
		return "insert"
	case cmdTestStack:
		return "test_stack"
	case cmdStatus:
		return "status"
	}
	return fmt.Sprintf("cmd(%d)", byte(k))
}

type command struct {
	kind    cmdKind
	nominal currency.Nominal
	pars    money.ParList
	raw     int
	result  chan error
}

func NewVirtual(config VirtualConfig, log *log2.Log) *Virtual {
	if config.NotesPerEscrow <= 0 {
		config.NotesPerEscrow = 1
	}
	if config.Kind == "" {
		config.Kind = device.KindBillAcceptor
	}
	v := &Virtual{
		Log:    log,
		LastOk: atomic_clock.New(),
		config: config,
		alive:  alive.NewAlive(),
		cmds:   make(chan command),
		events: make(chan func(), eventQueueSize),
	}
	return v
}

func (v *Virtual) Name() string      { return v.config.Name }
func (v *Virtual) Kind() device.Kind { return v.config.Kind }
func (v *Virtual) Ready() bool       { return v.ready.Load() && v.alive.IsRunning() }
func (v *Virtual) State() device.State {
	return device.State{Model: "virtual " + v.Receiver().String(), Serial: v.config.Name, Firmware: "1.0"}
}

func (v *Virtual) Receiver() money.Receiver {
	if v.config.Kind == device.KindCoinAcceptor {
		return money.ReceiverCoin
	}
	return money.ReceiverBill
}

func (v *Virtual) OnStatus(f func(money.StatusEvent)) device.Subscription {
	return v.statusSig.Subscribe(f)
}
func (v *Virtual) OnEscrow(f func(money.Par)) device.Subscription { return v.escrowSig.Subscribe(f) }
func (v *Virtual) OnStacked(f func([]money.Par)) device.Subscription {
	return v.stackedSig.Subscribe(f)
}

// Run starts command loop and dispatcher. Device becomes ready.
func (v *Virtual) Run() {
	if !v.started.CompareAndSwap(false, true) {
		return
	}
	v.alive.Add(2)
	v.ready.Store(true)
	v.LastOk.SetNow()
	go v.loop()
	go v.dispatch()
}

func (v *Virtual) Stop() {
	v.ready.Store(false)
	v.alive.Stop()
	v.alive.Wait()
}

func (v *Virtual) SetEnable(ctx context.Context, enable bool) error {
	if enable {
		return v.exec(ctx, command{kind: cmdEnable})
	}
	return v.exec(ctx, command{kind: cmdDisable})
}
func (v *Virtual) Stack(ctx context.Context) error  { return v.exec(ctx, command{kind: cmdStack}) }
func (v *Virtual) Reject(ctx context.Context) error { return v.exec(ctx, command{kind: cmdReject}) }
func (v *Virtual) SetParList(ctx context.Context, pars money.ParList) error {
	return v.exec(ctx, command{kind: cmdParList, pars: pars})
}

// Insert simulates customer putting note or coin into device.
func (v *Virtual) Insert(ctx context.Context, n currency.Nominal) error {
	return v.exec(ctx, command{kind: cmdInsert, nominal: n})
}

// TestStack reports stacked note without escrow, like service test of device.
func (v *Virtual) TestStack(ctx context.Context, n currency.Nominal) error {
	return v.exec(ctx, command{kind: cmdTestStack, nominal: n})
}

// SetStatus simulates device reporting raw status code.
func (v *Virtual) SetStatus(ctx context.Context, raw int) error {
	return v.exec(ctx, command{kind: cmdStatus, raw: raw})
}

func (v *Virtual) exec(ctx context.Context, c command) error {
	tag := fmt.Sprintf("%s.%s", v.config.Name, c.kind)
	c.result = make(chan error, 1)
	select {
	case v.cmds <- c:
	case <-v.alive.StopChan():
		return errors.Annotate(money.ErrDisabled, tag)
	case <-ctx.Done():
		return errors.Annotate(ctx.Err(), tag)
	}
	select {
	case err := <-c.result:
		return errors.Annotate(err, tag)
	case <-ctx.Done():
		return errors.Annotate(ctx.Err(), tag)
	}
}

func (v *Virtual) loop() {
	defer v.alive.Done()
	stopch := v.alive.StopChan()
	for {
		select {
		case c := <-v.cmds:
			err := v.execute(c)
			if err == nil {
				v.LastOk.SetNow()
			}
			c.result <- err
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

func (v *Virtual) emitStatus(raw int) {
	e := money.NewStatusEvent(raw)
	v.emit(func() { v.statusSig.Emit(e) })
}

func (v *Virtual) execute(c command) error {
	switch c.kind {
	case cmdEnable:
		if !v.ready.Load() {
			return errors.Errorf("device is not ready")
		}
		v.enabled = true
		v.emitStatus(money.RawEnabled)
	case cmdDisable:
		if len(v.escrow) != 0 {
			v.Log.Infof("%s disable, escrow returned %v", v.config.Name, v.escrow)
			v.escrow = nil
		}
		v.enabled = false
		v.emitStatus(money.RawDisabled)
	case cmdStack:
		if len(v.escrow) == 0 || !v.enabled {
			return errors.Errorf("nothing in escrow")
		}
		pars := v.escrow
		v.escrow = nil
		v.emit(func() { v.stackedSig.Emit(pars) })
	case cmdReject:
		if len(v.escrow) == 0 {
			return errors.Errorf("nothing in escrow")
		}
		v.escrow = nil
		v.emitStatus(money.RawRejected)
	case cmdParList:
		v.pars = c.pars
	case cmdInsert:
		if !v.enabled {
			return money.ErrDisabled
		}
		if len(v.escrow) != 0 {
			return errors.Errorf("escrow busy")
		}
		if len(v.pars) != 0 && !v.pars.Enabled(c.nominal, v.Receiver()) {
			v.emitStatus(money.RawRejected)
			return errors.Annotatef(money.ErrBillReject, "nominal=%d", c.nominal)
		}
		p := money.Par{Nominal: c.nominal, CurrencyID: v.config.CurrencyID, Receiver: v.Receiver()}
		v.escrow = make([]money.Par, v.config.NotesPerEscrow)
		for i := range v.escrow {
			v.escrow[i] = p
		}
		v.emit(func() { v.escrowSig.Emit(p) })
	case cmdTestStack:
		pars := []money.Par{{Nominal: c.nominal, CurrencyID: v.config.CurrencyID, Receiver: v.Receiver()}}
		v.emit(func() { v.stackedSig.Emit(pars) })
		v.emitStatus(money.RawOK)
	case cmdStatus:
		switch money.Translate(c.raw).Level() {
		case money.LevelError:
			v.ready.Store(false)
			v.enabled = false
			v.escrow = nil
		case money.LevelOK:
			v.ready.Store(true)
		}
		v.emitStatus(c.raw)
	default:
		return errors.Errorf("code error unknown command=%v", c.kind)
	}
	return nil
}
