// Package money is the kiosk funds core: accepting cash and charge credit toward
// active payment and giving change from dispensers.
package money

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/AlexTransit/kiosk/currency"
	"github.com/AlexTransit/kiosk/hardware/device"
	"github.com/AlexTransit/kiosk/hardware/money"
	"github.com/AlexTransit/kiosk/helpers"
	"github.com/AlexTransit/kiosk/internal/payment"
	"github.com/AlexTransit/kiosk/internal/store"
	"github.com/AlexTransit/kiosk/internal/types"
	"github.com/AlexTransit/kiosk/log2"
	"github.com/juju/errors"
	"github.com/shopspring/decimal"
)

const (
	DefaultCommandTimeout  = 5 * time.Second
	DefaultDispenseTimeout = 60 * time.Second
)

// parameter names of MoneySystem.Parameters
const ParamRejectCount = store.KeyRejectCount

type Config struct {
	Currency              string
	CurrencyID            int
	DisableAmountOverflow bool
	CommandTimeout        time.Duration
	DispenseTimeout       time.Duration
	BillNominals          []currency.Nominal
	CoinNominals          []currency.Nominal
	ChargeAccess          map[string][]string
}

func (c Config) parList() money.ParList {
	pl := make(money.ParList, 0, len(c.BillNominals)+len(c.CoinNominals))
	for _, n := range c.BillNominals {
		pl = append(pl, money.Par{Nominal: n, CurrencyID: c.CurrencyID, Receiver: money.ReceiverBill})
	}
	for _, n := range c.CoinNominals {
		pl = append(pl, money.Par{Nominal: n, CurrencyID: c.CurrencyID, Receiver: money.ReceiverCoin})
	}
	return pl
}

// Deps are collaborators of funds core, all required except Providers.
type Deps struct {
	Devices   *device.Service
	Params    store.ParamStore
	Notes     store.NoteStore
	Payments  payment.Service
	Providers []ChargeProvider
}

func (d Deps) validate() error {
	missing := make([]string, 0, 4)
	if d.Devices == nil {
		missing = append(missing, "devices")
	}
	if d.Params == nil {
		missing = append(missing, "params")
	}
	if d.Notes == nil {
		missing = append(missing, "notes")
	}
	if d.Payments == nil {
		missing = append(missing, "payments")
	}
	if len(missing) != 0 {
		return errors.NotValidf("money deps missing %s", strings.Join(missing, ","))
	}
	return nil
}

type MoneySystem struct {
	Log *log2.Log

	config     Config
	deps       Deps
	events     device.Signal[types.Event]
	out        *outbox
	acceptors  *AcceptorManager
	dispensers *DispenserManager
}

func NewMoneySystem(config Config, deps Deps, log *log2.Log) *MoneySystem {
	ms := &MoneySystem{Log: log, config: config, deps: deps}
	ms.out = newOutbox(ms.events.Emit)
	return ms
}

// Init acquires devices and loads ledgers. Only configuration errors fail it,
// device ledger problems are logged.
func (ms *MoneySystem) Init() error {
	const tag = "money.init"
	if ms.config.Currency == "" {
		err := errors.Annotate(ErrCurrencyNotSet, tag)
		ms.Log.Error(err)
		return err
	}
	if err := ms.deps.validate(); err != nil {
		err = errors.Annotate(err, tag)
		ms.Log.Error(err)
		return err
	}

	ms.acceptors = NewAcceptorManager(AcceptorConfig{
		DisableAmountOverflow: ms.config.DisableAmountOverflow,
		CommandTimeout:        ms.config.CommandTimeout,
		ChargeAccess:          ms.config.ChargeAccess,
		ParList:               ms.config.parList(),
	}, ms.deps, ms.out, ms.Log)
	ms.dispensers = NewDispenserManager(DispenserConfig{
		Currency:        ms.config.Currency,
		CommandTimeout:  ms.config.CommandTimeout,
		DispenseTimeout: ms.config.DispenseTimeout,
	}, ms.deps, ms.out, ms.Log)

	ms.acceptors.Init(ms.deps.Providers)
	if err := ms.dispensers.Init(); err != nil {
		ms.Log.Errorf("%s %v", tag, err)
	}
	ms.Log.Infof("%s currency=%s validators=%v dispensers=%v", tag, ms.config.Currency,
		ms.acceptors.Validators(), ms.deps.Devices.Names(device.KindDispenser))
	return nil
}

// FinishInit reports required devices that did not come up.
func (ms *MoneySystem) FinishInit() error {
	err := ms.deps.Devices.CheckRequired()
	if err != nil {
		ms.Log.Errorf("money.finish_init %v", err)
	}
	return errors.Annotate(err, "money.finish_init")
}

func (ms *MoneySystem) Shutdown() {
	if ms.acceptors != nil {
		ms.acceptors.Shutdown()
	}
	if ms.dispensers != nil {
		ms.dispensers.Shutdown()
	}
	ms.Log.Infof("money.shutdown")
}

// CanShutdown is false while change is being given.
func (ms *MoneySystem) CanShutdown() bool {
	return ms.dispensers == nil || !ms.dispensers.Busy()
}

// Subscribe to outward events. Callback runs outside of funds core locks
// and may call back into MoneySystem.
func (ms *MoneySystem) Subscribe(f func(types.Event)) device.Subscription {
	return ms.events.Subscribe(f)
}

func (ms *MoneySystem) Enable(paymentID int64, method string, max decimal.Decimal) (bool, error) {
	return ms.acceptors.Enable(paymentID, method, max)
}

func (ms *MoneySystem) Disable(paymentID int64) bool { return ms.acceptors.Disable(paymentID) }

func (ms *MoneySystem) Session() (SessionState, bool) { return ms.acceptors.Session() }

func (ms *MoneySystem) PaymentMethods() []string { return ms.acceptors.PaymentMethods() }

func (ms *MoneySystem) Dispense(amount decimal.Decimal) error {
	return ms.dispensers.Dispense(amount)
}

func (ms *MoneySystem) CanDispense(amount decimal.Decimal) decimal.Decimal {
	return ms.dispensers.CanDispense(amount)
}

func (ms *MoneySystem) Plan(amount decimal.Decimal) *currency.NominalGroup {
	return ms.dispensers.Plan(amount)
}

func (ms *MoneySystem) CashUnitsState() map[string][]money.CashUnit {
	return ms.dispensers.CashUnitsState()
}

func (ms *MoneySystem) SetCashUnitsState(name string, units []money.CashUnit) error {
	return ms.dispensers.SetCashUnitsState(name, units)
}

func (ms *MoneySystem) Parameters() map[string]string {
	return map[string]string{
		ParamRejectCount: strconv.Itoa(ms.acceptors.RejectCount()),
	}
}

func (ms *MoneySystem) ResetParameters(names []string) error {
	errs := make([]error, 0, len(names))
	for _, name := range names {
		switch name {
		case ParamRejectCount:
			errs = append(errs, ms.acceptors.ResetRejectCount())
		default:
			errs = append(errs, errors.NotFoundf("parameter=%s", name))
		}
	}
	return helpers.FoldErrors(errs)
}

// State is identity of cash acceptors, "model;serial;firmware" per device.
func (ms *MoneySystem) State() string {
	names := ms.acceptors.Validators()
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		dev, err := ms.deps.Devices.Acquire(name)
		if err != nil {
			continue
		}
		parts = append(parts, dev.State().String())
		ms.deps.Devices.Release(dev)
	}
	return strings.Join(parts, ";")
}
