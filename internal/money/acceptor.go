package money

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/AlexTransit/kiosk/currency"
	"github.com/AlexTransit/kiosk/hardware/acceptor"
	"github.com/AlexTransit/kiosk/hardware/device"
	"github.com/AlexTransit/kiosk/hardware/money"
	"github.com/AlexTransit/kiosk/internal/payment"
	"github.com/AlexTransit/kiosk/internal/store"
	"github.com/AlexTransit/kiosk/internal/types"
	"github.com/AlexTransit/kiosk/log2"
	"github.com/juju/errors"
	"github.com/shopspring/decimal"
)

const warningOverflowAmount = "#overflow_amount"

type AcceptorConfig struct {
	DisableAmountOverflow bool
	CommandTimeout        time.Duration
	// payment type -> allowed methods, empty allows everything
	ChargeAccess map[string][]string
	ParList      money.ParList
}

// AcceptorManager drives cash validators and charge providers for one payment at a time.
type AcceptorManager struct {
	Log *log2.Log

	lk       sync.Mutex
	config   AcceptorConfig
	devices  *device.Service
	params   store.ParamStore
	notes    store.NoteStore
	payments payment.Service
	out      *outbox

	validators   map[string]acceptor.CashAcceptor
	statusSubs   []device.Subscription
	providers    []ChargeProvider
	providerSubs []device.Subscription
	configSub    device.Subscription
	session      *Session
}

func NewAcceptorManager(config AcceptorConfig, deps Deps, out *outbox, log *log2.Log) *AcceptorManager {
	if config.CommandTimeout <= 0 {
		config.CommandTimeout = DefaultCommandTimeout
	}
	return &AcceptorManager{
		Log:        log,
		config:     config,
		devices:    deps.Devices,
		params:     deps.Params,
		notes:      deps.Notes,
		payments:   deps.Payments,
		out:        out,
		validators: make(map[string]acceptor.CashAcceptor),
	}
}

func (am *AcceptorManager) unlockFlush() {
	am.lk.Unlock()
	am.out.flush()
}

func (am *AcceptorManager) commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), am.config.CommandTimeout)
}

func (am *AcceptorManager) Init(providers []ChargeProvider) {
	am.lk.Lock()
	for _, p := range providers {
		p := p
		am.providers = append(am.providers, p)
		am.providerSubs = append(am.providerSubs, p.OnStacked(func(pars []money.Par) { am.onProviderStacked(p, pars) }))
	}
	am.locked_updateHardwareConfiguration()
	am.unlockFlush()

	am.configSub = am.devices.OnConfigurationUpdated(func(string) { am.UpdateHardwareConfiguration() })
}

func (am *AcceptorManager) UpdateHardwareConfiguration() {
	am.lk.Lock()
	defer am.unlockFlush()
	am.locked_updateHardwareConfiguration()
}

func (am *AcceptorManager) locked_updateHardwareConfiguration() {
	am.locked_releaseDevices()
	for _, name := range am.devices.Names(device.KindBillAcceptor, device.KindCoinAcceptor) {
		dev, err := am.devices.Acquire(name)
		if err != nil {
			am.Log.Errorf("failed to acquire cash acceptor=%s err=%v", name, err)
			continue
		}
		v, ok := dev.(acceptor.CashAcceptor)
		if !ok {
			am.Log.Errorf("device=%s is not cash acceptor", name)
			am.devices.Release(dev)
			continue
		}
		name := name
		am.validators[name] = v
		am.statusSubs = append(am.statusSubs, v.OnStatus(func(e money.StatusEvent) { am.onStatus(name, e) }))
		if len(am.config.ParList) != 0 {
			ctx, cancel := am.commandContext()
			if err := v.SetParList(ctx, am.config.ParList); err != nil {
				am.Log.Errorf("validator=%s set par list err=%v", name, err)
			}
			cancel()
		}
	}
}

func (am *AcceptorManager) locked_releaseDevices() {
	for _, sub := range am.statusSubs {
		sub.Cancel()
	}
	am.statusSubs = nil
	for name, v := range am.validators {
		if am.session != nil {
			am.session.removeValidator(name)
		}
		am.devices.Release(v)
	}
	am.validators = make(map[string]acceptor.CashAcceptor)
}

func (am *AcceptorManager) Shutdown() {
	am.configSub.Cancel()
	am.lk.Lock()
	defer am.unlockFlush()
	if s := am.session; s != nil && s.Active() {
		am.locked_disable(s)
	}
	am.locked_releaseDevices()
	for _, sub := range am.providerSubs {
		sub.Cancel()
	}
	am.providerSubs = nil
	am.providers = nil
	am.session = nil
}

// Validators returns names of acquired cash acceptors.
func (am *AcceptorManager) Validators() []string {
	am.lk.Lock()
	defer am.lk.Unlock()
	names := make([]string, 0, len(am.validators))
	for name := range am.validators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (am *AcceptorManager) Session() (SessionState, bool) {
	am.lk.Lock()
	defer am.lk.Unlock()
	if am.session == nil {
		return SessionState{}, false
	}
	return am.session.state(), true
}

// Enable starts or continues accepting funds toward payment.
// Returns false without error when payment already got its max amount.
func (am *AcceptorManager) Enable(paymentID int64, method string, max decimal.Decimal) (bool, error) {
	const tag = "money.enable"
	am.lk.Lock()
	defer am.unlockFlush()

	s := am.session
	if s != nil && s.PaymentID != paymentID {
		if s.Active() {
			return false, errors.Annotatef(ErrSessionBusy, "%s payment=%d active=%d", tag, paymentID, s.PaymentID)
		}
		s = nil
	}
	if s == nil {
		s = newSession(paymentID, max)
		am.session = s
	} else {
		if s.Current.IsZero() {
			s.Max = max
		}
		if s.MaxReached() {
			am.Log.Infof("%s payment=%d max amount=%s reached", tag, paymentID, currency.Format(s.Max))
			return false, nil
		}
	}

	if method == "" {
		method = MethodCash
	}
	if method == MethodCash {
		for _, name := range am.locked_validatorNames() {
			v := am.validators[name]
			if s.HasValidator(name) || !v.Ready() {
				continue
			}
			ctx, cancel := am.commandContext()
			err := v.SetEnable(ctx, true)
			cancel()
			if err != nil {
				am.Log.Errorf("%s validator=%s err=%v", tag, name, err)
				continue
			}
			am.locked_link(s, name, v)
		}
	}
	for _, p := range am.providers {
		if p.Method() != method || s.HasProvider(p) {
			continue
		}
		if err := p.Enable(paymentID, s.Max); err != nil {
			am.Log.Errorf("%s provider=%s err=%v", tag, p.Method(), err)
			continue
		}
		s.providers[p] = struct{}{}
	}

	if !s.Active() {
		am.Log.Errorf("%s payment=%d method=%s: %v", tag, paymentID, method, ErrNoFundsSource)
		return false, errors.Annotatef(ErrNoFundsSource, "%s payment=%d method=%s", tag, paymentID, method)
	}
	am.Log.Debugf("%s payment=%d method=%s max=%s", tag, paymentID, method, currency.Format(s.Max))
	return true, nil
}

func (am *AcceptorManager) locked_link(s *Session, name string, v acceptor.CashAcceptor) {
	link := &validatorLink{dev: v}
	overflow := am.config.DisableAmountOverflow
	link.escrow = v.OnEscrow(func(p money.Par) { am.onEscrow(s, name, v, p, overflow) })
	link.stacked = v.OnStacked(func(pars []money.Par) { am.onStacked(s, name, pars) })
	s.validators[name] = link
}

func (am *AcceptorManager) locked_validatorNames() []string {
	names := make([]string, 0, len(am.validators))
	for name := range am.validators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Disable stops accepting for payment. Returns false when payment has no session.
// Drained session of the payment is disabled again, with Disabled event.
func (am *AcceptorManager) Disable(paymentID int64) bool {
	am.lk.Lock()
	defer am.unlockFlush()
	s := am.session
	if s == nil || s.PaymentID != paymentID {
		am.out.push(types.Event{Kind: types.EventDisabled, PaymentID: paymentID})
		return false
	}
	return am.locked_disable(s)
}

// Providers are removed right away, validators leave session when they report Disabled.
func (am *AcceptorManager) locked_disable(s *Session) bool {
	for p := range s.providers {
		if err := p.Disable(); err != nil {
			am.Log.Errorf("money.disable provider=%s err=%v", p.Method(), err)
			continue
		}
		delete(s.providers, p)
	}
	for name, link := range s.validators {
		ctx, cancel := am.commandContext()
		err := link.dev.SetEnable(ctx, false)
		cancel()
		if err != nil {
			am.Log.Errorf("money.disable validator=%s err=%v", name, err)
		}
	}
	if !s.Active() {
		am.out.push(types.Event{Kind: types.EventDisabled, PaymentID: s.PaymentID})
	}
	return true
}

func (am *AcceptorManager) onEscrow(s *Session, name string, v acceptor.CashAcceptor, p money.Par, checkOverflow bool) {
	am.lk.Lock()
	defer am.unlockFlush()

	if am.session != s || !s.HasValidator(name) {
		am.Log.Errorf("validator=%s escrow %s outside of payment session, reject", name, p)
		am.locked_reject(name, v)
		return
	}
	if checkOverflow && !am.isFixedAmountPayment(s.PaymentID) && !am.allowMoreMoney(s.PaymentID, p.Amount()) {
		am.Log.Infof("validator=%s escrow %s overflows payment=%d, reject", name, p, s.PaymentID)
		am.locked_reject(name, v)
		am.out.push(types.Event{Kind: types.EventWarning, PaymentID: s.PaymentID, Message: warningOverflowAmount})
		return
	}
	if s.MaxReached() {
		am.locked_reject(name, v)
		return
	}
	ctx, cancel := am.commandContext()
	defer cancel()
	if err := v.Stack(ctx); err != nil {
		am.Log.Errorf("validator=%s stack %s err=%v", name, p, err)
	}
}

func (am *AcceptorManager) locked_reject(name string, v acceptor.CashAcceptor) {
	ctx, cancel := am.commandContext()
	defer cancel()
	if err := v.Reject(ctx); err != nil {
		am.Log.Errorf("validator=%s reject err=%v", name, err)
	}
}

func (am *AcceptorManager) onStacked(s *Session, name string, pars []money.Par) {
	am.lk.Lock()
	defer am.unlockFlush()
	if am.session != s || !s.HasValidator(name) {
		for _, p := range pars {
			am.Log.Errorf("lost money validator=%s %s", name, p)
		}
		return
	}
	am.locked_credit(s, pars)
}

func (am *AcceptorManager) onProviderStacked(p ChargeProvider, pars []money.Par) {
	am.lk.Lock()
	defer am.unlockFlush()
	s := am.session
	if s == nil {
		for _, par := range pars {
			am.Log.Errorf("lost money provider=%s %s", p.Method(), par)
		}
		return
	}
	// charge completed while disable was in flight still belongs to session
	if !s.HasProvider(p) {
		am.Log.Infof("provider=%s late charge payment=%d", p.Method(), s.PaymentID)
	}
	am.locked_credit(s, pars)
}

func (am *AcceptorManager) locked_credit(s *Session, pars []money.Par) {
	total, ng := money.SumPars(pars)
	if err := am.notes.AddPaymentNote(s.PaymentID, parNotes(pars)); err != nil {
		am.Log.Errorf("payment=%d add notes %s err=%v", s.PaymentID, ng, err)
	}
	s.Current = s.Current.Add(total)
	am.Log.Infof("payment=%d stacked %s current=%s", s.PaymentID, ng, currency.Format(s.Current))
	am.out.push(types.Event{Kind: types.EventAmountUpdated, PaymentID: s.PaymentID, Amount: s.Current, Delta: total})
	if s.MaxReached() && s.Active() {
		am.locked_disable(s)
	}
}

func parNotes(pars []money.Par) []store.Note {
	notes := make([]store.Note, len(pars))
	for i, p := range pars {
		t := store.NoteBill
		switch p.Receiver {
		case money.ReceiverCoin:
			t = store.NoteCoin
		case money.ReceiverCharge:
			t = store.NoteCharge
		}
		notes[i] = store.Note{Type: t, Nominal: p.Amount(), CurrencyID: p.CurrencyID, Serial: p.Serial}
	}
	return notes
}

func (am *AcceptorManager) onStatus(name string, e money.StatusEvent) {
	am.lk.Lock()
	defer am.unlockFlush()
	s := am.session
	paymentID := types.NoPayment
	if s != nil {
		paymentID = s.PaymentID
	}

	switch {
	case e.Level() == money.LevelError:
		am.Log.Errorf("validator=%s %s", name, e)
		if s != nil && s.Active() {
			am.locked_disable(s)
		}
		am.out.push(types.Event{Kind: types.EventError, PaymentID: paymentID, Message: e.Text})
	case e.Status == money.StatusRejected:
		am.locked_incrementRejectCount()
		am.out.push(types.Event{Kind: types.EventActivity, PaymentID: paymentID})
	case e.Status == money.StatusCheated:
		am.Log.Errorf("validator=%s cheated payment=%d", name, paymentID)
		am.out.push(types.Event{Kind: types.EventCheated, PaymentID: paymentID})
	case e.Status == money.StatusDisabled:
		if s != nil && s.HasValidator(name) {
			s.removeValidator(name)
			if !s.Active() {
				am.out.push(types.Event{Kind: types.EventDisabled, PaymentID: s.PaymentID})
			}
		}
	default:
		am.Log.Debugf("validator=%s %s", name, e)
	}
}

func (am *AcceptorManager) RejectCount() int {
	v, ok, err := am.params.GetDeviceParam(store.DeviceTerminal, store.KeyRejectCount)
	if err != nil {
		am.Log.Errorf("get reject count err=%v", err)
		return 0
	}
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		am.Log.Errorf("reject count=%q err=%v", v, err)
		return 0
	}
	return n
}

func (am *AcceptorManager) ResetRejectCount() error {
	return errors.Annotate(am.params.SetDeviceParam(store.DeviceTerminal, store.KeyRejectCount, "0"), "reset reject count")
}

func (am *AcceptorManager) locked_incrementRejectCount() {
	n := am.RejectCount() + 1
	if err := am.params.SetDeviceParam(store.DeviceTerminal, store.KeyRejectCount, strconv.Itoa(n)); err != nil {
		am.Log.Errorf("set reject count err=%v", err)
	}
}

// isFixedAmountPayment: provider accepts exactly one amount or payment min equals max.
func (am *AcceptorManager) isFixedAmountPayment(paymentID int64) bool {
	field, ok := am.payments.PaymentField(paymentID, payment.FieldProvider)
	if !ok {
		return false
	}
	id, err := field.Int64()
	if err != nil {
		am.Log.Error(err)
		return false
	}
	if p, ok := am.payments.Provider(id); ok && p.Limits.Fixed() {
		return true
	}
	minField, okMin := am.payments.PaymentField(paymentID, payment.FieldMinAmount)
	maxField, okMax := am.payments.PaymentField(paymentID, payment.FieldMaxAmount)
	if !okMin || !okMax {
		return false
	}
	min, err1 := minField.Decimal()
	max, err2 := maxField.Decimal()
	return err1 == nil && err2 == nil && min.Equal(max)
}

// allowMoreMoney is true when accepting amount more leaves no change after commission.
func (am *AcceptorManager) allowMoreMoney(paymentID int64, amount decimal.Decimal) bool {
	amountAll := decimal.Zero
	if p, ok := payment.Find(am.payments.PaymentFields(paymentID), payment.FieldAmountAll); ok {
		d, err := p.Decimal()
		if err != nil {
			am.Log.Error(err)
		} else {
			amountAll = d
		}
	}
	result := am.payments.CalculateCommission(paymentID, []payment.Parameter{
		payment.NewParameter(payment.FieldAmountAll, amountAll.Add(amount)),
	})
	change, ok := payment.Find(result, payment.FieldChange)
	if !ok {
		return true
	}
	d, err := change.Decimal()
	if err != nil {
		am.Log.Error(err)
		return true
	}
	return d.IsZero()
}

// PaymentMethods available for active payment type.
func (am *AcceptorManager) PaymentMethods() []string {
	procType := ""
	if p, ok := am.payments.PaymentField(am.payments.ActivePayment(), payment.FieldType); ok {
		procType = p.Value
	}
	access := am.config.ChargeAccess
	check := func(method string) bool {
		if len(access) == 0 {
			return method != ""
		}
		for _, m := range access[procType] {
			if m == method {
				return true
			}
		}
		return false
	}

	am.lk.Lock()
	defer am.lk.Unlock()
	set := make(map[string]struct{})
	for _, p := range am.providers {
		if check(p.Method()) {
			set[p.Method()] = struct{}{}
		}
	}
	if len(am.validators) != 0 && check(MethodCash) {
		set[MethodCash] = struct{}{}
	}
	result := make([]string, 0, len(set))
	for m := range set {
		result = append(result, m)
	}
	sort.Strings(result)
	return result
}
