package money

import (
	"sync"

	"github.com/AlexTransit/kiosk/currency"
	"github.com/AlexTransit/kiosk/hardware/device"
	"github.com/AlexTransit/kiosk/hardware/money"
	"github.com/AlexTransit/kiosk/log2"
	"github.com/juju/errors"
	"github.com/shopspring/decimal"
)

const MethodGift = "gift"

// GiftProvider is operator issued credit, counted toward payment like stacked cash.
type GiftProvider struct {
	Log        *log2.Log
	CurrencyID int

	lk       sync.Mutex
	enabled  bool
	payment  int64
	max      decimal.Decimal
	credited decimal.Decimal
	stacked  device.Signal[[]money.Par]
}

var _ ChargeProvider = &GiftProvider{}

func NewGiftProvider(currencyID int, log *log2.Log) *GiftProvider {
	return &GiftProvider{Log: log, CurrencyID: currencyID}
}

func (gp *GiftProvider) Method() string { return MethodGift }

func (gp *GiftProvider) Enable(paymentID int64, max decimal.Decimal) error {
	gp.lk.Lock()
	defer gp.lk.Unlock()
	if !gp.enabled || gp.payment != paymentID {
		gp.credited = decimal.Zero
	}
	gp.enabled = true
	gp.payment = paymentID
	gp.max = max
	gp.Log.Debugf("gift enabled payment=%d max=%s", paymentID, currency.Format(max))
	return nil
}

func (gp *GiftProvider) Disable() error {
	gp.lk.Lock()
	defer gp.lk.Unlock()
	gp.enabled = false
	return nil
}

func (gp *GiftProvider) Enabled() bool {
	gp.lk.Lock()
	defer gp.lk.Unlock()
	return gp.enabled
}

func (gp *GiftProvider) OnStacked(f func([]money.Par)) device.Subscription {
	return gp.stacked.Subscribe(f)
}

// Credit applies gift amount to enabled payment. Must not be called under funds manager lock.
func (gp *GiftProvider) Credit(n currency.Nominal) error {
	const tag = "gift.credit"
	if n <= 0 {
		return errors.NotValidf("%s amount=%d", tag, n)
	}
	gp.lk.Lock()
	if !gp.enabled {
		gp.lk.Unlock()
		return errors.Annotate(money.ErrDisabled, tag)
	}
	after := gp.credited.Add(n.Amount())
	if !gp.max.IsZero() && after.GreaterThan(gp.max) {
		gp.lk.Unlock()
		return errors.NotValidf("%s amount=%d over max=%s", tag, n, currency.Format(gp.max))
	}
	gp.credited = after
	pars := []money.Par{{Nominal: n, CurrencyID: gp.CurrencyID, Receiver: money.ReceiverCharge}}
	gp.lk.Unlock()

	gp.Log.Infof("%s amount=%d total=%s", tag, n, currency.Format(after))
	gp.stacked.Emit(pars)
	return nil
}
