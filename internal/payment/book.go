package payment

import (
	"sync"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Book is in-memory payment service used by console and tests.
type Book struct {
	lk        sync.RWMutex
	active    int64
	payments  map[int64][]Parameter
	providers map[int64]Provider
	changeRef string
}

var _ Service = &Book{}

func NewBook() *Book {
	return &Book{
		active:    NoPayment,
		payments:  make(map[int64][]Parameter),
		providers: make(map[int64]Provider),
	}
}

func (b *Book) AddProvider(p Provider) {
	b.lk.Lock()
	defer b.lk.Unlock()
	b.providers[p.ID] = p
}

// Create registers payment and makes it active.
// Zero min or max are not stored.
func (b *Book) Create(paymentID, providerID int64, typ string, min, max decimal.Decimal) error {
	b.lk.Lock()
	defer b.lk.Unlock()
	if _, ok := b.payments[paymentID]; ok {
		return errors.AlreadyExistsf("payment=%d", paymentID)
	}
	params := []Parameter{
		{Name: FieldType, Value: typ},
		NewParameter(FieldAmountAll, decimal.Zero),
	}
	if providerID != 0 {
		params = append(params, NewParameter(FieldProvider, decimal.NewFromInt(providerID)))
	}
	if !min.IsZero() {
		params = append(params, NewParameter(FieldMinAmount, min))
	}
	if !max.IsZero() {
		params = append(params, NewParameter(FieldMaxAmount, max))
	}
	b.payments[paymentID] = params
	b.active = paymentID
	return nil
}

func (b *Book) SetActive(paymentID int64) {
	b.lk.Lock()
	defer b.lk.Unlock()
	b.active = paymentID
}

func (b *Book) SetField(paymentID int64, name, value string) error {
	b.lk.Lock()
	defer b.lk.Unlock()
	params, ok := b.payments[paymentID]
	if !ok {
		return errors.NotFoundf("payment=%d", paymentID)
	}
	for i := range params {
		if params[i].Name == name {
			params[i].Value = value
			return nil
		}
	}
	b.payments[paymentID] = append(params, Parameter{Name: name, Value: value})
	return nil
}

// SetAmountAll stores amount accepted for payment so far.
func (b *Book) SetAmountAll(paymentID int64, amount decimal.Decimal) error {
	return b.SetField(paymentID, FieldAmountAll, amount.String())
}

// NewChangeSession starts new reference for dispensed change.
func (b *Book) NewChangeSession() string {
	b.lk.Lock()
	defer b.lk.Unlock()
	b.changeRef = uuid.NewString()
	return b.changeRef
}

func (b *Book) ActivePayment() int64 {
	b.lk.RLock()
	defer b.lk.RUnlock()
	return b.active
}

func (b *Book) PaymentField(paymentID int64, name string) (Parameter, bool) {
	b.lk.RLock()
	defer b.lk.RUnlock()
	return Find(b.payments[paymentID], name)
}

func (b *Book) PaymentFields(paymentID int64) []Parameter {
	b.lk.RLock()
	defer b.lk.RUnlock()
	return append([]Parameter(nil), b.payments[paymentID]...)
}

func (b *Book) Provider(id int64) (Provider, bool) {
	b.lk.RLock()
	defer b.lk.RUnlock()
	p, ok := b.providers[id]
	return p, ok
}

func (b *Book) ChangeSessionRef() string {
	b.lk.Lock()
	defer b.lk.Unlock()
	if b.changeRef == "" {
		b.changeRef = uuid.NewString()
	}
	return b.changeRef
}

// CalculateCommission applies provider percent to AmountAll.
// Change is the part of AmountAll above payment MaxAmount.
func (b *Book) CalculateCommission(paymentID int64, params []Parameter) []Parameter {
	amountAll := decimal.Zero
	if p, ok := Find(params, FieldAmountAll); ok {
		if d, err := p.Decimal(); err == nil {
			amountAll = d
		}
	}

	b.lk.RLock()
	fields := b.payments[paymentID]
	var provider Provider
	if p, ok := Find(fields, FieldProvider); ok {
		if id, err := p.Int64(); err == nil {
			provider = b.providers[id]
		}
	}
	max := decimal.Zero
	if p, ok := Find(fields, FieldMaxAmount); ok {
		max, _ = p.Decimal()
	}
	b.lk.RUnlock()

	change := decimal.Zero
	if !max.IsZero() && amountAll.GreaterThan(max) {
		change = amountAll.Sub(max)
	}
	paid := amountAll.Sub(change)
	commission := paid.Mul(provider.CommissionPercent).Div(hundred).Round(2)

	return []Parameter{
		NewParameter(FieldAmountAll, amountAll),
		NewParameter(FieldAmount, paid.Sub(commission)),
		NewParameter(FieldCommission, commission),
		NewParameter(FieldChange, change),
	}
}
