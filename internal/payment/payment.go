// Package payment is the view of payment processing needed by the funds core.
package payment

import (
	"strconv"

	"github.com/juju/errors"
	"github.com/shopspring/decimal"
)

// Payment field names.
const (
	FieldType       = "Type"
	FieldProvider   = "Provider"
	FieldAmount     = "Amount"
	FieldAmountAll  = "AmountAll"
	FieldChange     = "Change"
	FieldCommission = "Commission"
	FieldMinAmount  = "MinAmount"
	FieldMaxAmount  = "MaxAmount"
)

const NoPayment int64 = -1

type Parameter struct {
	Name  string
	Value string
}

func NewParameter(name string, value decimal.Decimal) Parameter {
	return Parameter{Name: name, Value: value.String()}
}

func (p Parameter) Decimal() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(p.Value)
	return d, errors.Annotatef(err, "payment field %s=%q", p.Name, p.Value)
}

func (p Parameter) Int64() (int64, error) {
	i, err := strconv.ParseInt(p.Value, 10, 64)
	return i, errors.Annotatef(err, "payment field %s=%q", p.Name, p.Value)
}

// Find returns first parameter with name.
func Find(params []Parameter, name string) (Parameter, bool) {
	for _, p := range params {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

type Limits struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// Fixed is true when provider accepts exactly one amount. Unset limits are not fixed.
func (l Limits) Fixed() bool { return !l.Max.IsZero() && l.Min.Equal(l.Max) }

type Provider struct {
	ID     int64
	Name   string
	Limits Limits
	// percent of accepted amount kept as commission
	CommissionPercent decimal.Decimal
}

type Service interface {
	ActivePayment() int64
	PaymentField(paymentID int64, name string) (Parameter, bool)
	PaymentFields(paymentID int64) []Parameter
	// CalculateCommission takes AmountAll and returns it together with Amount, Commission and Change.
	CalculateCommission(paymentID int64, params []Parameter) []Parameter
	Provider(id int64) (Provider, bool)
	// reference under which dispensed change is recorded
	ChangeSessionRef() string
}
