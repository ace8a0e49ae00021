package money

import (
	"fmt"

	"github.com/AlexTransit/kiosk/currency"
	"github.com/shopspring/decimal"
)

type Receiver byte

const (
	ReceiverBill Receiver = iota + 1
	ReceiverCoin
	// non-cash charge provider
	ReceiverCharge
)

func (r Receiver) String() string {
	switch r {
	case ReceiverBill:
		return "Bill"
	case ReceiverCoin:
		return "Coin"
	case ReceiverCharge:
		return "Charge"
	}
	return fmt.Sprintf("Receiver(%d)", byte(r))
}

// Par describes one accepted note or coin.
type Par struct {
	Nominal    currency.Nominal
	CurrencyID int
	Receiver   Receiver
	Serial     string
}

func (p Par) Amount() decimal.Decimal { return p.Nominal.Amount() }

func (p Par) String() string {
	if p.Serial != "" {
		return fmt.Sprintf("%s: %d serial=%s", p.Receiver, p.Nominal, p.Serial)
	}
	return fmt.Sprintf("%s: %d", p.Receiver, p.Nominal)
}

// SumPars returns total of pars and their tally by nominal.
func SumPars(pars []Par) (decimal.Decimal, *currency.NominalGroup) {
	ng := currency.NewNominalGroup()
	for _, p := range pars {
		ng.MustAdd(p.Nominal, 1)
	}
	return ng.Total(), ng
}

// ParList is working par set pushed to validators: which nominals are enabled.
type ParList []Par

func (pl ParList) Enabled(n currency.Nominal, r Receiver) bool {
	for _, p := range pl {
		if p.Nominal == n && p.Receiver == r {
			return true
		}
	}
	return false
}

func (pl ParList) Nominals(r Receiver) []currency.Nominal {
	ns := make([]currency.Nominal, 0, len(pl))
	for _, p := range pl {
		if p.Receiver == r {
			ns = append(ns, p.Nominal)
		}
	}
	return ns
}

// CashUnit is one dispenser slot: what it holds and how many.
type CashUnit struct {
	Currency string
	Nominal  currency.Nominal
	Count    int
}

func (cu CashUnit) Amount() decimal.Decimal { return currency.Times(cu.Nominal, cu.Count) }

func (cu CashUnit) String() string {
	return fmt.Sprintf("%s:%d:%d", cu.Currency, cu.Nominal, cu.Count)
}
