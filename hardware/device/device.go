// Package device is registry of cash devices configured for this kiosk.
package device

import (
	"github.com/AlexTransit/kiosk/hardware/money"
	"github.com/juju/errors"
)

type Kind string

const (
	KindBillAcceptor Kind = "bill_acceptor"
	KindCoinAcceptor Kind = "coin_acceptor"
	KindDispenser    Kind = "dispenser"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindBillAcceptor, KindCoinAcceptor, KindDispenser:
		return k, nil
	}
	return "", errors.NotValidf("device kind=%q", s)
}

func (k Kind) Acceptor() bool { return k == KindBillAcceptor || k == KindCoinAcceptor }

// State is static identity reported by device.
type State struct {
	Model    string
	Serial   string
	Firmware string
}

func (s State) String() string { return s.Model + ";" + s.Serial + ";" + s.Firmware }

type Device interface {
	Name() string
	Kind() Kind
	Ready() bool
	State() State
	OnStatus(func(money.StatusEvent)) Subscription
}

// Config is hardware block of one device as the registry sees it.
type Config struct {
	Name     string
	Kind     Kind
	Required bool
	Disabled bool
	Currency string
	Units    int
	Nominals []int
	Counts   []int
}
