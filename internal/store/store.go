// Package store defines persistence used by the funds core:
// per-device parameters and the ledger of accepted and dispensed notes.
package store

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	KeyCashUnits   = "CashUnits"
	KeyRejectCount = "RejectCount"
	// pseudo device holding terminal wide parameters
	DeviceTerminal = "Terminal"
)

type NoteType string

const (
	NoteBill   NoteType = "bill"
	NoteCoin   NoteType = "coin"
	NoteCharge NoteType = "charge" // credit from charge provider
)

type Note struct {
	Type       NoteType
	Nominal    decimal.Decimal
	CurrencyID int
	Serial     string
}

func (n Note) String() string {
	return fmt.Sprintf("%s:%s cur=%d", n.Type, n.Nominal.String(), n.CurrencyID)
}

type ParamStore interface {
	// ok=false when parameter was never set
	GetDeviceParam(device, key string) (value string, ok bool, err error)
	SetDeviceParam(device, key, value string) error
}

type NoteStore interface {
	AddPaymentNote(paymentID int64, notes []Note) error
	AddChangeNote(changeSessionRef string, notes []Note) error
}

// Store is both, implementations in subpackages.
type Store interface {
	ParamStore
	NoteStore
	PaymentNotes(paymentID int64) ([]Note, error)
	ChangeNotes(changeSessionRef string) ([]Note, error)
	Close() error
}
