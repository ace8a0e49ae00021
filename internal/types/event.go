package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type EventKind uint8

const (
	EventInvalid EventKind = iota
	EventAmountUpdated
	EventDisabled
	EventError
	EventWarning
	EventCheated
	EventActivity
	EventDispensed
)

var eventKindNames = [...]string{
	EventInvalid:       "Invalid",
	EventAmountUpdated: "AmountUpdated",
	EventDisabled:      "Disabled",
	EventError:         "Error",
	EventWarning:       "Warning",
	EventCheated:       "Cheated",
	EventActivity:      "Activity",
	EventDispensed:     "Dispensed",
}

func (k EventKind) String() string {
	if int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return fmt.Sprintf("EventKind(%d)", uint8(k))
}

// NoPayment is PaymentID of events not bound to any payment.
const NoPayment int64 = -1

// Event is what the funds core reports to payment processing.
// AmountUpdated: Amount is session total, Delta is last accepted sum.
// Dispensed: Amount is total given out, zero on failure.
type Event struct {
	Kind      EventKind
	PaymentID int64
	Amount    decimal.Decimal
	Delta     decimal.Decimal
	Message   string
}

func (e Event) String() string {
	switch e.Kind {
	case EventAmountUpdated:
		return fmt.Sprintf("Event(%s payment=%d amount=%s delta=%s)", e.Kind, e.PaymentID, e.Amount.StringFixed(2), e.Delta.StringFixed(2))
	case EventDispensed:
		return fmt.Sprintf("Event(%s amount=%s)", e.Kind, e.Amount.StringFixed(2))
	case EventError, EventWarning:
		return fmt.Sprintf("Event(%s payment=%d message=%s)", e.Kind, e.PaymentID, e.Message)
	}
	return fmt.Sprintf("Event(%s payment=%d)", e.Kind, e.PaymentID)
}

type EventFunc func(Event)
