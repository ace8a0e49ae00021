package types

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestEventString(t *testing.T) {
	t.Parallel()

	e := Event{Kind: EventAmountUpdated, PaymentID: 7, Amount: decimal.NewFromInt(150), Delta: decimal.NewFromInt(50)}
	require.Equal(t, "Event(AmountUpdated payment=7 amount=150.00 delta=50.00)", e.String())
	require.Equal(t, "Event(Warning payment=-1 message=#overflow_amount)",
		Event{Kind: EventWarning, PaymentID: NoPayment, Message: "#overflow_amount"}.String())
	require.Equal(t, "EventKind(99)", EventKind(99).String())
	require.Equal(t, "dispenser is offline", DeviceOfflineError{Device: "dispenser"}.Error())
}
