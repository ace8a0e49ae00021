package money

import (
	"github.com/AlexTransit/kiosk/hardware/device"
	"github.com/AlexTransit/kiosk/hardware/money"
	"github.com/shopspring/decimal"
)

const MethodCash = "cash"

// ChargeProvider is non-cash funds source, like gift credit or card.
// Enable and Disable are called under manager lock and must not report stacked synchronously.
type ChargeProvider interface {
	Method() string
	Enable(paymentID int64, max decimal.Decimal) error
	Disable() error
	OnStacked(func([]money.Par)) device.Subscription
}
