package money

import "github.com/juju/errors"

var (
	ErrSessionBusy    = errors.New("another payment session is active")
	ErrNoFundsSource  = errors.New("no funds sources available")
	ErrCurrencyNotSet = errors.New("currency is not set")
)

var ErrDispenseBusy = errors.New("dispense is in progress")
