package money

import (
	"sort"

	"github.com/AlexTransit/kiosk/hardware/acceptor"
	"github.com/AlexTransit/kiosk/hardware/device"
	"github.com/shopspring/decimal"
)

type validatorLink struct {
	dev     acceptor.CashAcceptor
	escrow  device.Subscription
	stacked device.Subscription
}

func (vl *validatorLink) cancel() {
	vl.escrow.Cancel()
	vl.stacked.Cancel()
}

// Session is acceptance toward one payment. Current never decreases.
// Session without validators and providers is drained: idle, kept for same payment reuse.
type Session struct {
	PaymentID int64
	Current   decimal.Decimal
	Max       decimal.Decimal

	validators map[string]*validatorLink
	providers  map[ChargeProvider]struct{}
}

func newSession(paymentID int64, max decimal.Decimal) *Session {
	return &Session{
		PaymentID:  paymentID,
		Max:        max,
		validators: make(map[string]*validatorLink),
		providers:  make(map[ChargeProvider]struct{}),
	}
}

func (s *Session) MaxReached() bool {
	return !s.Max.IsZero() && s.Current.GreaterThanOrEqual(s.Max)
}

func (s *Session) Active() bool { return len(s.validators)+len(s.providers) != 0 }

func (s *Session) HasValidator(name string) bool {
	_, ok := s.validators[name]
	return ok
}

func (s *Session) HasProvider(p ChargeProvider) bool {
	_, ok := s.providers[p]
	return ok
}

func (s *Session) removeValidator(name string) {
	if vl, ok := s.validators[name]; ok {
		vl.cancel()
		delete(s.validators, name)
	}
}

// SessionState is snapshot for display.
type SessionState struct {
	PaymentID  int64
	Current    decimal.Decimal
	Max        decimal.Decimal
	Validators []string
	Providers  []string
}

func (s *Session) state() SessionState {
	st := SessionState{PaymentID: s.PaymentID, Current: s.Current, Max: s.Max}
	for name := range s.validators {
		st.Validators = append(st.Validators, name)
	}
	for p := range s.providers {
		st.Providers = append(st.Providers, p.Method())
	}
	sort.Strings(st.Validators)
	sort.Strings(st.Providers)
	return st
}
