package money

import (
	"sort"

	"github.com/AlexTransit/kiosk/currency"
	"github.com/AlexTransit/kiosk/hardware/dispenser"
	"github.com/shopspring/decimal"
)

// Option is one place a nominal can be dispensed from.
type Option struct {
	Device string
	Unit   int
	Count  int
}

// Candidates maps nominal to parallel options, in device name then unit order.
type Candidates map[currency.Nominal][]Option

func (c Candidates) Copy() Candidates {
	c2 := make(Candidates, len(c))
	for n, opts := range c {
		c2[n] = append([]Option(nil), opts...)
	}
	return c2
}

// Exclude drops options of listed devices, nominals left without options are removed.
func (c Candidates) Exclude(devices map[string]bool) {
	if len(devices) == 0 {
		return
	}
	for n, opts := range c {
		kept := opts[:0]
		for _, o := range opts {
			if !devices[o.Device] {
				kept = append(kept, o)
			}
		}
		if len(kept) == 0 {
			delete(c, n)
		} else {
			c[n] = kept
		}
	}
}

func (c Candidates) Available(n currency.Nominal) int {
	sum := 0
	for _, o := range c[n] {
		sum += o.Count
	}
	return sum
}

// Pick returns the largest nominal not exceeding remaining.
// False when there are no candidates or even the smallest is too large.
func (c Candidates) Pick(remaining decimal.Decimal) (currency.Nominal, bool) {
	if len(c) == 0 {
		return 0, false
	}
	ns := make([]currency.Nominal, 0, len(c))
	for n := range c {
		ns = append(ns, n)
	}
	sort.Slice(ns, func(i, j int) bool { return ns[i] < ns[j] })
	if ns[0].Amount().GreaterThan(remaining) {
		return 0, false
	}
	last := ns[len(ns)-1]
	if !last.Amount().GreaterThan(remaining) {
		return last, true
	}
	i := sort.Search(len(ns), func(i int) bool { return !ns[i].Amount().LessThan(remaining) })
	if i == len(ns) || ns[i].Amount().GreaterThan(remaining) {
		i--
	}
	return ns[i], true
}

// Planner chooses units to dispense from. It only reads ledger and faulty set.
type Planner struct {
	Ledger *Ledger
	// acquired dispensers by configuration name
	Dispensers map[string]dispenser.Dispenser
	Faulty     map[string]bool
}

// Candidates collects ready units with notes left and nominal not above amount.
// Devices with broken ledger are skipped.
func (p *Planner) Candidates(amount decimal.Decimal) Candidates {
	names := make([]string, 0, len(p.Dispensers))
	for name := range p.Dispensers {
		if !p.Faulty[name] && !p.Ledger.Broken(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	c := make(Candidates)
	for _, name := range names {
		d := p.Dispensers[name]
		for i, u := range p.Ledger.Units(name) {
			if !d.UnitReady(i) || u.Count == 0 || u.Nominal == 0 || u.Nominal.Amount().GreaterThan(amount) {
				continue
			}
			c[u.Nominal] = append(c[u.Nominal], Option{Device: name, Unit: i, Count: u.Count})
		}
	}
	return c
}

// Plan greedily takes largest nominals first. Nothing is mutated.
func (p *Planner) Plan(amount decimal.Decimal) *currency.NominalGroup {
	plan := currency.NewNominalGroup()
	if amount.Sign() <= 0 {
		return plan
	}
	c := p.Candidates(amount)
	planned := decimal.Zero
	for {
		remaining := amount.Sub(planned)
		n, ok := c.Pick(remaining)
		if !ok {
			break
		}
		required := currency.Floor(remaining, n)
		available := c.Available(n)
		take := required
		if available < take {
			take = available
		}
		planned = planned.Add(currency.Times(n, take))
		plan.MustAdd(n, uint(take))
		if take == available {
			delete(c, n)
		}
	}
	return plan
}

// CanDispense returns the part of amount that can be given out, zero if nothing.
func (p *Planner) CanDispense(amount decimal.Decimal) decimal.Decimal {
	return p.Plan(amount).Total()
}
