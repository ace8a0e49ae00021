// Package currency holds money value types shared by the funds core.
// Payment totals are decimal, physical notes and coins carry integer nominals.
package currency

import (
	"fmt"
	"sort"
	"strings"

	oerr "github.com/juju/errors"
	"github.com/shopspring/decimal"
)

// Nominal is value of one coin or bill in whole currency units.
type Nominal int

func (n Nominal) Amount() decimal.Decimal { return decimal.NewFromInt(int64(n)) }
func (n Nominal) String() string          { return fmt.Sprint(int(n)) }

var (
	ErrNominalInvalid = oerr.New("Nominal is not valid for this group")
	ErrAmountNegative = oerr.New("amount is negative")
)

// Floor returns whole number of nominals that fit into amount.
func Floor(amount decimal.Decimal, n Nominal) int {
	if n <= 0 || amount.Sign() <= 0 {
		return 0
	}
	return int(amount.Div(n.Amount()).IntPart())
}

// Times is nominal*count as decimal.
func Times(n Nominal, count int) decimal.Decimal {
	return decimal.NewFromInt(int64(n) * int64(count))
}

// ParseAmount accepts "12", "12.50"; negative values are rejected.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, oerr.Annotatef(err, "amount=%q", s)
	}
	if d.Sign() < 0 {
		return decimal.Zero, oerr.Annotatef(ErrAmountNegative, "amount=%q", s)
	}
	return d, nil
}

// Format renders amount with two decimal places, the way it is logged everywhere.
func Format(a decimal.Decimal) string { return a.StringFixed(2) }

// NominalGroup operates money comprised of multiple nominals, like coins or bills.
// 10 : 3
// 50 : 1
// 100: 4
// total : 480
type NominalGroup struct {
	values map[Nominal]uint
}

func NewNominalGroup() *NominalGroup {
	return &NominalGroup{values: make(map[Nominal]uint)}
}

func (ng *NominalGroup) Copy() *NominalGroup {
	ng2 := &NominalGroup{
		values: make(map[Nominal]uint, len(ng.values)),
	}
	for k, v := range ng.values {
		ng2.values[k] = v
	}
	return ng2
}

// SetValid restricts Add to listed nominals, counts are reset.
func (ng *NominalGroup) SetValid(valid []Nominal) {
	ng.values = make(map[Nominal]uint, len(valid))
	for _, n := range valid {
		if n != 0 {
			ng.values[n] = 0
		}
	}
}

func (ng *NominalGroup) Add(n Nominal) error {
	return ng.AddMany(n, 1)
}

func (ng *NominalGroup) AddMany(n Nominal, count uint) error {
	if _, ok := ng.values[n]; !ok {
		return oerr.Annotatef(ErrNominalInvalid, "Add(n=%d, c=%d)", n, count)
	}
	ng.MustAdd(n, count)
	return nil
}

// MustAdd just adds count ignoring valid nominals.
func (ng *NominalGroup) MustAdd(n Nominal, count uint) {
	if ng.values == nil {
		ng.values = make(map[Nominal]uint)
	}
	ng.values[n] += count
}

func (ng *NominalGroup) Clear() {
	for n := range ng.values {
		ng.values[n] = 0
	}
}

func (ng *NominalGroup) Get(n Nominal) uint { return ng.values[n] }

// Nominals in descending order, only those with count>0.
func (ng *NominalGroup) Nominals() []Nominal {
	ns := make([]Nominal, 0, len(ng.values))
	for n, c := range ng.values {
		if c > 0 {
			ns = append(ns, n)
		}
	}
	sort.Slice(ns, func(i, j int) bool { return ns[i] > ns[j] })
	return ns
}

func (ng *NominalGroup) Count() uint {
	var sum uint
	for _, c := range ng.values {
		sum += c
	}
	return sum
}

func (ng *NominalGroup) Total() decimal.Decimal {
	var sum int64
	for nominal, count := range ng.values {
		sum += int64(nominal) * int64(count)
	}
	return decimal.NewFromInt(sum)
}

func (ng *NominalGroup) String() string {
	parts := make([]string, 0, len(ng.values)+1)
	for _, n := range ng.Nominals() {
		parts = append(parts, fmt.Sprintf("%d:%d", n, ng.values[n]))
	}
	parts = append(parts, fmt.Sprintf("total:%s", Format(ng.Total())))
	return strings.Join(parts, ",")
}
