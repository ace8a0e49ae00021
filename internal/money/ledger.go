package money

import (
	"strconv"
	"strings"

	"github.com/AlexTransit/kiosk/currency"
	"github.com/AlexTransit/kiosk/hardware/money"
	"github.com/AlexTransit/kiosk/helpers"
	"github.com/AlexTransit/kiosk/internal/store"
	"github.com/AlexTransit/kiosk/log2"
	"github.com/juju/errors"
)

// Ledger is believed content of dispenser units, keyed by device configuration name.
// Index in unit list is hardware slot. Not safe for concurrent use, owner serializes access.
// Every mutation is persisted synchronously, persist failure is logged only.
// Device whose persisted value failed to load is broken: kept in memory only,
// never persisted and never planned from, until ReplaceAll.
type Ledger struct {
	Log      *log2.Log
	params   store.ParamStore
	currency string
	units    map[string][]money.CashUnit
	broken   map[string]bool
}

func NewLedger(params store.ParamStore, currencyName string, log *log2.Log) *Ledger {
	return &Ledger{
		Log:      log,
		params:   params,
		currency: currencyName,
		units:    make(map[string][]money.CashUnit),
		broken:   make(map[string]bool),
	}
}

// FormatUnits renders "currency:nominal:count" entries joined with ";".
func FormatUnits(units []money.CashUnit) string {
	parts := make([]string, len(units))
	for i, u := range units {
		parts[i] = u.String()
	}
	return strings.Join(parts, ";")
}

// ParseUnits is inverse of FormatUnits. Empty entries are skipped.
func ParseUnits(s string) ([]money.CashUnit, error) {
	units := []money.CashUnit{}
	for i, entry := range strings.Split(s, ";") {
		if entry == "" {
			continue
		}
		fields := strings.Split(entry, ":")
		if len(fields) != 3 {
			return nil, errors.NotValidf("cash unit entry=%d %q", i, entry)
		}
		nominal, err := strconv.Atoi(fields[1])
		if err != nil || nominal < 0 {
			return nil, errors.NotValidf("cash unit entry=%d %q nominal", i, entry)
		}
		count, err := strconv.Atoi(fields[2])
		if err != nil || count < 0 {
			return nil, errors.NotValidf("cash unit entry=%d %q count", i, entry)
		}
		units = append(units, money.CashUnit{Currency: fields[0], Nominal: currency.Nominal(nominal), Count: count})
	}
	return units, nil
}

// Load reads persisted units of device. Unreadable or malformed value leaves
// device ledger empty and broken, persisted value stays untouched.
func (l *Ledger) Load(name string) error {
	l.units[name] = []money.CashUnit{}
	delete(l.broken, name)
	value, ok, err := l.params.GetDeviceParam(name, store.KeyCashUnits)
	if err != nil {
		l.broken[name] = true
		return errors.Annotatef(err, "ledger load device=%s", name)
	}
	if !ok {
		return nil
	}
	units, err := ParseUnits(value)
	if err != nil {
		l.broken[name] = true
		return errors.Annotatef(err, "ledger load device=%s value=%q", name, value)
	}
	l.units[name] = units
	return nil
}

// LoadAll loads every device, errors are folded, other devices still load.
func (l *Ledger) LoadAll(names []string) error {
	errs := make([]error, 0, len(names))
	for _, name := range names {
		if err := l.Load(name); err != nil {
			l.Log.Error(err)
			errs = append(errs, err)
		}
	}
	return helpers.FoldErrors(errs)
}

func (l *Ledger) Known(name string) bool {
	_, ok := l.units[name]
	return ok
}

func (l *Ledger) Broken(name string) bool { return l.broken[name] }

func (l *Ledger) Forget(name string) {
	delete(l.units, name)
	delete(l.broken, name)
}

// Units returns copy of device unit list.
func (l *Ledger) Units(name string) []money.CashUnit {
	return append([]money.CashUnit(nil), l.units[name]...)
}

func (l *Ledger) Unit(name string, unit int) (money.CashUnit, bool) {
	units := l.units[name]
	if unit < 0 || unit >= len(units) {
		return money.CashUnit{}, false
	}
	return units[unit], true
}

// State is deep copy of all device ledgers.
func (l *Ledger) State() map[string][]money.CashUnit {
	result := make(map[string][]money.CashUnit, len(l.units))
	for name := range l.units {
		result[name] = l.Units(name)
	}
	return result
}

// Reconcile pads with empty units of configured currency or truncates to reported length.
// Reported zero is ignored. Returns true when list changed, then it is persisted
// unless ledger is broken.
func (l *Ledger) Reconcile(name string, reported int) bool {
	units := l.units[name]
	if reported <= 0 || reported == len(units) {
		return false
	}
	if reported < len(units) {
		units = units[:reported]
	} else {
		for len(units) < reported {
			units = append(units, money.CashUnit{Currency: l.currency})
		}
	}
	l.units[name] = units
	l.Log.Infof("ledger device=%s units reconciled to %d", name, reported)
	l.save(name)
	return true
}

// Decrement takes items out of unit, clamped at zero.
// Returns unit nominal and decrement actually applied.
func (l *Ledger) Decrement(name string, unit, items int) (currency.Nominal, int, error) {
	units, ok := l.units[name]
	if !ok {
		return 0, 0, errors.NotFoundf("ledger device=%s", name)
	}
	if unit < 0 || unit >= len(units) {
		return 0, 0, errors.Annotatef(money.ErrUnitInvalid, "ledger device=%s unit=%d units=%d", name, unit, len(units))
	}
	applied := items
	if applied > units[unit].Count {
		applied = units[unit].Count
	}
	if applied < 0 {
		applied = 0
	}
	if applied != items {
		l.Log.Warningf("ledger device=%s unit=%d reported items=%d more than count=%d", name, unit, items, units[unit].Count)
	}
	units[unit].Count -= applied
	l.save(name)
	return units[unit].Nominal, applied, nil
}

func (l *Ledger) SetUnitCount(name string, unit, count int) error {
	units, ok := l.units[name]
	if !ok {
		return errors.NotFoundf("ledger device=%s", name)
	}
	if unit < 0 || unit >= len(units) {
		return errors.Annotatef(money.ErrUnitInvalid, "ledger device=%s unit=%d", name, unit)
	}
	if count < 0 {
		return errors.NotValidf("count=%d", count)
	}
	units[unit].Count = count
	l.save(name)
	return nil
}

// ReplaceAll is operator reload of device units. List length must match.
func (l *Ledger) ReplaceAll(name string, list []money.CashUnit) error {
	units, ok := l.units[name]
	if !ok {
		return errors.NotFoundf("ledger device=%s", name)
	}
	if len(list) != len(units) {
		return errors.NotValidf("ledger device=%s units=%d new list length=%d", name, len(units), len(list))
	}
	for i, u := range list {
		if u.Count < 0 {
			return errors.NotValidf("ledger device=%s unit=%d count=%d", name, i, u.Count)
		}
	}
	l.units[name] = append([]money.CashUnit(nil), list...)
	if l.broken[name] {
		delete(l.broken, name)
		l.Log.Infof("ledger device=%s replaced, persisting again", name)
	}
	l.save(name)
	return nil
}

// Save persists device units, error is returned and logged.
// Broken ledger is not written, so operator can still inspect stored value.
func (l *Ledger) Save(name string) error {
	if l.broken[name] {
		l.Log.Debugf("ledger device=%s broken, not persisted", name)
		return nil
	}
	err := l.params.SetDeviceParam(name, store.KeyCashUnits, FormatUnits(l.units[name]))
	if err != nil {
		err = errors.Annotatef(err, "ledger save device=%s", name)
		l.Log.Error(err)
	}
	return err
}

func (l *Ledger) save(name string) { _ = l.Save(name) }
