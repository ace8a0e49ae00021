package money

import (
	"testing"
	"time"

	"github.com/AlexTransit/kiosk/hardware/dispenser"
	"github.com/AlexTransit/kiosk/hardware/money"
	"github.com/AlexTransit/kiosk/internal/types"
	"github.com/juju/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newDispenserEnv(t *testing.T, ledgers map[string]string, units map[string]int) (*testEnv, map[string]*fakeDispenser) {
	env := newTestEnv(t)
	fakes := make(map[string]*fakeDispenser, len(units))
	for name, n := range units {
		fakes[name] = newFakeDispenser(name, n)
		env.register(t, fakes[name])
	}
	for name, value := range ledgers {
		env.setUnits(t, name, value)
	}
	return env, fakes
}

func dispensedAmounts(el *eventLog) []string {
	result := []string{}
	for _, e := range el.Kind(types.EventDispensed) {
		result = append(result, e.Amount.String())
	}
	return result
}

func TestDispenseInit(t *testing.T) {
	t.Parallel()
	env, fakes := newDispenserEnv(t,
		map[string]string{"d1": "USD:100:2", "d2": "USD:100:1;USD:50"},
		map[string]int{"d1": 2, "d2": 1})
	ms := env.init(t)

	state := ms.CashUnitsState()
	require.Equal(t, "USD:100:2;USD:0:0", FormatUnits(state["d1"]))
	// malformed ledger is empty, then padded to device units in memory only
	require.Equal(t, "USD:0:0", FormatUnits(state["d2"]))
	require.Equal(t, state["d1"], fakes["d1"].LastUnitList())
	v, _, _ := env.store.GetDeviceParam("d1", "CashUnits")
	require.Equal(t, "USD:100:2;USD:0:0", v)
	v, _, _ = env.store.GetDeviceParam("d2", "CashUnits")
	require.Equal(t, "USD:100:1;USD:50", v)
}

func TestDispenseBrokenLedgerKept(t *testing.T) {
	t.Parallel()
	const stored = "USD:100:5;USD50:3"
	env, fakes := newDispenserEnv(t,
		map[string]string{"d1": stored, "d2": "USD:100:1"},
		map[string]int{"d1": 2, "d2": 1})
	ms := env.init(t)

	v, _, _ := env.store.GetDeviceParam("d1", "CashUnits")
	require.Equal(t, stored, v)
	require.Equal(t, "USD:0:0;USD:0:0", FormatUnits(ms.CashUnitsState()["d1"]))
	require.Equal(t, "100", ms.CanDispense(decimal.NewFromInt(300)).String())

	// unsolicited report from broken device is not persisted either
	fakes["d1"].dispensed(0, 1)
	v, _, _ = env.store.GetDeviceParam("d1", "CashUnits")
	require.Equal(t, stored, v)

	units := []money.CashUnit{{Currency: "USD", Nominal: 100, Count: 5}, {Currency: "USD", Nominal: 50, Count: 3}}
	require.NoError(t, ms.SetCashUnitsState("d1", units))
	v, _, _ = env.store.GetDeviceParam("d1", "CashUnits")
	require.Equal(t, "USD:100:5;USD:50:3", v)
	require.Equal(t, "300", ms.CanDispense(decimal.NewFromInt(300)).String())
}

func TestDispenseLargestFirst(t *testing.T) {
	t.Parallel()
	env, fakes := newDispenserEnv(t,
		map[string]string{"d1": "USD:100:3;USD:50:10"},
		map[string]int{"d1": 2})
	ms := env.init(t)
	d1 := fakes["d1"]

	require.Equal(t, "350", ms.CanDispense(decimal.NewFromInt(350)).String())
	require.NoError(t, ms.Dispense(decimal.NewFromInt(350)))
	require.Equal(t, []dispenseCall{{0, 3}}, d1.Calls())
	require.False(t, ms.CanShutdown())
	requireErrorIs(t, ms.Dispense(decimal.NewFromInt(10)), ErrDispenseBusy)

	d1.dispensed(0, 3)
	require.Equal(t, []dispenseCall{{0, 3}, {1, 1}}, d1.Calls())
	require.Len(t, env.events.Kind(types.EventActivity), 1)
	d1.dispensed(1, 1)

	require.Equal(t, []string{"350"}, dispensedAmounts(env.events))
	require.True(t, ms.CanShutdown())
	require.Equal(t, "USD:100:0;USD:50:9", FormatUnits(ms.CashUnitsState()["d1"]))
	// emptied unit pushed down to device
	require.Equal(t, 0, d1.LastUnitList()[0].Count)

	notes, err := env.store.ChangeNotes(env.book.ChangeSessionRef())
	require.NoError(t, err)
	require.Len(t, notes, 4)
}

func TestDispenseTwoDevices(t *testing.T) {
	t.Parallel()
	env, fakes := newDispenserEnv(t,
		map[string]string{"d1": "USD:100:2", "d2": "USD:100:1"},
		map[string]int{"d1": 1, "d2": 1})
	ms := env.init(t)

	require.NoError(t, ms.Dispense(decimal.NewFromInt(300)))
	require.Equal(t, []dispenseCall{{0, 2}}, fakes["d1"].Calls())
	fakes["d1"].dispensed(0, 2)
	require.Equal(t, []dispenseCall{{0, 1}}, fakes["d2"].Calls())
	fakes["d2"].dispensed(0, 1)

	require.Equal(t, []string{"300"}, dispensedAmounts(env.events))
	state := ms.CashUnitsState()
	require.Equal(t, 0, state["d1"][0].Count)
	require.Equal(t, 0, state["d2"][0].Count)
}

func TestDispenseNothing(t *testing.T) {
	t.Parallel()
	env, fakes := newDispenserEnv(t,
		map[string]string{"d1": "USD:50:10"},
		map[string]int{"d1": 1})
	ms := env.init(t)

	require.True(t, ms.CanDispense(decimal.NewFromInt(10)).IsZero())
	require.NoError(t, ms.Dispense(decimal.NewFromInt(10)))
	require.Len(t, fakes["d1"].Calls(), 0)
	require.Equal(t, []string{"0"}, dispensedAmounts(env.events))
	require.True(t, ms.CanShutdown())

	require.True(t, errors.IsNotValid(ms.Dispense(decimal.Zero)))
}

func TestDispensePartial(t *testing.T) {
	t.Parallel()
	env, fakes := newDispenserEnv(t,
		map[string]string{"d1": "USD:100:5"},
		map[string]int{"d1": 1})
	ms := env.init(t)

	require.NoError(t, ms.Dispense(decimal.NewFromInt(300)))
	// device gave less than asked and stopped
	fakes["d1"].dispensed(0, 1)
	require.Len(t, fakes["d1"].Calls(), 2)
	fakes["d1"].dispensed(0, 0)
	require.Equal(t, []string{"100"}, dispensedAmounts(env.events))
	require.Equal(t, 4, ms.CashUnitsState()["d1"][0].Count)
}

func TestDispenseReplanWithoutEmptyDevice(t *testing.T) {
	t.Parallel()
	env, fakes := newDispenserEnv(t,
		map[string]string{"d1": "USD:100:5", "d2": "USD:100:5"},
		map[string]int{"d1": 1, "d2": 1})
	ms := env.init(t)

	require.NoError(t, ms.Dispense(decimal.NewFromInt(300)))
	require.Len(t, fakes["d1"].Calls(), 1)
	// d1 gave nothing, rest of request goes to d2
	fakes["d1"].dispensed(0, 0)
	require.Len(t, fakes["d1"].Calls(), 1)
	require.Len(t, fakes["d2"].Calls(), 1)
	require.Len(t, dispensedAmounts(env.events), 0)
	fakes["d2"].dispensed(0, 3)
	require.Equal(t, []string{"300"}, dispensedAmounts(env.events))
	require.Equal(t, 2, ms.CashUnitsState()["d2"][0].Count)

	// exclusion lasts for one request only
	require.NoError(t, ms.Dispense(decimal.NewFromInt(100)))
	require.Len(t, fakes["d1"].Calls(), 2)
}

func TestDispenseFaultyDevice(t *testing.T) {
	t.Parallel()
	env, fakes := newDispenserEnv(t,
		map[string]string{"d1": "USD:100:1", "d2": "USD:100:5"},
		map[string]int{"d1": 1, "d2": 1})
	ms := env.init(t)

	require.Equal(t, "600", ms.CanDispense(decimal.NewFromInt(600)).String())
	fakes["d2"].status(money.RawJam)
	require.True(t, ms.dispensers.Faulty("d2"))
	require.Equal(t, "100", ms.CanDispense(decimal.NewFromInt(600)).String())
	errs := env.events.Kind(types.EventError)
	require.Len(t, errs, 1)
	require.Equal(t, money.ErrJam.Error(), errs[0].Message)

	require.NoError(t, ms.Dispense(decimal.NewFromInt(600)))
	fakes["d1"].dispensed(0, 1)
	require.Len(t, fakes["d2"].Calls(), 0)
	require.Equal(t, []string{"100"}, dispensedAmounts(env.events))

	fakes["d2"].status(money.RawOK)
	require.False(t, ms.dispensers.Faulty("d2"))
	require.Equal(t, "500", ms.CanDispense(decimal.NewFromInt(600)).String())
}

func TestDispenseCommandError(t *testing.T) {
	t.Parallel()
	env, fakes := newDispenserEnv(t,
		map[string]string{"d1": "USD:100:5"},
		map[string]int{"d1": 1})
	ms := env.init(t)
	fakes["d1"].dispenseErr = money.ErrJam

	require.NoError(t, ms.Dispense(decimal.NewFromInt(200)))
	require.Len(t, env.events.Kind(types.EventError), 1)
	require.Equal(t, []string{"0"}, dispensedAmounts(env.events))
	require.True(t, ms.CanShutdown())
}

func TestDispenseUnknownUnit(t *testing.T) {
	t.Parallel()
	env, fakes := newDispenserEnv(t,
		map[string]string{"d1": "USD:100:5"},
		map[string]int{"d1": 1})
	ms := env.init(t)

	require.NoError(t, ms.Dispense(decimal.NewFromInt(200)))
	fakes["d1"].dispensed(4, 2)
	require.Equal(t, []string{"0"}, dispensedAmounts(env.events))
	require.Equal(t, 5, ms.CashUnitsState()["d1"][0].Count)
}

func TestDispenseTimeout(t *testing.T) {
	t.Parallel()
	env, fakes := newDispenserEnv(t,
		map[string]string{"d1": "USD:100:5"},
		map[string]int{"d1": 1})
	env.config.DispenseTimeout = 20 * time.Millisecond
	ms := env.init(t)

	require.NoError(t, ms.Dispense(decimal.NewFromInt(300)))
	fakes["d1"].dispensed(0, 1)
	require.Eventually(t, func() bool { return len(env.events.Kind(types.EventDispensed)) != 0 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"100"}, dispensedAmounts(env.events))
	errs := env.events.Kind(types.EventError)
	require.Len(t, errs, 1)
	require.Equal(t, "dispense timeout", errs[0].Message)
	require.True(t, ms.CanShutdown())

	// late answer is accounted in ledger, reported on its own
	fakes["d1"].dispensed(0, 2)
	require.Equal(t, []string{"100", "200"}, dispensedAmounts(env.events))
	require.Equal(t, 2, ms.CashUnitsState()["d1"][0].Count)
}

func TestDispenserSignals(t *testing.T) {
	t.Parallel()
	env, fakes := newDispenserEnv(t,
		map[string]string{"d1": "USD:100:5;USD:50:5"},
		map[string]int{"d1": 2})
	ms := env.init(t)
	d1 := fakes["d1"]

	d1.rejectedSig.Emit(dispenser.Dispensed{Unit: 0, Items: 2})
	d1.emptySig.Emit(1)
	require.Equal(t, "USD:100:3;USD:50:0", FormatUnits(ms.CashUnitsState()["d1"]))
	require.Equal(t, 0, d1.LastUnitList()[1].Count)
	require.Len(t, env.events.Kind(types.EventDispensed), 0)

	d1.definedSig.Emit(3)
	require.Equal(t, "USD:100:3;USD:50:0;USD:0:0", FormatUnits(ms.CashUnitsState()["d1"]))
	require.Len(t, d1.LastUnitList(), 3)
	d1.definedSig.Emit(0)
	require.Len(t, ms.CashUnitsState()["d1"], 3)
}

func TestSetCashUnitsState(t *testing.T) {
	t.Parallel()
	env, fakes := newDispenserEnv(t,
		map[string]string{"d1": "USD:100:0;USD:50:0"},
		map[string]int{"d1": 2})
	ms := env.init(t)

	err := ms.SetCashUnitsState("d1", []money.CashUnit{{Currency: "USD", Nominal: 100, Count: 10}})
	require.True(t, errors.IsNotValid(err))
	err = ms.SetCashUnitsState("d9", nil)
	require.True(t, errors.IsNotFound(err))

	units := []money.CashUnit{{Currency: "USD", Nominal: 100, Count: 10}, {Currency: "USD", Nominal: 20, Count: 7}}
	require.NoError(t, ms.SetCashUnitsState("d1", units))
	require.Equal(t, units, fakes["d1"].LastUnitList())
	v, _, _ := env.store.GetDeviceParam("d1", "CashUnits")
	require.Equal(t, "USD:100:10;USD:20:7", v)
	require.Equal(t, "140", ms.Plan(decimal.NewFromInt(145)).Total().String())
}
