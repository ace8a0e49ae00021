package config_global

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AlexTransit/kiosk/currency"
	"github.com/AlexTransit/kiosk/hardware/device"
	"github.com/AlexTransit/kiosk/log2"
	"github.com/juju/errors"
	"github.com/stretchr/testify/require"
)

func writeFile(t testing.TB, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadConfigIncludeOverride(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	main := writeFile(t, dir, "main.hcl", `
money {
  currency = "RUB"
  currency_id = 643
  bill_nominals = [50, 100, 500]
  command_timeout_sec = 3
  charge_access = {
    mobile = ["gift"]
  }
}
hardware {
  device "bill1" {
    kind = "bill_acceptor"
    required = true
  }
  device "hopper" {
    kind = "dispenser"
    units = 2
    nominals = [10, 50]
  }
}
tele {
  enable = true
  vm_id = 7
}
include "local.hcl" {}
include "missing.hcl" {
  optional = true
}
`)
	writeFile(t, dir, "local.hcl", `
money {
  dispense_timeout_sec = 30
}
hardware {
  device "hopper" {
    counts = [5, 2]
  }
  device "coin1" {
    kind = "coin_acceptor"
    disabled = true
  }
}
persist {
  root = "/tmp/kiosk-test"
}
include "main.hcl" {}
`)

	c, err := ReadConfig(log2.NewTest(t, log2.LDebug), main)
	require.NoError(t, err)

	require.Equal(t, "RUB", c.Money.Currency)
	require.Equal(t, []string{"bill1", "coin1", "hopper"}, c.DeviceNames())
	hopper := c.Hardware.Devices["hopper"]
	require.Equal(t, "dispenser", hopper.Kind)
	require.Equal(t, []int{10, 50}, hopper.Nominals)
	require.Equal(t, []int{5, 2}, hopper.Counts)
	require.True(t, c.Hardware.Devices["coin1"].Disabled)
	require.Equal(t, "/tmp/kiosk-test", c.Persist.Root)
	require.True(t, c.Tele.Enabled)
	require.False(t, c.Gift.Enable)

	mc := c.MoneyConfig()
	require.Equal(t, 643, mc.CurrencyID)
	require.Equal(t, 3*time.Second, mc.CommandTimeout)
	require.Equal(t, 30*time.Second, mc.DispenseTimeout)
	require.Equal(t, []currency.Nominal{50, 100, 500}, mc.BillNominals)
	require.Nil(t, mc.CoinNominals)
	require.Equal(t, []string{"gift"}, mc.ChargeAccess["mobile"])
}

func TestReadConfigErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	log := log2.NewTest(t, log2.LDebug)

	_, err := ReadConfig(log, filepath.Join(dir, "absent.hcl"))
	require.Error(t, err)

	bad := writeFile(t, dir, "bad.hcl", `money { currency = `)
	_, err = ReadConfig(log, bad)
	require.Error(t, err)

	missingInclude := writeFile(t, dir, "inc.hcl", `include "nope.hcl" {}`)
	_, err = ReadConfig(log, missingInclude)
	require.Error(t, err)

	wrongType := writeFile(t, dir, "type.hcl", `money { currency_id = "abc" }`)
	_, err = ReadConfig(log, wrongType)
	require.Error(t, err)
}

func TestParseDefaults(t *testing.T) {
	t.Parallel()

	c, err := Parse("empty.hcl", []byte(``))
	require.NoError(t, err)
	require.Equal(t, DefaultPersistRoot, c.Persist.Root)
	require.Empty(t, c.DeviceNames())
	mc := c.MoneyConfig()
	require.Equal(t, "", mc.Currency)
	require.Equal(t, 5*time.Second, mc.CommandTimeout)
	require.Equal(t, time.Minute, mc.DispenseTimeout)
}

func TestDeviceConfig(t *testing.T) {
	t.Parallel()

	c, err := Parse("dev.hcl", []byte(`
hardware {
  device "cash" {
    kind = "dispenser"
    units = 1
    nominals = [100, 500]
    counts = [3]
  }
  device "broken" {
    kind = "printer"
  }
  device "odd" {
    kind = "dispenser"
    counts = [1, 2]
  }
}
`))
	require.NoError(t, err)

	dc, err := c.Hardware.Devices["cash"].Device("EUR")
	require.NoError(t, err)
	require.Equal(t, device.KindDispenser, dc.Kind)
	require.Equal(t, 2, dc.Units)
	require.Equal(t, "EUR", dc.Currency)

	_, err = c.Hardware.Devices["broken"].Device("EUR")
	require.True(t, errors.Is(err, errors.NotValid), err)

	_, err = c.Hardware.Devices["odd"].Device("EUR")
	require.True(t, errors.Is(err, errors.NotValid), err)
}
