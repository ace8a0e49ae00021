package config_global

import (
	"sort"
	"time"

	"github.com/AlexTransit/kiosk/currency"
	"github.com/AlexTransit/kiosk/hardware/device"
	"github.com/AlexTransit/kiosk/helpers"
	"github.com/AlexTransit/kiosk/internal/money"
	tele_config "github.com/AlexTransit/kiosk/tele/config"
	"github.com/juju/errors"
)

// Blocks are pointers so that later files override only what they mention.
type Config struct {
	Include  []IncludeConfig     `hcl:"include,block"`
	LogLevel string              `hcl:"log_level,optional"`
	Money    *MoneyConfig        `hcl:"money,block"`
	Hardware *HardwareConfig     `hcl:"hardware,block"`
	Persist  *PersistConfig      `hcl:"persist,block"`
	Tele     *tele_config.Config `hcl:"tele,block"`
	Gift     *GiftConfig         `hcl:"gift,block"`
}

type IncludeConfig struct {
	Path     string `hcl:"path,label"`
	Optional bool   `hcl:"optional,optional"`
}

type MoneyConfig struct {
	Currency              string              `hcl:"currency,optional"`
	CurrencyID            int                 `hcl:"currency_id,optional"`
	DisableAmountOverflow bool                `hcl:"disable_amount_overflow,optional"`
	CommandTimeoutSec     int                 `hcl:"command_timeout_sec,optional"`
	DispenseTimeoutSec    int                 `hcl:"dispense_timeout_sec,optional"`
	BillNominals          []int               `hcl:"bill_nominals,optional"`
	CoinNominals          []int               `hcl:"coin_nominals,optional"`
	ChargeAccess          map[string][]string `hcl:"charge_access,optional"`
}

type HardwareConfig struct {
	Devices     map[string]DeviceConfig
	XXX_Devices []DeviceConfig `hcl:"device,block"`
	LogDebug    bool           `hcl:"log_debug,optional"`
}

type DeviceConfig struct {
	Name     string `hcl:"name,label"`
	Kind     string `hcl:"kind,optional"`
	Required bool   `hcl:"required,optional"`
	Disabled bool   `hcl:"disabled,optional"`
	Currency string `hcl:"currency,optional"`
	Units    int    `hcl:"units,optional"`
	// initial cassette load, used only when store has no cash units yet
	Nominals []int `hcl:"nominals,optional"`
	Counts   []int `hcl:"counts,optional"`

	// virtual driver tuning
	NotesPerEscrow int  `hcl:"notes_per_escrow,optional"`
	JammedItem     int  `hcl:"jammed_item,optional"`
	NearEndCount   int  `hcl:"near_end_count,optional"`
	ItemDelayMs    int  `hcl:"item_delay_ms,optional"`
	RejectOne      bool `hcl:"reject_one,optional"`
}

type PersistConfig struct {
	Root string `hcl:"root,optional"`
}

type GiftConfig struct {
	Enable bool `hcl:"enable,optional"`
}

const DefaultPersistRoot = "./kiosk-db"

// fill replaces absent blocks with zero values, so readers never check for nil.
func (c *Config) fill() {
	if c.Money == nil {
		c.Money = &MoneyConfig{}
	}
	if c.Hardware == nil {
		c.Hardware = &HardwareConfig{}
	}
	if c.Hardware.Devices == nil {
		c.Hardware.Devices = make(map[string]DeviceConfig)
	}
	if c.Persist == nil {
		c.Persist = &PersistConfig{}
	}
	if c.Persist.Root == "" {
		c.Persist.Root = DefaultPersistRoot
	}
	if c.Tele == nil {
		c.Tele = &tele_config.Config{}
	}
	if c.Gift == nil {
		c.Gift = &GiftConfig{}
	}
}

// mergeDevices moves devices of last decoded body into the map, fields set later win.
func (h *HardwareConfig) mergeDevices() {
	if h.Devices == nil {
		h.Devices = make(map[string]DeviceConfig)
	}
	for _, v := range h.XXX_Devices {
		d := h.Devices[v.Name]
		helpers.OverrideStructure(&d, &v)
		h.Devices[v.Name] = d
	}
	h.XXX_Devices = nil
}

func (c *Config) MoneyConfig() money.Config {
	m := c.Money
	return money.Config{
		Currency:              m.Currency,
		CurrencyID:            m.CurrencyID,
		DisableAmountOverflow: m.DisableAmountOverflow,
		CommandTimeout:        helpers.IntSecondDefault(m.CommandTimeoutSec, money.DefaultCommandTimeout),
		DispenseTimeout:       helpers.IntSecondDefault(m.DispenseTimeoutSec, money.DefaultDispenseTimeout),
		BillNominals:          nominals(m.BillNominals),
		CoinNominals:          nominals(m.CoinNominals),
		ChargeAccess:          m.ChargeAccess,
	}
}

func nominals(ns []int) []currency.Nominal {
	if len(ns) == 0 {
		return nil
	}
	result := make([]currency.Nominal, len(ns))
	for i, n := range ns {
		result[i] = currency.Nominal(n)
	}
	return result
}

// DeviceNames sorted, disabled included.
func (c *Config) DeviceNames() []string {
	names := make([]string, 0, len(c.Hardware.Devices))
	for name := range c.Hardware.Devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d DeviceConfig) ItemDelay() time.Duration {
	return time.Duration(d.ItemDelayMs) * time.Millisecond
}

// Device converts to registry view. Currency falls back to money.currency.
func (d DeviceConfig) Device(defaultCurrency string) (device.Config, error) {
	kind, err := device.ParseKind(d.Kind)
	if err != nil {
		return device.Config{}, errors.Annotatef(err, "hardware.device=%s", d.Name)
	}
	if kind == device.KindDispenser && len(d.Counts) > len(d.Nominals) {
		return device.Config{}, errors.NotValidf("hardware.device=%s counts without nominals", d.Name)
	}
	units := d.Units
	if units < len(d.Nominals) {
		units = len(d.Nominals)
	}
	return device.Config{
		Name:     d.Name,
		Kind:     kind,
		Required: d.Required,
		Disabled: d.Disabled,
		Currency: helpers.ConfigDefaultStr(d.Currency, defaultCurrency),
		Units:    units,
		Nominals: d.Nominals,
		Counts:   d.Counts,
	}, nil
}
