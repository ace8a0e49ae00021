// Package state wires kiosk components together for command line modes.
package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AlexTransit/kiosk/hardware"
	"github.com/AlexTransit/kiosk/hardware/device"
	config_global "github.com/AlexTransit/kiosk/internal/config"
	"github.com/AlexTransit/kiosk/internal/money"
	"github.com/AlexTransit/kiosk/internal/payment"
	"github.com/AlexTransit/kiosk/internal/store"
	"github.com/AlexTransit/kiosk/internal/store/sqlite"
	"github.com/AlexTransit/kiosk/log2"
	tele_api "github.com/AlexTransit/kiosk/tele"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
)

type Global struct {
	Alive        *alive.Alive
	BuildVersion string
	Config       *config_global.Config
	Devices      *device.Service
	Hardware     *hardware.Devices
	Log          *log2.Log
	Money        *money.MoneySystem
	Payments     *payment.Book
	Gift         *money.GiftProvider
	Store        store.Store
	Tele         tele_api.Teler
}

const ContextKey = "run/state-global"

func NewContext(log *log2.Log, teler tele_api.Teler) (context.Context, *Global) {
	if log == nil {
		panic("code error state.NewContext() log=nil")
	}
	g := &Global{
		Alive:        alive.NewAlive(),
		BuildVersion: "unknown",
		Log:          log,
		Tele:         teler,
	}
	return SetGlobal(context.Background(), g), g
}

func SetGlobal(ctx context.Context, g *Global) context.Context {
	return context.WithValue(ctx, ContextKey, g) //nolint:staticcheck
}

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

// OpenStore opens persistent store under persist.root, once.
func (g *Global) OpenStore() error {
	if g.Store != nil {
		return nil
	}
	root := g.Config.Persist.Root
	if err := os.MkdirAll(root, 0o750); err != nil {
		return errors.Annotatef(err, "persist.root=%s", root)
	}
	s, err := sqlite.Open(root)
	if err != nil {
		return errors.Annotatef(err, "persist.root=%s", root)
	}
	g.Store = s
	g.Log.Debugf("config: persist.root=%s", root)
	return nil
}

// Init brings up store, telemetry, devices and funds core.
// Required devices offline is logged and reported, not fatal.
func (g *Global) Init(ctx context.Context) error {
	g.Log.Infof("build version=%s", g.BuildVersion)
	if g.Config == nil {
		return errors.New("code error state.Init config=nil")
	}
	if g.Config.LogLevel != "" {
		g.Log.SetLevel(log2.ParseLevel(g.Config.LogLevel))
	}
	if g.BuildVersion == "unknown" {
		g.Log.Warning("build version is not set, please use script/build")
	} else if g.Config.Tele.VmId > 0 && strings.HasSuffix(g.BuildVersion, "-dirty") { // vmid<=0 is staging
		g.Log.Warning("running development build with uncommited changes, bad idea for production")
	}

	if err := g.OpenStore(); err != nil {
		return err
	}

	// Since tele is remote error reporting mechanism, it must be inited before anything else
	// Tele.Init gets g.Log clone before SetErrorFunc, so Tele.Log.Error doesn't recurse on itself
	if g.Config.Tele.StorePath == "" {
		g.Config.Tele.StorePath = filepath.Join(g.Config.Persist.Root, "tele")
	}
	if err := g.Tele.Init(ctx, g.Log.Clone(log2.LInfo, ""), *g.Config.Tele); err != nil {
		g.Tele = tele_api.Noop{}
		return errors.Annotate(err, "tele init")
	}
	g.Log.SetErrorFunc(g.Tele.Error)

	g.Devices = device.NewService(g.Log)
	var err error
	g.Hardware, err = hardware.InitDevices(g.Config, g.Devices, g.Store, g.Log)
	if err != nil {
		g.Log.Errorf("hardware init %v", err)
	}
	if err = g.Hardware.Enum(g.Devices); err != nil {
		g.Log.Errorf("hardware enum %v", err)
	}

	g.Payments = payment.NewBook()
	deps := money.Deps{
		Devices:  g.Devices,
		Params:   g.Store,
		Notes:    g.Store,
		Payments: g.Payments,
	}
	if g.Config.Gift.Enable {
		g.Gift = money.NewGiftProvider(g.Config.Money.CurrencyID, g.Log)
		deps.Providers = append(deps.Providers, g.Gift)
	}
	g.Money = money.NewMoneySystem(g.Config.MoneyConfig(), deps, g.Log)
	if err = g.Money.Init(); err != nil {
		return errors.Annotate(err, "money init")
	}
	_ = g.Money.FinishInit()
	g.Tele.Attach(g.Money)
	return nil
}

// Stop releases everything Init acquired, in reverse order. Safe on partial Init.
func (g *Global) Stop() {
	g.Alive.Stop()
	if g.Money != nil {
		g.Money.Shutdown()
	}
	if g.Hardware != nil {
		g.Hardware.Stop()
	}
	if g.Tele != nil {
		g.Log.SetErrorFunc(nil)
		g.Tele.Close()
	}
	if g.Store != nil {
		if err := g.Store.Close(); err != nil {
			g.Log.Errorf("store close %v", err)
		}
	}
	g.Alive.Wait()
}
