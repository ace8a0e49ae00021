// Operator console: drives funds core by hand over virtual devices.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/AlexTransit/kiosk/cmd/kiosk/subcmd"
	"github.com/AlexTransit/kiosk/currency"
	"github.com/AlexTransit/kiosk/hardware/device"
	"github.com/AlexTransit/kiosk/helpers/cli"
	money_core "github.com/AlexTransit/kiosk/internal/money"
	"github.com/AlexTransit/kiosk/internal/state"
	"github.com/AlexTransit/kiosk/internal/types"
	"github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/shopspring/decimal"
)

const modName = "console"

var Mod = subcmd.Mod{Name: modName, Main: Main}

const commandTimeout = 5 * time.Second

var commands = []prompt.Suggest{
	{Text: "help", Description: "list commands"},
	{Text: "devices", Description: "registered devices"},
	{Text: "state", Description: "acceptor identity"},
	{Text: "params", Description: "funds core parameters"},
	{Text: "reset", Description: "reset <param...>"},
	{Text: "methods", Description: "payment methods of active payment"},
	{Text: "pay", Description: "pay <id> <max> [method] [min]"},
	{Text: "stop", Description: "stop <id> disable acceptance"},
	{Text: "session", Description: "acceptance session"},
	{Text: "insert", Description: "insert <acceptor> <nominal>"},
	{Text: "status", Description: "status <device> <raw code>"},
	{Text: "gift", Description: "gift <nominal>"},
	{Text: "plan", Description: "plan <amount>"},
	{Text: "dispense", Description: "dispense <amount>"},
	{Text: "units", Description: "dispenser cash units"},
	{Text: "setunits", Description: "setunits <dispenser> <cur:nominal:count;...>"},
}

func Main(ctx context.Context, args ...[]string) error {
	g := state.GetGlobal(ctx)
	if err := g.Init(ctx); err != nil {
		return errors.Annotate(err, "console init")
	}
	defer g.Stop()

	c := New(ctx, g, os.Stdout)
	defer c.Close()
	cli.MainLoop(modName, c.executor, cli.Suggest(commands))
	return nil
}

type Console struct {
	ctx context.Context
	g   *state.Global
	out io.Writer
	sub device.Subscription
}

// events are printed from device goroutines
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (sw *syncWriter) Write(b []byte) (int, error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.w.Write(b)
}

// New attaches event printer to funds core. Accepted amount is written back
// to payment book, standing in for payment processing.
func New(ctx context.Context, g *state.Global, w io.Writer) *Console {
	out := &syncWriter{w: w}
	c := &Console{ctx: ctx, g: g, out: out}
	c.sub = g.Money.Subscribe(func(e types.Event) {
		if e.Kind == types.EventAmountUpdated {
			if err := g.Payments.SetAmountAll(e.PaymentID, e.Amount); err != nil {
				g.Log.Debugf("console amount payment=%d err=%v", e.PaymentID, err)
			}
		}
		fmt.Fprintf(out, "event %s\n", e.String())
	})
	return c
}

func (c *Console) Close() { c.sub.Cancel() }

func (c *Console) executor(line string) {
	if err := c.Exec(line); err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
	}
}

func (c *Console) Exec(line string) error {
	words := strings.Fields(line)
	if len(words) == 0 {
		return nil
	}
	g := c.g
	cmd, args := words[0], words[1:]
	switch cmd {
	case "help":
		for _, s := range commands {
			fmt.Fprintf(c.out, "%-9s %s\n", s.Text, s.Description)
		}

	case "devices":
		for _, name := range g.Devices.Names() {
			dc, err := g.Devices.Config(name)
			if err != nil {
				return err
			}
			ready := false
			if a, ok := g.Hardware.Acceptors[name]; ok {
				ready = a.Ready()
			} else if d, ok := g.Hardware.Dispensers[name]; ok {
				ready = d.Ready()
			}
			fmt.Fprintf(c.out, "%s kind=%s required=%t ready=%t refs=%d\n", name, dc.Kind, dc.Required, ready, g.Devices.Refs(name))
		}

	case "state":
		fmt.Fprintln(c.out, g.Money.State())

	case "params":
		params := g.Money.Parameters()
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(c.out, "%s=%s\n", k, params[k])
		}

	case "reset":
		if len(args) == 0 {
			return errors.NotValidf("reset needs parameter names")
		}
		return g.Money.ResetParameters(args)

	case "methods":
		fmt.Fprintln(c.out, strings.Join(g.Money.PaymentMethods(), " "))

	case "pay":
		if len(args) < 2 {
			return errors.NotValidf("pay <id> <max> [method] [min]")
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return errors.NotValidf("payment id=%q", args[0])
		}
		maxAmount, err := currency.ParseAmount(args[1])
		if err != nil {
			return err
		}
		method := ""
		if len(args) >= 3 {
			method = args[2]
		}
		minAmount := decimal.Zero
		if len(args) >= 4 {
			if minAmount, err = currency.ParseAmount(args[3]); err != nil {
				return err
			}
		}
		if err = g.Payments.Create(id, 0, modName, minAmount, maxAmount); err != nil && !errors.Is(err, errors.AlreadyExists) {
			return err
		}
		g.Payments.SetActive(id)
		ok, err := g.Money.Enable(id, method, maxAmount)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "enabled=%t\n", ok)

	case "stop":
		if len(args) != 1 {
			return errors.NotValidf("stop <id>")
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return errors.NotValidf("payment id=%q", args[0])
		}
		fmt.Fprintf(c.out, "was_active=%t\n", g.Money.Disable(id))

	case "session":
		s, ok := g.Money.Session()
		if !ok {
			fmt.Fprintln(c.out, "no session")
			return nil
		}
		fmt.Fprintf(c.out, "payment=%d current=%s max=%s validators=%v providers=%v\n",
			s.PaymentID, currency.Format(s.Current), currency.Format(s.Max), s.Validators, s.Providers)

	case "insert":
		if len(args) != 2 {
			return errors.NotValidf("insert <acceptor> <nominal>")
		}
		a, ok := g.Hardware.Acceptors[args[0]]
		if !ok {
			return errors.NotFoundf("acceptor=%s", args[0])
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return errors.NotValidf("nominal=%q", args[1])
		}
		ctx, cancel := context.WithTimeout(c.ctx, commandTimeout)
		defer cancel()
		return a.Insert(ctx, currency.Nominal(n))

	case "status":
		if len(args) != 2 {
			return errors.NotValidf("status <device> <raw code>")
		}
		raw, err := strconv.ParseInt(args[1], 0, 32)
		if err != nil {
			return errors.NotValidf("raw=%q", args[1])
		}
		ctx, cancel := context.WithTimeout(c.ctx, commandTimeout)
		defer cancel()
		if a, ok := g.Hardware.Acceptors[args[0]]; ok {
			return a.SetStatus(ctx, int(raw))
		}
		if d, ok := g.Hardware.Dispensers[args[0]]; ok {
			return d.SetStatus(ctx, int(raw))
		}
		return errors.NotFoundf("device=%s", args[0])

	case "gift":
		if g.Gift == nil {
			return errors.NotSupportedf("gift is disabled in config")
		}
		if len(args) != 1 {
			return errors.NotValidf("gift <nominal>")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return errors.NotValidf("nominal=%q", args[0])
		}
		return g.Gift.Credit(currency.Nominal(n))

	case "plan", "dispense":
		if len(args) != 1 {
			return errors.NotValidf("%s <amount>", cmd)
		}
		amount, err := currency.ParseAmount(args[0])
		if err != nil {
			return err
		}
		if cmd == "plan" {
			fmt.Fprintf(c.out, "can=%s plan=%s\n", currency.Format(g.Money.CanDispense(amount)), g.Money.Plan(amount).String())
			return nil
		}
		g.Payments.NewChangeSession()
		return g.Money.Dispense(amount)

	case "units":
		units := g.Money.CashUnitsState()
		names := make([]string, 0, len(units))
		for name := range units {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(c.out, "%s %s\n", name, money_core.FormatUnits(units[name]))
		}

	case "setunits":
		if len(args) != 2 {
			return errors.NotValidf("setunits <dispenser> <cur:nominal:count;...>")
		}
		units, err := money_core.ParseUnits(args[1])
		if err != nil {
			return err
		}
		return g.Money.SetCashUnitsState(args[0], units)

	default:
		return errors.NotFoundf("command=%s, try help", cmd)
	}
	return nil
}
