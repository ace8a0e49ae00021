package console

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	config_global "github.com/AlexTransit/kiosk/internal/config"
	"github.com/AlexTransit/kiosk/internal/state"
	"github.com/AlexTransit/kiosk/log2"
	tele_api "github.com/AlexTransit/kiosk/tele"
	"github.com/juju/errors"
	"github.com/stretchr/testify/require"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (lb *lockedBuffer) Write(b []byte) (int, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.buf.Write(b)
}

func (lb *lockedBuffer) String() string {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.buf.String()
}

func (lb *lockedBuffer) Reset() {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.buf.Reset()
}

func newTestConsole(t *testing.T) (*Console, *lockedBuffer) {
	t.Helper()
	src := fmt.Sprintf(`
persist {
  root = %q
}
money {
  currency = "USD"
  currency_id = 840
}
hardware {
  device "bill1" {
    kind = "bill_acceptor"
    required = true
  }
  device "cash" {
    kind = "dispenser"
    nominals = [10, 20]
    counts = [5, 5]
  }
}
`, t.TempDir())
	c, err := config_global.Parse("console.hcl", []byte(src))
	require.NoError(t, err)
	ctx, g := state.NewContext(log2.NewTest(t, log2.LDebug), tele_api.Noop{})
	g.Config = c
	require.NoError(t, g.Init(ctx))
	t.Cleanup(g.Stop)

	out := &lockedBuffer{}
	con := New(ctx, g, out)
	t.Cleanup(con.Close)
	return con, out
}

func waitOutput(t *testing.T, out *lockedBuffer, substr string) {
	t.Helper()
	require.Eventually(t, func() bool { return strings.Contains(out.String(), substr) },
		5*time.Second, 10*time.Millisecond, "output=%s", out)
}

func TestConsolePayAndDispense(t *testing.T) {
	t.Parallel()

	con, out := newTestConsole(t)

	require.NoError(t, con.Exec("help"))
	require.Contains(t, out.String(), "setunits")
	require.NoError(t, con.Exec("devices"))
	require.Contains(t, out.String(), "bill1 kind=bill_acceptor required=true ready=true")

	out.Reset()
	require.NoError(t, con.Exec("pay 1 150"))
	require.Contains(t, out.String(), "enabled=true")
	require.NoError(t, con.Exec("insert bill1 100"))
	waitOutput(t, out, "Event(AmountUpdated payment=1 amount=100.00 delta=100.00)")

	out.Reset()
	require.NoError(t, con.Exec("session"))
	require.Contains(t, out.String(), "payment=1 current=100.00 max=150.00 validators=[bill1]")
	require.NoError(t, con.Exec("stop 1"))
	require.Contains(t, out.String(), "was_active=true")
	waitOutput(t, out, "Event(Disabled payment=1)")

	out.Reset()
	require.NoError(t, con.Exec("plan 50"))
	require.Contains(t, out.String(), "can=50.00")
	require.NoError(t, con.Exec("dispense 50"))
	waitOutput(t, out, "Event(Dispensed amount=50.00)")

	out.Reset()
	require.NoError(t, con.Exec("units"))
	require.Contains(t, out.String(), "cash USD:10:4;USD:20:3")
}

func TestConsoleErrors(t *testing.T) {
	t.Parallel()

	con, out := newTestConsole(t)

	require.NoError(t, con.Exec("   "))
	require.True(t, errors.Is(con.Exec("reboot"), errors.NotFound))
	require.True(t, errors.Is(con.Exec("gift 5"), errors.NotSupported))
	require.True(t, errors.Is(con.Exec("pay x 10"), errors.NotValid))
	require.True(t, errors.Is(con.Exec("insert coin9 10"), errors.NotFound))
	require.True(t, errors.Is(con.Exec("setunits cash USD:10"), errors.NotValid))

	require.NoError(t, con.Exec("setunits cash USD:10:1;USD:20:0"))
	require.NoError(t, con.Exec("units"))
	require.Contains(t, out.String(), "cash USD:10:1;USD:20:0")

	con.executor("reset Nope")
	require.Contains(t, out.String(), "error: ")
	require.NoError(t, con.Exec("reset RejectCount"))
	require.NoError(t, con.Exec("params"))
	require.Contains(t, out.String(), "RejectCount=0")
}
