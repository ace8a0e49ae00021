package acceptor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/AlexTransit/kiosk/hardware/device"
	"github.com/AlexTransit/kiosk/hardware/money"
	"github.com/AlexTransit/kiosk/log2"
	"github.com/juju/errors"
	"github.com/stretchr/testify/require"
	"github.com/temoto/atomic_clock"
)

type recorder struct {
	sync.Mutex
	escrow  []money.Par
	stacked [][]money.Par
	status  []money.Status
}

func (r *recorder) attach(v *Virtual) {
	v.OnEscrow(func(p money.Par) { r.Lock(); r.escrow = append(r.escrow, p); r.Unlock() })
	v.OnStacked(func(ps []money.Par) { r.Lock(); r.stacked = append(r.stacked, ps); r.Unlock() })
	v.OnStatus(func(e money.StatusEvent) { r.Lock(); r.status = append(r.status, e.Status); r.Unlock() })
}

func (r *recorder) counts() (int, int, int) {
	r.Lock()
	defer r.Unlock()
	return len(r.escrow), len(r.stacked), len(r.status)
}

func newTestVirtual(t *testing.T, cfg VirtualConfig) (*Virtual, *recorder) {
	v := NewVirtual(cfg, log2.NewTest(t, log2.LDebug))
	r := &recorder{}
	r.attach(v)
	v.Run()
	t.Cleanup(v.Stop)
	return v, r
}

func TestVirtualEscrowStack(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	v, r := newTestVirtual(t, VirtualConfig{Name: "bill", CurrencyID: 840, NotesPerEscrow: 2})
	require.True(t, v.Ready())
	require.Equal(t, money.ReceiverBill, v.Receiver())

	err := v.Insert(ctx, 100)
	require.True(t, errors.Is(err, money.ErrDisabled), "insert into disabled device err=%v", err)

	require.NoError(t, v.SetEnable(ctx, true))
	require.NoError(t, v.Insert(ctx, 100))
	require.Error(t, v.Insert(ctx, 50), "escrow busy")
	require.NoError(t, v.Stack(ctx))
	require.Error(t, v.Stack(ctx))

	require.Eventually(t, func() bool {
		e, s, _ := r.counts()
		return e == 1 && s == 1
	}, time.Second, 5*time.Millisecond)
	r.Lock()
	require.Len(t, r.stacked[0], 2)
	require.Equal(t, 840, r.stacked[0][0].CurrencyID)
	require.Equal(t, money.StatusEnabled, r.status[0])
	r.Unlock()
	require.Less(t, int64(atomic_clock.Since(v.LastOk)), int64(time.Minute))
}

func TestVirtualRejectAndParList(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	v, r := newTestVirtual(t, VirtualConfig{Name: "coin", Kind: device.KindCoinAcceptor})
	require.NoError(t, v.SetParList(ctx, money.ParList{{Nominal: 10, Receiver: money.ReceiverCoin}}))
	require.NoError(t, v.SetEnable(ctx, true))

	err := v.Insert(ctx, 5)
	require.True(t, errors.Is(err, money.ErrBillReject), err.Error())
	require.NoError(t, v.Insert(ctx, 10))
	require.NoError(t, v.Reject(ctx))
	require.NoError(t, v.SetEnable(ctx, false))

	require.Eventually(t, func() bool {
		_, _, st := r.counts()
		return st == 4
	}, time.Second, 5*time.Millisecond)
	r.Lock()
	require.Equal(t, []money.Status{money.StatusEnabled, money.StatusRejected, money.StatusRejected, money.StatusDisabled}, r.status)
	r.Unlock()
}

func TestVirtualFaultAndTimeout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	v, _ := newTestVirtual(t, VirtualConfig{Name: "bill"})
	require.NoError(t, v.SetStatus(ctx, money.RawJam))
	require.False(t, v.Ready())
	require.Error(t, v.SetEnable(ctx, true))
	require.NoError(t, v.SetStatus(ctx, money.RawOK))
	require.True(t, v.Ready())

	stopped := NewVirtual(VirtualConfig{Name: "never"}, log2.NewTest(t, log2.LDebug))
	tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := stopped.SetEnable(tctx, true)
	require.True(t, errors.Is(err, context.DeadlineExceeded), err.Error())
}

func TestStub(t *testing.T) {
	t.Parallel()

	s := Stub{DeviceName: "bill"}
	require.False(t, s.Ready())
	require.True(t, errors.IsNotSupported(s.SetEnable(context.Background(), true)))
	s.OnEscrow(nil).Cancel()
}
