package tele

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/AlexTransit/kiosk/hardware/device"
	"github.com/AlexTransit/kiosk/internal/types"
	"github.com/AlexTransit/kiosk/log2"
	tele_api "github.com/AlexTransit/kiosk/tele"
	tele_config "github.com/AlexTransit/kiosk/tele/config"
	"github.com/juju/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

type sent struct {
	topic string
	body  *structpb.Struct
}

type fakeTransport struct {
	onCommand CommandCallback
	ch        chan sent
	closed    bool
}

func newFakeTransport() *fakeTransport { return &fakeTransport{ch: make(chan sent, 32)} }

func (ft *fakeTransport) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, onCommand CommandCallback) error {
	ft.onCommand = onCommand
	return nil
}

func (ft *fakeTransport) send(topic string, payload []byte) bool {
	body := &structpb.Struct{}
	if err := proto.Unmarshal(payload, body); err != nil {
		panic(err)
	}
	ft.ch <- sent{topic: topic, body: body}
	return true
}

func (ft *fakeTransport) SendEvent(payload []byte) bool  { return ft.send("events", payload) }
func (ft *fakeTransport) SendError(payload []byte) bool  { return ft.send("errors", payload) }
func (ft *fakeTransport) SendReport(payload []byte) bool { return ft.send("report", payload) }
func (ft *fakeTransport) CloseTele()                     { ft.closed = true }

func (ft *fakeTransport) next(t testing.TB) sent {
	t.Helper()
	select {
	case s := <-ft.ch:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for tele message")
	}
	return sent{}
}

type fakeSource struct {
	mu     sync.Mutex
	events device.Signal[types.Event]
	reset  []string
}

func (fs *fakeSource) Subscribe(f func(types.Event)) device.Subscription {
	return fs.events.Subscribe(f)
}
func (fs *fakeSource) State() string { return "virtual;bill1;1.0" }
func (fs *fakeSource) Parameters() map[string]string {
	return map[string]string{"RejectCount": "3"}
}
func (fs *fakeSource) ResetParameters(names []string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.reset = append(fs.reset, names...)
	for _, n := range names {
		if n != "RejectCount" {
			return errors.NotFoundf("parameter=%s", n)
		}
	}
	return nil
}

var _ tele_api.Source = &fakeSource{}

func newTestTele(t *testing.T, enabled bool) (*tele, *fakeTransport) {
	ft := newFakeTransport()
	tl := NewWithTransporter(ft).(*tele)
	require.NoError(t, tl.Init(context.Background(), log2.NewTest(t, log2.LDebug), tele_config.Config{Enabled: enabled, VmId: 42}))
	t.Cleanup(tl.Close)
	return tl, ft
}

func TestTeleEvents(t *testing.T) {
	t.Parallel()

	tl, ft := newTestTele(t, true)
	src := &fakeSource{}
	tl.Attach(src)
	require.Equal(t, 1, src.events.Len())

	src.events.Emit(types.Event{Kind: types.EventAmountUpdated, PaymentID: 5, Amount: decimal.NewFromInt(150), Delta: decimal.NewFromInt(50)})
	s := ft.next(t)
	require.Equal(t, "events", s.topic)
	f := s.body.GetFields()
	require.Equal(t, "AmountUpdated", f["kind"].GetStringValue())
	require.Equal(t, float64(5), f["payment_id"].GetNumberValue())
	require.Equal(t, "150.00", f["amount"].GetStringValue())
	require.Equal(t, float64(42), f["vm_id"].GetNumberValue())
	require.NotEmpty(t, f["id"].GetStringValue())

	tl.Error(errors.New("bill1 jammed"))
	s = ft.next(t)
	require.Equal(t, "errors", s.topic)
	require.Equal(t, "bill1 jammed", s.body.GetFields()["error"].GetStringValue())

	require.NoError(t, tl.Report(context.Background()))
	s = ft.next(t)
	require.Equal(t, "report", s.topic)
	f = s.body.GetFields()
	require.Equal(t, "virtual;bill1;1.0", f["state"].GetStringValue())
	require.Equal(t, "3", f["parameters"].GetStructValue().GetFields()["RejectCount"].GetStringValue())
	stat := f["stat"].GetStructValue().GetFields()
	require.Equal(t, float64(1), stat["errors"].GetNumberValue())
	require.Equal(t, float64(1), stat["events"].GetStructValue().GetFields()["AmountUpdated"].GetNumberValue())

	tl.StatModify(func(s *tele_api.Stat) { require.Empty(t, s.Events) })

	tl.Attach(nil)
	require.Equal(t, 0, src.events.Len())
}

func TestTeleCommand(t *testing.T) {
	t.Parallel()

	tl, ft := newTestTele(t, true)
	src := &fakeSource{}
	tl.Attach(src)

	cmd, err := structpb.NewStruct(map[string]interface{}{
		"cmd":   "reset",
		"names": []interface{}{"RejectCount"},
	})
	require.NoError(t, err)
	b, err := proto.Marshal(cmd)
	require.NoError(t, err)
	require.True(t, ft.onCommand(context.Background(), b))
	require.Equal(t, []string{"RejectCount"}, src.reset)
	require.Equal(t, "report", ft.next(t).topic)

	unknown, _ := structpb.NewStruct(map[string]interface{}{"cmd": "reboot"})
	b, _ = proto.Marshal(unknown)
	require.False(t, ft.onCommand(context.Background(), b))
	require.False(t, ft.onCommand(context.Background(), []byte{0xff, 0x01}))
}

func TestTeleDisabled(t *testing.T) {
	t.Parallel()

	tl, ft := newTestTele(t, false)
	src := &fakeSource{}
	tl.Attach(src)
	require.Equal(t, 0, src.events.Len())
	tl.Event(types.Event{Kind: types.EventDisabled})
	tl.Error(errors.New("ignored"))
	require.NoError(t, tl.Report(context.Background()))
	require.Len(t, ft.ch, 0)

	tl.Close()
	require.True(t, ft.closed)
}

func TestTopicPrefix(t *testing.T) {
	t.Parallel()

	require.Equal(t, "kiosk7", TopicPrefix(tele_config.Config{VmId: 7}))
	require.Equal(t, "hall/left", TopicPrefix(tele_config.Config{VmId: 7, TopicPrefix: "hall/left"}))
}
