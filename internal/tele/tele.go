package tele

import (
	"context"
	"sync"
	"time"

	"github.com/AlexTransit/kiosk/hardware/device"
	"github.com/AlexTransit/kiosk/helpers"
	"github.com/AlexTransit/kiosk/internal/types"
	"github.com/AlexTransit/kiosk/log2"
	tele_api "github.com/AlexTransit/kiosk/tele"
	tele_config "github.com/AlexTransit/kiosk/tele/config"
	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	defaultQueueSize      = 256
	DefaultNetworkTimeout = 30 * time.Second
)

// Tele contract:
// - Init() fails only with invalid config, network issues ignored
// - Event/Error/Report public API calls never wait for network,
//   messages are delivered in background by queue worker
// - Close() sends what is already queued, then stops
// - messages overflowing queue are counted in Stat.Dropped and lost
type tele struct { //nolint:maligned
	config    tele_config.Config
	log       *log2.Log
	transport Transporter
	alive     *alive.Alive
	q         chan message
	stat      tele_api.Stat

	lk     sync.Mutex
	source tele_api.Source
	sub    device.Subscription
}

type msgKind uint8

const (
	msgEvent msgKind = iota + 1
	msgError
	msgReport
)

type message struct {
	kind msgKind
	body *structpb.Struct
}

func New() tele_api.Teler {
	return &tele{}
}
func NewWithTransporter(trans Transporter) tele_api.Teler {
	return &tele{transport: trans}
}

func (t *tele) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config) error {
	t.config = teleConfig
	t.log = log
	if t.config.LogDebug {
		t.log.SetLevel(log2.LDebug)
	}
	t.stat.Lock()
	t.stat.Locked_Reset()
	t.stat.Unlock()

	// test code sets .transport
	if t.transport == nil { // production path
		t.transport = &transportMqtt{}
	}
	if err := t.transport.Init(ctx, log, teleConfig, t.onCommandMessage); err != nil {
		return errors.Annotate(err, "tele transport")
	}
	if !t.config.Enabled {
		return nil
	}

	t.q = make(chan message, helpers.ConfigDefaultInt(t.config.QueueSize, defaultQueueSize))
	t.alive = alive.NewAlive()
	t.alive.Add(1)
	go t.qworker()
	t.log.Infof("tele init vm_id=%d topic=%s", t.config.VmId, TopicPrefix(t.config))
	return nil
}

func (t *tele) Close() {
	t.Attach(nil)
	if t.alive != nil {
		t.alive.Stop()
		t.alive.Wait()
	}
	if t.transport != nil {
		t.transport.CloseTele()
	}
}

func (t *tele) Attach(src tele_api.Source) {
	t.lk.Lock()
	defer t.lk.Unlock()
	t.sub.Cancel()
	t.sub = device.Subscription{}
	t.source = src
	if src != nil && t.config.Enabled {
		t.sub = src.Subscribe(t.Event)
	}
}

func (t *tele) StatModify(fun func(s *tele_api.Stat)) {
	t.stat.Lock()
	fun(&t.stat)
	t.stat.Unlock()
}

// Error is log2 error hook. Must not log at error level itself.
func (t *tele) Error(e error) {
	if !t.config.Enabled || e == nil {
		return
	}
	t.StatModify(func(s *tele_api.Stat) { s.Errors++ })
	t.push(msgError, map[string]interface{}{
		"error": e.Error(),
	})
}

func (t *tele) Event(e types.Event) {
	if !t.config.Enabled {
		return
	}
	t.StatModify(func(s *tele_api.Stat) { s.Events[e.Kind.String()]++ })
	t.push(msgEvent, map[string]interface{}{
		"kind":       e.Kind.String(),
		"payment_id": e.PaymentID,
		"amount":     e.Amount.StringFixed(2),
		"delta":      e.Delta.StringFixed(2),
		"message":    e.Message,
	})
}

// Report sends state of attached source with accumulated stat, then resets stat.
func (t *tele) Report(ctx context.Context) error {
	if !t.config.Enabled {
		return nil
	}
	fields := map[string]interface{}{}
	t.lk.Lock()
	src := t.source
	t.lk.Unlock()
	if src != nil {
		params := make(map[string]interface{})
		for k, v := range src.Parameters() {
			params[k] = v
		}
		fields["state"] = src.State()
		fields["parameters"] = params
	}
	t.stat.Lock()
	events := make(map[string]interface{}, len(t.stat.Events))
	for k, v := range t.stat.Events {
		events[k] = v
	}
	fields["stat"] = map[string]interface{}{
		"events":  events,
		"errors":  t.stat.Errors,
		"dropped": t.stat.Dropped,
	}
	t.stat.Locked_Reset()
	t.stat.Unlock()

	m, err := t.message(msgReport, fields)
	if err != nil {
		return errors.Annotate(err, "tele report")
	}
	select {
	case t.q <- m:
		return nil
	case <-ctx.Done():
		return errors.Annotate(ctx.Err(), "tele report")
	case <-t.alive.StopChan():
		return errors.New("tele closed")
	}
}

func (t *tele) message(kind msgKind, fields map[string]interface{}) (message, error) {
	fields["id"] = uuid.NewString()
	fields["time"] = time.Now().UTC().Format(time.RFC3339Nano)
	fields["vm_id"] = t.config.VmId
	body, err := structpb.NewStruct(fields)
	return message{kind: kind, body: body}, err
}

func (t *tele) push(kind msgKind, fields map[string]interface{}) {
	m, err := t.message(kind, fields)
	if err != nil {
		t.log.Warningf("tele encode kind=%d err=%v", kind, err)
		return
	}
	select {
	case t.q <- m:
	default:
		t.StatModify(func(s *tele_api.Stat) { s.Dropped++ })
		t.log.Warningf("tele queue full, message dropped")
	}
}

func (t *tele) qworker() {
	defer t.alive.Done()
	stopch := t.alive.StopChan()
	for {
		select {
		case m := <-t.q:
			t.send(m)
		case <-stopch:
			for {
				select {
				case m := <-t.q:
					t.send(m)
				default:
					return
				}
			}
		}
	}
}

func (t *tele) send(m message) {
	b, err := proto.Marshal(m.body)
	if err != nil {
		t.log.Warningf("tele marshal err=%v", err)
		return
	}
	var ok bool
	switch m.kind {
	case msgEvent:
		ok = t.transport.SendEvent(b)
	case msgError:
		ok = t.transport.SendError(b)
	case msgReport:
		ok = t.transport.SendReport(b)
	}
	if !ok {
		t.log.Debugf("tele transport refused kind=%d len=%d", m.kind, len(b))
	}
}

// Commands arrive as Struct {"cmd": "report"} or {"cmd": "reset", "names": [...]}.
func (t *tele) onCommandMessage(ctx context.Context, payload []byte) bool {
	cmd := &structpb.Struct{}
	if err := proto.Unmarshal(payload, cmd); err != nil {
		t.log.Warningf("tele command parse err=%v payload=%x", err, payload)
		return false
	}
	fields := cmd.GetFields()
	name := fields["cmd"].GetStringValue()
	t.log.Infof("tele command=%s", name)
	switch name {
	case "report":
	case "reset":
		t.lk.Lock()
		src := t.source
		t.lk.Unlock()
		if src == nil {
			t.log.Warningf("tele command=reset no source")
			return false
		}
		values := fields["names"].GetListValue().GetValues()
		names := make([]string, 0, len(values))
		for _, v := range values {
			names = append(names, v.GetStringValue())
		}
		if err := src.ResetParameters(names); err != nil {
			t.log.Warningf("tele command=reset names=%v err=%v", names, err)
		}
	default:
		t.log.Warningf("tele unknown command=%q", name)
		return false
	}
	if err := t.Report(ctx); err != nil {
		t.log.Warningf("tele command=%s report err=%v", name, err)
		return false
	}
	return true
}
