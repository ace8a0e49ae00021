// Package tele is kiosk side telemetry API.
// Implementation lives in internal/tele, Noop is used when telemetry is off.
package tele

import (
	"context"

	"github.com/AlexTransit/kiosk/hardware/device"
	"github.com/AlexTransit/kiosk/internal/types"
	"github.com/AlexTransit/kiosk/log2"
	tele_config "github.com/AlexTransit/kiosk/tele/config"
)

// Source is what telemetry observes and may command remotely.
type Source interface {
	Subscribe(func(types.Event)) device.Subscription
	State() string
	Parameters() map[string]string
	ResetParameters(names []string) error
}

// Teler interface Telemetry client, kiosk side.
// Not for external public usage.
type Teler interface {
	Init(context.Context, *log2.Log, tele_config.Config) error
	// Attach starts forwarding source events, nil detaches.
	Attach(Source)
	Close()
	Error(error)
	Event(types.Event)
	StatModify(func(*Stat))
	Report(ctx context.Context) error
}
