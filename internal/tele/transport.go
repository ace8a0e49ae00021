package tele

import (
	"context"

	"github.com/AlexTransit/kiosk/log2"
	tele_config "github.com/AlexTransit/kiosk/tele/config"
)

// Transporter  Tele transport contract:
// - Init fails only with invalid config, ignores network errors
// - Send* hand payload over for delivery, false when transport is disabled or refused it
// - hide "connection" concept from upstream API or errors; transport delivers messages at least once
// - application may start without network available
type Transporter interface {
	Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, onCommand CommandCallback) error
	SendEvent(payload []byte) bool
	SendError(payload []byte) bool
	SendReport(payload []byte) bool
	CloseTele()
}

type CommandCallback func(context.Context, []byte) bool
