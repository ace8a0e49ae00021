package tele

import (
	"context"

	"github.com/AlexTransit/kiosk/internal/types"
	"github.com/AlexTransit/kiosk/log2"
	tele_config "github.com/AlexTransit/kiosk/tele/config"
)

type Noop struct{}

var _ Teler = Noop{} // compile-time interface test

func (Noop) Init(context.Context, *log2.Log, tele_config.Config) error { return nil }

func (Noop) Attach(Source) {}

func (Noop) Close() {}

func (Noop) Error(error) {}

func (Noop) Event(types.Event) {}

func (Noop) StatModify(func(*Stat)) {}

func (Noop) Report(ctx context.Context) error { return nil }
