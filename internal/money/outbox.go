package money

import (
	"sync"

	"github.com/AlexTransit/kiosk/internal/types"
)

// outbox queues events raised under manager lock and delivers them in order after unlock.
// Listener may call back into managers, events raised meanwhile are delivered
// by the same flush loop after listener returns.
type outbox struct {
	mu       sync.Mutex
	queue    []types.Event
	flushing bool
	emit     types.EventFunc
}

func newOutbox(emit types.EventFunc) *outbox { return &outbox{emit: emit} }

func (o *outbox) push(e types.Event) {
	o.mu.Lock()
	o.queue = append(o.queue, e)
	o.mu.Unlock()
}

func (o *outbox) flush() {
	o.mu.Lock()
	if o.flushing {
		o.mu.Unlock()
		return
	}
	o.flushing = true
	for len(o.queue) > 0 {
		e := o.queue[0]
		o.queue = o.queue[1:]
		o.mu.Unlock()
		if o.emit != nil {
			o.emit(e)
		}
		o.mu.Lock()
	}
	o.flushing = false
	o.mu.Unlock()
}
