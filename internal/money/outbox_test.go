package money

import (
	"testing"

	"github.com/AlexTransit/kiosk/internal/types"
	"github.com/stretchr/testify/require"
)

func TestOutboxReentrant(t *testing.T) {
	t.Parallel()

	var o *outbox
	got := []int64{}
	o = newOutbox(func(e types.Event) {
		got = append(got, e.PaymentID)
		if e.PaymentID == 1 {
			// raised from listener, delivered after current one returns
			o.push(types.Event{Kind: types.EventActivity, PaymentID: 3})
			o.flush()
			got = append(got, -1)
		}
	})
	o.push(types.Event{Kind: types.EventActivity, PaymentID: 1})
	o.push(types.Event{Kind: types.EventActivity, PaymentID: 2})
	o.flush()
	require.Equal(t, []int64{1, -1, 2, 3}, got)

	o.flush()
	require.Len(t, got, 4)
}
