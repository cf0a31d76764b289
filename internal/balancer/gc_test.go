package balancer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorker(reqTTL, epochTick time.Duration) *Worker {
	ctx := &Context{
		ReqTTL:        reqTTL,
		EpochTickSize: epochTick,
		MaxPktSize:    4096,
	}
	return NewWorker(0, ctx, NewRandomSelector(1), nil)
}

func TestHandleGCRetainsFreshEntries(t *testing.T) {
	w := newTestWorker(10*time.Second, 100*time.Millisecond)
	fresh := taskWithFingerprint(1)
	fresh.Epoch = w.ctx.Epoch()
	w.tracking.Insert(fresh)
	w.ctx.incInFlight()

	w.handleGC()

	assert.Equal(t, 1, w.tracking.Len())
	assert.EqualValues(t, 1, w.ctx.InFlight())
}

func TestHandleGCEvictsAgedEntries(t *testing.T) {
	// req_ttl of 10 ticks at 100ms each == 1s.
	w := newTestWorker(1*time.Second, 100*time.Millisecond)

	aged := taskWithFingerprint(2)
	aged.Epoch = 0
	w.tracking.Insert(aged)
	w.ctx.incInFlight()

	for i := 0; i < 10; i++ {
		w.ctx.AdvanceEpoch()
	}

	w.handleGC()

	assert.Equal(t, 0, w.tracking.Len())
	assert.EqualValues(t, 0, w.ctx.InFlight())
}

func TestHandleGCBoundaryAgeIsEvicted(t *testing.T) {
	w := newTestWorker(1*time.Second, 100*time.Millisecond)
	task := taskWithFingerprint(3)
	task.Epoch = 0
	w.tracking.Insert(task)
	w.ctx.incInFlight()

	// age == ttl ticks exactly must still be evicted (>=, not only >).
	for i := 0; i < 10; i++ {
		w.ctx.AdvanceEpoch()
	}
	require.EqualValues(t, 10, w.ctx.Epoch())

	w.handleGC()

	assert.Equal(t, 0, w.tracking.Len())
}
