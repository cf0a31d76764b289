package balancer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanetnet/dnsbalancer/internal/dnsfp"
)

func taskWithFingerprint(fp dnsfp.Fingerprint) *Task {
	return &Task{Fingerprint: fp}
}

func TestTrackingTableInsertLookupDelete(t *testing.T) {
	tt := NewTrackingTable()
	task := taskWithFingerprint(42)

	assert.Nil(t, tt.Insert(task))
	assert.Equal(t, 1, tt.Len())

	got := tt.Lookup(42)
	require.NotNil(t, got)
	assert.Same(t, task, got)

	deleted := tt.Delete(42)
	require.NotNil(t, deleted)
	assert.Same(t, task, deleted)
	assert.Equal(t, 0, tt.Len())
	assert.Nil(t, tt.Lookup(42))
}

func TestTrackingTableDuplicateFingerprintEvictsOlder(t *testing.T) {
	tt := NewTrackingTable()
	older := taskWithFingerprint(7)
	newer := taskWithFingerprint(7)

	assert.Nil(t, tt.Insert(older))
	evicted := tt.Insert(newer)

	require.NotNil(t, evicted)
	assert.Same(t, older, evicted)
	assert.Equal(t, 1, tt.Len())
	assert.Same(t, newer, tt.Lookup(7))
}

func TestTrackingTableAscendOrdersByFingerprint(t *testing.T) {
	tt := NewTrackingTable()
	for _, fp := range []dnsfp.Fingerprint{30, 10, 20} {
		tt.Insert(taskWithFingerprint(fp))
	}

	var seen []dnsfp.Fingerprint
	tt.Ascend(func(task *Task) bool {
		seen = append(seen, task.Fingerprint)
		return true
	})
	assert.Equal(t, []dnsfp.Fingerprint{10, 20, 30}, seen)
}

func TestTrackingTableAscendStopsEarly(t *testing.T) {
	tt := NewTrackingTable()
	for _, fp := range []dnsfp.Fingerprint{1, 2, 3, 4} {
		tt.Insert(taskWithFingerprint(fp))
	}

	var seen []dnsfp.Fingerprint
	tt.Ascend(func(task *Task) bool {
		seen = append(seen, task.Fingerprint)
		return len(seen) < 2
	})
	assert.Len(t, seen, 2)
}
