package balancer

import (
	"github.com/google/btree"

	"github.com/lanetnet/dnsbalancer/internal/dnsfp"
)

// trackingItem adapts a tracked task to btree.Item, ordering purely by
// fingerprint. Task equality for tracking purposes is entirely
// fingerprint-based, which is the comparison key for the tracking table.
type trackingItem struct {
	fingerprint dnsfp.Fingerprint
	task        *Task
}

func (i trackingItem) Less(than btree.Item) bool {
	return i.fingerprint < than.(trackingItem).fingerprint
}

// TrackingTable is the ordered fingerprint -> Task map each worker owns.
// It is not safe for concurrent use: a worker's tracking table is touched
// only from that worker's own goroutine, so no internal locking is needed
// here — the worker is single-threaded, so this is naturally satisfied.
type TrackingTable struct {
	tree *btree.BTree
}

// trackingDegree is google/btree's own suggested default node fanout.
const trackingDegree = 32

func NewTrackingTable() *TrackingTable {
	return &TrackingTable{tree: btree.New(trackingDegree)}
}

// Insert replaces any existing task with an equal fingerprint; the
// replaced task (if any) is returned so the caller can release it. A
// duplicate in-flight query is indistinguishable from the original by
// any future reply, so silent replacement — not rejection — is correct.
func (t *TrackingTable) Insert(task *Task) (evicted *Task) {
	prev := t.tree.ReplaceOrInsert(trackingItem{fingerprint: task.Fingerprint, task: task})
	if prev == nil {
		return nil
	}
	return prev.(trackingItem).task
}

// Lookup returns the tracked task for fingerprint, or nil if none exists.
func (t *TrackingTable) Lookup(fp dnsfp.Fingerprint) *Task {
	item := t.tree.Get(trackingItem{fingerprint: fp})
	if item == nil {
		return nil
	}
	return item.(trackingItem).task
}

// Delete removes the tracked task for fingerprint, returning it if present.
func (t *TrackingTable) Delete(fp dnsfp.Fingerprint) *Task {
	item := t.tree.Delete(trackingItem{fingerprint: fp})
	if item == nil {
		return nil
	}
	return item.(trackingItem).task
}

// Len reports the number of tracked tasks.
func (t *TrackingTable) Len() int { return t.tree.Len() }

// Ascend calls fn for every tracked task in fingerprint order, stopping
// early if fn returns false. Only safe when no insert/delete is happening
// concurrently with the traversal — satisfied here because only the owning
// worker ever calls any TrackingTable method.
func (t *TrackingTable) Ascend(fn func(task *Task) bool) {
	t.tree.Ascend(func(item btree.Item) bool {
		return fn(item.(trackingItem).task)
	})
}
