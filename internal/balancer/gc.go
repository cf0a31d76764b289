package balancer

// handleGC is the GC stage: evict every tracked task whose age
// has reached the request TTL (age >= TTL, counted in epoch ticks). Two passes — collect then delete — because
// deleting while ascending the tracking table's tree would invalidate the
// iterator.
func (w *Worker) handleGC() {
	reqTTLTicks := uint64(w.ctx.ReqTTL / w.ctx.EpochTickSize)
	currentEpoch := w.ctx.Epoch()

	var aged []*Task
	w.tracking.Ascend(func(task *Task) bool {
		if currentEpoch-task.Epoch >= reqTTLTicks {
			aged = append(aged, task)
		}
		return true
	})

	for _, task := range aged {
		w.tracking.Delete(task.Fingerprint)
		w.ctx.decInFlight()
		if w.ctx.Metrics != nil {
			w.ctx.Metrics.IncGCEvictions()
		}
	}
}
