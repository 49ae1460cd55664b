package editor

// Scheduler defers a task to the next display frame. The returned cancel
// func prevents the task from running if it has not run yet.
type Scheduler interface {
	Schedule(task func()) (cancel func())
}

// FrameSlot holds at most one deferred task. Scheduling a new task cancels
// the pending one first, so bursts of pointer samples collapse into the most
// recent one. With a nil Scheduler the task waits for Flush.
type FrameSlot struct {
	sched   Scheduler
	pending func()
	cancel  func()
}

func NewFrameSlot(sched Scheduler) *FrameSlot {
	return &FrameSlot{sched: sched}
}

// Schedule replaces any pending task with task.
func (f *FrameSlot) Schedule(task func()) {
	f.Cancel()
	f.pending = task
	if f.sched != nil {
		f.cancel = f.sched.Schedule(f.run)
	}
}

// Flush runs the pending task now, if any, and reports whether one ran.
func (f *FrameSlot) Flush() bool {
	if f.pending == nil {
		return false
	}
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	f.run()
	return true
}

// Cancel drops the pending task without running it.
func (f *FrameSlot) Cancel() {
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	f.pending = nil
}

// Pending reports whether a task is waiting.
func (f *FrameSlot) Pending() bool { return f.pending != nil }

func (f *FrameSlot) run() {
	task := f.pending
	f.pending = nil
	f.cancel = nil
	if task != nil {
		task()
	}
}
