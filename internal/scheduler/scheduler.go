package scheduler

import "golang.org/x/exp/slices"

// MaxTasks bounds the queue, per spec §4.8.
const MaxTasks = 20

type entry struct {
	task     Task
	priority Priority
}

// Scheduler is a bounded, priority-ordered cooperative queue. It is not
// safe for concurrent use; the runtime loop owns it exclusively.
type Scheduler struct {
	queue []entry
}

// New returns an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{queue: make([]entry, 0, MaxTasks)}
}

// Len reports the number of tasks currently queued.
func (s *Scheduler) Len() int { return len(s.queue) }

// Enqueue admits t at priority p, evicting the lowest-priority tail task if
// the queue is full and t outranks it, per spec §4.8. It reports whether t
// was admitted.
func (s *Scheduler) Enqueue(t Task, p Priority) bool {
	if len(s.queue) == 0 {
		s.queue = append(s.queue, entry{t, p})
		return true
	}

	if len(s.queue) < MaxTasks {
		s.insertSorted(t, p)
		return true
	}

	lowest := s.queue[len(s.queue)-1].priority
	if p > lowest {
		s.queue = s.queue[:len(s.queue)-1]
		s.insertSorted(t, p)
		return true
	}
	return false
}

// EnqueueIfSpace admits t only if the queue is not full; it never evicts.
// Used for filler maintenance tasks per spec §4.8.
func (s *Scheduler) EnqueueIfSpace(t Task, p Priority) bool {
	if len(s.queue) >= MaxTasks {
		return false
	}
	if len(s.queue) == 0 {
		s.queue = append(s.queue, entry{t, p})
		return true
	}
	s.insertSorted(t, p)
	return true
}

// insertSorted inserts before the first element with strictly lower
// priority, preserving insertion order among ties, or appends.
func (s *Scheduler) insertSorted(t Task, p Priority) {
	i := slices.IndexFunc(s.queue, func(e entry) bool { return e.priority < p })
	if i < 0 {
		s.queue = append(s.queue, entry{t, p})
		return
	}
	s.queue = slices.Insert(s.queue, i, entry{t, p})
}

// Step advances the head task exactly once. If it completes, it is removed
// and the queue shifts. A no-op on an empty queue.
func (s *Scheduler) Step() {
	if len(s.queue) == 0 {
		return
	}
	head := s.queue[0].task
	head.Execute()
	if head.IsCompleted() {
		s.queue = s.queue[1:]
	}
}

// Peek returns the current head task, or nil if the queue is empty. It does
// not advance anything; used by tests and diagnostics.
func (s *Scheduler) Peek() Task {
	if len(s.queue) == 0 {
		return nil
	}
	return s.queue[0].task
}

// Priorities returns the priority of each queued task, head first, mainly
// for tests asserting queue order.
func (s *Scheduler) Priorities() []Priority {
	out := make([]Priority, len(s.queue))
	for i, e := range s.queue {
		out[i] = e.priority
	}
	return out
}
