package voice

import "sync"

// serial runs posted tasks one at a time in FIFO order. The goroutine that
// finds the queue idle drains it; posts made while a task is running
// (including posts from inside a task) are queued behind it. This gives the
// controller single-threaded event-loop semantics without a dedicated
// goroutine.
type serial struct {
	mu      sync.Mutex
	queue   []func()
	running bool
}

func (s *serial) post(task func()) {
	s.mu.Lock()
	s.queue = append(s.queue, task)
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		next := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		next()
	}
}
