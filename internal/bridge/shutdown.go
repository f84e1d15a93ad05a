package bridge

import "sync"

// Shutdown is a one-shot broadcast signal. Every execution unit takes its own
// subscription; Trigger closes all of them at once.
type Shutdown struct {
	mu          sync.Mutex
	triggered   bool
	subscribers []chan struct{}
}

// NewShutdown creates an untriggered signal.
func NewShutdown() *Shutdown {
	return &Shutdown{}
}

// Subscribe returns a channel that is closed when the signal fires.
// Subscribing after Trigger returns an already closed channel.
func (s *Shutdown) Subscribe() <-chan struct{} {
	ch := make(chan struct{})

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.triggered {
		close(ch)
		return ch
	}
	s.subscribers = append(s.subscribers, ch)
	return ch
}

// Trigger fires the signal. Calls after the first are no-ops.
func (s *Shutdown) Trigger() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.triggered {
		return
	}
	s.triggered = true
	for _, ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = nil
}

// Triggered reports whether Trigger has been called.
func (s *Shutdown) Triggered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.triggered
}

// subscriberCount returns the number of subscriptions waiting for the signal.
func (s *Shutdown) subscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}
