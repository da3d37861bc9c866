package backfill

import (
	"sync"
)

// subscriberBuffer is the number of live messages buffered per subscriber
// on top of the replayed history.
const subscriberBuffer = 16

// ErrorStream is an append-only, multi-subscriber stream of fetch failure
// messages. History is complete; live delivery to a subscriber that is not
// keeping up is best-effort.
type ErrorStream struct {
	mu       sync.Mutex
	messages []string
	subs     map[int]chan string
	nextID   int
}

// NewErrorStream creates an empty stream.
func NewErrorStream() *ErrorStream {
	return &ErrorStream{
		subs: make(map[int]chan string),
	}
}

// Publish appends msg to the history and offers it to every subscriber
// without blocking.
func (s *ErrorStream) Publish(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, msg)
	for _, ch := range s.subs {
		select {
		case ch <- msg:
		default:
			errorStreamDropped.Inc()
		}
	}
}

// Subscribe returns a channel that first yields every message published so
// far and then new ones, plus a function that ends the subscription and
// closes the channel. The function may be called more than once.
func (s *ErrorStream) Subscribe() (<-chan string, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan string, len(s.messages)+subscriberBuffer)
	for _, msg := range s.messages {
		ch <- msg
	}

	id := s.nextID
	s.nextID++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			close(ch)
			s.mu.Unlock()
		})
	}
}

// Messages returns a copy of every message published so far, oldest first.
func (s *ErrorStream) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages published so far.
func (s *ErrorStream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}
