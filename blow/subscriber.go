package blow

import "sync"

// subscriber feeds one Subscribe channel from its own goroutine. Emitting
// never blocks the detector: while the reader lags, consecutive state events
// collapse into the newest one, and one-shot events (blown out, permission
// denied, stream ended) are always queued.
type subscriber struct {
	ch   chan Event
	wake chan struct{}
	done chan struct{}

	mu    sync.Mutex
	queue []Event
}

func newSubscriber(buffer int) *subscriber {
	s := &subscriber{
		ch:   make(chan Event, buffer),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *subscriber) push(ev Event) {
	s.mu.Lock()
	if n := len(s.queue); n > 0 && ev.Type == EventState && s.queue[n-1].Type == EventState {
		s.queue[n-1] = ev
	} else {
		s.queue = append(s.queue, ev)
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) pop() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return Event{}, false
	}
	ev := s.queue[0]
	s.queue = s.queue[1:]
	return ev, true
}

func (s *subscriber) run() {
	defer close(s.ch)
	for {
		ev, ok := s.pop()
		if !ok {
			select {
			case <-s.wake:
				continue
			case <-s.done:
				if ev, ok := s.pop(); ok {
					s.flush(ev)
				}
				return
			}
		}
		select {
		case s.ch <- ev:
		case <-s.done:
			s.flush(ev)
			return
		}
	}
}

// flush hands over whatever still fits in the buffer once closed.
func (s *subscriber) flush(ev Event) {
	for {
		select {
		case s.ch <- ev:
		default:
			return
		}
		var ok bool
		if ev, ok = s.pop(); !ok {
			return
		}
	}
}

func (s *subscriber) close() {
	close(s.done)
}
