package broker

import "sync"

// StateFeed holds the current connection state and fans changes out to
// watchers. Every watcher sees the latest state; a slow watcher may miss
// intermediate ones.
type StateFeed struct {
	mu       sync.Mutex
	current  ConnectionState
	watchers map[int]chan ConnectionState
	nextID   int
}

// NewStateFeed creates a feed starting in StateDisconnected
func NewStateFeed() *StateFeed {
	return &StateFeed{
		current:  StateDisconnected,
		watchers: make(map[int]chan ConnectionState),
	}
}

// Current returns the latest state
func (f *StateFeed) Current() ConnectionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// Set records a new state and notifies watchers. Repeated states are not
// re-sent.
func (f *StateFeed) Set(state ConnectionState) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if state == f.current {
		return
	}
	f.current = state
	for _, ch := range f.watchers {
		offerLatest(ch, state)
	}
}

// Watch returns a channel primed with the current state and a cancel
// function that closes it.
func (f *StateFeed) Watch() (<-chan ConnectionState, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	ch := make(chan ConnectionState, 1)
	ch <- f.current
	f.watchers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.watchers, id)
			close(ch)
		})
	}
}

// offerLatest replaces any unread state with state. Only Set sends on the
// channel and it holds the feed lock, so the second send cannot block.
func offerLatest(ch chan ConnectionState, state ConnectionState) {
	select {
	case ch <- state:
	default:
		select {
		case <-ch:
		default:
		}
		ch <- state
	}
}
