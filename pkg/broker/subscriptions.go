package broker

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// subscriptions tracks the delivery channel of each subscribed topic
type subscriptions struct {
	mu      sync.Mutex
	size    int
	byTopic map[string]chan Message
}

func newSubscriptions(size int) *subscriptions {
	return &subscriptions{size: size, byTopic: make(map[string]chan Message)}
}

func (s *subscriptions) add(topic string) (chan Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byTopic[topic]; ok {
		return nil, errors.Wrapf(ErrAlreadySubscribed, "%q", topic)
	}
	ch := make(chan Message, s.size)
	s.byTopic[topic] = ch
	return ch, nil
}

func (s *subscriptions) remove(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.byTopic[topic]; ok {
		delete(s.byTopic, topic)
		close(ch)
	}
}

// deliver hands a copy of payload to the topic's channel. It reports false
// when nobody is subscribed or the buffer is full.
func (s *subscriptions) deliver(topic string, payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.byTopic[topic]
	if !ok {
		return false
	}
	msg := Message{Topic: topic, Payload: append([]byte(nil), payload...)}
	select {
	case ch <- msg:
		return true
	default:
		return false
	}
}

func (s *subscriptions) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for topic, ch := range s.byTopic {
		delete(s.byTopic, topic)
		close(ch)
	}
}
