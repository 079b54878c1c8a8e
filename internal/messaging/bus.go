package messaging

import (
	"errors"
	"sort"
	"sync"
)

// ErrClosed is returned when posting on a closed bus.
var ErrClosed = errors.New("messaging: bus closed")

// Bus sends messages to the other context and delivers messages received from it.
type Bus interface {
	Post(msg Message) error
	// Subscribe registers fn for inbound messages and returns a function
	// removing it.
	Subscribe(fn func(Message)) (unsubscribe func())
}

// listeners is a registration list shared by the transports.
type listeners struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(Message)
}

func (l *listeners) add(fn func(Message)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func(Message))
	}
	id := l.next
	l.next++
	l.fns[id] = fn
	return func() {
		l.mu.Lock()
		delete(l.fns, id)
		l.mu.Unlock()
	}
}

// dispatch calls listeners in registration order.
func (l *listeners) dispatch(msg Message) {
	l.mu.Lock()
	ids := make([]int, 0, len(l.fns))
	for id := range l.fns {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Message), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, l.fns[id])
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn(msg)
	}
}

// End is one side of an in-process Pipe. Messages posted on one end are delivered
// to the other end's subscribers, in order, on that end's delivery goroutine.
type End struct {
	listeners
	peer  *End
	queue chan Message
	done  chan struct{}
	once  *sync.Once
}

var _ Bus = (*End)(nil)

// NewPipe connects two ends. buffer bounds the number of undelivered messages per
// direction before Post blocks.
func NewPipe(buffer int) (*End, *End) {
	if buffer <= 0 {
		buffer = 64
	}
	done := make(chan struct{})
	once := &sync.Once{}
	a := &End{queue: make(chan Message, buffer), done: done, once: once}
	b := &End{queue: make(chan Message, buffer), done: done, once: once}
	a.peer, b.peer = b, a
	go a.loop()
	go b.loop()
	return a, b
}

func (e *End) loop() {
	for {
		select {
		case msg := <-e.queue:
			e.dispatch(msg)
		case <-e.done:
			return
		}
	}
}

// Post queues msg for the peer.
func (e *End) Post(msg Message) error {
	select {
	case <-e.done:
		return ErrClosed
	default:
	}
	select {
	case e.peer.queue <- msg:
		return nil
	case <-e.done:
		return ErrClosed
	}
}

// Subscribe registers fn for messages posted by the peer.
func (e *End) Subscribe(fn func(Message)) func() {
	return e.add(fn)
}

// Close shuts down both ends. Undelivered messages are dropped.
func (e *End) Close() error {
	e.once.Do(func() { close(e.done) })
	return nil
}
