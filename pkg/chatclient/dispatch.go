package chatclient

import (
	"sync"

	"junqo-chat/pkg/protocol"
)

// eventQueue hands server events to the registry on its own goroutine so the
// socket reader keeps draining replies while handlers run. Events are
// delivered in arrival order; push never blocks.
type eventQueue struct {
	registry *Registry

	mu     sync.Mutex
	frames []protocol.Frame
	notify chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newEventQueue(registry *Registry) *eventQueue {
	q := &eventQueue{
		registry: registry,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *eventQueue) push(frame protocol.Frame) {
	q.mu.Lock()
	q.frames = append(q.frames, frame)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *eventQueue) run() {
	for {
		select {
		case <-q.done:
			return
		case <-q.notify:
		}
		for {
			q.mu.Lock()
			if len(q.frames) == 0 {
				q.mu.Unlock()
				break
			}
			frame := q.frames[0]
			q.frames[0] = protocol.Frame{}
			q.frames = q.frames[1:]
			q.mu.Unlock()
			q.registry.Dispatch(frame.Event, frame.Data)
		}
	}
}

func (q *eventQueue) stop() {
	q.once.Do(func() { close(q.done) })
}
