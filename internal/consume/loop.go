package consume

import "sync"

// Executor runs tasks on a single execution context.
type Executor interface {
	// Dispatch queues task without blocking. Tasks run in dispatch order.
	Dispatch(task func()) error
}

// EventLoop is an Executor backed by one goroutine and an unbounded FIFO
// queue. Tasks never run concurrently with each other.
type EventLoop struct {
	name string

	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

var _ Executor = (*EventLoop)(nil)

func NewEventLoop(name string) *EventLoop {
	l := &EventLoop{
		name: name,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *EventLoop) Name() string { return l.name }

func (l *EventLoop) Dispatch(task func()) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLoopClosed
	}
	l.queue = append(l.queue, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// Close stops accepting tasks, runs the ones already queued and waits for
// the loop goroutine to exit. It must not be called from a task.
func (l *EventLoop) Close() {
	l.CloseAsync()
	<-l.done
}

// CloseAsync is Close without the wait. It may be called from a task.
func (l *EventLoop) CloseAsync() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Done is closed once the loop goroutine has exited.
func (l *EventLoop) Done() <-chan struct{} { return l.done }

func (l *EventLoop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for len(l.queue) == 0 {
			if l.closed {
				l.mu.Unlock()
				return
			}
			l.mu.Unlock()
			<-l.wake
			l.mu.Lock()
		}
		task := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		task()
	}
}
