package consume

import (
	"context"
	"sync"
)

// Promise is a single-resolution result handle. It is settled by the
// Consumer on the owner's executor; callers only observe it.
type Promise struct {
	exec Executor
	done chan struct{}

	mu        sync.Mutex
	settled   bool
	value     Value
	err       error
	callbacks []func(Value, error)
}

func newPromise(exec Executor) *Promise {
	return &Promise{exec: exec, done: make(chan struct{})}
}

// Done is closed once the promise settles.
func (p *Promise) Done() <-chan struct{} { return p.done }

// Await blocks until the promise settles or ctx is done. Giving up on the
// wait does not abort the consumption.
func (p *Promise) Await(ctx context.Context) (Value, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		return Value{}, ctx.Err()
	}
}

// Then registers fn to run on the owner's executor after settlement.
func (p *Promise) Then(fn func(Value, error)) {
	p.mu.Lock()
	if !p.settled {
		p.callbacks = append(p.callbacks, fn)
		p.mu.Unlock()
		return
	}
	value, err := p.value, p.err
	p.mu.Unlock()
	_ = p.exec.Dispatch(func() { fn(value, err) })
}

func (p *Promise) resolve(v Value) bool { return p.settle(v, nil) }

func (p *Promise) reject(err error) bool { return p.settle(Value{}, err) }

// settle runs on the owner's executor, so callbacks run inline.
func (p *Promise) settle(v Value, err error) bool {
	p.mu.Lock()
	if p.settled {
		p.mu.Unlock()
		return false
	}
	p.settled = true
	p.value, p.err = v, err
	callbacks := p.callbacks
	p.callbacks = nil
	p.mu.Unlock()

	close(p.done)
	for _, fn := range callbacks {
		fn(v, err)
	}
	return true
}
