package consume

import (
	"context"
	"sync"
)

// TeardownObserver is told when its Owner is destroyed.
type TeardownObserver interface {
	OnTeardown()
}

// FreezeObserver is told when its Owner is suspended.
type FreezeObserver interface {
	OnFreeze()
}

// Owner is the execution context a consumption is issued from. Its executor
// is the caller context: results are settled there and lifecycle
// notifications are delivered there.
type Owner struct {
	exec   Executor
	worker bool

	mu       sync.Mutex
	tornDown bool
	teardown map[TeardownObserver]struct{}
	freeze   map[FreezeObserver]struct{}
	refs     int
	drained  chan struct{}
}

// NewOwner returns a primary owner.
func NewOwner(exec Executor) *Owner {
	return &Owner{
		exec:     exec,
		teardown: make(map[TeardownObserver]struct{}),
		freeze:   make(map[FreezeObserver]struct{}),
	}
}

// NewWorkerOwner returns a background owner. In-flight reads hold a
// KeepAlive on it until their result has been delivered back.
func NewWorkerOwner(exec Executor) *Owner {
	o := NewOwner(exec)
	o.worker = true
	return o
}

func (o *Owner) Executor() Executor { return o.exec }

func (o *Owner) IsWorker() bool { return o.worker }

func (o *Owner) TornDown() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.tornDown
}

// AddTeardownObserver returns false if the owner is already torn down.
func (o *Owner) AddTeardownObserver(obs TeardownObserver) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.tornDown {
		return false
	}
	o.teardown[obs] = struct{}{}
	return true
}

func (o *Owner) RemoveTeardownObserver(obs TeardownObserver) {
	o.mu.Lock()
	delete(o.teardown, obs)
	o.mu.Unlock()
}

func (o *Owner) AddFreezeObserver(obs FreezeObserver) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.tornDown {
		o.freeze[obs] = struct{}{}
	}
}

func (o *Owner) RemoveFreezeObserver(obs FreezeObserver) {
	o.mu.Lock()
	delete(o.freeze, obs)
	o.mu.Unlock()
}

// Teardown notifies every teardown observer once. Call it on the owner's
// executor; later calls are no-ops.
func (o *Owner) Teardown() {
	o.mu.Lock()
	if o.tornDown {
		o.mu.Unlock()
		return
	}
	o.tornDown = true
	observers := make([]TeardownObserver, 0, len(o.teardown))
	for obs := range o.teardown {
		observers = append(observers, obs)
	}
	clear(o.teardown)
	clear(o.freeze)
	o.mu.Unlock()

	for _, obs := range observers {
		obs.OnTeardown()
	}
}

// Freeze notifies the current freeze observers. Call it on the owner's
// executor. It may happen any number of times.
func (o *Owner) Freeze() {
	o.mu.Lock()
	observers := make([]FreezeObserver, 0, len(o.freeze))
	for obs := range o.freeze {
		observers = append(observers, obs)
	}
	o.mu.Unlock()

	for _, obs := range observers {
		obs.OnFreeze()
	}
}

// Close dispatches Teardown onto the owner's executor and waits until every
// KeepAlive has been released or ctx is done.
func (o *Owner) Close(ctx context.Context) error {
	if err := o.exec.Dispatch(o.Teardown); err != nil {
		return err
	}
	return o.Wait(ctx)
}

// KeepAlive is a strong reference that keeps a worker owner from finishing
// its shutdown. Release is safe to call more than once and on a nil
// KeepAlive.
type KeepAlive struct {
	owner *Owner
	once  sync.Once
}

// KeepAlive takes a reference. It fails once the owner is torn down.
func (o *Owner) KeepAlive() (*KeepAlive, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.tornDown {
		return nil, ErrOwnerTornDown
	}
	o.refs++
	return &KeepAlive{owner: o}, nil
}

func (k *KeepAlive) Release() {
	if k == nil {
		return
	}
	k.once.Do(k.owner.release)
}

func (o *Owner) release() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.refs--
	if o.refs == 0 && o.drained != nil {
		close(o.drained)
		o.drained = nil
	}
}

// Refs reports the number of live KeepAlive references.
func (o *Owner) Refs() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.refs
}

// Wait blocks until no KeepAlive is held or ctx is done.
func (o *Owner) Wait(ctx context.Context) error {
	o.mu.Lock()
	if o.refs == 0 {
		o.mu.Unlock()
		return nil
	}
	if o.drained == nil {
		o.drained = make(chan struct{})
	}
	drained := o.drained
	o.mu.Unlock()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
