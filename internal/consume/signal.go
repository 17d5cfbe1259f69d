package consume

import (
	"context"
	"sync"
)

// AbortFollower reacts to a Signal being aborted.
type AbortFollower interface {
	OnAbort(reason error)
}

// Signal is a one-shot cancellation source. Followers are notified
// synchronously on the goroutine that calls Abort, which must be the
// followers' owner executor.
type Signal struct {
	mu        sync.Mutex
	aborted   bool
	reason    error
	followers map[AbortFollower]struct{}
}

func NewSignal() *Signal {
	return &Signal{followers: make(map[AbortFollower]struct{})}
}

// SignalFromContext returns a signal that is aborted on exec with
// context.Cause(ctx) once ctx is done. stop detaches it from ctx.
func SignalFromContext(ctx context.Context, exec Executor) (s *Signal, stop func() bool) {
	s = NewSignal()
	stop = context.AfterFunc(ctx, func() {
		_ = exec.Dispatch(func() { s.Abort(context.Cause(ctx)) })
	})
	return s, stop
}

func (s *Signal) Aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

func (s *Signal) Reason() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Abort marks the signal aborted and notifies followers. Only the first
// call has an effect.
func (s *Signal) Abort(reason error) {
	s.mu.Lock()
	if s.aborted {
		s.mu.Unlock()
		return
	}
	s.aborted = true
	s.reason = abortError(reason)
	followers := make([]AbortFollower, 0, len(s.followers))
	for f := range s.followers {
		followers = append(followers, f)
	}
	clear(s.followers)
	reason = s.reason
	s.mu.Unlock()

	for _, f := range followers {
		f.OnAbort(reason)
	}
}

func (s *Signal) AddFollower(f AbortFollower) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.aborted {
		s.followers[f] = struct{}{}
	}
}

func (s *Signal) RemoveFollower(f AbortFollower) {
	s.mu.Lock()
	delete(s.followers, f)
	s.mu.Unlock()
}
