package consume

import (
	"errors"
	"sync"
	"testing"
)

func TestEventLoop_RunsTasksInOrder(t *testing.T) {
	t.Parallel()

	loop := NewEventLoop("test")
	var (
		mu  sync.Mutex
		got []int
	)
	for i := 0; i < 100; i++ {
		if err := loop.Dispatch(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}); err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
	}
	loop.Close()

	if len(got) != 100 {
		t.Fatalf("ran %d tasks", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran at position %d", v, i)
		}
	}
}

func TestEventLoop_RejectsAfterClose(t *testing.T) {
	t.Parallel()

	loop := NewEventLoop("test")
	loop.Close()
	loop.Close()
	if err := loop.Dispatch(func() {}); !errors.Is(err, ErrLoopClosed) {
		t.Fatalf("err = %v", err)
	}
}

func TestEventLoop_TasksMayDispatch(t *testing.T) {
	t.Parallel()

	loop := NewEventLoop("test")
	t.Cleanup(loop.Close)

	done := make(chan struct{})
	_ = loop.Dispatch(func() {
		_ = loop.Dispatch(func() { close(done) })
	})
	<-done
}
