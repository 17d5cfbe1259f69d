package consume

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

type pumpResult struct {
	data []byte
	err  error
}

func runPump(t *testing.T, p *Pump, stream io.Reader) <-chan pumpResult {
	t.Helper()
	out := make(chan pumpResult, 1)
	var buf bytes.Buffer
	if err := p.Start(stream, func(chunk []byte) { buf.Write(chunk) }, func(err error) {
		out <- pumpResult{data: buf.Bytes(), err: err}
	}); err != nil {
		t.Fatalf("start: %v", err)
	}
	return out
}

func TestPump_ReadsInChunks(t *testing.T) {
	t.Parallel()

	loop := NewEventLoop("reader")
	t.Cleanup(loop.Close)

	body := strings.Repeat("abcdef", 100)
	res := <-runPump(t, NewPumpSize(loop, 7), strings.NewReader(body))
	if res.err != nil || string(res.data) != body {
		t.Fatalf("got %d bytes, %v", len(res.data), res.err)
	}
}

func TestPump_ReportsError(t *testing.T) {
	t.Parallel()

	loop := NewEventLoop("reader")
	t.Cleanup(loop.Close)

	cause := errors.New("boom")
	res := <-runPump(t, NewPump(loop), &failingReader{err: cause})
	if !errors.Is(res.err, cause) || string(res.data) != "partial" {
		t.Fatalf("got %q, %v", res.data, res.err)
	}
}

func TestPump_StartTwice(t *testing.T) {
	t.Parallel()

	loop := NewEventLoop("reader")
	t.Cleanup(loop.Close)

	p := NewPump(loop)
	<-runPump(t, p, strings.NewReader("x"))
	if err := p.Start(strings.NewReader("y"), func([]byte) {}, func(error) {}); err == nil {
		t.Fatal("second start succeeded")
	}
}

func TestPump_StopUnblocksAndSilences(t *testing.T) {
	t.Parallel()

	loop := NewEventLoop("reader")
	t.Cleanup(loop.Close)

	pr, pw := io.Pipe()
	p := NewPump(loop)
	res := runPump(t, p, pr)

	go func() { _, _ = pw.Write([]byte("first")) }()
	time.Sleep(10 * time.Millisecond)
	p.Stop()

	// The pending read fails once the pipe is closed; no callback follows.
	if _, err := pw.Write([]byte("late")); !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("write after stop err = %v", err)
	}
	select {
	case r := <-res:
		t.Fatalf("completion after stop: %#v", r)
	case <-time.After(50 * time.Millisecond):
	}
}
