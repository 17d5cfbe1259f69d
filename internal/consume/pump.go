package consume

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// DefaultChunkSize is the read size used by Pump.
const DefaultChunkSize = 32 * 1024

// StreamReader drives the chunked read of a body. Callbacks are delivered
// on the reader executor. Stop may be called before or after completion
// and more than once; no callback is delivered after it.
type StreamReader interface {
	Start(stream io.Reader, onProgress func(chunk []byte), onComplete func(err error)) error
	Stop()
}

var errPumpStarted = errors.New("pump already started")

// Pump is the default StreamReader. It reads on its own goroutine and hands
// every chunk to the reader executor.
type Pump struct {
	exec      Executor
	chunkSize int

	started   atomic.Bool
	stopped   atomic.Bool
	closeOnce sync.Once
	stream    io.Reader
}

var _ StreamReader = (*Pump)(nil)

func NewPump(exec Executor) *Pump {
	return &Pump{exec: exec, chunkSize: DefaultChunkSize}
}

// NewPumpSize is NewPump with a custom read size.
func NewPumpSize(exec Executor, chunkSize int) *Pump {
	p := NewPump(exec)
	if chunkSize > 0 {
		p.chunkSize = chunkSize
	}
	return p
}

func (p *Pump) Start(stream io.Reader, onProgress func([]byte), onComplete func(error)) error {
	if !p.started.CompareAndSwap(false, true) {
		return errPumpStarted
	}
	p.stream = stream
	go p.run(onProgress, onComplete)
	return nil
}

// Stop suppresses further callbacks and closes the stream, which unblocks
// a pending Read on closable streams.
func (p *Pump) Stop() {
	p.stopped.Store(true)
	if p.started.Load() {
		p.closeStream()
	}
}

func (p *Pump) closeStream() {
	p.closeOnce.Do(func() {
		if c, ok := p.stream.(io.Closer); ok {
			_ = c.Close()
		}
	})
}

func (p *Pump) run(onProgress func([]byte), onComplete func(error)) {
	buf := make([]byte, p.chunkSize)
	for {
		n, err := p.stream.Read(buf)
		if p.stopped.Load() {
			return
		}
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			if dispatchErr := p.deliver(func() { onProgress(chunk) }); dispatchErr != nil {
				p.closeStream()
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			p.closeStream()
			_ = p.deliver(func() { onComplete(err) })
			return
		}
	}
}

func (p *Pump) deliver(fn func()) error {
	return p.exec.Dispatch(func() {
		if !p.stopped.Load() {
			fn()
		}
	})
}
