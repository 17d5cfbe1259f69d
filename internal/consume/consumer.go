package consume

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync/atomic"

	"bodyconsumer/internal/storage"

	"github.com/google/uuid"
)

// BlobResolver looks up blobs that were registered earlier under a URI.
type BlobResolver interface {
	Resolve(uri string) (*storage.Blob, bool)
}

// Env is the execution environment shared by consumers.
type Env struct {
	// Owner is required. Its executor is the caller context.
	Owner *Owner
	// Reader is the context chunks are processed on. Defaults to the owner's
	// executor.
	Reader Executor
	// NewReader builds the StreamReader for one consumption. Defaults to
	// NewPump.
	NewReader func(Executor) StreamReader
	Blobs     BlobResolver
	// Storage receives Blob bodies when the request names none.
	Storage   storage.BlobStorage
	Converter Converter
	// DiscardBlob drops a committed blob whose consumption did not resolve
	// with it. Defaults to (*storage.Blob).Discard.
	DiscardBlob func(context.Context, *storage.Blob) error
	Logger      *log.Logger
}

func (e Env) withDefaults() Env {
	if e.Owner != nil && e.Reader == nil {
		e.Reader = e.Owner.Executor()
	}
	if e.NewReader == nil {
		e.NewReader = func(exec Executor) StreamReader { return NewPump(exec) }
	}
	if e.Converter == nil {
		e.Converter = Convert
	}
	if e.DiscardBlob == nil {
		e.DiscardBlob = func(ctx context.Context, b *storage.Blob) error { return b.Discard(ctx) }
	}
	if e.Logger == nil {
		e.Logger = log.New(io.Discard, "", 0)
	}
	return e
}

// Consumer reads one body stream to completion and converts it. It is
// driven from two executors: the owner's executor (start, abort, lifecycle
// and settlement) and the reader executor (chunk processing).
//
// shuttingDown is the only state both sides write. Whoever flips it first
// owns the release of the reader-side resources. resolved is only touched
// on the owner's executor and guarantees a single settlement.
type Consumer struct {
	id      string
	env     Env
	req     Request
	signal  *Signal
	promise *Promise
	logger  *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	consumed     atomic.Bool
	shuttingDown atomic.Bool
	state        atomic.Int32
	keepAlive    atomic.Pointer[KeepAlive]

	// owner executor
	resolved bool

	// reader executor
	stream io.Reader
	reader StreamReader
	acc    *accumulator
	sink   *blobSink
}

var (
	_ AbortFollower    = (*Consumer)(nil)
	_ TeardownObserver = (*Consumer)(nil)
	_ FreezeObserver   = (*Consumer)(nil)
)

// NewConsumer validates req and returns an unstarted Consumer. signal may
// be nil.
func NewConsumer(env Env, stream io.Reader, req Request, signal *Signal) (*Consumer, error) {
	if env.Owner == nil {
		return nil, fmt.Errorf("%w: missing owner", ErrInvalidRequest)
	}
	if !req.Type.valid() {
		return nil, fmt.Errorf("%w: unknown consume type %d", ErrInvalidRequest, int(req.Type))
	}
	env = env.withDefaults()
	if req.Type == TypeBlob && req.Storage == nil {
		req.Storage = env.Storage
	}
	if req.Type == TypeBlob && req.Storage == nil && req.BlobURISpec == "" && req.LocalPath == "" {
		return nil, fmt.Errorf("%w: blob output needs storage", ErrInvalidRequest)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Consumer{
		id:      uuid.NewString(),
		env:     env,
		req:     req,
		signal:  signal,
		promise: newPromise(env.Owner.Executor()),
		logger:  env.Logger,
		ctx:     ctx,
		cancel:  cancel,
		stream:  stream,
	}
	c.state.Store(int32(StateCreated))
	return c, nil
}

// Consume builds a Consumer and starts it.
func Consume(env Env, stream io.Reader, req Request, signal *Signal) (*Promise, error) {
	c, err := NewConsumer(env, stream, req, signal)
	if err != nil {
		return nil, err
	}
	return c.Start()
}

func (c *Consumer) ID() string { return c.id }

func (c *Consumer) State() State { return State(c.state.Load()) }

// Promise returns the result handle. It is valid before Start.
func (c *Consumer) Promise() *Promise { return c.promise }

// Start begins the consumption on the owner's executor. It may be called
// from any goroutine, once.
func (c *Consumer) Start() (*Promise, error) {
	if !c.consumed.CompareAndSwap(false, true) {
		return nil, ErrAlreadyStarted
	}
	if err := c.env.Owner.Executor().Dispatch(c.begin); err != nil {
		return nil, err
	}
	return c.promise, nil
}

// Abort cancels the consumption from any goroutine. It has no effect once
// the promise is settled.
func (c *Consumer) Abort(reason error) error {
	return c.env.Owner.Executor().Dispatch(func() { c.maybeAbort(reason) })
}

func (c *Consumer) OnAbort(reason error) { c.maybeAbort(reason) }

func (c *Consumer) OnTeardown() { c.maybeAbort(ErrOwnerTornDown) }

// OnFreeze treats a suspended owner like a torn down one.
func (c *Consumer) OnFreeze() { c.maybeAbort(errors.New("owner frozen")) }

func (c *Consumer) begin() {
	if c.resolved {
		return
	}
	if c.signal != nil {
		if c.signal.Aborted() {
			c.maybeAbort(c.signal.Reason())
			return
		}
		c.signal.AddFollower(c)
	}

	owner := c.env.Owner
	if !owner.AddTeardownObserver(c) {
		c.maybeAbort(ErrOwnerTornDown)
		return
	}
	owner.AddFreezeObserver(c)

	if c.stream == nil {
		c.fail(readError(ErrNoStream))
		return
	}
	if owner.IsWorker() {
		ka, err := owner.KeepAlive()
		if err != nil {
			c.maybeAbort(err)
			return
		}
		c.keepAlive.Store(ka)
	}

	c.state.Store(int32(StateReading))
	if err := c.env.Reader.Dispatch(c.beginRead); err != nil {
		c.fail(readError(err))
	}
}

func (c *Consumer) beginRead() {
	if c.shuttingDown.Load() {
		return
	}

	if c.req.Type == TypeBlob {
		if blob := c.existingBlob(); blob != nil {
			c.finishRead(nil, blob)
			return
		}
		c.sink = newBlobSink(c.ctx, c.req.Storage, c.logger, c.id, c.onSinkError)
	} else {
		c.acc = newAccumulator()
	}

	c.reader = c.env.NewReader(c.env.Reader)
	if err := c.reader.Start(c.stream, c.onProgress, c.onComplete); err != nil {
		c.onComplete(err)
	}
}

// existingBlob serves a Blob request without copying the stream when the
// body is backed by a registered blob or a local file.
func (c *Consumer) existingBlob() *storage.Blob {
	if c.req.BlobURISpec != "" && c.env.Blobs != nil {
		if blob, ok := c.env.Blobs.Resolve(c.req.BlobURISpec); ok {
			return blob
		}
	}
	if c.req.LocalPath != "" {
		blob, err := storage.LocalFileBlob(c.req.LocalPath, c.req.MimeType)
		if err == nil {
			return blob
		}
		c.logger.Printf("[consume] %s: local file %s unusable, reading stream: %v", c.id, c.req.LocalPath, err)
	}
	return nil
}

func (c *Consumer) onProgress(chunk []byte) {
	if c.shuttingDown.Load() {
		return
	}
	if c.sink != nil {
		c.sink.write(chunk)
		return
	}
	if c.acc != nil {
		c.acc.append(chunk)
	}
}

func (c *Consumer) onComplete(status error) { c.finishRead(status, nil) }

// onSinkError runs on the sink loop.
func (c *Consumer) onSinkError(err error) {
	_ = c.env.Reader.Dispatch(func() { c.onComplete(err) })
}

// finishRead runs on the reader executor. blob is set when the body was
// served without reading the stream.
func (c *Consumer) finishRead(status error, blob *storage.Blob) {
	if !c.shuttingDown.CompareAndSwap(false, true) {
		return
	}
	if c.reader != nil {
		c.reader.Stop()
		c.reader = nil
	}
	c.closeStream()
	c.state.Store(int32(StateConverting))

	if sink := c.sink; sink != nil {
		c.sink = nil
		if status != nil {
			sink.abort(func() { c.deliver(nil, nil, false, status) })
			return
		}
		// Commit may upload the body, so the result comes back from the
		// sink loop.
		sink.commit(c.req.MimeType, func(blob *storage.Blob, err error) {
			c.deliver(nil, blob, err == nil, err)
		})
		return
	}

	var data []byte
	if status == nil && blob == nil && c.acc != nil {
		data = c.acc.detach()
		c.acc = nil
	}
	c.releaseBuffers()
	c.deliver(data, blob, false, status)
}

// deliver hands a finished read to the owner's executor. It may be called
// from the reader executor or the sink loop.
func (c *Consumer) deliver(data []byte, blob *storage.Blob, owned bool, status error) {
	err := c.env.Owner.Executor().Dispatch(func() {
		c.convertAndResolve(data, blob, owned, status)
	})
	if err != nil {
		c.logger.Printf("[consume] %s: result dropped: %v", c.id, err)
		if owned {
			c.removeBlob(blob)
		}
		c.releaseKeepAlive()
	}
}

func (c *Consumer) convertAndResolve(data []byte, blob *storage.Blob, owned bool, status error) {
	defer c.releaseKeepAlive()

	if c.resolved {
		if owned {
			c.removeBlob(blob)
		}
		return
	}
	if status != nil {
		c.settle(Value{}, readError(status))
		return
	}

	v, err := c.env.Converter(data, blob, c.req)
	if err != nil {
		if owned {
			c.removeBlob(blob)
		}
		if !errors.Is(err, ErrConversion) {
			err = conversionError(c.req.Type, err)
		}
		c.settle(Value{}, err)
		return
	}
	c.settle(v, nil)
}

// maybeAbort runs on the owner's executor.
func (c *Consumer) maybeAbort(reason error) {
	c.fail(abortError(reason))
}

func (c *Consumer) fail(err error) {
	if c.shuttingDown.CompareAndSwap(false, true) {
		if dispatchErr := c.env.Reader.Dispatch(c.shutdownReader); dispatchErr != nil {
			// The reader executor is gone, nothing else touches its state.
			c.shutdownReader()
		}
	}
	c.cancel()
	if !c.resolved {
		c.settle(Value{}, err)
	}
}

// shutdownReader releases reader-side resources after an abort won. The
// keep-alive outlives a pending blob write until the writer is discarded.
func (c *Consumer) shutdownReader() {
	if c.reader != nil {
		c.reader.Stop()
		c.reader = nil
	}
	c.closeStream()
	if sink := c.sink; sink != nil {
		c.sink = nil
		c.releaseBuffers()
		sink.abort(c.releaseKeepAlive)
		return
	}
	c.releaseBuffers()
	c.releaseKeepAlive()
}

func (c *Consumer) settle(v Value, err error) {
	if c.resolved {
		return
	}
	c.resolved = true

	if c.signal != nil {
		c.signal.RemoveFollower(c)
	}
	c.env.Owner.RemoveTeardownObserver(c)
	c.env.Owner.RemoveFreezeObserver(c)
	c.cancel()

	if err != nil {
		if errors.Is(err, ErrAborted) {
			c.state.Store(int32(StateAborted))
		} else {
			c.state.Store(int32(StateResolved))
		}
		c.logger.Printf("[consume] %s: %s failed: %v", c.id, c.req.Type, err)
		c.promise.reject(err)
		return
	}
	c.state.Store(int32(StateResolved))
	c.promise.resolve(v)
}

// releaseBuffers drops any partially accumulated body on the reader
// executor.
func (c *Consumer) releaseBuffers() {
	if c.acc != nil {
		c.acc.release()
		c.acc = nil
	}
}

func (c *Consumer) closeStream() {
	if c.stream == nil {
		return
	}
	if closer, ok := c.stream.(io.Closer); ok {
		_ = closer.Close()
	}
	c.stream = nil
}

func (c *Consumer) releaseKeepAlive() {
	c.keepAlive.Swap(nil).Release()
}

func (c *Consumer) removeBlob(blob *storage.Blob) {
	if blob == nil {
		return
	}
	if err := c.env.DiscardBlob(context.Background(), blob); err != nil {
		c.logger.Printf("[consume] %s: remove unused blob %s: %v", c.id, blob.Key, err)
	}
}
