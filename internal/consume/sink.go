package consume

import (
	"context"
	"log"

	"bodyconsumer/internal/storage"
)

// blobSink writes one Blob body into storage on a loop of its own. Backends
// that do network I/O on Write or Commit then only delay their own
// consumption, never the shared reader executor.
//
// Every method is called from the reader executor. The writer and err are
// only touched on the sink loop.
type blobSink struct {
	loop    *EventLoop
	ctx     context.Context
	storage storage.BlobStorage
	logger  *log.Logger
	id      string
	// onErr runs on the sink loop after the first storage failure.
	onErr func(error)

	writer storage.BlobWriter
	err    error
}

func newBlobSink(ctx context.Context, st storage.BlobStorage, logger *log.Logger, id string, onErr func(error)) *blobSink {
	s := &blobSink{
		loop:    NewEventLoop("blob-sink"),
		ctx:     ctx,
		storage: st,
		logger:  logger,
		id:      id,
		onErr:   onErr,
	}
	_ = s.loop.Dispatch(s.open)
	return s
}

func (s *blobSink) open() {
	w, err := s.storage.NewWriter(s.ctx)
	if err != nil {
		s.err = err
		s.onErr(err)
		return
	}
	s.writer = w
}

// write queues chunk. After a failed write the writer is discarded and
// later chunks are dropped.
func (s *blobSink) write(chunk []byte) {
	_ = s.loop.Dispatch(func() {
		if s.err != nil {
			return
		}
		if _, err := s.writer.Write(chunk); err != nil {
			s.err = err
			s.discard()
			s.onErr(err)
		}
	})
}

// commit finalizes the body and hands the result to done on the sink loop.
func (s *blobSink) commit(mimeType string, done func(*storage.Blob, error)) {
	err := s.loop.Dispatch(func() {
		defer s.loop.CloseAsync()
		if s.err != nil {
			done(nil, s.err)
			return
		}
		blob, err := s.writer.Commit(s.ctx, mimeType)
		s.writer = nil
		done(blob, err)
	})
	if err != nil {
		done(nil, err)
	}
}

// abort drops everything written so far, then runs done if set.
func (s *blobSink) abort(done func()) {
	err := s.loop.Dispatch(func() {
		defer s.loop.CloseAsync()
		s.discard()
		if done != nil {
			done()
		}
	})
	if err != nil && done != nil {
		done()
	}
}

func (s *blobSink) discard() {
	if s.writer == nil {
		return
	}
	if err := s.writer.Abort(); err != nil {
		s.logger.Printf("[consume] %s: discard partial blob: %v", s.id, err)
	}
	s.writer = nil
}
