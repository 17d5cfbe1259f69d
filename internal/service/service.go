package service

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"bodyconsumer/internal/consume"
	"bodyconsumer/internal/storage"
	"bodyconsumer/internal/store"

	"golang.org/x/sync/semaphore"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnavailable  = errors.New("service unavailable")
)

type Options struct {
	// Storage receives blob bodies. Defaults to an in-memory store.
	Storage storage.BlobStorage
	// Catalog persists blob URIs and API tokens. Optional.
	Catalog       *store.Store
	MaxConcurrent int64
	ChunkSize     int
	Logger        *log.Logger
}

// Service runs body consumptions on behalf of request handlers. It owns the
// caller and reader event loops and the worker owner every consumption is
// issued from.
type Service struct {
	env      consume.Env
	owner    *consume.Owner
	caller   *consume.EventLoop
	reader   *consume.EventLoop
	blobs    storage.BlobStorage
	registry *storage.Registry
	catalog  *store.Store
	sem      *semaphore.Weighted
	logger   *log.Logger

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func New(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.Storage == nil {
		opts.Storage = storage.NewMemoryStorage(0, "")
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 64
	}
	chunkSize := opts.ChunkSize

	caller := consume.NewEventLoop("caller")
	reader := consume.NewEventLoop("reader")
	owner := consume.NewWorkerOwner(caller)
	registry := storage.NewRegistry()

	s := &Service{
		env: consume.Env{
			Owner:  owner,
			Reader: reader,
			NewReader: func(exec consume.Executor) consume.StreamReader {
				return consume.NewPumpSize(exec, chunkSize)
			},
			Blobs:   registry,
			Storage: opts.Storage,
			Logger:  opts.Logger,
		},
		owner:    owner,
		caller:   caller,
		reader:   reader,
		blobs:    opts.Storage,
		registry: registry,
		catalog:  opts.Catalog,
		sem:      semaphore.NewWeighted(opts.MaxConcurrent),
		logger:   opts.Logger,
	}
	s.env.DiscardBlob = s.discardBlob
	return s
}

type Stats struct {
	InFlight int
	Blobs    int
}

func (s *Service) Stats() Stats {
	return Stats{
		InFlight: s.owner.Refs(),
		Blobs:    s.registry.Len(),
	}
}

// Shutdown aborts in-flight consumptions, waits for their reads to be
// released and stops the event loops. Later calls return the first result.
func (s *Service) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if err := s.owner.Close(ctx); err != nil {
			s.logger.Printf("[service] shutdown: %v", err)
			s.closeErr = err
		}
		s.caller.Close()
		s.reader.Close()
		if closer, ok := s.blobs.(io.Closer); ok {
			if err := closer.Close(); err != nil && s.closeErr == nil {
				s.closeErr = err
			}
		}
	})
	return s.closeErr
}
