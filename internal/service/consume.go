package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"bodyconsumer/internal/consume"
	"bodyconsumer/internal/storage"
)

type ConsumeInput struct {
	Type        consume.Type
	Body        io.Reader
	ContentType string
	// LocalPath lets blob output reuse the file the body comes from.
	LocalPath string
	// BlobURI names a registered blob to hand back instead of copying Body.
	BlobURI string
	Subject string
}

// ConsumeBody reads in.Body to completion and converts it. Cancelling ctx
// aborts the consumption. Blob results are registered under a blob: URI.
func (s *Service) ConsumeBody(ctx context.Context, in ConsumeInput) (consume.Value, error) {
	if s.closed.Load() {
		return consume.Value{}, ErrUnavailable
	}
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return consume.Value{}, fmt.Errorf("%w: %w", consume.ErrAborted, context.Cause(ctx))
	}
	defer s.sem.Release(1)

	signal, stop := consume.SignalFromContext(ctx, s.owner.Executor())
	defer stop()

	contentType := strings.TrimSpace(in.ContentType)
	promise, err := consume.Consume(s.env, in.Body, consume.Request{
		Type:              in.Type,
		BlobURISpec:       strings.TrimSpace(in.BlobURI),
		LocalPath:         in.LocalPath,
		MimeType:          strings.ToLower(contentType),
		MixedCaseMimeType: contentType,
	}, signal)
	if err != nil {
		switch {
		case errors.Is(err, consume.ErrInvalidRequest):
			return consume.Value{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		case errors.Is(err, consume.ErrLoopClosed):
			return consume.Value{}, ErrUnavailable
		default:
			return consume.Value{}, err
		}
	}

	// The signal settles the promise when ctx ends, so waiting is bounded.
	value, err := promise.Await(context.Background())
	if err != nil {
		return consume.Value{}, err
	}
	if value.Type == consume.TypeBlob && value.Blob != nil {
		if err := s.publishBlob(ctx, value.Blob, in.Subject); err != nil {
			return consume.Value{}, err
		}
	}
	return value, nil
}

// publishBlob registers a freshly produced blob. Blobs resolved from an
// existing URI are already published.
func (s *Service) publishBlob(ctx context.Context, blob *storage.Blob, subject string) error {
	if blob.URI != "" {
		return nil
	}
	uri := s.registry.Register(blob)
	// Only blobs in the configured storage can be reopened from the catalog.
	if s.catalog == nil || !blob.StoredIn(s.blobs) {
		return nil
	}
	err := s.catalog.InsertBlob(ctx, blobRecord(blob, subject))
	if err != nil {
		s.registry.Revoke(uri)
		if discardErr := s.discardBlob(context.Background(), blob); discardErr != nil {
			s.logger.Printf("[service] discard unrecorded blob %s: %v", blob.Key, discardErr)
		}
		return fmt.Errorf("record blob: %w", err)
	}
	return nil
}
