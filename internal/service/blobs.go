package service

import (
	"context"
	"errors"
	"fmt"

	"bodyconsumer/internal/storage"
	"bodyconsumer/internal/store"
)

// OpenBlob returns the blob registered under uri and an open reader over
// its content. The caller closes the reader.
func (s *Service) OpenBlob(ctx context.Context, uri string) (*storage.Blob, *storage.BlobFile, error) {
	blob, err := s.lookupBlob(ctx, uri)
	if err != nil {
		return nil, nil, err
	}
	f, err := blob.Open(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: blob content for %s", ErrNotFound, uri)
		}
		return nil, nil, err
	}
	return blob, f, nil
}

// DeleteBlob forgets uri and removes the content once no other URI shares
// it.
func (s *Service) DeleteBlob(ctx context.Context, uri string) error {
	blob, err := s.lookupBlob(ctx, uri)
	if err != nil {
		return err
	}
	s.registry.Revoke(blob.URI)
	refs := s.registry.KeyRefs(blob.Key)

	if s.catalog != nil {
		if _, err := s.catalog.DeleteBlob(ctx, blob.URI); err != nil {
			return err
		}
		n, err := s.catalog.CountBlobsByKey(ctx, blob.Key)
		if err != nil {
			return err
		}
		refs = max(refs, n)
	}
	if refs > 0 {
		return nil
	}
	if err := blob.Remove(ctx); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return nil
}

// discardBlob drops a blob no caller received. Content-addressed backends
// share keys between identical bodies, so content another URI still points
// at is kept.
func (s *Service) discardBlob(ctx context.Context, blob *storage.Blob) error {
	if s.registry.KeyRefs(blob.Key) > 0 {
		return nil
	}
	if s.catalog != nil && blob.StoredIn(s.blobs) {
		n, err := s.catalog.CountBlobsByKey(ctx, blob.Key)
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
	}
	return blob.Discard(ctx)
}

func (s *Service) lookupBlob(ctx context.Context, uri string) (*storage.Blob, error) {
	if !storage.IsBlobURI(uri) {
		return nil, fmt.Errorf("%w: %q is not a blob URI", ErrInvalidInput, uri)
	}
	if blob, ok := s.registry.Resolve(uri); ok {
		return blob, nil
	}
	if s.catalog == nil {
		return nil, fmt.Errorf("%w: blob %s", ErrNotFound, uri)
	}

	rec, err := s.catalog.GetBlob(ctx, uri)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, fmt.Errorf("%w: blob %s", ErrNotFound, uri)
		}
		return nil, err
	}
	blob := storage.StoredBlob(s.blobs, rec.URI, rec.Key, rec.Digest, rec.SizeBytes, rec.MimeType)
	s.registry.Register(blob)
	return blob, nil
}

func blobRecord(blob *storage.Blob, subject string) store.BlobRecord {
	return store.BlobRecord{
		URI:       blob.URI,
		Key:       blob.Key,
		Digest:    blob.Digest,
		SizeBytes: blob.Size,
		MimeType:  blob.MimeType,
		Subject:   subject,
	}
}
