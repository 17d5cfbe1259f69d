package storage

import (
	"context"
	"errors"
	"io"
)

var ErrNotFound = errors.New("blob not found")

// BlobFile represents an opened blob that supports sequential read,
// random-access read and seeking, and reports its size.
type BlobFile struct {
	r     blobReader
	close func() error
	size  int64
}

type blobReader interface {
	io.Reader
	io.ReaderAt
	io.Seeker
}

func NewBlobFile(r blobReader, size int64, closeFn func() error) *BlobFile {
	return &BlobFile{r: r, size: size, close: closeFn}
}

func (b *BlobFile) Read(p []byte) (int, error)              { return b.r.Read(p) }
func (b *BlobFile) ReadAt(p []byte, off int64) (int, error) { return b.r.ReadAt(p, off) }
func (b *BlobFile) Seek(off int64, whence int) (int64, error) {
	return b.r.Seek(off, whence)
}
func (b *BlobFile) Size() int64 { return b.size }

func (b *BlobFile) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// BlobWriter receives a body chunk by chunk. Exactly one of Commit or Abort
// ends the writer.
type BlobWriter interface {
	io.Writer

	// Commit finalizes the written bytes into a Blob tagged with mimeType.
	Commit(ctx context.Context, mimeType string) (*Blob, error)

	// Abort discards everything written so far.
	Abort() error
}

// BlobStorage is the interface for blob storage backends.
// Memory, local-disk, S3-compatible and Postgres stores implement this.
type BlobStorage interface {
	// NewWriter starts a new blob. Chunks are appended with Write.
	NewWriter(ctx context.Context) (BlobWriter, error)

	// Open retrieves a previously committed blob by its key.
	// The returned BlobFile must be closed by the caller.
	Open(ctx context.Context, key string) (*BlobFile, error)

	// Remove discards a committed blob.
	Remove(ctx context.Context, key string) error
}

type blobSource interface {
	Open(ctx context.Context, key string) (*BlobFile, error)
	Remove(ctx context.Context, key string) error
}

// Blob is a committed body owned by a storage backend.
type Blob struct {
	URI       string
	Key       string
	Digest    string
	Size      int64
	MimeType  string
	LocalPath string

	src blobSource
	// created is set when the commit that produced this handle wrote new
	// content rather than finding identical content already stored.
	created bool
}

func (b *Blob) Open(ctx context.Context) (*BlobFile, error) {
	if b == nil || b.src == nil {
		return nil, ErrNotFound
	}
	return b.src.Open(ctx, b.Key)
}

func (b *Blob) Remove(ctx context.Context) error {
	if b == nil || b.src == nil {
		return nil
	}
	return b.src.Remove(ctx, b.Key)
}

// Created reports whether the commit behind b wrote new content.
func (b *Blob) Created() bool { return b != nil && b.created }

// Discard removes b's content only when its own commit created it.
// Deduplicated handles leave the shared content alone.
func (b *Blob) Discard(ctx context.Context) error {
	if !b.Created() {
		return nil
	}
	return b.Remove(ctx)
}

// StoredBlob rebuilds a handle to a blob previously committed to src.
func StoredBlob(src BlobStorage, uri, key, digest string, size int64, mimeType string) *Blob {
	return &Blob{
		URI:      uri,
		Key:      key,
		Digest:   digest,
		Size:     size,
		MimeType: mimeType,
		src:      src,
	}
}

// StoredIn reports whether b was committed to src.
func (b *Blob) StoredIn(src BlobStorage) bool {
	return b != nil && b.src != nil && b.src == blobSource(src)
}
