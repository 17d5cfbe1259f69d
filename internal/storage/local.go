package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// LocalBlobStore stores bodies by sha256 digest on local disk.
type LocalBlobStore struct {
	root string
}

var _ BlobStorage = (*LocalBlobStore)(nil)

func NewLocalBlobStore(root string) (*LocalBlobStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalBlobStore{root: root}, nil
}

func (b *LocalBlobStore) NewWriter(_ context.Context) (BlobWriter, error) {
	tmp, err := newTmpFile(filepath.Join(b.root, "tmp"), "blob-*")
	if err != nil {
		return nil, err
	}
	return &localWriter{store: b, tmp: tmp}, nil
}

func (b *LocalBlobStore) Open(_ context.Context, key string) (*BlobFile, error) {
	return openFile(filepath.Join(b.root, filepath.FromSlash(key)))
}

func (b *LocalBlobStore) Remove(_ context.Context, key string) error {
	err := os.Remove(filepath.Join(b.root, filepath.FromSlash(key)))
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

type localWriter struct {
	store *LocalBlobStore
	tmp   *tmpFile
}

func (w *localWriter) Write(p []byte) (int, error) { return w.tmp.Write(p) }

func (w *localWriter) Commit(_ context.Context, mimeType string) (blob *Blob, err error) {
	defer func() {
		if err != nil {
			_ = w.tmp.discard()
		}
	}()

	hexDigest := w.tmp.hexDigest()
	key := contentKey(hexDigest)
	absPath := filepath.Join(w.store.root, filepath.FromSlash(key))
	blob = &Blob{
		Key:       key,
		Digest:    "sha256:" + hexDigest,
		Size:      w.tmp.size,
		MimeType:  mimeType,
		LocalPath: absPath,
		src:       w.store,
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	if _, statErr := os.Stat(absPath); statErr == nil {
		_ = w.tmp.discard()
		return blob, nil
	}
	if err := w.tmp.file.Close(); err != nil {
		return nil, fmt.Errorf("close tmp file: %w", err)
	}
	if err := os.Rename(w.tmp.name(), absPath); err != nil {
		return nil, fmt.Errorf("move blob: %w", err)
	}
	blob.created = true
	return blob, nil
}

func (w *localWriter) Abort() error { return w.tmp.discard() }

// LocalFileBlob exposes an existing file as a Blob without copying it.
// Removing the returned blob leaves the file in place.
func LocalFileBlob(path, mimeType string) (*Blob, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: not a regular file", path)
	}
	return &Blob{
		Key:       path,
		Size:      info.Size(),
		MimeType:  mimeType,
		LocalPath: path,
		src:       localFiles{},
	}, nil
}

type localFiles struct{}

func (localFiles) Open(_ context.Context, key string) (*BlobFile, error) { return openFile(key) }
func (localFiles) Remove(context.Context, string) error                  { return nil }

func openFile(path string) (*BlobFile, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return NewBlobFile(f, info.Size(), f.Close), nil
}
