package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/valyala/bytebufferpool"
)

// MemoryStorage keeps bodies in memory. When a limit is set, a body that
// grows past it is moved to a temp file under spillDir.
type MemoryStorage struct {
	limit    int64
	spillDir string
	pool     bytebufferpool.Pool

	mu    sync.RWMutex
	blobs map[string]memEntry
}

var _ BlobStorage = (*MemoryStorage)(nil)

type memEntry struct {
	data []byte
	path string
}

// NewMemoryStorage returns an in-memory store. limit <= 0 never spills.
func NewMemoryStorage(limit int64, spillDir string) *MemoryStorage {
	return &MemoryStorage{
		limit:    limit,
		spillDir: spillDir,
		blobs:    make(map[string]memEntry),
	}
}

func (m *MemoryStorage) NewWriter(_ context.Context) (BlobWriter, error) {
	return &memWriter{store: m, buf: m.pool.Get()}, nil
}

func (m *MemoryStorage) Open(_ context.Context, key string) (*BlobFile, error) {
	m.mu.RLock()
	entry, ok := m.blobs[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if entry.path != "" {
		return openFile(entry.path)
	}
	return NewBlobFile(bytes.NewReader(entry.data), int64(len(entry.data)), nil), nil
}

// Len reports the number of committed blobs.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}

func (m *MemoryStorage) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	entry, ok := m.blobs[key]
	delete(m.blobs, key)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if entry.path != "" {
		return os.Remove(entry.path)
	}
	return nil
}

// Close drops every stored body, including spilled temp files.
func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	entries := m.blobs
	m.blobs = make(map[string]memEntry)
	m.mu.Unlock()

	var joined error
	for _, entry := range entries {
		if entry.path == "" {
			continue
		}
		if err := os.Remove(entry.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			joined = errors.Join(joined, err)
		}
	}
	return joined
}

type memWriter struct {
	store *MemoryStorage
	buf   *bytebufferpool.ByteBuffer
	spill *tmpFile
}

func (w *memWriter) Write(p []byte) (int, error) {
	if w.spill != nil {
		return w.spill.Write(p)
	}
	if w.store.limit > 0 && int64(w.buf.Len()+len(p)) > w.store.limit {
		spill, err := newTmpFile(w.store.spillDir, "mem-spill-*")
		if err != nil {
			return 0, err
		}
		if _, err := spill.Write(w.buf.B); err != nil {
			_ = spill.discard()
			return 0, err
		}
		w.releaseBuffer()
		w.spill = spill
		return w.spill.Write(p)
	}
	return w.buf.Write(p)
}

func (w *memWriter) Commit(_ context.Context, mimeType string) (*Blob, error) {
	key := uuid.NewString()
	blob := &Blob{Key: key, MimeType: mimeType, src: w.store, created: true}

	var entry memEntry
	if w.spill != nil {
		if err := w.spill.file.Close(); err != nil {
			_ = w.spill.discard()
			return nil, err
		}
		entry.path = w.spill.name()
		blob.Digest = "sha256:" + w.spill.hexDigest()
		blob.Size = w.spill.size
		blob.LocalPath = entry.path
	} else {
		// The buffer's bytes now belong to the stored blob.
		entry.data = w.buf.B
		w.buf.B = nil
		w.releaseBuffer()
		sum := sha256.Sum256(entry.data)
		blob.Digest = "sha256:" + hex.EncodeToString(sum[:])
		blob.Size = int64(len(entry.data))
	}

	w.store.mu.Lock()
	w.store.blobs[key] = entry
	w.store.mu.Unlock()
	return blob, nil
}

func (w *memWriter) Abort() error {
	if w.spill != nil {
		return w.spill.discard()
	}
	w.releaseBuffer()
	return nil
}

func (w *memWriter) releaseBuffer() {
	if w.buf == nil {
		return
	}
	w.store.pool.Put(w.buf)
	w.buf = nil
}
