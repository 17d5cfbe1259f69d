package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeBlob(t *testing.T, s BlobStorage, mimeType string, chunks ...string) *Blob {
	t.Helper()
	ctx := context.Background()
	w, err := s.NewWriter(ctx)
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}
	for _, c := range chunks {
		if _, err := w.Write([]byte(c)); err != nil {
			t.Fatalf("Write(%q) error = %v", c, err)
		}
	}
	blob, err := w.Commit(ctx, mimeType)
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	return blob
}

func readBlob(t *testing.T, blob *Blob) string {
	t.Helper()
	f, err := blob.Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	if int64(len(data)) != f.Size() {
		t.Fatalf("Size() = %d, read %d bytes", f.Size(), len(data))
	}
	return string(data)
}

func TestMemoryStorage_CommitAndOpen(t *testing.T) {
	t.Parallel()

	s := NewMemoryStorage(0, "")
	blob := writeBlob(t, s, "text/plain", "hello ", "world")

	if blob.Size != 11 || blob.MimeType != "text/plain" {
		t.Fatalf("blob = %#v", blob)
	}
	if !strings.HasPrefix(blob.Digest, "sha256:") {
		t.Fatalf("Digest = %q", blob.Digest)
	}
	if got := readBlob(t, blob); got != "hello world" {
		t.Fatalf("content = %q", got)
	}
	if err := blob.Remove(context.Background()); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := blob.Open(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Open after Remove err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStorage_SpillsPastLimit(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := NewMemoryStorage(4, dir)
	blob := writeBlob(t, s, "", "abc", "defgh")

	if blob.LocalPath == "" {
		t.Fatalf("blob was not spilled: %#v", blob)
	}
	if filepath.Dir(blob.LocalPath) != dir {
		t.Fatalf("LocalPath = %q, want under %q", blob.LocalPath, dir)
	}
	if got := readBlob(t, blob); got != "abcdefgh" {
		t.Fatalf("content = %q", got)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := os.Stat(blob.LocalPath); !os.IsNotExist(err) {
		t.Fatalf("spill file still present: %v", err)
	}
}

func TestMemoryStorage_AbortDiscards(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := NewMemoryStorage(2, dir)
	w, err := s.NewWriter(context.Background())
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}
	if _, err := w.Write([]byte("spilled")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Abort(); err != nil {
		t.Fatalf("Abort() error = %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("spill dir has %d entries after abort", len(entries))
	}
}

func TestLocalBlobStore_ContentAddressed(t *testing.T) {
	t.Parallel()

	s, err := NewLocalBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalBlobStore() error = %v", err)
	}
	first := writeBlob(t, s, "application/json", `{"a":1}`)
	second := writeBlob(t, s, "application/json", `{"a"`, `:1}`)

	if first.Key != second.Key || first.Digest != second.Digest {
		t.Fatalf("keys differ: %q vs %q", first.Key, second.Key)
	}
	if got := readBlob(t, second); got != `{"a":1}` {
		t.Fatalf("content = %q", got)
	}
	entries, _ := os.ReadDir(filepath.Join(s.root, "tmp"))
	if len(entries) != 0 {
		t.Fatalf("tmp dir has %d leftover entries", len(entries))
	}
}

func TestLocalBlobStore_DiscardKeepsSharedContent(t *testing.T) {
	t.Parallel()

	s, err := NewLocalBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalBlobStore() error = %v", err)
	}
	first := writeBlob(t, s, "text/plain", "same body")
	second := writeBlob(t, s, "text/plain", "same ", "body")
	if !first.Created() || second.Created() {
		t.Fatalf("Created() = %v, %v; want true, false", first.Created(), second.Created())
	}

	if err := second.Discard(context.Background()); err != nil {
		t.Fatalf("Discard() error = %v", err)
	}
	if got := readBlob(t, first); got != "same body" {
		t.Fatalf("content = %q", got)
	}

	if err := first.Discard(context.Background()); err != nil {
		t.Fatalf("Discard() error = %v", err)
	}
	if _, err := first.Open(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Open() after discard error = %v, want ErrNotFound", err)
	}
}

func TestStoredBlob_DiscardIsNoop(t *testing.T) {
	t.Parallel()

	m := NewMemoryStorage(0, "")
	blob := writeBlob(t, m, "", "kept")
	handle := StoredBlob(m, "blob:x", blob.Key, blob.Digest, blob.Size, blob.MimeType)
	if err := handle.Discard(context.Background()); err != nil {
		t.Fatalf("Discard() error = %v", err)
	}
	if got := readBlob(t, blob); got != "kept" {
		t.Fatalf("content = %q", got)
	}
}

func TestLocalFileBlob(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "body.bin")
	if err := os.WriteFile(path, []byte("on disk"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	blob, err := LocalFileBlob(path, "application/octet-stream")
	if err != nil {
		t.Fatalf("LocalFileBlob() error = %v", err)
	}
	if got := readBlob(t, blob); got != "on disk" {
		t.Fatalf("content = %q", got)
	}
	if err := blob.Remove(context.Background()); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("source file removed: %v", err)
	}
	if _, err := LocalFileBlob(filepath.Dir(path), ""); err == nil {
		t.Fatalf("LocalFileBlob(dir) error = nil")
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	blob := &Blob{Key: "k"}
	uri := r.Register(blob)
	if !IsBlobURI(uri) || blob.URI != uri {
		t.Fatalf("Register() = %q, blob.URI = %q", uri, blob.URI)
	}
	if got, ok := r.Resolve(uri); !ok || got != blob {
		t.Fatalf("Resolve() = %v, %v", got, ok)
	}
	other := &Blob{Key: "k"}
	r.Register(other)
	if n := r.KeyRefs("k"); n != 2 {
		t.Fatalf("KeyRefs() = %d, want 2", n)
	}
	if _, ok := r.Revoke(uri); !ok {
		t.Fatalf("Revoke() ok = false")
	}
	if _, ok := r.Resolve(uri); ok {
		t.Fatalf("Resolve() after Revoke ok = true")
	}
}
