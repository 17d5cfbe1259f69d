package storage

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

const blobURIScheme = "blob:"

// Registry maps blob URIs to committed blobs.
type Registry struct {
	mu    sync.RWMutex
	blobs map[string]*Blob
}

func NewRegistry() *Registry {
	return &Registry{blobs: make(map[string]*Blob)}
}

// Register stores blob under its URI, minting a blob:<uuid> URI when the
// blob has none. It returns the URI.
func (r *Registry) Register(blob *Blob) string {
	if strings.TrimSpace(blob.URI) == "" {
		blob.URI = blobURIScheme + uuid.NewString()
	}
	r.mu.Lock()
	r.blobs[blob.URI] = blob
	r.mu.Unlock()
	return blob.URI
}

func (r *Registry) Resolve(uri string) (*Blob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	blob, ok := r.blobs[strings.TrimSpace(uri)]
	return blob, ok
}

// Revoke forgets uri and returns the blob it pointed at.
func (r *Registry) Revoke(uri string) (*Blob, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	blob, ok := r.blobs[uri]
	delete(r.blobs, uri)
	return blob, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blobs)
}

// KeyRefs reports how many registered URIs point at key.
func (r *Registry) KeyRefs(key string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, blob := range r.blobs {
		if blob.Key == key {
			n++
		}
	}
	return n
}

// IsBlobURI reports whether uri uses the blob: scheme.
func IsBlobURI(uri string) bool {
	return strings.HasPrefix(strings.TrimSpace(uri), blobURIScheme)
}
