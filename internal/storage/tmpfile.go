package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"os"
)

// tmpFile is a temp file that digests everything written to it.
type tmpFile struct {
	file *os.File
	hash hash.Hash
	size int64
}

func newTmpFile(dir, pattern string) (*tmpFile, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create tmp dir: %w", err)
		}
	}
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("create tmp file: %w", err)
	}
	return &tmpFile{file: f, hash: sha256.New()}, nil
}

func (t *tmpFile) Write(p []byte) (int, error) {
	n, err := t.file.Write(p)
	t.hash.Write(p[:n])
	t.size += int64(n)
	return n, err
}

func (t *tmpFile) name() string { return t.file.Name() }

func (t *tmpFile) hexDigest() string {
	return hex.EncodeToString(t.hash.Sum(nil))
}

func (t *tmpFile) discard() error {
	_ = t.file.Close()
	if err := os.Remove(t.file.Name()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func contentKey(hexDigest string) string {
	return "sha256/" + hexDigest[:2] + "/" + hexDigest
}
