package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGBlobStore stores bodies as Postgres large objects. Keys are the object
// OIDs in decimal.
type PGBlobStore struct {
	pool *pgxpool.Pool
}

var _ BlobStorage = (*PGBlobStore)(nil)

func NewPGBlobStore(pool *pgxpool.Pool) *PGBlobStore {
	return &PGBlobStore{pool: pool}
}

// NewWriter opens a transaction that stays open until Commit or Abort.
// Rolling it back also drops the half-written large object.
func (p *PGBlobStore) NewWriter(ctx context.Context) (BlobWriter, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	los := tx.LargeObjects()
	oid, err := los.Create(ctx, 0)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("create large object: %w", err)
	}
	obj, err := los.Open(ctx, oid, pgx.LargeObjectModeWrite)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("open large object: %w", err)
	}
	return &pgWriter{store: p, tx: tx, obj: obj, oid: oid, hash: sha256.New()}, nil
}

func (p *PGBlobStore) Open(ctx context.Context, key string) (*BlobFile, error) {
	oid, err := parseOID(key)
	if err != nil {
		return nil, err
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	los := tx.LargeObjects()
	obj, err := los.Open(ctx, oid, pgx.LargeObjectModeRead)
	if err != nil {
		return nil, fmt.Errorf("open large object %d: %w", oid, err)
	}
	defer obj.Close()

	// Large objects are only readable inside the transaction.
	return spoolToTemp(obj, "pg-read-*")
}

func (p *PGBlobStore) Remove(ctx context.Context, key string) error {
	oid, err := parseOID(key)
	if err != nil {
		return err
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	los := tx.LargeObjects()
	if err := los.Unlink(ctx, oid); err != nil {
		return fmt.Errorf("unlink large object %d: %w", oid, err)
	}
	return tx.Commit(ctx)
}

func parseOID(key string) (uint32, error) {
	v, err := strconv.ParseUint(key, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid large object key %q", ErrNotFound, key)
	}
	return uint32(v), nil
}

type pgWriter struct {
	store *PGBlobStore
	tx    pgx.Tx
	obj   *pgx.LargeObject
	oid   uint32
	hash  hash.Hash
	size  int64
}

func (w *pgWriter) Write(p []byte) (int, error) {
	n, err := w.obj.Write(p)
	w.hash.Write(p[:n])
	w.size += int64(n)
	return n, err
}

func (w *pgWriter) Commit(ctx context.Context, mimeType string) (*Blob, error) {
	if err := w.obj.Close(); err != nil {
		_ = w.tx.Rollback(ctx)
		return nil, fmt.Errorf("close large object: %w", err)
	}
	if err := w.tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit large object: %w", err)
	}
	return &Blob{
		Key:      strconv.FormatUint(uint64(w.oid), 10),
		Digest:   "sha256:" + hex.EncodeToString(w.hash.Sum(nil)),
		Size:     w.size,
		MimeType: mimeType,
		src:      w.store,
		created:  true,
	}, nil
}

func (w *pgWriter) Abort() error {
	closeErr := w.obj.Close()
	if err := w.tx.Rollback(context.Background()); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return closeErr
}
