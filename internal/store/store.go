package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrConflict = errors.New("conflict")

const schema = `
CREATE TABLE IF NOT EXISTS api_tokens (
	id           uuid PRIMARY KEY DEFAULT gen_random_uuid(),
	token_hash   text NOT NULL UNIQUE,
	subject      text NOT NULL,
	name         text NOT NULL DEFAULT '',
	is_admin     boolean NOT NULL DEFAULT false,
	disabled     boolean NOT NULL DEFAULT false,
	created_at   timestamptz NOT NULL DEFAULT now(),
	last_used_at timestamptz
);

CREATE TABLE IF NOT EXISTS blobs (
	uri        text PRIMARY KEY,
	blob_key   text NOT NULL,
	digest     text NOT NULL DEFAULT '',
	size_bytes bigint NOT NULL DEFAULT 0,
	mime_type  text NOT NULL DEFAULT '',
	subject    text NOT NULL DEFAULT '',
	created_at timestamptz NOT NULL DEFAULT now()
);
`

type APIToken struct {
	ID         uuid.UUID
	Subject    string
	Name       string
	IsAdmin    bool
	Disabled   bool
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

// BlobRecord is the durable catalog entry of a consumed blob.
type BlobRecord struct {
	URI       string
	Key       string
	Digest    string
	SizeBytes int64
	MimeType  string
	Subject   string
	CreatedAt time.Time
}

// Store is the Postgres catalog of API tokens and blob URIs.
type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the catalog tables if they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schema)
	return err
}

// CreateToken inserts a new access token.
func (s *Store) CreateToken(ctx context.Context, subject, name, tokenHash string, isAdmin bool) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.QueryRow(ctx, `
		INSERT INTO api_tokens (token_hash, subject, name, is_admin)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, tokenHash, subject, name, isAdmin).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return uuid.Nil, ErrConflict
		}
		return uuid.Nil, err
	}
	return id, nil
}

// AuthenticateToken looks up a token by hash and returns its metadata.
func (s *Store) AuthenticateToken(ctx context.Context, tokenHash string) (APIToken, error) {
	var t APIToken
	err := s.db.QueryRow(ctx, `
		SELECT id, subject, name, is_admin, disabled, created_at, last_used_at
		FROM api_tokens
		WHERE token_hash = $1
	`, tokenHash).Scan(&t.ID, &t.Subject, &t.Name, &t.IsAdmin, &t.Disabled, &t.CreatedAt, &t.LastUsedAt)
	if err != nil {
		return APIToken{}, err
	}
	return t, nil
}

// TouchTokenLastUsed updates the last_used_at timestamp.
func (s *Store) TouchTokenLastUsed(ctx context.Context, id uuid.UUID) {
	_, _ = s.db.Exec(ctx, `UPDATE api_tokens SET last_used_at = now() WHERE id = $1`, id)
}

func (s *Store) InsertBlob(ctx context.Context, rec BlobRecord) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO blobs (uri, blob_key, digest, size_bytes, mime_type, subject)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.URI, rec.Key, rec.Digest, rec.SizeBytes, rec.MimeType, rec.Subject)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *Store) GetBlob(ctx context.Context, uri string) (BlobRecord, error) {
	var rec BlobRecord
	err := s.db.QueryRow(ctx, `
		SELECT uri, blob_key, digest, size_bytes, mime_type, subject, created_at
		FROM blobs
		WHERE uri = $1
	`, uri).Scan(&rec.URI, &rec.Key, &rec.Digest, &rec.SizeBytes, &rec.MimeType, &rec.Subject, &rec.CreatedAt)
	if err != nil {
		return BlobRecord{}, err
	}
	return rec, nil
}

// DeleteBlob removes the catalog entry and reports whether one existed.
func (s *Store) DeleteBlob(ctx context.Context, uri string) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM blobs WHERE uri = $1`, uri)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CountBlobsByKey reports how many URIs still point at key. Content-addressed
// backends share a key between identical bodies.
func (s *Store) CountBlobsByKey(ctx context.Context, key string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM blobs WHERE blob_key = $1`, key).Scan(&n)
	return n, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
