package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3BlobStore stores bodies in an S3-compatible bucket (AWS S3, MinIO, etc.).
type S3BlobStore struct {
	client *s3.Client
	bucket string
	prefix string
}

var _ BlobStorage = (*S3BlobStore)(nil)

type S3Options struct {
	Client *s3.Client
	Bucket string
	Prefix string // optional key prefix, e.g. "bodies/"
}

func NewS3BlobStore(opts S3Options) *S3BlobStore {
	return &S3BlobStore{
		client: opts.Client,
		bucket: opts.Bucket,
		prefix: opts.Prefix,
	}
}

type S3ClientOptions struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
}

// NewS3Client builds a client from the default AWS credential chain, or from
// static keys when both are set.
func NewS3Client(ctx context.Context, opts S3ClientOptions) (*s3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint := strings.TrimSpace(opts.Endpoint); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = opts.ForcePathStyle
	}), nil
}

func (s *S3BlobStore) objectKey(key string) string {
	if s.prefix != "" {
		return s.prefix + key
	}
	return key
}

// NewWriter spools chunks to a temp file; the object is uploaded on Commit
// so the digest and a seekable body are known up front.
func (s *S3BlobStore) NewWriter(_ context.Context) (BlobWriter, error) {
	tmp, err := newTmpFile("", "s3-blob-*")
	if err != nil {
		return nil, err
	}
	return &s3Writer{store: s, tmp: tmp}, nil
}

func (s *S3BlobStore) Open(ctx context.Context, key string) (*BlobFile, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("s3 get %q: %w", key, err)
	}
	defer resp.Body.Close()

	return spoolToTemp(resp.Body, "s3-read-*")
}

func (s *S3BlobStore) Remove(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %q: %w", key, err)
	}
	return nil
}

type s3Writer struct {
	store *S3BlobStore
	tmp   *tmpFile
}

func (w *s3Writer) Write(p []byte) (int, error) { return w.tmp.Write(p) }

func (w *s3Writer) Commit(ctx context.Context, mimeType string) (*Blob, error) {
	defer func() { _ = w.tmp.discard() }()

	hexDigest := w.tmp.hexDigest()
	key := contentKey(hexDigest)
	if _, err := w.tmp.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek tmp file: %w", err)
	}

	blob := &Blob{
		Key:      key,
		Digest:   "sha256:" + hexDigest,
		Size:     w.tmp.size,
		MimeType: mimeType,
		src:      w.store,
	}
	// Identical content is already stored under the same key.
	_, err := w.store.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(w.store.bucket),
		Key:    aws.String(w.store.objectKey(key)),
	})
	if err == nil {
		return blob, nil
	}

	contentType := mimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = w.store.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(w.store.bucket),
		Key:           aws.String(w.store.objectKey(key)),
		Body:          w.tmp.file,
		ContentLength: aws.Int64(w.tmp.size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 put: %w", err)
	}
	blob.created = true
	return blob, nil
}

func (w *s3Writer) Abort() error { return w.tmp.discard() }

// spoolToTemp copies r into a temp file so callers get io.ReaderAt and
// io.Seeker. The file is removed when the BlobFile is closed.
func spoolToTemp(r io.Reader, pattern string) (*BlobFile, error) {
	tmpFile, err := os.CreateTemp("", pattern)
	if err != nil {
		return nil, fmt.Errorf("create tmp file: %w", err)
	}
	cleanup := func() error {
		closeErr := tmpFile.Close()
		_ = os.Remove(tmpFile.Name())
		return closeErr
	}

	n, err := io.Copy(tmpFile, r)
	if err != nil {
		_ = cleanup()
		return nil, fmt.Errorf("download blob: %w", err)
	}
	if _, err := tmpFile.Seek(0, io.SeekStart); err != nil {
		_ = cleanup()
		return nil, fmt.Errorf("seek tmp file: %w", err)
	}
	return NewBlobFile(tmpFile, n, cleanup), nil
}
