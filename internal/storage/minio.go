package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Wesp1nzee/crm-deploy/internal/util"
)

const defaultContentType = "application/octet-stream"

var ErrObjectNotFound = errors.New("object not found")

type Options struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Bucket     string
	Region     string
	UseSSL     bool
	PresignTTL time.Duration
}

// BlobStore keeps document bytes in an S3-compatible bucket with path-style
// addressing.
type BlobStore struct {
	client     *minio.Client
	bucket     string
	region     string
	presignTTL time.Duration
}

func NewBlobStore(opts Options) (*BlobStore, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, errors.New("storage bucket is required")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure:       opts.UseSSL,
		Region:       opts.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	ttl := opts.PresignTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &BlobStore{client: client, bucket: opts.Bucket, region: opts.Region, presignTTL: ttl}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *BlobStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

func (s *BlobStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if contentType == "" {
		contentType = defaultContentType
	}
	if _, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// Get opens the object for reading. A missing key yields ErrObjectNotFound.
func (s *BlobStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	// GetObject is lazy; Stat surfaces a missing key before the caller streams.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("stat object %s: %w", key, err)
	}
	return obj, nil
}

func (s *BlobStore) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}

// PresignedURL returns a GET URL whose response headers name the file.
// download switches the disposition from inline to attachment.
func (s *BlobStore) PresignedURL(ctx context.Context, key, filename string, download bool) (string, error) {
	params := url.Values{}
	params.Set("response-content-disposition", ContentDisposition(filename, download))
	params.Set("response-content-type", ContentTypeFor(filename))

	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.presignTTL, params)
	if err != nil {
		return "", fmt.Errorf("presign object %s: %w", key, err)
	}
	return u.String(), nil
}

func (s *BlobStore) Ping(ctx context.Context) error {
	if _, err := s.client.BucketExists(ctx, s.bucket); err != nil {
		return fmt.Errorf("ping s3: %w", err)
	}
	return nil
}

// ContentDisposition builds an inline or attachment header value carrying
// both an ASCII-safe filename and the RFC 5987 UTF-8 form.
func ContentDisposition(filename string, download bool) string {
	kind := "inline"
	if download {
		kind = "attachment"
	}
	name := util.SanitizeHeaderName(filename)
	if name == "" {
		return kind
	}
	return fmt.Sprintf(`%s; filename="%s"; filename*=UTF-8''%s`, kind, util.SanitizeObjectName(name), url.PathEscape(name))
}

// ContentTypeFor guesses the MIME type from the file extension.
func ContentTypeFor(filename string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); ct != "" {
		return ct
	}
	return defaultContentType
}
