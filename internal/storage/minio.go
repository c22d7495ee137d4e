package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
)

// MinioStorage implements Storage using a MinIO (or any S3-compatible) backend.
// Pointing it at Cloudflare R2 only needs a different endpoint and credentials.
type MinioStorage struct {
	client     *minio.Client
	core       minio.Core
	bucket     string
	publicBase string
}

// NewMinioStorage creates a MinIO client and, when asked to, makes sure the bucket exists.
func NewMinioStorage(ctx context.Context, cfg StoreConfig) (*MinioStorage, error) {
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL || strings.HasPrefix(cfg.Endpoint, "https://"),
		Region: cfg.Region,
	}
	if cfg.PathStyle {
		opts.BucketLookup = minio.BucketLookupPath
	}
	client, err := minio.New(strings.TrimRight(endpoint, "/"), opts)
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	if cfg.EnsureBucket {
		exists, err := client.BucketExists(ctx, cfg.Bucket)
		if err != nil {
			return nil, fmt.Errorf("check bucket existence: %w", err)
		}
		if !exists {
			if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
				return nil, fmt.Errorf("create bucket %q: %w", cfg.Bucket, err)
			}
			log.Info().Str("bucket", cfg.Bucket).Msg("storage: created bucket")
		}
	}

	return &MinioStorage{
		client:     client,
		core:       minio.Core{Client: client},
		bucket:     cfg.Bucket,
		publicBase: publicBaseFor(cfg),
	}, nil
}

// Upload streams reader to MinIO under key. size must be the exact byte count
// (pass -1 only if the size is genuinely unknown; MinIO then buffers it in parts).
func (s *MinioStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return minioError("put object", key, err)
	}
	return nil
}

// Get issues a (possibly ranged) GET through the low-level Core API so the
// upstream Content-Range header is passed through untouched.
func (s *MinioStorage) Get(ctx context.Context, key string, rng *ByteRange) (*Object, error) {
	opts := minio.GetObjectOptions{}
	if rng != nil {
		if err := opts.SetRange(rng.Start, rng.End); err != nil {
			return nil, newError("get object", key, KindInvalidRange, err)
		}
	}

	body, info, header, err := s.core.GetObject(ctx, s.bucket, key, opts)
	if err != nil {
		return nil, minioError("get object", key, err)
	}

	contentRange := header.Get("Content-Range")
	length := info.Size
	if v := header.Get("Content-Length"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			length = n
		}
	}

	return &Object{
		ObjectInfo: ObjectInfo{
			Key:          key,
			Size:         sizeFromContentRange(contentRange, length),
			ContentType:  info.ContentType,
			ETag:         info.ETag,
			LastModified: info.LastModified,
		},
		Length:       length,
		ContentRange: contentRange,
		Body:         body,
	}, nil
}

// Stat returns object metadata via HEAD.
func (s *MinioStorage) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, minioError("stat object", key, err)
	}
	return &ObjectInfo{
		Key:          key,
		Size:         info.Size,
		ContentType:  info.ContentType,
		ETag:         info.ETag,
		LastModified: info.LastModified,
	}, nil
}

// Delete removes the object at key from the bucket.
func (s *MinioStorage) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return minioError("remove object", key, err)
	}
	return nil
}

// List walks the bucket listing under prefix and stops after limit entries.
func (s *MinioStorage) List(ctx context.Context, prefix string, limit int) ([]ObjectInfo, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var out []ObjectInfo
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
		MaxKeys:   limit,
	}) {
		if obj.Err != nil {
			return nil, minioError("list objects", prefix, obj.Err)
		}
		out = append(out, ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			ContentType:  obj.ContentType,
			ETag:         obj.ETag,
			LastModified: obj.LastModified,
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// PresignPut signs a PUT URL for key. MinIO does not bind the content type into
// the signature, so the uploader may send any Content-Type.
func (s *MinioStorage) PresignPut(ctx context.Context, key, _ string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedPutObject(ctx, s.bucket, key, expiry)
	if err != nil {
		return "", minioError("presign put", key, err)
	}
	return u.String(), nil
}

// PublicURL returns the browser-accessible URL for the given key.
// For local MinIO: "http://localhost:9000/uploads-bucket/uploads/1700000000000-file.pdf"
func (s *MinioStorage) PublicURL(key string) string {
	return s.publicBase + "/" + key
}

// minioError maps a minio-go error response onto a tagged store error.
func minioError(op, key string, err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" || resp.StatusCode == http.StatusNotFound:
		return newError(op, key, KindNotFound, err)
	case resp.Code == "AccessDenied" || resp.StatusCode == http.StatusForbidden:
		return newError(op, key, KindAccessDenied, err)
	case resp.Code == "InvalidRange" || resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		return newError(op, key, KindInvalidRange, err)
	case isNetwork(err) || errors.Is(err, io.ErrUnexpectedEOF):
		return newError(op, key, KindNetwork, err)
	default:
		return newError(op, key, KindUnknown, err)
	}
}
