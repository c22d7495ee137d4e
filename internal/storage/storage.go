// Package storage defines the interface for object storage operations.
// Swap implementations by changing the driver selected at startup;
// the MinIO and S3 drivers work with any S3-compatible provider (MinIO, Cloudflare R2, AWS S3).
package storage

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Storage is the interface for uploading, streaming and removing objects.
type Storage interface {
	// Upload streams data to the store under the given key. size may be -1 when unknown.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	// Get opens the object at key. A nil rng fetches the whole object.
	// The caller must close the returned Object's Body.
	Get(ctx context.Context, key string, rng *ByteRange) (*Object, error)
	// Stat returns object metadata without reading the body.
	Stat(ctx context.Context, key string) (*ObjectInfo, error)
	// Delete removes an object identified by key.
	Delete(ctx context.Context, key string) error
	// List returns up to limit objects whose keys start with prefix, ordered by key.
	List(ctx context.Context, prefix string, limit int) ([]ObjectInfo, error)
	// PresignPut returns a URL that allows a single PUT of key until expiry elapses.
	PresignPut(ctx context.Context, key, contentType string, expiry time.Duration) (string, error)
	// PublicURL constructs the browser-accessible URL for a given key.
	PublicURL(key string) string
}

// ByteRange is an inclusive byte interval [Start, End].
type ByteRange struct {
	Start int64
	End   int64
}

// Header renders the range as an HTTP Range header value.
func (r ByteRange) Header() string {
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}

// Len is the number of bytes covered by the range.
func (r ByteRange) Len() int64 {
	return r.End - r.Start + 1
}

// ObjectInfo is object metadata as reported by the store.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	ETag         string
	LastModified time.Time
}

// Object is an open object body plus the framing the store returned with it.
//
// Size is the full object size, Length the number of bytes Body will yield.
// ContentRange is the upstream Content-Range value and is empty for whole-object reads.
type Object struct {
	ObjectInfo
	Length       int64
	ContentRange string
	Body         io.ReadCloser
}

// Partial reports whether the store answered with a byte slice of the object.
func (o *Object) Partial() bool {
	return o.ContentRange != ""
}
