package storage

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MemoryStorage keeps objects in process memory. It backs local development
// and tests, and doubles as the HTTP endpoint its presigned URLs point at.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string]memoryObject

	baseURL    string
	publicBase string
	secret     []byte
	now        func() time.Time
}

type memoryObject struct {
	data        []byte
	contentType string
	etag        string
	modified    time.Time
}

// NewMemoryStorage returns an empty store whose presigned URLs are rooted at
// baseURL and signed with secret. publicBase defaults to baseURL.
func NewMemoryStorage(baseURL, secret, publicBase string) *MemoryStorage {
	baseURL = strings.TrimRight(baseURL, "/")
	if publicBase == "" {
		publicBase = baseURL
	}
	return &MemoryStorage{
		objects:    make(map[string]memoryObject),
		baseURL:    baseURL,
		publicBase: strings.TrimRight(publicBase, "/"),
		secret:     []byte(secret),
		now:        time.Now,
	}
}

// SetClock replaces the time source used for presign expiry.
func (m *MemoryStorage) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	if err := ctx.Err(); err != nil {
		return newError("put object", key, KindNetwork, err)
	}
	if size >= 0 {
		reader = io.LimitReader(reader, size)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return newError("put object", key, KindNetwork, err)
	}
	if size >= 0 && int64(len(data)) != size {
		return newError("put object", key, KindUnknown, fmt.Errorf("short body: got %d of %d bytes", len(data), size))
	}
	m.put(key, data, contentType)
	return nil
}

func (m *MemoryStorage) put(key string, data []byte, contentType string) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	sum := md5.Sum(data)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{
		data:        data,
		contentType: contentType,
		etag:        hex.EncodeToString(sum[:]),
		modified:    m.now().UTC(),
	}
}

// Get follows S3 range semantics: an end past the object is clamped, a start
// past the object is an InvalidRange error.
func (m *MemoryStorage) Get(ctx context.Context, key string, rng *ByteRange) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, newError("get object", key, KindNetwork, err)
	}
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, newError("get object", key, KindNotFound, errors.New("no such key"))
	}

	size := int64(len(obj.data))
	out := &Object{
		ObjectInfo: obj.info(key),
		Length:     size,
		Body:       io.NopCloser(bytes.NewReader(obj.data)),
	}
	if rng == nil {
		return out, nil
	}

	if rng.Start < 0 || rng.Start > rng.End || rng.Start >= size {
		return nil, newError("get object", key, KindInvalidRange, fmt.Errorf("range %s not satisfiable for %d bytes", rng.Header(), size))
	}
	end := rng.End
	if end >= size {
		end = size - 1
	}
	out.Length = end - rng.Start + 1
	out.ContentRange = fmt.Sprintf("bytes %d-%d/%d", rng.Start, end, size)
	out.Body = io.NopCloser(bytes.NewReader(obj.data[rng.Start : end+1]))
	return out, nil
}

func (m *MemoryStorage) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, newError("stat object", key, KindNotFound, errors.New("no such key"))
	}
	info := obj.info(key)
	return &info, nil
}

func (m *MemoryStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MemoryStorage) List(ctx context.Context, prefix string, limit int) ([]ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	out := make([]ObjectInfo, 0, len(keys))
	for _, k := range keys {
		out = append(out, m.objects[k].info(k))
	}
	return out, nil
}

// PresignPut returns "<baseURL>/<key>?expires=<unix>&signature=<hex>".
func (m *MemoryStorage) PresignPut(ctx context.Context, key, _ string, expiry time.Duration) (string, error) {
	m.mu.RLock()
	expires := m.now().Add(expiry).Unix()
	m.mu.RUnlock()

	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("signature", m.sign(http.MethodPut, key, expires))
	return m.baseURL + "/" + escapeKey(key) + "?" + q.Encode(), nil
}

func (m *MemoryStorage) PublicURL(key string) string {
	return m.publicBase + "/" + escapeKey(key)
}

// Len returns the number of stored objects.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// ServeHTTP accepts signed PUTs issued by PresignPut and serves GET/HEAD of
// stored objects. Mount it with the base path stripped.
func (m *MemoryStorage) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/")
	if key == "" {
		http.Error(w, "missing key", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodPut:
		if err := m.verify(r.Method, key, r.URL.Query()); err != nil {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		data, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}
		m.put(key, data, r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	case http.MethodGet, http.MethodHead:
		m.mu.RLock()
		obj, ok := m.objects[key]
		m.mu.RUnlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", obj.contentType)
		w.Header().Set("ETag", `"`+obj.etag+`"`)
		http.ServeContent(w, r, key, obj.modified, bytes.NewReader(obj.data))
	default:
		w.Header().Set("Allow", "GET, HEAD, PUT")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (m *MemoryStorage) verify(method, key string, q url.Values) error {
	expires, err := strconv.ParseInt(q.Get("expires"), 10, 64)
	if err != nil {
		return errors.New("missing expiry")
	}
	m.mu.RLock()
	now := m.now()
	m.mu.RUnlock()
	if now.Unix() > expires {
		return errors.New("request has expired")
	}
	want := m.sign(method, key, expires)
	if !hmac.Equal([]byte(want), []byte(q.Get("signature"))) {
		return errors.New("signature does not match")
	}
	return nil
}

func (m *MemoryStorage) sign(method, key string, expires int64) string {
	mac := hmac.New(sha256.New, m.secret)
	fmt.Fprintf(mac, "%s\n%s\n%d", method, key, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

func (o memoryObject) info(key string) ObjectInfo {
	return ObjectInfo{
		Key:          key,
		Size:         int64(len(o.data)),
		ContentType:  o.contentType,
		ETag:         o.etag,
		LastModified: o.modified,
	}
}

func escapeKey(key string) string {
	return (&url.URL{Path: key}).EscapedPath()
}
