package objects

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bimbel/storagegw/internal/storage"
)

const testStoreURL = "http://store.test/_memstore"

// countingStore wraps a Storage and counts calls that reach it.
type countingStore struct {
	storage.Storage
	mu    sync.Mutex
	calls map[string]int
}

func newCountingStore(inner storage.Storage) *countingStore {
	return &countingStore{Storage: inner, calls: make(map[string]int)}
}

func (c *countingStore) hit(op string) {
	c.mu.Lock()
	c.calls[op]++
	c.mu.Unlock()
}

func (c *countingStore) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

func (c *countingStore) Upload(ctx context.Context, key string, r io.Reader, size int64, ct string) error {
	c.hit("upload")
	return c.Storage.Upload(ctx, key, r, size, ct)
}

func (c *countingStore) Get(ctx context.Context, key string, rng *storage.ByteRange) (*storage.Object, error) {
	c.hit("get")
	return c.Storage.Get(ctx, key, rng)
}

func (c *countingStore) Stat(ctx context.Context, key string) (*storage.ObjectInfo, error) {
	c.hit("stat")
	return c.Storage.Stat(ctx, key)
}

func (c *countingStore) Delete(ctx context.Context, key string) error {
	c.hit("delete")
	return c.Storage.Delete(ctx, key)
}

func (c *countingStore) List(ctx context.Context, prefix string, limit int) ([]storage.ObjectInfo, error) {
	c.hit("list")
	return c.Storage.List(ctx, prefix, limit)
}

func (c *countingStore) PresignPut(ctx context.Context, key, ct string, expiry time.Duration) (string, error) {
	c.hit("presign")
	return c.Storage.PresignPut(ctx, key, ct, expiry)
}

// fakeRecorder keeps ledger writes in memory.
type fakeRecorder struct {
	mu      sync.Mutex
	records []Record
	deleted []string
	err     error
}

func (f *fakeRecorder) Record(_ context.Context, rec *Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, *rec)
	return nil
}

func (f *fakeRecorder) MarkDeleted(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, key)
	return nil
}

func newTestService(t *testing.T, store storage.Storage, ledger Recorder) *Service {
	t.Helper()
	return NewService(store, ledger, time.Minute, zerolog.Nop())
}

func TestCreateUploadGrant(t *testing.T) {
	mem := storage.NewMemoryStorage(testStoreURL, "secret", "https://cdn.test")
	ledger := &fakeRecorder{}
	svc := newTestService(t, mem, ledger)

	grant, err := svc.CreateUploadGrant(context.Background(), "user-1", "my report.pdf", "application/pdf")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(grant.Key, "uploads/"))
	assert.True(t, strings.HasSuffix(grant.Key, "-my_report.pdf"))
	assert.True(t, strings.HasPrefix(grant.URL, testStoreURL+"/"+grant.Key+"?"))
	assert.Equal(t, "https://cdn.test/"+grant.Key, grant.PublicURL)
	assert.Equal(t, "PUT", grant.Method)
	assert.WithinDuration(t, time.Now().Add(time.Minute), grant.ExpiresAt, 5*time.Second)

	assert.Equal(t, 0, mem.Len(), "granting must not write to the bucket")

	require.Len(t, ledger.records, 1)
	assert.Equal(t, grant.Key, ledger.records[0].Key)
	assert.Equal(t, StatusGranted, ledger.records[0].Status)
	assert.Equal(t, StrategyDirect, ledger.records[0].Strategy)
	assert.Equal(t, "user-1", ledger.records[0].OwnerID)
}

func TestCreateUploadGrant_Validation(t *testing.T) {
	store := newCountingStore(storage.NewMemoryStorage(testStoreURL, "secret", ""))
	svc := newTestService(t, store, nil)

	tests := []struct {
		name, filename, contentType string
	}{
		{"missing filename", "", "text/plain"},
		{"blank filename", "   ", "text/plain"},
		{"missing content type", "a.txt", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateUploadGrant(context.Background(), "u", tt.filename, tt.contentType)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
	assert.Equal(t, 0, store.total())
}

func TestCreateUploadGrant_DistinctKeys(t *testing.T) {
	svc := newTestService(t, storage.NewMemoryStorage(testStoreURL, "secret", ""), nil)

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		g, err := svc.CreateUploadGrant(context.Background(), "u", "same.txt", "text/plain")
		require.NoError(t, err)
		require.False(t, seen[g.Key], "duplicate key %s", g.Key)
		seen[g.Key] = true
	}
}

func TestCreateUploadGrant_NotConfigured(t *testing.T) {
	svc := newTestService(t, storage.Unconfigured{}, nil)

	_, err := svc.CreateUploadGrant(context.Background(), "u", "a.txt", "text/plain")
	assert.ErrorIs(t, err, storage.ErrNotConfigured)
}

func TestUpload(t *testing.T) {
	mem := storage.NewMemoryStorage(testStoreURL, "secret", "")
	ledger := &fakeRecorder{}
	svc := newTestService(t, mem, ledger)

	res, err := svc.Upload(context.Background(), "user-1", "notes.txt", "text/plain", strings.NewReader("hello"), 5)
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(res.Key, "-notes.txt"))
	assert.Equal(t, testStoreURL+"/"+res.Key, res.PublicURL)

	info, err := mem.Stat(context.Background(), res.Key)
	require.NoError(t, err)
	assert.EqualValues(t, 5, info.Size)
	assert.Equal(t, "text/plain", info.ContentType)

	require.Len(t, ledger.records, 1)
	assert.Equal(t, StatusStored, ledger.records[0].Status)
	assert.Equal(t, StrategyServer, ledger.records[0].Strategy)
	require.NotNil(t, ledger.records[0].Size)
	assert.EqualValues(t, 5, *ledger.records[0].Size)
}

func TestUpload_Defaults(t *testing.T) {
	mem := storage.NewMemoryStorage(testStoreURL, "secret", "")
	svc := newTestService(t, mem, nil)

	res, err := svc.Upload(context.Background(), "u", "", "", strings.NewReader("x"), -1)
	require.NoError(t, err)

	assert.Regexp(t, `^uploads/\d+-upload-\d+$`, res.Key)
	info, err := mem.Stat(context.Background(), res.Key)
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", info.ContentType)
}

func TestUpload_LedgerFailureDoesNotFail(t *testing.T) {
	mem := storage.NewMemoryStorage(testStoreURL, "secret", "")
	svc := newTestService(t, mem, &fakeRecorder{err: errors.New("db down")})

	_, err := svc.Upload(context.Background(), "u", "a.txt", "text/plain", strings.NewReader("abc"), 3)
	require.NoError(t, err)
	assert.Equal(t, 1, mem.Len())
}

func TestConfirmUpload(t *testing.T) {
	mem := storage.NewMemoryStorage(testStoreURL, "secret", "")
	ledger := &fakeRecorder{}
	svc := newTestService(t, mem, ledger)

	grant, err := svc.CreateUploadGrant(context.Background(), "user-1", "clip.mp4", "video/mp4")
	require.NoError(t, err)
	require.NoError(t, mem.Upload(context.Background(), grant.Key, strings.NewReader("0123456789"), 10, "video/mp4"))

	info, err := svc.ConfirmUpload(context.Background(), "user-1", grant.Key)
	require.NoError(t, err)
	assert.EqualValues(t, 10, info.Size)

	require.Len(t, ledger.records, 2)
	stored := ledger.records[1]
	assert.Equal(t, grant.Key, stored.Key)
	assert.Equal(t, "clip.mp4", stored.Filename)
	assert.Equal(t, "video/mp4", stored.ContentType)
	assert.Equal(t, StatusStored, stored.Status)
	assert.Equal(t, StrategyDirect, stored.Strategy)
	require.NotNil(t, stored.Size)
	assert.EqualValues(t, 10, *stored.Size)
}

func TestConfirmUpload_AbandonedGrantStaysGranted(t *testing.T) {
	ledger := &fakeRecorder{}
	svc := newTestService(t, storage.NewMemoryStorage(testStoreURL, "secret", ""), ledger)

	grant, err := svc.CreateUploadGrant(context.Background(), "u", "clip.mp4", "video/mp4")
	require.NoError(t, err)

	_, err = svc.ConfirmUpload(context.Background(), "u", grant.Key)
	assert.True(t, storage.IsNotFound(err))
	require.Len(t, ledger.records, 1)
	assert.Equal(t, StatusGranted, ledger.records[0].Status)

	_, err = svc.ConfirmUpload(context.Background(), "u", "private/x")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestOpen_RejectsBeforeContactingStore(t *testing.T) {
	store := newCountingStore(storage.NewMemoryStorage(testStoreURL, "secret", ""))
	svc := newTestService(t, store, nil)

	_, err := svc.Open(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrValidation)

	for _, key := range []string{"private/x", "uploads/../private/x", "uploads/", "/uploads/a"} {
		_, err := svc.Open(context.Background(), key, "")
		assert.ErrorIs(t, err, ErrInvalidKey, key)
		_, err = svc.Stat(context.Background(), key)
		assert.ErrorIs(t, err, ErrInvalidKey, key)
		assert.ErrorIs(t, svc.Delete(context.Background(), key), ErrInvalidKey, key)
	}

	assert.Equal(t, 0, store.total())
}

func TestOpen_Ranged(t *testing.T) {
	mem := storage.NewMemoryStorage(testStoreURL, "secret", "")
	require.NoError(t, mem.Upload(context.Background(), "uploads/a.bin", strings.NewReader("0123456789"), 10, ""))
	svc := newTestService(t, mem, nil)

	obj, err := svc.Open(context.Background(), "uploads/a.bin", "bytes=2-4")
	require.NoError(t, err)
	defer obj.Body.Close()

	body, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	assert.Equal(t, "234", string(body))
	assert.Equal(t, "bytes 2-4/10", obj.ContentRange)
	assert.True(t, obj.Partial())

	whole, err := svc.Open(context.Background(), "uploads/a.bin", "bytes=-3")
	require.NoError(t, err)
	defer whole.Body.Close()
	assert.False(t, whole.Partial())
	assert.EqualValues(t, 10, whole.Length)
}

func TestOpen_NotFound(t *testing.T) {
	svc := newTestService(t, storage.NewMemoryStorage(testStoreURL, "secret", ""), nil)

	_, err := svc.Open(context.Background(), "uploads/missing", "")
	assert.True(t, storage.IsNotFound(err))
}

func TestDelete(t *testing.T) {
	mem := storage.NewMemoryStorage(testStoreURL, "secret", "")
	require.NoError(t, mem.Upload(context.Background(), "uploads/a.txt", strings.NewReader("a"), 1, ""))
	ledger := &fakeRecorder{}
	svc := newTestService(t, mem, ledger)

	require.NoError(t, svc.Delete(context.Background(), "uploads/a.txt"))

	_, err := mem.Stat(context.Background(), "uploads/a.txt")
	assert.True(t, storage.IsNotFound(err))
	assert.Equal(t, []string{"uploads/a.txt"}, ledger.deleted)
}

func TestList(t *testing.T) {
	mem := storage.NewMemoryStorage(testStoreURL, "secret", "")
	for _, k := range []string{"uploads/b", "uploads/a", "uploads/c", "private/z"} {
		require.NoError(t, mem.Upload(context.Background(), k, strings.NewReader("x"), 1, ""))
	}
	svc := newTestService(t, mem, nil)

	objs, err := svc.List(context.Background(), "", 2)
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "uploads/a", objs[0].Key)
	assert.Equal(t, "uploads/b", objs[1].Key)

	all, err := svc.List(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = svc.List(context.Background(), "private/", 10)
	assert.ErrorIs(t, err, ErrInvalidKey)
}
