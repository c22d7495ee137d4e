package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bimbel/storagegw/internal/auth"
	"github.com/bimbel/storagegw/internal/config"
	"github.com/bimbel/storagegw/internal/storage"
)

const testSecret = "router-secret"

func testConfig() *config.Config {
	return &config.Config{
		Port:               "0",
		JWTSecret:          testSecret,
		PresignTTL:         5 * time.Minute,
		UploadMaxBytes:     1 << 20,
		RateLimitRPS:       100,
		RateLimitBurst:     100,
		CORSAllowedOrigins: []string{"*"},
	}
}

func bearer(t *testing.T) string {
	t.Helper()
	token, err := auth.NewIssuer(testSecret, time.Hour).Issue("tutor-1", "TUTOR")
	require.NoError(t, err)
	return "Bearer " + token
}

// newGateway starts a server whose memory store signs URLs pointing back at it.
func newGateway(t *testing.T, cfg *config.Config) (*httptest.Server, *storage.MemoryStorage) {
	t.Helper()
	var handler http.Handler
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	mem := storage.NewMemoryStorage(srv.URL+config.MemstorePath, cfg.JWTSecret, "")
	handler = NewRouter(Deps{Config: cfg, Store: mem, Logger: zerolog.Nop()})
	return srv, mem
}

func TestHealthAndMetrics(t *testing.T) {
	router := NewRouter(Deps{Config: testConfig(), Store: storage.Unconfigured{}, Logger: zerolog.Nop()})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "storage_gateway_")
}

func TestStorageRoutesRequireAuth(t *testing.T) {
	router := NewRouter(Deps{Config: testConfig(), Store: storage.Unconfigured{}, Logger: zerolog.Nop()})

	routes := []struct{ method, path string }{
		{http.MethodPost, "/api/v1/storage/presign"},
		{http.MethodPost, "/api/v1/storage/confirm"},
		{http.MethodGet, "/api/v1/storage/stream?key=uploads/a"},
		{http.MethodGet, "/api/v1/storage/stream?key=private/a"},
		{http.MethodHead, "/api/v1/storage/stream?key=uploads/a"},
		{http.MethodPost, "/api/v1/storage/upload"},
		{http.MethodDelete, "/api/v1/storage/object"},
		{http.MethodGet, "/api/v1/storage/objects"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(rt.method, rt.path, nil))
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestMemstoreNotMountedForOtherDrivers(t *testing.T) {
	router := NewRouter(Deps{Config: testConfig(), Store: storage.Unconfigured{}, Logger: zerolog.Nop()})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, config.MemstorePath+"/uploads/a", strings.NewReader("x")))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMemstoreServesOnlyMintedKeys(t *testing.T) {
	mem := storage.NewMemoryStorage("http://x"+config.MemstorePath, "s", "")
	ctx := context.Background()
	require.NoError(t, mem.Upload(ctx, "uploads/1-a.txt", strings.NewReader("public"), 6, "text/plain"))
	require.NoError(t, mem.Upload(ctx, "private/notes.txt", strings.NewReader("secret"), 6, "text/plain"))
	router := NewRouter(Deps{Config: testConfig(), Store: mem, Logger: zerolog.Nop()})

	tests := []struct {
		path     string
		wantCode int
	}{
		{"/uploads/1-a.txt", http.StatusOK},
		{"/private/notes.txt", http.StatusNotFound},
		{"/uploads/../private/notes.txt", http.StatusNotFound},
		{"/", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, config.MemstorePath+tt.path, nil))
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.NotContains(t, rec.Body.String(), "secret")
		})
	}
}

func TestMutatingRoutesAreRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitRPS = 0.001
	cfg.RateLimitBurst = 1
	router := NewRouter(Deps{Config: cfg, Store: storage.NewMemoryStorage("http://x"+config.MemstorePath, "s", ""), Logger: zerolog.Nop()})

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/storage/presign", strings.NewReader(`{"filename":"a.txt","contentType":"text/plain"}`))
		req.Header.Set("Authorization", bearer(t))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send())
	assert.Equal(t, http.StatusTooManyRequests, send())
}

// Presign, PUT straight to the signed URL, then read a slice back through the proxy.
func TestDirectUploadThenRangedRead(t *testing.T) {
	srv, mem := newGateway(t, testConfig())
	token := bearer(t)
	client := srv.Client()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/storage/presign",
		strings.NewReader(`{"filename":"lesson.mp4","contentType":"video/mp4"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", token)
	resp, err := client.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var env struct {
		Data struct {
			URL string `json:"url"`
			Key string `json:"key"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	resp.Body.Close()
	require.Equal(t, 0, mem.Len())

	payload := bytes.Repeat([]byte("0123456789"), 100_000) // 1,000,000 bytes
	put, err := http.NewRequest(http.MethodPut, env.Data.URL, bytes.NewReader(payload))
	require.NoError(t, err)
	put.Header.Set("Content-Type", "video/mp4")
	resp, err = client.Do(put)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	confirm, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/storage/confirm",
		strings.NewReader(`{"key":"`+env.Data.Key+`"}`))
	require.NoError(t, err)
	confirm.Header.Set("Authorization", token)
	resp, err = client.Do(confirm)
	require.NoError(t, err)
	var confirmed struct {
		Data struct {
			Key  string `json:"key"`
			Size int64  `json:"size"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&confirmed))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, env.Data.Key, confirmed.Data.Key)
	assert.EqualValues(t, len(payload), confirmed.Data.Size)

	get, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/storage/stream?key="+env.Data.Key, nil)
	require.NoError(t, err)
	get.Header.Set("Authorization", token)
	get.Header.Set("Range", "bytes=0-99")
	resp, err = client.Do(get)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "bytes 0-99/1000000", resp.Header.Get("Content-Range"))
	assert.Equal(t, "100", resp.Header.Get("Content-Length"))
	assert.Equal(t, "video/mp4", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, payload[:100], body)

	info, err := mem.Stat(context.Background(), env.Data.Key)
	require.NoError(t, err)
	assert.EqualValues(t, len(payload), info.Size)
}

func TestDeleteThenStream(t *testing.T) {
	srv, mem := newGateway(t, testConfig())
	require.NoError(t, mem.Upload(context.Background(), "uploads/1-a.txt", strings.NewReader("abc"), 3, "text/plain"))
	token := bearer(t)

	del, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/storage/object", strings.NewReader(`{"key":"uploads/1-a.txt"}`))
	require.NoError(t, err)
	del.Header.Set("Authorization", token)
	resp, err := srv.Client().Do(del)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	get, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/storage/stream?key=uploads/1-a.txt", nil)
	require.NoError(t, err)
	get.Header.Set("Authorization", token)
	resp, err = srv.Client().Do(get)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
