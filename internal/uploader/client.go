package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

const (
	presignPath = "/api/v1/storage/presign"
	confirmPath = "/api/v1/storage/confirm"
	uploadPath  = "/api/v1/storage/upload"
)

// APIError is a non-2xx answer from the gateway.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway returned %d", e.Status)
	}
	return fmt.Sprintf("gateway returned %d: %s", e.Status, e.Message)
}

// StatusError is a non-2xx answer from the bucket to a direct PUT.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bucket returned %d: %s", e.Status, e.Body)
}

// HTTPClient talks to the gateway and to the presigned bucket URLs it hands out.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
	now     func() time.Time
}

// NewHTTPClient creates a client for the gateway at baseURL authenticating
// with a bearer token. A nil hc uses a pooled client with no global state.
func NewHTTPClient(baseURL, token string, hc *http.Client) *HTTPClient {
	if hc == nil {
		hc = cleanhttp.DefaultPooledClient()
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    hc,
		now:     time.Now,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

// Presign asks the gateway for a PUT grant.
func (c *HTTPClient) Presign(ctx context.Context, filename, contentType string) (*Grant, error) {
	body, err := json.Marshal(map[string]string{"filename": filename, "contentType": contentType})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+presignPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var grant Grant
	if err := c.doJSON(req, &grant); err != nil {
		return nil, err
	}
	if grant.URL == "" || grant.Key == "" {
		return nil, fmt.Errorf("grant response missing url or key")
	}
	return &grant, nil
}

// PutDirect uploads f to the grant URL. No gateway credentials are sent.
func (c *HTTPClient) PutDirect(ctx context.Context, grant *Grant, f File) error {
	if !grant.ExpiresAt.IsZero() && c.now().After(grant.ExpiresAt) {
		return ErrGrantExpired
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()

	method := grant.Method
	if method == "" {
		method = http.MethodPut
	}
	req, err := http.NewRequestWithContext(ctx, method, grant.URL, rc)
	if err != nil {
		return err
	}
	switch {
	case f.Size == 0:
		req.Body = http.NoBody
		req.ContentLength = 0
	case f.Size > 0:
		req.ContentLength = f.Size
	}
	req.Header.Set("Content-Type", f.ContentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Confirm tells the gateway the PUT for key finished.
func (c *HTTPClient) Confirm(ctx context.Context, key string) error {
	body, err := json.Marshal(map[string]string{"key": key})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+confirmPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	var out struct {
		Key string `json:"key"`
	}
	return c.doJSON(req, &out)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// UploadViaServer streams f to the gateway as the multipart field "file".
func (c *HTTPClient) UploadViaServer(ctx context.Context, f File) (*Result, error) {
	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writeFilePart(mw, f)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadPath, pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var res Result
	if err := c.doJSON(req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func writeFilePart(mw *multipart.Writer, f File) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(f.Name)))
	h.Set("Content-Type", f.ContentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, rc)
	return err
}

func (c *HTTPClient) doJSON(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Code: env.Code, Message: env.Error}
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	if !env.Success {
		return &APIError{Status: resp.StatusCode, Code: env.Code, Message: env.Error}
	}
	return json.Unmarshal(env.Data, out)
}

// OpenFile describes the file at path for upload. An empty contentType is
// guessed from the extension.
func OpenFile(path, contentType string) (File, error) {
	st, err := os.Stat(path)
	if err != nil {
		return File{}, err
	}
	if st.IsDir() {
		return File{}, fmt.Errorf("%s is a directory", path)
	}
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(path))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return File{
		Name:        filepath.Base(path),
		ContentType: contentType,
		Size:        st.Size(),
		Open:        func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

// BytesFile wraps in-memory content as a File.
func BytesFile(name, contentType string, data []byte) File {
	return File{
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		Open:        func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
	}
}
