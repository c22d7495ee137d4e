package objects

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/bimbel/storagegw/internal/metrics"
	"github.com/bimbel/storagegw/internal/middleware"
	"github.com/bimbel/storagegw/internal/response"
	"github.com/bimbel/storagegw/internal/storage"
)

// multipartMemory is how much of a multipart upload is held in memory before
// spilling to a temporary file.
const multipartMemory = 32 << 20

// Handler holds HTTP handlers for object storage endpoints.
type Handler struct {
	svc            *Service
	maxUploadBytes int64
	log            zerolog.Logger
}

// NewHandler creates a new objects Handler.
func NewHandler(svc *Service, maxUploadBytes int64, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, maxUploadBytes: maxUploadBytes, log: logger}
}

type presignRequest struct {
	Filename    string `json:"filename"    example:"report.pdf"`
	ContentType string `json:"contentType" example:"application/pdf"`
}

type deleteRequest struct {
	Key string `json:"key" example:"uploads/1718000000000-report.pdf"`
}

type confirmRequest struct {
	Key string `json:"key" example:"uploads/1718000000000-report.pdf"`
}

type confirmData struct {
	Key       string `json:"key"       example:"uploads/1718000000000-report.pdf"`
	Size      int64  `json:"size"      example:"1000000"`
	PublicURL string `json:"publicUrl"`
}

type messageData struct {
	Message string `json:"message" example:"deleted"`
}

type objectData struct {
	Key          string    `json:"key"          example:"uploads/1718000000000-report.pdf"`
	Size         int64     `json:"size"         example:"1000000"`
	ContentType  string    `json:"contentType,omitempty" example:"application/pdf"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"lastModified"`
	PublicURL    string    `json:"publicUrl"`
}

// Presign godoc
//
//	@Summary		Create upload grant
//	@Description	Mint a fresh object key under uploads/ and return a presigned PUT URL valid for a short window. Nothing is written to the bucket.
//	@Tags			storage
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		presignRequest	true	"File name and MIME type"
//	@Success		200		{object}	response.Envelope{data=Grant}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/storage/presign [post]
func (h *Handler) Presign(w http.ResponseWriter, r *http.Request) {
	var req presignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	grant, err := h.svc.CreateUploadGrant(r.Context(), middleware.UserID(r.Context()), req.Filename, req.ContentType)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, grant)
}

// Confirm godoc
//
//	@Summary		Confirm direct upload
//	@Description	Report that a PUT to a presigned URL finished. The gateway checks the bucket holds the key and records it as stored.
//	@Tags			storage
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		confirmRequest	true	"Key from the upload grant"
//	@Success		200		{object}	response.Envelope{data=confirmData}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		404		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/storage/confirm [post]
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	info, err := h.svc.ConfirmUpload(r.Context(), middleware.UserID(r.Context()), req.Key)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, confirmData{Key: req.Key, Size: info.Size, PublicURL: h.svc.PublicURL(req.Key)})
}

// Stream godoc
//
//	@Summary		Stream object
//	@Description	Proxy an object from the bucket. A Range header of the form bytes=<start>-<end> yields 206 with Content-Range; any other Range value is ignored and the whole object is returned with 200.
//	@Tags			storage
//	@Produce		octet-stream
//	@Security		BearerAuth
//	@Param			key		query		string	true	"Object key under uploads/"
//	@Param			Range	header		string	false	"bytes=<start>-<end>"
//	@Success		200		{file}		binary
//	@Success		206		{file}		binary
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		404		{object}	response.Envelope
//	@Failure		416		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/storage/stream [get]
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	obj, err := h.svc.Open(r.Context(), r.URL.Query().Get("key"), r.Header.Get("Range"))
	if err != nil {
		status := h.writeError(w, err)
		metrics.ObserveProxyResponse(r.Method, status, 0)
		return
	}
	defer obj.Body.Close()

	hdr := w.Header()
	setObjectHeaders(hdr, &obj.ObjectInfo)

	status := http.StatusOK
	if obj.Partial() {
		status = http.StatusPartialContent
		hdr.Set("Content-Range", obj.ContentRange)
		if obj.Length >= 0 {
			hdr.Set("Content-Length", strconv.FormatInt(obj.Length, 10))
		}
	} else if obj.Size >= 0 {
		hdr.Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.WriteHeader(status)

	n, err := io.Copy(w, obj.Body)
	metrics.ObserveProxyResponse(r.Method, status, n)
	if err == nil {
		return
	}
	if r.Context().Err() != nil {
		h.log.Debug().Str("key", obj.Key).Int64("bytes", n).Msg("client went away mid-stream")
		return
	}
	// Headers are gone; aborting the connection is the only way to tell the
	// client its body is truncated.
	h.log.Error().Err(err).Str("key", obj.Key).Int64("bytes", n).Msg("upstream stream broke")
	panic(http.ErrAbortHandler)
}

// StreamHead godoc
//
//	@Summary		Object metadata
//	@Description	Same validation as GET /storage/stream, returns size and type headers without a body.
//	@Tags			storage
//	@Security		BearerAuth
//	@Param			key	query	string	true	"Object key under uploads/"
//	@Success		200
//	@Failure		400
//	@Failure		401
//	@Failure		404
//	@Router			/storage/stream [head]
func (h *Handler) StreamHead(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.Stat(r.Context(), r.URL.Query().Get("key"))
	if err != nil {
		status, _, _ := errorResponse(err)
		metrics.ObserveProxyResponse(r.Method, status, 0)
		w.WriteHeader(status)
		return
	}

	hdr := w.Header()
	setObjectHeaders(hdr, info)
	hdr.Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.WriteHeader(http.StatusOK)
	metrics.ObserveProxyResponse(r.Method, http.StatusOK, 0)
}

// Upload godoc
//
//	@Summary		Upload through the server
//	@Description	Fallback path for clients whose direct PUT to the bucket failed. The server stores the file with its own credentials under a fresh key.
//	@Tags			storage
//	@Accept			multipart/form-data
//	@Produce		json
//	@Security		BearerAuth
//	@Param			file	formData	file	true	"File to store"
//	@Success		201		{object}	response.Envelope{data=UploadResult}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		413		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/storage/upload [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.maxUploadBytes {
		h.writeError(w, &http.MaxBytesError{Limit: h.maxUploadBytes})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.writeError(w, err)
			return
		}
		response.BadRequest(w, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	file, header, err := r.FormFile("file")
	if err != nil {
		response.BadRequest(w, "no file provided")
		return
	}
	defer file.Close()

	res, err := h.svc.Upload(r.Context(), middleware.UserID(r.Context()),
		header.Filename, header.Header.Get("Content-Type"), file, header.Size)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.Created(w, res)
}

// Delete godoc
//
//	@Summary		Delete object
//	@Description	Remove an object immediately. Callers are responsible for dropping references to the key.
//	@Tags			storage
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		deleteRequest	true	"Object key"
//	@Success		200		{object}	response.Envelope{data=messageData}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/storage/object [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	ctx := r.Context()
	h.log.Info().
		Str("key", req.Key).
		Str("user", middleware.UserID(ctx)).
		Str("role", middleware.UserRole(ctx)).
		Msg("delete requested")

	if err := h.svc.Delete(ctx, req.Key); err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, messageData{Message: "deleted"})
}

// List godoc
//
//	@Summary		List objects
//	@Description	List stored objects under uploads/ (or a narrower prefix), ordered by key.
//	@Tags			storage
//	@Produce		json
//	@Security		BearerAuth
//	@Param			prefix	query		string	false	"Key prefix, defaults to uploads/"
//	@Param			limit	query		int		false	"Maximum entries (default 100, max 1000)"
//	@Success		200		{object}	response.Envelope{data=[]objectData}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/storage/objects [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			response.BadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	objs, err := h.svc.List(r.Context(), r.URL.Query().Get("prefix"), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}

	out := make([]objectData, 0, len(objs))
	for _, o := range objs {
		out = append(out, objectData{
			Key:          o.Key,
			Size:         o.Size,
			ContentType:  o.ContentType,
			ETag:         o.ETag,
			LastModified: o.LastModified,
			PublicURL:    h.svc.PublicURL(o.Key),
		})
	}
	response.OK(w, out)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) int {
	status, code, message := errorResponse(err)
	response.Error(w, status, code, message)
	return status
}

func setObjectHeaders(hdr http.Header, info *storage.ObjectInfo) {
	hdr.Set("Accept-Ranges", "bytes")
	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	hdr.Set("Content-Type", contentType)
	if info.ETag != "" {
		hdr.Set("ETag", `"`+info.ETag+`"`)
	}
	if !info.LastModified.IsZero() {
		hdr.Set("Last-Modified", info.LastModified.UTC().Format(http.TimeFormat))
	}
}
