package objects

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bimbel/storagegw/internal/metrics"
	"github.com/bimbel/storagegw/internal/storage"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// Grant is a time-limited permission to PUT one object directly to the bucket.
type Grant struct {
	URL       string    `json:"url"`
	Key       string    `json:"key"`
	PublicURL string    `json:"publicUrl"`
	Method    string    `json:"method"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// UploadResult describes an object stored by the server.
type UploadResult struct {
	Key       string `json:"key"`
	PublicURL string `json:"publicUrl"`
}

// Service contains the object operations behind the HTTP handlers.
type Service struct {
	store      storage.Storage
	ledger     Recorder
	keys       *KeyGenerator
	presignTTL time.Duration
	log        zerolog.Logger
}

// NewService creates a Service. A nil ledger disables ledger writes.
func NewService(store storage.Storage, ledger Recorder, presignTTL time.Duration, logger zerolog.Logger) *Service {
	if ledger == nil {
		ledger = NopRecorder{}
	}
	if presignTTL <= 0 {
		presignTTL = 5 * time.Minute
	}
	return &Service{
		store:      store,
		ledger:     ledger,
		keys:       NewKeyGenerator(time.Now),
		presignTTL: presignTTL,
		log:        logger.With().Str("component", "objects").Logger(),
	}
}

// CreateUploadGrant mints a key for filename and presigns a PUT for it.
// Nothing is written to the bucket.
func (s *Service) CreateUploadGrant(ctx context.Context, ownerID, filename, contentType string) (*Grant, error) {
	filename = strings.TrimSpace(filename)
	contentType = strings.TrimSpace(contentType)
	if filename == "" || contentType == "" {
		return nil, fmt.Errorf("%w: filename and contentType are required", ErrValidation)
	}

	key := s.keys.Next(filename)
	expiresAt := s.keys.Now().Add(s.presignTTL)

	url, err := s.store.PresignPut(ctx, key, contentType, s.presignTTL)
	if err != nil {
		return nil, s.storeFailure("presign", key, err)
	}
	metrics.IncPresignGrant()

	s.record(ctx, &Record{
		Key:         key,
		Filename:    filename,
		ContentType: contentType,
		Strategy:    StrategyDirect,
		Status:      StatusGranted,
		OwnerID:     ownerID,
	})

	return &Grant{
		URL:       url,
		Key:       key,
		PublicURL: s.store.PublicURL(key),
		Method:    http.MethodPut,
		ExpiresAt: expiresAt,
	}, nil
}

// Upload stores body under a freshly minted key using the server's credentials.
// size may be -1 when unknown.
func (s *Service) Upload(ctx context.Context, ownerID, filename, contentType string, body io.Reader, size int64) (*UploadResult, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		filename = fmt.Sprintf("upload-%d", s.keys.Now().UnixMilli())
	}
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := s.keys.Next(filename)
	if err := s.store.Upload(ctx, key, body, size, contentType); err != nil {
		return nil, s.storeFailure("upload", key, err)
	}
	metrics.IncUpload(string(StrategyServer))

	rec := &Record{
		Key:         key,
		Filename:    filename,
		ContentType: contentType,
		Strategy:    StrategyServer,
		Status:      StatusStored,
		OwnerID:     ownerID,
	}
	if size >= 0 {
		rec.Size = &size
	}
	s.record(ctx, rec)

	s.log.Info().Str("key", key).Int64("size", size).Str("owner", ownerID).Msg("object stored")
	return &UploadResult{Key: key, PublicURL: s.store.PublicURL(key)}, nil
}

// ConfirmUpload marks a directly uploaded key as stored once the bucket
// actually holds it. Confirming twice is harmless.
func (s *Service) ConfirmUpload(ctx context.Context, ownerID, key string) (*storage.ObjectInfo, error) {
	if err := s.checkKey(key); err != nil {
		return nil, err
	}
	info, err := s.store.Stat(ctx, key)
	if err != nil {
		return nil, s.storeFailure("stat", key, err)
	}
	metrics.IncUpload(string(StrategyDirect))

	size := info.Size
	s.record(ctx, &Record{
		Key:         key,
		Filename:    filenameFromKey(key),
		ContentType: info.ContentType,
		Size:        &size,
		Strategy:    StrategyDirect,
		Status:      StatusStored,
		OwnerID:     ownerID,
	})

	s.log.Info().Str("key", key).Int64("size", size).Str("owner", ownerID).Msg("direct upload confirmed")
	return info, nil
}

// Open validates key and fetches it, ranged when rangeHeader parses as
// "bytes=<start>-<end>". The caller must close the returned body.
func (s *Service) Open(ctx context.Context, key, rangeHeader string) (*storage.Object, error) {
	if err := s.checkKey(key); err != nil {
		return nil, err
	}
	obj, err := s.store.Get(ctx, key, ParseRange(rangeHeader))
	if err != nil {
		return nil, s.storeFailure("get", key, err)
	}
	return obj, nil
}

// Stat validates key and returns its metadata.
func (s *Service) Stat(ctx context.Context, key string) (*storage.ObjectInfo, error) {
	if err := s.checkKey(key); err != nil {
		return nil, err
	}
	info, err := s.store.Stat(ctx, key)
	if err != nil {
		return nil, s.storeFailure("stat", key, err)
	}
	return info, nil
}

// Delete removes key from the bucket immediately. References held elsewhere
// are the caller's concern.
func (s *Service) Delete(ctx context.Context, key string) error {
	if err := s.checkKey(key); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, key); err != nil {
		return s.storeFailure("delete", key, err)
	}
	if err := s.ledger.MarkDeleted(ctx, key); err != nil && !errors.Is(err, ErrRecordNotFound) {
		s.log.Error().Err(err).Str("key", key).Msg("ledger update failed")
	}
	s.log.Info().Str("key", key).Msg("object deleted")
	return nil
}

// List returns objects under prefix, which must stay inside Namespace.
func (s *Service) List(ctx context.Context, prefix string, limit int) ([]storage.ObjectInfo, error) {
	if prefix == "" {
		prefix = Namespace
	}
	if !strings.HasPrefix(prefix, Namespace) {
		s.log.Warn().Str("prefix", prefix).Msg("list outside namespace rejected")
		return nil, ErrInvalidKey
	}
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}

	objs, err := s.store.List(ctx, prefix, limit)
	if err != nil {
		return nil, s.storeFailure("list", prefix, err)
	}
	return objs, nil
}

// PublicURL returns the browser-accessible URL for key.
func (s *Service) PublicURL(key string) string {
	return s.store.PublicURL(key)
}

// checkKey rejects empty keys and keys outside Namespace before the store is contacted.
func (s *Service) checkKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key is required", ErrValidation)
	}
	if !InNamespace(key) {
		s.log.Warn().Str("key", key).Msg("key outside namespace rejected")
		return ErrInvalidKey
	}
	return nil
}

func (s *Service) storeFailure(op, key string, err error) error {
	if errors.Is(err, storage.ErrNotConfigured) {
		s.log.Error().Err(err).Str("op", op).Msg("object storage not configured")
		return err
	}
	kind := storage.KindOf(err)
	metrics.IncStoreError(op, kind.String())

	event := s.log.Error()
	if kind == storage.KindNotFound || kind == storage.KindInvalidRange {
		event = s.log.Debug()
	}
	event.Err(err).Str("op", op).Str("key", key).Str("kind", kind.String()).Msg("store call failed")
	return err
}

func (s *Service) record(ctx context.Context, rec *Record) {
	if err := s.ledger.Record(ctx, rec); err != nil {
		s.log.Error().Err(err).Str("key", rec.Key).Msg("ledger write failed")
	}
}
