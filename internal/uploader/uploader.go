// Package uploader is the client side of the gateway's two-phase upload:
// a direct PUT to a presigned bucket URL, falling back to posting the file
// through the gateway when anything in that first phase goes wrong.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Strategy tells which phase stored the file.
type Strategy string

const (
	StrategyDirect   Strategy = "direct"
	StrategyFallback Strategy = "fallback"
)

var (
	// ErrUploadFailed wraps the terminal error of the server fallback.
	ErrUploadFailed = errors.New("upload failed")

	// ErrGrantExpired is returned when a grant is used after its expiry.
	ErrGrantExpired = errors.New("upload grant expired")
)

// File is the content to upload. Open is called once per phase, so the
// fallback reads the file from the start again.
type File struct {
	Name        string
	ContentType string
	// Size is the byte length, or -1 when unknown.
	Size int64
	Open func() (io.ReadCloser, error)
}

// Grant is a presigned PUT target returned by the gateway.
type Grant struct {
	URL       string    `json:"url"`
	Key       string    `json:"key"`
	PublicURL string    `json:"publicUrl"`
	Method    string    `json:"method"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Result describes a stored file.
type Result struct {
	Key       string   `json:"key"`
	PublicURL string   `json:"publicUrl"`
	Strategy  Strategy `json:"strategy"`
}

// Presigner requests an upload grant.
type Presigner interface {
	Presign(ctx context.Context, filename, contentType string) (*Grant, error)
}

// DirectPutter sends the file straight to the grant's URL.
type DirectPutter interface {
	PutDirect(ctx context.Context, grant *Grant, f File) error
}

// Confirmer reports a finished direct PUT to the gateway. A DirectPutter that
// also implements Confirmer is asked to confirm every successful PUT.
type Confirmer interface {
	Confirm(ctx context.Context, key string) error
}

// FallbackUploader sends the file through the gateway.
type FallbackUploader interface {
	UploadViaServer(ctx context.Context, f File) (*Result, error)
}

// Orchestrator runs the direct phase and, only after it has failed, the
// server fallback. The phases never overlap.
type Orchestrator struct {
	presigner Presigner
	putter    DirectPutter
	fallback  FallbackUploader
	log       zerolog.Logger
}

// NewOrchestrator creates an Orchestrator. HTTPClient satisfies all three roles.
func NewOrchestrator(p Presigner, d DirectPutter, f FallbackUploader, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		presigner: p,
		putter:    d,
		fallback:  f,
		log:       logger.With().Str("component", "uploader").Logger(),
	}
}

// Upload stores f, preferring the direct path.
//
// A cancelled ctx ends the upload without trying the fallback.
func (o *Orchestrator) Upload(ctx context.Context, f File) (*Result, error) {
	if f.Open == nil {
		return nil, fmt.Errorf("%w: file %q has no content", ErrUploadFailed, f.Name)
	}
	if f.ContentType == "" {
		f.ContentType = "application/octet-stream"
	}

	res, err := o.direct(ctx, f)
	if err == nil {
		o.log.Info().Str("key", res.Key).Str("strategy", string(res.Strategy)).Msg("upload complete")
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	o.log.Warn().Err(err).Str("file", f.Name).Msg("direct upload failed, falling back to server")

	res, err = o.fallback.UploadViaServer(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	res.Strategy = StrategyFallback
	o.log.Info().Str("key", res.Key).Str("strategy", string(res.Strategy)).Msg("upload complete")
	return res, nil
}

func (o *Orchestrator) direct(ctx context.Context, f File) (*Result, error) {
	grant, err := o.presigner.Presign(ctx, f.Name, f.ContentType)
	if err != nil {
		return nil, fmt.Errorf("presign: %w", err)
	}
	if err := o.putter.PutDirect(ctx, grant, f); err != nil {
		return nil, fmt.Errorf("put %s: %w", grant.Key, err)
	}
	// The object is in the bucket already; a lost confirmation only leaves
	// the ledger row at "granted".
	if c, ok := o.putter.(Confirmer); ok {
		if err := c.Confirm(ctx, grant.Key); err != nil {
			o.log.Warn().Err(err).Str("key", grant.Key).Msg("direct upload not confirmed")
		}
	}
	return &Result{Key: grant.Key, PublicURL: grant.PublicURL, Strategy: StrategyDirect}, nil
}
