package objects

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Strategy records which path wrote an object.
type Strategy string

const (
	StrategyDirect Strategy = "direct"
	StrategyServer Strategy = "server"
)

// Status is the ledger state of a key.
type Status string

const (
	StatusGranted Status = "granted"
	StatusStored  Status = "stored"
	StatusDeleted Status = "deleted"
)

// ErrRecordNotFound is returned when the ledger has no row for a key.
var ErrRecordNotFound = errors.New("ledger record not found")

// Record is one row of the upload ledger.
type Record struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	Size        *int64    `json:"size,omitempty"`
	Strategy    Strategy  `json:"strategy"`
	Status      Status    `json:"status"`
	OwnerID     string    `json:"ownerId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Recorder persists ledger rows. Ledger failures never fail a storage operation.
type Recorder interface {
	Record(ctx context.Context, rec *Record) error
	MarkDeleted(ctx context.Context, key string) error
}

// Repository is the Postgres-backed Recorder.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Record inserts rec, or moves an existing row for the same key forward
// (a granted key that later gets stored keeps its id and creation time).
func (r *Repository) Record(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO storage_objects (id, key, filename, content_type, size_bytes, strategy, status, owner_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (key) DO UPDATE
		 SET status = EXCLUDED.status,
		     size_bytes = COALESCE(EXCLUDED.size_bytes, storage_objects.size_bytes),
		     updated_at = NOW()
		 RETURNING id, created_at, updated_at`,
		rec.ID, rec.Key, rec.Filename, rec.ContentType, rec.Size, string(rec.Strategy), string(rec.Status), rec.OwnerID,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("record object %q: %w", rec.Key, err)
	}
	return nil
}

// MarkDeleted flags the ledger row for key as deleted.
func (r *Repository) MarkDeleted(ctx context.Context, key string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE storage_objects SET status = $2, updated_at = NOW() WHERE key = $1`,
		key, string(StatusDeleted),
	)
	if err != nil {
		return fmt.Errorf("mark object %q deleted: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// NopRecorder discards ledger writes; used when no database is configured.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, *Record) error { return nil }
func (NopRecorder) MarkDeleted(context.Context, string) error { return nil }
