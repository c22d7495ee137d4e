package storage

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Unconfigured stands in for a store whose settings are incomplete. The server
// still starts; every call fails with ErrNotConfigured.
type Unconfigured struct {
	Reason error
}

func (u Unconfigured) err() error {
	if u.Reason != nil {
		return u.Reason
	}
	return ErrNotConfigured
}

func (u Unconfigured) Upload(context.Context, string, io.Reader, int64, string) error {
	return u.err()
}

func (u Unconfigured) Get(context.Context, string, *ByteRange) (*Object, error) {
	return nil, u.err()
}

func (u Unconfigured) Stat(context.Context, string) (*ObjectInfo, error) {
	return nil, u.err()
}

func (u Unconfigured) Delete(context.Context, string) error {
	return u.err()
}

func (u Unconfigured) List(context.Context, string, int) ([]ObjectInfo, error) {
	return nil, u.err()
}

func (u Unconfigured) PresignPut(context.Context, string, string, time.Duration) (string, error) {
	return "", u.err()
}

func (u Unconfigured) PublicURL(key string) string {
	return fmt.Sprintf("unconfigured://%s", key)
}
