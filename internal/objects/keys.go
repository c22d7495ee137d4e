// Package objects implements the gateway's object operations: upload grants,
// server-side uploads, the range-aware streaming proxy, listing and deletion.
package objects

import (
	"fmt"
	"path"
	"strings"
	"sync"
	"time"
)

// Namespace is the only key prefix the gateway mints, serves or deletes.
const Namespace = "uploads/"

const maxNameLen = 200

// SanitizeFilename replaces every character outside [A-Za-z0-9._-] with '_'
// and bounds the length, keeping a short extension intact.
func SanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if len(out) > maxNameLen {
		ext := path.Ext(out)
		if len(ext) > 16 {
			ext = ""
		}
		out = out[:maxNameLen-len(ext)] + ext
	}
	return out
}

// KeyGenerator mints keys of the form uploads/<unix-millis>-<sanitized name>.
//
// The millisecond component never repeats within one generator: a call in the
// same (or an earlier) millisecond as the previous one takes last+1. Keys from
// different processes can still collide when two replicas pick the same
// millisecond for the same filename.
type KeyGenerator struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
}

// NewKeyGenerator returns a generator reading time from now (time.Now when nil).
func NewKeyGenerator(now func() time.Time) *KeyGenerator {
	if now == nil {
		now = time.Now
	}
	return &KeyGenerator{now: now}
}

// Next returns a fresh key for filename.
func (g *KeyGenerator) Next(filename string) string {
	g.mu.Lock()
	ms := g.now().UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms
	g.mu.Unlock()

	return fmt.Sprintf("%s%d-%s", Namespace, ms, SanitizeFilename(filename))
}

// Now exposes the generator's clock so grants and keys agree on time.
func (g *KeyGenerator) Now() time.Time {
	return g.now()
}

// InNamespace reports whether key is a clean path under Namespace.
func InNamespace(key string) bool {
	if !strings.HasPrefix(key, Namespace) || len(key) == len(Namespace) {
		return false
	}
	return path.Clean(key) == key
}

// filenameFromKey recovers the sanitized name from a minted key.
func filenameFromKey(key string) string {
	rest := strings.TrimPrefix(key, Namespace)
	if _, name, ok := strings.Cut(rest, "-"); ok && name != "" {
		return name
	}
	return rest
}
