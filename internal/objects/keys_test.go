package objects

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"my file (1).pdf", "my_file__1_.pdf"},
		{"../../etc/passwd", ".._.._etc_passwd"},
		{"résumé.pdf", "r_sum_.pdf"},
		{"a-b_c.tar.gz", "a-b_c.tar.gz"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.in))
		})
	}
}

func TestSanitizeFilename_Long(t *testing.T) {
	got := SanitizeFilename(strings.Repeat("a", 300) + ".pdf")

	assert.Len(t, got, maxNameLen)
	assert.True(t, strings.HasSuffix(got, ".pdf"))
}

func TestKeyGenerator_Format(t *testing.T) {
	fixed := time.UnixMilli(1718000000000)
	g := NewKeyGenerator(func() time.Time { return fixed })

	assert.Equal(t, "uploads/1718000000000-my_file.pdf", g.Next("my file.pdf"))
}

func TestKeyGenerator_SameMillisecondStaysUnique(t *testing.T) {
	fixed := time.UnixMilli(1718000000000)
	g := NewKeyGenerator(func() time.Time { return fixed })

	a := g.Next("a.txt")
	b := g.Next("a.txt")
	c := g.Next("a.txt")

	assert.Equal(t, "uploads/1718000000000-a.txt", a)
	assert.Equal(t, "uploads/1718000000001-a.txt", b)
	assert.Equal(t, "uploads/1718000000002-a.txt", c)
}

func TestKeyGenerator_ClockGoingBackwards(t *testing.T) {
	ts := []int64{1000, 900, 1001}
	i := 0
	g := NewKeyGenerator(func() time.Time {
		v := ts[i]
		i++
		return time.UnixMilli(v)
	})

	assert.Equal(t, "uploads/1000-x", g.Next("x"))
	assert.Equal(t, "uploads/1001-x", g.Next("x"))
	assert.Equal(t, "uploads/1002-x", g.Next("x"))
}

func TestKeyGenerator_Concurrent(t *testing.T) {
	fixed := time.UnixMilli(1718000000000)
	g := NewKeyGenerator(func() time.Time { return fixed })

	const n = 200
	keys := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			keys <- g.Next("same.bin")
		}()
	}
	wg.Wait()
	close(keys)

	seen := make(map[string]bool, n)
	for k := range keys {
		require.False(t, seen[k], "duplicate key %s", k)
		seen[k] = true
		assert.True(t, InNamespace(k), k)
	}
	assert.Len(t, seen, n)
}

func TestInNamespace(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"uploads/1-a.pdf", true},
		{"uploads/dir/file", true},
		{"uploads/", false},
		{"uploads", false},
		{"", false},
		{"private/secret", false},
		{"/uploads/a", false},
		{"uploads/../secret", false},
		{"uploads//a", false},
		{"uploads/a/", false},
		{"uploads/./a", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, InNamespace(tt.key))
		})
	}
}

func TestFilenameFromKey(t *testing.T) {
	assert.Equal(t, "report.pdf", filenameFromKey("uploads/1718000000000-report.pdf"))
	assert.Equal(t, "a-b.txt", filenameFromKey("uploads/1-a-b.txt"))
	assert.Equal(t, "plain", filenameFromKey("uploads/plain"))
}
